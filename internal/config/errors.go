package config

import (
	"errors"
	"fmt"
)

var (
	ErrSchema        = errors.New("schema error")
	ErrType          = errors.New("type error")
	ErrPath          = errors.New("path error")
	ErrStageConflict = errors.New("stage conflict")
	ErrRange         = errors.New("range error")
)

// FieldError reports a single contract violation. Kind is one of the
// sentinel errors above and is what errors.Is matches against.
type FieldError struct {
	Kind  error
	Field string
	Msg   string
	Err   error
}

func (e *FieldError) Error() string {
	msg := e.Msg
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Field == "" {
		return fmt.Sprintf("%v: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%v: %s: %s", e.Kind, e.Field, msg)
}

func (e *FieldError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Code is a stable machine-readable name for the error kind.
func (e *FieldError) Code() string {
	switch e.Kind {
	case ErrSchema:
		return "schema_error"
	case ErrType:
		return "type_error"
	case ErrPath:
		return "path_error"
	case ErrStageConflict:
		return "stage_conflict_error"
	case ErrRange:
		return "range_error"
	}
	return "config_error"
}

func schemaErr(field, format string, args ...any) error {
	return &FieldError{Kind: ErrSchema, Field: field, Msg: fmt.Sprintf(format, args...)}
}

func typeErr(field, format string, args ...any) error {
	return &FieldError{Kind: ErrType, Field: field, Msg: fmt.Sprintf(format, args...)}
}

func rangeErr(field, format string, args ...any) error {
	return &FieldError{Kind: ErrRange, Field: field, Msg: fmt.Sprintf(format, args...)}
}

func stageErr(format string, args ...any) error {
	return &FieldError{Kind: ErrStageConflict, Field: "model", Msg: fmt.Sprintf(format, args...)}
}

func pathErr(field, path string, err error) error {
	return &FieldError{Kind: ErrPath, Field: field, Msg: fmt.Sprintf("%q", path), Err: err}
}

// Violations flattens a joined load error into its individual field errors.
func Violations(err error) []*FieldError {
	var out []*FieldError
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		if fe, ok := e.(*FieldError); ok {
			out = append(out, fe)
			return
		}
		if j, ok := e.(interface{ Unwrap() []error }); ok {
			for _, inner := range j.Unwrap() {
				walk(inner)
			}
			return
		}
		if u := errors.Unwrap(e); u != nil {
			walk(u)
		}
	}
	walk(err)
	return out
}
