package api

import "errors"

var ErrNoConfig = errors.New("no_config")

type unavailableError struct {
	msg string
}

func (e unavailableError) Error() string {
	return e.msg
}

func (e unavailableError) Unwrap() error {
	return ErrNoConfig
}

func newUnavailable(msg string) error {
	return unavailableError{msg: msg}
}
