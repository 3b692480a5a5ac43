package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/samcharles93/proteintune/internal/logger"
)

type loadOptions struct {
	baseDir    string
	skipPaths  bool
	log        logger.Logger
	sourcePath string
}

// Option tunes Load and Parse.
type Option func(*loadOptions)

// WithBaseDir anchors relative paths in the document at dir instead of the
// process working directory.
func WithBaseDir(dir string) Option {
	return func(o *loadOptions) { o.baseDir = dir }
}

// WithoutPathChecks skips filesystem existence and writability checks.
// Schema, type, range, and stage checks still run.
func WithoutPathChecks() Option {
	return func(o *loadOptions) { o.skipPaths = true }
}

// WithLogger routes load diagnostics to log.
func WithLogger(log logger.Logger) Option {
	return func(o *loadOptions) { o.log = log }
}

// Load reads and validates the run document at path. Any violation is fatal:
// the returned error joins every FieldError found and no partial Config is
// returned.
func Load(path string, opts ...Option) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pathErr("", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	cfg, err := Parse(data, append([]Option{func(o *loadOptions) { o.sourcePath = abs }}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return cfg, nil
}

// Parse validates an in-memory document. Relative paths resolve against the
// WithBaseDir directory, defaulting to the working directory.
func Parse(data []byte, opts ...Option) (*Config, error) {
	o := loadOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.Discard()
	}
	if o.baseDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("resolve working directory: %w", err)
		}
		o.baseDir = wd
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &FieldError{Kind: ErrSchema, Msg: "malformed document", Err: err}
	}
	if root.Kind == 0 || (root.Kind == yaml.DocumentNode && len(root.Content) == 0) {
		return nil, schemaErr("", "document is empty")
	}
	if err := checkSchema(&root, reflect.TypeOf(Config{})); err != nil {
		return nil, err
	}

	var cfg Config
	if err := root.Decode(&cfg); err != nil {
		return nil, decodeErr(&root, err)
	}
	cfg.source = o.sourcePath
	cfg.baseDir = o.baseDir

	errs := []error{validateFields(&cfg), validateSemantics(&cfg)}
	// Missing flags are already reported as schema errors.
	if _, complete := cfg.Model.FreezeFlags(); complete {
		_, err := ValidateStageConsistency(&cfg)
		errs = append(errs, err)
	}
	if !o.skipPaths {
		errs = append(errs, checkPaths(&cfg))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	stage, _ := ValidateStageConsistency(&cfg)

	o.log.Debug("config loaded",
		"source", cfg.source,
		"stage", stage.String(),
		"datasets", len(cfg.Datasets),
		"effective_batch_size", EffectiveBatchSize(cfg.Run),
	)
	return &cfg, nil
}

// decodeErr maps decoder messages of the form "line N: cannot unmarshal ..."
// back to the key whose value sits on line N.
func decodeErr(root *yaml.Node, err error) error {
	var te *yaml.TypeError
	if !errors.As(err, &te) {
		return &FieldError{Kind: ErrType, Msg: "decode document", Err: err}
	}
	errs := make([]error, 0, len(te.Errors))
	for _, msg := range te.Errors {
		fe := &FieldError{Kind: ErrType, Msg: msg}
		if head, rest, ok := strings.Cut(msg, ": "); ok {
			if line, err := strconv.Atoi(strings.TrimPrefix(head, "line ")); err == nil {
				fe.Msg = rest
				if fe.Field = fieldAtLine(root, "", line); fe.Field == "" {
					fe.Field = head
				}
			}
		}
		errs = append(errs, fe)
	}
	return errors.Join(errs...)
}

// fieldAtLine returns the dotted path of the first scalar value on line.
func fieldAtLine(node *yaml.Node, path string, line int) string {
	switch node.Kind {
	case yaml.DocumentNode:
		for _, c := range node.Content {
			if p := fieldAtLine(c, path, line); p != "" {
				return p
			}
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			if p := fieldAtLine(node.Content[i+1], joinPath(path, node.Content[i].Value), line); p != "" {
				return p
			}
		}
	case yaml.SequenceNode:
		for i, c := range node.Content {
			if p := fieldAtLine(c, fmt.Sprintf("%s[%d]", path, i), line); p != "" {
				return p
			}
		}
	case yaml.ScalarNode:
		if node.Line == line {
			return path
		}
	}
	return ""
}

// Marshal renders cfg back into the document format. Loading the output
// yields a Config equal to cfg.
func Marshal(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// Document returns cfg as a generic tree keyed by document names, suitable
// for re-encoding in other formats.
func Document(cfg *Config) (map[string]any, error) {
	data, err := Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode rendered config: %w", err)
	}
	return out, nil
}
