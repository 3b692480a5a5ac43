package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"
)

// schemaField describes one yaml key of a struct.
type schemaField struct {
	name     string
	typ      reflect.Type
	optional bool
}

func structFields(t reflect.Type) []schemaField {
	fields := make([]schemaField, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("yaml")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		if name == "" {
			name = strings.ToLower(f.Name)
		}
		fields = append(fields, schemaField{
			name:     name,
			typ:      f.Type,
			optional: strings.Contains(opts, "omitempty"),
		})
	}
	return fields
}

// checkSchema walks the parsed document against the shape of t. It reports
// unknown, duplicate, and missing keys as schema errors and structural
// mismatches (a scalar where a mapping is expected) as type errors. Scalar
// types are left to the decoder.
func checkSchema(node *yaml.Node, t reflect.Type) error {
	var errs []error
	walkSchema(node, t, "", &errs)
	return errors.Join(errs...)
}

func walkSchema(node *yaml.Node, t reflect.Type, path string, errs *[]error) {
	for node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}
	if node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	if t.Kind() == reflect.Pointer {
		if isNull(node) {
			return
		}
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.Struct:
		if node.Kind != yaml.MappingNode {
			*errs = append(*errs, typeErr(displayPath(path), "expected a mapping, got %s", kindName(node)))
			return
		}
		fields := structFields(t)
		byName := make(map[string]schemaField, len(fields))
		for _, f := range fields {
			byName[f.name] = f
		}
		seen := make(map[string]int, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, val := node.Content[i], node.Content[i+1]
			keyPath := joinPath(path, key.Value)
			if line, dup := seen[key.Value]; dup {
				*errs = append(*errs, schemaErr(keyPath, "duplicate key (first defined at line %d)", line))
				continue
			}
			seen[key.Value] = key.Line
			f, ok := byName[key.Value]
			if !ok {
				*errs = append(*errs, schemaErr(keyPath, "unknown key at line %d", key.Line))
				continue
			}
			if isNull(val) && !f.optional && f.typ.Kind() != reflect.Pointer {
				*errs = append(*errs, schemaErr(keyPath, "value is missing"))
				continue
			}
			walkSchema(val, f.typ, keyPath, errs)
		}
		for _, f := range fields {
			if _, ok := seen[f.name]; !ok && !f.optional {
				*errs = append(*errs, schemaErr(joinPath(path, f.name), "required key is missing"))
			}
		}
	case reflect.Map:
		if node.Kind != yaml.MappingNode {
			*errs = append(*errs, typeErr(displayPath(path), "expected a mapping, got %s", kindName(node)))
			return
		}
		seen := make(map[string]int, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, val := node.Content[i], node.Content[i+1]
			keyPath := joinPath(path, key.Value)
			if line, dup := seen[key.Value]; dup {
				*errs = append(*errs, schemaErr(keyPath, "duplicate key (first defined at line %d)", line))
				continue
			}
			seen[key.Value] = key.Line
			walkSchema(val, t.Elem(), keyPath, errs)
		}
	case reflect.Slice:
		if node.Kind != yaml.SequenceNode {
			*errs = append(*errs, typeErr(displayPath(path), "expected a list, got %s", kindName(node)))
			return
		}
		for i, item := range node.Content {
			walkSchema(item, t.Elem(), fmt.Sprintf("%s[%d]", path, i), errs)
		}
	default:
		if node.Kind != yaml.ScalarNode {
			*errs = append(*errs, typeErr(displayPath(path), "expected a scalar, got %s", kindName(node)))
		}
	}
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null"
}

func kindName(n *yaml.Node) string {
	switch n.Kind {
	case yaml.MappingNode:
		return "a mapping"
	case yaml.SequenceNode:
		return "a list"
	case yaml.ScalarNode:
		if isNull(n) {
			return "null"
		}
		return fmt.Sprintf("scalar %q", n.Value)
	default:
		return "an unsupported node"
	}
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

func displayPath(path string) string {
	if path == "" {
		return "<document>"
	}
	return path
}
