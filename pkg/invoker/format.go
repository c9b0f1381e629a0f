// Package invoker turns a (service, method, args) call into a provider telnet
// command, runs it over a one-shot session and extracts the result.
package invoker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// ArgKind selects how invocation arguments are rendered.
type ArgKind int

const (
	// Positional renders a slice of values as a comma-joined argument list.
	Positional ArgKind = iota
	// Object renders a single keyed object (a POJO with a "class" key) as a JSON literal.
	Object
)

const classKey = "class"

func (k ArgKind) String() string {
	switch k {
	case Positional:
		return "positional"
	case Object:
		return "object"
	default:
		return fmt.Sprintf("ArgKind(%d)", int(k))
	}
}

// ParseArgKind maps a textual kind to an ArgKind. "class" is accepted for Object.
func ParseArgKind(s string) (ArgKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "positional", "list", "args":
		return Positional, nil
	case "object", "class", "pojo":
		return Object, nil
	default:
		return Positional, fmt.Errorf("%w: unknown argument kind %q", ErrInvalidArguments, s)
	}
}

// Request is one logical invocation.
type Request struct {
	Service string
	Method  string
	Kind    ArgKind
	Args    any
}

// FormatCommand renders `invoke <service>.<method>(<args>)`. Single quotes are
// rewritten to double quotes since the provider only accepts the latter.
func FormatCommand(service, method string, kind ArgKind, args any) (string, error) {
	if strings.TrimSpace(service) == "" || strings.TrimSpace(method) == "" {
		return "", fmt.Errorf("%w: service and method are required", ErrInvalidArguments)
	}

	var rendered string
	var err error
	switch kind {
	case Positional:
		rendered, err = renderPositional(args)
	case Object:
		rendered, err = renderObjectArg(args)
	default:
		err = fmt.Errorf("%w: unknown argument kind %s", ErrInvalidArguments, kind)
	}
	if err != nil {
		return "", err
	}

	cmd := fmt.Sprintf("invoke %s.%s(%s)", service, method, rendered)
	return strings.ReplaceAll(cmd, "'", `"`), nil
}

func renderPositional(args any) (string, error) {
	v := reflect.ValueOf(args)
	if !v.IsValid() || (v.Kind() != reflect.Slice && v.Kind() != reflect.Array) {
		return "", fmt.Errorf("%w: positional arguments must be a list, got %T", ErrInvalidArguments, args)
	}

	parts := make([]string, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		s, err := renderValue(v.Index(i).Interface())
		if err != nil {
			return "", fmt.Errorf("%w: argument %d: %v", ErrInvalidArguments, i, err)
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ","), nil
}

func renderObjectArg(args any) (string, error) {
	m, ok := asStringMap(args)
	if !ok {
		return "", fmt.Errorf("%w: object argument must be a map with string keys, got %T", ErrInvalidArguments, args)
	}
	s, err := renderObject(m)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return s, nil
}

// renderObject writes "class" first so the provider can pick the target type,
// then the remaining keys in sorted order.
func renderObject(m map[string]any) (string, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		if k != classKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if _, ok := m[classKey]; ok {
		keys = append([]string{classKey}, keys...)
	}

	fields := make([]string, 0, len(keys))
	for _, k := range keys {
		key, err := marshalLiteral(k)
		if err != nil {
			return "", err
		}
		val, err := renderValue(m[k])
		if err != nil {
			return "", fmt.Errorf("field %q: %w", k, err)
		}
		fields = append(fields, key+":"+val)
	}
	return "{" + strings.Join(fields, ",") + "}", nil
}

func renderValue(v any) (string, error) {
	if m, ok := asStringMap(v); ok {
		return renderObject(m)
	}
	return marshalLiteral(v)
}

func marshalLiteral(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func asStringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, m != nil
	case map[string]string:
		if m == nil {
			return nil, false
		}
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[k] = val
		}
		return out, true
	}

	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String || rv.IsNil() {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}
