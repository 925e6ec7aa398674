// Package output renders command results as JSON, YAML, CSV or an aligned
// text table.
package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// Formatter renders data.
type Formatter interface {
	Format(data any, pretty bool) ([]byte, error)
}

// Tabular is implemented by results that render as rows.
type Tabular interface {
	Header() []string
	Rows() [][]string
}

// NewFormatter returns the formatter for name, defaulting to JSON.
func NewFormatter(name string, precision int) Formatter {
	switch strings.ToLower(name) {
	case "yaml", "yml":
		return &YAMLFormatter{}
	case "csv":
		return &CSVFormatter{Precision: precision}
	case "table":
		return &TableFormatter{Precision: precision}
	default:
		return &JSONFormatter{}
	}
}

// JSONFormatter renders JSON. Non-finite floats become null.
type JSONFormatter struct{}

func (f *JSONFormatter) Format(data any, pretty bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(data); err != nil {
		if !strings.Contains(err.Error(), "unsupported value") {
			return nil, err
		}
		buf.Reset()
		if err := enc.Encode(Sanitize(data)); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// YAMLFormatter renders YAML through the JSON field names so both formats
// share keys.
type YAMLFormatter struct{}

func (f *YAMLFormatter) Format(data any, _ bool) ([]byte, error) {
	raw, err := json.Marshal(Sanitize(data))
	if err != nil {
		return nil, err
	}
	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CSVFormatter renders Tabular data, or key/value pairs for anything else.
type CSVFormatter struct {
	Precision int
}

func (f *CSVFormatter) Format(data any, _ bool) ([]byte, error) {
	header, rows, err := tabulate(data, f.Precision)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// TableFormatter renders an aligned plain-text table.
type TableFormatter struct {
	Precision int
}

func (f *TableFormatter) Format(data any, _ bool) ([]byte, error) {
	header, rows, err := tabulate(data, f.Precision)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(upper(header), "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func upper(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToUpper(s)
	}
	return out
}

// tabulate turns data into a header and rows. Tabular values render
// themselves; other values are flattened to dotted key/value pairs.
func tabulate(data any, precision int) ([]string, [][]string, error) {
	if t, ok := data.(Tabular); ok {
		return t.Header(), t.Rows(), nil
	}

	raw, err := json.Marshal(Sanitize(data))
	if err != nil {
		return nil, nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, nil, err
	}

	flat := make(map[string]string)
	flattenValue("", generic, precision, flat)
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([][]string, len(keys))
	for i, k := range keys {
		rows[i] = []string{k, flat[k]}
	}
	return []string{"key", "value"}, rows, nil
}

func flattenValue(prefix string, v any, precision int, out map[string]string) {
	switch val := v.(type) {
	case map[string]any:
		for k, child := range val {
			flattenValue(join(prefix, k), child, precision, out)
		}
	case []any:
		if isScalarSlice(val) {
			parts := make([]string, len(val))
			for i, item := range val {
				parts[i] = FormatValue(item, precision)
			}
			out[prefix] = "[" + strings.Join(parts, " ") + "]"
			return
		}
		for i, child := range val {
			flattenValue(join(prefix, strconv.Itoa(i)), child, precision, out)
		}
	default:
		out[prefix] = FormatValue(val, precision)
	}
}

func isScalarSlice(v []any) bool {
	for _, item := range v {
		switch item.(type) {
		case map[string]any, []any:
			return false
		}
	}
	return true
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// FormatValue renders a scalar for text output. Floats use precision
// significant decimals; nil renders as an empty string.
func FormatValue(v any, precision int) string {
	switch val := v.(type) {
	case nil:
		return ""
	case float64:
		return FormatFloat(val, precision)
	case *float64:
		if val == nil {
			return ""
		}
		return FormatFloat(*val, precision)
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

// FormatFloat formats f with precision decimals, or the shortest exact
// representation when precision is not positive.
func FormatFloat(f float64, precision int) string {
	if precision <= 0 {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', precision, 64)
}

// Sanitize replaces non-finite floats with nil throughout data so it can
// be encoded as JSON. Structs are converted to maps keyed by their JSON
// names.
func Sanitize(data any) any {
	return sanitizeValue(reflect.ValueOf(data))
}

func sanitizeValue(val reflect.Value) any {
	if !val.IsValid() {
		return nil
	}

	if m, ok := val.Interface().(json.Marshaler); ok && val.Kind() != reflect.Pointer {
		return m
	}

	switch val.Kind() {
	case reflect.Pointer, reflect.Interface:
		if val.IsNil() {
			return nil
		}
		return sanitizeValue(val.Elem())
	case reflect.Float32, reflect.Float64:
		f := val.Float()
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return nil
		}
		return f
	case reflect.Struct:
		result := make(map[string]any)
		typ := val.Type()
		for i := 0; i < val.NumField(); i++ {
			field := typ.Field(i)
			if !field.IsExported() {
				continue
			}
			name, omitEmpty, skip := jsonName(field)
			if skip {
				continue
			}
			fv := val.Field(i)
			if omitEmpty && fv.IsZero() {
				continue
			}
			if field.Anonymous && field.Tag.Get("json") == "" {
				if embedded, ok := sanitizeValue(fv).(map[string]any); ok {
					for k, v := range embedded {
						result[k] = v
					}
					continue
				}
			}
			result[name] = sanitizeValue(fv)
		}
		return result
	case reflect.Slice, reflect.Array:
		if val.Kind() == reflect.Slice && val.IsNil() {
			return nil
		}
		if val.Type().Elem().Kind() == reflect.Uint8 {
			return val.Interface()
		}
		result := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			result[i] = sanitizeValue(val.Index(i))
		}
		return result
	case reflect.Map:
		if val.IsNil() {
			return nil
		}
		result := make(map[string]any, val.Len())
		iter := val.MapRange()
		for iter.Next() {
			result[fmt.Sprint(iter.Key().Interface())] = sanitizeValue(iter.Value())
		}
		return result
	default:
		return val.Interface()
	}
}

func jsonName(field reflect.StructField) (name string, omitEmpty, skip bool) {
	tag := field.Tag.Get("json")
	if tag == "-" {
		return "", false, true
	}
	parts := strings.Split(tag, ",")
	name = parts[0]
	if name == "" {
		name = field.Name
	}
	for _, opt := range parts[1:] {
		if opt == "omitempty" || opt == "omitzero" {
			omitEmpty = true
		}
	}
	return name, omitEmpty, false
}
