package ecsv

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Header is the decoded YAML block at the top of an ECSV file.
type Header struct {
	Datatype  []ColumnSpec `yaml:"datatype" json:"datatype"`
	Delimiter Delimiter    `yaml:"delimiter,omitempty" json:"delimiter"`
	Meta      any          `yaml:"meta,omitempty" json:"meta,omitempty"`
	Schema    string       `yaml:"schema,omitempty" json:"schema,omitempty"`
}

// ColumnSpec describes one column of the data section.
type ColumnSpec struct {
	Name        string   `yaml:"name" json:"name"`
	Datatype    DataType `yaml:"datatype" json:"datatype"`
	Subtype     string   `yaml:"subtype,omitempty" json:"subtype,omitempty"`
	Unit        string   `yaml:"unit,omitempty" json:"unit,omitempty"`
	Format      string   `yaml:"format,omitempty" json:"format,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Meta        any      `yaml:"meta,omitempty" json:"meta,omitempty"`
}

// Names returns the declared column names in order.
func (h *Header) Names() []string {
	names := make([]string, len(h.Datatype))
	for i, c := range h.Datatype {
		names[i] = c.Name
	}
	return names
}

// validate fills defaults and checks the fields a header cannot do without.
func (h *Header) validate() error {
	if h.Datatype == nil {
		return fmt.Errorf("missing field %q", "datatype")
	}
	for i, c := range h.Datatype {
		if c.Name == "" {
			return fmt.Errorf("datatype[%d]: missing field %q", i, "name")
		}
		if c.Datatype == "" {
			return fmt.Errorf("datatype[%d] (%s): missing field %q", i, c.Name, "datatype")
		}
	}
	if h.Delimiter == "" {
		h.Delimiter = DelimiterSpace
	}
	h.Meta = normalize(h.Meta)
	for i := range h.Datatype {
		h.Datatype[i].Meta = normalize(h.Datatype[i].Meta)
	}
	return nil
}

// normalize rewrites map[any]any values produced by non-string YAML keys
// into map[string]any so the header can be encoded as JSON.
func normalize(v any) any {
	switch t := v.(type) {
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = normalize(val)
		}
		return m
	case map[string]any:
		for k, val := range t {
			t[k] = normalize(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = normalize(val)
		}
		return t
	}
	return v
}

// DataType is the machine type of a column.
type DataType string

const (
	Bool       DataType = "bool"
	Int8       DataType = "int8"
	Int16      DataType = "int16"
	Int32      DataType = "int32"
	Int64      DataType = "int64"
	Unt8       DataType = "unt8"
	Unt16      DataType = "unt16"
	Unt32      DataType = "unt32"
	Unt64      DataType = "unt64"
	Float16    DataType = "float16"
	Float32    DataType = "float32"
	Float64    DataType = "float64"
	Float128   DataType = "float128"
	Complex64  DataType = "complex64"
	Complex128 DataType = "complex128"
	Complex256 DataType = "complex256"
	String     DataType = "string"
)

var dataTypes = map[string]DataType{
	"bool":       Bool,
	"int8":       Int8,
	"int16":      Int16,
	"int32":      Int32,
	"int64":      Int64,
	"unt8":       Unt8,
	"unt16":      Unt16,
	"unt32":      Unt32,
	"unt64":      Unt64,
	"uint8":      Unt8,
	"uint16":     Unt16,
	"uint32":     Unt32,
	"uint64":     Unt64,
	"float16":    Float16,
	"float32":    Float32,
	"float64":    Float64,
	"float128":   Float128,
	"complex64":  Complex64,
	"complex128": Complex128,
	"complex256": Complex256,
	"string":     String,
}

// ParseDataType parses s case-insensitively.
func ParseDataType(s string) (DataType, error) {
	if dt, ok := dataTypes[strings.ToLower(strings.TrimSpace(s))]; ok {
		return dt, nil
	}
	return "", fmt.Errorf("unknown datatype %q", s)
}

// IsInteger reports whether d is a signed or unsigned integer type.
func (d DataType) IsInteger() bool {
	switch d {
	case Int8, Int16, Int32, Int64, Unt8, Unt16, Unt32, Unt64:
		return true
	}
	return false
}

// IsFloat reports whether d is a floating point type.
func (d DataType) IsFloat() bool {
	switch d {
	case Float16, Float32, Float64, Float128:
		return true
	}
	return false
}

// IsComplex reports whether d is a complex type.
func (d DataType) IsComplex() bool {
	switch d {
	case Complex64, Complex128, Complex256:
		return true
	}
	return false
}

func (d *DataType) UnmarshalText(text []byte) error {
	dt, err := ParseDataType(string(text))
	if err != nil {
		return err
	}
	*d = dt
	return nil
}

func (d *DataType) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: datatype must be a scalar", value.Line)
	}
	if err := d.UnmarshalText([]byte(value.Value)); err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	return nil
}

// Delimiter names the field separator of the data section.
type Delimiter string

const (
	DelimiterSpace Delimiter = "space"
	DelimiterComma Delimiter = "comma"
)

// ParseDelimiter parses s case-insensitively. An empty string is space.
func ParseDelimiter(s string) (Delimiter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "space":
		return DelimiterSpace, nil
	case "comma":
		return DelimiterComma, nil
	}
	return "", fmt.Errorf("unknown delimiter %q", s)
}

// Byte returns the separator byte. Anything but comma is a space.
func (d Delimiter) Byte() byte {
	if d == DelimiterComma {
		return ','
	}
	return ' '
}

func (d *Delimiter) UnmarshalText(text []byte) error {
	v, err := ParseDelimiter(string(text))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d *Delimiter) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: delimiter must be a scalar", value.Line)
	}
	if err := d.UnmarshalText([]byte(value.Value)); err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	return nil
}
