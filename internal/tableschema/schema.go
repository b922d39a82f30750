// Package tableschema parses and serializes the schema strings carried
// in a Structured query (the table schema and, when projecting, a
// derived query schema), and derives a projected sub-schema from a
// comma-separated column-name list.
package tableschema

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrSchemaInvalid covers an empty schema string or a column
// descriptor that does not parse.
var ErrSchemaInvalid = errors.New("tableschema: schema invalid")

// ErrEmptySchema is a more specific ErrSchemaInvalid raised when a
// schema (or a requested projection) names zero columns.
var ErrEmptySchema = fmt.Errorf("tableschema: empty schema: %w", ErrSchemaInvalid)

// ErrUnknownColumn is raised by Project when a requested column name is
// not present in the source schema.
var ErrUnknownColumn = errors.New("tableschema: unknown column")

// ColumnType is the closed set of column types a schema string may declare.
type ColumnType string

const (
	TypeInt    ColumnType = "int"
	TypeFloat  ColumnType = "float"
	TypeString ColumnType = "string"
)

// Column is one ordered column descriptor.
type Column struct {
	Index    int
	Name     string
	Type     ColumnType
	Nullable bool
	IsKey    bool
}

// Schema is an ordered list of column descriptors.
type Schema []Column

// LineitemSchema is the table schema used by the "flatbuf" (Structured)
// query path when the caller has not supplied its own, mirroring the
// columns addressable under the fixed row layout.
var LineitemSchema = Schema{
	{Index: 0, Name: "order_key", Type: TypeInt, IsKey: true},
	{Index: 1, Name: "line_number", Type: TypeInt, IsKey: true},
	{Index: 2, Name: "quantity", Type: TypeFloat},
	{Index: 3, Name: "extended_price", Type: TypeFloat},
	{Index: 4, Name: "discount", Type: TypeFloat},
	{Index: 5, Name: "ship_date", Type: TypeInt},
	{Index: 6, Name: "comment", Type: TypeString, Nullable: true},
}

const columnSep = ";"
const fieldSep = ":"

// Parse parses a schema string of the form
// "name:type:nullable:is_key;name:type:nullable:is_key;...".
func Parse(s string) (Schema, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptySchema
	}

	parts := strings.Split(s, columnSep)
	schema := make(Schema, 0, len(parts))
	idx := 0
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		col, err := parseColumn(part, idx)
		if err != nil {
			return nil, err
		}
		schema = append(schema, col)
		idx++
	}
	if len(schema) == 0 {
		return nil, ErrEmptySchema
	}
	return schema, nil
}

func parseColumn(s string, index int) (Column, error) {
	fields := strings.Split(s, fieldSep)
	if len(fields) != 4 {
		return Column{}, fmt.Errorf("tableschema: column %q has %d fields, want 4: %w", s, len(fields), ErrSchemaInvalid)
	}

	typ := ColumnType(fields[1])
	switch typ {
	case TypeInt, TypeFloat, TypeString:
	default:
		return Column{}, fmt.Errorf("tableschema: column %q has unknown type %q: %w", fields[0], fields[1], ErrSchemaInvalid)
	}

	nullable, err := strconv.ParseBool(normalizeBit(fields[2]))
	if err != nil {
		return Column{}, fmt.Errorf("tableschema: column %q has bad nullable flag %q: %w", fields[0], fields[2], ErrSchemaInvalid)
	}
	isKey, err := strconv.ParseBool(normalizeBit(fields[3]))
	if err != nil {
		return Column{}, fmt.Errorf("tableschema: column %q has bad key flag %q: %w", fields[0], fields[3], ErrSchemaInvalid)
	}

	if fields[0] == "" {
		return Column{}, fmt.Errorf("tableschema: column has empty name: %w", ErrSchemaInvalid)
	}

	return Column{
		Index:    index,
		Name:     fields[0],
		Type:     typ,
		Nullable: nullable,
		IsKey:    isKey,
	}, nil
}

func normalizeBit(s string) string {
	switch s {
	case "0":
		return "false"
	case "1":
		return "true"
	default:
		return s
	}
}

// Serialize writes the canonical form of a schema: flags as 0 or 1, no
// spaces around columns, no empty column slots. serialize(parse(s)) == s
// holds for every string in that form. Parse also accepts other
// spellings (true/false flags, surrounding spaces, empty slots between
// separators); for those, Serialize returns the canonical form, not s.
func Serialize(schema Schema) string {
	parts := make([]string, len(schema))
	for i, col := range schema {
		nullable := "0"
		if col.Nullable {
			nullable = "1"
		}
		isKey := "0"
		if col.IsKey {
			isKey = "1"
		}
		parts[i] = strings.Join([]string{col.Name, string(col.Type), nullable, isKey}, fieldSep)
	}
	return strings.Join(parts, columnSep)
}

// Project derives a sub-schema from full in the order named by
// namesCSV, a comma-separated column-name list. "*" is not handled
// here — callers treat "*" as "use full as-is" before calling Project.
func Project(full Schema, namesCSV string) (Schema, error) {
	namesCSV = strings.TrimSpace(namesCSV)
	if namesCSV == "" {
		return nil, ErrEmptySchema
	}

	byName := make(map[string]Column, len(full))
	for _, col := range full {
		byName[col.Name] = col
	}

	names := strings.Split(namesCSV, ",")
	out := make(Schema, 0, len(names))
	for i, name := range names {
		name = strings.TrimSpace(name)
		col, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("tableschema: column %q: %w", name, ErrUnknownColumn)
		}
		col.Index = i
		out = append(out, col)
	}
	if len(out) == 0 {
		return nil, ErrEmptySchema
	}
	return out, nil
}

// Names returns the column names of a schema, in order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, col := range s {
		names[i] = col.Name
	}
	return names
}
