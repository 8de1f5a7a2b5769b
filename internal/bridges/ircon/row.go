package ircon

import (
	"database/sql"
	"sort"
)

// Field is one column of a row: its name and a nullable text value.
// A null value means the writer did not supply the column at all.
type Field struct {
	Name  string
	Value sql.NullString
}

// NewField returns a field carrying a (possibly empty) value.
func NewField(name, value string) Field {
	return Field{Name: name, Value: sql.NullString{String: value, Valid: true}}
}

// NullField returns a field with no value.
func NullField(name string) Field {
	return Field{Name: name}
}

// Row is an ordered list of fields in table column order.
type Row []Field

// Get returns the value of the first field called name.
func (r Row) Get(name string) (string, bool) {
	for _, f := range r {
		if f.Name == name && f.Value.Valid {
			return f.Value.String, true
		}
	}
	return "", false
}

// Names returns the column names of the row in order.
func (r Row) Names() []string {
	names := make([]string, len(r))
	for i, f := range r {
		names[i] = f.Name
	}
	return names
}

// RowFromValues builds a row from a name/value map, for callers that have no
// column order of their own (MQTT commands, HTTP requests). Recognised
// attributes come first in canonical order, any other names follow sorted.
func RowFromValues(values map[string]string) Row {
	row := make(Row, 0, len(values))
	for _, a := range Attributes() {
		if v, ok := values[a.String()]; ok {
			row = append(row, NewField(a.String(), v))
		}
	}

	var extra []string
	for name := range values {
		if _, ok := LookupAttribute(name); !ok {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		row = append(row, NewField(name, values[name]))
	}
	return row
}
