package sqltable

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/nerrad567/ircon-bridge/internal/bridges/ircon"
)

// ModuleName is the name passed to CREATE VIRTUAL TABLE ... USING.
const ModuleName = "ircon"

// deviceArg is the module argument that overrides the identifier.
const deviceArg = "device"

// TableSpec describes one device table.
type TableSpec struct {
	// Name is the SQL table name.
	Name string

	// Identifier is the device "host[:port]". Defaults to Name.
	Identifier string

	// Columns in table order. Defaults to the four device attributes.
	Columns []string
}

// ParseModuleArgs builds a TableSpec from virtual table constructor
// arguments: args[0] module, args[1] schema, args[2] table name, then the
// module arguments. Each module argument is either a column definition
// whose first word is the column name (any declared type is ignored, every
// column is TEXT) or device=<identifier>.
func ParseModuleArgs(args []string) (TableSpec, error) {
	if len(args) < 3 {
		return TableSpec{}, fmt.Errorf("%w: expected at least 3, got %d", ErrInvalidArgs, len(args))
	}

	spec := TableSpec{Name: args[2]}
	seen := make(map[string]bool)
	for _, arg := range args[3:] {
		arg = strings.TrimSpace(arg)
		if arg == "" {
			continue
		}

		if key, value, ok := strings.Cut(arg, "="); ok && strings.EqualFold(strings.TrimSpace(key), deviceArg) {
			spec.Identifier = dequote(strings.TrimSpace(value))
			if spec.Identifier == "" {
				return TableSpec{}, fmt.Errorf("%w: empty device", ErrInvalidArgs)
			}
			continue
		}

		name := dequote(firstWord(arg))
		if name == "" {
			return TableSpec{}, fmt.Errorf("%w: empty column name in %q", ErrInvalidArgs, arg)
		}
		if seen[name] {
			return TableSpec{}, fmt.Errorf("%w: duplicate column %q", ErrInvalidArgs, name)
		}
		seen[name] = true
		spec.Columns = append(spec.Columns, name)
	}

	return spec.withDefaults(), nil
}

func (s TableSpec) withDefaults() TableSpec {
	if s.Identifier == "" {
		s.Identifier = s.Name
	}
	if len(s.Columns) == 0 {
		s.Columns = ircon.AttributeNames()
	}
	return s
}

// DeclareSQL returns the schema statement handed to sqlite3_declare_vtab.
func (s TableSpec) DeclareSQL() string {
	cols := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		cols[i] = quoteIdent(c) + " TEXT"
	}
	return "CREATE TABLE x(" + strings.Join(cols, ", ") + ")"
}

// CreateSQL returns the CREATE VIRTUAL TABLE statement for the spec.
func (s TableSpec) CreateSQL() string {
	s = s.withDefaults()

	args := make([]string, 0, len(s.Columns)+1)
	if s.Identifier != s.Name {
		args = append(args, deviceArg+"="+quoteLiteral(s.Identifier))
	}
	for _, c := range s.Columns {
		args = append(args, quoteIdent(c))
	}
	return fmt.Sprintf("CREATE VIRTUAL TABLE IF NOT EXISTS %s USING %s(%s)",
		quoteIdent(s.Name), ModuleName, strings.Join(args, ", "))
}

// EnsureTable creates the virtual table for spec if it does not exist.
// Creating the table opens the device connection, so it fails with the
// device's open error when the device is unreachable.
func EnsureTable(ctx context.Context, db *sql.DB, spec TableSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("%w: table name required", ErrInvalidArgs)
	}
	if _, err := db.ExecContext(ctx, spec.CreateSQL()); err != nil {
		return fmt.Errorf("creating table %s: %w", spec.Name, err)
	}
	return nil
}

// Tables lists the ircon virtual tables in the main schema.
func Tables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND sql LIKE ? ORDER BY name`,
		"%USING "+ModuleName+"%")
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func firstWord(s string) string {
	if s == "" {
		return ""
	}
	// Quoted names may contain spaces.
	switch s[0] {
	case '"', '`', '\'':
		if end := strings.IndexByte(s[1:], s[0]); end >= 0 {
			return s[:end+2]
		}
	case '[':
		if end := strings.IndexByte(s, ']'); end >= 0 {
			return s[:end+1]
		}
	}
	if i := strings.IndexAny(s, " \t\r\n"); i >= 0 {
		return s[:i]
	}
	return s
}

func dequote(s string) string {
	if len(s) < 2 {
		return s
	}
	first, last := s[0], s[len(s)-1]
	switch {
	case first == '[' && last == ']':
		return s[1 : len(s)-1]
	case (first == '"' || first == '\'' || first == '`') && last == first:
		q := string(first)
		return strings.ReplaceAll(s[1:len(s)-1], q+q, q)
	}
	return s
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return `'` + strings.ReplaceAll(s, `'`, `''`) + `'`
}
