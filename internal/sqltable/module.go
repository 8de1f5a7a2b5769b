//go:build sqlite_vtable || vtable

package sqltable

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/mattn/go-sqlite3"

	"github.com/nerrad567/ircon-bridge/internal/bridges/ircon"
)

// rowID is the rowid of the single row a device table holds.
const rowID = 1

// scanCost is the planner cost of a full scan. There is nothing to index,
// so every plan costs the same.
const scanCost = 10

// Register installs a database/sql driver called driverName whose
// connections know the "ircon" virtual table module. Tables created through
// it are backed by shares from registry.
func Register(driverName string, registry *ircon.Registry, logger ircon.Logger) error {
	if registry == nil {
		return fmt.Errorf("%w: registry is required", ErrInvalidArgs)
	}
	if slices.Contains(sql.Drivers(), driverName) {
		return fmt.Errorf("%w: %s", ErrDriverRegistered, driverName)
	}
	if logger == nil {
		logger = noopLogger{}
	}

	m := &module{registry: registry, logger: logger}
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.CreateModule(ModuleName, m)
		},
	})
	return nil
}

// Supported reports whether virtual tables are compiled in.
func Supported() bool { return true }

// module implements sqlite3.Module.
type module struct {
	registry *ircon.Registry
	logger   ircon.Logger
}

func (m *module) Create(c *sqlite3.SQLiteConn, args []string) (sqlite3.VTab, error) {
	return m.connect(c, args)
}

func (m *module) Connect(c *sqlite3.SQLiteConn, args []string) (sqlite3.VTab, error) {
	return m.connect(c, args)
}

func (m *module) DestroyModule() {}

func (m *module) connect(c *sqlite3.SQLiteConn, args []string) (sqlite3.VTab, error) {
	spec, err := ParseModuleArgs(args)
	if err != nil {
		return nil, err
	}
	if err := c.DeclareVTab(spec.DeclareSQL()); err != nil {
		return nil, fmt.Errorf("declaring %s: %w", spec.Name, err)
	}

	session := ircon.NewSession(m.registry, spec.Identifier)
	if err := session.Open(context.Background()); err != nil {
		return nil, err
	}

	m.logger.Debug("device table attached",
		"table", spec.Name,
		"device", spec.Identifier,
		"session", session.ID(),
	)
	return &table{spec: spec, session: session, logger: m.logger}, nil
}

// table implements sqlite3.VTab and sqlite3.VTabUpdater over one session.
type table struct {
	spec    TableSpec
	session *ircon.Session
	logger  ircon.Logger
}

func (t *table) BestIndex(cst []sqlite3.InfoConstraint, _ []sqlite3.InfoOrderBy) (*sqlite3.IndexResult, error) {
	return &sqlite3.IndexResult{
		Used:          make([]bool, len(cst)),
		EstimatedCost: scanCost,
		EstimatedRows: float64(t.session.EstimateRows()),
	}, nil
}

func (t *table) Disconnect() error {
	t.logger.Debug("device table detached", "table", t.spec.Name, "session", t.session.ID())
	return t.session.Close()
}

func (t *table) Destroy() error {
	return t.Disconnect()
}

func (t *table) Open() (sqlite3.VTabCursor, error) {
	c, err := t.session.NewCursor()
	if err != nil {
		return nil, err
	}
	return &cursor{table: t, cur: c}, nil
}

func (t *table) Insert(_ any, vals []any) (int64, error) {
	row, err := t.row(vals)
	if err != nil {
		return 0, err
	}
	return rowID, t.session.Write(row)
}

func (t *table) Update(_ any, vals []any) error {
	row, err := t.row(vals)
	if err != nil {
		return err
	}
	return t.session.Update(nil, row)
}

func (t *table) Delete(_ any) error {
	return t.session.Delete()
}

// row converts xUpdate column values into a row in table order.
func (t *table) row(vals []any) (ircon.Row, error) {
	if len(vals) != len(t.spec.Columns) {
		return nil, fmt.Errorf("%w: %d values for %d columns", ErrInvalidArgs, len(vals), len(t.spec.Columns))
	}

	row := make(ircon.Row, len(vals))
	for i, v := range vals {
		name := t.spec.Columns[i]
		switch val := v.(type) {
		case nil:
			row[i] = ircon.NullField(name)
		case string:
			row[i] = ircon.NewField(name, val)
		case []byte:
			row[i] = ircon.NewField(name, string(val))
		case int64:
			row[i] = ircon.NewField(name, strconv.FormatInt(val, 10))
		case float64:
			row[i] = ircon.NewField(name, strconv.FormatFloat(val, 'f', -1, 64))
		case bool:
			row[i] = ircon.NewField(name, strconv.FormatBool(val))
		default:
			row[i] = ircon.NewField(name, fmt.Sprint(val))
		}
	}
	return row, nil
}

// cursor implements sqlite3.VTabCursor. It yields the device's single row.
type cursor struct {
	table *table
	cur   *ircon.Cursor
	row   ircon.Row
	eof   bool
}

func (c *cursor) Filter(_ int, _ string, _ []any) error {
	c.cur.Init()
	return c.advance()
}

func (c *cursor) Next() error {
	return c.advance()
}

func (c *cursor) advance() error {
	row, err := c.cur.Next(c.table.spec.Columns)
	if errors.Is(err, ircon.ErrEndOfData) {
		c.row, c.eof = nil, true
		return nil
	}
	if err != nil {
		return err
	}
	c.row, c.eof = row, false
	return nil
}

func (c *cursor) EOF() bool {
	return c.eof
}

func (c *cursor) Column(ctx *sqlite3.SQLiteContext, col int) error {
	if col < 0 || col >= len(c.row) {
		ctx.ResultNull()
		return nil
	}
	ctx.ResultText(c.row[col].Value.String)
	return nil
}

func (c *cursor) Rowid() (int64, error) {
	return rowID, nil
}

func (c *cursor) Close() error {
	return nil
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
