package console

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/nerrad567/ircon-bridge/internal/bridges/ircon"
	"github.com/nerrad567/ircon-bridge/internal/discovery"
	"github.com/nerrad567/ircon-bridge/internal/sqltable"
)

// ErrQuit is returned by Exec for .quit and .exit.
var ErrQuit = errors.New("quit")

// nullText is printed for NULL result values.
const nullText = "NULL"

// Options configures a Console.
type Options struct {
	DB       *sql.DB
	Registry *ircon.Registry

	// Discover is optional; without it .discover reports that discovery
	// is disabled.
	Discover func(ctx context.Context) ([]discovery.Device, error)

	// Out receives query results. Default: io.Discard.
	Out io.Writer
}

// Console executes SQL statements and dot-commands against the bridge
// database and prints the results as aligned columns.
//
// It is not safe for concurrent use.
type Console struct {
	db       *sql.DB
	registry *ircon.Registry
	discover func(ctx context.Context) ([]discovery.Device, error)
	out      io.Writer
}

// New creates a Console.
func New(opts Options) *Console {
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	return &Console{
		db:       opts.DB,
		registry: opts.Registry,
		discover: opts.Discover,
		out:      out,
	}
}

// SetOutput redirects results, for example to the line editor's stdout.
func (c *Console) SetOutput(w io.Writer) {
	c.out = w
}

// Exec runs one complete SQL statement or dot-command.
func (c *Console) Exec(ctx context.Context, input string) error {
	input = strings.TrimSpace(input)
	switch {
	case input == "":
		return nil
	case strings.HasPrefix(input, "."):
		return c.dotCommand(ctx, input)
	case returnsRows(input):
		return c.query(ctx, input)
	default:
		_, err := c.db.ExecContext(ctx, input)
		return err
	}
}

// RunScript executes every statement read from r, stopping at the first
// error. Dot-commands must be on a line of their own.
func (c *Console) RunScript(ctx context.Context, r io.Reader) error {
	var buf Buffer
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		for _, stmt := range buf.Feed(scanner.Text()) {
			if err := c.Exec(ctx, stmt); err != nil {
				if errors.Is(err, ErrQuit) {
					return nil
				}
				return fmt.Errorf("%s: %w", firstLine(stmt), err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading script: %w", err)
	}
	if rest := buf.Flush(); rest != "" {
		if err := c.Exec(ctx, rest); err != nil && !errors.Is(err, ErrQuit) {
			return fmt.Errorf("%s: %w", firstLine(rest), err)
		}
	}
	return nil
}

func (c *Console) query(ctx context.Context, query string) error {
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(cols, "\t"))

	values := make([]sql.NullString, len(cols))
	dest := make([]any, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return err
		}
		cells := make([]string, len(values))
		for i, v := range values {
			cells[i] = nullText
			if v.Valid {
				cells[i] = v.String
			}
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return tw.Flush()
}

func (c *Console) dotCommand(ctx context.Context, input string) error {
	fields := strings.Fields(input)
	switch strings.ToLower(fields[0]) {
	case ".help", ".h":
		c.printHelp()
		return nil
	case ".tables":
		return c.cmdTables(ctx)
	case ".schema":
		return c.cmdSchema(ctx, fields[1:])
	case ".devices":
		c.cmdDevices()
		return nil
	case ".discover":
		return c.cmdDiscover(ctx)
	case ".quit", ".exit", ".q":
		return ErrQuit
	default:
		return fmt.Errorf("unknown command %s (type .help for commands)", fields[0])
	}
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `Commands:
  .tables            List ircon device tables
  .schema [table]    Show CREATE statements
  .devices           Show device connections, counters and state
  .discover          Find devices over mDNS and create their tables
  .help              Show this help
  .quit              Exit

SQL statements end with ";" and may span lines:
  CREATE VIRTUAL TABLE "10.0.0.5:9000" USING ircon(mode, temperature, power, angle);
  INSERT INTO "10.0.0.5:9000" (mode) VALUES ('heat');
  SELECT * FROM "10.0.0.5:9000";
  DELETE FROM "10.0.0.5:9000";`)
}

func (c *Console) cmdTables(ctx context.Context) error {
	tables, err := sqltable.Tables(ctx, c.db)
	if err != nil {
		return err
	}
	for _, t := range tables {
		fmt.Fprintln(c.out, t)
	}
	return nil
}

func (c *Console) cmdSchema(ctx context.Context, args []string) error {
	query := "SELECT sql FROM sqlite_master WHERE sql IS NOT NULL"
	var params []any
	if len(args) > 0 {
		query += " AND name = ?"
		params = append(params, strings.Trim(args[0], `"'`))
	}
	query += " ORDER BY name"

	rows, err := c.db.QueryContext(ctx, query, params...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var stmt string
		if err := rows.Scan(&stmt); err != nil {
			return err
		}
		fmt.Fprintln(c.out, stmt+";")
	}
	return rows.Err()
}

func (c *Console) cmdDevices() {
	if c.registry == nil {
		return
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DEVICE\tCONNECTED\tFRAMES\tBYTES\tERRORS\tSTATE")
	for _, id := range c.registry.Identifiers() {
		share, ok := c.registry.Lookup(id)
		if !ok {
			continue
		}
		st := share.Stats()
		fmt.Fprintf(tw, "%s\t%t\t%d\t%d\t%d\t%s\n",
			id, st.Connected, st.FramesTx, st.BytesTx, st.SendErrors, formatState(share.State().Map()))
	}
	tw.Flush()
}

func (c *Console) cmdDiscover(ctx context.Context) error {
	if c.discover == nil {
		return fmt.Errorf("discovery is disabled")
	}
	devices, err := c.discover(ctx)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Fprintln(c.out, "no devices found")
		return nil
	}

	var errs []error
	for _, d := range devices {
		spec := d.TableSpec()
		if err := sqltable.EnsureTable(ctx, c.db, spec); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.Instance, err))
			fmt.Fprintf(c.out, "%s\t%s\tfailed\n", d.Instance, spec.Identifier)
			continue
		}
		fmt.Fprintf(c.out, "%s\t%s\ttable %s\n", d.Instance, spec.Identifier, spec.Name)
	}
	return errors.Join(errs...)
}

func formatState(state map[string]string) string {
	parts := make([]string, 0, len(state))
	for _, name := range ircon.AttributeNames() {
		if v, ok := state[name]; ok {
			parts = append(parts, name+"="+v)
		}
	}
	return strings.Join(parts, " ")
}

// returnsRows reports whether a statement produces a result set.
func returnsRows(stmt string) bool {
	switch strings.ToUpper(firstWord(stmt)) {
	case "SELECT", "PRAGMA", "WITH", "VALUES", "EXPLAIN":
		return true
	}
	return false
}

func firstWord(s string) string {
	s = strings.TrimLeft(s, " \t\r\n(")
	if i := strings.IndexFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '('
	}); i >= 0 {
		return s[:i]
	}
	return s
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
