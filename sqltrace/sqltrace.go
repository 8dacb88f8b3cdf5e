// Package sqltrace registers a "sqlite-trace" database/sql driver that
// wraps modernc.org/sqlite and logs every statement through slog.
//
//	import _ "github.com/hazyhaar/cdnmirror/sqltrace"
//	db, err := dbopen.Open("cdnmirror.db", dbopen.WithDriver(sqltrace.DriverName))
//
// Statements log at Debug, at Warn above SlowThreshold, and at Error when
// they fail. Fast PRAGMA statements are not logged.
package sqltrace

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	sqlite "modernc.org/sqlite"
)

// DriverName is the name the tracing driver is registered under.
const DriverName = "sqlite-trace"

// SlowThreshold is the duration above which a statement logs at Warn.
const SlowThreshold = 100 * time.Millisecond

var logger atomic.Pointer[slog.Logger]

// SetLogger sets the logger used by every traced connection. Nil restores
// slog.Default().
func SetLogger(l *slog.Logger) { logger.Store(l) }

func log() *slog.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return slog.Default()
}

func init() {
	sql.Register(DriverName, &tracingDriver{Driver: &sqlite.Driver{}})
}

type tracingDriver struct {
	driver.Driver
}

func (d *tracingDriver) Open(name string) (driver.Conn, error) {
	c, err := d.Driver.Open(name)
	if err != nil {
		return nil, err
	}
	return &conn{Conn: c}, nil
}

type conn struct {
	driver.Conn
}

func (c *conn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (c *conn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	var (
		s   driver.Stmt
		err error
	)
	if pc, ok := c.Conn.(driver.ConnPrepareContext); ok {
		s, err = pc.PrepareContext(ctx, query)
	} else {
		s, err = c.Conn.Prepare(query)
	}
	if err != nil {
		record(ctx, "Prepare", query, 0, err)
		return nil, err
	}
	return &stmt{Stmt: s, query: query}, nil
}

func (c *conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	ec, ok := c.Conn.(driver.ExecerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	start := time.Now()
	res, err := ec.ExecContext(ctx, query, args)
	if err != driver.ErrSkip {
		record(ctx, "Exec", query, time.Since(start), err)
	}
	return res, err
}

func (c *conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	qc, ok := c.Conn.(driver.QueryerContext)
	if !ok {
		return nil, driver.ErrSkip
	}
	start := time.Now()
	rows, err := qc.QueryContext(ctx, query, args)
	if err != driver.ErrSkip {
		record(ctx, "Query", query, time.Since(start), err)
	}
	return rows, err
}

func (c *conn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if bt, ok := c.Conn.(driver.ConnBeginTx); ok {
		return bt.BeginTx(ctx, opts)
	}
	return c.Conn.Begin() //nolint:staticcheck // fallback for drivers without BeginTx
}

type stmt struct {
	driver.Stmt
	query string
}

func (s *stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	start := time.Now()
	var (
		res driver.Result
		err error
	)
	if ec, ok := s.Stmt.(driver.StmtExecContext); ok {
		res, err = ec.ExecContext(ctx, args)
	} else {
		res, err = s.Stmt.Exec(values(args)) //nolint:staticcheck
	}
	record(ctx, "Exec", s.query, time.Since(start), err)
	return res, err
}

func (s *stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	start := time.Now()
	var (
		rows driver.Rows
		err  error
	)
	if qc, ok := s.Stmt.(driver.StmtQueryContext); ok {
		rows, err = qc.QueryContext(ctx, args)
	} else {
		rows, err = s.Stmt.Query(values(args)) //nolint:staticcheck
	}
	record(ctx, "Query", s.query, time.Since(start), err)
	return rows, err
}

func record(ctx context.Context, op, query string, d time.Duration, err error) {
	if err == nil && d < SlowThreshold && strings.HasPrefix(strings.TrimSpace(query), "PRAGMA ") {
		return
	}
	level := slog.LevelDebug
	switch {
	case err != nil:
		level = slog.LevelError
	case d > SlowThreshold:
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{
		slog.String("op", op),
		slog.String("query", compact(query)),
		slog.Duration("duration", d),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	log().LogAttrs(ctx, level, "sqltrace: statement", attrs...)
}

// compact folds the whitespace of multi-line statements.
func compact(q string) string {
	return strings.Join(strings.Fields(q), " ")
}

func values(named []driver.NamedValue) []driver.Value {
	out := make([]driver.Value, len(named))
	for i, nv := range named {
		out[i] = nv.Value
	}
	return out
}
