package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// loggingConnector opens sqlite3 connections whose statements log their SQL,
// arguments and duration at debug level. Use with sql.OpenDB.
type loggingConnector struct {
	dsn    string
	logger *slog.Logger
	driver *sqlite3.SQLiteDriver
}

type loggingConn struct {
	driver.Conn
	logger *slog.Logger
}

type loggingStmt struct {
	driver.Stmt
	query  string
	logger *slog.Logger
}

var errLoggingDriverOpen = errors.New("sqlite3-log: open through sql.OpenDB(NewLoggingConnector(...))")

// NewLoggingConnector returns a driver.Connector for dsn. A nil logger uses slog.Default().
func NewLoggingConnector(dsn string, logger *slog.Logger) driver.Connector {
	if logger == nil {
		logger = slog.Default()
	}
	return &loggingConnector{dsn: dsn, logger: logger, driver: &sqlite3.SQLiteDriver{}}
}

func (c *loggingConnector) Connect(_ context.Context) (driver.Conn, error) {
	conn, err := c.driver.Open(c.dsn)
	if err != nil {
		return nil, err
	}
	return &loggingConn{Conn: conn, logger: c.logger}, nil
}

func (c *loggingConnector) Driver() driver.Driver { return loggingDriver{} }

type loggingDriver struct{}

func (loggingDriver) Open(string) (driver.Conn, error) { return nil, errLoggingDriverOpen }

func (c *loggingConn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (c *loggingConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	var (
		stmt driver.Stmt
		err  error
	)
	if p, ok := c.Conn.(driver.ConnPrepareContext); ok {
		stmt, err = p.PrepareContext(ctx, query)
	} else {
		stmt, err = c.Conn.Prepare(query)
	}
	if err != nil {
		return nil, err
	}
	return &loggingStmt{Stmt: stmt, query: query, logger: c.logger}, nil
}

func (c *loggingConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if b, ok := c.Conn.(driver.ConnBeginTx); ok {
		return b.BeginTx(ctx, opts)
	}
	//nolint:staticcheck // SA1019: fallback when the conn has no BeginTx
	return c.Conn.Begin()
}

//nolint:staticcheck // SA1019: driver.Stmt interface method
func (s *loggingStmt) Exec(args []driver.Value) (driver.Result, error) {
	defer s.logQuery("exec", valuesToSlice(args), time.Now())
	return s.Stmt.Exec(args)
}

func (s *loggingStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	defer s.logQuery("exec", namedValuesToSlice(args), time.Now())
	if e, ok := s.Stmt.(driver.StmtExecContext); ok {
		return e.ExecContext(ctx, args)
	}
	//nolint:staticcheck // SA1019: fallback when the stmt has no ExecContext
	return s.Stmt.Exec(namedValuesToValues(args))
}

//nolint:staticcheck // SA1019: driver.Stmt interface method
func (s *loggingStmt) Query(args []driver.Value) (driver.Rows, error) {
	defer s.logQuery("query", valuesToSlice(args), time.Now())
	return s.Stmt.Query(args)
}

func (s *loggingStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	defer s.logQuery("query", namedValuesToSlice(args), time.Now())
	if q, ok := s.Stmt.(driver.StmtQueryContext); ok {
		return q.QueryContext(ctx, args)
	}
	//nolint:staticcheck // SA1019: fallback when the stmt has no QueryContext
	return s.Stmt.Query(namedValuesToValues(args))
}

func (s *loggingStmt) logQuery(op string, args []string, start time.Time) {
	s.logger.Debug("sql",
		"op", op,
		"sql", s.query,
		"args", args,
		"duration", time.Since(start),
	)
}

func valuesToSlice(args []driver.Value) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = formatArg(a)
	}
	return out
}

func namedValuesToSlice(args []driver.NamedValue) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if a.Name != "" {
			out[i] = a.Name + "=" + formatArg(a.Value)
		} else {
			out[i] = formatArg(a.Value)
		}
	}
	return out
}

func namedValuesToValues(args []driver.NamedValue) []driver.Value {
	out := make([]driver.Value, len(args))
	for i := range args {
		out[i] = args[i].Value
	}
	return out
}

func formatArg(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}
