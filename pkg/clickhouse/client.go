package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
)

// InsertChunkSize caps the rows per INSERT statement.
const InsertChunkSize = 2000

// Client is a database/sql pool over clickhouse-go plus the few helpers
// the bar store and result sink share.
type Client struct {
	db           *sql.DB
	database     string
	writeTimeout time.Duration
}

func NewClient(opts ...ClientOption) (*Client, error) {
	cfg := defaultClientConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Host == "" {
		return nil, errors.New("clickhouse: host is required")
	}

	db := ch.OpenDB(cfg.options())
	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &Client{db: db, database: cfg.Database, writeTimeout: cfg.WriteTimeout}, nil
}

// NewClientFromDB wraps an open pool, e.g. a sqlmock in tests.
func NewClientFromDB(db *sql.DB, database string) *Client {
	return &Client{db: db, database: database}
}

func (c *Client) DB() *sql.DB { return c.db }

func (c *Client) Database() string { return c.database }

// Table qualifies name with the client's database.
func (c *Client) Table(name string) string {
	return c.database + "." + name
}

func (c *Client) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// InitSchema runs idempotent DDL in order and stops at the first failure.
func (c *Client) InitSchema(ctx context.Context, stmts []string) error {
	for i, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}

// InsertRows writes rows as multi-row VALUES statements of at most
// InsertChunkSize rows. Chunks already written stay written when a later
// one fails.
func (c *Client) InsertRows(ctx context.Context, table string, columns []string, rows [][]interface{}) error {
	if len(rows) == 0 {
		return nil
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return fmt.Errorf("insert %s: row %d has %d values, want %d", table, i, len(row), len(columns))
		}
	}

	head := insertHead(table, columns)
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",") + ")"
	for start := 0; start < len(rows); start += InsertChunkSize {
		chunk := rows[start:min(start+InsertChunkSize, len(rows))]
		args := make([]interface{}, 0, len(chunk)*len(columns))
		for _, row := range chunk {
			args = append(args, row...)
		}
		stmt := head + strings.TrimSuffix(strings.Repeat(tuple+",", len(chunk)), ",")
		if err := c.exec(ctx, stmt, args); err != nil {
			return fmt.Errorf("insert %s rows %d-%d: %w", table, start, start+len(chunk)-1, err)
		}
	}
	return nil
}

func (c *Client) exec(ctx context.Context, stmt string, args []interface{}) error {
	if c.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.writeTimeout)
		defer cancel()
	}
	_, err := c.db.ExecContext(ctx, stmt, args...)
	return err
}

func insertHead(table string, columns []string) string {
	return "INSERT INTO " + table + " (" + strings.Join(columns, ", ") + ") VALUES "
}
