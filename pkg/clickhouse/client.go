package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
)

// Client is the database/sql pool shared by the bar feed and the
// prediction store.
type Client struct {
	db   *sql.DB
	addr string
}

func NewClient(opts ...ClientOption) (*Client, error) {
	s := defaultSettings()
	for _, opt := range opts {
		opt(s)
	}
	if s.host == "" {
		return nil, fmt.Errorf("clickhouse host is required")
	}
	s.opts.Addr = []string{s.addr()}

	db := ch.OpenDB(&s.opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping %s: %w", s.addr(), err)
	}
	return &Client{db: db, addr: s.addr()}, nil
}

func (c *Client) DB() *sql.DB { return c.db }

func (c *Client) Health(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("clickhouse %s: %w", c.addr, err)
	}
	return nil
}

func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// InitSchema applies stmts, or Schema when none are given. Statements must
// be idempotent since this runs on every start.
func (c *Client) InitSchema(ctx context.Context, stmts ...string) error {
	if len(stmts) == 0 {
		stmts = Schema
	}
	for i, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
