package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Client is a sqlx pool on the lib/pq driver.
type Client struct {
	db *sqlx.DB
}

type ClientOption func(*poolSettings)

type poolSettings struct {
	dsn         string
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration
}

func WithDSN(dsn string) ClientOption {
	return func(p *poolSettings) { p.dsn = dsn }
}

func WithMaxConnections(maxOpen, maxIdle int) ClientOption {
	return func(p *poolSettings) {
		if maxOpen > 0 {
			p.maxOpen = maxOpen
		}
		if maxIdle > 0 {
			p.maxIdle = maxIdle
		}
	}
}

func WithConnMaxLifetime(d time.Duration) ClientOption {
	return func(p *poolSettings) {
		if d > 0 {
			p.maxLifetime = d
		}
	}
}

// NewClient opens the pool and verifies it with a ping.
func NewClient(opts ...ClientOption) (*Client, error) {
	p := poolSettings{maxOpen: 10, maxIdle: 5, maxLifetime: 5 * time.Minute}
	for _, opt := range opts {
		opt(&p)
	}
	if p.dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := sqlx.ConnectContext(ctx, "postgres", p.dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	db.SetMaxOpenConns(p.maxOpen)
	db.SetMaxIdleConns(p.maxIdle)
	db.SetConnMaxLifetime(p.maxLifetime)
	return &Client{db: db}, nil
}

func (c *Client) DB() *sqlx.DB { return c.db }

func (c *Client) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Migrate applies stmts in one transaction, so a failed statement leaves
// the schema untouched.
func (c *Client) Migrate(ctx context.Context, stmts []string) error {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	for i, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration statement %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}
