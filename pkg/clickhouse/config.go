package clickhouse

import (
	"net"
	"strconv"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
)

// ClientOption adjusts the clickhouse-go options used to open the pool.
type ClientOption func(*settings)

type settings struct {
	host string
	port int
	opts ch.Options
}

func defaultSettings() *settings {
	return &settings{
		port: 9000,
		opts: ch.Options{
			Auth:            ch.Auth{Database: "finsense", Username: "default"},
			Protocol:        ch.Native,
			DialTimeout:     5 * time.Second,
			ReadTimeout:     10 * time.Second,
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			Compression:     &ch.Compression{Method: ch.CompressionLZ4},
			Settings:        ch.Settings{},
		},
	}
}

func (s *settings) addr() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

func WithHost(host string) ClientOption {
	return func(s *settings) { s.host = host }
}

func WithPort(port int) ClientOption {
	return func(s *settings) {
		if port > 0 {
			s.port = port
		}
	}
}

func WithDatabase(database string) ClientOption {
	return func(s *settings) {
		if database != "" {
			s.opts.Auth.Database = database
		}
	}
}

func WithCredentials(user, password string) ClientOption {
	return func(s *settings) {
		if user != "" {
			s.opts.Auth.Username = user
		}
		s.opts.Auth.Password = password
	}
}

func WithMaxConnections(maxOpen, maxIdle int) ClientOption {
	return func(s *settings) {
		s.opts.MaxOpenConns = maxOpen
		s.opts.MaxIdleConns = maxIdle
	}
}

// WithTimeouts sets dial and read timeouts. Write deadlines are left to the
// caller's context since some server versions reject the setting.
func WithTimeouts(dial, read, _ time.Duration) ClientOption {
	return func(s *settings) {
		if dial > 0 {
			s.opts.DialTimeout = dial
		}
		if read > 0 {
			s.opts.ReadTimeout = read
		}
	}
}

// WithHTTP switches from the native protocol to HTTP. HTTP uses gzip since
// the server does not accept lz4 over it.
func WithHTTP(useHTTP bool) ClientOption {
	return func(s *settings) {
		if !useHTTP {
			return
		}
		s.opts.Protocol = ch.HTTP
		s.opts.Compression = &ch.Compression{Method: ch.CompressionGZIP}
	}
}

// WithAsyncInsert lets the server buffer small prediction inserts.
func WithAsyncInsert(enabled, wait bool) ClientOption {
	return func(s *settings) {
		if !enabled {
			return
		}
		s.opts.Settings["async_insert"] = 1
		if wait {
			s.opts.Settings["wait_for_async_insert"] = 1
		}
	}
}

func WithMaxExecutionTime(d time.Duration) ClientOption {
	return func(s *settings) {
		if d > 0 {
			s.opts.Settings["max_execution_time"] = int(d.Seconds())
		}
	}
}
