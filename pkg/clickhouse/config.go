package clickhouse

import "time"

// ClientOption overrides part of ClientConfig.
type ClientOption func(*ClientConfig)

// ClientConfig describes the connection to the trade history database.
// History scans for the estimator and batched inserts from the ingest
// pipeline share the one pool.
type ClientConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// UseHTTP switches from the native protocol to HTTP, for deployments
	// that only reach ClickHouse through an HTTP proxy.
	UseHTTP bool

	// Async inserts let the ingest batcher hand rows off without waiting
	// for the server-side flush; WaitForAsync turns the ack back on.
	AsyncInsert  bool
	WaitForAsync bool

	// MaxExecTime caps query execution server-side. History scans are
	// bounded by lookback, so anything long-running is a runaway.
	MaxExecTime time.Duration
}

// WithHost sets the server host. NewClient refuses an empty one.
func WithHost(host string) ClientOption {
	return func(c *ClientConfig) {
		c.Host = host
	}
}

// WithPort sets the server port. It has to match the protocol picked by
// WithHTTP (9000 native, 8123 HTTP in a stock install).
func WithPort(port int) ClientOption {
	return func(c *ClientConfig) {
		c.Port = port
	}
}

// WithDatabase selects the database holding the trade tables.
func WithDatabase(database string) ClientOption {
	return func(c *ClientConfig) {
		c.Database = database
	}
}

// WithCredentials sets the user and password.
func WithCredentials(user, password string) ClientOption {
	return func(c *ClientConfig) {
		c.User = user
		c.Password = password
	}
}

// WithMaxConnections bounds the pool: open connections in total, and how
// many idle ones stay warm between bursts.
func WithMaxConnections(maxOpen, maxIdle int) ClientOption {
	return func(c *ClientConfig) {
		c.MaxOpenConns = maxOpen
		c.MaxIdleConns = maxIdle
	}
}

// WithTimeouts sets dial, read and write timeouts.
func WithTimeouts(dial, read, write time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.DialTimeout = dial
		c.ReadTimeout = read
		c.WriteTimeout = write
	}
}

// WithHTTP selects the HTTP protocol instead of native TCP.
func WithHTTP(useHTTP bool) ClientOption {
	return func(c *ClientConfig) {
		c.UseHTTP = useHTTP
	}
}

// WithAsyncInsert enables async_insert, optionally waiting for the server
// ack on each batch.
func WithAsyncInsert(enabled, wait bool) ClientOption {
	return func(c *ClientConfig) {
		c.AsyncInsert = enabled
		c.WaitForAsync = wait
	}
}

// WithMaxExecutionTime sets max_execution_time on every query.
func WithMaxExecutionTime(d time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.MaxExecTime = d
	}
}
