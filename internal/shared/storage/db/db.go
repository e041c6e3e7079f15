package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as database/sql driver
)

// Options controls pool sizing and how hard Connect tries before giving up.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
	// ConnectAttempts is the number of open+ping rounds; values below 1 mean 1.
	ConnectAttempts int
	RetryDelay      time.Duration
}

var (
	openDB      = sql.Open
	sleep       = sleepContext
	singletonMu sync.Mutex
	singletonDB *sql.DB
)

// IsLambdaRuntime reports whether the current process is running in AWS Lambda.
func IsLambdaRuntime() bool {
	return strings.TrimSpace(os.Getenv("AWS_LAMBDA_FUNCTION_NAME")) != ""
}

// DefaultLambdaOptions keeps the pool small; every warm Lambda holds its own.
// Lambdas fail fast and let the invoker retry.
func DefaultLambdaOptions() Options {
	return Options{
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxIdleTime: 30 * time.Second,
		ConnMaxLifetime: 15 * time.Minute,
		PingTimeout:     3 * time.Second,
		ConnectAttempts: 1,
	}
}

// DefaultServerOptions is used by the API server and the queue worker, which
// often start alongside the database and need a few rounds to reach it.
func DefaultServerOptions() Options {
	return Options{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxIdleTime: 2 * time.Minute,
		ConnMaxLifetime: time.Hour,
		PingTimeout:     5 * time.Second,
		ConnectAttempts: 5,
		RetryDelay:      time.Second,
	}
}

// DefaultMigrateOptions returns defaults for the one-shot migrate command.
func DefaultMigrateOptions() Options {
	opts := DefaultServerOptions()
	opts.MaxOpenConns = 1
	opts.MaxIdleConns = 1
	return opts
}

// OptionsFromEnv overrides defaults with DB_* env vars if present.
func OptionsFromEnv(defaults Options) Options {
	opts := defaults
	ints := map[string]*int{
		"DB_MAX_OPEN_CONNS":   &opts.MaxOpenConns,
		"DB_MAX_IDLE_CONNS":   &opts.MaxIdleConns,
		"DB_CONNECT_ATTEMPTS": &opts.ConnectAttempts,
	}
	durations := map[string]*time.Duration{
		"DB_CONN_MAX_LIFETIME":  &opts.ConnMaxLifetime,
		"DB_CONN_MAX_IDLE_TIME": &opts.ConnMaxIdleTime,
		"DB_PING_TIMEOUT":       &opts.PingTimeout,
		"DB_RETRY_DELAY":        &opts.RetryDelay,
	}
	for key, dst := range ints {
		raw := strings.TrimSpace(os.Getenv(key))
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			log.Printf("db env %s invalid int: %v", key, err)
			continue
		}
		*dst = v
	}
	for key, dst := range durations {
		raw := strings.TrimSpace(os.Getenv(key))
		if raw == "" {
			continue
		}
		v, err := time.ParseDuration(raw)
		if err != nil {
			log.Printf("db env %s invalid duration: %v", key, err)
			continue
		}
		*dst = v
	}
	return opts
}

// Connect opens a pooled *sql.DB for databaseURL and pings it, retrying up to
// opts.ConnectAttempts times with a doubling delay.
func Connect(ctx context.Context, databaseURL string, opts Options) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	attempts := opts.ConnectAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := opts.RetryDelay

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		conn, err := connectOnce(ctx, databaseURL, opts)
		if err == nil {
			stats := conn.Stats()
			log.Printf("db connected: attempt=%d open=%d max_open=%d", attempt, stats.OpenConnections, stats.MaxOpenConnections)
			return conn, nil
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		log.Printf("db connect attempt %d/%d failed: %v", attempt, attempts, err)
		if err := sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		delay *= 2
	}
	return nil, lastErr
}

func connectOnce(ctx context.Context, databaseURL string, opts Options) (*sql.DB, error) {
	conn, err := openDB("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	applyOptions(conn, opts)

	pingTimeout := opts.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return conn, nil
}

// GetSingleton returns one *sql.DB per process. A failed connect is not
// cached, so the next call tries again.
func GetSingleton(ctx context.Context, databaseURL string, opts Options) (*sql.DB, error) {
	singletonMu.Lock()
	defer singletonMu.Unlock()
	if singletonDB != nil {
		return singletonDB, nil
	}
	conn, err := Connect(ctx, databaseURL, opts)
	if err != nil {
		return nil, err
	}
	singletonDB = conn
	return singletonDB, nil
}

func applyOptions(conn *sql.DB, opts Options) {
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 10
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 5
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = time.Hour
	}
	conn.SetMaxOpenConns(opts.MaxOpenConns)
	conn.SetMaxIdleConns(opts.MaxIdleConns)
	conn.SetConnMaxLifetime(opts.ConnMaxLifetime)
	if opts.ConnMaxIdleTime > 0 {
		conn.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
