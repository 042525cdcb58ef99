//
// Tencent is pleased to support the open source community by making flow-controller available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// flow-controller is licensed under the Apache License Version 2.0.
//
//

// Package mysql provides the mysql client used by the flow store.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// ClientInterface defines the interface for database operations.
// This interface abstracts the operations needed by the flow loader and the
// health probe, making it easy to inject mock implementations for testing.
type ClientInterface interface {
	// QueryRowContext executes a query that is expected to return at most one row.
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row

	// Ping verifies a connection to the database is still alive.
	Ping() error

	// Close closes the database connection.
	Close() error
}

type clientBuilder func(builderOpts ...ClientBuilderOpt) (ClientInterface, error)

var globalBuilder clientBuilder = DefaultClientBuilder

// SetClientBuilder sets the mysql client builder.
func SetClientBuilder(builder clientBuilder) {
	globalBuilder = builder
}

// GetClientBuilder gets the mysql client builder.
func GetClientBuilder() clientBuilder {
	return globalBuilder
}

// DefaultClientBuilder is the default mysql client builder. The connection is
// established lazily: the flow store must stay constructible while the
// database is down, so no ping happens here. Connectivity surfaces through
// Ping and through failing queries, both of which keep the previously loaded
// flow in effect.
func DefaultClientBuilder(builderOpts ...ClientBuilderOpt) (ClientInterface, error) {
	o := &ClientBuilderOpts{}
	for _, opt := range builderOpts {
		opt(o)
	}

	if o.DSN == "" {
		return nil, errors.New("mysql: dsn is empty")
	}

	db, err := sql.Open("mysql", o.DSN)
	if err != nil {
		return nil, fmt.Errorf("mysql: open connection: %w", err)
	}

	// Set connection pool settings if provided.
	if o.MaxOpenConns > 0 {
		db.SetMaxOpenConns(o.MaxOpenConns)
	}
	if o.MaxIdleConns > 0 {
		db.SetMaxIdleConns(o.MaxIdleConns)
	}
	if o.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(o.ConnMaxLifetime)
	}
	if o.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(o.ConnMaxIdleTime)
	}

	return db, nil
}

// ClientBuilderOpt is the option for the mysql client.
type ClientBuilderOpt func(*ClientBuilderOpts)

// ClientBuilderOpts is the options for the mysql client.
type ClientBuilderOpts struct {
	// DSN is the mysql data source name for clientBuilder.
	// Format: [username[:password]@][protocol[(address)]]/dbname[?param1=value1&...&paramN=valueN]
	// Example: user:password@tcp(localhost:3306)/dbname?charset=utf8mb4&timeout=30s
	DSN string

	// MaxOpenConns is the maximum number of open connections to the database.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of connections in the idle connection pool.
	MaxIdleConns int

	// ConnMaxLifetime is the maximum amount of time a connection may be reused.
	ConnMaxLifetime time.Duration

	// ConnMaxIdleTime is the maximum amount of time a connection may be idle.
	ConnMaxIdleTime time.Duration
}

// WithClientBuilderDSN sets the mysql client DSN for clientBuilder.
func WithClientBuilderDSN(dsn string) ClientBuilderOpt {
	return func(opts *ClientBuilderOpts) {
		opts.DSN = dsn
	}
}

// WithMaxOpenConns sets the maximum number of open connections to the database.
func WithMaxOpenConns(n int) ClientBuilderOpt {
	return func(opts *ClientBuilderOpts) {
		opts.MaxOpenConns = n
	}
}

// WithMaxIdleConns sets the maximum number of connections in the idle connection pool.
func WithMaxIdleConns(n int) ClientBuilderOpt {
	return func(opts *ClientBuilderOpts) {
		opts.MaxIdleConns = n
	}
}

// WithConnMaxLifetime sets the maximum amount of time a connection may be reused.
func WithConnMaxLifetime(d time.Duration) ClientBuilderOpt {
	return func(opts *ClientBuilderOpts) {
		opts.ConnMaxLifetime = d
	}
}

// WithConnMaxIdleTime sets the maximum amount of time a connection may be idle.
func WithConnMaxIdleTime(d time.Duration) ClientBuilderOpt {
	return func(opts *ClientBuilderOpts) {
		opts.ConnMaxIdleTime = d
	}
}
