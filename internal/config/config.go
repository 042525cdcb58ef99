//
// Tencent is pleased to support the open source community by making flow-controller available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// flow-controller is licensed under the Apache License Version 2.0.
//
//

// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Environment variable names. The database variables carry the historical
// _PYTHON suffix because deployments share them with the service this one
// replaced.
const (
	EnvDBHost     = "DB_HOST_PYTHON"
	EnvDBUser     = "DB_USER_PYTHON"
	EnvDBPassword = "DB_PASSWORD_PYTHON"
	EnvDBName     = "DB_NAME_PYTHON"
	EnvDBPort     = "DB_PORT_PYTHON"
	EnvAIQueryURL = "V50MCP_AI_QUERY_API_URL"
	EnvLogLevel   = "LOG_LEVEL"
	EnvPort       = "PORT"
)

const defaultPort = 5001

// Config holds everything the service reads from the environment.
type Config struct {
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     int

	AIQueryURL string
	LogLevel   string
	Port       int
}

// Load reads the configuration. All five database variables are required;
// the error lists the missing ones by name. AIQueryURL may be empty, in
// which case gptQuery nodes degrade to a configuration-error sentinel.
func Load() (*Config, error) {
	cfg := &Config{
		DBHost:     os.Getenv(EnvDBHost),
		DBUser:     os.Getenv(EnvDBUser),
		DBPassword: os.Getenv(EnvDBPassword),
		DBName:     os.Getenv(EnvDBName),
		AIQueryURL: os.Getenv(EnvAIQueryURL),
		LogLevel:   os.Getenv(EnvLogLevel),
		Port:       defaultPort,
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "INFO"
	}

	var missing []string
	for _, name := range []string{EnvDBHost, EnvDBUser, EnvDBPassword, EnvDBName, EnvDBPort} {
		if os.Getenv(name) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing MySQL environment variables: %s", strings.Join(missing, ", "))
	}

	dbPort, err := strconv.Atoi(os.Getenv(EnvDBPort))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", EnvDBPort, err)
	}
	cfg.DBPort = dbPort

	if raw := os.Getenv(EnvPort); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		cfg.Port = port
	}
	return cfg, nil
}

// DSN builds the MySQL data source name for the go-sql-driver.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&collation=utf8mb4_unicode_ci&parseTime=true&timeout=30s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
	)
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
