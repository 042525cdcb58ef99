//
// Tencent is pleased to support the open source community by making flow-controller available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// flow-controller is licensed under the Apache License Version 2.0.
//
//

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setFullEnv(t *testing.T) {
	t.Helper()
	t.Setenv(EnvDBHost, "db.local")
	t.Setenv(EnvDBUser, "flow")
	t.Setenv(EnvDBPassword, "secret")
	t.Setenv(EnvDBName, "flows")
	t.Setenv(EnvDBPort, "3306")
}

func TestLoad(t *testing.T) {
	setFullEnv(t)
	t.Setenv(EnvAIQueryURL, "http://ai.local/query")
	t.Setenv(EnvLogLevel, "DEBUG")
	t.Setenv(EnvPort, "8080")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "db.local", cfg.DBHost)
	assert.Equal(t, 3306, cfg.DBPort)
	assert.Equal(t, "http://ai.local/query", cfg.AIQueryURL)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestLoadDefaults(t *testing.T) {
	setFullEnv(t)
	t.Setenv(EnvAIQueryURL, "")
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvPort, "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, 5001, cfg.Port)
	assert.Empty(t, cfg.AIQueryURL)
}

func TestLoadMissingVariables(t *testing.T) {
	setFullEnv(t)
	t.Setenv(EnvDBUser, "")
	t.Setenv(EnvDBPort, "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), EnvDBUser)
	assert.Contains(t, err.Error(), EnvDBPort)
	assert.NotContains(t, err.Error(), EnvDBHost)
}

func TestLoadInvalidPort(t *testing.T) {
	setFullEnv(t)
	t.Setenv(EnvDBPort, "not-a-number")
	_, err := Load()
	require.Error(t, err)

	setFullEnv(t)
	t.Setenv(EnvPort, "abc")
	_, err = Load()
	require.Error(t, err)
}

func TestDSN(t *testing.T) {
	setFullEnv(t)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t,
		"flow:secret@tcp(db.local:3306)/flows?charset=utf8mb4&collation=utf8mb4_unicode_ci&parseTime=true&timeout=30s",
		cfg.DSN())
}
