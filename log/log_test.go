//
// Tencent is pleased to support the open source community by making flow-controller available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// flow-controller is licensed under the Apache License Version 2.0.
//
//

package log_test

import (
	"testing"

	"trpc.group/trpc-go/flow-controller/log"
)

func TestLog(t *testing.T) {
	original := log.Default
	defer func() { log.Default = original }()

	log.Default = &noopLogger{}
	log.Debug("test")
	log.Debugf("test")
	log.Info("test")
	log.Infof("test")
	log.Warn("test")
	log.Warnf("test")
	log.Error("test")
	log.Errorf("test")
	log.Fatal("test")
	log.Fatalf("test")
}

func TestSetLevel(t *testing.T) {
	// SetLevel must tolerate the upper-case values arriving via LOG_LEVEL.
	for _, level := range []string{"DEBUG", "INFO", "WARNING", "warn", "ERROR", "fatal", "bogus", ""} {
		log.SetLevel(level)
	}
	log.SetLevel(log.LevelInfo)
}

type noopLogger struct{}

func (*noopLogger) Debug(args ...any)                 {}
func (*noopLogger) Debugf(format string, args ...any) {}
func (*noopLogger) Info(args ...any)                  {}
func (*noopLogger) Infof(format string, args ...any)  {}
func (*noopLogger) Warn(args ...any)                  {}
func (*noopLogger) Warnf(format string, args ...any)  {}
func (*noopLogger) Error(args ...any)                 {}
func (*noopLogger) Errorf(format string, args ...any) {}
func (*noopLogger) Fatal(args ...any)                 {}
func (*noopLogger) Fatalf(format string, args ...any) {}
