//
// Tencent is pleased to support the open source community by making flow-controller available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// flow-controller is licensed under the Apache License Version 2.0.
//
//

// Command flowcontroller runs the conversational flow controller service.
package main

import (
	"context"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"trpc.group/trpc-go/flow-controller/aiquery"
	"trpc.group/trpc-go/flow-controller/engine"
	"trpc.group/trpc-go/flow-controller/flow"
	"trpc.group/trpc-go/flow-controller/internal/config"
	"trpc.group/trpc-go/flow-controller/log"
	serverfc "trpc.group/trpc-go/flow-controller/server/flowcontroller"
	"trpc.group/trpc-go/flow-controller/session/inmemory"
	"trpc.group/trpc-go/flow-controller/storage/mysql"
)

func main() {
	// Optional .env file for local development.
	if err := godotenv.Load(); err == nil {
		log.Debug("loaded environment from .env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration: %v", err)
	}
	log.SetLevel(cfg.LogLevel)

	dbClient, err := mysql.GetClientBuilder()(mysql.WithClientBuilderDSN(cfg.DSN()))
	if err != nil {
		log.Fatalf("mysql client: %v", err)
	}
	defer dbClient.Close()

	var ai *aiquery.Client
	if cfg.AIQueryURL != "" {
		ai = aiquery.NewClient(cfg.AIQueryURL)
	} else {
		log.Warnf("%s not set, gptQuery nodes will fail with a config sentinel", config.EnvAIQueryURL)
		ai = aiquery.NewClient("")
	}

	eng := engine.New(
		flow.NewRegistry(),
		flow.NewLoader(dbClient),
		inmemory.NewService(),
		ai,
	)

	// Load the active flow once at startup. Failure is critical but not
	// fatal: requests retry the load lazily and /reload_flow can recover.
	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	if f, err := eng.ReloadFlow(ctx); err != nil {
		log.Errorf("initial flow load failed: %v", err)
	} else {
		log.Infof("initial flow loaded: %q (id=%d, %d nodes)", f.Name(), f.ID(), f.NodeCount())
	}
	cancel()

	srv := serverfc.New(eng, serverfc.WithDBClient(dbClient))
	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Infof("flow controller listening on %s", cfg.Addr())
	if err := httpServer.ListenAndServe(); err != nil {
		log.Fatalf("http server: %v", err)
	}
}
