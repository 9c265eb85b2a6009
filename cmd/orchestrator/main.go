// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command orchestrator starts the CSV decision service HTTP server.
//
// This is the main entry point for the containerized service. It reads
// ~/.aleutian/csv.yaml (created on first run) and applies environment
// overrides.
//
// # Environment Variables
//
//   - CSV_PORT: HTTP server port (default: 12210)
//   - CSV_LEDGER_PATH: audit ledger file (default: ./audit_trail.csv)
//   - CSV_ARCHIVE_DIR: logic archive directory (default: logic_archives beside the ledger)
//   - CSV_LOG_LEVEL: debug, info, warn or error
//   - WEAVIATE_SERVICE_URL: Weaviate vector DB URL (optional)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (optional)
//
// # Usage
//
//	# Build
//	go build -o orchestrator ./cmd/orchestrator
//
//	# Run
//	./orchestrator
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/AleutianAI/AleutianCSV/cmd/csvctl/config"
	"github.com/AleutianAI/AleutianCSV/pkg/logging"
	"github.com/AleutianAI/AleutianCSV/services/orchestrator"
)

func main() {
	if err := config.Load(); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg := config.Global

	lc := cfg.LoggerConfig(orchestrator.ServiceName)
	lc.JSON = true
	logger := logging.New(lc)
	defer logger.Close()

	logger.Info("Starting decision service",
		"port", cfg.Server.Port,
		"ledger", cfg.Ledger.Path,
		"weaviate_url", cfg.Retrieval.WeaviateURL,
	)

	svcCfg := cfg.Orchestrator()
	svcCfg.Logger = logger.Slog()
	svc, err := orchestrator.New(svcCfg)
	if err != nil {
		logger.Error("Failed to create decision service", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Run blocks until a signal arrives and the server has drained.
	if err := svc.Run(ctx); err != nil {
		logger.Error("Decision service error", "error", err)
		os.Exit(1)
	}
}
