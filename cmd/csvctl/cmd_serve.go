// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/AleutianAI/AleutianCSV/pkg/logging"
	"github.com/AleutianAI/AleutianCSV/services/orchestrator"
	"github.com/spf13/cobra"
)

func (c *cli) serveCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the decision service HTTP API",
		Long: `Serves the decision API until interrupted. Uses the server, ledger, retrieval
and telemetry sections of the config file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lc := c.cfg.LoggerConfig(orchestrator.ServiceName)
			lc.Writer = c.stderr
			if c.logLevel != "" {
				lc.Level, _ = logging.ParseLevel(c.logLevel)
			}
			logger := logging.New(lc)
			defer logger.Close()

			cfg := c.cfg.Orchestrator()
			if port > 0 {
				cfg.Port = port
			}
			cfg.Logger = logger.Slog()

			svc, err := orchestrator.New(cfg)
			if err != nil {
				return fmt.Errorf("create decision service: %w", err)
			}
			c.printer.Success(fmt.Sprintf("Serving on :%d (ledger %s)", cfg.Port, cfg.LedgerPath))
			return svc.Run(cmd.Context())
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides config)")
	return cmd
}
