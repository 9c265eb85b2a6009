// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/AleutianAI/AleutianCSV/cmd/csvctl/config"
	"github.com/AleutianAI/AleutianCSV/pkg/logging"
	"github.com/AleutianAI/AleutianCSV/pkg/ux"
	"github.com/AleutianAI/AleutianCSV/services/compliance/decisions"
	"github.com/AleutianAI/AleutianCSV/services/compliance/ledger"
	"github.com/spf13/cobra"
)

// errReported marks a failure that has already been printed, such as a
// rejected verification or a tampered ledger. main exits non-zero without
// printing it again.
var errReported = errors.New("reported")

// cli holds the global flags and the state built from them in
// PersistentPreRunE.
type cli struct {
	configPath string
	ledgerPath string
	archiveDir string
	output     string
	actor      string
	logLevel   string

	stdout io.Writer
	stderr io.Writer

	cfg     config.CSVConfig
	printer *ux.Printer
	logger  *logging.Logger
}

// newRootCmd builds the command tree writing to stdout and stderr.
func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr}

	rootCmd := &cobra.Command{
		Use:   "csvctl",
		Short: "Computer system validation decisions with a tamper-evident audit trail",
		Long: `csvctl scores change risk, selects testing strategies, verifies requirements
against regulatory passages and records every decision in an append-only,
hash-chained audit ledger.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Close()
			}
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "config file (default ~/.aleutian/csv.yaml)")
	flags.StringVar(&c.ledgerPath, "ledger", "", "audit ledger path (overrides config)")
	flags.StringVar(&c.archiveDir, "archive-dir", "", "logic archive directory (overrides config)")
	flags.StringVarP(&c.output, "output", "o", "auto", "output mode: auto, rich, plain or machine")
	flags.StringVar(&c.actor, "actor", "", "actor recorded in the ledger (default SYSTEM)")
	flags.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn or error")

	rootCmd.AddCommand(
		c.assessCmd(),
		c.strategyCmd(),
		c.deriveCmd(),
		c.verifyCmd(),
		c.rtmCmd(),
		c.logCmd(),
		c.auditCmd(),
		c.serveCmd(),
	)
	return rootCmd
}

// setup loads the config, applies flag overrides and builds the printer
// and logger.
func (c *cli) setup(cmd *cobra.Command, args []string) error {
	path := c.configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return err
	}
	config.ApplyEnv(&cfg, os.Getenv)
	if c.ledgerPath != "" {
		cfg.Ledger.Path = c.ledgerPath
	}
	if c.archiveDir != "" {
		cfg.Ledger.ArchiveDir = c.archiveDir
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	c.cfg = cfg

	stdoutFile, _ := c.stdout.(*os.File)
	mode, err := ux.ParseMode(c.output, stdoutFile)
	if err != nil {
		return err
	}
	c.printer = ux.NewPrinter(c.stdout, c.stderr, mode)

	// Commands log at Warn unless asked; the configured level is for serve.
	lc := cfg.LoggerConfig("csvctl")
	lc.Writer = c.stderr
	lc.Level = logging.LevelWarn
	if c.logLevel != "" {
		if lc.Level, err = logging.ParseLevel(c.logLevel); err != nil {
			return err
		}
	}
	c.logger = logging.New(lc)
	return nil
}

// openLedger opens the configured audit ledger.
func (c *cli) openLedger() (*ledger.AuditLedger, error) {
	opts := []ledger.Option{ledger.WithLogger(c.logger.Slog())}
	if c.cfg.Ledger.ArchiveDir != "" {
		opts = append(opts, ledger.WithArchiveDir(c.cfg.Ledger.ArchiveDir))
	}
	return ledger.New(c.cfg.Ledger.Path, opts...)
}

// orchestrator opens the ledger and wraps it in a decision orchestrator.
func (c *cli) orchestrator() (*decisions.Orchestrator, error) {
	l, err := c.openLedger()
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return decisions.New(l, decisions.WithLogger(c.logger.Slog())), nil
}

// archiveDirPath returns the directory archives are written to.
func (c *cli) archiveDirPath() (string, error) {
	l, err := c.openLedger()
	if err != nil {
		return "", err
	}
	return l.ArchiveDir(), nil
}
