// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the YAML configuration shared by csvctl and the
// decision service binary.
package config

import (
	"time"

	"github.com/AleutianAI/AleutianCSV/pkg/logging"
	"github.com/AleutianAI/AleutianCSV/services/orchestrator"
)

// CSVConfig is the on-disk configuration, by default ~/.aleutian/csv.yaml.
type CSVConfig struct {
	// Server: HTTP listener and write-route throttling
	Server ServerConfig `yaml:"server"`

	// Ledger: audit trail location and integrity monitors
	Ledger LedgerConfig `yaml:"ledger"`

	// Retrieval: Weaviate passage search. An empty URL disables it.
	Retrieval RetrievalConfig `yaml:"retrieval"`

	Logging LoggingConfig `yaml:"logging"`

	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Port      int     `yaml:"port" validate:"min=1,max=65535"`
	RateLimit float64 `yaml:"rate_limit" validate:"gte=0"` // requests per second, 0 = off
	RateBurst int     `yaml:"rate_burst" validate:"gte=0"`
	GinMode   string  `yaml:"gin_mode,omitempty" validate:"omitempty,oneof=debug release test"`
}

type LedgerConfig struct {
	Path          string        `yaml:"path" validate:"required"`
	ArchiveDir    string        `yaml:"archive_dir,omitempty"` // default: logic_archives beside Path
	Watch         bool          `yaml:"watch"`
	SweepInterval time.Duration `yaml:"sweep_interval" validate:"gte=0"` // 0 = no scheduled sweep
	KnownVersions []string      `yaml:"known_versions,omitempty"`
}

type RetrievalConfig struct {
	WeaviateURL string  `yaml:"weaviate_url,omitempty" validate:"omitempty,url"`
	Class       string  `yaml:"class"`
	TopK        int     `yaml:"top_k" validate:"gte=0"`
	MinScore    float64 `yaml:"min_score" validate:"gte=0,lte=1"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Dir   string `yaml:"dir,omitempty"`
	JSON  bool   `yaml:"json"`
}

type TelemetryConfig struct {
	OTelEndpoint string `yaml:"otel_endpoint,omitempty"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() CSVConfig {
	return CSVConfig{
		Server: ServerConfig{
			Port:      orchestrator.DefaultPort,
			RateLimit: 10,
			RateBurst: orchestrator.DefaultRateBurst,
		},
		Ledger: LedgerConfig{
			Path:          orchestrator.DefaultLedgerPath,
			Watch:         true,
			SweepInterval: 15 * time.Minute,
		},
		Retrieval: RetrievalConfig{
			Class:    "RegulatoryPassage",
			TopK:     5,
			MinScore: 0.35,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Orchestrator converts the file configuration into the service
// configuration. Registry and Logger are left for the caller.
func (c CSVConfig) Orchestrator() orchestrator.Config {
	return orchestrator.Config{
		Port:          c.Server.Port,
		LedgerPath:    c.Ledger.Path,
		ArchiveDir:    c.Ledger.ArchiveDir,
		WeaviateURL:   c.Retrieval.WeaviateURL,
		WeaviateClass: c.Retrieval.Class,
		TopK:          c.Retrieval.TopK,
		MinScore:      c.Retrieval.MinScore,
		OTelEndpoint:  c.Telemetry.OTelEndpoint,
		RateLimit:     c.Server.RateLimit,
		RateBurst:     c.Server.RateBurst,
		WatchLedger:   c.Ledger.Watch,
		SweepInterval: c.Ledger.SweepInterval,
		KnownVersions: append([]string(nil), c.Ledger.KnownVersions...),
		GinMode:       c.Server.GinMode,
	}
}

// LoggerConfig converts the logging section for the named service.
// An unknown level was already rejected by Validate and falls back to Info.
func (c CSVConfig) LoggerConfig(service string) logging.Config {
	level, _ := logging.ParseLevel(c.Logging.Level)
	return logging.Config{
		Level:   level,
		LogDir:  c.Logging.Dir,
		Service: service,
		JSON:    c.Logging.JSON,
	}
}
