// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianCSV/pkg/logging"
	"github.com/AleutianAI/AleutianCSV/services/compliance/faults"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadFile_CreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".aleutian", "csv.yaml")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "sweep_interval: 15m0s")

	var onDisk CSVConfig
	require.NoError(t, yaml.Unmarshal(data, &onDisk))
	assert.Equal(t, DefaultConfig(), onDisk)
}

func TestLoadFile_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "csv.yaml")
	body := `
server:
  port: 8088
ledger:
  path: /var/lib/csv/audit_trail.csv
  sweep_interval: 1h
  known_versions: ["2nd Ed."]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, "/var/lib/csv/audit_trail.csv", cfg.Ledger.Path)
	assert.Equal(t, time.Hour, cfg.Ledger.SweepInterval)
	assert.Equal(t, []string{"2nd Ed."}, cfg.Ledger.KnownVersions)
	assert.Equal(t, "RegulatoryPassage", cfg.Retrieval.Class)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFile_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "csv.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0644))

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"CSV_PORT":                    "9090",
		"CSV_LEDGER_PATH":             "/data/audit.csv",
		"CSV_ARCHIVE_DIR":             "/data/archives",
		"CSV_LOG_LEVEL":               "DEBUG",
		"WEAVIATE_SERVICE_URL":        `"http://weaviate:8080"`,
		"OTEL_EXPORTER_OTLP_ENDPOINT": "otel:4317",
	}
	cfg := DefaultConfig()
	ApplyEnv(&cfg, func(k string) string { return env[k] })

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/data/audit.csv", cfg.Ledger.Path)
	assert.Equal(t, "/data/archives", cfg.Ledger.ArchiveDir)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "http://weaviate:8080", cfg.Retrieval.WeaviateURL)
	assert.Equal(t, "otel:4317", cfg.Telemetry.OTelEndpoint)
}

func TestApplyEnv_IgnoresBadPort(t *testing.T) {
	cfg := DefaultConfig()
	ApplyEnv(&cfg, func(k string) string {
		if k == "CSV_PORT" {
			return "twelve"
		}
		return ""
	})
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CSVConfig)
		wantErr bool
	}{
		{"defaults", func(*CSVConfig) {}, false},
		{"port zero", func(c *CSVConfig) { c.Server.Port = 0 }, true},
		{"port too high", func(c *CSVConfig) { c.Server.Port = 70000 }, true},
		{"negative rate", func(c *CSVConfig) { c.Server.RateLimit = -1 }, true},
		{"unknown gin mode", func(c *CSVConfig) { c.Server.GinMode = "verbose" }, true},
		{"empty ledger path", func(c *CSVConfig) { c.Ledger.Path = "" }, true},
		{"negative sweep", func(c *CSVConfig) { c.Ledger.SweepInterval = -time.Minute }, true},
		{"bad weaviate url", func(c *CSVConfig) { c.Retrieval.WeaviateURL = "weaviate" }, true},
		{"weaviate url", func(c *CSVConfig) { c.Retrieval.WeaviateURL = "http://weaviate:8080" }, false},
		{"min score above one", func(c *CSVConfig) { c.Retrieval.MinScore = 1.5 }, true},
		{"unknown log level", func(c *CSVConfig) { c.Logging.Level = "trace" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := Validate(cfg)
			if tt.wantErr {
				assert.ErrorIs(t, err, faults.ErrConfiguration)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestOrchestratorConversion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ledger.KnownVersions = []string{"2nd Ed."}
	cfg.Retrieval.WeaviateURL = "http://weaviate:8080"

	oc := cfg.Orchestrator()
	assert.Equal(t, cfg.Server.Port, oc.Port)
	assert.Equal(t, cfg.Ledger.Path, oc.LedgerPath)
	assert.Equal(t, cfg.Ledger.SweepInterval, oc.SweepInterval)
	assert.True(t, oc.WatchLedger)
	assert.Equal(t, "http://weaviate:8080", oc.WeaviateURL)
	assert.Equal(t, 0.35, oc.MinScore)
	assert.Nil(t, oc.Registry)

	oc.KnownVersions[0] = "changed"
	assert.Equal(t, "2nd Ed.", cfg.Ledger.KnownVersions[0])
}

func TestLoggerConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging = LoggingConfig{Level: "warn", Dir: "/tmp/logs", JSON: true}

	lc := cfg.LoggerConfig("csvctl")
	assert.Equal(t, logging.LevelWarn, lc.Level)
	assert.Equal(t, "/tmp/logs", lc.LogDir)
	assert.Equal(t, "csvctl", lc.Service)
	assert.True(t, lc.JSON)
}
