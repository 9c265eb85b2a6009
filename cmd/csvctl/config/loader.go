// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/AleutianAI/AleutianCSV/services/compliance/faults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var (
	// Global is a singleton instance
	Global CSVConfig
	once   sync.Once
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// DefaultPath returns ~/.aleutian/csv.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".aleutian", "csv.yaml"), nil
}

// Load ensures the config at DefaultPath, with environment overrides, is
// loaded into the Global variable.
func Load() error {
	var err error
	once.Do(func() {
		var path string
		if path, err = DefaultPath(); err != nil {
			return
		}
		var cfg CSVConfig
		if cfg, err = LoadFile(path); err != nil {
			return
		}
		ApplyEnv(&cfg, os.Getenv)
		if err = Validate(cfg); err != nil {
			return
		}
		Global = cfg
	})
	return err
}

// LoadFile reads the config at path, creating it with DefaultConfig when
// it does not exist. Keys absent from the file keep their defaults.
//
// # Outputs
//
//   - CSVConfig: Parsed configuration. Not yet validated.
//   - error: Non-nil when the file cannot be created, read or parsed.
func LoadFile(path string) (CSVConfig, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := createDefault(path); err != nil {
			return CSVConfig{}, err
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return CSVConfig{}, fmt.Errorf("failed to read the config file %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return CSVConfig{}, fmt.Errorf("failed to parse the config file %s: %w", path, err)
	}
	return cfg, nil
}

func createDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create the config directory %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ApplyEnv overrides file values from the environment. getenv is
// os.Getenv outside tests. Unparseable numbers are ignored.
//
//   - CSV_PORT
//   - CSV_LEDGER_PATH
//   - CSV_ARCHIVE_DIR
//   - CSV_LOG_LEVEL
//   - WEAVIATE_SERVICE_URL
//   - OTEL_EXPORTER_OTLP_ENDPOINT
func ApplyEnv(cfg *CSVConfig, getenv func(string) string) {
	if v := getenv("CSV_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := getenv("CSV_LEDGER_PATH"); v != "" {
		cfg.Ledger.Path = v
	}
	if v := getenv("CSV_ARCHIVE_DIR"); v != "" {
		cfg.Ledger.ArchiveDir = v
	}
	if v := getenv("CSV_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := getenv("WEAVIATE_SERVICE_URL"); v != "" {
		cfg.Retrieval.WeaviateURL = strings.Trim(v, `"' `)
	}
	if v := getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTelEndpoint = v
	}
}

// Validate checks field constraints. Failures wrap faults.ErrConfiguration.
func Validate(cfg CSVConfig) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", faults.ErrConfiguration, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", faults.ErrConfiguration, strings.Join(msgs, "; "))
}
