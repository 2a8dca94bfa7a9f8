// Copyright (c) 2026 Querio Team
// querioctl - deployment tooling for the Querio RAG service
// This source code is licensed under the MIT license found in the LICENSE file.

package config

import (
	"os"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func testDefaults() map[string]any {
	return map[string]any{
		"database.type":   "sqlite",
		"database.dsn":    "./querioctl.db",
		"language":        "en",
		"app.branch":      "main",
		"app.health_port": 8000,
		"app.health_path": "/api/health",
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}

	c, err := LoadConfig[Config](cmd, testDefaults(), nil)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if c.Database.Type != "sqlite" {
		t.Errorf("expected default database type sqlite, got %q", c.Database.Type)
	}
	if c.App.HealthPath != "/api/health" {
		t.Errorf("expected default health path, got %q", c.App.HealthPath)
	}
	if c.App.HealthPort != 8000 {
		t.Errorf("expected default health port 8000, got %d", c.App.HealthPort)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("QUERIOCTL_DATABASE_DSN", "postgres://inventory")

	cmd := &cobra.Command{Use: "test"}
	c, err := LoadConfig[Config](cmd, testDefaults(), nil)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if c.Database.Dsn != "postgres://inventory" {
		t.Errorf("environment override not applied, got %q", c.Database.Dsn)
	}
}

func TestLoadConfigFlagOverride(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("language", "en", "")
	if err := cmd.Flags().Set("language", "de"); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	c, err := LoadConfig[Config](cmd, testDefaults(), nil)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if c.Language != "de" {
		t.Errorf("flag override not applied, got %q", c.Language)
	}
}

func TestEnsureConfigFileFirstRun(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	c := Config{
		Database: DatabaseConfig{Type: "sqlite", Dsn: "./querioctl.db"},
		Language: "en",
	}
	path, err := EnsureConfigFile(&c)
	if err != nil {
		t.Fatalf("EnsureConfigFile failed: %v", err)
	}
	if path == "" {
		t.Fatal("expected a config file to be written on first run")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("written config not readable: %v", err)
	}
	if !strings.Contains(string(data), "type: sqlite") {
		t.Errorf("written config is missing the resolved defaults:\n%s", data)
	}

	// A second run finds the file and writes nothing.
	path, err = EnsureConfigFile(&c)
	if err != nil {
		t.Fatalf("EnsureConfigFile failed on second run: %v", err)
	}
	if path != "" {
		t.Errorf("expected no write when a config file exists, wrote %s", path)
	}
}
