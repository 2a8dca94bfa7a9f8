// Copyright (c) 2026 Querio Team
// querioctl - deployment tooling for the Querio RAG service
// This source code is licensed under the MIT license found in the LICENSE file.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config is the root configuration of querioctl. Values are resolved from
// defaults, the YAML config file, QUERIOCTL_* environment variables, and CLI
// flags, in increasing order of precedence.
type Config struct {
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Language string         `mapstructure:"language" yaml:"language"`
	App      AppConfig      `mapstructure:"app" yaml:"app"`
	SSH      SSHConfig      `mapstructure:"ssh" yaml:"ssh"`
	HTTPS    HTTPSConfig    `mapstructure:"https" yaml:"https"`
}

// DatabaseConfig selects the inventory database backend.
type DatabaseConfig struct {
	Type string `mapstructure:"type" yaml:"type"` // sqlite, postgres or mysql
	Dsn  string `mapstructure:"dsn" yaml:"dsn"`
}

// AppConfig describes the Querio application artifact that gets deployed.
type AppConfig struct {
	RepoURL        string `mapstructure:"repo_url" yaml:"repo_url"`
	Branch         string `mapstructure:"branch" yaml:"branch"`
	RemoteDir      string `mapstructure:"remote_dir" yaml:"remote_dir"`
	ComposeProject string `mapstructure:"compose_project" yaml:"compose_project"`
	HealthPort     int    `mapstructure:"health_port" yaml:"health_port"`
	HealthPath     string `mapstructure:"health_path" yaml:"health_path"`
}

// SSHConfig holds the operator-side SSH settings.
type SSHConfig struct {
	// KeyPath is the path to the deploy private key. Empty means agent-only
	// authentication.
	KeyPath string `mapstructure:"key_path" yaml:"key_path"`
}

// HTTPSConfig holds the Let's Encrypt settings used by the https command.
type HTTPSConfig struct {
	Email string `mapstructure:"email" yaml:"email"`
}

// getConfigPath returns the full path for the configuration file.
func getConfigPath(system bool) (string, error) {
	var configDir string
	var err error

	if system {
		// System-wide configuration paths
		switch runtime.GOOS {
		case "windows":
			configDir = filepath.Join(os.Getenv("ProgramData"), "Querioctl")
		default: // Linux, macOS, etc.
			configDir = "/etc/querioctl"
		}
	} else {
		// User-specific configuration paths
		configDir, err = os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("could not get user config directory: %w", err)
		}
		configDir = filepath.Join(configDir, "querioctl")
	}

	return filepath.Join(configDir, "querioctl.yaml"), nil
}

// LoadConfig resolves the layered configuration into T. Defaults have the
// lowest precedence, then the config file, then QUERIOCTL_* environment
// variables, then flags bound from cmd.
func LoadConfig[T any](cmd *cobra.Command, defaults map[string]any, additionalConfigFilePath *string) (T, error) {
	var c T
	v := viper.New()

	// 1. Set defaults
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// 2. Set up file search paths
	v.SetConfigName("querioctl")
	v.SetConfigType("yaml")

	// 3. An explicit config file path from the --config flag has the highest
	// precedence for file-based configuration.
	if additionalConfigFilePath != nil {
		v.SetConfigFile(*additionalConfigFilePath)
	}

	// 4. Add standard config locations
	if userConfigPath, err := getConfigPath(false); err == nil {
		v.AddConfigPath(filepath.Dir(userConfigPath))
	}
	if systemConfigPath, err := getConfigPath(true); err == nil {
		v.AddConfigPath(filepath.Dir(systemConfigPath))
	}
	v.AddConfigPath(".") // Look for querioctl.yaml in current dir

	// 5. Read in the primary config file.
	if err := v.ReadInConfig(); err != nil {
		// It's okay if the file is not found, but other errors are fatal.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return c, err
		}
	}

	// 6. Read from environment variables
	v.AutomaticEnv()
	v.AllowEmptyEnv(true)
	v.SetEnvPrefix("querioctl")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 7. CLI flags
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return c, err
	}

	// parse config
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}

	return c, nil
}

// EnsureConfigFile persists the resolved configuration to the user config dir
// when no config file exists in any of the search locations, so a first run
// leaves a file the operator can inspect and edit. It returns the path
// written, or "" when a config file already exists.
func EnsureConfigFile[T any](c *T) (string, error) {
	for _, candidate := range configFileCandidates() {
		if _, err := os.Stat(candidate); err == nil {
			return "", nil
		}
	}

	path, err := getConfigPath(false)
	if err != nil {
		return "", err
	}
	if err := WriteConfigFile(c, false); err != nil {
		return "", err
	}
	return path, nil
}

// configFileCandidates mirrors the search locations of LoadConfig.
func configFileCandidates() []string {
	var paths []string
	if p, err := getConfigPath(false); err == nil {
		paths = append(paths, p)
	}
	if p, err := getConfigPath(true); err == nil {
		paths = append(paths, p)
	}
	return append(paths, "querioctl.yaml")
}

// WriteConfigFile persists the configuration as YAML. With system set, it
// writes to the system-wide location, otherwise to the user config dir.
func WriteConfigFile[T any](c *T, system bool) error {
	path, err := getConfigPath(system)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	// Create directory if it doesn't exist
	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("could not create config directory %s: %w", configDir, err)
	}

	err = os.WriteFile(path, data, 0600) // Use 0600 for security, as it may contain secrets
	if err != nil {
		return err
	}

	return nil
}
