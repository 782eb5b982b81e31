package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rhuss/trellis/pkg/data"
)

// LocalOverlay is the file name of the optional overlay merged on top of
// the config file. It is looked up in the config file's directory.
const LocalOverlay = "config.local.yaml"

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, TRELLIS_CONFIG env, ./config.yaml, /etc/trellis/config.yaml)
//  3. config.local.yaml next to the config file, merged over it
//  4. Environment variable overrides
//  5. File reference resolution (_file suffix)
//  6. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. TRELLIS_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/trellis/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}

	if envPath := os.Getenv("TRELLIS_CONFIG"); envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/trellis/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile parses the file at path, merges the local overlay over it
// when one exists, and decodes the result into cfg. Fields not present in
// either file retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	base, err := readYAMLMap(path)
	if err != nil {
		return err
	}

	overlayPath := filepath.Join(filepath.Dir(path), LocalOverlay)
	if overlayPath != filepath.Clean(path) {
		overlay, err := readYAMLMap(overlayPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return fmt.Errorf("overlay %s: %w", overlayPath, err)
		default:
			// Empty keys in the overlay must not erase base values.
			base = data.Merge(base, data.FilterNotEmptyRecursive(overlay))
		}
	}

	merged, err := yaml.Marshal(base)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(merged, cfg)
}

func readYAMLMap(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m := map[string]any{}
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// applyEnvOverrides maps TRELLIS_* environment variables to config fields.
// Malformed numeric or duration values are reported rather than ignored.
func applyEnvOverrides(cfg *Config) error {
	var errs []error

	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = n
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v := os.Getenv(name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = d
		}
	}

	num("TRELLIS_PORT", &cfg.Server.Port)
	dur("TRELLIS_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	dur("TRELLIS_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	if v := os.Getenv("TRELLIS_MAX_BODY_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("TRELLIS_MAX_BODY_SIZE: %w", err))
		} else {
			cfg.Server.MaxBodySize = n
		}
	}

	str("TRELLIS_LOG_LEVEL", &cfg.Logging.Level)
	str("TRELLIS_LOG_FORMAT", &cfg.Logging.Format)

	if v := os.Getenv("TRELLIS_METRICS_ENABLED"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("TRELLIS_METRICS_ENABLED: %w", err))
		} else {
			cfg.Metrics.Enabled = b
		}
	}
	str("TRELLIS_METRICS_PATH", &cfg.Metrics.Path)

	str("TRELLIS_AUTH_TYPE", &cfg.Auth.Type)
	str("TRELLIS_JWT_ISSUER", &cfg.Auth.JWT.Issuer)
	str("TRELLIS_JWT_AUDIENCE", &cfg.Auth.JWT.Audience)
	str("TRELLIS_JWKS_URL", &cfg.Auth.JWT.JWKSURL)
	num("TRELLIS_RATE_LIMIT_DEFAULT_RPM", &cfg.Auth.RateLimit.DefaultRPM)

	// TRELLIS_API_KEYS: JSON array of API key configs.
	if v := os.Getenv("TRELLIS_API_KEYS"); v != "" {
		keys, err := parseAPIKeysJSON(v)
		if err != nil {
			errs = append(errs, err)
		} else if len(keys) > 0 {
			cfg.Auth.APIKeys = keys
		}
	}

	dur("TRELLIS_CLIENT_TIMEOUT", &cfg.Client.Timeout)
	num("TRELLIS_CLIENT_RETRY_MAX", &cfg.Client.RetryMax)

	return errors.Join(errs...)
}

// parseAPIKeysJSON parses a JSON array of API key configurations.
func parseAPIKeysJSON(jsonStr string) ([]APIKeyConfig, error) {
	var raw []struct {
		Key         string `json:"key"`
		KeyFile     string `json:"key_file"`
		Subject     string `json:"subject"`
		TenantID    string `json:"tenant_id"`
		ServiceTier string `json:"service_tier"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, fmt.Errorf("parsing API keys JSON: %w", err)
	}
	keys := make([]APIKeyConfig, len(raw))
	for i, r := range raw {
		keys[i] = APIKeyConfig(r)
	}
	return keys, nil
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	// auth.api_keys[*].key_file -> auth.api_keys[*].key
	for i := range cfg.Auth.APIKeys {
		if cfg.Auth.APIKeys[i].KeyFile != "" && cfg.Auth.APIKeys[i].Key == "" {
			val, err := readSecretFile(cfg.Auth.APIKeys[i].KeyFile)
			if err != nil {
				return fmt.Errorf("auth.api_keys[%d].key_file: %w", i, err)
			}
			cfg.Auth.APIKeys[i].Key = val
		}
	}
	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}
