// Package config loads the proxy's YAML configuration file, grounded on
// dbbouncer/internal/config's env-substituting yaml.v3 loader.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for pgproxy.
type Config struct {
	Listen     string      `yaml:"listen"`
	Upstream   string      `yaml:"upstream"`
	AuthScript string      `yaml:"auth_script"`
	SSL        SSLConfig   `yaml:"ssl"`
	Timeout    duration    `yaml:"timeout"`
	MaxChain   int         `yaml:"max_chain"`
	Verbosity  string      `yaml:"verbosity"`
	Admin      AdminConfig `yaml:"admin"`
}

// SSLConfig names the certificate pair offered to clients that request
// an SSLRequest upgrade. Both fields empty means TLS is not configured.
// The two files are handed to tlsutil.LoadServerConfig, which tolerates
// them being the same combined-bundle path per spec §6.
type SSLConfig struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

// Enabled reports whether both halves of the certificate pair are set.
func (s SSLConfig) Enabled() bool {
	return s.Cert != "" && s.Key != ""
}

// AdminConfig controls the side HTTP listener that exposes /metrics.
type AdminConfig struct {
	Listen string `yaml:"listen"`
}

// duration unmarshals YAML duration strings ("1h", "30s") the way
// dbbouncer's config does, via time.ParseDuration.
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", value.Value, err)
	}
	*d = duration(parsed)
	return nil
}

func (d duration) Duration() time.Duration {
	return time.Duration(d)
}

// DefaultTimeout is the spec §6 default per-link read timeout, exported so
// callers that build a Config without going through Load (e.g. a
// no-config-file startup path) can fill in the same default.
const DefaultTimeout = 3600 * time.Second

// SetTimeout sets the link timeout from a plain time.Duration; duration's
// YAML-unmarshalling type is unexported, so external packages go through
// this setter rather than converting directly.
func (c *Config) SetTimeout(d time.Duration) {
	c.Timeout = duration(d)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		if val, ok := os.LookupEnv(string(varName)); ok {
			return []byte(val)
		}
		return match
	})
}

// Load reads and parses a YAML config file with ${VAR} env substitution,
// then applies the defaults from spec §6.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = substituteEnvVars(data)

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Listen == "" {
		cfg.Listen = "0.0.0.0:6000"
	}
	if cfg.Upstream == "" {
		cfg.Upstream = "/var/run/postgresql/.s.PGSQL.5432"
	}
	if cfg.AuthScript == "" {
		cfg.AuthScript = "true"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = duration(3600 * time.Second)
	}
	if cfg.MaxChain == 0 {
		cfg.MaxChain = 10_000_000
	}
	if cfg.Admin.Listen == "" {
		cfg.Admin.Listen = "127.0.0.1:9090"
	}
	if cfg.Verbosity == "" {
		cfg.Verbosity = "INFO"
	}
}

// SlogLevel maps the spec's ERROR/INFO/DEBUG/TRACE verbosity knob onto a
// slog.Level. TRACE has no standard slog constant, so it is treated as one
// step below DEBUG, a common extension of the level type seen across Go
// server codebases.
func (c *Config) SlogLevel() slog.Level {
	switch c.Verbosity {
	case "ERROR":
		return slog.LevelError
	case "DEBUG":
		return slog.LevelDebug
	case "TRACE":
		return slog.LevelDebug - 4
	default:
		return slog.LevelInfo
	}
}
