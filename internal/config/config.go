package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvConfigJSON holds a full JSON configuration when no file is present.
const EnvConfigJSON = "ECHOBOT_CONFIG_JSON"

// ErrNoConfig is returned by Discover when neither a config file nor
// EnvConfigJSON is available.
var ErrNoConfig = errors.New("no configuration could be found: create config.json or set " + EnvConfigJSON)

// Config is the root configuration for echobot.
type Config struct {
	Token     string        `json:"token"     yaml:"token"     env:"ECHOBOT_TOKEN"`
	Redirects RedirectList  `json:"redirects" yaml:"redirects"`
	General   GeneralConfig `json:"general"   yaml:"general"`
	Health    HealthConfig  `json:"health"    yaml:"health"`
}

type GeneralConfig struct {
	LogLevel              string `json:"logLevel"              yaml:"logLevel"              env:"ECHOBOT_LOG_LEVEL"`
	LogFile               string `json:"logFile,omitempty"     yaml:"logFile,omitempty"     env:"ECHOBOT_LOG_FILE"`
	MaxConcurrentMessages int    `json:"maxConcurrentMessages" yaml:"maxConcurrentMessages" env:"ECHOBOT_MAX_CONCURRENT_MESSAGES"`
	MaxConcurrentSends    int    `json:"maxConcurrentSends"    yaml:"maxConcurrentSends"` // destinations dispatched in parallel per redirect
}

// HealthConfig configures the liveness responder. A zero port disables it.
type HealthConfig struct {
	Host        string `json:"host,omitempty" yaml:"host,omitempty"`
	Port        int    `json:"port,omitempty" yaml:"port,omitempty" env:"PORT"`
	MetricsPath string `json:"metricsPath"    yaml:"metricsPath"`
}

// Format selects the decoder used for a configuration document.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// FormatFor picks a decoder from the file extension.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// DefaultSearchPaths are tried in order by Discover.
var DefaultSearchPaths = []string{"config.json", "config.yaml", "config.yml"}

// Discover finds the configuration: the explicit path when given, otherwise
// the first of DefaultSearchPaths that exists, otherwise EnvConfigJSON.
// It returns where the configuration came from.
func Discover(path string) (*Config, string, error) {
	if path != "" {
		cfg, err := Load(path)
		return cfg, path, err
	}
	for _, candidate := range DefaultSearchPaths {
		if _, err := os.Stat(candidate); err == nil {
			cfg, err := Load(candidate)
			return cfg, candidate, err
		}
	}
	if raw, ok := os.LookupEnv(EnvConfigJSON); ok && strings.TrimSpace(raw) != "" {
		cfg, err := Parse([]byte(raw), FormatJSON)
		return cfg, EnvConfigJSON, err
	}
	return nil, "", ErrNoConfig
}

// Load reads, parses and validates a configuration file.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	cfg, err := Parse(data, FormatFor(path))
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a configuration document, applies environment overrides and
// validates the result.
func Parse(data []byte, format Format) (*Config, error) {
	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, &ConfigError{Problems: []string{"cannot parse configuration: " + err.Error()}, Err: err}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, &ConfigError{Problems: []string{"cannot apply environment overrides: " + err.Error()}, Err: err}
	}

	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.normalize()

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	for i := range c.Redirects {
		r := &c.Redirects[i]
		r.Sources = r.Sources.dedupe()
		r.Destinations = r.Destinations.dedupe()
		r.Options.AllowList = r.Options.AllowList.dedupe()
	}
}

// ConfigError reports everything wrong with a configuration. The relay must
// not start while one is outstanding.
type ConfigError struct {
	Problems []string
	Err      error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config validation errors:\n  - %s", strings.Join(e.Problems, "\n  - "))
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	if strings.TrimSpace(cfg.Token) == "" {
		errs = append(errs, "the Discord token is missing (set token or ECHOBOT_TOKEN)")
	}

	if len(cfg.Redirects) == 0 {
		errs = append(errs, "no redirects are defined; the bot is useless without them")
	}
	for i, r := range cfg.Redirects {
		errs = append(errs, r.problems(fmt.Sprintf("redirects[%d]", i))...)
	}

	switch strings.ToLower(cfg.General.LogLevel) {
	case "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	if cfg.General.MaxConcurrentMessages < 1 || cfg.General.MaxConcurrentMessages > 100 {
		errs = append(errs, "general.maxConcurrentMessages must be between 1 and 100")
	}
	if cfg.General.MaxConcurrentSends < 1 || cfg.General.MaxConcurrentSends > 50 {
		errs = append(errs, "general.maxConcurrentSends must be between 1 and 50")
	}

	if cfg.Health.Port < 0 || cfg.Health.Port > 65535 {
		errs = append(errs, "health.port must be between 0 and 65535")
	}
	if cfg.Health.MetricsPath != "" && !strings.HasPrefix(cfg.Health.MetricsPath, "/") {
		errs = append(errs, "health.metricsPath must start with /")
	}

	if len(errs) > 0 {
		return &ConfigError{Problems: errs}
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
