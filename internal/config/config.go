// Package config handles corrode configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	apperrors "github.com/flynn-ai/corrode/internal/errors"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CORRODE_"

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".corrode")

	return &Config{
		Server: ServerConfig{
			Name:            "corrode",
			Transport:       string(TransportStdio),
			HTTPAddr:        "127.0.0.1:7345",
			CallTimeoutSecs: 1800,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     string(LogFormatText),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Shell: ShellConfig{
			Program:            "bash",
			DefaultTimeoutSecs: 120,
			MaxTimeoutSecs:     1800,
			MaxOutputBytes:     256 * 1024,
		},
		Analyzer: AnalyzerConfig{
			Workers:      4,
			MaxFileBytes: 2 * 1024 * 1024,
			Exclude:      []string{".git", "target", "node_modules"},
		},
		Patch: PatchConfig{
			MaxDrift: 200,
		},
		Files: FilesConfig{
			DefaultMaxChars: 1000,
			MaxReadBytes:    16 * 1024 * 1024,
		},
		Crates: CratesConfig{
			BaseURL:       "https://crates.io/api/v1/",
			DocsURL:       "https://docs.rs/",
			UserAgent:     "corrode-mcp/1.0 (https://github.com/flynn-ai/corrode)",
			TimeoutSecs:   10,
			RatePerSecond: 1,
			Burst:         2,
			MaxDocChars:   8000,
			MaxAttempts:   3,
		},
		Transcript: TranscriptConfig{
			Enabled: false,
			Path:    filepath.Join(dataDir, "transcript.db"),
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Load loads the configuration from the given path.
// If the file doesn't exist, returns defaults. Environment overrides are applied last.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, apperrors.Wrap(err, apperrors.CodeConfigInvalid, "parsing "+configPath, apperrors.CategoryUser)
			}
		case os.IsNotExist(err):
			// Config file doesn't exist, keep defaults
		default:
			return nil, err
		}
	}

	if err := LoadDotEnv(".env", ".env.local"); err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	cfg = expandPaths(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves the configuration to the given path.
func (c *Config) Save(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}

	file, err := os.Create(configPath)
	if err != nil {
		return err
	}
	defer file.Close()

	return toml.NewEncoder(file).Encode(c)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return apperrors.Newf(apperrors.CodeConfigInvalid, apperrors.CategoryUser, format, args...)
	}

	switch Transport(c.Server.Transport) {
	case TransportStdio, TransportHTTP:
	default:
		return invalid("server.transport must be stdio or http, got %q", c.Server.Transport)
	}
	switch LogFormat(c.Log.Format) {
	case LogFormatText, LogFormatJSON:
	default:
		return invalid("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Shell.Program == "" {
		return invalid("shell.program must not be empty")
	}
	if c.Shell.DefaultTimeoutSecs <= 0 || c.Shell.MaxTimeoutSecs < c.Shell.DefaultTimeoutSecs {
		return invalid("shell timeouts must satisfy 0 < default_timeout_secs <= max_timeout_secs")
	}
	if c.Server.CallTimeoutSecs < 0 {
		return invalid("server.call_timeout_secs must not be negative")
	}
	if c.Server.CallTimeoutSecs > 0 && c.Shell.MaxTimeoutSecs > c.Server.CallTimeoutSecs {
		return invalid("shell.max_timeout_secs (%d) must not exceed server.call_timeout_secs (%d)",
			c.Shell.MaxTimeoutSecs, c.Server.CallTimeoutSecs)
	}
	if c.Analyzer.Workers <= 0 {
		return invalid("analyzer.workers must be positive")
	}
	if c.Patch.MaxDrift < 0 {
		return invalid("patch.max_drift must not be negative")
	}
	if c.Crates.RatePerSecond <= 0 || c.Crates.Burst <= 0 {
		return invalid("crates.rate_per_second and crates.burst must be positive")
	}
	if c.Crates.MaxAttempts <= 0 {
		return invalid("crates.max_attempts must be positive")
	}
	return nil
}

// LoadDotEnv copies variables from the given env files into the process
// environment. Variables already set are never overridden; missing files are skipped.
func LoadDotEnv(names ...string) error {
	for _, name := range names {
		values, err := godotenv.Read(name)
		if err != nil {
			continue
		}
		for k, v := range values {
			if _, exists := os.LookupEnv(k); exists {
				continue
			}
			if err := os.Setenv(k, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReadEnvFile returns the variables defined in an env file.
func ReadEnvFile(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeConfigInvalid, "reading env file "+path, apperrors.CategoryUser)
	}
	return values, nil
}

// applyEnv applies CORRODE_* overrides.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return apperrors.Newf(apperrors.CodeConfigInvalid, apperrors.CategoryUser, "%s%s: %v", EnvPrefix, key, err)
		}
		*dst = n
		return nil
	}
	flag := func(key string, dst *bool) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			return nil
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return apperrors.Newf(apperrors.CodeConfigInvalid, apperrors.CategoryUser, "%s%s: %v", EnvPrefix, key, err)
		}
		*dst = b
		return nil
	}

	str("TRANSPORT", &c.Server.Transport)
	str("HTTP_ADDR", &c.Server.HTTPAddr)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("LOG_FILE", &c.Log.File)
	str("WORK_DIR", &c.Shell.WorkDir)
	str("SHELL", &c.Shell.Program)
	str("CRATES_BASE_URL", &c.Crates.BaseURL)
	str("CRATES_USER_AGENT", &c.Crates.UserAgent)
	str("DOCS_URL", &c.Crates.DocsURL)
	str("TRANSCRIPT_PATH", &c.Transcript.Path)

	for key, dst := range map[string]*int{
		"CALL_TIMEOUT_SECS":  &c.Server.CallTimeoutSecs,
		"SHELL_TIMEOUT_SECS": &c.Shell.DefaultTimeoutSecs,
		"ANALYZER_WORKERS":   &c.Analyzer.Workers,
		"PATCH_MAX_DRIFT":    &c.Patch.MaxDrift,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	for key, dst := range map[string]*bool{
		"TRANSCRIPT":        &c.Transcript.Enabled,
		"METRICS":           &c.Metrics.Enabled,
		"IGNORE_WHITESPACE": &c.Patch.IgnoreWhitespace,
	} {
		if err := flag(key, dst); err != nil {
			return err
		}
	}
	return nil
}

// expandPaths expands ~ in path settings.
func expandPaths(cfg *Config) *Config {
	cfg.Log.File = ExpandHome(cfg.Log.File)
	cfg.Shell.WorkDir = ExpandHome(cfg.Shell.WorkDir)
	cfg.Shell.EnvFile = ExpandHome(cfg.Shell.EnvFile)
	cfg.Transcript.Path = ExpandHome(cfg.Transcript.Path)
	return cfg
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(homeDir, path[1:])
}

// String renders the configuration as TOML for display.
func (c *Config) String() string {
	var sb strings.Builder
	if err := toml.NewEncoder(&sb).Encode(c); err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return sb.String()
}
