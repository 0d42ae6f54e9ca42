// Package config provides configuration types for corrode.
package config

// Config represents the main corrode configuration.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Log        LogConfig        `toml:"log"`
	Shell      ShellConfig      `toml:"shell"`
	Analyzer   AnalyzerConfig   `toml:"analyzer"`
	Patch      PatchConfig      `toml:"patch"`
	Files      FilesConfig      `toml:"files"`
	Crates     CratesConfig     `toml:"crates"`
	Transcript TranscriptConfig `toml:"transcript"`
	Metrics    MetricsConfig    `toml:"metrics"`
}

// ServerConfig contains protocol-level settings.
type ServerConfig struct {
	Name            string `toml:"name"`
	Transport       string `toml:"transport"` // stdio, http
	HTTPAddr        string `toml:"http_addr"`
	CallTimeoutSecs int    `toml:"call_timeout_secs"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level      string `toml:"level"`  // debug, info, warn, error
	Format     string `toml:"format"` // text, json
	File       string `toml:"file"`   // empty logs to stderr
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// ShellConfig configures the shell session.
type ShellConfig struct {
	WorkDir            string            `toml:"work_dir"`
	Program            string            `toml:"program"`
	Login              bool              `toml:"login"`
	DefaultTimeoutSecs int               `toml:"default_timeout_secs"`
	MaxTimeoutSecs     int               `toml:"max_timeout_secs"`
	MaxOutputBytes     int               `toml:"max_output_bytes"`
	Env                map[string]string `toml:"env"`
	EnvFile            string            `toml:"env_file"`
}

// AnalyzerConfig configures signature extraction.
type AnalyzerConfig struct {
	Workers      int      `toml:"workers"`
	MaxFileBytes int64    `toml:"max_file_bytes"`
	Exclude      []string `toml:"exclude"`
}

// PatchConfig configures the diff engine.
type PatchConfig struct {
	MaxDrift         int  `toml:"max_drift"`
	IgnoreWhitespace bool `toml:"ignore_whitespace"`
}

// FilesConfig configures the file tools.
type FilesConfig struct {
	DefaultMaxChars int   `toml:"default_max_chars"`
	MaxReadBytes    int64 `toml:"max_read_bytes"`
}

// CratesConfig configures the crates.io and docs.rs clients.
type CratesConfig struct {
	BaseURL       string  `toml:"base_url"`
	DocsURL       string  `toml:"docs_url"`
	UserAgent     string  `toml:"user_agent"`
	TimeoutSecs   int     `toml:"timeout_secs"`
	RatePerSecond float64 `toml:"rate_per_second"`
	Burst         int     `toml:"burst"`
	MaxDocChars   int     `toml:"max_doc_chars"`
	// MaxAttempts counts the first request; 1 disables retries.
	MaxAttempts int `toml:"max_attempts"`
}

// TranscriptConfig configures the call transcript store.
type TranscriptConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// MetricsConfig configures prometheus metrics.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// Transport names the channel the server listens on.
type Transport string

const (
	TransportStdio Transport = "stdio"
	TransportHTTP  Transport = "http"
)

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)
