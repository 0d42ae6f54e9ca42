package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/flynn-ai/corrode/internal/errors"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	assert.Equal(t, "bash", cfg.Shell.Program)
	assert.Equal(t, 200, cfg.Patch.MaxDrift)
	assert.Equal(t, 1000, cfg.Files.DefaultMaxChars)
	assert.Equal(t, "https://crates.io/api/v1/", cfg.Crates.BaseURL)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrode.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[shell]
program = "zsh"
default_timeout_secs = 30

[patch]
max_drift = 10
ignore_whitespace = true

[analyzer]
exclude = ["vendor"]
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "zsh", cfg.Shell.Program)
	assert.Equal(t, 30, cfg.Shell.DefaultTimeoutSecs)
	assert.Equal(t, 1800, cfg.Shell.MaxTimeoutSecs, "unset keys keep their defaults")
	assert.Equal(t, 10, cfg.Patch.MaxDrift)
	assert.True(t, cfg.Patch.IgnoreWhitespace)
	assert.Equal(t, []string{"vendor"}, cfg.Analyzer.Exclude)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrode.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\ntransport = \"carrier-pigeon\"\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConfigInvalid))
}

func TestValidateTimeouts(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{
			name: "shell outlives the call",
			mutate: func(c *Config) {
				c.Server.CallTimeoutSecs = 60
				c.Shell.MaxTimeoutSecs = 120
			},
			wantErr: "shell.max_timeout_secs (120) must not exceed server.call_timeout_secs (60)",
		},
		{
			name: "unbounded calls",
			mutate: func(c *Config) {
				c.Server.CallTimeoutSecs = 0
				c.Shell.MaxTimeoutSecs = 7200
			},
		},
		{
			name:    "negative call timeout",
			mutate:  func(c *Config) { c.Server.CallTimeoutSecs = -1 },
			wantErr: "server.call_timeout_secs",
		},
		{
			name:    "no crates attempts",
			mutate:  func(c *Config) { c.Crates.MaxAttempts = 0 },
			wantErr: "crates.max_attempts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, apperrors.CodeConfigInvalid))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrode.toml")
	require.NoError(t, os.WriteFile(path, []byte("[shell\nprogram = "), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConfigInvalid))
}

func TestApplyEnvOverrides(t *testing.T) {
	env := map[string]string{
		"CORRODE_LOG_LEVEL":         "debug",
		"CORRODE_PATCH_MAX_DRIFT":   "5",
		"CORRODE_TRANSCRIPT":        "true",
		"CORRODE_CRATES_USER_AGENT": "test-agent",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.applyEnv(lookup))

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 5, cfg.Patch.MaxDrift)
	assert.True(t, cfg.Transcript.Enabled)
	assert.Equal(t, "test-agent", cfg.Crates.UserAgent)
}

func TestApplyEnvRejectsBadNumbers(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(func(k string) (string, bool) {
		if k == "CORRODE_ANALYZER_WORKERS" {
			return "many", true
		}
		return "", false
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CORRODE_ANALYZER_WORKERS")
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "corrode.toml")
	cfg := Default()
	cfg.Shell.Env = map[string]string{"RUST_BACKTRACE": "1"}

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "1", loaded.Shell.Env["RUST_BACKTRACE"])
}

func TestReadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.env")
	require.NoError(t, os.WriteFile(path, []byte("CARGO_TERM_COLOR=never\n# comment\nRUSTFLAGS=\"-D warnings\"\n"), 0644))

	values, err := ReadEnvFile(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"CARGO_TERM_COLOR": "never", "RUSTFLAGS": "-D warnings"}, values)

	_, err = ReadEnvFile(filepath.Join(t.TempDir(), "nope.env"))
	assert.Error(t, err)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "logs"), ExpandHome("~/logs"))
	assert.Equal(t, "/var/log", ExpandHome("/var/log"))
	assert.Equal(t, "~user/x", ExpandHome("~user/x"))
}
