package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"maps"
	"os"
	"time"

	"github.com/flynn-ai/corrode/internal/analyzer"
	"github.com/flynn-ai/corrode/internal/config"
	"github.com/flynn-ai/corrode/internal/crates"
	"github.com/flynn-ai/corrode/internal/dispatch"
	"github.com/flynn-ai/corrode/internal/files"
	"github.com/flynn-ai/corrode/internal/grammar"
	"github.com/flynn-ai/corrode/internal/logging"
	"github.com/flynn-ai/corrode/internal/metrics"
	"github.com/flynn-ai/corrode/internal/patch"
	"github.com/flynn-ai/corrode/internal/prompts"
	"github.com/flynn-ai/corrode/internal/server"
	"github.com/flynn-ai/corrode/internal/shell"
	"github.com/flynn-ai/corrode/internal/tools"
	"github.com/flynn-ai/corrode/internal/transcript"
)

// loadConfig reads the config file and applies the global flags on top.
func (a *App) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(a.flags.ConfigPath)
	if err != nil {
		return nil, err
	}
	if a.flags.Dir != "" {
		cfg.Shell.WorkDir = config.ExpandHome(a.flags.Dir)
	}
	if a.flags.LogLevel != "" {
		cfg.Log.Level = a.flags.LogLevel
	}
	if a.flags.LogFile != "" {
		cfg.Log.File = config.ExpandHome(a.flags.LogFile)
	}
	return cfg, nil
}

// runtime is the fully wired server and everything it must release.
type runtime struct {
	cfg     *config.Config
	logger  *slog.Logger
	server  *server.Server
	closers []io.Closer
}

func (r *runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i].Close())
	}
	return errors.Join(errs...)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// build wires config, logging, the services, the tool registry, the
// dispatcher and the MCP server, in that order.
func (a *App) build() (rt *runtime, err error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}

	logger, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	rt = &runtime{cfg: cfg, logger: logger, closers: []io.Closer{logCloser}}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	grammars, err := grammar.NewSet()
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, closerFunc(func() error { grammars.Close(); return nil }))

	env := map[string]string{}
	if cfg.Shell.EnvFile != "" {
		fromFile, err := config.ReadEnvFile(config.ExpandHome(cfg.Shell.EnvFile))
		if err != nil {
			return nil, err
		}
		maps.Copy(env, fromFile)
	}
	maps.Copy(env, cfg.Shell.Env)

	workDir := cfg.Shell.WorkDir
	if workDir == "" {
		if workDir, err = os.Getwd(); err != nil {
			return nil, err
		}
	}
	session, err := shell.New(shell.Options{
		Dir:            workDir,
		Program:        cfg.Shell.Program,
		Login:          cfg.Shell.Login,
		Env:            env,
		DefaultTimeout: seconds(cfg.Shell.DefaultTimeoutSecs),
		MaxTimeout:     seconds(cfg.Shell.MaxTimeoutSecs),
		MaxOutputBytes: cfg.Shell.MaxOutputBytes,
	}, logger.With("component", "shell"))
	if err != nil {
		return nil, err
	}

	locks := &files.Locker{}
	crateClient, err := crates.New(crates.Options{
		BaseURL:       cfg.Crates.BaseURL,
		DocsURL:       cfg.Crates.DocsURL,
		UserAgent:     cfg.Crates.UserAgent,
		Timeout:       seconds(cfg.Crates.TimeoutSecs),
		RatePerSecond: cfg.Crates.RatePerSecond,
		Burst:         cfg.Crates.Burst,
		MaxDocChars:   cfg.Crates.MaxDocChars,
		MaxAttempts:   cfg.Crates.MaxAttempts,
	}, logger.With("component", "crates"))
	if err != nil {
		return nil, err
	}

	registry, err := tools.New(tools.Deps{
		Session: session,
		Analyzer: analyzer.New(grammars, analyzer.Options{
			Workers:      cfg.Analyzer.Workers,
			MaxFileBytes: cfg.Analyzer.MaxFileBytes,
			Exclude:      cfg.Analyzer.Exclude,
		}, logger.With("component", "analyzer")),
		Patches: patch.NewEngine(patch.Options{
			MaxDrift:         cfg.Patch.MaxDrift,
			IgnoreWhitespace: cfg.Patch.IgnoreWhitespace,
		}, locks, logger.With("component", "patch")),
		Crates:          crateClient,
		Locks:           locks,
		DefaultMaxChars: cfg.Files.DefaultMaxChars,
		MaxReadBytes:    cfg.Files.MaxReadBytes,
	})
	if err != nil {
		return nil, err
	}

	opts := dispatch.Options{CallTimeout: seconds(cfg.Server.CallTimeoutSecs)}
	if cfg.Metrics.Enabled {
		opts.Metrics = metrics.New()
	}
	if cfg.Transcript.Enabled {
		store, err := transcript.Open(cfg.Transcript.Path)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, store)
		opts.Transcript = store
	}
	d := dispatch.New(registry, opts, logger.With("component", "dispatch"))

	rt.server = server.New(d, prompts.NewBuilder(registry.List(), session.Dir()), server.Options{
		Name:    cfg.Server.Name,
		Version: Version,
		Metrics: opts.Metrics,
	}, logger)

	logger.Info("corrode ready",
		"version", Version,
		"dir", session.Dir(),
		"tools", len(registry.List()),
		"transcript", cfg.Transcript.Enabled,
	)
	return rt, nil
}

// runServe serves until ctx is cancelled or the stdio client disconnects.
// A non-empty httpAddr selects the HTTP transport.
func (a *App) runServe(ctx context.Context, httpAddr string) error {
	rt, err := a.build()
	if err != nil {
		return err
	}
	defer rt.Close()

	if httpAddr == "" && config.Transport(rt.cfg.Server.Transport) == config.TransportHTTP {
		httpAddr = rt.cfg.Server.HTTPAddr
	}
	if httpAddr != "" {
		return rt.server.ServeHTTP(ctx, httpAddr)
	}
	return rt.server.RunStdio(ctx)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
