// Package cli implements the evidencepack command-line interface.
//
// # Commands
//
//   - generate: analyze a repository and write an evidence pack
//   - verify: recompute a pack's checksums
//   - inspect: browse a pack interactively, or print it with --plain
//   - serve: serve a pack over HTTP
//   - cache: manage the documentation cache
//   - completion: generate shell completion scripts
//
// # Logging
//
// Logs go to stderr; results go to stdout. --verbose (-v) enables debug
// logging. The logger is also attached to each command's context.
package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/evidencepack/pkg/buildinfo"
	"github.com/matzehuels/evidencepack/pkg/cache"
	"github.com/matzehuels/evidencepack/pkg/config"
	"github.com/matzehuels/evidencepack/pkg/pipeline"
)

const (
	// appName is the application name used for directories and display.
	appName = "evidencepack"

	// memoryCacheEntries bounds the in-process cache backend.
	memoryCacheEntries = 256
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
	// Out receives command results (default os.Stdout).
	Out io.Writer
	// LookupEnv reads the process environment (default os.LookupEnv).
	LookupEnv config.LookupFunc
	// NewRunner replaces the cache-backed runner built for each run.
	NewRunner func(cfg config.Config) *pipeline.Runner
}

// New creates a new CLI instance logging to w.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger:    newLogger(w, level),
		Out:       os.Stdout,
		LookupEnv: os.LookupEnv,
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Generate audit evidence packs for source repositories",
		Long: `evidencepack detects a repository's technology stack, runs metrics, history,
dependency, security, test and documentation analyzers against it, and writes
a self-describing, checksummed evidence pack.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}
	root.SetVersionTemplate(buildinfo.Template())
	root.SetOut(c.out())

	root.AddCommand(c.generateCommand())
	root.AddCommand(c.verifyCommand())
	root.AddCommand(c.inspectCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

func (c *CLI) out() io.Writer {
	if c.Out != nil {
		return c.Out
	}
	return os.Stdout
}

// newRunner creates a pipeline runner backed by the configured cache.
func (c *CLI) newRunner(ctx context.Context, cfg config.Config) *pipeline.Runner {
	return pipeline.NewRunner(c.newCache(ctx, cfg), nil, c.Logger)
}

// newCache opens the cache backend selected by cfg. A backend that cannot
// be opened degrades to no caching.
func (c *CLI) newCache(ctx context.Context, cfg config.Config) cache.Cache {
	if cfg.NoCache {
		return cache.NewNullCache()
	}
	switch cfg.Cache.Backend {
	case config.CacheNone:
		return cache.NewNullCache()
	case config.CacheMemory:
		mc, err := cache.NewMemoryCache(memoryCacheEntries)
		if err != nil {
			c.Logger.Warn("memory cache unavailable, caching disabled", "err", err)
			return cache.NewNullCache()
		}
		return mc
	case config.CacheRedis:
		url, _ := cfg.Credentials.Get(config.CredRedisURL)
		rc, err := cache.NewRedisCache(ctx, url)
		if err != nil {
			c.Logger.Warn("redis cache unavailable, caching disabled")
			return cache.NewNullCache()
		}
		return rc
	}

	dir := cfg.Cache.Dir
	if dir == "" {
		var err error
		if dir, err = cacheDir(); err != nil {
			return cache.NewNullCache()
		}
	}
	fc, err := cache.NewFileCache(dir)
	if err != nil {
		c.Logger.Warn("file cache unavailable, caching disabled", "dir", dir, "err", err)
		return cache.NewNullCache()
	}
	return fc
}

// cacheDir returns the cache directory using XDG standard (~/.cache/evidencepack/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}
