package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/evidencepack/pkg/analysis"
	"github.com/matzehuels/evidencepack/pkg/analyzers"
	"github.com/matzehuels/evidencepack/pkg/buildinfo"
	"github.com/matzehuels/evidencepack/pkg/cache"
	"github.com/matzehuels/evidencepack/pkg/config"
	"github.com/matzehuels/evidencepack/pkg/errors"
	"github.com/matzehuels/evidencepack/pkg/evidence"
	"github.com/matzehuels/evidencepack/pkg/facts"
	"github.com/matzehuels/evidencepack/pkg/observability"
	"github.com/matzehuels/evidencepack/pkg/pack"
	"github.com/matzehuels/evidencepack/pkg/signal"
	"github.com/matzehuels/evidencepack/pkg/stack"
	"github.com/matzehuels/evidencepack/pkg/upload"
)

// Runner encapsulates pipeline execution.
//
// The Runner holds no per-run state, so one Runner may serve several runs
// with different configurations.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger

	// Analyzers replaces the built-in analyzer set when non-nil.
	Analyzers []analysis.Analyzer
	// Generator replaces the documentation generator selected by the AI
	// configuration.
	Generator analyzers.Generator
	// Uploader replaces the uploader selected by the upload configuration.
	Uploader upload.Uploader

	// Clock stamps the evidence model (default time.Now).
	Clock func() time.Time
	// RunID identifies the run (default a random UUID).
	RunID func() string
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:  c,
		Keyer:  keyer,
		Logger: logger,
		Clock:  time.Now,
		RunID:  uuid.NewString,
	}
}

// Run executes every stage for cfg.
//
// On an upload failure the returned Result still describes the assembled
// pack, which stays valid on disk. On cancellation Run returns an error
// wrapping ctx.Err() and no pack is written.
func (r *Runner) Run(ctx context.Context, cfg config.Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	repo, err := ValidateRepo(cfg.RepoPath)
	if err != nil {
		return nil, err
	}
	outDir, err := filepath.Abs(cfg.OutDir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "resolve output directory")
	}
	uploader, err := r.uploader(cfg)
	if err != nil {
		return nil, err
	}

	logger := r.logger()
	result := &Result{Stats: Stats{Durations: make(map[string]time.Duration, len(Stages))}}

	// Stage 1: Extract
	var signals []signal.Signal
	err = r.stage(ctx, result, StageExtract, func() error {
		opts := signal.DefaultOptions()
		opts.Logger = logger
		if name, ok := nestedDir(repo, outDir); ok {
			opts.Ignore = append(slices.Clone(signal.DefaultIgnore), name)
		}
		var err error
		signals, err = signal.Extract(ctx, repo, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	result.Stats.Signals = len(signals)
	logger.Info("extracted signals", "signals", len(signals), "duration", result.Stats.Durations[StageExtract])

	// Stage 2: Classify
	var profile stack.Profile
	err = r.stage(ctx, result, StageClassify, func() error {
		profile = stack.Classify(signals)
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.Profile = profile
	if profile.Empty() {
		logger.Warn("no stack detected, continuing with generic analyzers")
	}
	logger.Info("classified stack",
		"candidates", len(profile.Candidates()),
		"runtimes", profile.Runtimes(),
		"duration", result.Stats.Durations[StageClassify])

	// Stage 3: Facts
	var f facts.Facts
	err = r.stage(ctx, result, StageFacts, func() error {
		f = facts.Collect(ctx, repo, facts.Options{
			Name:      cfg.RepoName,
			CommitSHA: cfg.CommitSHA,
			BuildID:   cfg.BuildID,
		})
		return ctx.Err()
	})
	if err != nil {
		return nil, err
	}
	logger.Info("collected facts", "repo", f.Name, "commit", f.ShortSHA(), "branch", f.Branch)

	// Stage 4: Analyze
	var results []analysis.Result
	err = r.stage(ctx, result, StageAnalyze, func() error {
		orch := &analysis.Orchestrator{
			Workers:  cfg.Workers,
			Timeout:  cfg.AnalyzerTimeout,
			Timeouts: cfg.Timeouts,
			Disabled: cfg.Disabled,
			Logger:   logger,
		}
		req := analysis.Request{
			RepoPath:    repo,
			Profile:     profile,
			Facts:       f,
			Credentials: cfg.Credentials,
		}
		var err error
		results, err = orch.Run(ctx, req, r.analyzers(cfg))
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.Info("ran analyzers", "results", analysis.Summary(results), "duration", result.Stats.Durations[StageAnalyze])

	// Stage 5: Aggregate
	err = r.stage(ctx, result, StageAggregate, func() error {
		result.Model = evidence.Aggregate(profile, results, f, evidence.Meta{
			GeneratedAt:  r.now(),
			BuildID:      f.BuildID,
			RunID:        r.runID(),
			CIURL:        cfg.CIURL,
			ToolVersion:  buildinfo.Version,
			Integrations: cfg.Credentials.Status(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Stage 6: Assemble
	err = r.stage(ctx, result, StageAssemble, func() error {
		var err error
		result.Manifest, err = (&pack.Assembler{Logger: logger}).Assemble(ctx, result.Model, outDir)
		return err
	})
	if err != nil {
		return nil, err
	}

	// Stage 7: Upload
	if uploader == nil {
		return result, nil
	}
	err = r.stage(ctx, result, StageUpload, func() error {
		var err error
		result.Upload, err = uploader.Upload(ctx, upload.Pack{
			Dir:      result.Manifest.Dir,
			Repo:     f.Name,
			Commit:   f.CommitSHA,
			Manifest: result.Manifest,
			Summary:  result.Model.Summary(),
			Build:    result.Model.Build(),
		})
		return err
	})
	if err != nil {
		return result, err
	}
	return result, nil
}

// stage runs fn as the named stage, reporting it to the pipeline hooks and
// recording its duration. A cancelled context fails the stage before fn runs.
func (r *Runner) stage(ctx context.Context, result *Result, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	hooks := observability.Pipeline()
	hooks.OnStageStart(ctx, name)
	start := time.Now()
	err := fn()
	d := time.Since(start)
	result.Stats.Durations[name] = d
	hooks.OnStageComplete(ctx, name, d, err)
	if err != nil {
		r.logger().Debug("stage failed", "stage", name, "duration", d, "err", err)
		if errors.GetCode(err) != "" {
			return err
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (r *Runner) analyzers(cfg config.Config) []analysis.Analyzer {
	if r.Analyzers != nil {
		return r.Analyzers
	}
	return analyzers.Defaults(cfg, analyzers.Options{
		Cache:     r.Cache,
		Keyer:     r.scopedKeyer(cfg),
		Generator: r.Generator,
		Logger:    r.logger(),
	})
}

func (r *Runner) scopedKeyer(cfg config.Config) cache.Keyer {
	keyer := r.Keyer
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if cfg.Cache.Prefix != "" {
		keyer = cache.NewScopedKeyer(keyer, cfg.Cache.Prefix)
	}
	return keyer
}

func (r *Runner) uploader(cfg config.Config) (upload.Uploader, error) {
	if r.Uploader != nil {
		return r.Uploader, nil
	}
	return upload.New(cfg, r.logger())
}

func (r *Runner) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now()
}

func (r *Runner) runID() string {
	if r.RunID != nil {
		return r.RunID()
	}
	return uuid.NewString()
}

func (r *Runner) logger() *log.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return log.Default()
}

// Close releases resources held by the runner (primarily the cache).
func (r *Runner) Close() error {
	if r.Cache != nil {
		return r.Cache.Close()
	}
	return nil
}

// ValidateRepo resolves path and checks that it is an existing directory.
func ValidateRepo(path string) (string, error) {
	if path == "" {
		return "", errors.New(errors.ErrCodeInvalidRepo, "repository path is empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidRepo, err, "resolve %s", path)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidRepo, err, "repository path does not exist: %s", path)
	}
	if !info.IsDir() {
		return "", errors.New(errors.ErrCodeInvalidRepo, "repository path is not a directory: %s", path)
	}
	return abs, nil
}

// nestedDir reports the first path element of dir below root, when dir lies
// inside root.
func nestedDir(root, dir string) (string, bool) {
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	first, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
	return first, true
}
