// Package config holds the immutable run configuration for evidencepack.
//
// A [Config] is built once by the CLI from defaults, an optional TOML file,
// the environment, and flags (in that order of precedence) and is then passed
// by value to the pipeline. Nothing below the CLI reads the environment.
package config

import (
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/matzehuels/evidencepack/pkg/errors"
)

// Defaults.
const (
	DefaultOutDir          = "./out"
	DefaultWorkers         = 4
	DefaultAnalyzerTimeout = 5 * time.Minute
	DefaultLanguage        = "en"
	DefaultAIModel         = "gemini-2.5-flash"
	DefaultFileName        = "evidencepack.toml"
)

// Cache backends.
const (
	CacheFile   = "file"
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// AI providers.
const (
	AIAuto   = "auto"
	AIGemini = "gemini"
	AINone   = "none"
)

// Upload targets, methods, and auth types.
const (
	UploadNone  = ""
	UploadHTTP  = "http"
	UploadS3    = "s3"
	UploadMongo = "mongo"

	MethodZip        = "zip"
	MethodIndividual = "individual"

	AuthBearer = "bearer"
	AuthSAS    = "sas"
	AuthCustom = "custom"
)

// Config is the complete run configuration. Treat it as a value: the With
// helpers return modified copies.
type Config struct {
	RepoPath  string
	OutDir    string
	RepoName  string
	CommitSHA string
	BuildID   string
	// CIURL identifies the CI system (Azure DevOps collection URI); empty means local.
	CIURL    string
	Language string

	Workers         int
	AnalyzerTimeout time.Duration
	Timeouts        map[string]time.Duration
	Disabled        []string
	RunTests        bool
	NoCache         bool

	Cache  CacheConfig
	AI     AIConfig
	Upload UploadConfig

	Credentials Credentials
}

// CacheConfig selects the docs cache backend.
type CacheConfig struct {
	Backend string
	Dir     string
	TTL     time.Duration
	// Prefix scopes keys when a backend is shared between projects.
	Prefix string
}

// AIConfig selects the documentation generator.
type AIConfig struct {
	Provider string
	Model    string
}

// UploadConfig describes where a finished pack is published.
type UploadConfig struct {
	Target       string
	URL          string
	Method       string
	AuthType     string
	CustomHeader string
	S3           S3Config
	Mongo        MongoConfig
}

// S3Config addresses an S3-compatible bucket.
type S3Config struct {
	Endpoint string
	Bucket   string
	Region   string
	Prefix   string
	UseSSL   bool
}

// MongoConfig addresses the pack index collection.
type MongoConfig struct {
	Database   string
	Collection string
}

// Default returns the built-in configuration for the repository at repoPath.
func Default(repoPath string) Config {
	return Config{
		RepoPath:        repoPath,
		OutDir:          DefaultOutDir,
		Language:        DefaultLanguage,
		Workers:         DefaultWorkers,
		AnalyzerTimeout: DefaultAnalyzerTimeout,
		Cache: CacheConfig{
			Backend: CacheFile,
			TTL:     7 * 24 * time.Hour,
		},
		AI: AIConfig{
			Provider: AIAuto,
			Model:    DefaultAIModel,
		},
		Upload: UploadConfig{
			Method:   MethodZip,
			AuthType: AuthBearer,
			S3:       S3Config{UseSSL: true},
			Mongo:    MongoConfig{Database: "evidence", Collection: "packs"},
		},
	}
}

// TimeoutFor returns the invocation timeout for the named analyzer.
func (c Config) TimeoutFor(analyzer string) time.Duration {
	if d, ok := c.Timeouts[analyzer]; ok && d > 0 {
		return d
	}
	return c.AnalyzerTimeout
}

// Enabled reports whether the named analyzer has not been disabled.
func (c Config) Enabled(analyzer string) bool {
	return !slices.Contains(c.Disabled, analyzer)
}

// WithTimeout returns a copy with a per-analyzer timeout override.
func (c Config) WithTimeout(analyzer string, d time.Duration) Config {
	m := make(map[string]time.Duration, len(c.Timeouts)+1)
	for k, v := range c.Timeouts {
		m[k] = v
	}
	m[analyzer] = d
	c.Timeouts = m
	return c
}

// WithDisabled returns a copy with the named analyzers disabled.
func (c Config) WithDisabled(names ...string) Config {
	d := slices.Clone(c.Disabled)
	for _, n := range names {
		if !slices.Contains(d, n) {
			d = append(d, n)
		}
	}
	c.Disabled = d
	return c
}

// WithCredential returns a copy with the named credential set.
func (c Config) WithCredential(name, value string) Config {
	c.Credentials = c.Credentials.With(name, value)
	return c
}

// AIEnabled reports whether documentation generation should call a model.
func (c Config) AIEnabled() bool {
	switch c.AI.Provider {
	case AINone:
		return false
	default:
		return c.Credentials.Configured(CredGemini)
	}
}

// FindFile returns the config file inside the repository, or "" when absent.
func FindFile(repoPath string) string {
	p := filepath.Join(repoPath, DefaultFileName)
	if st, err := os.Stat(p); err == nil && !st.IsDir() {
		return p
	}
	return ""
}

// Validate checks the configuration before any pipeline stage runs.
func (c Config) Validate() error {
	if c.RepoPath == "" {
		return errors.New(errors.ErrCodeInvalidRepo, "repository path is required")
	}
	st, err := os.Stat(c.RepoPath)
	if err != nil {
		return errors.New(errors.ErrCodeInvalidRepo, "repository path does not exist: %s", c.RepoPath)
	}
	if !st.IsDir() {
		return errors.New(errors.ErrCodeInvalidRepo, "repository path is not a directory: %s", c.RepoPath)
	}
	if c.OutDir == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "output directory is required")
	}
	if c.Workers < 1 {
		return errors.New(errors.ErrCodeInvalidConfig, "workers must be at least 1, got %d", c.Workers)
	}
	if c.AnalyzerTimeout <= 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "analyzer timeout must be positive")
	}
	for name, d := range c.Timeouts {
		if d <= 0 {
			return errors.New(errors.ErrCodeInvalidConfig, "timeout for %s must be positive", name)
		}
	}
	if err := c.Cache.validate(c.Credentials); err != nil {
		return err
	}
	switch c.AI.Provider {
	case AIAuto, AIGemini, AINone:
	default:
		return errors.New(errors.ErrCodeInvalidConfig, "unknown AI provider %q", c.AI.Provider)
	}
	return c.Upload.validate(c.Credentials)
}

func (cc CacheConfig) validate(creds Credentials) error {
	switch cc.Backend {
	case CacheFile, CacheMemory, CacheNone:
	case CacheRedis:
		if !creds.Configured(CredRedisURL) {
			return errors.New(errors.ErrCodeInvalidConfig, "cache backend redis requires %s", CredRedisURL)
		}
	default:
		return errors.New(errors.ErrCodeInvalidConfig, "unknown cache backend %q", cc.Backend)
	}
	if cc.TTL < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "cache ttl cannot be negative")
	}
	return nil
}

func (u UploadConfig) validate(creds Credentials) error {
	switch u.Target {
	case UploadNone:
		return nil
	case UploadHTTP:
		if err := errors.ValidateURL(u.URL); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "upload url")
		}
		switch u.Method {
		case MethodZip, MethodIndividual:
		default:
			return errors.New(errors.ErrCodeInvalidConfig, "unknown upload method %q", u.Method)
		}
		switch u.AuthType {
		case AuthBearer, AuthSAS:
		case AuthCustom:
			if u.CustomHeader == "" {
				return errors.New(errors.ErrCodeInvalidConfig, "auth type custom requires a header name")
			}
		default:
			return errors.New(errors.ErrCodeInvalidConfig, "unknown upload auth type %q", u.AuthType)
		}
	case UploadS3:
		if u.S3.Endpoint == "" || u.S3.Bucket == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "s3 upload requires endpoint and bucket")
		}
		if !creds.Configured(CredS3AccessKey) || !creds.Configured(CredS3SecretKey) {
			return errors.New(errors.ErrCodeInvalidConfig, "s3 upload requires %s and %s", CredS3AccessKey, CredS3SecretKey)
		}
	case UploadMongo:
		if !creds.Configured(CredMongoURI) {
			return errors.New(errors.ErrCodeInvalidConfig, "mongo upload requires %s", CredMongoURI)
		}
		if u.Mongo.Database == "" || u.Mongo.Collection == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "mongo upload requires database and collection")
		}
	default:
		return errors.New(errors.ErrCodeInvalidConfig, "unknown upload target %q", u.Target)
	}
	return nil
}
