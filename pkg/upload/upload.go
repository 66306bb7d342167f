// Package upload publishes an assembled evidence pack.
//
// Three targets are supported: an HTTP compliance endpoint (zip or
// individual files), an S3-compatible bucket, and a MongoDB collection that
// indexes packs by repository and commit. Every uploader reads the pack
// from disk after assembly, so a failed upload never affects the pack.
//
// Upload errors carry the UPLOAD_FAILED code. Credentials are sent in
// headers or client options and never appear in results, errors or logs.
package upload

import (
	"context"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/evidencepack/pkg/config"
	"github.com/matzehuels/evidencepack/pkg/errors"
	"github.com/matzehuels/evidencepack/pkg/evidence"
	"github.com/matzehuels/evidencepack/pkg/pack"
)

// Pack identifies an assembled pack and the data uploaders index it by.
type Pack struct {
	Dir      string
	Repo     string
	Commit   string
	Manifest *pack.Manifest
	Summary  evidence.Summary
	Build    evidence.Build
}

// Result describes a completed upload.
type Result struct {
	Target       string `json:"target"`
	Method       string `json:"method,omitempty"`
	PublishedURL string `json:"published_url,omitempty"`
	Files        int    `json:"files"`
	Bytes        int64  `json:"bytes"`
}

// Uploader publishes a pack.
type Uploader interface {
	Name() string
	Upload(ctx context.Context, p Pack) (*Result, error)
}

// New returns the uploader selected by cfg.Upload.Target, or nil when no
// upload is configured.
func New(cfg config.Config, logger *log.Logger) (Uploader, error) {
	if logger == nil {
		logger = log.Default()
	}
	u := cfg.Upload
	switch u.Target {
	case config.UploadNone:
		return nil, nil
	case config.UploadHTTP:
		token, _ := cfg.Credentials.Get(config.CredUploadToken)
		return NewHTTP(u, token, logger), nil
	case config.UploadS3:
		access, _ := cfg.Credentials.Get(config.CredS3AccessKey)
		secret, _ := cfg.Credentials.Get(config.CredS3SecretKey)
		s3, err := NewS3(u.S3, access, secret, logger)
		if err != nil {
			return nil, err
		}
		return s3, nil
	case config.UploadMongo:
		uri, _ := cfg.Credentials.Get(config.CredMongoURI)
		return NewMongo(u.Mongo, uri, logger), nil
	}
	return nil, errors.New(errors.ErrCodeInvalidConfig, "unknown upload target %q", u.Target)
}

// files returns the pack files in manifest order followed by SHA256SUMS.
func (p Pack) files() []string {
	paths := p.Manifest.Paths()
	return append(paths, pack.FileChecksums)
}

func (p Pack) read(rel string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(p.Dir, filepath.FromSlash(rel)))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeUpload, err, "read %s", rel)
	}
	return data, nil
}

func (p Pack) validate() error {
	if p.Manifest == nil {
		return errors.New(errors.ErrCodeUpload, "pack has no manifest")
	}
	if p.Repo == "" || p.Commit == "" {
		return errors.New(errors.ErrCodeUpload, "pack needs a repository name and commit")
	}
	return nil
}

// contentType maps a pack file to its upload content type.
func contentType(rel string) string {
	switch filepath.Ext(rel) {
	case ".json":
		return "application/json"
	case ".md":
		return "text/markdown"
	case ".mmd", ".puml", ".txt":
		return "text/plain"
	case ".zip":
		return "application/zip"
	}
	if rel == pack.FileChecksums {
		return "text/plain"
	}
	return "application/octet-stream"
}
