package pack

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/matzehuels/evidencepack/pkg/cache"
	"github.com/matzehuels/evidencepack/pkg/errors"
)

// Problem kinds reported by Verify.
const (
	ProblemMissing  = "missing"
	ProblemMismatch = "mismatch"
	ProblemUnlisted = "unlisted"
	ProblemNotFile  = "not_a_file"
)

// Problem is one integrity violation.
type Problem struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
}

// Report is the outcome of Verify.
type Report struct {
	Dir      string    `json:"dir"`
	Files    int       `json:"files"`
	Digest   string    `json:"digest"`
	Problems []Problem `json:"problems"`
}

// OK reports whether the pack verified cleanly.
func (r *Report) OK() bool { return len(r.Problems) == 0 }

// Verify recomputes every hash listed in dir/SHA256SUMS. Missing,
// mismatched and unlisted files are reported as problems, and the returned
// error has code INTEGRITY_MISMATCH. A missing or malformed manifest
// returns INVALID_PACK.
func Verify(dir string) (*Report, error) {
	sums, err := os.ReadFile(filepath.Join(dir, FileChecksums))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPack, err, "read %s", FileChecksums)
	}
	entries, err := ParseChecksums(sums)
	if err != nil {
		return nil, err
	}

	report := &Report{Dir: dir, Files: len(entries), Digest: cache.Hash(sums), Problems: []Problem{}}
	listed := map[string]bool{FileChecksums: true}
	for _, e := range entries {
		listed[e.Path] = true
		p := filepath.Join(dir, filepath.FromSlash(e.Path))
		info, err := os.Lstat(p)
		switch {
		case err != nil:
			report.Problems = append(report.Problems, Problem{Path: e.Path, Kind: ProblemMissing})
			continue
		case !info.Mode().IsRegular():
			report.Problems = append(report.Problems, Problem{Path: e.Path, Kind: ProblemNotFile})
			continue
		}
		sum, err := hashFile(p)
		if err != nil || sum != e.SHA256 {
			report.Problems = append(report.Problems, Problem{Path: e.Path, Kind: ProblemMismatch})
		}
	}

	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !listed[rel] {
			report.Problems = append(report.Problems, Problem{Path: rel, Kind: ProblemUnlisted})
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPack, err, "walk %s", dir)
	}

	slices.SortFunc(report.Problems, func(a, b Problem) int {
		return cmp.Or(strings.Compare(a.Path, b.Path), strings.Compare(a.Kind, b.Kind))
	})
	if !report.OK() {
		return report, errors.New(errors.ErrCodeIntegrity, "%d integrity problems in %s", len(report.Problems), dir)
	}
	return report, nil
}

func hashFile(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
