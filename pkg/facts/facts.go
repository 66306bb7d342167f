// Package facts collects repository metadata for repo_facts.json.
package facts

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/matzehuels/evidencepack/pkg/errors"
	"github.com/matzehuels/evidencepack/pkg/tool"
)

// Unknown is reported for values git could not provide.
const Unknown = "unknown"

// Facts describes the analyzed repository.
type Facts struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	CommitSHA string `json:"commit_sha"`
	Branch    string `json:"branch"`
	URL       string `json:"url"`
	BuildID   string `json:"build_id"`
	HasGit    bool   `json:"has_git"`
}

// ShortSHA returns the first seven characters of the commit.
func (f Facts) ShortSHA() string {
	if len(f.CommitSHA) > 7 && f.CommitSHA != Unknown {
		return f.CommitSHA[:7]
	}
	return f.CommitSHA
}

// Options override values that git would otherwise provide.
type Options struct {
	Name      string
	CommitSHA string
	BuildID   string
}

// Collect gathers facts for the repository at repoPath. Git failures are
// not errors: the affected fields become [Unknown].
func Collect(ctx context.Context, repoPath string, opts Options) Facts {
	abs, err := filepath.Abs(repoPath)
	if err != nil {
		abs = repoPath
	}
	f := Facts{
		Path:    abs,
		BuildID: opts.BuildID,
		HasGit:  hasGit(abs),
	}

	remote := errors.RedactURL(git(ctx, abs, "config", "--get", "remote.origin.url"))
	f.URL = remote

	f.Name = opts.Name
	if f.Name == "" {
		f.Name = nameFromRemote(remote)
	}
	if f.Name == "" {
		f.Name = filepath.Base(abs)
	}

	f.CommitSHA = opts.CommitSHA
	if f.CommitSHA == "" {
		f.CommitSHA = orUnknown(git(ctx, abs, "rev-parse", "HEAD"))
	}
	f.Branch = orUnknown(git(ctx, abs, "symbolic-ref", "--short", "HEAD"))
	return f
}

func hasGit(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil
}

// git runs a git subcommand in dir and returns trimmed stdout, or "" on any
// failure (git missing, not a repository, detached HEAD).
func git(ctx context.Context, dir string, args ...string) string {
	out, err := tool.Run(ctx, tool.Command{Name: "git", Args: args, Dir: dir})
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out.Stdout))
}

// nameFromRemote extracts "repo" from https://host/org/repo.git or
// git@host:org/repo.git.
func nameFromRemote(remote string) string {
	remote = strings.TrimSuffix(strings.TrimRight(remote, "/"), ".git")
	if remote == "" {
		return ""
	}
	if i := strings.LastIndexAny(remote, "/:"); i >= 0 {
		return remote[i+1:]
	}
	return remote
}

func orUnknown(s string) string {
	if s == "" {
		return Unknown
	}
	return s
}
