package analyzers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/matzehuels/evidencepack/pkg/analysis"
	"github.com/matzehuels/evidencepack/pkg/tool"
)

// History defaults.
const (
	historyScanDepth = 100
	historyRecent    = 20
)

// Commits summarizes the git history: recent commits, tags and branches.
type Commits struct{}

// NewCommits returns the commits analyzer.
func NewCommits() *Commits { return &Commits{} }

func (c *Commits) Info() analysis.Info {
	return analysis.Info{Name: NameCommits, Generic: true}
}

func (c *Commits) Invoke(ctx context.Context, req analysis.Request) analysis.Result {
	if _, err := os.Stat(filepath.Join(req.RepoPath, ".git")); err != nil {
		return analysis.Skipped("not a git repository")
	}

	out, err := git(ctx, req.RepoPath, "log", "-n", strconv.Itoa(historyScanDepth),
		"--format=%H%x1f%an%x1f%ae%x1f%cI%x1f%B%x1e")
	if err != nil {
		return analysis.Failedf("git log: %v", err)
	}
	commits := ParseGitLog(out)

	report := HistoryReport{
		TotalCommits:  len(commits),
		RecentCommits: commits[:min(len(commits), historyRecent)],
		Tags:          []string{},
		Branches:      []string{},
	}

	var warnings []string
	if n, err := git(ctx, req.RepoPath, "rev-list", "--count", "HEAD"); err == nil {
		if total, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			report.TotalCommits = total
		}
	} else {
		warnings = append(warnings, fmt.Sprintf("count commits: %v", err))
	}
	if tags, err := git(ctx, req.RepoPath, "tag", "--list", "--sort=-creatordate"); err == nil {
		report.Tags = splitLines(tags)
	} else {
		warnings = append(warnings, fmt.Sprintf("list tags: %v", err))
	}
	if branches, err := git(ctx, req.RepoPath, "branch", "--list", "--format=%(refname:short)"); err == nil {
		report.Branches = splitLines(branches)
	} else {
		warnings = append(warnings, fmt.Sprintf("list branches: %v", err))
	}

	if len(warnings) > 0 {
		return analysis.Partial(report, warnings...)
	}
	return analysis.OK(report)
}

func git(ctx context.Context, dir string, args ...string) (string, error) {
	out, err := tool.Run(ctx, tool.Command{Name: "git", Args: args, Dir: dir})
	if err != nil {
		return "", err
	}
	return string(out.Stdout), nil
}

// ParseGitLog reads records separated by 0x1e with fields separated by 0x1f:
// hash, author name, author email, committer date, message.
func ParseGitLog(out string) []Commit {
	commits := []Commit{}
	for _, rec := range strings.Split(out, "\x1e") {
		rec = strings.TrimSpace(rec)
		if rec == "" {
			continue
		}
		f := strings.SplitN(rec, "\x1f", 5)
		if len(f) < 5 {
			continue
		}
		commits = append(commits, Commit{
			SHA:     f[0],
			Author:  Author{Name: f[1], Email: f[2]},
			Date:    f[3],
			Message: strings.TrimSpace(f[4]),
		})
	}
	return commits
}

func splitLines(s string) []string {
	out := []string{}
	for _, l := range strings.Split(s, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
