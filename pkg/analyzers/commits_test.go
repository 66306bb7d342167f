package analyzers

import (
	"context"
	"os/exec"
	"testing"

	"github.com/matzehuels/evidencepack/pkg/analysis"
)

func TestParseGitLog(t *testing.T) {
	out := "abc123\x1fAda\x1fada@example.com\x1f2024-05-01T10:00:00+00:00\x1ffeat: add parser\n\nbody\n\x1e\n" +
		"def456\x1fBob\x1fbob@example.com\x1f2024-04-30T09:00:00+00:00\x1ffix: typo\n\x1e\n" +
		"broken record\x1e"

	commits := ParseGitLog(out)
	if len(commits) != 2 {
		t.Fatalf("len = %d, want 2", len(commits))
	}
	if commits[0].SHA != "abc123" || commits[0].Author.Email != "ada@example.com" {
		t.Errorf("commits[0] = %+v", commits[0])
	}
	if commits[0].Message != "feat: add parser\n\nbody" {
		t.Errorf("Message = %q", commits[0].Message)
	}
	if commits[1].Date != "2024-04-30T09:00:00+00:00" {
		t.Errorf("Date = %q", commits[1].Date)
	}
	if got := ParseGitLog(""); len(got) != 0 {
		t.Errorf("ParseGitLog(\"\") = %v, want empty", got)
	}
}

func TestCommitsNotARepository(t *testing.T) {
	res := NewCommits().Invoke(context.Background(), requestFor(t.TempDir()))
	if res.Status != analysis.StatusSkipped {
		t.Errorf("Status = %q, want skipped", res.Status)
	}
}

func TestCommitsRepository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	for _, args := range [][]string{
		{"init", "-q", "-b", "main"},
		{"-c", "user.name=Ada", "-c", "user.email=ada@example.com", "commit", "-q", "--allow-empty", "-m", "initial"},
		{"tag", "v0.1.0"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Skipf("git %v: %v: %s", args, err, out)
		}
	}

	res := NewCommits().Invoke(context.Background(), requestFor(dir))
	report, ok := analysis.Payload[HistoryReport](res)
	if !ok {
		t.Fatalf("result = %+v, want usable history", res)
	}
	if report.TotalCommits != 1 {
		t.Errorf("TotalCommits = %d, want 1", report.TotalCommits)
	}
	if len(report.RecentCommits) != 1 || report.RecentCommits[0].Message != "initial" {
		t.Errorf("RecentCommits = %+v", report.RecentCommits)
	}
	if len(report.Tags) != 1 || report.Tags[0] != "v0.1.0" {
		t.Errorf("Tags = %v, want [v0.1.0]", report.Tags)
	}
	if len(report.Branches) != 1 || report.Branches[0] != "main" {
		t.Errorf("Branches = %v, want [main]", report.Branches)
	}
}
