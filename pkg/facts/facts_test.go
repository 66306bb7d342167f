package facts

import (
	"context"
	"path/filepath"
	"testing"
)

func TestNameFromRemote(t *testing.T) {
	tests := []struct {
		remote string
		want   string
	}{
		{"https://github.com/org/service.git", "service"},
		{"https://github.com/org/service", "service"},
		{"https://github.com/org/service/", "service"},
		{"git@github.com:org/service.git", "service"},
		{"git@host:service.git", "service"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.remote, func(t *testing.T) {
			if got := nameFromRemote(tt.remote); got != tt.want {
				t.Errorf("nameFromRemote(%q) = %q, want %q", tt.remote, got, tt.want)
			}
		})
	}
}

func TestCollectWithoutGit(t *testing.T) {
	dir := t.TempDir()
	f := Collect(context.Background(), dir, Options{BuildID: "42"})

	if f.HasGit {
		t.Error("HasGit = true, want false")
	}
	if f.Name != filepath.Base(dir) {
		t.Errorf("Name = %q, want %q", f.Name, filepath.Base(dir))
	}
	if f.CommitSHA != Unknown {
		t.Errorf("CommitSHA = %q, want %q", f.CommitSHA, Unknown)
	}
	if f.Branch != Unknown {
		t.Errorf("Branch = %q, want %q", f.Branch, Unknown)
	}
	if f.BuildID != "42" {
		t.Errorf("BuildID = %q, want %q", f.BuildID, "42")
	}
}

func TestCollectOverrides(t *testing.T) {
	f := Collect(context.Background(), t.TempDir(), Options{Name: "payments", CommitSHA: "0123456789abcdef"})
	if f.Name != "payments" {
		t.Errorf("Name = %q, want %q", f.Name, "payments")
	}
	if f.ShortSHA() != "0123456" {
		t.Errorf("ShortSHA() = %q, want %q", f.ShortSHA(), "0123456")
	}
}

func TestShortSHA(t *testing.T) {
	if got := (Facts{CommitSHA: Unknown}).ShortSHA(); got != Unknown {
		t.Errorf("ShortSHA() = %q, want %q", got, Unknown)
	}
}
