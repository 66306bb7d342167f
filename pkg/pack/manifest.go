package pack

import (
	"bufio"
	"bytes"
	"fmt"
	"slices"
	"strings"

	"github.com/matzehuels/evidencepack/pkg/cache"
	"github.com/matzehuels/evidencepack/pkg/errors"
)

// Entry is one line of SHA256SUMS.
type Entry struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// Manifest describes an assembled pack.
type Manifest struct {
	Dir     string  `json:"dir"`
	Entries []Entry `json:"entries"`
	// Digest is the SHA-256 of the SHA256SUMS file itself.
	Digest string `json:"digest"`
}

// Paths returns the listed paths in manifest order.
func (m *Manifest) Paths() []string {
	out := make([]string, len(m.Entries))
	for i, e := range m.Entries {
		out[i] = e.Path
	}
	return out
}

// FormatChecksums renders entries as SHA256SUMS, one "<hex>  <path>" line
// per entry, sorted by path.
func FormatChecksums(entries []Entry) []byte {
	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, func(a, b Entry) int { return strings.Compare(a.Path, b.Path) })
	var b bytes.Buffer
	for _, e := range sorted {
		fmt.Fprintf(&b, "%s  %s\n", e.SHA256, e.Path)
	}
	return b.Bytes()
}

// ParseChecksums reads a SHA256SUMS file. Every path must be a valid
// pack-relative path.
func ParseChecksums(data []byte) ([]Entry, error) {
	var entries []Entry
	seen := map[string]bool{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for n := 1; sc.Scan(); n++ {
		line := sc.Text()
		if line == "" {
			continue
		}
		sum, path, ok := strings.Cut(line, "  ")
		if !ok || len(sum) != 64 || !isHex(sum) {
			return nil, errors.New(errors.ErrCodeInvalidPack, "%s line %d: malformed entry", FileChecksums, n)
		}
		if err := errors.ValidatePath(path); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidPack, err, "%s line %d", FileChecksums, n)
		}
		if seen[path] {
			return nil, errors.New(errors.ErrCodeInvalidPack, "%s line %d: duplicate path %s", FileChecksums, n, path)
		}
		seen[path] = true
		entries = append(entries, Entry{Path: path, SHA256: sum})
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPack, err, "read %s", FileChecksums)
	}
	return entries, nil
}

func manifestFor(dir string, entries []Entry, sums []byte) *Manifest {
	return &Manifest{Dir: dir, Entries: entries, Digest: cache.Hash(sums)}
}

func isHex(s string) bool {
	for _, r := range s {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			return false
		}
	}
	return true
}
