package pack

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/evidencepack/pkg/errors"
	"github.com/matzehuels/evidencepack/pkg/evidence"
)

// Assembler writes packs to disk.
type Assembler struct {
	Logger *log.Logger
}

// NewAssembler returns an assembler that logs to the default logger.
func NewAssembler() *Assembler {
	return &Assembler{Logger: log.Default()}
}

// LockPath returns the advisory lock file guarding outDir.
func LockPath(outDir string) string {
	return filepath.Clean(outDir) + ".lock"
}

// Assemble renders m and writes it to outDir. Files are written to a
// sibling staging directory, SHA256SUMS is written last, and the staging
// directory then replaces outDir. On failure outDir is left untouched and
// the staging directory is removed.
//
// A concurrent Assemble on the same outDir fails with LOCKED. A lock whose
// owning process has exited is reclaimed.
func (a *Assembler) Assemble(ctx context.Context, m evidence.Model, outDir string) (*Manifest, error) {
	logger := a.Logger
	if logger == nil {
		logger = log.Default()
	}
	start := time.Now()

	outDir, err := filepath.Abs(outDir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeAssembly, err, "resolve output directory")
	}
	parent := filepath.Dir(outDir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeAssembly, err, "create %s", parent)
	}

	unlock, err := acquireLock(LockPath(outDir))
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := checkReplaceable(outDir); err != nil {
		return nil, err
	}

	files, err := Render(m)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeAssembly, err, "render pack")
	}

	staging, err := os.MkdirTemp(parent, "."+filepath.Base(outDir)+".staging-")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeAssembly, err, "create staging directory")
	}
	committed := false
	defer func() {
		if !committed {
			os.RemoveAll(staging)
		}
	}()

	entries := make([]Entry, 0, len(files))
	for _, rel := range files.Paths() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e, err := writeFile(staging, rel, files[rel])
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeAssembly, err, "write %s", rel)
		}
		entries = append(entries, e)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sums := FormatChecksums(entries)
	if _, err := writeFile(staging, FileChecksums, sums); err != nil {
		return nil, errors.Wrap(errors.ErrCodeAssembly, err, "write %s", FileChecksums)
	}

	if err := swap(staging, outDir); err != nil {
		return nil, err
	}
	committed = true

	logger.Info("assembled pack", "dir", outDir, "files", len(entries), "duration", time.Since(start))
	return manifestFor(outDir, entries, sums), nil
}

// acquireLock creates the lock file holding the current PID. A lock left
// behind by a process that no longer exists is removed and taken over.
func acquireLock(path string) (func(), error) {
	for attempt := 0; ; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			fmt.Fprintln(f, strconv.Itoa(os.Getpid()))
			f.Close()
			return func() { os.Remove(path) }, nil
		}
		if !os.IsExist(err) {
			return nil, errors.Wrap(errors.ErrCodeAssembly, err, "create lock %s", path)
		}
		pid, ok := lockOwner(path)
		if !ok || attempt > 0 || processAlive(pid) {
			return nil, errors.New(errors.ErrCodeLocked,
				"output directory is locked by another run; remove %s if no run is active", path)
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeAssembly, err, "remove stale lock %s", path)
		}
	}
}

// lockOwner reads the PID recorded in a lock file.
func lockOwner(path string) (int, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// checkReplaceable refuses to replace a non-empty directory that is not a
// pack.
func checkReplaceable(outDir string) error {
	info, err := os.Stat(outDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(errors.ErrCodeAssembly, err, "stat %s", outDir)
	}
	if !info.IsDir() {
		return errors.New(errors.ErrCodeAssembly, "%s exists and is not a directory", outDir)
	}
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return errors.Wrap(errors.ErrCodeAssembly, err, "read %s", outDir)
	}
	if len(entries) == 0 {
		return nil
	}
	if _, err := os.Stat(filepath.Join(outDir, FileChecksums)); err != nil {
		return errors.New(errors.ErrCodeAssembly, "%s is not empty and is not an evidence pack", outDir)
	}
	return nil
}

// swap moves staging into place, keeping the old pack until the rename
// succeeded.
func swap(staging, outDir string) error {
	var backup string
	if _, err := os.Stat(outDir); err == nil {
		backup = outDir + ".old-" + strconv.FormatInt(time.Now().UnixNano(), 36)
		if err := os.Rename(outDir, backup); err != nil {
			return errors.Wrap(errors.ErrCodeAssembly, err, "move old pack aside")
		}
	}
	if err := os.Rename(staging, outDir); err != nil {
		if backup != "" {
			os.Rename(backup, outDir)
		}
		return errors.Wrap(errors.ErrCodeAssembly, err, "move pack into place")
	}
	if backup != "" {
		os.RemoveAll(backup)
	}
	return nil
}

func writeFile(root, rel string, data []byte) (Entry, error) {
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return Entry{}, err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return Entry{}, err
	}
	h := sha256.New()
	n, err := io.MultiWriter(f, h).Write(data)
	if err != nil {
		f.Close()
		return Entry{}, err
	}
	if err := f.Close(); err != nil {
		return Entry{}, err
	}
	return Entry{Path: rel, SHA256: hex.EncodeToString(h.Sum(nil)), Size: int64(n)}, nil
}
