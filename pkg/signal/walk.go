package signal

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
)

// Walk defaults.
const (
	DefaultMaxDepth     = 32
	DefaultExcerptLimit = 64 << 10
)

// DefaultIgnore names directories that are never descended into.
var DefaultIgnore = []string{
	".git", ".hg", ".svn",
	"node_modules", ".venv", "venv", "__pycache__", "vendor",
	".tox", ".mypy_cache", ".pytest_cache",
	"dist", "build", "target", ".next", "coverage",
}

// Options configures Walk. Start from DefaultOptions; the zero value does
// not follow symlinks. Followed symlinks never lead outside the walk root.
type Options struct {
	// Ignore holds directory base names to skip. Nil means DefaultIgnore.
	Ignore         []string
	MaxDepth       int
	ExcerptLimit   int
	FollowSymlinks bool
	Logger         *log.Logger
}

// DefaultOptions returns the standard walk options.
func DefaultOptions() Options {
	return Options{
		Ignore:         DefaultIgnore,
		MaxDepth:       DefaultMaxDepth,
		ExcerptLimit:   DefaultExcerptLimit,
		FollowSymlinks: true,
	}
}

func (o *Options) setDefaults() {
	if o.Ignore == nil {
		o.Ignore = DefaultIgnore
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.ExcerptLimit <= 0 {
		o.ExcerptLimit = DefaultExcerptLimit
	}
	if o.Logger == nil {
		o.Logger = log.New(io.Discard)
	}
}

// Extract walks root and returns every signal sorted by path.
func Extract(ctx context.Context, root string, opts Options) ([]Signal, error) {
	var out []Signal
	err := Walk(ctx, root, opts, func(s Signal) error {
		out = append(out, s)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(out, func(a, b Signal) int { return strings.Compare(a.Path, b.Path) })
	return out, nil
}

// Walk visits root depth-first and calls fn for each signal. Siblings are
// visited in byte order of their names, with directories compared as
// "name/", so files are reported in lexical path order. An error from fn
// stops the walk and is returned.
func Walk(ctx context.Context, root string, opts Options, fn func(Signal) error) error {
	opts.setDefaults()

	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &os.PathError{Op: "walk", Path: root, Err: os.ErrInvalid}
	}

	w := &walker{
		opts:    opts,
		fn:      fn,
		visited: make(map[string]bool),
	}
	if real, err := filepath.EvalSymlinks(root); err == nil {
		w.visited[real] = true
	}
	if w.root, err = filepath.Abs(root); err != nil {
		return err
	}
	if real, err := filepath.EvalSymlinks(w.root); err == nil {
		w.root = real
	}
	return w.dir(ctx, root, ".", 0)
}

type walker struct {
	opts    Options
	root    string
	fn      func(Signal) error
	visited map[string]bool
}

type entry struct {
	name  string
	isDir bool
}

func (w *walker) dir(ctx context.Context, abs, rel string, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	des, err := os.ReadDir(abs)
	if err != nil {
		w.opts.Logger.Debug("skipping unreadable directory", "path", rel, "error", err)
		return nil
	}

	entries := make([]entry, 0, len(des))
	for _, de := range des {
		e := entry{name: de.Name(), isDir: de.IsDir()}
		if de.Type()&os.ModeSymlink != 0 {
			if !w.opts.FollowSymlinks {
				continue
			}
			target, err := filepath.EvalSymlinks(filepath.Join(abs, e.name))
			if err != nil {
				w.opts.Logger.Debug("skipping broken symlink", "path", join(rel, e.name), "error", err)
				continue
			}
			if !w.contains(target) {
				w.opts.Logger.Debug("skipping symlink leaving the repository", "path", join(rel, e.name))
				continue
			}
			st, err := os.Stat(target)
			if err != nil {
				w.opts.Logger.Debug("skipping broken symlink", "path", join(rel, e.name), "error", err)
				continue
			}
			e.isDir = st.IsDir()
		}
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b entry) int { return strings.Compare(a.key(), b.key()) })

	for _, e := range entries {
		childAbs := filepath.Join(abs, e.name)
		childRel := join(rel, e.name)

		if e.isDir {
			if slices.Contains(w.opts.Ignore, e.name) {
				continue
			}
			if d, ok := matchDir(childRel); ok {
				if err := w.fn(Signal{Kind: KindDirectory, Path: childRel, Dir: rel, Name: d}); err != nil {
					return err
				}
			}
			if depth+1 > w.opts.MaxDepth {
				w.opts.Logger.Debug("max depth reached", "path", childRel)
				continue
			}
			real, err := filepath.EvalSymlinks(childAbs)
			if err != nil {
				w.opts.Logger.Debug("skipping unresolvable directory", "path", childRel, "error", err)
				continue
			}
			if w.visited[real] {
				w.opts.Logger.Debug("skipping already visited directory", "path", childRel)
				continue
			}
			w.visited[real] = true
			if err := w.dir(ctx, childAbs, childRel, depth+1); err != nil {
				return err
			}
			continue
		}

		m, ok := matchMarker(e.name)
		if !ok {
			continue
		}
		s := Signal{Kind: m.Kind, Path: childRel, Dir: rel, Name: e.name}
		if m.Excerpt {
			excerpt, err := readExcerpt(childAbs, w.opts.ExcerptLimit)
			if err != nil {
				w.opts.Logger.Debug("skipping unreadable file", "path", childRel, "error", err)
				continue
			}
			s.Excerpt = excerpt
		}
		if err := w.fn(s); err != nil {
			return err
		}
	}
	return nil
}

// contains reports whether the resolved path lies inside the walk root.
func (w *walker) contains(real string) bool {
	real, err := filepath.Abs(real)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(w.root, real)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (e entry) key() string {
	if e.isDir {
		return e.name + "/"
	}
	return e.name
}

func join(dir, name string) string {
	if dir == "." {
		return name
	}
	return path.Join(dir, name)
}

func readExcerpt(p string, limit int) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()
	b, err := io.ReadAll(io.LimitReader(f, int64(limit)))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
