// Package locate finds run files on a search path.
//
// A SearchPath walks an ordered list of directories on a go-billy filesystem
// (osfs in production, memfs in tests) and returns the first file whose name
// matches the run hint. Preferred extensions are tried before alternates.
package locate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
)

// RunDigits is the zero-padded width of run numbers in file names.
const RunDigits = 6

// ErrNotFound is matched by every NotFoundError.
var ErrNotFound = errors.New("locate: file not found")

// Hint describes the run file to look for.
type Hint struct {
	Instrument string
	Run        int

	// Extension is the preferred extension, with or without a leading dot.
	Extension string

	// Dir, when set, is searched before the configured directories.
	Dir string
}

// Locator resolves run hints and plain file names to paths.
type Locator interface {
	// Find returns the path of the run file and its actual extension.
	Find(ctx context.Context, hint Hint) (path, ext string, err error)

	// FindFile returns the path of a file referenced by name.
	FindFile(ctx context.Context, name string) (string, error)
}

// NotFoundError reports a failed lookup together with every path tried.
type NotFoundError struct {
	Target string
	Tried  []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("locate %s: no match among %d candidates", e.Target, len(e.Tried))
}

// Is makes errors.Is(err, ErrNotFound) true for NotFoundError.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// SearchPath is a Locator over an ordered list of directories.
//
// Thread-safety: SearchPath is immutable after construction and safe for
// concurrent use.
type SearchPath struct {
	fs         billy.Filesystem
	dirs       []string
	extensions []string
}

// Option configures a SearchPath.
type Option func(*SearchPath)

// WithExtensions sets the alternate extensions tried after the preferred one.
func WithExtensions(exts ...string) Option {
	return func(s *SearchPath) {
		s.extensions = s.extensions[:0]
		for _, ext := range exts {
			if ext = normalizeExt(ext); ext != "" {
				s.extensions = append(s.extensions, ext)
			}
		}
	}
}

var _ Locator = (*SearchPath)(nil)

// New creates a SearchPath over fs. An empty dirs list searches the
// filesystem root.
func New(fs billy.Filesystem, dirs []string, opts ...Option) *SearchPath {
	s := &SearchPath{fs: fs}
	for _, d := range dirs {
		if d != "" {
			s.dirs = append(s.dirs, d)
		}
	}
	if len(s.dirs) == 0 {
		s.dirs = []string{"/"}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dirs returns the configured search directories in order.
func (s *SearchPath) Dirs() []string {
	return append([]string(nil), s.dirs...)
}

// Find looks for <INST><run padded to 6> and <INST><run> in the hint
// directory and then each search directory. Within a directory the
// preferred extension wins over alternates.
func (s *SearchPath) Find(ctx context.Context, hint Hint) (string, string, error) {
	if hint.Run < 0 {
		return "", "", fmt.Errorf("locate: negative run number %d", hint.Run)
	}

	bases := []string{fmt.Sprintf("%s%0*d", hint.Instrument, RunDigits, hint.Run)}
	if plain := fmt.Sprintf("%s%d", hint.Instrument, hint.Run); plain != bases[0] {
		bases = append(bases, plain)
	}
	exts := s.extensionOrder(hint.Extension)

	var tried []string
	for _, dir := range s.searchDirs(hint.Dir) {
		if err := ctx.Err(); err != nil {
			return "", "", err
		}
		for _, ext := range exts {
			for _, base := range bases {
				candidate := filepath.Join(dir, base+ext)
				ok, err := s.isFile(candidate)
				if err != nil {
					return "", "", err
				}
				if ok {
					return candidate, ext, nil
				}
				tried = append(tried, candidate)
			}
		}
	}

	return "", "", &NotFoundError{
		Target: fmt.Sprintf("run %s%d", hint.Instrument, hint.Run),
		Tried:  tried,
	}
}

// FindFile returns name itself when it exists, otherwise the first search
// directory that contains it.
func (s *SearchPath) FindFile(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("locate: empty file name")
	}

	var tried []string
	candidates := []string{name}
	if !filepath.IsAbs(name) {
		for _, dir := range s.dirs {
			candidates = append(candidates, filepath.Join(dir, name))
		}
	}

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		ok, err := s.isFile(candidate)
		if err != nil {
			return "", err
		}
		if ok {
			return candidate, nil
		}
		tried = append(tried, candidate)
	}

	return "", &NotFoundError{Target: name, Tried: tried}
}

func (s *SearchPath) searchDirs(first string) []string {
	if first == "" {
		return s.dirs
	}
	dirs := []string{first}
	for _, d := range s.dirs {
		if d != first {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

func (s *SearchPath) extensionOrder(preferred string) []string {
	var exts []string
	if p := normalizeExt(preferred); p != "" {
		exts = append(exts, p)
	}
	for _, ext := range s.extensions {
		if !containsFold(exts, ext) {
			exts = append(exts, ext)
		}
	}
	return exts
}

func (s *SearchPath) isFile(path string) (bool, error) {
	info, err := s.fs.Stat(path)
	switch {
	case err == nil:
		return !info.IsDir(), nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, fmt.Errorf("locate: stat %q: %w", path, err)
	}
}

func normalizeExt(ext string) string {
	ext = strings.TrimSpace(ext)
	if ext == "" || ext == "." {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
