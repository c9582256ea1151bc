// Package fsutil provides the workspace file helpers shared by the
// pipeline stages: scratch directories, copies, moves and cleanup.
package fsutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
)

// Scratch is a private temporary directory owned by one line or run.
type Scratch struct {
	Dir string
}

// NewScratch creates a uniquely named directory under parent.
func NewScratch(parent, prefix string) (*Scratch, error) {
	dir := filepath.Join(parent, fmt.Sprintf(".%s-%s", prefix, uuid.NewString()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch: %w", err)
	}
	return &Scratch{Dir: dir}, nil
}

// Path returns name inside the scratch directory.
func (s *Scratch) Path(name string) string {
	return filepath.Join(s.Dir, name)
}

// Remove deletes the scratch directory and its contents. It is safe to
// call more than once.
func (s *Scratch) Remove() error {
	if s == nil || s.Dir == "" {
		return nil
	}
	return os.RemoveAll(s.Dir)
}

// Exists reports whether name exists.
func Exists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

// CopyFile copies src to dst, replacing dst.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Move renames src to dst, copying across filesystems when needed.
func Move(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := CopyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

// RemoveMatching deletes the regular files in dir matching any of the glob
// patterns and returns their base names, sorted.
func RemoveMatching(dir string, patterns ...string) ([]string, error) {
	seen := make(map[string]bool)
	var removed []string
	for _, p := range patterns {
		matches, err := filepath.Glob(filepath.Join(dir, p))
		if err != nil {
			return removed, err
		}
		for _, m := range matches {
			if seen[m] {
				continue
			}
			seen[m] = true
			info, err := os.Lstat(m)
			if err != nil || info.Mode().Type()&fs.ModeType != 0 {
				continue
			}
			if err := os.Remove(m); err != nil {
				return removed, err
			}
			removed = append(removed, filepath.Base(m))
		}
	}
	sort.Strings(removed)
	return removed, nil
}
