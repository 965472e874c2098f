package ctxmgr

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// CopyContextTree replaces target with an independent copy of source.
//
// The target is removed first, then recreated, then source is walked
// depth-first in lexical order: directories are created before their
// children, regular files are duplicated byte for byte. Links and other
// special files are skipped so the copy never aliases the source. The first
// I/O error aborts the copy and names the offending path; whatever was
// already copied stays on disk.
//
// No locking is done. Copying a profile that a live browser is writing to
// produces an inconsistent tree.
func (s *Store) CopyContextTree(source, target string) error {
	source = filepath.Clean(source)
	target = filepath.Clean(target)

	overlap, err := overlapping(source, target)
	if err != nil {
		return err
	}
	if overlap {
		return fmt.Errorf("copy %s to %s: %w", source, target, ErrOverlappingPaths)
	}

	if err := s.fs.RemoveAll(target); err != nil {
		return fmt.Errorf("remove %s: %w", target, err)
	}
	if err := s.EnsureDirectory(target); err != nil {
		return err
	}

	return afero.Walk(s.fs, source, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		rel, err := filepath.Rel(source, path)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", path, err)
		}
		if rel == "." {
			return nil
		}
		dest := filepath.Join(target, rel)

		switch {
		case info.IsDir():
			return s.EnsureDirectory(dest)
		case info.Mode().IsRegular():
			return s.copyFile(path, dest, info.Mode().Perm())
		default:
			s.logger.Debug("Skipping non-regular profile entry",
				zap.String("path", path),
				zap.String("mode", info.Mode().String()))
			return nil
		}
	})
}

func (s *Store) copyFile(source, target string, perm os.FileMode) error {
	in, err := s.fs.Open(source)
	if err != nil {
		return fmt.Errorf("open %s: %w", source, err)
	}
	defer in.Close()

	out, err := s.fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", source, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", target, err)
	}
	return nil
}

// MeasureTreeSize sums the sizes of all regular files under path.
// A missing path or any traversal error yields 0, so a zero result does not
// distinguish an empty tree from an unreadable one.
func (s *Store) MeasureTreeSize(path string) int64 {
	var total int64
	err := afero.Walk(s.fs, path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0
	}
	return total
}

// overlapping compares absolute forms so a relative root cannot hide
// an overlap with an absolute path
func overlapping(a, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, fmt.Errorf("resolve %s: %w", a, err)
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return false, fmt.Errorf("resolve %s: %w", b, err)
	}
	return within(absA, absB) || within(absB, absA), nil
}

// within reports whether path is parent or lives below it
func within(parent, path string) bool {
	rel, err := filepath.Rel(parent, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
