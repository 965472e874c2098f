package ctxmgr

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// ExportBase writes the base profile to w as a tar.gz archive
func (s *Store) ExportBase(w io.Writer) error {
	if _, ok := s.BaseContext(); !ok {
		return fmt.Errorf("base context is missing or empty")
	}
	if err := s.compressDirectory(s.BasePath(), w); err != nil {
		return fmt.Errorf("failed to compress base context: %w", err)
	}
	return nil
}

// ImportBase replaces the base profile with the contents of a tar.gz archive.
// The base is left untouched unless the archive extracts to a non-empty tree.
func (s *Store) ImportBase(r io.Reader) error {
	staging := filepath.Join(s.root, importStagingName)
	if err := s.fs.RemoveAll(staging); err != nil {
		return fmt.Errorf("failed to clear staging directory: %w", err)
	}
	defer s.fs.RemoveAll(staging)

	if err := s.EnsureDirectory(staging); err != nil {
		return err
	}
	if err := s.extractDirectory(r, staging); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArchive, err)
	}
	// An empty archive would leave an empty base behind
	if s.MeasureTreeSize(staging) == 0 {
		return fmt.Errorf("%w: archive holds no files", ErrInvalidArchive)
	}

	return s.CopyContextTree(staging, s.BasePath())
}

// compressDirectory creates a tar.gz archive of a directory
func (s *Store) compressDirectory(source string, w io.Writer) error {
	gzWriter := gzip.NewWriter(w)
	tarWriter := tar.NewWriter(gzWriter)

	err := afero.Walk(s.fs, source, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && !info.Mode().IsRegular() {
			return nil
		}

		relPath, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(relPath)
		if info.IsDir() {
			header.Name += "/"
		}

		if err := tarWriter.WriteHeader(header); err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}

		file, err := s.fs.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()

		_, err = io.Copy(tarWriter, file)
		return err
	})
	if err != nil {
		return err
	}

	if err := tarWriter.Close(); err != nil {
		return err
	}
	return gzWriter.Close()
}

// extractDirectory unpacks a tar.gz stream into target
func (s *Store) extractDirectory(r io.Reader, target string) error {
	gzReader, err := gzip.NewReader(r)
	if err != nil {
		return err
	}
	defer gzReader.Close()

	tarReader := tar.NewReader(gzReader)

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		targetPath := filepath.Join(target, filepath.FromSlash(header.Name))
		if !within(target, targetPath) {
			return fmt.Errorf("archive entry %q escapes target directory", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := s.EnsureDirectory(targetPath); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := s.EnsureDirectory(filepath.Dir(targetPath)); err != nil {
				return err
			}

			perm := os.FileMode(header.Mode).Perm()
			if perm == 0 {
				perm = 0644
			}
			outFile, err := s.fs.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
			if err != nil {
				return err
			}

			if _, err := io.Copy(outFile, tarReader); err != nil {
				outFile.Close()
				return err
			}
			if err := outFile.Close(); err != nil {
				return err
			}
		}
	}

	return nil
}
