package ctxmgr

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/warmcontext/pkg/models"
)

const (
	baseDirName       = "base-context"
	sessionDirPrefix  = "session-"
	defaultDirPerm    = 0755
	importStagingName = ".base-context.import"
)

// ErrOverlappingPaths is returned when a copy would read from or delete into itself.
var ErrOverlappingPaths = errors.New("source and target context paths overlap")

// ErrInvalidArchive is returned by ImportBase for archives that cannot
// become a base profile
var ErrInvalidArchive = errors.New("invalid context archive")

// Store owns the on-disk browser profile directories under a single root.
// The directory contents are written by the browser engine; the store only
// copies whole trees, measures them, and removes them.
type Store struct {
	fs     afero.Fs
	root   string
	logger *zap.Logger
}

// NewStore creates a context store rooted at root, creating it if needed
func NewStore(fs afero.Fs, root string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{fs: fs, root: filepath.Clean(root), logger: logger}
	if err := s.EnsureDirectory(s.root); err != nil {
		return nil, fmt.Errorf("failed to create context root: %w", err)
	}
	return s, nil
}

// Root returns the directory holding every context
func (s *Store) Root() string {
	return s.root
}

// BasePath returns the path of the shared, cache-warmed profile
func (s *Store) BasePath() string {
	return filepath.Join(s.root, baseDirName)
}

// SessionPath returns the path of the disposable copy for a session
func (s *Store) SessionPath(sessionID string) string {
	return filepath.Join(s.root, sessionDirPrefix+sessionID)
}

// NewSessionID returns a random token that names a session directory
func NewSessionID() string {
	return uuid.New().String()
}

// EnsureDirectory creates path and its parents; an existing directory is fine
func (s *Store) EnsureDirectory(path string) error {
	if err := s.fs.MkdirAll(path, defaultDirPerm); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	return nil
}

// CloneBase copies the base profile into a fresh session directory
func (s *Store) CloneBase(sessionID string) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("session id is required")
	}
	target := s.SessionPath(sessionID)
	if err := s.CopyContextTree(s.BasePath(), target); err != nil {
		return "", err
	}
	return target, nil
}

// RemoveSession deletes a session's profile directory
func (s *Store) RemoveSession(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if err := s.fs.RemoveAll(s.SessionPath(sessionID)); err != nil {
		return fmt.Errorf("failed to remove session context: %w", err)
	}
	return nil
}

// RemoveBase deletes the base profile
func (s *Store) RemoveBase() error {
	if err := s.fs.RemoveAll(s.BasePath()); err != nil {
		return fmt.Errorf("failed to remove base context: %w", err)
	}
	return nil
}

// BaseContext describes the base profile, or returns false when it is missing or empty
func (s *Store) BaseContext() (models.Context, bool) {
	info, err := s.fs.Stat(s.BasePath())
	if err != nil || !info.IsDir() {
		return models.Context{}, false
	}
	c := s.describe(models.BaseContextID, models.KindBase, s.BasePath(), info)
	return c, c.SizeBytes > 0
}

// ListContexts returns the base profile and every session copy under the root
func (s *Store) ListContexts() ([]models.Context, error) {
	entries, err := afero.ReadDir(s.fs, s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to read context root: %w", err)
	}

	contexts := make([]models.Context, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		path := filepath.Join(s.root, name)

		switch {
		case name == baseDirName:
			contexts = append(contexts, s.describe(models.BaseContextID, models.KindBase, path, entry))
		case strings.HasPrefix(name, sessionDirPrefix):
			id := strings.TrimPrefix(name, sessionDirPrefix)
			contexts = append(contexts, s.describe(id, models.KindSession, path, entry))
		}
	}

	sort.SliceStable(contexts, func(i, j int) bool {
		if contexts[i].Kind != contexts[j].Kind {
			return contexts[i].Kind == models.KindBase
		}
		return contexts[i].ModifiedAt.Before(contexts[j].ModifiedAt)
	})

	return contexts, nil
}

func (s *Store) describe(id string, kind models.ContextKind, path string, info os.FileInfo) models.Context {
	size := s.MeasureTreeSize(path)
	return models.Context{
		ID:         id,
		Kind:       kind,
		Path:       path,
		SizeBytes:  size,
		Size:       FormatByteCount(size),
		ModifiedAt: info.ModTime(),
	}
}
