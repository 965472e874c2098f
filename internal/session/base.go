package session

import (
	"io"

	"github.com/shehryarbajwa/warmcontext/pkg/models"
)

// BaseContext describes the base profile while no warming run is writing to it
func (m *Manager) BaseContext() (models.Context, error) {
	m.baseMu.RLock()
	defer m.baseMu.RUnlock()

	base, ok := m.store.BaseContext()
	if !ok {
		return models.Context{}, ErrBaseContextMissing
	}
	return base, nil
}

// ExportBase streams the base profile as a tar.gz archive
func (m *Manager) ExportBase(w io.Writer) error {
	m.baseMu.RLock()
	defer m.baseMu.RUnlock()

	if _, ok := m.store.BaseContext(); !ok {
		return ErrBaseContextMissing
	}
	return m.store.ExportBase(w)
}

// ImportBase replaces the base profile with an archive produced by ExportBase
func (m *Manager) ImportBase(r io.Reader) (models.Context, error) {
	m.baseMu.Lock()
	defer m.baseMu.Unlock()

	if err := m.store.ImportBase(r); err != nil {
		return models.Context{}, err
	}
	base, ok := m.store.BaseContext()
	if !ok {
		return models.Context{}, ErrBaseContextMissing
	}
	return base, nil
}
