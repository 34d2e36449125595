// Package audit composes audit.Store implementations.
package audit

import (
	"context"
	"errors"

	"github.com/Apt-Gate/Aptgate/internal/domain/audit"
)

// MultiStore fans Append/Flush/Close out to every underlying store,
// joining errors rather than stopping at the first. Used when both the
// JSONL append log and the SQLite queryable mirror are configured.
type MultiStore struct {
	stores []audit.Store
}

// NewMultiStore wraps the given stores. Nil stores are skipped.
func NewMultiStore(stores ...audit.Store) *MultiStore {
	filtered := make([]audit.Store, 0, len(stores))
	for _, s := range stores {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	return &MultiStore{stores: filtered}
}

func (m *MultiStore) Append(ctx context.Context, events ...audit.Event) error {
	var errs []error
	for _, s := range m.stores {
		if err := s.Append(ctx, events...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiStore) Flush(ctx context.Context) error {
	var errs []error
	for _, s := range m.stores {
		if err := s.Flush(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiStore) Close() error {
	var errs []error
	for _, s := range m.stores {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
