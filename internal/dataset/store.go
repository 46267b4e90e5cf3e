// Package dataset holds the miner's in-memory view of every dataset. Stores
// are fed by replaying the transaction topic, so the miner carries no on-disk
// state of its own; Postgres remains the durable record.
package dataset

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/smartgrocer/basket-analytics-platform/internal/normalizer"
	apperrors "github.com/smartgrocer/basket-analytics-platform/pkg/errors"
)

// Info describes one dataset for listings.
type Info struct {
	Name     string `json:"name"`
	Records  int    `json:"records"`
	Revision uint64 `json:"revision"`
}

type entry struct {
	records  []normalizer.Record
	revision uint64
}

// Store is a revisioned, append-only collection of named datasets. Every
// append bumps the dataset's revision, which cache keys incorporate so stale
// mining results age out on their own.
type Store struct {
	mu       sync.RWMutex
	datasets map[string]*entry
	logger   *slog.Logger
}

func NewStore() *Store {
	return &Store{
		datasets: make(map[string]*entry),
		logger:   slog.Default().With("component", "dataset-store"),
	}
}

// Append adds records to a dataset, creating it on first use, and returns the
// new revision. Empty appends still bump the revision so callers can force
// invalidation.
func (s *Store) Append(name string, records ...normalizer.Record) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.datasets[name]
	if !ok {
		e = &entry{}
		s.datasets[name] = e
		s.logger.Info("dataset created", "dataset", name)
	}
	e.records = append(e.records, records...)
	e.revision++
	return e.revision
}

// Records returns a point-in-time snapshot of a dataset along with its
// revision. The returned slice is a full-capacity reslice of append-only
// backing storage: later appends either write past its length or reallocate,
// so callers can read it without holding any lock.
func (s *Store) Records(name string) ([]normalizer.Record, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.datasets[name]
	if !ok {
		return nil, 0, apperrors.ErrDatasetNotFound
	}
	return e.records[:len(e.records):len(e.records)], e.revision, nil
}

// Revision returns the dataset's current revision.
func (s *Store) Revision(name string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.datasets[name]
	if !ok {
		return 0, apperrors.ErrDatasetNotFound
	}
	return e.revision, nil
}

// List returns every dataset sorted by name.
func (s *Store) List() []Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	infos := make([]Info, 0, len(s.datasets))
	for name, e := range s.datasets {
		infos = append(infos, Info{
			Name:     name,
			Records:  len(e.records),
			Revision: e.revision,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Len returns the number of datasets.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.datasets)
}
