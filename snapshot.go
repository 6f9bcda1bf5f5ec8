package factsync

import (
	"bytes"
	"context"
	"errors"

	"github.com/RxDataLab/go-factsync/store"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const csvContentType = "text/csv"

// SnapshotStore keeps the long and wide CSV snapshots in a store.Store
type SnapshotStore struct {
	store   store.Store
	longKey string
	wideKey string
	log     *zap.Logger
}

// NewSnapshotStore returns a SnapshotStore; empty keys use DefaultLongKey and
// DefaultWideKey
func NewSnapshotStore(s store.Store, longKey, wideKey string, logger *zap.Logger) *SnapshotStore {
	if longKey == "" {
		longKey = DefaultLongKey
	}
	if wideKey == "" {
		wideKey = DefaultWideKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotStore{store: s, longKey: longKey, wideKey: wideKey, log: logger}
}

// ReadLong returns the persisted long snapshot exactly as stored.
// A missing snapshot is an empty collection.
func (s *SnapshotStore) ReadLong(ctx context.Context) ([]Fact, error) {
	rc, err := s.store.Get(ctx, s.longKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", s.longKey)
	}
	defer rc.Close()
	facts, err := ReadLongCSV(rc)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", s.longKey)
	}
	return facts, nil
}

// LoadLong returns the persisted long snapshot with period-collapse applied,
// and how many stored rows the collapse removed
func (s *SnapshotStore) LoadLong(ctx context.Context) ([]Fact, int, error) {
	facts, err := s.ReadLong(ctx)
	if err != nil {
		return nil, 0, err
	}
	collapsed, removed := CollapsePeriods(facts)
	if removed > 0 {
		s.log.Warn("removed duplicate periods from snapshot, kept latest filings",
			zap.String("key", s.longKey),
			zap.Int("removed", removed))
	}
	return collapsed, removed, nil
}

// SaveLong replaces the long snapshot with facts in canonical order
func (s *SnapshotStore) SaveLong(ctx context.Context, facts []Fact) error {
	var buf bytes.Buffer
	if err := WriteLongCSV(&buf, SortCanonical(facts)); err != nil {
		return err
	}
	if _, err := s.store.Put(ctx, s.longKey, &buf, csvContentType); err != nil {
		return eris.Wrapf(err, "save %s", s.longKey)
	}
	s.log.Info("saved long dataset", zap.String("key", s.longKey), zap.Int("rows", len(facts)))
	return nil
}

// LoadWide reads the wide snapshot; a missing snapshot is an empty table
func (s *SnapshotStore) LoadWide(ctx context.Context) (WideTable, error) {
	rc, err := s.store.Get(ctx, s.wideKey)
	if errors.Is(err, store.ErrNotFound) {
		return WideTable{}, nil
	}
	if err != nil {
		return WideTable{}, eris.Wrapf(err, "open %s", s.wideKey)
	}
	defer rc.Close()
	table, err := ReadWideCSV(rc)
	if err != nil {
		return WideTable{}, eris.Wrapf(err, "read %s", s.wideKey)
	}
	return table, nil
}

// SaveWide replaces the wide snapshot
func (s *SnapshotStore) SaveWide(ctx context.Context, table WideTable) error {
	var buf bytes.Buffer
	if err := WriteWideCSV(&buf, table); err != nil {
		return err
	}
	if _, err := s.store.Put(ctx, s.wideKey, &buf, csvContentType); err != nil {
		return eris.Wrapf(err, "save %s", s.wideKey)
	}
	s.log.Info("rebuilt wide dataset",
		zap.String("key", s.wideKey),
		zap.Int("rows", len(table.Rows)),
		zap.Int("columns", len(table.Columns)))
	return nil
}
