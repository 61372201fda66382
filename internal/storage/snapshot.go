package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"financas/internal/core"
)

const (
	// DataKey holds the JSON encoded FinancialData snapshot.
	DataKey = "finances_data"
	// MarkerKey holds the JSON encoded rollover marker ("YYYY-MM-DD").
	MarkerKey = "last_processed_month"
)

// Snapshot is everything the engine persists.
type Snapshot struct {
	Data               core.FinancialData
	LastProcessedMonth string
}

// SnapshotStore serializes the financial snapshot and the rollover marker
// into a KV. Both values are stored as JSON under independent keys.
type SnapshotStore struct {
	kv KV
}

func NewSnapshotStore(kv KV) *SnapshotStore {
	return &SnapshotStore{kv: kv}
}

// Load never fails: a missing, unreadable or malformed value is replaced by
// its default (an empty snapshot, an empty marker) and a warning is logged.
func (s *SnapshotStore) Load(ctx context.Context) Snapshot {
	return Snapshot{
		Data:               s.loadData(ctx),
		LastProcessedMonth: s.loadMarker(ctx),
	}
}

func (s *SnapshotStore) loadData(ctx context.Context) core.FinancialData {
	raw, err := s.kv.Get(ctx, DataKey)
	if errors.Is(err, ErrKeyNotFound) {
		slog.DebugContext(ctx, "No stored financial data, starting empty")
		return core.EmptyFinancialData()
	}
	if err != nil {
		slog.WarnContext(ctx, "Failed to read financial data, starting empty", "error", err)
		return core.EmptyFinancialData()
	}

	var data core.FinancialData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		slog.WarnContext(ctx, "Stored financial data is malformed, starting empty", "error", err)
		return core.EmptyFinancialData()
	}
	return data.Normalize()
}

func (s *SnapshotStore) loadMarker(ctx context.Context) string {
	raw, err := s.kv.Get(ctx, MarkerKey)
	if errors.Is(err, ErrKeyNotFound) {
		return ""
	}
	if err != nil {
		slog.WarnContext(ctx, "Failed to read rollover marker", "error", err)
		return ""
	}

	var marker string
	if err := json.Unmarshal([]byte(raw), &marker); err != nil {
		slog.WarnContext(ctx, "Stored rollover marker is malformed", "error", err)
		return ""
	}
	if marker == "" {
		return ""
	}
	if _, err := time.Parse(core.DayLayout, marker); err != nil {
		slog.WarnContext(ctx, "Stored rollover marker is not a day key", "marker", marker)
		return ""
	}
	return marker
}

// SaveData writes the financial snapshot.
func (s *SnapshotStore) SaveData(ctx context.Context, data core.FinancialData) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode financial data: %w", err)
	}
	return s.kv.Set(ctx, DataKey, string(raw))
}

// Save writes the snapshot and the marker together.
func (s *SnapshotStore) Save(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap.Data)
	if err != nil {
		return fmt.Errorf("encode financial data: %w", err)
	}
	marker, err := json.Marshal(snap.LastProcessedMonth)
	if err != nil {
		return fmt.Errorf("encode rollover marker: %w", err)
	}
	return s.kv.SetMany(ctx, map[string]string{
		DataKey:   string(data),
		MarkerKey: string(marker),
	})
}

func (s *SnapshotStore) Close() error {
	return s.kv.Close()
}
