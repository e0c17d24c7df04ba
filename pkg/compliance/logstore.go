package compliance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/cannaflow/cannaflow/pkg/storage"
)

// Logs returns entries matching filter, sorted newest-first. Returned entries
// are copies; mutating them does not affect the stored collection.
func (e *Engine) Logs(ctx context.Context, filter Filter) ([]*LogEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ensureLogsLocked(ctx); err != nil {
		return nil, err
	}

	matched := filterEntries(e.logs, filter)
	out := make([]*LogEntry, len(matched))
	for i, entry := range matched {
		out[i] = entry.Clone()
	}
	return out, nil
}

// ensureLogsLocked loads the log collection into the cache on first use,
// persisting an empty collection when none exists. Callers must hold e.mu.
func (e *Engine) ensureLogsLocked(ctx context.Context) error {
	if e.logsLoaded {
		return nil
	}

	raw, err := e.store.Get(ctx, logsStorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		if err := e.store.Set(ctx, logsStorageKey, []byte("[]")); err != nil {
			return fmt.Errorf("failed to initialize compliance log storage: %w", err)
		}
		e.logs = nil
		e.logsLoaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load compliance logs: %w", err)
	}

	var entries []*LogEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("failed to decode stored compliance logs: %w", err)
	}
	e.logs = entries
	e.logsLoaded = true
	return nil
}

// appendLocked creates a new entry with a fresh id and timestamp and durably
// appends it to the collection. The entry is persisted before the cache is
// updated; if the write fails, nothing was logged. Callers must hold e.mu.
func (e *Engine) appendLocked(ctx context.Context, logType LogType, data map[string]interface{}) (*LogEntry, error) {
	if err := e.ensureLogsLocked(ctx); err != nil {
		return nil, err
	}

	entry := &LogEntry{
		ID:        uuid.NewString(),
		Type:      logType,
		Timestamp: e.now().UTC(),
		Data:      data,
	}

	next := make([]*LogEntry, len(e.logs), len(e.logs)+1)
	copy(next, e.logs)
	next = append(next, entry)

	if err := e.persistLogsLocked(ctx, next); err != nil {
		return nil, fmt.Errorf("failed to record %s compliance log: %w", logType, err)
	}

	e.logger.Debug("compliance log recorded", map[string]interface{}{
		"log_id": entry.ID,
		"type":   string(logType),
	})
	return entry.Clone(), nil
}

// persistLogsLocked writes the full collection to the store and, only on
// success, swaps the cache. Used by append and by the retention manager's
// archive; never exposed for general mutation. Callers must hold e.mu.
func (e *Engine) persistLogsLocked(ctx context.Context, entries []*LogEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode compliance logs: %w", err)
	}
	if err := e.store.Set(ctx, logsStorageKey, data); err != nil {
		return fmt.Errorf("failed to persist compliance logs: %w", err)
	}
	e.logs = entries
	return nil
}

// filterEntries applies filter to entries and sorts the result newest-first.
// The limit is applied after sorting so "most recent N" means what it says.
func filterEntries(entries []*LogEntry, filter Filter) []*LogEntry {
	result := make([]*LogEntry, 0, len(entries))
	for _, entry := range entries {
		if filter.Type != "" && entry.Type != filter.Type {
			continue
		}
		if filter.StartDate != nil && entry.Timestamp.Before(*filter.StartDate) {
			continue
		}
		if filter.EndDate != nil && entry.Timestamp.After(*filter.EndDate) {
			continue
		}
		result = append(result, entry)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result
}
