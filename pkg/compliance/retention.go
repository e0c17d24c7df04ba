package compliance

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrSinkNotDurable is returned when an archive is attempted through a sink
// that cannot guarantee the archived data survives process restart. Expired
// logs are only removed once they are safely written elsewhere.
var ErrSinkNotDurable = errors.New("archive requires a durable sink")

// expiringSoonWindow is how far ahead of expiry a log is flagged.
const expiringSoonWindow = 30 * 24 * time.Hour

type retentionBuckets struct {
	current      []*LogEntry
	expiringSoon []*LogEntry
	expired      []*LogEntry
}

// classifyRetention partitions entries by age against the retention period.
// A log is expired only when strictly older than the period; a log exactly at
// the boundary is still retained. The expiringSoon bucket holds logs within
// expiringSoonWindow of expiry. The buckets are disjoint and cover every
// entry.
func classifyRetention(entries []*LogEntry, retentionYears int, now time.Time) retentionBuckets {
	period := time.Duration(retentionYears) * 365 * 24 * time.Hour

	var buckets retentionBuckets
	for _, entry := range entries {
		age := now.Sub(entry.Timestamp)
		switch {
		case age > period:
			buckets.expired = append(buckets.expired, entry)
		case age > period-expiringSoonWindow:
			buckets.expiringSoon = append(buckets.expiringSoon, entry)
		default:
			buckets.current = append(buckets.current, entry)
		}
	}
	return buckets
}

// RetentionStatus reports how current logs stand against the configured
// retention period. The status is recomputed from live data on every call.
func (e *Engine) RetentionStatus(ctx context.Context) (*RetentionStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	settings, err := e.settingsLocked(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.ensureLogsLocked(ctx); err != nil {
		return nil, err
	}

	buckets := classifyRetention(e.logs, settings.RetentionPeriodYears, e.now().UTC())

	status := &RetentionStatus{
		TotalLogs:            len(e.logs),
		CurrentLogs:          len(buckets.current),
		ExpiringLogs:         len(buckets.expiringSoon),
		ExpiredLogs:          len(buckets.expired),
		RetentionPeriodYears: settings.RetentionPeriodYears,
	}
	for _, entry := range e.logs {
		if status.OldestLog == nil || entry.Timestamp.Before(*status.OldestLog) {
			ts := entry.Timestamp
			status.OldestLog = &ts
		}
		if status.NewestLog == nil || entry.Timestamp.After(*status.NewestLog) {
			ts := entry.Timestamp
			status.NewestLog = &ts
		}
	}
	return status, nil
}

// ArchiveExpired writes all expired logs to the sink as a JSON artifact, then
// removes them from the active log store. The archive is written before
// anything is deleted; a sink failure leaves the store untouched. After a
// successful archive an audit entry recording the operation is appended to
// the surviving logs.
func (e *Engine) ArchiveExpired(ctx context.Context) (*ArchiveResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	settings, err := e.settingsLocked(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.ensureLogsLocked(ctx); err != nil {
		return nil, err
	}

	now := e.now().UTC()
	buckets := classifyRetention(e.logs, settings.RetentionPeriodYears, now)
	if len(buckets.expired) == 0 {
		return &ArchiveResult{
			ArchivedCount: 0,
			Message:       "No expired logs to archive",
		}, nil
	}

	if !e.sink.Durable() {
		return nil, ErrSinkNotDurable
	}

	payload, err := formatLogsForExport(buckets.expired, FormatJSON, settings.Province)
	if err != nil {
		return nil, fmt.Errorf("failed to format archive: %w", err)
	}
	filename := fmt.Sprintf("cannaflow_archive_%s_%s.json", settings.Province, now.Format("2006-01-02"))
	location, err := e.sink.Write(ctx, filename, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to write archive: %w", err)
	}

	survivors := make([]*LogEntry, 0, len(buckets.current)+len(buckets.expiringSoon))
	survivors = append(survivors, buckets.current...)
	survivors = append(survivors, buckets.expiringSoon...)
	if err := e.persistLogsLocked(ctx, survivors); err != nil {
		return nil, fmt.Errorf("failed to persist logs after archive: %w", err)
	}

	e.logger.Info("Archived expired compliance logs", map[string]interface{}{
		"archived_count": len(buckets.expired),
		"location":       location,
	})

	audit := enrichProvinceData(settings.Province, LogTypeAudit, map[string]interface{}{
		"action":          "archive_expired",
		"archivedCount":   len(buckets.expired),
		"archiveLocation": location,
	}, now)
	if _, err := e.appendLocked(ctx, LogTypeAudit, audit); err != nil {
		// The archive itself succeeded; a failed audit append must not
		// undo it.
		e.logger.Error("Failed to record archive audit entry", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return &ArchiveResult{
		ArchivedCount:   len(buckets.expired),
		ArchiveLocation: location,
		Message:         fmt.Sprintf("Archived %d expired logs", len(buckets.expired)),
	}, nil
}
