package compliance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cannaflow/cannaflow/pkg/storage"
)

// Settings returns the current compliance settings, loading and defaulting on
// first use. Callers receive a copy; updates go through UpdateSettings.
func (e *Engine) Settings(ctx context.Context) (*Settings, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	settings, err := e.settingsLocked(ctx)
	if err != nil {
		return nil, err
	}
	out := *settings
	return &out, nil
}

// UpdateSettings shallow-merges patch into the current settings and persists
// the result. On persistence failure the cache keeps the previous settings so
// it never diverges from the store.
func (e *Engine) UpdateSettings(ctx context.Context, patch SettingsPatch) (*Settings, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	current, err := e.settingsLocked(ctx)
	if err != nil {
		return nil, err
	}

	updated := *current
	if patch.Province != nil {
		if !patch.Province.Valid() {
			return nil, fmt.Errorf("unknown province code %q", *patch.Province)
		}
		updated.Province = *patch.Province
	}
	if patch.BusinessName != nil {
		updated.BusinessName = *patch.BusinessName
	}
	if patch.LicenseNumber != nil {
		updated.LicenseNumber = *patch.LicenseNumber
	}
	if patch.Location != nil {
		updated.Location = *patch.Location
	}
	if patch.RetentionPeriodYears != nil {
		if *patch.RetentionPeriodYears < 1 {
			return nil, fmt.Errorf("retention period must be at least one year, got %d", *patch.RetentionPeriodYears)
		}
		updated.RetentionPeriodYears = *patch.RetentionPeriodYears
	}
	if patch.AutoExport != nil {
		updated.AutoExport = *patch.AutoExport
	}
	if patch.ExportFormat != nil {
		if !patch.ExportFormat.Valid() {
			return nil, fmt.Errorf("unknown export format %q", *patch.ExportFormat)
		}
		updated.ExportFormat = *patch.ExportFormat
	}
	if patch.ExportEmail != nil {
		updated.ExportEmail = *patch.ExportEmail
	}
	if patch.Language != nil {
		updated.Language = *patch.Language
	}

	if err := e.persistSettingsLocked(ctx, &updated); err != nil {
		return nil, err
	}

	e.logger.Info("compliance settings updated", map[string]interface{}{
		"province": string(updated.Province),
	})
	out := updated
	return &out, nil
}

// settingsLocked returns the cached settings, loading them from the store or
// writing defaults if none exist yet. Callers must hold e.mu.
func (e *Engine) settingsLocked(ctx context.Context) (*Settings, error) {
	if e.settings != nil {
		return e.settings, nil
	}

	raw, err := e.store.Get(ctx, settingsStorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		defaults := DefaultSettings()
		if err := e.persistSettingsLocked(ctx, defaults); err != nil {
			return nil, err
		}
		return e.settings, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load compliance settings: %w", err)
	}

	var settings Settings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return nil, fmt.Errorf("failed to decode stored compliance settings: %w", err)
	}
	e.settings = &settings
	return e.settings, nil
}

// persistSettingsLocked writes settings to the store and, only on success,
// updates the cache. Callers must hold e.mu.
func (e *Engine) persistSettingsLocked(ctx context.Context, settings *Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode compliance settings: %w", err)
	}
	if err := e.store.Set(ctx, settingsStorageKey, data); err != nil {
		return fmt.Errorf("failed to persist compliance settings: %w", err)
	}
	e.settings = settings
	return nil
}
