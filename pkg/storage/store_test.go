package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(ctx, "settings", []byte(`{"province":"BC"}`)))

	value, err := store.Get(ctx, "settings")
	require.NoError(t, err)
	assert.Equal(t, `{"province":"BC"}`, string(value))

	// Overwrite replaces the previous value
	require.NoError(t, store.Set(ctx, "settings", []byte(`{"province":"ON"}`)))
	value, err = store.Get(ctx, "settings")
	require.NoError(t, err)
	assert.Equal(t, `{"province":"ON"}`, string(value))
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	original := []byte(`{"a":1}`)
	require.NoError(t, store.Set(ctx, "k", original))
	original[0] = 'X'

	value, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(value))

	// Mutating the returned slice must not affect stored state
	value[0] = 'Y'
	again, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(again))
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewFileStore(dir)
	require.NoError(t, err)

	_, err = store.Get(ctx, "compliance_logs")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(ctx, "compliance_logs", []byte(`[]`)))

	value, err := store.Get(ctx, "compliance_logs")
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(value))

	require.NoError(t, store.Set(ctx, "compliance_logs", []byte(`[{"id":"1"}]`)))
	value, err = store.Get(ctx, "compliance_logs")
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"1"}]`, string(value))
}

func TestFileStoreSanitizesKeys(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, "a/b:c", []byte(`1`)))

	if _, err := os.Stat(filepath.Join(dir, "a_b_c.json")); err != nil {
		t.Errorf("expected sanitized filename a_b_c.json, stat failed: %v", err)
	}

	value, err := store.Get(ctx, "a/b:c")
	require.NoError(t, err)
	assert.Equal(t, `1`, string(value))
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "k", []byte(`{}`)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, "k.json", entries[0].Name())
}

func TestNewFileStoreRequiresDirectory(t *testing.T) {
	_, err := NewFileStore("")
	assert.Error(t, err)
}
