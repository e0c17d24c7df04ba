package compliance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Sink receives export and archive artifacts. Durable reports whether data
// written to the sink survives process restart; archiving expired logs is
// only permitted through a durable sink.
type Sink interface {
	// Write stores data under filename and returns the artifact's location.
	Write(ctx context.Context, filename string, data []byte) (string, error)
	// Durable reports whether written artifacts outlive the process.
	Durable() bool
}

// Sharer hands a written artifact to an external channel (OS share sheet,
// upload target). Sinks may optionally implement it.
type Sharer interface {
	ShareArtifact(location string) error
}

// FileSink writes artifacts to a directory on the local filesystem.
type FileSink struct {
	// Dir is the destination directory, created on first write.
	Dir string

	// Share, when set, is invoked by ShareArtifact with the written path.
	Share func(path string) error
}

// NewFileSink creates a sink writing under dir.
func NewFileSink(dir string) *FileSink {
	return &FileSink{Dir: dir}
}

// Write stores data atomically under Dir/filename.
func (s *FileSink) Write(ctx context.Context, filename string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	target := filepath.Join(s.Dir, filepath.Base(filename))
	tmp, err := os.CreateTemp(s.Dir, ".export-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to write export data: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("failed to sync export data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("failed to finalize export file: %w", err)
	}
	return target, nil
}

// Durable reports true: files written by FileSink survive restarts.
func (s *FileSink) Durable() bool {
	return true
}

// ShareArtifact invokes the configured Share callback, if any.
func (s *FileSink) ShareArtifact(location string) error {
	if s.Share == nil {
		return nil
	}
	return s.Share(location)
}

// MemorySink keeps artifacts in memory. Useful for tests and for callers that
// consume export payloads directly from ExportResult.Data. It is not durable,
// so archives refuse to write through it.
type MemorySink struct {
	mu        sync.Mutex
	artifacts map[string][]byte
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{artifacts: make(map[string][]byte)}
}

// Write stores a copy of data under filename.
func (s *MemorySink) Write(ctx context.Context, filename string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, len(data))
	copy(buf, data)
	s.artifacts[filename] = buf
	return "memory://" + filename, nil
}

// Durable reports false: contents are lost when the process exits.
func (s *MemorySink) Durable() bool {
	return false
}

// Artifact returns a copy of the artifact stored under filename.
func (s *MemorySink) Artifact(filename string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.artifacts[filename]
	if !ok {
		return nil, false
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, true
}
