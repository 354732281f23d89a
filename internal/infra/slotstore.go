// Package infra implements infrastructure concerns (slot stores, sensors,
// process watching).
package infra

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/stridegate/stridegate/internal/domain"
)

// FileSlotStore implements domain.SlotStore with one JSON file per slot in a
// data directory. Writes are atomic (temp file + rename), so readers never
// observe a partial record.
type FileSlotStore struct {
	dir string
}

// NewFileSlotStore creates the data directory if needed.
func NewFileSlotStore(dir string) (*FileSlotStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &FileSlotStore{dir: dir}, nil
}

// Read unmarshals the named slot into v.
func (s *FileSlotStore) Read(name string, v any) error {
	data, err := os.ReadFile(s.slotPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return domain.ErrSlotNotFound
		}
		return err
	}
	return json.Unmarshal(data, v)
}

// Write marshals v into the named slot atomically.
func (s *FileSlotStore) Write(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	path := s.slotPath(name)

	// Write to temp file first (unique per process to avoid race)
	tmpPath := fmt.Sprintf("%s.%d.tmp", path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}

	// Atomic rename
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath) // Clean up on failure
		return err
	}
	return nil
}

// Delete removes the named slot. Missing slots are not an error.
func (s *FileSlotStore) Delete(name string) error {
	err := os.Remove(s.slotPath(name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Close is a no-op for the file store.
func (s *FileSlotStore) Close() error { return nil }

// slotPath maps a slot name onto a file, rejecting path separators so a slot
// name can never escape the data directory.
func (s *FileSlotStore) slotPath(name string) string {
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '.':
			return '_'
		}
		return r
	}, name)
	return filepath.Join(s.dir, safe+".json")
}

// Ensure FileSlotStore implements domain.SlotStore.
var _ domain.SlotStore = (*FileSlotStore)(nil)
