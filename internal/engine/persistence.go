package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/celerix-dev/schemes/pkg/schema"
)

// SnapshotFile is the name of the snapshot written inside the data directory.
const SnapshotFile = "schemes.json"

// Persistence handles the disk I/O for the MemStore.
type Persistence struct {
	DataDir string
	mu      sync.Mutex // Protects concurrent writes to the filesystem
	saved   uint64
}

// NewPersistence initializes a persistence handler.
func NewPersistence(dir string) (*Persistence, error) {
	// Ensure the data directory exists
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Persistence{DataDir: dir}, nil
}

// Save writes a snapshot atomically. Snapshots older than the last one
// written are dropped, so background writers may finish in any order.
func (p *Persistence) Save(version uint64, data []*schema.Scheme) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if version != 0 && version <= p.saved {
		return nil
	}

	filePath := filepath.Join(p.DataDir, SnapshotFile)
	tempPath := filePath + ".tmp"

	if data == nil {
		data = []*schema.Scheme{}
	}
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if err := os.WriteFile(tempPath, bytes, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	// On POSIX the rename replaces the file in one step: readers see
	// either the previous snapshot or the new one.
	if err := os.Rename(tempPath, filePath); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	p.saved = version
	return nil
}

// LoadAll returns every scheme found in the snapshot. A missing snapshot
// yields an empty result.
func (p *Persistence) LoadAll() ([]*schema.Scheme, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	content, err := os.ReadFile(filepath.Join(p.DataDir, SnapshotFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var list []*schema.Scheme
	if err := json.Unmarshal(content, &list); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return list, nil
}
