// Package snapshot persists and restores the minimal per-controller state
// needed across restarts: mode and transition timer, written atomically
// and restored only within a freshness window.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tobiasrehn/shadeflow/internal/shading"
)

// FreshnessWindow is the maximum snapshot age eligible for restore.
const FreshnessWindow = 60 * time.Minute

// Path returns the snapshot file path for a given unique_id, per spec's
// "states_<unique_id>.json" naming.
func Path(appDir, uniqueID string) string {
	return filepath.Join(appDir, fmt.Sprintf("states_%s.json", uniqueID))
}

// Save writes state atomically via temp-file + rename, per the resource
// model's "shared resources" requirement. A failure here is non-fatal and
// logged by the caller; it never blocks the control path.
func Save(path string, now time.Time, mode shading.Mode, timer *time.Time) error {
	snap := shading.Snapshot{Timestamp: now, Mode: mode, Timer: timer}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot: marshal failed: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("snapshot: create directory failed: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("snapshot: create temp file failed: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("snapshot: write temp file failed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("snapshot: close temp file failed: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("snapshot: rename failed: %w", err)
	}

	return nil
}

// Load restores mode and timer if the snapshot exists and is fresher than
// FreshnessWindow relative to now. A missing file, a stale snapshot, or a
// malformed file are all non-fatal: the caller starts in Neutral.
func Load(path string, now time.Time) (mode shading.Mode, timer *time.Time, ok bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return shading.ModeNeutral, nil, false
	}

	var snap shading.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return shading.ModeNeutral, nil, false
	}

	if now.Sub(snap.Timestamp) >= FreshnessWindow {
		return shading.ModeNeutral, nil, false
	}

	return snap.Mode, snap.Timer, true
}
