package mcl

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// PoseCache is the last good estimate, persisted so a restarted localizer
// can seed around it instead of spreading over the whole map.
type PoseCache struct {
	Pose        Pose  `json:"pose"`
	MapWidth    int   `json:"mapWidth"`
	MapHeight   int   `json:"mapHeight"`
	LastUpdated int64 `json:"lastUpdated"`
}

// LoadPoseCache reads the cache file. A missing file is not an error and
// returns nil, nil.
func LoadPoseCache(path string) (*PoseCache, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading pose cache: %w", err)
	}

	var pc PoseCache
	if err := json.Unmarshal(data, &pc); err != nil {
		return nil, fmt.Errorf("parsing pose cache: %w", err)
	}
	return &pc, nil
}

// SavePoseCache writes the cache file, creating its directory
func SavePoseCache(path string, pc *PoseCache) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating pose cache directory: %w", err)
	}

	pc.LastUpdated = time.Now().Unix()

	data, err := json.MarshalIndent(pc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling pose cache: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing pose cache: %w", err)
	}
	return nil
}

// Matches reports whether the cache was written for a map of this size
// and the pose lies inside it.
func (pc *PoseCache) Matches(m *OccupancyMap) bool {
	if pc == nil || m == nil {
		return false
	}
	if pc.MapWidth != m.Width || pc.MapHeight != m.Height {
		return false
	}
	_, ok := m.WorldToCell(pc.Pose.X, pc.Pose.Y)
	return ok
}
