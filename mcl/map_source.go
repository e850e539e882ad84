package mcl

import (
	"context"
	"fmt"
)

// MapSource delivers the static map. StaticMap blocks until a map is
// available or ctx ends.
type MapSource interface {
	StaticMap(ctx context.Context) (*OccupancyMap, error)
}

// FileMapSource loads the map from disk
type FileMapSource struct {
	Path string
}

func (s FileMapSource) StaticMap(context.Context) (*OccupancyMap, error) {
	return LoadMapFile(s.Path)
}

// APIMapSource downloads the map from an HTTP map server
type APIMapSource struct {
	URL     string
	Options []FetchOption
}

func (s APIMapSource) StaticMap(ctx context.Context) (*OccupancyMap, error) {
	return FetchMapFromAPI(ctx, s.URL, s.Options...)
}

// StaticMapSource returns a map already in memory
type StaticMapSource struct {
	Map *OccupancyMap
}

func (s StaticMapSource) StaticMap(context.Context) (*OccupancyMap, error) {
	if s.Map == nil {
		return nil, fmt.Errorf("static map source: no map")
	}
	return s.Map, nil
}

// NewMapSource picks the configured source. It returns nil when the map
// is expected on the MQTT map topic instead.
func NewMapSource(cfg MapConfig) MapSource {
	switch {
	case cfg.File != "":
		return FileMapSource{Path: cfg.File}
	case cfg.ApiURL != "":
		return APIMapSource{URL: cfg.ApiURL}
	default:
		return nil
	}
}
