package main

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kwv/tudoloc/mcl"
)

// testMap returns a 10x10 grid at 0.5 m/cell with a wall around the edge
func testMap() *mcl.OccupancyMap {
	m := mcl.NewOccupancyMap(10, 10, 0.5, mcl.Point{X: -2.5, Y: -2.5}, mcl.CellFree)
	for i := 0; i < 10; i++ {
		m.Set(i, 0, mcl.CellOccupied)
		m.Set(i, 9, mcl.CellOccupied)
		m.Set(0, i, mcl.CellOccupied)
		m.Set(9, i, mcl.CellOccupied)
	}
	return m
}

// writeMapFile saves m in the compressed map format and returns its path
func writeMapFile(t *testing.T, dir string, m *mcl.OccupancyMap) string {
	t.Helper()
	data, err := mcl.EncodeMapData(m)
	if err != nil {
		t.Fatalf("encoding map: %v", err)
	}
	path := filepath.Join(dir, "map.bin")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("writing map: %v", err)
	}
	return path
}

func newTestApp(t *testing.T) (*App, *bytes.Buffer, string) {
	t.Helper()
	dir := t.TempDir()
	var out bytes.Buffer
	app := NewApp()
	app.Out = &out
	app.ApplyOptions(AppOptions{
		ConfigFile:   filepath.Join(dir, "config.yaml"),
		MapFile:      writeMapFile(t, dir, testMap()),
		PoseCache:    filepath.Join(dir, "pose.json"),
		OutputFile:   filepath.Join(dir, "out.png"),
		RenderFormat: "raster",
		Particles:    40,
	})
	return app, &out, dir
}

func TestNewApp(t *testing.T) {
	app := NewApp()
	if app == nil {
		t.Fatal("NewApp returned nil")
		return
	}
	if app.Out == nil {
		t.Error("Out should default to stdout")
	}
}

func TestApplyOptions(t *testing.T) {
	app := NewApp()
	opts := AppOptions{
		ConfigFile:   "test-config.yaml",
		MapFile:      "map.yaml",
		PoseCache:    ".test-pose.json",
		OutputFile:   "test-output.svg",
		RenderFormat: "svg",
		Particles:    123,
		HttpPort:     8081,
		MqttMode:     true,
		HttpMode:     false,
	}

	app.ApplyOptions(opts)

	if app.ConfigFile != "test-config.yaml" {
		t.Errorf("ConfigFile = %s, want test-config.yaml", app.ConfigFile)
	}
	if app.MapFile != "map.yaml" {
		t.Errorf("MapFile = %s, want map.yaml", app.MapFile)
	}
	if app.PoseCache != ".test-pose.json" {
		t.Errorf("PoseCache = %s, want .test-pose.json", app.PoseCache)
	}
	if app.OutputFile != "test-output.svg" || app.RenderFormat != "svg" {
		t.Errorf("render options = %s/%s, want test-output.svg/svg", app.OutputFile, app.RenderFormat)
	}
	if app.Particles != 123 {
		t.Errorf("Particles = %d, want 123", app.Particles)
	}
	if app.HttpPort != 8081 {
		t.Errorf("HttpPort = %d, want 8081", app.HttpPort)
	}
	if !app.MqttMode || app.HttpMode {
		t.Errorf("modes = mqtt:%v http:%v, want mqtt only", app.MqttMode, app.HttpMode)
	}
}

func TestLoadConfig_DefaultsWithMapFlag(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")
	app, _, _ := newTestApp(t)

	cfg, err := app.loadConfig()
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Map.File != app.MapFile {
		t.Errorf("Map.File = %s, want %s", cfg.Map.File, app.MapFile)
	}
	if cfg.PoseCache != app.PoseCache {
		t.Errorf("PoseCache = %s, want %s", cfg.PoseCache, app.PoseCache)
	}
	if cfg.Filter.Particles != mcl.DefaultParticles {
		t.Errorf("Particles = %d, want default %d", cfg.Filter.Particles, mcl.DefaultParticles)
	}
	if app.Config != cfg {
		t.Error("loadConfig should store the config on the app")
	}
}

func TestLoadConfig_MissingWithoutMap(t *testing.T) {
	app := NewApp()
	app.ConfigFile = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := app.loadConfig()
	if err == nil || !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("expected config file not found error, got %v", err)
	}
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	app, _, _ := newTestApp(t)
	yaml := "mqtt:\n  broker: \"tcp://localhost:1883\"\nmap:\n  file: other.yaml\nfilter:\n  particles: 80\n"
	if err := os.WriteFile(app.ConfigFile, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := app.loadConfig()
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Map.File != app.MapFile {
		t.Errorf("Map.File = %s, want the --map value %s", cfg.Map.File, app.MapFile)
	}
	if cfg.Filter.Particles != 80 {
		t.Errorf("Particles = %d, want 80 from the file", cfg.Filter.Particles)
	}
}

func TestRunFieldStats(t *testing.T) {
	app, out, _ := newTestApp(t)

	if err := app.RunFieldStats(); err != nil {
		t.Fatalf("RunFieldStats failed: %v", err)
	}

	for _, want := range []string{
		"Map: 10x10 cells @ 0.500 m/cell",
		"Extent: (-2.50, -2.50) to (2.50, 2.50) m",
		"Cells: 36 occupied, 64 free, 0 unknown",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestRunFieldStats_NoMapSource(t *testing.T) {
	app, _, _ := newTestApp(t)
	app.MapFile = ""
	if err := os.WriteFile(app.ConfigFile, []byte("mqtt:\n  broker: \"tcp://localhost:1883\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	err := app.RunFieldStats()
	if err == nil || !strings.Contains(err.Error(), "no map file or API URL") {
		t.Errorf("expected missing map source error, got %v", err)
	}
}

func TestRunFieldStats_MapWithoutWalls(t *testing.T) {
	app, _, dir := newTestApp(t)
	app.MapFile = writeMapFile(t, dir, mcl.NewOccupancyMap(4, 4, 1, mcl.Point{}, mcl.CellFree))

	err := app.RunFieldStats()
	if !errors.Is(err, mcl.ErrNoOccupiedCells) {
		t.Errorf("expected ErrNoOccupiedCells, got %v", err)
	}
}

func TestRunRender_Formats(t *testing.T) {
	tests := []struct {
		format string
		output string
		isPNG  bool
		marker string
	}{
		{format: "raster", output: "out.png", isPNG: true},
		{format: "vector", output: "out.png", isPNG: true},
		{format: "plot", output: "out.png", isPNG: true},
		{format: "svg", output: "out.svg", marker: "<svg"},
		{format: "plot", output: "out.svg", marker: "<svg"},
	}

	for _, tt := range tests {
		t.Run(tt.format+"-"+tt.output, func(t *testing.T) {
			app, out, dir := newTestApp(t)
			app.RenderFormat = tt.format
			app.OutputFile = filepath.Join(dir, tt.output)

			if err := app.RunRender(); err != nil {
				t.Fatalf("RunRender failed: %v", err)
			}
			if !strings.Contains(out.String(), "Rendered") {
				t.Errorf("expected render summary, got: %s", out.String())
			}

			data, err := os.ReadFile(app.OutputFile)
			if err != nil {
				t.Fatalf("reading output: %v", err)
			}
			if tt.isPNG {
				if _, err := png.Decode(bytes.NewReader(data)); err != nil {
					t.Errorf("output is not a PNG: %v", err)
				}
			}
			if tt.marker != "" && !bytes.Contains(data, []byte(tt.marker)) {
				t.Errorf("output missing %q", tt.marker)
			}
		})
	}
}

func TestRunRender_UnknownFormat(t *testing.T) {
	app, _, _ := newTestApp(t)
	app.RenderFormat = "bmp"

	err := app.RunRender()
	if err == nil || !strings.Contains(err.Error(), "unknown render format") {
		t.Errorf("expected unknown format error, got %v", err)
	}
}

func TestRunRender_WithPoseCache(t *testing.T) {
	app, _, _ := newTestApp(t)
	pc := &mcl.PoseCache{Pose: mcl.Pose{X: 1, Y: 1}, MapWidth: 10, MapHeight: 10}
	if err := mcl.SavePoseCache(app.PoseCache, pc); err != nil {
		t.Fatal(err)
	}

	if err := app.RunRender(); err != nil {
		t.Fatalf("RunRender failed: %v", err)
	}
	if _, err := os.Stat(app.OutputFile); err != nil {
		t.Errorf("expected output file: %v", err)
	}
}

func TestServe_NoMapSource(t *testing.T) {
	app, _, _ := newTestApp(t)
	app.MapFile = ""
	app.HttpMode = true
	if err := os.WriteFile(app.ConfigFile, []byte("mqtt:\n  broker: \"tcp://localhost:1883\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	err := app.serve(context.Background())
	if err == nil || !strings.Contains(err.Error(), "no map source") {
		t.Errorf("expected no map source error, got %v", err)
	}
}

func TestServe_UnusableMapStopsService(t *testing.T) {
	app, out, dir := newTestApp(t)
	app.MapFile = writeMapFile(t, dir, mcl.NewOccupancyMap(4, 4, 1, mcl.Point{}, mcl.CellFree))

	err := app.serve(context.Background())
	if !errors.Is(err, mcl.ErrNoOccupiedCells) {
		t.Errorf("expected ErrNoOccupiedCells, got %v", err)
	}
	if !strings.Contains(out.String(), "Service Running") {
		t.Errorf("expected service banner, got: %s", out.String())
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	app, out, _ := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := app.serve(ctx); err != nil {
		t.Fatalf("serve failed: %v", err)
	}
	if !strings.Contains(out.String(), "Service stopped") {
		t.Errorf("expected shutdown message, got: %s", out.String())
	}
}
