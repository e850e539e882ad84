package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the parsed command line
type AppOptions struct {
	ConfigFile   string
	MapFile      string
	PoseCache    string
	OutputFile   string
	RenderFormat string
	Particles    int
	HttpPort     int
	MqttMode     bool
	HttpMode     bool
	FieldStats   bool
	RenderOnly   bool
}

// Runner is the set of modes run dispatches to
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunFieldStats() error
	RunRender() error
	RunService() error
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatal(err)
	}
}

func run(args []string, out io.Writer, app Runner) error {
	fs := flag.NewFlagSet("tudoloc", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file")
	fs.StringVar(&opts.MapFile, "map", "", "Map file (YAML+PGM/PNG, JSON or zlib); overrides map.file")
	fs.StringVar(&opts.PoseCache, "pose-cache", "", "Path to the last-pose cache file; overrides poseCache")
	fs.StringVar(&opts.OutputFile, "output", "particles.png", "Output file for --render mode")
	fs.StringVar(&opts.RenderFormat, "format", "raster", "Render format: raster, svg, vector (PNG) or plot")
	fs.IntVar(&opts.Particles, "particles", 0, "Particles to draw in --render mode (0 uses filter.particles)")
	fs.IntVar(&opts.HttpPort, "http-port", 8080, "HTTP server port (default 8080)")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Run the localizer on MQTT")
	fs.BoolVar(&opts.HttpMode, "http", false, "Serve pose, particles and map views over HTTP")
	fs.BoolVar(&opts.FieldStats, "field-stats", false, "Build the distance field, print its statistics and exit")
	fs.BoolVar(&opts.RenderOnly, "render", false, "Render the map with a seeded particle cloud and exit")

	if err := fs.Parse(args); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out, "tudoloc version: %s\n", Version)
	app.ApplyOptions(opts)

	switch {
	case opts.FieldStats:
		return app.RunFieldStats()
	case opts.RenderOnly:
		return app.RunRender()
	case opts.MqttMode || opts.HttpMode:
		return app.RunService()
	}

	_, _ = fmt.Fprintln(out, "tudoloc: Monte Carlo localization against a static map")
	_, _ = fmt.Fprintln(out, "Use --mqtt to localize from MQTT odometry and scans")
	_, _ = fmt.Fprintln(out, "Use --http to serve the pose, particles and live map")
	_, _ = fmt.Fprintln(out, "Use --mqtt --http to run both together")
	_, _ = fmt.Fprintln(out, "Use --field-stats to check a map's distance field")
	_, _ = fmt.Fprintln(out, "Use --render to draw a seeded particle cloud on the map")
	_, _ = fmt.Fprintln(out, "\nConfiguration:")
	_, _ = fmt.Fprintln(out, "  config.yaml - MQTT, map source, filter and sensor settings")
	_, _ = fmt.Fprintln(out, "  .pose-cache.json - Last estimate, used to seed after a restart")
	return nil
}
