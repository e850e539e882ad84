package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kwv/tudoloc/mcl"
)

// App encapsulates the application state and dependencies
type App struct {
	Config     *mcl.Config
	Localizer  *mcl.Localizer
	MQTTClient *mcl.MQTTClient
	Publisher  *mcl.Publisher
	Out        io.Writer

	// CLI Flags (effectively dependencies)
	ConfigFile   string
	MapFile      string
	PoseCache    string
	OutputFile   string
	RenderFormat string
	Particles    int
	HttpPort     int
	MqttMode     bool
	HttpMode     bool
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{Out: os.Stdout}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.MapFile = opts.MapFile
	a.PoseCache = opts.PoseCache
	a.OutputFile = opts.OutputFile
	a.RenderFormat = opts.RenderFormat
	a.Particles = opts.Particles
	a.HttpPort = opts.HttpPort
	a.MqttMode = opts.MqttMode
	a.HttpMode = opts.HttpMode
}

// loadConfig reads the config file. Without one, defaults are used as
// long as --map names the map.
func (a *App) loadConfig() (*mcl.Config, error) {
	var config *mcl.Config
	if _, err := os.Stat(a.ConfigFile); errors.Is(err, os.ErrNotExist) && a.MapFile != "" {
		log.Printf("No config at %s, using defaults", a.ConfigFile)
		config = mcl.DefaultConfig()
		config.ApplyEnvOverrides()
	} else {
		config, err = mcl.LoadConfig(a.ConfigFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w (looked at %s)", err, a.ConfigFile)
		}
		log.Printf("Loaded config from %s", a.ConfigFile)
	}

	if a.MapFile != "" {
		config.Map.File = a.MapFile
	}
	if a.PoseCache != "" {
		config.PoseCache = a.PoseCache
	}
	a.Config = config
	return config, nil
}

// loadField loads the configured static map and builds its distance field
func (a *App) loadField(ctx context.Context) (*mcl.DistanceField, error) {
	src := mcl.NewMapSource(a.Config.Map)
	if src == nil {
		return nil, fmt.Errorf("no map file or API URL configured")
	}
	m, err := src.StaticMap(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading map: %w", err)
	}
	df, err := mcl.BuildDistanceField(m)
	if err != nil {
		return nil, fmt.Errorf("building distance field: %w", err)
	}
	return df, nil
}

// RunFieldStats builds the distance field and prints its statistics
func (a *App) RunFieldStats() error {
	if _, err := a.loadConfig(); err != nil {
		return err
	}

	start := time.Now()
	df, err := a.loadField(context.Background())
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	s := df.Stats()
	b := df.Map().Bounds()
	_, _ = fmt.Fprintf(a.Out, "\nMap: %dx%d cells @ %.3f m/cell\n", s.Width, s.Height, s.Resolution)
	_, _ = fmt.Fprintf(a.Out, "  Extent: (%.2f, %.2f) to (%.2f, %.2f) m\n", b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y())
	_, _ = fmt.Fprintf(a.Out, "  Cells: %d occupied, %d free, %d unknown\n", s.OccupiedCells, s.FreeCells, s.UnknownCells)
	_, _ = fmt.Fprintf(a.Out, "  Distance: max %.3f m, mean %.3f m\n", s.MaxDistance, s.MeanDistance)
	_, _ = fmt.Fprintf(a.Out, "  Built in %v\n", elapsed.Round(time.Millisecond))
	return nil
}

// RunRender seeds a particle cloud, uniformly or around the cached pose,
// and draws it over the map.
func (a *App) RunRender() error {
	config, err := a.loadConfig()
	if err != nil {
		return err
	}
	df, err := a.loadField(context.Background())
	if err != nil {
		return err
	}

	fc := config.Filter
	if a.Particles > 0 {
		fc.Particles = a.Particles
	}
	filter := mcl.NewFilter(df, fc, config.Sensor, nil)

	pc, err := mcl.LoadPoseCache(config.PoseCache)
	if err != nil {
		log.Printf("Warning: ignoring pose cache: %v", err)
	}
	if pc.Matches(df.Map()) {
		filter.SeedAround(pc.Pose)
		log.Printf("Seeded %d particles around cached pose (%.2f, %.2f)", fc.Particles, pc.Pose.X, pc.Pose.Y)
	} else {
		filter.SeedUniform()
		log.Printf("Seeded %d particles over free space", fc.Particles)
	}

	cloud, _ := filter.Particles()
	est, _ := filter.Estimate()
	overlay := mcl.Overlay{Particles: cloud, Estimate: est, Sensor: config.Sensor}

	if err := a.writeRender(df, overlay); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.Out, "Rendered %s (%s)\n", a.OutputFile, a.RenderFormat)
	return nil
}

func (a *App) writeRender(df *mcl.DistanceField, o mcl.Overlay) error {
	if a.RenderFormat == "" || a.RenderFormat == "raster" {
		return mcl.NewFieldRenderer(df).SavePNG(a.OutputFile, o)
	}

	f, err := os.Create(a.OutputFile)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer func() { _ = f.Close() }()

	switch a.RenderFormat {
	case "svg":
		return mcl.NewVectorRenderer(df.Map()).RenderToSVG(f, o)
	case "vector":
		return mcl.NewVectorRenderer(df.Map()).RenderToPNG(f, o)
	case "plot":
		format := strings.TrimPrefix(filepath.Ext(a.OutputFile), ".")
		if format == "" {
			format = "png"
		}
		return mcl.WriteParticlePlot(f, df.Map(), o, format)
	default:
		return fmt.Errorf("unknown render format %q (want raster, svg, vector or plot)", a.RenderFormat)
	}
}

// RunService runs the localizer until interrupted
func (a *App) RunService() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.serve(ctx)
}

func (a *App) serve(ctx context.Context) error {
	_, _ = fmt.Fprintln(a.Out, "Starting tudoloc service...")

	config, err := a.loadConfig()
	if err != nil {
		return err
	}

	src := mcl.NewMapSource(config.Map)
	if src == nil && !a.MqttMode {
		return fmt.Errorf("no map source: set map.file, map.apiUrl or run with --mqtt")
	}

	a.Publisher = mcl.NewPublisher(nil, config)
	var out mcl.Broadcaster
	if a.MqttMode {
		out = a.Publisher
	}
	a.Localizer = mcl.NewLocalizer(config, out)

	if a.MqttMode {
		client, err := mcl.InitMQTT(config, a.Localizer)
		if err != nil {
			return fmt.Errorf("failed to initialize MQTT: %w", err)
		}
		if client == nil {
			return fmt.Errorf("MQTT broker not configured in %s", a.ConfigFile)
		}
		a.MQTTClient = client
		a.Publisher.SetClient(client.GetClient())
		defer client.Disconnect()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Localizer.Run(ctx) })

	if src != nil {
		g.Go(func() error { return a.loadMap(ctx, src) })
	}

	if a.HttpMode {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", a.HttpPort),
			Handler:           newHTTPServer(a.Localizer.State(), config),
			ReadHeaderTimeout: 10 * time.Second,
		}
		_, _ = fmt.Fprintf(a.Out, "HTTP server starting on %s\n", srv.Addr)
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	a.printServiceInfo(config)

	err = g.Wait()
	_, _ = fmt.Fprintln(a.Out, "\nShutting down service...")
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(a.Out, "Service stopped")
	return nil
}

// loadMap hands the configured map to the localizer and republishes it,
// retained, on the map topic.
func (a *App) loadMap(ctx context.Context, src mcl.MapSource) error {
	m, err := src.StaticMap(ctx)
	if err != nil {
		return fmt.Errorf("loading map: %w", err)
	}
	log.Printf("Loaded %dx%d map @ %.3f m/cell", m.Width, m.Height, m.Resolution)
	a.Localizer.HandleMap(m)

	if a.MqttMode {
		if err := a.Localizer.WaitForMap(ctx); err != nil {
			return nil
		}
		if err := a.Publisher.PublishMap(m); err != nil {
			log.Printf("Warning: map not republished: %v", err)
		}
	}
	return nil
}

func (a *App) printServiceInfo(config *mcl.Config) {
	_, _ = fmt.Fprintln(a.Out, "\nService Running")
	_, _ = fmt.Fprintln(a.Out, "===============")

	switch {
	case config.Map.File != "":
		_, _ = fmt.Fprintf(a.Out, "\nMap: %s\n", config.Map.File)
	case config.Map.ApiURL != "":
		_, _ = fmt.Fprintf(a.Out, "\nMap: %s\n", config.Map.ApiURL)
	default:
		_, _ = fmt.Fprintf(a.Out, "\nMap: MQTT topic %s\n", config.MQTT.Topics.Map)
	}

	if a.MqttMode {
		t := config.MQTT.Topics
		_, _ = fmt.Fprintln(a.Out, "\nMQTT:")
		_, _ = fmt.Fprintln(a.Out, "  Subscribed topics:")
		for _, topic := range []string{t.Odometry, t.Scan, t.InitialPose} {
			_, _ = fmt.Fprintf(a.Out, "    - %s\n", topic)
		}
		_, _ = fmt.Fprintln(a.Out, "  Publishing to:")
		for _, topic := range []string{t.ParticleCloud, t.Pose, t.Transform} {
			_, _ = fmt.Fprintf(a.Out, "    - %s\n", topic)
		}
	}

	if a.HttpMode {
		_, _ = fmt.Fprintf(a.Out, "\nHTTP endpoints (port %d):\n", a.HttpPort)
		_, _ = fmt.Fprintln(a.Out, "  GET /health          - Health check")
		_, _ = fmt.Fprintln(a.Out, "  GET /state           - Filter state and counters")
		_, _ = fmt.Fprintln(a.Out, "  GET /pose            - Current estimate")
		_, _ = fmt.Fprintln(a.Out, "  GET /correction      - map to odom correction")
		_, _ = fmt.Fprintln(a.Out, "  GET /particles       - Particle cloud as GeoJSON")
		_, _ = fmt.Fprintln(a.Out, "  GET /field.png       - Distance field with particles")
		_, _ = fmt.Fprintln(a.Out, "  GET /live.svg        - Live vector view")
		_, _ = fmt.Fprintln(a.Out, "  GET /plot.png        - Particle scatter plot")
	}

	_, _ = fmt.Fprintln(a.Out, "\nPress Ctrl+C to stop")
}
