package mcl

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Defaults for a localizer running against a small indoor map
const (
	DefaultParticles            = 200
	DefaultTranslationThreshold = 0.1
	DefaultRotationThreshold    = math.Pi / 12
	DefaultInitialSigmaXY       = 1.0
	DefaultInitialSigmaTheta    = 1.5
	DefaultPoseCachePath        = ".pose-cache.json"
)

// DefaultTopics are the MQTT topics used when none are configured
var DefaultTopics = TopicConfig{
	Map:           "tudoloc/map",
	Odometry:      "tudoloc/odom",
	Scan:          "tudoloc/scan",
	InitialPose:   "tudoloc/initialpose",
	ParticleCloud: "tudoloc/particlecloud",
	Pose:          "tudoloc/pose",
	Transform:     "tudoloc/tf",
}

// DefaultFrames follow the usual ROS naming
var DefaultFrames = FrameConfig{
	Map:              "map",
	Odom:             "odom",
	Base:             "base_link",
	Laser:            "base_laser_link",
	ToleranceSeconds: 0.5,
}

// WithDefaults fills zero fields with their defaults
func (fc FilterConfig) WithDefaults() FilterConfig {
	if fc.Particles <= 0 {
		fc.Particles = DefaultParticles
	}
	if fc.TranslationThreshold == 0 {
		fc.TranslationThreshold = DefaultTranslationThreshold
	}
	if fc.RotationThreshold == 0 {
		fc.RotationThreshold = DefaultRotationThreshold
	}
	if fc.EstimateFraction == 0 {
		fc.EstimateFraction = DefaultEstimateFraction
	}
	if fc.InitialSigmaXY == 0 {
		fc.InitialSigmaXY = DefaultInitialSigmaXY
	}
	if fc.InitialSigmaTheta == 0 {
		fc.InitialSigmaTheta = DefaultInitialSigmaTheta
	}
	if fc.Jitter == (JitterConfig{}) {
		fc.Jitter = DefaultJitter
	}
	if fc.HeadingReference == "" {
		fc.HeadingReference = HeadingEstimate
	}
	if fc.BroadcastRate == 0 {
		fc.BroadcastRate = DefaultBroadcastRate
	}
	return fc
}

// WithDefaults fills zero fields with their defaults
func (sc SensorConfig) WithDefaults() SensorConfig {
	if sc.MinRange == 0 {
		sc.MinRange = DefaultSensorConfig.MinRange
	}
	if sc.MaxRange == 0 {
		sc.MaxRange = DefaultSensorConfig.MaxRange
	}
	if sc.MaxPenalty == 0 {
		sc.MaxPenalty = DefaultSensorConfig.MaxPenalty
	}
	return sc
}

// DefaultConfig returns a configuration with every default applied
func DefaultConfig() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills every unset field
func (c *Config) ApplyDefaults() {
	c.Filter = c.Filter.WithDefaults()
	c.Sensor = c.Sensor.WithDefaults()

	t := &c.MQTT.Topics
	setDefault(&t.Map, DefaultTopics.Map)
	setDefault(&t.Odometry, DefaultTopics.Odometry)
	setDefault(&t.Scan, DefaultTopics.Scan)
	setDefault(&t.InitialPose, DefaultTopics.InitialPose)
	setDefault(&t.ParticleCloud, DefaultTopics.ParticleCloud)
	setDefault(&t.Pose, DefaultTopics.Pose)
	setDefault(&t.Transform, DefaultTopics.Transform)
	setDefault(&c.MQTT.ClientID, "tudoloc")

	f := &c.Frames
	setDefault(&f.Map, DefaultFrames.Map)
	setDefault(&f.Odom, DefaultFrames.Odom)
	setDefault(&f.Base, DefaultFrames.Base)
	setDefault(&f.Laser, DefaultFrames.Laser)
	if f.ToleranceSeconds == 0 {
		f.ToleranceSeconds = DefaultFrames.ToleranceSeconds
	}

	setDefault(&c.PoseCache, DefaultPoseCachePath)
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

// ApplyEnvOverrides lets the environment replace MQTT connection settings
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
	}
	if v := os.Getenv("MQTT_CLIENT_ID"); v != "" {
		c.MQTT.ClientID = v
	}
	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		c.MQTT.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		c.MQTT.Password = v
	}
}

// Validate checks a defaulted configuration
func (c *Config) Validate() error {
	if c.Map.File == "" && c.Map.ApiURL == "" && c.MQTT.Broker == "" {
		return fmt.Errorf("a map source is required: map.file, map.apiUrl or mqtt.broker")
	}
	if c.Filter.Particles < 3 {
		return fmt.Errorf("filter.particles must be at least 3, got %d", c.Filter.Particles)
	}
	if c.Filter.TranslationThreshold < 0 || c.Filter.RotationThreshold < 0 {
		return fmt.Errorf("filter thresholds must not be negative")
	}
	if c.Filter.EstimateFraction <= 0 || c.Filter.EstimateFraction > 1 {
		return fmt.Errorf("filter.estimateFraction must be in (0, 1], got %v", c.Filter.EstimateFraction)
	}
	switch c.Filter.HeadingReference {
	case HeadingEstimate, HeadingAbsolute:
	default:
		return fmt.Errorf("filter.headingReference must be %q or %q, got %q",
			HeadingEstimate, HeadingAbsolute, c.Filter.HeadingReference)
	}
	if c.Filter.BroadcastRate <= 0 {
		return fmt.Errorf("filter.broadcastRate must be positive")
	}
	if c.Sensor.MinRange < 0 || c.Sensor.MinRange >= c.Sensor.MaxRange {
		return fmt.Errorf("sensor range window (%v, %v) is empty", c.Sensor.MinRange, c.Sensor.MaxRange)
	}
	if c.Sensor.MaxPenalty <= 0 {
		return fmt.Errorf("sensor.maxPenalty must be positive")
	}
	return nil
}

// LoadConfig loads the configuration from a YAML file, applies
// environment overrides and defaults, and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	config.ApplyEnvOverrides()
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
