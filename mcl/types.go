package mcl

import (
	"math"
	"time"
)

// Point represents a 2D coordinate in world meters
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Cell is a grid index into an OccupancyMap (column I, row J)
type Cell struct {
	I int `json:"i"`
	J int `json:"j"`
}

// AffineMatrix for 2D transforms: x' = ax + by + tx, y' = cx + dy + ty
type AffineMatrix struct {
	A  float64 `json:"a"`
	B  float64 `json:"b"`
	Tx float64 `json:"tx"`
	C  float64 `json:"c"`
	D  float64 `json:"d"`
	Ty float64 `json:"ty"`
}

// Identity returns an identity matrix (no transformation)
func Identity() AffineMatrix {
	return AffineMatrix{A: 1, B: 0, Tx: 0, C: 0, D: 1, Ty: 0}
}

// Pose is a planar robot pose. Theta is the heading in radians.
type Pose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
}

// Particle is one weighted pose hypothesis.
type Particle struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Theta float64 `json:"theta"`
	W     float64 `json:"w"`
}

// Pose returns the particle's pose without its weight
func (p Particle) Pose() Pose {
	return Pose{X: p.X, Y: p.Y, Theta: p.Theta}
}

// OdometryDelta is the relative motion between two odometry readings,
// expressed in the odometry frame.
type OdometryDelta struct {
	DX     float64 `json:"dx"`
	DY     float64 `json:"dy"`
	DTheta float64 `json:"dtheta"`
}

// Translation returns the planar distance covered by the delta
func (d OdometryDelta) Translation() float64 {
	return math.Hypot(d.DX, d.DY)
}

// ScanBeam is a single range reading at a bearing relative to the sensor.
type ScanBeam struct {
	Angle float64 `json:"angle"`
	Range float64 `json:"range"`
}

// Scan is one sweep of a planar range sensor.
//
// When AngleIncrement is zero the ranges are assumed to cover a full
// revolution evenly, starting at AngleMin.
type Scan struct {
	Ranges         []float64 `json:"ranges"`
	AngleMin       float64   `json:"angleMin"`
	AngleIncrement float64   `json:"angleIncrement"`
	FrameID        string    `json:"frameId,omitempty"`
	Stamp          time.Time `json:"stamp"`
}

// Beams expands the scan into per-beam bearings
func (s Scan) Beams() []ScanBeam {
	if len(s.Ranges) == 0 {
		return nil
	}
	inc := s.AngleIncrement
	if inc == 0 {
		inc = 2 * math.Pi / float64(len(s.Ranges))
	}
	beams := make([]ScanBeam, len(s.Ranges))
	for i, r := range s.Ranges {
		beams[i] = ScanBeam{Angle: s.AngleMin + float64(i)*inc, Range: r}
	}
	return beams
}

// Odometry is a timestamped pose in the odometry frame
type Odometry struct {
	Pose
	Stamp time.Time `json:"stamp"`
}

// InitialPose is an external hint used to reseed the filter
type InitialPose struct {
	Pose
	Stamp time.Time `json:"stamp"`
}

// EstimatedPose is the filter's best guess. Callers must check Valid
// before using the pose.
type EstimatedPose struct {
	Pose
	Valid bool `json:"valid"`
}

// Config represents the full configuration file
type Config struct {
	MQTT      MQTTConfig   `yaml:"mqtt" json:"mqtt"`
	Map       MapConfig    `yaml:"map" json:"map"`
	Filter    FilterConfig `yaml:"filter" json:"filter"`
	Sensor    SensorConfig `yaml:"sensor" json:"sensor"`
	Frames    FrameConfig  `yaml:"frames" json:"frames"`
	PoseCache string       `yaml:"poseCache,omitempty" json:"poseCache,omitempty"` // Path of the last-pose cache file
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker   string      `yaml:"broker" json:"broker"`
	ClientID string      `yaml:"clientId" json:"clientId"`
	Username string      `yaml:"username,omitempty" json:"username,omitempty"`
	Password string      `yaml:"password,omitempty" json:"password,omitempty"`
	Topics   TopicConfig `yaml:"topics" json:"topics"`
}

// TopicConfig names the subscribed and published MQTT topics
type TopicConfig struct {
	Map           string `yaml:"map" json:"map"`
	Odometry      string `yaml:"odom" json:"odom"`
	Scan          string `yaml:"scan" json:"scan"`
	InitialPose   string `yaml:"initialPose" json:"initialPose"`
	ParticleCloud string `yaml:"particleCloud" json:"particleCloud"`
	Pose          string `yaml:"pose" json:"pose"`
	Transform     string `yaml:"tf" json:"tf"`
}

// MapConfig selects where the static map comes from. File wins over
// ApiURL; with neither set the map is taken from the MQTT map topic.
type MapConfig struct {
	File   string `yaml:"file,omitempty" json:"file,omitempty"`
	ApiURL string `yaml:"apiUrl,omitempty" json:"apiUrl,omitempty"`
}

// FilterConfig tunes the particle filter
type FilterConfig struct {
	Particles            int          `yaml:"particles" json:"particles"`
	TranslationThreshold float64      `yaml:"translationThreshold" json:"translationThreshold"` // meters
	RotationThreshold    float64      `yaml:"rotationThreshold" json:"rotationThreshold"`       // radians
	EstimateFraction     float64      `yaml:"estimateFraction" json:"estimateFraction"`
	InitialSigmaXY       float64      `yaml:"initialSigmaXY" json:"initialSigmaXY"`
	InitialSigmaTheta    float64      `yaml:"initialSigmaTheta" json:"initialSigmaTheta"`
	Jitter               JitterConfig `yaml:"jitter" json:"jitter"`
	HeadingReference     string       `yaml:"headingReference" json:"headingReference"` // "estimate" or "absolute"
	Workers              int          `yaml:"workers" json:"workers"`
	Seed                 uint64       `yaml:"seed,omitempty" json:"seed,omitempty"` // 0 seeds from the clock
	BroadcastRate        float64      `yaml:"broadcastRate" json:"broadcastRate"`   // Hz
}

// JitterConfig holds the standard deviations of resampling noise
type JitterConfig struct {
	X     float64 `yaml:"x" json:"x"`
	Y     float64 `yaml:"y" json:"y"`
	Theta float64 `yaml:"theta" json:"theta"`
}

// SensorConfig describes the valid range window of the range sensor and
// the penalty applied to beams ending outside the map.
type SensorConfig struct {
	MinRange   float64 `yaml:"minRange" json:"minRange"`
	MaxRange   float64 `yaml:"maxRange" json:"maxRange"`
	MaxPenalty float64 `yaml:"maxPenalty" json:"maxPenalty"`
}

// FrameConfig names the coordinate frames the localizer relates
type FrameConfig struct {
	Map              string  `yaml:"map" json:"map"`
	Odom             string  `yaml:"odom" json:"odom"`
	Base             string  `yaml:"base" json:"base"`
	Laser            string  `yaml:"laser" json:"laser"`
	ToleranceSeconds float64 `yaml:"toleranceSeconds" json:"toleranceSeconds"`
}

// Tolerance returns the odometry matching window as a duration
func (f FrameConfig) Tolerance() time.Duration {
	return time.Duration(f.ToleranceSeconds * float64(time.Second))
}
