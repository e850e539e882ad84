package mcl

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Broadcaster is where the localizer sends its outputs
type Broadcaster interface {
	PublishParticleCloud(cloud ParticleCloud) error
	PublishPose(est EstimatedPose, stamp time.Time) error
	PublishCorrection(c FrameCorrection) error
}

// PosePayload is the JSON published on the pose topic
type PosePayload struct {
	EstimatedPose
	Frame string    `json:"frame"`
	Stamp time.Time `json:"stamp"`
}

// Publisher publishes localizer outputs to MQTT. A nil client disables
// publishing; every call then fails with an error.
type Publisher struct {
	client mqtt.Client
	topics TopicConfig
	frame  string
	qos    byte
	retain bool
}

// NewPublisher creates a publisher for the configured topics
func NewPublisher(client mqtt.Client, config *Config) *Publisher {
	return &Publisher{
		client: client,
		topics: config.MQTT.Topics,
		frame:  config.Frames.Map,
		qos:    0,
		retain: false,
	}
}

// SetClient replaces the MQTT client. The service creates the publisher
// before the client that feeds the localizer, then attaches it here.
func (p *Publisher) SetClient(client mqtt.Client) {
	p.client = client
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}

// PublishParticleCloud publishes the cloud as a GeoJSON FeatureCollection
func (p *Publisher) PublishParticleCloud(cloud ParticleCloud) error {
	payload, err := ParticlesToFeatureCollection(cloud).MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshaling particle cloud: %w", err)
	}
	return p.publish(p.topics.ParticleCloud, payload, p.retain)
}

// PublishPose publishes the current estimate
func (p *Publisher) PublishPose(est EstimatedPose, stamp time.Time) error {
	return p.publishJSON(p.topics.Pose, PosePayload{EstimatedPose: est, Frame: p.frame, Stamp: stamp})
}

// PublishCorrection publishes the map→odom correction
func (p *Publisher) PublishCorrection(c FrameCorrection) error {
	return p.publishJSON(p.topics.Transform, c)
}

// PublishMap publishes the static map, zlib-compressed and retained, so
// late subscribers receive it on connect.
func (p *Publisher) PublishMap(m *OccupancyMap) error {
	payload, err := EncodeMapData(m)
	if err != nil {
		return err
	}
	return p.publish(p.topics.Map, payload, true)
}

func (p *Publisher) publishJSON(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s payload: %w", topic, err)
	}
	return p.publish(topic, payload, p.retain)
}

func (p *Publisher) publish(topic string, payload []byte, retain bool) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}
	token := p.client.Publish(topic, p.qos, retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}
