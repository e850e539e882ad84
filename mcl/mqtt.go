package mcl

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// EventSink receives decoded transport messages
type EventSink interface {
	HandleMap(m *OccupancyMap)
	HandleOdometry(o Odometry)
	HandleScan(s Scan)
	HandleInitialPose(p InitialPose)
}

// MQTTClient manages the MQTT connection and routes the map, odometry,
// scan and initial pose topics to an EventSink.
type MQTTClient struct {
	client      mqtt.Client
	config      *Config
	sink        EventSink
	isConnected bool
	mu          sync.RWMutex
}

// InitMQTT connects to the configured broker in the background. It
// returns nil, nil when no broker is configured.
func InitMQTT(config *Config, sink EventSink) (*MQTTClient, error) {
	if config == nil {
		return nil, fmt.Errorf("MQTT: no configuration provided")
	}
	if config.MQTT.Broker == "" {
		log.Println("[MQTT] Disabled: no broker configured")
		return nil, nil
	}

	c := &MQTTClient{config: config, sink: sink}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.MQTT.Broker)
	opts.SetClientID(config.MQTT.ClientID)
	if config.MQTT.Username != "" {
		opts.SetUsername(config.MQTT.Username)
		opts.SetPassword(config.MQTT.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false)
	// scans and odometry must reach the sink in arrival order
	opts.SetOrderMatters(true)

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		log.Println("[MQTT] Reconnecting...")
	})

	c.client = mqtt.NewClient(opts)
	go c.connectWithRetry()
	return c, nil
}

// connectWithRetry attempts to connect to the MQTT broker with exponential backoff
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		log.Printf("[MQTT] Connecting to %s...", c.config.MQTT.Broker)

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				log.Println("[MQTT] Connected")
				c.setConnected(true)
				return
			}
			log.Printf("[MQTT] Connection failed: %v", token.Error())
		} else {
			log.Println("[MQTT] Connection timeout")
		}

		log.Printf("[MQTT] Retrying in %v...", retryDelay)
		time.Sleep(retryDelay)
		retryDelay = min(retryDelay*2, maxRetryDelay)
	}
}

// Subscriptions lists the topics the client listens on with their handlers
func (c *MQTTClient) Subscriptions() map[string]mqtt.MessageHandler {
	t := c.config.MQTT.Topics
	subs := map[string]mqtt.MessageHandler{
		t.Odometry:    c.handleOdometry,
		t.Scan:        c.handleScan,
		t.InitialPose: c.handleInitialPose,
	}
	// a map file or API takes precedence over the map topic
	if c.config.Map.File == "" && c.config.Map.ApiURL == "" {
		subs[t.Map] = c.handleMap
	}
	return subs
}

func (c *MQTTClient) onConnect(client mqtt.Client) {
	log.Println("[MQTT] Connected, subscribing...")
	c.setConnected(true)

	for topic, handler := range c.Subscriptions() {
		if topic == "" {
			continue
		}
		token := client.Subscribe(topic, 0, handler)
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Printf("[MQTT] Error subscribing to %s: %v", topic, token.Error())
			continue
		}
		log.Printf("[MQTT] Subscribed to %s", topic)
	}
}

func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("[MQTT] Connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

func (c *MQTTClient) handleMap(_ mqtt.Client, msg mqtt.Message) {
	payload := msg.Payload()
	log.Printf("[MQTT] Received map (topic: %s, size: %d bytes)", msg.Topic(), len(payload))
	m, err := DecodeMapData(payload)
	if err != nil {
		log.Printf("[MQTT] Error decoding map: %v", err)
		return
	}
	c.sink.HandleMap(m)
}

func (c *MQTTClient) handleOdometry(_ mqtt.Client, msg mqtt.Message) {
	var o Odometry
	if err := json.Unmarshal(msg.Payload(), &o); err != nil {
		log.Printf("[MQTT] Error decoding odometry on %s: %v", msg.Topic(), err)
		return
	}
	if o.Stamp.IsZero() {
		o.Stamp = time.Now()
	}
	c.sink.HandleOdometry(o)
}

func (c *MQTTClient) handleScan(_ mqtt.Client, msg mqtt.Message) {
	var s Scan
	if err := json.Unmarshal(msg.Payload(), &s); err != nil {
		log.Printf("[MQTT] Error decoding scan on %s: %v", msg.Topic(), err)
		return
	}
	if s.Stamp.IsZero() {
		s.Stamp = time.Now()
	}
	c.sink.HandleScan(s)
}

func (c *MQTTClient) handleInitialPose(_ mqtt.Client, msg mqtt.Message) {
	var p InitialPose
	if err := json.Unmarshal(msg.Payload(), &p); err != nil {
		log.Printf("[MQTT] Error decoding initial pose on %s: %v", msg.Topic(), err)
		return
	}
	log.Printf("[MQTT] Initial pose hint (%.2f, %.2f, %.2f)", p.X, p.Y, p.Theta)
	c.sink.HandleInitialPose(p)
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect gracefully closes the MQTT connection
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		log.Println("[MQTT] Disconnecting...")
		c.client.Disconnect(250)
		c.setConnected(false)
	}
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// NewMQTTClientWith wraps an existing mqtt.Client, typically a MockClient
func NewMQTTClientWith(client mqtt.Client, config *Config, sink EventSink) *MQTTClient {
	return &MQTTClient{client: client, config: config, sink: sink}
}

// Subscribe registers the topic handlers on the wrapped client. InitMQTT
// does this from the connect callback.
func (c *MQTTClient) Subscribe() {
	c.onConnect(c.client)
}
