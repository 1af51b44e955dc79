// Package emitter publishes run results to an MQTT broker.
package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ayusman/punchcounter/internal/config"
	"github.com/ayusman/punchcounter/internal/report"
)

// ErrNotConnected is returned when publishing before Connect succeeds.
var ErrNotConnected = errors.New("mqtt not connected")

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// MQTTPublisher publishes results documents to <topic>/<run_id>
type MQTTPublisher struct {
	cfg    config.MQTTConfig
	client mqtt.Client

	mu        sync.RWMutex
	published uint64
	errors    uint64
	connected bool
}

// NewMQTTPublisher creates a publisher for the given broker settings.
func NewMQTTPublisher(cfg config.MQTTConfig) *MQTTPublisher {
	return &MQTTPublisher{cfg: cfg}
}

// Connect establishes the broker connection. The client reconnects on its own
// after a lost connection.
func (p *MQTTPublisher) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(BrokerURL(p.cfg.Broker))
	opts.SetClientID(p.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		p.setConnected(true)
		slog.Info("mqtt connection established",
			"broker", p.cfg.Broker,
			"client_id", p.cfg.ClientID)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		p.setConnected(false)
		slog.Warn("mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", p.cfg.Broker)
	}

	p.client = mqtt.NewClient(opts)

	slog.Info("connecting to mqtt broker", "broker", p.cfg.Broker)

	token := p.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(connectTimeout):
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	p.setConnected(true)
	return nil
}

// Publish sends r as JSON to the run's topic.
func (p *MQTTPublisher) Publish(r *report.Results) error {
	if !p.isConnected() {
		p.countError()
		return ErrNotConnected
	}

	topic := p.Topic(r.RunID)
	payload, err := Payload(r)
	if err != nil {
		p.countError()
		return err
	}

	token := p.client.Publish(topic, p.cfg.QoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		p.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		p.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	p.mu.Lock()
	p.published++
	p.mu.Unlock()

	slog.Debug("results published",
		"topic", topic,
		"qos", p.cfg.QoS,
		"size", len(payload),
	)

	return nil
}

// Topic returns the topic a run's results are published to.
func (p *MQTTPublisher) Topic(runID string) string {
	return strings.TrimSuffix(p.cfg.Topic, "/") + "/" + runID
}

// Disconnect closes the broker connection.
func (p *MQTTPublisher) Disconnect() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
		slog.Info("mqtt disconnected")
	}
	p.setConnected(false)
}

// Stats contains publisher statistics
type Stats struct {
	Connected bool
	Published uint64
	Errors    uint64
}

// Stats returns publisher statistics
func (p *MQTTPublisher) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return Stats{
		Connected: p.connected,
		Published: p.published,
		Errors:    p.errors,
	}
}

// Payload encodes a results document for publishing.
func Payload(r *report.Results) ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal results: %w", err)
	}
	return data, nil
}

// BrokerURL adds the tcp scheme to a bare host:port.
func BrokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

func (p *MQTTPublisher) isConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

func (p *MQTTPublisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}

func (p *MQTTPublisher) countError() {
	p.mu.Lock()
	p.errors++
	p.mu.Unlock()
}
