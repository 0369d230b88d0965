// Package emitter publishes measurements of the selected subject to an MQTT broker.
package emitter

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/colourskel/skeleton-server/internal/config"
	"github.com/colourskel/skeleton-server/internal/logger"
	"github.com/colourskel/skeleton-server/internal/metrics"
	"github.com/colourskel/skeleton-server/internal/pipeline"
)

// ErrNotConnected is returned when publishing without a broker connection
var ErrNotConnected = errors.New("emitter: mqtt not connected")

const publishTimeout = 2 * time.Second

// Message is the payload published for each measured tick
type Message struct {
	Session    string  `json:"session" msgpack:"session"`
	Tick       uint64  `json:"tick" msgpack:"tick"`
	Timestamp  int64   `json:"timestamp" msgpack:"timestamp"`
	TrackingID int     `json:"tracking_id" msgpack:"tracking_id"`
	JointA     string  `json:"joint_a" msgpack:"joint_a"`
	JointB     string  `json:"joint_b" msgpack:"joint_b"`
	Distance   float64 `json:"distance" msgpack:"distance"`
	Label      string  `json:"label" msgpack:"label"`
}

// MessageFromStatus builds the payload of a status, false when it has no measurement
func MessageFromStatus(st pipeline.Status) (Message, bool) {
	if st.Measurement == nil {
		return Message{}, false
	}
	return Message{
		Session:    st.SessionID,
		Tick:       st.Tick,
		Timestamp:  st.Timestamp,
		TrackingID: st.SelectedID,
		JointA:     st.Measurement.JointA.String(),
		JointB:     st.Measurement.JointB.String(),
		Distance:   st.Measurement.Distance,
		Label:      st.Measurement.Label,
	}, true
}

// Encode serialises a message as json or msgpack
func Encode(msg Message, encoding string) ([]byte, error) {
	switch encoding {
	case "json", "":
		return json.Marshal(msg)
	case "msgpack":
		return msgpack.Marshal(msg)
	default:
		return nil, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}

// publisher is the part of mqtt.Client the emitter needs
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTEmitter publishes measurements to MQTT
type MQTTEmitter struct {
	cfg     config.MQTTConfig
	topic   string
	metrics *metrics.Metrics

	client         mqtt.Client
	pub            publisher
	connectTimeout time.Duration

	mu        sync.RWMutex
	connected bool
	running   bool
	published uint64
	errors    uint64
	dropped   uint64

	queue chan Message
	stop  chan struct{}
	wg    sync.WaitGroup
}

// NewMQTTEmitter creates an emitter. m may be nil.
func NewMQTTEmitter(cfg config.MQTTConfig, m *metrics.Metrics) *MQTTEmitter {
	if cfg.ClientID == "" {
		cfg.ClientID = "skeleton-" + uuid.NewString()
	}
	return &MQTTEmitter{
		cfg:     cfg,
		topic:   cfg.TopicPrefix + "/measurements",
		metrics:        m,
		connectTimeout: 5 * time.Second,
		queue:          make(chan Message, 30),
		stop:           make(chan struct{}),
	}
}

// Topic returns the measurement topic
func (e *MQTTEmitter) Topic() string {
	return e.topic
}

// Connect starts the publish loop and connects to the broker. A broker that
// cannot be reached within the connect timeout is reported, but paho keeps
// retrying and publishing resumes once it connects.
func (e *MQTTEmitter) Connect() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(e.cfg.Broker)
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.handleConnect(c)
		logger.Info("MQTT", "Connected to %s as %s", e.cfg.Broker, e.cfg.ClientID)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.setConnected(false)
		logger.Warn("MQTT", "Connection lost, will auto-reconnect: %v", err)
	}

	e.client = mqtt.NewClient(opts)
	e.start()
	logger.Info("MQTT", "Connecting to %s", e.cfg.Broker)

	token := e.client.Connect()
	if !token.WaitTimeout(e.connectTimeout) {
		return fmt.Errorf("mqtt connection timeout, retrying in background")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.handleConnect(e.client)
	return nil
}

// start runs the publish loop. Messages taken while offline fail with
// ErrNotConnected.
func (e *MQTTEmitter) start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.running = true
	e.wg.Add(1)
	go e.run()
}

// handleConnect makes pub the publisher and marks the emitter connected
func (e *MQTTEmitter) handleConnect(pub publisher) {
	e.mu.Lock()
	e.pub = pub
	e.connected = true
	e.mu.Unlock()
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

// currentPublisher returns the publisher, or nil while offline
func (e *MQTTEmitter) currentPublisher() publisher {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.connected {
		return nil
	}
	return e.pub
}

// SendStatus queues the measurement of a status (non-blocking).
func (e *MQTTEmitter) SendStatus(st pipeline.Status) bool {
	msg, ok := MessageFromStatus(st)
	if !ok {
		return false
	}
	select {
	case e.queue <- msg:
		return true
	default:
		e.mu.Lock()
		e.dropped++
		e.mu.Unlock()
		return false
	}
}

func (e *MQTTEmitter) run() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stop:
			return
		case msg := <-e.queue:
			if err := e.Publish(msg); err != nil {
				logger.Debug("MQTT", "Publish failed: %v", err)
			}
		}
	}
}

// Publish sends one message and waits for the broker acknowledgement
func (e *MQTTEmitter) Publish(msg Message) error {
	pub := e.currentPublisher()
	if pub == nil {
		e.countError()
		return ErrNotConnected
	}

	payload, err := Encode(msg, e.cfg.Encoding)
	if err != nil {
		e.countError()
		return fmt.Errorf("failed to encode measurement: %w", err)
	}

	token := pub.Publish(e.topic, e.cfg.QoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		e.countError()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("publish failed: %w", err)
	}

	e.mu.Lock()
	e.published++
	e.mu.Unlock()
	if e.metrics != nil {
		e.metrics.MQTTPublished.Add(1)
	}
	return nil
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
	if e.metrics != nil {
		e.metrics.MQTTErrors.Add(1)
	}
}

// Disconnect stops the publish loop and closes the connection
func (e *MQTTEmitter) Disconnect() {
	e.mu.Lock()
	select {
	case <-e.stop:
	default:
		close(e.stop)
	}
	e.mu.Unlock()
	e.wg.Wait()

	// Also stops a connect retry still in progress
	if e.client != nil {
		e.client.Disconnect(250) // 250ms grace period
		logger.Info("MQTT", "Disconnected")
	}
	e.setConnected(false)
}

// Stats returns emitter statistics
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{
		Connected: e.connected,
		Topic:     e.topic,
		Published: e.published,
		Errors:    e.errors,
		Dropped:   e.dropped,
	}
}

// Stats contains emitter statistics
type Stats struct {
	Connected bool   `json:"connected"`
	Topic     string `json:"topic"`
	Published uint64 `json:"published"`
	Errors    uint64 `json:"errors"`
	Dropped   uint64 `json:"dropped"`
}
