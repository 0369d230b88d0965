package webmonitor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/colourskel/skeleton-server/internal/logger"
	"github.com/colourskel/skeleton-server/internal/pipeline"
)

// SerializedEvent holds pre-serialized event data in both formats.
// Serialization happens once per event, shared by every client.
type SerializedEvent struct {
	JSONData     []byte // JSON format for browser compatibility
	ProtobufData []byte // structpb.Struct, base64 encoded for SSE
}

// StatusSource is the part of pipeline.Surface the broadcaster reads
type StatusSource interface {
	Status() pipeline.Status
	Version() uint64
}

// StatusBroadcaster manages fanout of status events to multiple SSE clients.
// Pre-serializes both JSON and Protobuf formats for efficiency.
type StatusBroadcaster struct {
	mu       sync.Mutex
	clients  map[int]chan *SerializedEvent
	nextID   int
	source   StatusSource
	stop     chan struct{}
	stopped  bool
	interval time.Duration
}

// NewStatusBroadcaster creates a broadcaster sampling source every interval.
func NewStatusBroadcaster(source StatusSource, interval time.Duration) *StatusBroadcaster {
	return &StatusBroadcaster{
		clients:  make(map[int]chan *SerializedEvent),
		source:   source,
		stop:     make(chan struct{}),
		interval: interval,
	}
}

// Subscribe adds a new client and returns a channel for receiving status events.
func (sb *StatusBroadcaster) Subscribe() (int, <-chan *SerializedEvent) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	id := sb.nextID
	sb.nextID++
	ch := make(chan *SerializedEvent, 2) // Buffer 2 events to avoid blocking
	if sb.stopped {
		close(ch)
		return id, ch
	}
	sb.clients[id] = ch

	logger.Debug("StatusBroadcaster", "Client #%d subscribed (total clients: %d)", id, len(sb.clients))
	return id, ch
}

// Unsubscribe removes a client.
func (sb *StatusBroadcaster) Unsubscribe(id int) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	if ch, ok := sb.clients[id]; ok {
		close(ch)
		delete(sb.clients, id)
		logger.Debug("StatusBroadcaster", "Client #%d unsubscribed (remaining clients: %d)", id, len(sb.clients))
	}
}

// ClientCount returns the number of subscribed clients
func (sb *StatusBroadcaster) ClientCount() int {
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return len(sb.clients)
}

// Start begins the status event loop.
func (sb *StatusBroadcaster) Start() {
	go sb.run()
}

// Stop halts the broadcaster and disconnects every client.
func (sb *StatusBroadcaster) Stop() {
	sb.mu.Lock()
	if sb.stopped {
		sb.mu.Unlock()
		return
	}
	sb.stopped = true
	close(sb.stop)
	for id, ch := range sb.clients {
		close(ch)
		delete(sb.clients, id)
	}
	sb.mu.Unlock()
}

func (sb *StatusBroadcaster) run() {
	logger.Info("StatusBroadcaster", "Starting status event broadcaster (interval=%v)...", sb.interval)
	ticker := time.NewTicker(sb.interval)
	defer ticker.Stop()

	var lastVersion uint64
	for {
		select {
		case <-sb.stop:
			return
		case <-ticker.C:
			if sb.ClientCount() == 0 {
				continue
			}
			version := sb.source.Version()
			if version == 0 || version == lastVersion {
				continue
			}
			lastVersion = version

			event, err := SerializeStatus(sb.source.Status())
			if err != nil {
				logger.Error("StatusBroadcaster", "%v", err)
				continue
			}
			sb.broadcast(event)
		}
	}
}

// broadcast sends an event to all clients (non-blocking).
func (sb *StatusBroadcaster) broadcast(event *SerializedEvent) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	for id, ch := range sb.clients {
		select {
		case ch <- event:
		default:
			// Client is slow, skip this event
			logger.Debug("StatusBroadcaster", "Client #%d is slow, dropping status event", id)
		}
	}
}

// SerializeStatus encodes a status as JSON and as a base64 structpb.Struct.
// The protobuf form carries the same field names as the JSON form.
func SerializeStatus(st pipeline.Status) (*SerializedEvent, error) {
	jsonData, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("JSON marshal error: %w", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(jsonData, &fields); err != nil {
		return nil, fmt.Errorf("JSON decode error: %w", err)
	}
	pbStruct, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("structpb conversion error: %w", err)
	}
	pbData, err := proto.Marshal(pbStruct)
	if err != nil {
		return nil, fmt.Errorf("Protobuf marshal error: %w", err)
	}

	return &SerializedEvent{
		JSONData:     jsonData,
		ProtobufData: []byte(base64.StdEncoding.EncodeToString(pbData)),
	}, nil
}
