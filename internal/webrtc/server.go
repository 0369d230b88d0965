// Package webrtc serves per-tick measurement statuses to browsers over WebRTC data channels.
package webrtc

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"

	"github.com/colourskel/skeleton-server/internal/logger"
	"github.com/colourskel/skeleton-server/internal/metrics"
	"github.com/colourskel/skeleton-server/internal/pipeline"
)

const (
	// ChannelLabel is the label of the pre-negotiated measurements channel
	ChannelLabel = "measurements"
	// ChannelID is the SCTP stream id both peers use for ChannelLabel
	ChannelID uint16 = 0
)

// ErrMaxClients is returned by HandleOffer when no client slot is free
var ErrMaxClients = errors.New("maximum clients reached")

// Client represents a connected WebRTC client
type Client struct {
	id        string
	peerConn  *webrtc.PeerConnection
	send      func(string) error
	msgChan   chan string
	openChan  chan struct{}
	closeChan chan struct{}
	openOnce  sync.Once
	sent      atomic.Uint64
	dropped   atomic.Uint64
}

func newClient(id string, pc *webrtc.PeerConnection, send func(string) error) *Client {
	return &Client{
		id:        id,
		peerConn:  pc,
		send:      send,
		msgChan:   make(chan string, 30), // Buffer 1 second worth
		openChan:  make(chan struct{}),
		closeChan: make(chan struct{}),
	}
}

func (c *Client) markOpen() {
	c.openOnce.Do(func() { close(c.openChan) })
}

// Server manages WebRTC connections
type Server struct {
	clients    map[string]*Client
	clientsMu  sync.RWMutex
	config     webrtc.Configuration
	maxClients int
	api        *webrtc.API
	metrics    *metrics.Metrics
}

// NewServer creates a new WebRTC server. An empty stunServers list gathers
// host candidates only. m may be nil.
func NewServer(stunServers []string, maxClients int, m *metrics.Metrics) *Server {
	iceServers := make([]webrtc.ICEServer, 0, len(stunServers))
	for _, url := range stunServers {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs: []string{url},
		})
	}

	settingsEngine := webrtc.SettingEngine{}

	// Reduce DTLS retransmission timeout (faster connection, less CPU on retries)
	settingsEngine.SetDTLSRetransmissionInterval(time.Second * 2)

	settingsEngine.SetNetworkTypes([]webrtc.NetworkType{
		webrtc.NetworkTypeUDP4,
		webrtc.NetworkTypeUDP6,
	})

	// Data channels only, no media engine needed
	api := webrtc.NewAPI(webrtc.WithSettingEngine(settingsEngine))

	return &Server{
		clients: make(map[string]*Client),
		config: webrtc.Configuration{
			ICEServers: iceServers,
		},
		maxClients: maxClients,
		api:        api,
		metrics:    m,
	}
}

// HandleOffer handles a WebRTC offer and returns an answer.
//
// The offer must carry a data channel negotiated out of band with label
// ChannelLabel and id ChannelID.
func (s *Server) HandleOffer(offerJSON []byte) ([]byte, error) {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(offerJSON, &offer); err != nil {
		return nil, fmt.Errorf("failed to parse offer: %w", err)
	}
	if offer.Type != webrtc.SDPTypeOffer {
		return nil, fmt.Errorf("expected an offer, got %s", offer.Type)
	}

	if n := s.GetClientCount(); n >= s.maxClients {
		return nil, fmt.Errorf("%w (%d)", ErrMaxClients, s.maxClients)
	}

	peerConn, err := s.api.NewPeerConnection(s.config)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	negotiated := true
	id := ChannelID
	channel, err := peerConn.CreateDataChannel(ChannelLabel, &webrtc.DataChannelInit{
		Negotiated: &negotiated,
		ID:         &id,
	})
	if err != nil {
		peerConn.Close()
		return nil, fmt.Errorf("failed to create data channel: %w", err)
	}

	client := newClient(uuid.NewString(), peerConn, channel.SendText)

	channel.OnOpen(func() {
		logger.Debug("WebRTC", "Client %s data channel open", client.id)
		client.markOpen()
	})
	channel.OnClose(func() {
		s.RemoveClient(client.id)
	})

	// Remove client on disconnection, failure, or close
	peerConn.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.Debug("WebRTC", "Client %s connection state: %s", client.id, state.String())

		if state == webrtc.PeerConnectionStateDisconnected ||
			state == webrtc.PeerConnectionStateFailed ||
			state == webrtc.PeerConnectionStateClosed {
			logger.Info("WebRTC", "Client %s connection lost (%s), removing...", client.id, state.String())
			s.RemoveClient(client.id)
		}
	})

	if err := peerConn.SetRemoteDescription(offer); err != nil {
		peerConn.Close()
		return nil, fmt.Errorf("failed to set remote description: %w", err)
	}

	answer, err := peerConn.CreateAnswer(nil)
	if err != nil {
		peerConn.Close()
		return nil, fmt.Errorf("failed to create answer: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(peerConn)

	if err := peerConn.SetLocalDescription(answer); err != nil {
		peerConn.Close()
		return nil, fmt.Errorf("failed to set local description: %w", err)
	}

	// Wait for ICE gathering so the answer carries every candidate
	<-gatherComplete
	logger.Debug("WebRTC", "ICE gathering complete for client %s", client.id)

	localDesc := peerConn.LocalDescription()
	if localDesc == nil {
		peerConn.Close()
		return nil, fmt.Errorf("no local description available")
	}

	answerJSON, err := json.Marshal(localDesc)
	if err != nil {
		peerConn.Close()
		return nil, fmt.Errorf("failed to marshal answer: %w", err)
	}

	s.addClient(client)
	logger.Info("WebRTC", "Client %s connected", client.id)

	return answerJSON, nil
}

// addClient registers a client and starts its sender
func (s *Server) addClient(c *Client) {
	s.clientsMu.Lock()
	s.clients[c.id] = c
	n := len(s.clients)
	s.clientsMu.Unlock()

	if s.metrics != nil {
		s.metrics.TotalClients.Add(1)
		s.metrics.ActiveClients.Store(uint64(n))
	}

	go s.sendMessages(c)
}

// Broadcast sends a status to all connected clients (non-blocking)
func (s *Server) Broadcast(st pipeline.Status) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	msg := string(data)

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for _, client := range s.clients {
		select {
		case client.msgChan <- msg:
		default:
			// Channel full, drop message
			client.dropped.Add(1)
			if s.metrics != nil {
				s.metrics.WebRTCDropped.Add(1)
			}
		}
	}
	return nil
}

// sendMessages writes queued statuses to one client once its channel is open
func (s *Server) sendMessages(c *Client) {
	select {
	case <-c.closeChan:
		return
	case <-c.openChan:
	}

	for {
		select {
		case <-c.closeChan:
			return
		case msg := <-c.msgChan:
			if err := c.send(msg); err != nil {
				logger.Warn("WebRTC", "Error sending to client %s: %v", c.id, err)
				go s.RemoveClient(c.id)
				return
			}
			c.sent.Add(1)
			if s.metrics != nil {
				s.metrics.WebRTCSent.Add(1)
			}
		}
	}
}

// RemoveClient removes a client by ID
func (s *Server) RemoveClient(clientID string) {
	s.clientsMu.Lock()
	client, exists := s.clients[clientID]
	if exists {
		delete(s.clients, clientID)
	}
	n := len(s.clients)
	s.clientsMu.Unlock()

	if !exists {
		return
	}
	if s.metrics != nil {
		s.metrics.ActiveClients.Store(uint64(n))
	}

	close(client.closeChan)
	// Closing may re-enter RemoveClient from a state callback; the client is already gone.
	if client.peerConn != nil {
		if err := client.peerConn.Close(); err != nil {
			logger.Debug("WebRTC", "Client %s close: %v", clientID, err)
		}
	}

	logger.Info("WebRTC", "Client %s disconnected (sent: %d, dropped: %d)",
		clientID, client.sent.Load(), client.dropped.Load())
}

// GetClientCount returns the number of connected clients
func (s *Server) GetClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// GetClientStats returns stats for all clients
func (s *Server) GetClientStats() map[string]map[string]uint64 {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	stats := make(map[string]map[string]uint64)
	for id, client := range s.clients {
		stats[id] = map[string]uint64{
			"messages_sent":    client.sent.Load(),
			"messages_dropped": client.dropped.Load(),
		}
	}
	return stats
}

// Close closes all client connections
func (s *Server) Close() error {
	s.clientsMu.RLock()
	ids := make([]string, 0, len(s.clients))
	for id := range s.clients {
		ids = append(ids, id)
	}
	s.clientsMu.RUnlock()

	for _, id := range ids {
		s.RemoveClient(id)
	}
	return nil
}
