// Package webmonitor serves the outputs of a pipeline session over HTTP:
// MJPEG streams of the overlay and the foreground, JSON and SSE status,
// the latest measurement, recording control and WebRTC signalling.
package webmonitor

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/colourskel/skeleton-server/internal/geometry"
	"github.com/colourskel/skeleton-server/internal/logger"
	"github.com/colourskel/skeleton-server/internal/recorder"
	"github.com/colourskel/skeleton-server/internal/webrtc"
)

// maxOfferBytes bounds the size of a WebRTC offer body
const maxOfferBytes = 64 << 10

// Surface is the read side of a pipeline session
type Surface interface {
	StatusSource
	ForegroundVersion() uint64
	Foreground() *image.RGBA
	Overlay() *image.RGBA
	Measurement() (geometry.MeasurementResult, bool)
}

// OfferHandler answers WebRTC offers
type OfferHandler interface {
	HandleOffer(offerJSON []byte) ([]byte, error)
}

// Recorder controls measurement recording
type Recorder interface {
	Start() error
	Stop() error
	GetStatus() recorder.RecordingStatus
}

// Server serves the web monitor endpoints.
type Server struct {
	cfg         Config
	surface     Surface
	offers      OfferHandler
	recorder    Recorder
	broadcaster *StatusBroadcaster
	overlay     *frameCache
	foreground  *frameCache
	started     time.Time
}

// NewServer returns a configured monitor server. offers and rec may be nil,
// in which case their endpoints answer 503.
func NewServer(cfg Config, surface Surface, offers OfferHandler, rec Recorder) *Server {
	cfg = cfg.withDefaults()

	broadcaster := NewStatusBroadcaster(surface, cfg.StatusInterval)
	broadcaster.Start()

	return &Server{
		cfg:         cfg,
		surface:     surface,
		offers:      offers,
		recorder:    rec,
		broadcaster: broadcaster,
		overlay:     newFrameCache(cfg.JPEGQuality, surface.Overlay, nil),
		foreground:  newFrameCache(cfg.JPEGQuality, surface.Foreground, checkerboard),
		started:     time.Now(),
	}
}

// Close stops the status broadcaster and ends every SSE stream.
func (s *Server) Close() {
	s.broadcaster.Stop()
}

// Handler exposes the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/stream", s.handleStream)
	mux.HandleFunc("/stream/foreground", s.handleForegroundStream)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/status/stream", s.handleStatusStream)
	mux.HandleFunc("/api/measurement", s.handleMeasurement)
	mux.HandleFunc("/api/recording/start", s.handleRecordingStart)
	mux.HandleFunc("/api/recording/stop", s.handleRecordingStop)
	mux.HandleFunc("/api/recording/status", s.handleRecordingStatus)
	mux.HandleFunc("/api/webrtc/offer", s.handleWebRTCOffer)

	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.surface.Status()
	writeJSON(w, HealthResponse{
		Status:        "ok",
		SessionID:     st.SessionID,
		Tick:          st.Tick,
		SSEClients:    s.broadcaster.ClientCount(),
		UptimeSeconds: time.Since(s.started).Seconds(),
	})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	streamMJPEG(r.Context(), w, s.cfg.MJPEGInterval, s.provider(s.overlay, s.surface.Version))
}

func (s *Server) handleForegroundStream(w http.ResponseWriter, r *http.Request) {
	streamMJPEG(r.Context(), w, s.cfg.MJPEGInterval, s.provider(s.foreground, s.surface.ForegroundVersion))
}

// provider serves cache keyed on version. The overlay changes every tick, the
// foreground only when a new frame was composited.
func (s *Server) provider(cache *frameCache, version func() uint64) jpegProvider {
	return func() ([]byte, uint64, bool) {
		version := version()
		data, ok := cache.get(version)
		return data, version, ok
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.surface.Status())
}

func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	id, eventCh := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(id)

	// Content negotiation based on Accept header
	accept := r.Header.Get("Accept")
	useProtobuf := strings.Contains(accept, "application/protobuf") ||
		strings.Contains(accept, "application/x-protobuf")

	var initial *SerializedEvent
	if s.surface.Version() > 0 {
		event, err := SerializeStatus(s.surface.Status())
		if err != nil {
			logger.Warn("SSE", "Initial status: %v", err)
		}
		initial = event
	}

	streamStatusEventsFromChannel(r.Context(), w, initial, eventCh, useProtobuf)
}

func (s *Server) handleMeasurement(w http.ResponseWriter, r *http.Request) {
	m, ok := s.surface.Measurement()
	if !ok {
		writeJSONWithStatus(w, map[string]any{"error": "no measurement available"}, http.StatusNotFound)
		return
	}
	writeJSON(w, m)
}

func (s *Server) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.recorder == nil {
		writeJSONWithStatus(w, map[string]any{"error": "recorder is not configured"}, http.StatusServiceUnavailable)
		return
	}

	if err := s.recorder.Start(); err != nil {
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusBadRequest)
		return
	}

	stats := s.recorder.GetStatus()
	writeJSON(w, RecordingResponse{
		Status: "recording",
		File:   stats.Filename,
		Stats:  stats,
		At:     float64(time.Now().Unix()),
	})
}

func (s *Server) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.recorder == nil {
		writeJSONWithStatus(w, map[string]any{"error": "recorder is not configured"}, http.StatusServiceUnavailable)
		return
	}

	if err := s.recorder.Stop(); err != nil {
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusBadRequest)
		return
	}

	stats := s.recorder.GetStatus()
	writeJSON(w, RecordingResponse{
		Status: "stopped",
		File:   stats.Filename,
		Stats:  stats,
		At:     float64(time.Now().Unix()),
	})
}

func (s *Server) handleRecordingStatus(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		writeJSONWithStatus(w, map[string]any{"error": "recorder is not configured"}, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, s.recorder.GetStatus())
}

func (s *Server) handleWebRTCOffer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.offers == nil {
		writeJSONWithStatus(w, map[string]any{"error": "WebRTC is not configured"}, http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxOfferBytes))
	if err != nil {
		writeJSONWithStatus(w, map[string]any{"error": "Invalid offer data"}, http.StatusBadRequest)
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		writeJSONWithStatus(w, map[string]any{"error": "Invalid offer data"}, http.StatusBadRequest)
		return
	}
	if payload["sdp"] == nil || payload["type"] == nil {
		writeJSONWithStatus(w, map[string]any{"error": "Invalid offer data"}, http.StatusBadRequest)
		return
	}

	answer, err := s.offers.HandleOffer(body)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, webrtc.ErrMaxClients) {
			status = http.StatusServiceUnavailable
		}
		logger.Warn("WebMonitor", "WebRTC offer failed: %v", err)
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(answer)
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":"%s"}`, err.Error())
	}
}
