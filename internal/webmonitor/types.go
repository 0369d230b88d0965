package webmonitor

import "github.com/colourskel/skeleton-server/internal/recorder"

// HealthResponse is the payload for /health.
type HealthResponse struct {
	Status        string  `json:"status"`
	SessionID     string  `json:"session_id"`
	Tick          uint64  `json:"tick"`
	SSEClients    int     `json:"sse_clients"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// RecordingResponse is the payload for the recording start and stop endpoints.
type RecordingResponse struct {
	Status string                   `json:"status"`
	File   string                   `json:"file"`
	Stats  recorder.RecordingStatus `json:"stats"`
	At     float64                  `json:"at"`
}
