package pipeline

import (
	"image"
	"sync"
	"time"

	"github.com/colourskel/skeleton-server/internal/geometry"
	"github.com/colourskel/skeleton-server/internal/logger"
	"github.com/colourskel/skeleton-server/pkg/types"
)

// SubjectStatus summarises one occupied skeleton slot
type SubjectStatus struct {
	Slot         int              `json:"slot"`
	TrackingID   int              `json:"tracking_id"`
	State        string           `json:"state"`
	Position     [3]float64       `json:"position"`
	ClippedEdges types.FrameEdges `json:"clipped_edges"`
}

// Status is the per-tick summary served to the display surfaces
type Status struct {
	SessionID   string                      `json:"session_id"`
	Tick        uint64                      `json:"tick"`
	Timestamp   int64                       `json:"timestamp"`
	Selected    bool                        `json:"selected"`
	SelectedID  int                         `json:"selected_id"`
	Subjects    []SubjectStatus             `json:"subjects"`
	Measurement *geometry.MeasurementResult `json:"measurement,omitempty"`
	Foreground  bool                        `json:"foreground"`
	LatencyMs   float64                     `json:"latency_ms"`
	UpdatedAt   time.Time                   `json:"updated_at"`
}

// Surface holds the latest outputs of a session for concurrent readers.
//
// Published images are never modified afterwards, so readers share them.
type Surface struct {
	mu          sync.RWMutex
	foreground  *image.RGBA
	overlay     *image.RGBA
	measurement *geometry.MeasurementResult
	status      Status
	version     uint64
	fgVersion   uint64

	subMu   sync.Mutex
	subs    map[int]chan Status
	nextSub int
}

// NewSurface creates an empty Surface
func NewSurface() *Surface {
	return &Surface{subs: make(map[int]chan Status)}
}

// Foreground returns the latest foreground image, or nil. Callers must not modify it.
func (s *Surface) Foreground() *image.RGBA {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.foreground
}

// Overlay returns the latest rendered overlay, or nil. Callers must not modify it.
func (s *Surface) Overlay() *image.RGBA {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.overlay
}

// Measurement returns the latest measurement of the selected subject
func (s *Surface) Measurement() (geometry.MeasurementResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.measurement == nil {
		return geometry.MeasurementResult{}, false
	}
	return *s.measurement, true
}

// Status returns the latest status
func (s *Surface) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.status
	st.Subjects = append([]SubjectStatus(nil), s.status.Subjects...)
	return st
}

// Version increases on every publish. MJPEG writers use it to skip repeats.
func (s *Surface) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// ForegroundVersion increases only when a new foreground frame is published
func (s *Surface) ForegroundVersion() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fgVersion
}

// Subscribe registers a listener for published statuses.
// Slow listeners miss statuses rather than blocking the tick.
func (s *Surface) Subscribe() (int, <-chan Status) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan Status, 4)
	s.subs[id] = ch

	logger.Debug("Surface", "Listener #%d subscribed (total: %d)", id, len(s.subs))
	return id, ch
}

// Unsubscribe removes a listener and closes its channel
func (s *Surface) Unsubscribe(id int) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	if ch, ok := s.subs[id]; ok {
		close(ch)
		delete(s.subs, id)
		logger.Debug("Surface", "Listener #%d unsubscribed (remaining: %d)", id, len(s.subs))
	}
}

// publish stores the outputs of one tick. fg is copied and nil keeps the
// previous foreground; ov is taken over.
func (s *Surface) publish(fg, ov *image.RGBA, m *geometry.MeasurementResult, st Status) {
	var fgCopy *image.RGBA
	if fg != nil {
		fgCopy = image.NewRGBA(fg.Rect)
		copy(fgCopy.Pix, fg.Pix)
	}
	var mCopy *geometry.MeasurementResult
	if m != nil {
		v := *m
		mCopy = &v
		st.Measurement = mCopy
	}

	s.mu.Lock()
	if fgCopy != nil {
		s.foreground = fgCopy
		s.fgVersion++
	}
	if ov != nil {
		s.overlay = ov
	}
	s.measurement = mCopy
	s.status = st
	s.version++
	s.mu.Unlock()

	s.subMu.Lock()
	for _, ch := range s.subs {
		select {
		case ch <- st:
		default:
			// Listener too slow, skip this status
		}
	}
	s.subMu.Unlock()
}

// closeSubscribers closes every listener channel
func (s *Surface) closeSubscribers() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
}
