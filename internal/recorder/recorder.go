// Package recorder writes per-tick measurements of the selected subject to JSON-lines files.
package recorder

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/colourskel/skeleton-server/internal/logger"
	"github.com/colourskel/skeleton-server/internal/metrics"
	"github.com/colourskel/skeleton-server/internal/pipeline"
	"github.com/colourskel/skeleton-server/pkg/types"
)

var (
	// ErrNotRecording is returned by Stop when no recording is active
	ErrNotRecording = errors.New("recorder: not recording")
	// ErrAlreadyRecording is returned by Start while a recording is active
	ErrAlreadyRecording = errors.New("recorder: already recording")
)

// Line is one recorded measurement
type Line struct {
	Session    string          `json:"session"`
	Tick       uint64          `json:"tick"`
	Timestamp  int64           `json:"timestamp"`
	TrackingID int             `json:"tracking_id"`
	JointA     types.JointType `json:"joint_a"`
	JointB     types.JointType `json:"joint_b"`
	Distance   float64         `json:"distance"`
	Label      string          `json:"label"`
	Time       time.Time       `json:"time"`
}

// Recorder records measurement lines to file
type Recorder struct {
	mu           sync.RWMutex
	file         *os.File
	buf          *bufio.Writer
	filename     string
	basePath     string
	recording    bool
	lineCount    uint64
	bytesWritten uint64
	dropped      uint64
	startTime    time.Time
	lineChan     chan Line
	stopChan     chan struct{}
	wg           sync.WaitGroup

	metrics *metrics.Metrics
}

// NewRecorder creates a recorder writing into basePath. m may be nil.
func NewRecorder(basePath string, m *metrics.Metrics) *Recorder {
	return &Recorder{
		basePath: basePath,
		metrics:  m,
	}
}

// Start starts recording to a new file
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording {
		return ErrAlreadyRecording
	}

	if err := os.MkdirAll(r.basePath, 0755); err != nil {
		return fmt.Errorf("failed to create recordings directory: %w", err)
	}

	// Generate filename with timestamp
	filename := fmt.Sprintf("measurements_%s.jsonl", time.Now().Format("20060102_150405.000"))
	file, err := os.Create(filepath.Join(r.basePath, filename))
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	r.file = file
	r.buf = bufio.NewWriter(file)
	r.filename = filename
	r.recording = true
	r.lineCount = 0
	r.bytesWritten = 0
	r.dropped = 0
	r.startTime = time.Now()
	r.lineChan = make(chan Line, 60) // 2 seconds at 30 fps
	r.stopChan = make(chan struct{})

	r.wg.Add(1)
	go r.writeLines(r.lineChan, r.stopChan)

	if r.metrics != nil {
		r.metrics.RecordingActive.Store(1)
	}
	logger.Info("Recorder", "Recording to %s", filename)
	return nil
}

// Stop stops recording and closes the file
func (r *Recorder) Stop() error {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return ErrNotRecording
	}
	r.recording = false
	close(r.stopChan)
	r.mu.Unlock()

	// Wait for write goroutine to drain
	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.RecordingActive.Store(0)
	}

	if r.file == nil {
		return nil
	}
	defer func() { r.file, r.buf = nil, nil }()

	if err := r.buf.Flush(); err != nil {
		r.file.Close()
		return fmt.Errorf("failed to flush file: %w", err)
	}
	if err := r.file.Sync(); err != nil {
		r.file.Close()
		return fmt.Errorf("failed to sync file: %w", err)
	}
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	logger.Info("Recorder", "Stopped %s: %d lines, %d dropped", r.filename, r.lineCount, r.dropped)
	return nil
}

// SendStatus queues the measurement of a status (non-blocking).
// Statuses without a measurement are ignored.
func (r *Recorder) SendStatus(st pipeline.Status) bool {
	if st.Measurement == nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording {
		return false
	}

	line := Line{
		Session:    st.SessionID,
		Tick:       st.Tick,
		Timestamp:  st.Timestamp,
		TrackingID: st.SelectedID,
		JointA:     st.Measurement.JointA,
		JointB:     st.Measurement.JointB,
		Distance:   st.Measurement.Distance,
		Label:      st.Measurement.Label,
		Time:       st.UpdatedAt,
	}

	// Non-blocking send
	select {
	case r.lineChan <- line:
		return true
	default:
		// Channel full, drop line
		r.dropped++
		return false
	}
}

// writeLines writes queued lines until stop is closed, then drains the queue
func (r *Recorder) writeLines(lines <-chan Line, stop <-chan struct{}) {
	defer r.wg.Done()

	for {
		select {
		case line := <-lines:
			r.writeLine(line)
		case <-stop:
			for {
				select {
				case line := <-lines:
					r.writeLine(line)
				default:
					return
				}
			}
		}
	}
}

// writeLine writes a single line to file
func (r *Recorder) writeLine(line Line) {
	data, err := json.Marshal(line)
	if err != nil {
		logger.Warn("Recorder", "Failed to encode line: %v", err)
		return
	}
	data = append(data, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.buf == nil {
		return
	}

	n, err := r.buf.Write(data)
	if err != nil {
		logger.Warn("Recorder", "Write failed: %v", err)
		return
	}

	r.bytesWritten += uint64(n)
	r.lineCount++
	if r.metrics != nil {
		r.metrics.RecordedLines.Add(1)
	}
}

// IsRecording returns true if currently recording
func (r *Recorder) IsRecording() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.recording
}

// GetStatus returns the current recording status
func (r *Recorder) GetStatus() RecordingStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var duration time.Duration
	if r.recording {
		duration = time.Since(r.startTime)
	}

	return RecordingStatus{
		Recording:    r.recording,
		Filename:     r.filename,
		LineCount:    r.lineCount,
		BytesWritten: r.bytesWritten,
		Dropped:      r.dropped,
		DurationMs:   duration.Milliseconds(),
		StartTime:    r.startTime,
	}
}

// Close stops an active recording
func (r *Recorder) Close() error {
	if err := r.Stop(); err != nil && !errors.Is(err, ErrNotRecording) {
		return err
	}
	return nil
}

// RecordingStatus holds the current recording status
type RecordingStatus struct {
	Recording    bool      `json:"recording"`
	Filename     string    `json:"filename"`
	LineCount    uint64    `json:"line_count"`
	BytesWritten uint64    `json:"bytes_written"`
	Dropped      uint64    `json:"dropped"`
	DurationMs   int64     `json:"duration_ms"`
	StartTime    time.Time `json:"start_time"`
}
