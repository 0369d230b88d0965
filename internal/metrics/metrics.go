package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	// Tick counters
	Ticks          atomic.Uint64
	DepthFrames    atomic.Uint64
	ColorFrames    atomic.Uint64
	SkeletonFrames atomic.Uint64

	// Compositor
	CompositedFrames  atomic.Uint64
	BufferReallocs    atomic.Uint64
	CompositorSkipped atomic.Uint64 // Ticks cut short by an engine fault

	// Subject selection
	SubjectSwitches   atomic.Uint64
	SelectedSubject   atomic.Int64  // Tracking id, -1 when none
	LastDistanceMicro atomic.Uint64 // Last measured distance in micrometres

	// Latency tracking
	TickLatencyUs atomic.Uint64 // Last tick processing time in microseconds

	// Outer surfaces
	MQTTPublished   atomic.Uint64
	MQTTErrors      atomic.Uint64
	ActiveClients   atomic.Uint64
	TotalClients    atomic.Uint64
	WebRTCSent      atomic.Uint64
	WebRTCDropped   atomic.Uint64
	RecordingActive atomic.Uint64 // 0 = inactive, 1 = active
	RecordedLines   atomic.Uint64

	streamFaults *prometheus.CounterVec

	// Prometheus collectors
	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.streamFaults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skeleton_stream_faults_total",
			Help: "Transient sensor faults swallowed per stream",
		},
		[]string{"stream"},
	)
	m.SelectedSubject.Store(-1)

	m.registerPrometheusMetrics()

	return m
}

func (m *Metrics) counter(name, help string, v *atomic.Uint64) {
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{Name: name, Help: help},
		func() float64 { return float64(v.Load()) },
	))
}

func (m *Metrics) gauge(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: name, Help: help},
		fn,
	))
}

// registerPrometheusMetrics registers all metrics with Prometheus
func (m *Metrics) registerPrometheusMetrics() {
	m.registry.MustRegister(m.streamFaults)

	// Tick metrics
	m.counter("skeleton_ticks_total", "Total frame-ready ticks processed", &m.Ticks)
	m.counter("skeleton_depth_frames_total", "Total depth frames extracted", &m.DepthFrames)
	m.counter("skeleton_color_frames_total", "Total color frames extracted", &m.ColorFrames)
	m.counter("skeleton_skeleton_frames_total", "Total skeleton frames extracted", &m.SkeletonFrames)

	// Compositor metrics
	m.counter("skeleton_composited_frames_total", "Total foreground frames copied from the engine", &m.CompositedFrames)
	m.counter("skeleton_buffer_reallocations_total", "Foreground buffer reallocations", &m.BufferReallocs)
	m.counter("skeleton_compositor_skipped_total", "Ticks where the engine rejected input", &m.CompositorSkipped)

	// Selection metrics
	m.counter("skeleton_subject_switches_total", "Selected subject changes", &m.SubjectSwitches)
	m.gauge("skeleton_selected_tracking_id", "Tracking id of the selected subject (-1 = none)",
		func() float64 { return float64(m.SelectedSubject.Load()) })
	m.gauge("skeleton_last_distance_meters", "Last measured joint distance",
		func() float64 { return float64(m.LastDistanceMicro.Load()) / 1e6 })

	// Latency metrics
	m.gauge("skeleton_tick_latency_seconds", "Processing time of the last tick",
		func() float64 { return float64(m.TickLatencyUs.Load()) / 1e6 })

	// Surface metrics
	m.counter("skeleton_mqtt_published_total", "Measurements published over MQTT", &m.MQTTPublished)
	m.counter("skeleton_mqtt_errors_total", "MQTT publish failures", &m.MQTTErrors)
	m.gauge("skeleton_active_clients", "Number of active WebRTC clients",
		func() float64 { return float64(m.ActiveClients.Load()) })
	m.counter("skeleton_total_clients", "Total WebRTC clients connected", &m.TotalClients)
	m.counter("skeleton_webrtc_messages_sent_total", "Status messages sent on data channels", &m.WebRTCSent)
	m.counter("skeleton_webrtc_messages_dropped_total", "Status messages dropped for slow clients", &m.WebRTCDropped)
	m.gauge("skeleton_recording_active", "Recording active (0=inactive, 1=active)",
		func() float64 { return float64(m.RecordingActive.Load()) })
	m.counter("skeleton_recorded_lines_total", "Measurement lines written to the recording", &m.RecordedLines)
}

// StreamFault counts one swallowed fault on the named stream
func (m *Metrics) StreamFault(stream string) {
	m.streamFaults.WithLabelValues(stream).Inc()
}

// UpdateTickLatency stores the latest tick processing time
func (m *Metrics) UpdateTickLatency(d time.Duration) {
	m.TickLatencyUs.Store(uint64(d.Microseconds()))
}

// UpdateSelection records the selected subject
func (m *Metrics) UpdateSelection(id int, selected bool) {
	if !selected {
		m.SelectedSubject.Store(-1)
		return
	}
	m.SelectedSubject.Store(int64(id))
}

// UpdateDistance records the latest measured distance in metres
func (m *Metrics) UpdateDistance(d float64) {
	if d < 0 {
		d = 0
	}
	m.LastDistanceMicro.Store(uint64(d * 1e6))
}

// Registry exposes the private registry for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer starts the metrics HTTP server
func (m *Metrics) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}
