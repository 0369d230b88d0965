package webmonitor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/colourskel/skeleton-server/internal/geometry"
	"github.com/colourskel/skeleton-server/internal/pipeline"
	"github.com/colourskel/skeleton-server/internal/recorder"
	"github.com/colourskel/skeleton-server/internal/webrtc"
	"github.com/colourskel/skeleton-server/pkg/types"
)

var _ Surface = (*pipeline.Surface)(nil)

type fakeSurface struct {
	mu          sync.Mutex
	status      pipeline.Status
	overlay     *image.RGBA
	foreground  *image.RGBA
	measurement *geometry.MeasurementResult
	fgReads     int
	version     atomic.Uint64
	fgVersion   atomic.Uint64
}

func (f *fakeSurface) Status() pipeline.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeSurface) Version() uint64 { return f.version.Load() }

func (f *fakeSurface) ForegroundVersion() uint64 { return f.fgVersion.Load() }

func (f *fakeSurface) Overlay() *image.RGBA {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.overlay
}

func (f *fakeSurface) Foreground() *image.RGBA {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fgReads++
	return f.foreground
}

func (f *fakeSurface) Measurement() (geometry.MeasurementResult, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.measurement == nil {
		return geometry.MeasurementResult{}, false
	}
	return *f.measurement, true
}

func (f *fakeSurface) publish(st pipeline.Status) {
	f.mu.Lock()
	f.status = st
	f.measurement = st.Measurement
	f.mu.Unlock()
	f.version.Add(1)
}

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func measuredStatus(tick uint64) pipeline.Status {
	return pipeline.Status{
		SessionID:  "session-1",
		Tick:       tick,
		Selected:   true,
		SelectedID: 5,
		Subjects: []pipeline.SubjectStatus{
			{Slot: 0, TrackingID: 5, State: "Tracked", Position: [3]float64{0, 0, 2}},
		},
		Measurement: &geometry.MeasurementResult{
			JointA:   types.ShoulderLeft,
			JointB:   types.ElbowLeft,
			Distance: 0.3,
			Label:    "Between: ShoulderLeft and ElbowLeft - 0.3000",
		},
	}
}

type fakeOffers struct {
	answer []byte
	err    error
	got    []byte
}

func (f *fakeOffers) HandleOffer(offer []byte) ([]byte, error) {
	f.got = offer
	return f.answer, f.err
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MJPEGInterval = 5 * time.Millisecond
	cfg.StatusInterval = 5 * time.Millisecond
	return cfg
}

func newTestServer(t *testing.T, surface Surface, offers OfferHandler, rec Recorder) *Server {
	t.Helper()
	s := NewServer(testConfig(), surface, offers, rec)
	t.Cleanup(s.Close)
	return s
}

func TestIndexAndNotFound(t *testing.T) {
	s := newTestServer(t, &fakeSurface{}, nil, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "negotiated: true, id: 0")

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusAndMeasurement(t *testing.T) {
	surface := &fakeSurface{}
	s := newTestServer(t, surface, nil, nil)
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/measurement", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "no measurement available")

	surface.publish(measuredStatus(3))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/measurement", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var m geometry.MeasurementResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, types.ShoulderLeft, m.JointA)
	assert.Equal(t, "Between: ShoulderLeft and ElbowLeft - 0.3000", m.Label)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var st pipeline.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, uint64(3), st.Tick)
	assert.Equal(t, 5, st.SelectedID)
	require.Len(t, st.Subjects, 1)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	var health HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "session-1", health.SessionID)
	assert.Equal(t, uint64(3), health.Tick)
}

func TestRecordingEndpoints(t *testing.T) {
	r := recorder.NewRecorder(filepath.Join(t.TempDir(), "rec"), nil)
	defer r.Close()
	h := newTestServer(t, &fakeSurface{}, nil, r).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/recording/start", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/recording/start", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var started RecordingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	assert.Equal(t, "recording", started.Status)
	assert.True(t, strings.HasPrefix(started.File, "measurements_"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/recording/start", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/recording/status", nil))
	var st recorder.RecordingStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.True(t, st.Recording)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/recording/stop", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stopped RecordingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stopped))
	assert.Equal(t, "stopped", stopped.Status)
	assert.Equal(t, started.File, stopped.File)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/recording/stop", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), recorder.ErrNotRecording.Error())
}

func TestUnconfiguredSurfaces(t *testing.T) {
	h := newTestServer(t, &fakeSurface{}, nil, nil).Handler()

	for _, path := range []string{"/api/recording/start", "/api/recording/stop", "/api/webrtc/offer"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{}`)))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/recording/status", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWebRTCOffer(t *testing.T) {
	offer := `{"type":"offer","sdp":"v=0"}`

	tests := []struct {
		name   string
		body   string
		offers *fakeOffers
		code   int
	}{
		{"invalid json", "nope", &fakeOffers{}, http.StatusBadRequest},
		{"missing sdp", `{"type":"offer"}`, &fakeOffers{}, http.StatusBadRequest},
		{"answered", offer, &fakeOffers{answer: []byte(`{"type":"answer","sdp":"v=0"}`)}, http.StatusOK},
		{"full", offer, &fakeOffers{err: fmt.Errorf("%w (1)", webrtc.ErrMaxClients)}, http.StatusServiceUnavailable},
		{"failed", offer, &fakeOffers{err: errors.New("ice failed")}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, &fakeSurface{}, tt.offers, nil).Handler()
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/webrtc/offer", strings.NewReader(tt.body)))
			assert.Equal(t, tt.code, rec.Code)
			if tt.code == http.StatusOK {
				assert.JSONEq(t, `{"type":"answer","sdp":"v=0"}`, rec.Body.String())
				assert.JSONEq(t, offer, string(tt.offers.got))
			}
		})
	}
}

// readSSEData returns the payload of the next data line
func readSSEData(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			return strings.TrimSpace(data)
		}
	}
}

func openStream(t *testing.T, url, accept string) (*http.Response, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp, cancel
}

func TestStatusStreamJSON(t *testing.T) {
	surface := &fakeSurface{}
	surface.publish(measuredStatus(1))
	ts := httptest.NewServer(newTestServer(t, surface, nil, nil).Handler())
	defer ts.Close()

	resp, cancel := openStream(t, ts.URL+"/api/status/stream", "")
	defer cancel()
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "application/json", resp.Header.Get("X-Content-Format"))

	r := bufio.NewReader(resp.Body)
	var st pipeline.Status
	require.NoError(t, json.Unmarshal([]byte(readSSEData(t, r)), &st))
	assert.Equal(t, uint64(1), st.Tick, "initial snapshot")

	// The broadcaster may repeat the snapshot before it samples the next tick
	surface.publish(measuredStatus(2))
	for i := 0; i < 3 && st.Tick != 2; i++ {
		require.NoError(t, json.Unmarshal([]byte(readSSEData(t, r)), &st))
	}
	assert.Equal(t, uint64(2), st.Tick)
	assert.Equal(t, 0.3, st.Measurement.Distance)
}

func TestStatusStreamProtobuf(t *testing.T) {
	surface := &fakeSurface{}
	surface.publish(measuredStatus(7))
	ts := httptest.NewServer(newTestServer(t, surface, nil, nil).Handler())
	defer ts.Close()

	resp, cancel := openStream(t, ts.URL+"/api/status/stream", "application/protobuf")
	defer cancel()
	defer resp.Body.Close()
	assert.Equal(t, "application/protobuf", resp.Header.Get("X-Content-Format"))

	raw, err := base64.StdEncoding.DecodeString(readSSEData(t, bufio.NewReader(resp.Body)))
	require.NoError(t, err)
	var st structpb.Struct
	require.NoError(t, proto.Unmarshal(raw, &st))

	fields := st.GetFields()
	assert.Equal(t, float64(7), fields["tick"].GetNumberValue())
	assert.Equal(t, "session-1", fields["session_id"].GetStringValue())
	m := fields["measurement"].GetStructValue().GetFields()
	assert.Equal(t, "ShoulderLeft", m["joint_a"].GetStringValue())
	assert.Len(t, fields["subjects"].GetListValue().GetValues(), 1)
}

func TestBroadcasterStopClosesClients(t *testing.T) {
	surface := &fakeSurface{}
	sb := NewStatusBroadcaster(surface, 5*time.Millisecond)
	sb.Start()

	id, ch := sb.Subscribe()
	assert.Equal(t, 1, sb.ClientCount())

	surface.publish(measuredStatus(4))
	select {
	case ev := <-ch:
		assert.Contains(t, string(ev.JSONData), `"tick":4`)
	case <-time.After(2 * time.Second):
		t.Fatal("no status event")
	}

	sb.Stop()
	sb.Stop()
	_, open := <-ch
	assert.False(t, open)
	sb.Unsubscribe(id)

	_, late := sb.Subscribe()
	_, open = <-late
	assert.False(t, open, "subscribers after Stop get a closed channel")
}

func nextPart(t *testing.T, mr *multipart.Reader) *multipart.Part {
	t.Helper()
	part, err := mr.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", part.Header.Get("Content-Type"))
	return part
}

// readJPEG decodes a part. The part ends at the next boundary, which is written
// with the next frame, so callers publish a new version before reading.
func readJPEG(t *testing.T, part *multipart.Part) image.Image {
	t.Helper()
	data, err := io.ReadAll(part)
	require.NoError(t, err)
	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func TestMJPEGStream(t *testing.T) {
	surface := &fakeSurface{}
	ts := httptest.NewServer(newTestServer(t, surface, nil, nil).Handler())
	defer ts.Close()

	resp, cancel := openStream(t, ts.URL+"/stream", "")
	defer cancel()
	defer resp.Body.Close()

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	require.NoError(t, err)
	assert.Equal(t, "multipart/x-mixed-replace", mediaType)
	mr := multipart.NewReader(resp.Body, params["boundary"])

	first := nextPart(t, mr)
	surface.mu.Lock()
	surface.overlay = solid(64, 48, color.RGBA{R: 255, A: 255})
	surface.mu.Unlock()
	surface.version.Add(1)
	blank := readJPEG(t, first)
	assert.Equal(t, image.Rect(0, 0, 640, 480), blank.Bounds(), "color bars before the first tick")

	second := nextPart(t, mr)
	surface.version.Add(1)
	frame := readJPEG(t, second)
	assert.Equal(t, image.Rect(0, 0, 64, 48), frame.Bounds())
	r, g, _, _ := frame.At(32, 24).RGBA()
	assert.Greater(t, r>>8, uint32(200))
	assert.Less(t, g>>8, uint32(60))
}

func TestForegroundStreamFollowsForegroundVersion(t *testing.T) {
	surface := &fakeSurface{}
	s := newTestServer(t, surface, nil, nil)
	provide := s.provider(s.foreground, surface.ForegroundVersion)

	_, _, ok := provide()
	assert.False(t, ok, "nothing composited yet")

	surface.mu.Lock()
	surface.foreground = solid(8, 8, color.RGBA{B: 255, A: 255})
	surface.mu.Unlock()
	surface.fgVersion.Add(1)

	a, v1, ok := provide()
	require.True(t, ok)
	surface.mu.Lock()
	reads := surface.fgReads
	surface.mu.Unlock()

	// Ticks without a new foreground frame reuse the encoded JPEG
	surface.publish(measuredStatus(1))
	surface.publish(measuredStatus(2))
	b, v2, ok := provide()
	require.True(t, ok)
	assert.Equal(t, v1, v2)
	assert.Same(t, &a[0], &b[0])
	surface.mu.Lock()
	assert.Equal(t, reads, surface.fgReads, "not re-encoded")
	surface.mu.Unlock()

	surface.fgVersion.Add(1)
	_, v3, _ := provide()
	assert.Greater(t, v3, v2)
}

func TestFrameCacheEncodesOncePerVersion(t *testing.T) {
	calls := 0
	img := solid(8, 8, color.RGBA{G: 255, A: 255})
	cache := newFrameCache(80, func() *image.RGBA { calls++; return img }, nil)

	a, ok := cache.get(1)
	require.True(t, ok)
	b, _ := cache.get(1)
	assert.Equal(t, 1, calls)
	assert.Same(t, &a[0], &b[0], "same encoded buffer")

	_, _ = cache.get(2)
	assert.Equal(t, 2, calls)

	empty := newFrameCache(80, func() *image.RGBA { return nil }, nil)
	_, ok = empty.get(1)
	assert.False(t, ok)
}

func TestCheckerboard(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 32, 16))
	img.SetRGBA(20, 4, color.RGBA{R: 255, A: 255})

	out := checkerboard(img)
	assert.Equal(t, color.RGBA{R: 200, G: 200, B: 200, A: 255}, out.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{R: 120, G: 120, B: 120, A: 255}, out.RGBAAt(17, 0))
	assert.Equal(t, color.RGBA{R: 255, A: 255}, out.RGBAAt(20, 4), "opaque foreground stays on top")
	assert.Equal(t, color.RGBA{}, img.RGBAAt(0, 0), "input untouched")
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{JPEGQuality: 500}.withDefaults()
	def := DefaultConfig()
	assert.Equal(t, def.MJPEGInterval, cfg.MJPEGInterval)
	assert.Equal(t, def.StatusInterval, cfg.StatusInterval)
	assert.Equal(t, def.JPEGQuality, cfg.JPEGQuality)
}
