package apicontract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/colourskel/skeleton-server/internal/app"
	"github.com/colourskel/skeleton-server/internal/config"
	"github.com/colourskel/skeleton-server/internal/recorder"
	"github.com/colourskel/skeleton-server/internal/webmonitor"
	"github.com/colourskel/skeleton-server/internal/webrtc"
)

const (
	defaultRequestTimeout = 2 * time.Second
	localTicks            = 5
)

type contractClient struct {
	baseURL string
	client  *http.Client
	local   bool
}

// newContractClient targets CONTRACT_BASE_URL when set, otherwise an
// in-process server over the simulated pipeline.
func newContractClient(t *testing.T) *contractClient {
	t.Helper()
	client := &http.Client{Timeout: defaultRequestTimeout}

	baseURL := os.Getenv("CONTRACT_BASE_URL")
	if baseURL == "" {
		return &contractClient{baseURL: startLocal(t), client: client, local: true}
	}
	if !isReachable(client, baseURL+"/health") {
		t.Skipf("contract server not reachable at %s", baseURL)
	}
	return &contractClient{baseURL: baseURL, client: client}
}

func startLocal(t *testing.T) string {
	t.Helper()
	cfg := config.Default()
	cfg.Sensor.FPS = 0
	cfg.Recorder.Path = t.TempDir()
	cfg.HTTP.StatusInterval = 20 * time.Millisecond

	p, err := app.Build(cfg, nil)
	if err != nil {
		t.Fatalf("build pipeline: %v", err)
	}
	if err := p.Session.Start(); err != nil {
		t.Fatalf("start session: %v", err)
	}
	t.Cleanup(func() { _ = p.Session.Stop() })

	for i := 0; i < localTicks; i++ {
		if err := p.Sensor.Step(); err != nil {
			t.Fatalf("step: %v", err)
		}
	}

	rec := recorder.NewRecorder(cfg.Recorder.Path, nil)
	t.Cleanup(func() { _ = rec.Close() })
	rtc := webrtc.NewServer(nil, cfg.HTTP.MaxClients, nil)
	t.Cleanup(func() { _ = rtc.Close() })

	monitor := webmonitor.NewServer(webmonitor.FromHTTPConfig(cfg.HTTP), p.Session.Surface(), rtc, rec)
	t.Cleanup(monitor.Close)

	ts := httptest.NewServer(monitor.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func isReachable(client *http.Client, url string) bool {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 500
}

func (c *contractClient) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp := c.getResponse(t, path)
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	_ = resp.Body.Close()
	return resp, body
}

func (c *contractClient) getResponse(t *testing.T, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func (c *contractClient) postJSON(t *testing.T, path string, payload any) (*http.Response, []byte) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	_ = resp.Body.Close()
	return resp, body
}

// readSSEEvent returns the first event of an SSE stream
func readSSEEvent(url, accept string, timeout time.Duration) (string, http.Header, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", nil, fmt.Errorf("build request: %w", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	buf := make([]byte, 0, 4096)
	tmp := make([]byte, 256)
	for {
		n, readErr := resp.Body.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
			if idx := bytes.Index(buf, []byte("\n\n")); idx >= 0 {
				return string(buf[:idx]), resp.Header, nil
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return "", nil, fmt.Errorf("sse stream closed before event")
			}
			return "", nil, fmt.Errorf("read sse: %w", readErr)
		}
	}
}

func sseData(t *testing.T, event string) string {
	t.Helper()
	for _, line := range strings.Split(event, "\n") {
		if payload, ok := strings.CutPrefix(line, "data:"); ok {
			payload = strings.TrimSpace(payload)
			if payload == "" {
				t.Fatalf("empty sse data line")
			}
			return payload
		}
	}
	t.Fatalf("no data line in sse event: %q", event)
	return ""
}

func decodeJSONMap(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode json: %v\nbody=%s", err, string(body))
	}
	return payload
}

func requireString(t *testing.T, value any, field string) string {
	t.Helper()
	str, ok := value.(string)
	if !ok {
		t.Fatalf("expected %s to be string, got %T", field, value)
	}
	return str
}

func requireNumber(t *testing.T, value any, field string) float64 {
	t.Helper()
	num, ok := value.(float64)
	if !ok {
		t.Fatalf("expected %s to be number, got %T", field, value)
	}
	return num
}

func requireBool(t *testing.T, value any, field string) bool {
	t.Helper()
	b, ok := value.(bool)
	if !ok {
		t.Fatalf("expected %s to be bool, got %T", field, value)
	}
	return b
}

func requireMap(t *testing.T, value any, field string) map[string]any {
	t.Helper()
	m, ok := value.(map[string]any)
	if !ok {
		t.Fatalf("expected %s to be object, got %T", field, value)
	}
	return m
}

func requireSlice(t *testing.T, value any, field string) []any {
	t.Helper()
	s, ok := value.([]any)
	if !ok {
		t.Fatalf("expected %s to be array, got %T", field, value)
	}
	return s
}

func assertMeasurementPayload(t *testing.T, payload map[string]any, field string) {
	t.Helper()
	a := requireString(t, payload["joint_a"], field+".joint_a")
	b := requireString(t, payload["joint_b"], field+".joint_b")
	requireNumber(t, payload["distance"], field+".distance")
	label := requireString(t, payload["label"], field+".label")
	if !strings.HasPrefix(label, "Between: "+a+" and "+b+" - ") {
		t.Fatalf("%s.label = %q", field, label)
	}
}

func assertStatusPayload(t *testing.T, payload map[string]any) {
	t.Helper()
	requireString(t, payload["session_id"], "session_id")
	requireNumber(t, payload["tick"], "tick")
	requireNumber(t, payload["timestamp"], "timestamp")
	selected := requireBool(t, payload["selected"], "selected")
	requireNumber(t, payload["selected_id"], "selected_id")
	requireBool(t, payload["foreground"], "foreground")
	requireNumber(t, payload["latency_ms"], "latency_ms")
	requireString(t, payload["updated_at"], "updated_at")

	subjects := requireSlice(t, payload["subjects"], "subjects")
	for i, raw := range subjects {
		field := fmt.Sprintf("subjects[%d]", i)
		s := requireMap(t, raw, field)
		requireNumber(t, s["slot"], field+".slot")
		requireNumber(t, s["tracking_id"], field+".tracking_id")
		requireString(t, s["state"], field+".state")
		requireNumber(t, s["clipped_edges"], field+".clipped_edges")
		if pos := requireSlice(t, s["position"], field+".position"); len(pos) != 3 {
			t.Fatalf("%s.position has %d components", field, len(pos))
		}
	}

	if payload["measurement"] != nil {
		if !selected {
			t.Fatalf("measurement present without a selected subject")
		}
		assertMeasurementPayload(t, requireMap(t, payload["measurement"], "measurement"), "measurement")
	}
}
