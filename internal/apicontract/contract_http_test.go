package apicontract

import (
	"net/http"
	"strings"
	"testing"
)

func TestContractIndex(t *testing.T) {
	client := newContractClient(t)
	resp, body := client.get(t, "/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET / status = %d", resp.StatusCode)
	}
	if !strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		t.Fatalf("GET / content-type = %q", resp.Header.Get("Content-Type"))
	}
	html := string(body)
	mustContain := []string{
		"<title>Skeleton Measurement Monitor</title>",
		`src="/stream"`,
		`src="/stream/foreground"`,
		"/api/status/stream",
		"/api/webrtc/offer",
		"/api/measurement",
	}
	for _, needle := range mustContain {
		if !strings.Contains(html, needle) {
			t.Fatalf("GET / missing %q", needle)
		}
	}
}

func TestContractStatus(t *testing.T) {
	client := newContractClient(t)
	resp, body := client.get(t, "/api/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/status status = %d", resp.StatusCode)
	}
	payload := decodeJSONMap(t, body)
	assertStatusPayload(t, payload)

	if client.local {
		if tick := requireNumber(t, payload["tick"], "tick"); tick != localTicks {
			t.Fatalf("tick = %v, want %d", tick, localTicks)
		}
		if payload["measurement"] == nil {
			t.Fatalf("built-in scenario should be measured from the first tick")
		}
	}
}

func TestContractHealth(t *testing.T) {
	client := newContractClient(t)
	resp, body := client.get(t, "/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /health status = %d", resp.StatusCode)
	}
	payload := decodeJSONMap(t, body)
	if requireString(t, payload["status"], "status") != "ok" {
		t.Fatalf("unexpected health status: %v", payload["status"])
	}
	requireString(t, payload["session_id"], "session_id")
	requireNumber(t, payload["tick"], "tick")
	requireNumber(t, payload["sse_clients"], "sse_clients")
	requireNumber(t, payload["uptime_seconds"], "uptime_seconds")
}

func TestContractMeasurement(t *testing.T) {
	client := newContractClient(t)
	resp, body := client.get(t, "/api/measurement")
	switch resp.StatusCode {
	case http.StatusOK:
		assertMeasurementPayload(t, decodeJSONMap(t, body), "measurement")
	case http.StatusNotFound:
		if client.local {
			t.Fatalf("local server has no measurement after %d ticks", localTicks)
		}
		requireString(t, decodeJSONMap(t, body)["error"], "error")
	default:
		t.Fatalf("GET /api/measurement status = %d", resp.StatusCode)
	}
}

func TestContractWebRTCOfferInvalid(t *testing.T) {
	client := newContractClient(t)
	resp, body := client.postJSON(t, "/api/webrtc/offer", map[string]any{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("POST /api/webrtc/offer status = %d", resp.StatusCode)
	}
	payload := decodeJSONMap(t, body)
	if requireString(t, payload["error"], "error") != "Invalid offer data" {
		t.Fatalf("unexpected error: %v", payload["error"])
	}
}
