package webmonitor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"sync"
	"time"

	"golang.org/x/image/draw"

	"github.com/colourskel/skeleton-server/internal/logger"
)

// sseKeepalive is how long an idle SSE stream waits before a keepalive comment
const sseKeepalive = 30 * time.Second

func blankJPEG(width, height int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	// Color bars: White, Yellow, Cyan, Green, Magenta, Red, Blue, Black
	colors := []color.RGBA{
		{R: 255, G: 255, B: 255, A: 255}, // White
		{R: 255, G: 255, B: 0, A: 255},   // Yellow
		{R: 0, G: 255, B: 255, A: 255},   // Cyan
		{R: 0, G: 255, B: 0, A: 255},     // Green
		{R: 255, G: 0, B: 255, A: 255},   // Magenta
		{R: 255, G: 0, B: 0, A: 255},     // Red
		{R: 0, G: 0, B: 255, A: 255},     // Blue
		{R: 0, G: 0, B: 0, A: 255},       // Black
	}

	barWidth := max(width/len(colors), 1)
	for x := range width {
		barIndex := min(x/barWidth, len(colors)-1)
		draw.Draw(img, image.Rect(x, 0, x+1, height), image.NewUniform(colors[barIndex]), image.Point{}, draw.Src)
	}

	return encodeJPEG(img, 75)
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// checkerboard paints img onto a gray checkerboard so transparent pixels show
func checkerboard(img *image.RGBA) *image.RGBA {
	const cell = 16
	out := image.NewRGBA(img.Rect)
	light := image.NewUniform(color.RGBA{R: 200, G: 200, B: 200, A: 255})
	dark := image.NewUniform(color.RGBA{R: 120, G: 120, B: 120, A: 255})
	b := img.Rect
	for y := b.Min.Y; y < b.Max.Y; y += cell {
		for x := b.Min.X; x < b.Max.X; x += cell {
			src := light
			if ((x-b.Min.X)/cell+(y-b.Min.Y)/cell)%2 == 1 {
				src = dark
			}
			draw.Draw(out, image.Rect(x, y, x+cell, y+cell).Intersect(b), src, image.Point{}, draw.Src)
		}
	}
	draw.Draw(out, b, img, b.Min, draw.Over)
	return out
}

// frameCache encodes the image of a surface version once for every MJPEG client
type frameCache struct {
	mu      sync.Mutex
	version uint64
	data    []byte
	quality int
	image   func() *image.RGBA
	prepare func(*image.RGBA) *image.RGBA
}

func newFrameCache(quality int, img func() *image.RGBA, prepare func(*image.RGBA) *image.RGBA) *frameCache {
	return &frameCache{quality: quality, image: img, prepare: prepare}
}

// get returns the JPEG of version, false when no image has been published
func (c *frameCache) get(version uint64) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.data != nil && c.version == version {
		return c.data, true
	}
	img := c.image()
	if img == nil {
		return nil, false
	}
	if c.prepare != nil {
		img = c.prepare(img)
	}
	data, err := encodeJPEG(img, c.quality)
	if err != nil {
		logger.Warn("MJPEG", "JPEG encode failed: %v", err)
		return nil, false
	}
	c.version = version
	c.data = data
	return data, true
}

type jpegProvider func() (data []byte, version uint64, ok bool)

// streamMJPEG writes a multipart JPEG stream until the client goes away.
// A frame is written only when the provider reports a new version.
func streamMJPEG(ctx context.Context, w http.ResponseWriter, interval time.Duration, provider jpegProvider) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	blank, err := blankJPEG(640, 480)
	if err != nil {
		http.Error(w, "Failed to render frame", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastVersion uint64
	first := true
	for {
		jpegData, version, ok := provider()
		switch {
		case !ok && first:
			jpegData = blank
		case !ok || version == lastVersion:
			jpegData = nil
		}

		if jpegData != nil {
			first = false
			lastVersion = version
			if err := writeMJPEGFrame(w, jpegData); err != nil {
				// Client disconnected (e.g., switched to WebRTC)
				logger.Debug("MJPEG", "Client disconnected during write: %v", err)
				return
			}
			flusher.Flush()
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func writeMJPEGFrame(w http.ResponseWriter, jpegData []byte) error {
	if _, err := w.Write([]byte("--frame\r\nContent-Type: image/jpeg\r\n\r\n")); err != nil {
		return err
	}
	if _, err := w.Write(jpegData); err != nil {
		return err
	}
	_, err := w.Write([]byte("\r\n"))
	return err
}

func writeSSE(w http.ResponseWriter, event *SerializedEvent, useProtobuf bool) error {
	data := event.JSONData
	if useProtobuf {
		data = event.ProtobufData
	}
	_, err := fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// streamStatusEventsFromChannel streams pre-serialized status events to SSE client.
// Data is already serialized in both formats by the broadcaster. initial, when
// set, is written before the first broadcast event.
func streamStatusEventsFromChannel(ctx context.Context, w http.ResponseWriter, initial *SerializedEvent, eventCh <-chan *SerializedEvent, useProtobuf bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Add custom header to indicate format
	if useProtobuf {
		w.Header().Set("X-Content-Format", "application/protobuf")
	} else {
		w.Header().Set("X-Content-Format", "application/json")
	}
	w.WriteHeader(http.StatusOK)
	if initial != nil {
		if err := writeSSE(w, initial, useProtobuf); err != nil {
			return
		}
	}
	flusher.Flush()

	keepalive := time.NewTicker(sseKeepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-eventCh:
			if !ok {
				// Channel closed, client should disconnect
				return
			}

			if err := writeSSE(w, event, useProtobuf); err != nil {
				logger.Debug("SSE", "Client disconnected during status event write: %v", err)
				return
			}
			flusher.Flush()

		case <-keepalive.C:
			// Send keepalive comment to prevent timeout
			if _, err := fmt.Fprintf(w, ": keepalive\n\n"); err != nil {
				logger.Debug("SSE", "Client disconnected during keepalive: %v", err)
				return
			}
			flusher.Flush()
		}
	}
}
