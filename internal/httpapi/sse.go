package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/plandash/plandash/internal/otel"
)

const (
	// defaultKeepalive is the comment-frame interval that keeps idle SSE
	// connections open through proxies.
	defaultKeepalive = 30 * time.Second

	// subscriberBuffer bounds each subscriber channel. A full buffer means
	// the client is not draining; further frames to it are dropped.
	subscriberBuffer = 256
)

// SSEHub fans out dashboard events to every connected browser tab.
type SSEHub struct {
	keepalive time.Duration

	mu   sync.RWMutex
	subs map[chan []byte]struct{}
}

func NewSSEHub() *SSEHub {
	return &SSEHub{
		keepalive: defaultKeepalive,
		subs:      make(map[chan []byte]struct{}),
	}
}

func (h *SSEHub) Subscribe() chan []byte {
	ch := make(chan []byte, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	otel.AddSSEConnection()
	return ch
}

func (h *SSEHub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; !ok {
		return
	}
	delete(h.subs, ch)
	close(ch)
	otel.RemoveSSEConnection()
}

// Subscribers returns the current subscriber count.
func (h *SSEHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// PublishUpdate broadcasts a typed change notification ("plan" or
// "sessions"); clients refetch the affected resources.
func (h *SSEHub) PublishUpdate(kind string) {
	h.PublishJSON(map[string]any{
		"type":      kind,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// PublishJSON marshals v once and offers it to every subscriber. A slow
// subscriber loses the frame rather than stalling the rest.
func (h *SSEHub) PublishJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	otel.RecordSSEEvent(context.Background())

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- b:
		default:
		}
	}
}

func (h *SSEHub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		h.serveStream(w, r, flusher)
	}
}

func (h *SSEHub) serveStream(w http.ResponseWriter, r *http.Request, flusher http.Flusher) {
	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")

	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	// First frame tells the client the stream is live before any real event.
	writeFrame(w, flusher, []byte(`{"type":"connected"}`))

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			_, _ = fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			writeFrame(w, flusher, msg)
		}
	}
}

func writeFrame(w http.ResponseWriter, flusher http.Flusher, data []byte) {
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}
