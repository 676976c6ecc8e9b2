package httpapi

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSSEHub_Subscribe_Publish_Unsubscribe(t *testing.T) {
	hub := NewSSEHub()
	ch := hub.Subscribe()
	hub.PublishUpdate("plan")
	msg := <-ch
	if !strings.Contains(string(msg), `"type":"plan"`) {
		t.Errorf("PublishUpdate: got %s", msg)
	}
	if !strings.Contains(string(msg), "timestamp") {
		t.Errorf("notification missing timestamp: %s", msg)
	}
	hub.Unsubscribe(ch)
	// After unsubscribe, channel is closed
	_, ok := <-ch
	if ok {
		t.Error("expected channel closed after Unsubscribe")
	}
	if hub.Subscribers() != 0 {
		t.Errorf("subscribers: got %d", hub.Subscribers())
	}
}

func TestSSEHub_slowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewSSEHub()
	slow := hub.Subscribe()
	defer hub.Unsubscribe(slow)

	// Overfill the slow subscriber's buffer; publish must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 600; i++ {
			hub.PublishUpdate("sessions")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestSSEHub_Handler(t *testing.T) {
	hub := NewSSEHub()
	handler := hub.Handler()
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequestWithContext(ctx, http.MethodGet, "/events", nil)
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		handler(rec, req)
		close(done)
	}()
	// Wait for handler to send "connected" then stop (avoid reading rec.Body while handler writes - race).
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done
	// Read response body only after handler has finished writing.
	sc := bufio.NewScanner(rec.Body)
	var found bool
	for sc.Scan() {
		if strings.Contains(sc.Text(), "connected") {
			found = true
			break
		}
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !found {
		t.Error("expected response to contain \"connected\"")
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("content type: got %q", got)
	}
}

func TestSSEHub_keepaliveFrames(t *testing.T) {
	hub := NewSSEHub()
	hub.keepalive = 20 * time.Millisecond
	handler := hub.Handler()
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequestWithContext(ctx, http.MethodGet, "/events", nil)
	rec := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		handler(rec, req)
		close(done)
	}()
	time.Sleep(70 * time.Millisecond)
	cancel()
	<-done
	if !strings.Contains(rec.Body.String(), ": keepalive") {
		t.Error("expected keepalive comment frames")
	}
}
