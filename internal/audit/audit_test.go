package audit

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientIPXForwardedFor(t *testing.T) {
	ip := ClientIP("192.0.2.1:12345", "203.0.113.50, 70.41.3.18", "")
	if ip != "203.0.113.50" {
		t.Errorf("ClientIP = %q, want 203.0.113.50", ip)
	}
}

func TestClientIPXRealIP(t *testing.T) {
	ip := ClientIP("192.0.2.1:12345", "", "198.51.100.23")
	if ip != "198.51.100.23" {
		t.Errorf("ClientIP = %q, want 198.51.100.23", ip)
	}
}

func TestClientIPRemoteAddr(t *testing.T) {
	ip := ClientIP("192.0.2.1:12345", "", "")
	if ip != "192.0.2.1" {
		t.Errorf("ClientIP = %q, want 192.0.2.1", ip)
	}
}

func TestClientIPPrecedence(t *testing.T) {
	ip := ClientIP("192.0.2.1:12345", "203.0.113.50", "198.51.100.23")
	if ip != "203.0.113.50" {
		t.Errorf("ClientIP = %q, want X-Forwarded-For to take precedence", ip)
	}
}

func TestClientIPInvalidXFFFallsBackToRemoteAddr(t *testing.T) {
	ip := ClientIP("192.0.2.1:12345", "not-an-ip", "")
	if ip != "192.0.2.1" {
		t.Errorf("ClientIP = %q, want fallback to RemoteAddr", ip)
	}
}

func TestLogDropsWhenFull(t *testing.T) {
	w := NewWriter(slog.Default())
	// Don't start the background goroutine — nothing drains the channel.

	for i := 0; i < bufferSize; i++ {
		w.Log(Entry{Action: "test", Resource: "test"})
	}

	w.Log(Entry{Action: "dropped", Resource: "dropped"}) // must not block

	if len(w.entries) != bufferSize {
		t.Errorf("buffer size = %d, want %d", len(w.entries), bufferSize)
	}
}

func TestLogEnqueuesEntryVerbatim(t *testing.T) {
	w := NewWriter(slog.Default())

	w.Log(Entry{
		PlatformID: 7,
		Action:     "create",
		Resource:   "app",
		ResourceID: "42",
		IPAddress:  "198.51.100.23",
		UserAgent:  "test-agent/1.0",
	})

	entry := <-w.entries
	if entry.Action != "create" || entry.Resource != "app" || entry.PlatformID != 7 {
		t.Errorf("entry = %+v, unexpected fields", entry)
	}
	if entry.IPAddress != "198.51.100.23" {
		t.Errorf("IPAddress = %q, want 198.51.100.23", entry.IPAddress)
	}
	if entry.UserAgent != "test-agent/1.0" {
		t.Errorf("UserAgent = %q, want test-agent/1.0", entry.UserAgent)
	}
}

func TestStartAndCloseDrainsPendingEntriesWithoutAPool(t *testing.T) {
	w := NewWriter(slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w.Start(ctx)
	// No Pool set, so flush logs a warning and drops the entry rather than
	// panicking on a nil pool.
	w.Log(Entry{PlatformID: 1, Action: "create", Resource: "app"})

	done := make(chan struct{})
	go func() {
		w.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return promptly")
	}
}

func TestHandlerLogFromRequestNoopWithoutPlatformInContext(t *testing.T) {
	w := NewWriter(slog.Default())
	h := NewHandler(w)

	r := httptest.NewRequest("POST", "/platform/1/apps", nil)
	uid := int64(9)
	h.LogFromRequest(r, &uid, "create", "app", "42")

	select {
	case <-w.entries:
		t.Fatal("expected no entry to be enqueued without a resolved platform")
	default:
	}
}
