package notify

import (
	"context"
	"log/slog"
	"os"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNotifierDisabledWithoutToken(t *testing.T) {
	n := New("", "", testLogger())
	if n.IsEnabled() {
		t.Fatal("notifier should be disabled without a bot token")
	}
}

func TestNotifierDisabledWithoutChannel(t *testing.T) {
	n := New("xoxb-fake", "", testLogger())
	if n.IsEnabled() {
		t.Fatal("notifier should be disabled without a channel")
	}
}

func TestPostAlertNoopWhenDisabled(t *testing.T) {
	n := New("", "", testLogger())
	err := n.PostAlert(context.Background(), AlertEvent{AlertID: 1, Title: "db down", Severity: "critical"})
	if err != nil {
		t.Fatalf("PostAlert on disabled notifier should not error: %v", err)
	}
}

func TestPostScaleEventNoopWhenDisabled(t *testing.T) {
	n := New("", "", testLogger())
	err := n.PostScaleEvent(context.Background(), ScaleEvent{ResourceID: "pool-1", Direction: "up"})
	if err != nil {
		t.Fatalf("PostScaleEvent on disabled notifier should not error: %v", err)
	}
}

func TestPostBackupEventNoopWhenDisabled(t *testing.T) {
	n := New("", "", testLogger())
	err := n.PostBackupEvent(context.Background(), BackupEvent{BackupID: 1, Type: "full", Status: "failed"})
	if err != nil {
		t.Fatalf("PostBackupEvent on disabled notifier should not error: %v", err)
	}
}

func TestSeverityEmoji(t *testing.T) {
	tests := map[string]string{
		"critical": "\U0001F534",
		"warning":  "\U0001F7E1",
		"info":     "\U0001F535",
		"unknown":  "⚪",
	}
	for severity, want := range tests {
		if got := SeverityEmoji(severity); got != want {
			t.Errorf("SeverityEmoji(%q) = %q, want %q", severity, got, want)
		}
	}
}
