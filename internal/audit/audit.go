// Package audit implements an async, buffered audit log writer: entries
// are enqueued by request handlers and flushed to each platform's own
// database by a background goroutine, grouped by platform pool. The
// groups are written one after another, so a slow platform database
// delays the groups written after it.
package audit

import (
	"context"
	"log/slog"
	"net"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is a single audit log entry queued for write. Pool identifies
// which platform database it belongs to; PlatformID is carried alongside
// purely for logging/error messages.
type Entry struct {
	PlatformID int64
	Pool       *pgxpool.Pool
	UserID     *int64
	Action     string
	Resource   string
	ResourceID string
	IPAddress  string
	UserAgent  string
}

// Writer is an async, buffered audit log writer. Entries are sent to an
// internal channel and flushed by a background goroutine.
type Writer struct {
	logger  *slog.Logger
	entries chan Entry
	wg      sync.WaitGroup
}

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
)

// NewWriter creates an audit Writer. Call Start to begin processing entries.
func NewWriter(logger *slog.Logger) *Writer {
	return &Writer{
		logger:  logger,
		entries: make(chan Entry, bufferSize),
	}
}

// Start begins the background goroutine that flushes audit entries to
// each platform's database and returns at once. The goroutine exits when
// ctx is cancelled or Close is called, after flushing pending entries.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Close waits for all pending entries to be flushed.
func (w *Writer) Close() {
	close(w.entries)
	w.wg.Wait()
}

// Log enqueues an audit entry for async writing. It never blocks the
// caller; if the buffer is full the entry is dropped and a warning logged.
func (w *Writer) Log(entry Entry) {
	select {
	case w.entries <- entry:
	default:
		w.logger.Warn("audit log buffer full, dropping entry",
			"action", entry.Action, "resource", entry.Resource, "platform_id", entry.PlatformID)
	}
}

// run is the background loop that drains the entries channel.
func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, flushBatch)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-w.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case entry, ok := <-w.entries:
					if !ok {
						flush()
						return
					}
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

// flush writes a batch of entries to the database, grouped by platform
// pool. Groups and the entries within them are written sequentially under
// one shared 10-second timeout, so a lagging platform database also delays
// the groups after it.
func (w *Writer) flush(entries []Entry) {
	byPlatform := make(map[int64][]Entry)
	for _, e := range entries {
		byPlatform[e.PlatformID] = append(byPlatform[e.PlatformID], e)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for platformID, platformEntries := range byPlatform {
		pool := platformEntries[0].Pool
		if pool == nil {
			w.logger.Warn("audit entry without a resolved platform pool, dropping", "platform_id", platformID, "count", len(platformEntries))
			continue
		}

		for _, e := range platformEntries {
			_, err := pool.Exec(ctx, `
				INSERT INTO audit_log (user_id, action, resource_type, resource_id, ip_address, user_agent)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, e.UserID, e.Action, e.Resource, e.ResourceID, nullIfEmpty(e.IPAddress), nullIfEmpty(e.UserAgent))
			if err != nil {
				w.logger.Error("writing audit log entry", "error", err,
					"action", e.Action, "resource", e.Resource, "platform_id", platformID)
			}
		}
	}
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ClientIP extracts the client IP address from a request's headers,
// preferring X-Forwarded-For and X-Real-IP over RemoteAddr.
func ClientIP(remoteAddr, xForwardedFor, xRealIP string) string {
	if xForwardedFor != "" {
		parts := strings.SplitN(xForwardedFor, ",", 2)
		if addr, err := netip.ParseAddr(strings.TrimSpace(parts[0])); err == nil {
			return addr.String()
		}
	}

	if xRealIP != "" {
		if addr, err := netip.ParseAddr(strings.TrimSpace(xRealIP)); err == nil {
			return addr.String()
		}
	}

	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.String()
	}
	return ""
}
