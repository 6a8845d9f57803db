package journal_test

import (
	"context"
	"testing"
	"time"

	"orgpool/internal/db"
	"orgpool/internal/journal"
	"orgpool/internal/migrate"
)

func newWriter(t *testing.T) journal.Writer {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return journal.Writer{
		DB:  conn,
		Now: func() time.Time { return time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC) },
	}
}

func TestAppendAndTail(t *testing.T) {
	w := newWriter(t)
	ctx := context.Background()
	if err := w.Append(ctx, "op-1", "pool.fetch", "core", "00D1", "ci-bot", journal.Payload{"count": 2}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := w.Append(ctx, "op-2", "pool.delete", "core", "00D2", "ci-bot", nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	entries, err := w.Tail(ctx, 10, journal.Filters{})
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	// Newest first.
	if entries[0].Type != "pool.delete" || entries[1].Type != "pool.fetch" {
		t.Fatalf("unexpected order: %+v", entries)
	}
	if entries[1].Payload != `{"count":2}` {
		t.Fatalf("unexpected payload: %s", entries[1].Payload)
	}
	if entries[0].TS != "2026-08-25T00:00:00Z" {
		t.Fatalf("unexpected timestamp: %s", entries[0].TS)
	}
}

func TestTailFilters(t *testing.T) {
	w := newWriter(t)
	ctx := context.Background()
	_ = w.Append(ctx, "", "pool.fetch", "core", "", "ci-bot", nil)
	_ = w.Append(ctx, "", "pool.fetch", "perf", "", "ci-bot", nil)
	_ = w.Append(ctx, "", "pool.fill", "core", "", "ci-bot", nil)

	entries, err := w.Tail(ctx, 10, journal.Filters{Type: "pool.fetch", Tag: "core"})
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	if len(entries) != 1 || entries[0].Tag != "core" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if entries[0].OpID == "" {
		t.Fatalf("expected generated op id")
	}
}
