package storage

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"chatrelay/internal/session"
)

// sink is what both backends provide to the write-behind persister.
type sink interface {
	session.Sink
	Close() error
}

var _ sink = (*Store)(nil)
var _ sink = (*BadgerStore)(nil)

func sampleMessage(id string, offset int) session.Message {
	return session.Message{
		ID:        id,
		Sender:    "alice",
		SenderID:  "conn-a",
		Room:      "general",
		Text:      "hello " + id,
		Timestamp: time.Date(2024, 3, 1, 9, 0, offset, 0, time.UTC),
		ReadBy:    []string{"conn-a"},
	}
}

func TestSQLiteMessageLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	exerciseSink(t, store, func(err error) bool { return errors.Is(err, sql.ErrNoRows) })
}

func TestSQLitePrivateMessageRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	pm := sampleMessage("pm", 1)
	pm.Room = ""
	pm.Private = true
	pm.Recipient = "bob"
	pm.RecipientID = "conn-b"
	if err := store.SaveMessage(ctx, pm); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}
	msgs, err := store.RecentMessages(ctx, 10)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(msgs) != 1 || !msgs[0].Private || msgs[0].RecipientID != "conn-b" || msgs[0].Room != "" {
		t.Fatalf("unexpected private message: %+v", msgs)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("migrate #%d: %v", i, err)
		}
	}
}

func TestBadgerMessageLifecycle(t *testing.T) {
	store, err := OpenBadger("")
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	exerciseSink(t, store, func(err error) bool { return err != nil })
}

func TestBuildDSN(t *testing.T) {
	cases := map[string]string{
		"chat.db":                     "file:chat.db?_pragma=busy_timeout=5000&_pragma=journal_mode=WAL",
		"sqlite://file:x?mode=memory": "file:x?mode=memory&_pragma=busy_timeout=5000&_pragma=journal_mode=WAL",
		"file:/tmp/a.db":              "file:/tmp/a.db?_pragma=busy_timeout=5000&_pragma=journal_mode=WAL",
	}
	for in, want := range cases {
		if got := buildDSN(in); got != want {
			t.Errorf("buildDSN(%q) = %q, want %q", in, got, want)
		}
	}
}

func exerciseSink(t *testing.T, s sink, isMissing func(error) bool) {
	t.Helper()
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		if err := s.SaveMessage(ctx, sampleMessage(id, i)); err != nil {
			t.Fatalf("SaveMessage %s: %v", id, err)
		}
	}
	if err := s.SaveMessage(ctx, sampleMessage("a", 9)); !errors.Is(err, ErrMessageExists) {
		t.Fatalf("expected ErrMessageExists, got %v", err)
	}

	updated := sampleMessage("b", 1)
	updated.ReadBy = append(updated.ReadBy, "conn-b")
	updated.Reactions.Toggle("👍", "conn-b")
	if err := s.UpdateMessage(ctx, updated); err != nil {
		t.Fatalf("UpdateMessage: %v", err)
	}
	if err := s.UpdateMessage(ctx, sampleMessage("missing", 0)); !isMissing(err) {
		t.Fatalf("expected missing error, got %v", err)
	}

	msgs, err := s.RecentMessages(ctx, 2)
	if err != nil {
		t.Fatalf("RecentMessages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != "b" || msgs[1].ID != "c" {
		t.Fatalf("unexpected recent messages: %+v", msgs)
	}
	if len(msgs[0].ReadBy) != 2 || len(msgs[0].Reactions.Users("👍")) != 1 {
		t.Fatalf("metadata not persisted: %+v", msgs[0])
	}
	if !msgs[0].Timestamp.Equal(updated.Timestamp) {
		t.Fatalf("timestamp drifted: %v != %v", msgs[0].Timestamp, updated.Timestamp)
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := "sqlite://file:" + t.Name() + "?mode=memory&cache=shared"
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
