package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dalnet/chanctl/internal/events"
	"github.com/dalnet/chanctl/internal/ratelimit"
	"github.com/dalnet/chanctl/internal/testutil"
)

func newTestRecorder() (*Recorder, *testutil.MockStore) {
	store := testutil.NewMockStore()
	r := NewRecorder(store, ratelimit.New(ratelimit.DefaultConfig()), func() string { return "bot" }, zerolog.Nop())
	return r, store
}

func TestRecordChannelMessage(t *testing.T) {
	r, store := newTestRecorder()
	ev := events.MessageEvent{Sender: "alice", Target: "#chan", Text: "hello", At: time.Now()}
	if err := r.Record(context.Background(), ev); err != nil {
		t.Fatalf("Record: %v", err)
	}
	audit := store.Audit()
	if len(audit) != 1 {
		t.Fatalf("expected 1 record, got %d", len(audit))
	}
	if audit[0].Sender != "alice" || audit[0].Context != "#chan" || audit[0].Content != "hello" {
		t.Errorf("unexpected record %+v", audit[0])
	}
	if store.DirectChats() != 0 {
		t.Error("channel message registered a direct chat")
	}
}

func TestRecordDirectMessage(t *testing.T) {
	r, store := newTestRecorder()
	ev := events.MessageEvent{Sender: "alice", Target: "bot", Text: "psst", At: time.Now()}
	if err := r.Record(context.Background(), ev); err != nil {
		t.Fatalf("Record: %v", err)
	}
	audit := store.Audit()
	if len(audit) != 1 || audit[0].Context != "alice" {
		t.Fatalf("DM should be logged under the sender, got %+v", audit)
	}
	if !store.HasDirectChat("bot", "alice") {
		t.Error("direct chat marker missing")
	}
	// Idempotent marker.
	_ = r.Record(context.Background(), ev)
	if store.DirectChats() != 1 {
		t.Errorf("expected one marker, got %d", store.DirectChats())
	}
}

func TestRecordAction(t *testing.T) {
	r, store := newTestRecorder()
	ev := events.MessageEvent{Sender: "alice", Target: "#chan", Text: "waves", Action: true, At: time.Now()}
	_ = r.Record(context.Background(), ev)
	if got := store.Audit()[0].Content; got != "* alice waves" {
		t.Errorf("action content = %q", got)
	}
}

func TestRecordControlCharsDroppedButCounted(t *testing.T) {
	r, store := newTestRecorder()
	now := time.Now()
	for i := 0; i < 10; i++ {
		ev := events.MessageEvent{Sender: "eve", Target: "#chan", Text: "\x02bold", At: now}
		if err := r.Record(context.Background(), ev); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if len(store.Audit()) != 0 {
		t.Fatalf("control char messages must not be persisted")
	}
	// The eleventh message in the window trips the limiter even though
	// nothing was persisted before it.
	_ = r.Record(context.Background(), events.MessageEvent{Sender: "eve", Target: "#chan", Text: "clean", At: now})
	if len(store.Audit()) != 0 {
		t.Error("flooding sender's message was persisted")
	}
	if !r.limiter.Banned("eve", now) {
		t.Error("expected eve to be banned")
	}
}

func TestRecordBannedSenderDropped(t *testing.T) {
	r, store := newTestRecorder()
	now := time.Now()
	for i := 0; i < 11; i++ {
		_ = r.Record(context.Background(), events.MessageEvent{Sender: "eve", Target: "#chan", Text: "spam", At: now})
	}
	if n := len(store.Audit()); n != 10 {
		t.Fatalf("expected 10 persisted before ban, got %d", n)
	}
	_ = r.Record(context.Background(), events.MessageEvent{Sender: "eve", Target: "#chan", Text: "more", At: now.Add(time.Minute)})
	if n := len(store.Audit()); n != 10 {
		t.Errorf("banned sender persisted, got %d records", n)
	}
	_ = r.Record(context.Background(), events.MessageEvent{Sender: "eve", Target: "#chan", Text: "back", At: now.Add(4 * time.Minute)})
	if n := len(store.Audit()); n != 11 {
		t.Errorf("message after ban expiry not persisted, got %d records", n)
	}
}

func TestRecordSystemEvents(t *testing.T) {
	tests := []struct {
		name    string
		ev      events.Event
		context string
		content string
	}{
		{"join", events.JoinEvent{Nick: "alice", Channel: "#chan"}, "#chan", "* alice has joined #chan"},
		{"part", events.PartEvent{Nick: "alice", Channel: "#chan", Reason: "bye"}, "#chan", "* alice has left #chan (bye)"},
		{"topic", events.TopicEvent{Setter: "op", Channel: "#chan", Topic: "new"}, "#chan", "* op changed the topic to: new"},
		{"kick", events.KickEvent{Kicker: "op", Channel: "#chan", Kicked: "eve", Reason: "spam"}, "#chan", "* op kicked eve (spam)"},
		{"topic reply", events.TopicReplyEvent{Channel: "#chan", Topic: "hi", Set: true}, "#chan", "* Topic for #chan is: hi"},
		{"no topic", events.TopicReplyEvent{Channel: "#chan"}, "#chan", "* No topic is set for #chan"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, store := newTestRecorder()
			if err := r.Record(context.Background(), tt.ev); err != nil {
				t.Fatalf("Record: %v", err)
			}
			audit := store.Audit()
			if len(audit) != 1 {
				t.Fatalf("expected 1 record, got %d", len(audit))
			}
			if audit[0].Sender != SystemSender || audit[0].Context != tt.context || audit[0].Content != tt.content {
				t.Errorf("got %+v, want %s/%q", audit[0], tt.context, tt.content)
			}
		})
	}
}

func TestRecordQuitFansOut(t *testing.T) {
	r, store := newTestRecorder()
	ev := events.QuitEvent{Nick: "alice", Reason: "gone", Channels: []string{"#a", "#b"}}
	if err := r.Record(context.Background(), ev); err != nil {
		t.Fatalf("Record: %v", err)
	}
	audit := store.Audit()
	if len(audit) != 2 {
		t.Fatalf("expected 2 records, got %d", len(audit))
	}
	for i, ch := range []string{"#a", "#b"} {
		if audit[i].Context != ch || audit[i].Content != "* alice has quit (gone)" {
			t.Errorf("record %d = %+v", i, audit[i])
		}
	}
}

func TestRecordModeChange(t *testing.T) {
	r, store := newTestRecorder()
	ev := events.ModeChangeEvent{Setter: "op", Channel: "#chan", Modes: "+ov", Targets: []string{"alice", "bob"}}
	if err := r.Record(context.Background(), ev); err != nil {
		t.Fatalf("Record: %v", err)
	}
	audit := store.Audit()
	if len(audit) != 1 || audit[0].Sender != "op" {
		t.Fatalf("unexpected audit %+v", audit)
	}
	want := "* op gives channel operator status to alice; gives voice to bob"
	if audit[0].Content != want {
		t.Errorf("content = %q, want %q", audit[0].Content, want)
	}

	// Malformed and user mode changes are ignored.
	_ = r.Record(context.Background(), events.ModeChangeEvent{Setter: "op", Channel: "#chan", Modes: "ov"})
	_ = r.Record(context.Background(), events.ModeChangeEvent{Setter: "bot", Channel: "bot", Modes: "+i"})
	if len(store.Audit()) != 1 {
		t.Errorf("expected malformed/user modes to be dropped, got %d records", len(store.Audit()))
	}
}

func TestRecordNumericError(t *testing.T) {
	r, store := newTestRecorder()
	ev := events.NumericErrorEvent{Code: "482", Channel: "#chan", Text: "You're not channel operator"}
	if err := r.Record(context.Background(), ev); err != nil {
		t.Fatalf("Record: %v", err)
	}
	audit := store.Audit()
	if len(audit) != 1 {
		t.Fatalf("expected 1 record, got %d", len(audit))
	}
	if audit[0].Sender != "bot" || audit[0].Content != "* Command attempt failed: You're not channel operator" {
		t.Errorf("unexpected record %+v", audit[0])
	}
}

func TestRecordStoreError(t *testing.T) {
	r, store := newTestRecorder()
	store.SetError("AppendAudit", errors.New("disk full"))
	err := r.Record(context.Background(), events.JoinEvent{Nick: "a", Channel: "#c"})
	if err == nil {
		t.Fatal("expected store error to be returned")
	}
}
