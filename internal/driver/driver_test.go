package driver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/dalnet/chanctl/internal/events"
	"github.com/dalnet/chanctl/internal/metrics"
	"github.com/dalnet/chanctl/internal/ratelimit"
	mocks "github.com/dalnet/chanctl/internal/testutil"
)

func testConfig() Config {
	return Config{
		QueueInterval:    10 * time.Millisecond,
		GCInterval:       time.Hour,
		SnapshotInterval: time.Hour,
		SentRetention:    time.Minute,
		RateLimit:        ratelimit.DefaultConfig(),
	}
}

func newDriver(cfg Config) (*Driver, chan events.Event, *mocks.MockStore, *mocks.MockClient) {
	in := make(chan events.Event, 16)
	store := mocks.NewMockStore()
	client := mocks.NewMockClient("bot")
	return New(cfg, in, store, client, zerolog.Nop()), in, store, client
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestRunDrainsQueueAndRecordsEvents(t *testing.T) {
	d, in, store, client := newDriver(testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	_, _ = store.EnqueueCommand(ctx, "#chan", "/ban eve")
	in <- events.MessageEvent{Sender: "alice", Target: "#chan", Text: "hi", At: time.Now()}

	waitFor(t, func() bool { return len(client.Sent()) == 1 && len(store.Audit()) == 1 })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if got := client.Sent()[0]; got != "MODE #chan +b eve!*@*" {
		t.Errorf("sent %q", got)
	}
}

func TestRunStopsWhenChannelClosed(t *testing.T) {
	d, in, _, _ := newDriver(testConfig())
	close(in)
	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the event channel closed")
	}
}

func TestQuitFansOutToRosterChannels(t *testing.T) {
	d, _, store, _ := newDriver(testConfig())
	ctx := context.Background()
	for _, ev := range []events.Event{
		events.JoinEvent{Nick: "bot", Channel: "#a", Self: true},
		events.JoinEvent{Nick: "bot", Channel: "#b", Self: true},
		events.JoinEvent{Nick: "bot", Channel: "#c", Self: true},
		events.NamesEvent{Channel: "#a", Names: []string{"@bot", "alice"}},
		events.NamesEvent{Channel: "#b", Names: []string{"bot", "+alice"}},
		events.NamesEvent{Channel: "#c", Names: []string{"bot"}},
	} {
		if err := d.handle(ctx, ev); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
	before := len(store.Audit())

	if err := d.handle(ctx, events.QuitEvent{Nick: "alice", Reason: "bye"}); err != nil {
		t.Fatalf("handle quit: %v", err)
	}
	audit := store.Audit()[before:]
	if len(audit) != 2 {
		t.Fatalf("expected 2 quit records, got %d", len(audit))
	}
	if audit[0].Context != "#a" || audit[1].Context != "#b" {
		t.Errorf("quit contexts = %q, %q", audit[0].Context, audit[1].Context)
	}
}

func TestSnapshotWritesMembers(t *testing.T) {
	d, _, store, _ := newDriver(testConfig())
	ctx := context.Background()
	_ = d.handle(ctx, events.JoinEvent{Nick: "bot", Channel: "#chan", Self: true})
	_ = d.handle(ctx, events.NamesEvent{Channel: "#chan", Names: []string{"@bot", "+alice", "~&owner"}})

	if err := d.snapshot(ctx); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	members, _ := store.Members(ctx, "#chan")
	if len(members) != 3 {
		t.Fatalf("expected 3 members, got %+v", members)
	}
	flags := map[string]string{}
	for _, m := range members {
		flags[m.Nick] = m.Flags
	}
	if flags["owner"] != "+a +q" || flags["alice"] != "+v" || flags["bot"] != "+o" {
		t.Errorf("flags = %v", flags)
	}
	if got := testutil.ToFloat64(metrics.TrackedChannels); got != 1 {
		t.Errorf("TrackedChannels = %v", got)
	}

	// Leaving clears the stored membership.
	_ = d.handle(ctx, events.KickEvent{Kicker: "owner", Channel: "#chan", Kicked: "bot", Self: true})
	members, _ = store.Members(ctx, "#chan")
	if len(members) != 0 {
		t.Errorf("members after kick = %+v", members)
	}
}

func TestCollectSweepsAndPurges(t *testing.T) {
	d, _, store, _ := newDriver(testConfig())
	ctx := context.Background()
	now := time.Now()
	d.now = func() time.Time { return now }

	id, _ := store.EnqueueCommand(ctx, "#chan", "old")
	_ = store.MarkSent(ctx, id, now.Add(-2*time.Minute))

	for i := 0; i < 11; i++ {
		d.limiter.Admit("eve", now.Add(-5*time.Minute))
	}
	if err := d.collect(ctx); err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(store.Commands()) != 0 {
		t.Error("old sent command not purged")
	}
	if d.limiter.Banned("eve", now) {
		t.Error("expired ban survived the sweep")
	}
	if got := testutil.ToFloat64(metrics.ActiveBans); got != 0 {
		t.Errorf("ActiveBans = %v", got)
	}
}

func TestCycleFailureIsCounted(t *testing.T) {
	d, _, store, _ := newDriver(testConfig())
	before := testutil.ToFloat64(metrics.CycleFailures.WithLabelValues("queue"))
	store.SetError("PendingCommands", errors.New("db locked"))
	d.cycle(context.Background(), "queue", d.drain)
	if got := testutil.ToFloat64(metrics.CycleFailures.WithLabelValues("queue")); got-before != 1 {
		t.Errorf("CycleFailures{queue} increased by %v", got-before)
	}
}

func TestReconnectDropsStaleChannels(t *testing.T) {
	d, _, store, _ := newDriver(testConfig())
	ctx := context.Background()
	for _, ev := range []events.Event{
		events.ConnectedEvent{Nick: "bot"},
		events.JoinEvent{Nick: "bot", Channel: "#extra", Self: true},
		events.NamesEvent{Channel: "#extra", Names: []string{"@bot", "alice"}},
	} {
		if err := d.handle(ctx, ev); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
	if err := d.snapshot(ctx); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if members, _ := store.Members(ctx, "#extra"); len(members) != 2 {
		t.Fatalf("members before reconnect = %+v", members)
	}

	// The server sends no PART for #extra; the bot only rejoins #configured.
	for _, ev := range []events.Event{
		events.ConnectedEvent{Nick: "bot"},
		events.JoinEvent{Nick: "bot", Channel: "#configured", Self: true},
		events.NamesEvent{Channel: "#configured", Names: []string{"@bot"}},
	} {
		if err := d.handle(ctx, ev); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}
	if got := d.roster.Channels(); len(got) != 1 || got[0] != "#configured" {
		t.Errorf("channels after reconnect = %v", got)
	}
	if err := d.snapshot(ctx); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if members, _ := store.Members(ctx, "#extra"); len(members) != 0 {
		t.Errorf("#extra still has members %+v", members)
	}

	// A later quit is not fanned out to the dropped channel.
	before := len(store.Audit())
	_ = d.handle(ctx, events.QuitEvent{Nick: "alice", Reason: "bye"})
	if got := len(store.Audit()) - before; got != 0 {
		t.Errorf("quit wrote %d records for a channel the bot left", got)
	}
}

func TestCTCPCountsTowardRateLimit(t *testing.T) {
	d, _, store, client := newDriver(testConfig())
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 12; i++ {
		_ = d.handle(ctx, events.CTCPEvent{Sender: "eve", Target: "bot", Command: "VERSION", At: now})
	}
	if got := client.Calls("ReplyVersion"); got != 10 {
		t.Errorf("version replies = %d, want 10", got)
	}
	if !d.limiter.Banned("eve", now) {
		t.Fatal("CTCP flood did not ban the sender")
	}

	// The ban also covers ordinary messages.
	_ = d.handle(ctx, events.MessageEvent{Sender: "eve", Target: "#chan", Text: "hi", At: now})
	if len(store.Audit()) != 0 {
		t.Errorf("banned sender was audited: %+v", store.Audit())
	}
}

func TestCTCPOtherThanVersionIsNotAnswered(t *testing.T) {
	d, _, store, client := newDriver(testConfig())
	if err := d.handle(context.Background(), events.CTCPEvent{Sender: "alice", Target: "bot", Command: "PING", Args: "1", At: time.Now()}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(client.Sent()) != 0 || len(store.Audit()) != 0 {
		t.Errorf("PING produced sent=%q audit=%+v", client.Sent(), store.Audit())
	}
}
