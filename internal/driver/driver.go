// Package driver runs the single scheduling loop that owns all in-memory
// state: it records inbound events, tracks channel membership and fires the
// queue drain, garbage collection and membership snapshot cycles.
//
// Each cycle runs to completion before the next select, so a slow store or
// protocol client stalls the whole loop. There is no per-dispatch timeout.
package driver

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/dalnet/chanctl/internal/audit"
	"github.com/dalnet/chanctl/internal/events"
	"github.com/dalnet/chanctl/internal/metrics"
	"github.com/dalnet/chanctl/internal/queue"
	"github.com/dalnet/chanctl/internal/ratelimit"
	"github.com/dalnet/chanctl/internal/roster"
	"github.com/dalnet/chanctl/internal/storage"
)

// Config holds the cycle intervals and the state owned by the loop.
type Config struct {
	QueueInterval    time.Duration
	GCInterval       time.Duration
	SnapshotInterval time.Duration
	SentRetention    time.Duration
	RateLimit        ratelimit.Config
}

// versionReplier is implemented by protocol clients that answer CTCP VERSION.
type versionReplier interface {
	ReplyVersion(nick string) error
}

// Driver is the scheduling loop. Only Run's goroutine touches its state.
type Driver struct {
	cfg      Config
	in       <-chan events.Event
	store    storage.Store
	limiter  *ratelimit.Limiter
	recorder *audit.Recorder
	roster   *roster.Roster
	queue    *queue.Processor
	replier  versionReplier // nil if the client cannot answer CTCP
	now      func() time.Time
	log      zerolog.Logger
}

// New wires a Driver reading events from in and dispatching queued commands
// through client.
func New(cfg Config, in <-chan events.Event, store storage.Store, client queue.Client, log zerolog.Logger) *Driver {
	limiter := ratelimit.New(cfg.RateLimit)
	replier, _ := client.(versionReplier)
	return &Driver{
		cfg:      cfg,
		in:       in,
		store:    store,
		limiter:  limiter,
		recorder: audit.NewRecorder(store, limiter, client.CurrentNick, log),
		roster:   roster.New(client.CurrentNick),
		queue:    queue.NewProcessor(store, client, cfg.SentRetention, log),
		replier:  replier,
		now:      time.Now,
		log:      log.With().Str("component", "driver").Logger(),
	}
}

// Run loops until ctx is cancelled or the event channel is closed.
func (d *Driver) Run(ctx context.Context) error {
	queueTicker := time.NewTicker(d.cfg.QueueInterval)
	defer queueTicker.Stop()
	gcTicker := time.NewTicker(d.cfg.GCInterval)
	defer gcTicker.Stop()
	snapshotTicker := time.NewTicker(d.cfg.SnapshotInterval)
	defer snapshotTicker.Stop()

	d.log.Info().
		Dur("queue_interval", d.cfg.QueueInterval).
		Dur("gc_interval", d.cfg.GCInterval).
		Dur("snapshot_interval", d.cfg.SnapshotInterval).
		Msg("driver started")

	for {
		select {
		case <-ctx.Done():
			d.log.Info().Msg("driver stopping")
			return nil
		case ev, ok := <-d.in:
			if !ok {
				d.log.Info().Msg("event channel closed")
				return nil
			}
			d.cycle(ctx, "event", func(ctx context.Context) error { return d.handle(ctx, ev) })
		case <-queueTicker.C:
			d.cycle(ctx, "queue", d.drain)
		case <-gcTicker.C:
			d.cycle(ctx, "gc", d.collect)
		case <-snapshotTicker.C:
			d.cycle(ctx, "snapshot", d.snapshot)
		}
	}
}

// cycle runs fn, timing it. A failure is logged and counted; the loop
// carries on with the next tick.
func (d *Driver) cycle(ctx context.Context, name string, fn func(context.Context) error) {
	start := time.Now()
	err := fn(ctx)
	metrics.CycleDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CycleFailures.WithLabelValues(name).Inc()
		d.log.Error().Err(err).Str("cycle", name).Msg("cycle failed")
	}
}

func (d *Driver) handle(ctx context.Context, ev events.Event) error {
	// The roster goes first so a quit can be fanned out to the channels the
	// nick was in before it is forgotten.
	chans := d.roster.Apply(ev)

	switch e := ev.(type) {
	case events.ConnectedEvent:
		return d.reset(ctx)
	case events.CTCPEvent:
		d.ctcp(e)
		return nil
	case events.QuitEvent:
		e.Channels = chans
		ev = e
	case events.PartEvent:
		if e.Self {
			defer d.clearMembers(ctx, e.Channel)
		}
	case events.KickEvent:
		if e.Self {
			defer d.clearMembers(ctx, e.Channel)
		}
	}
	return d.recorder.Record(ctx, ev)
}

// reset drops every channel tracked on a previous connection. The server
// sends no PART for them after a reconnect.
func (d *Driver) reset(ctx context.Context) error {
	stale := d.roster.Channels()
	d.roster.Forget()
	metrics.TrackedChannels.Set(0)
	if len(stale) > 0 {
		d.log.Info().Strs("channels", stale).Msg("reconnected, dropping channel state")
	}
	for _, ch := range stale {
		if err := d.store.ReplaceMembers(ctx, ch, nil); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) ctcp(e events.CTCPEvent) {
	if !d.recorder.Admit(e.Sender, e.At) {
		return
	}
	if e.Command != "VERSION" || d.replier == nil || e.Sender == "" {
		return
	}
	if err := d.replier.ReplyVersion(e.Sender); err != nil {
		d.log.Warn().Err(err).Str("nick", e.Sender).Msg("version reply failed")
	}
}

// clearMembers empties the stored membership of a channel the bot left.
func (d *Driver) clearMembers(ctx context.Context, channel string) {
	if err := d.store.ReplaceMembers(ctx, channel, nil); err != nil {
		d.log.Error().Err(err).Str("channel", channel).Msg("clear membership failed")
	}
}

func (d *Driver) drain(ctx context.Context) error {
	n, err := d.queue.Drain(ctx)
	if n > 0 {
		d.log.Debug().Int("count", n).Msg("processed pending commands")
	}
	return err
}

func (d *Driver) collect(ctx context.Context) error {
	now := d.now()
	if swept := d.limiter.Sweep(now); swept > 0 {
		d.log.Debug().Int("count", swept).Msg("expired rate limit state")
	}
	metrics.ActiveBans.Set(float64(d.limiter.ActiveBans(now)))

	_, err := d.queue.Collect(ctx)
	return err
}

func (d *Driver) snapshot(ctx context.Context) error {
	channels := d.roster.Channels()
	metrics.TrackedChannels.Set(float64(len(channels)))
	for _, ch := range channels {
		if err := d.store.ReplaceMembers(ctx, ch, d.roster.Snapshot(ch)); err != nil {
			return err
		}
	}
	return nil
}
