// Package audit turns inbound protocol events into audit records.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dalnet/chanctl/internal/events"
	"github.com/dalnet/chanctl/internal/metrics"
	"github.com/dalnet/chanctl/internal/modes"
	"github.com/dalnet/chanctl/internal/ratelimit"
	"github.com/dalnet/chanctl/internal/sanitize"
	"github.com/dalnet/chanctl/internal/storage"
)

// SystemSender is the sender recorded for membership and topic events.
const SystemSender = "SYSTEM"

// Recorder persists inbound events. It is not safe for concurrent use; the
// driver goroutine owns it together with the limiter.
type Recorder struct {
	store   storage.Store
	limiter *ratelimit.Limiter
	self    func() string
	now     func() time.Time
	log     zerolog.Logger
}

// NewRecorder creates a Recorder. self returns the bot's current nick.
func NewRecorder(store storage.Store, limiter *ratelimit.Limiter, self func() string, log zerolog.Logger) *Recorder {
	return &Recorder{
		store:   store,
		limiter: limiter,
		self:    self,
		now:     time.Now,
		log:     log.With().Str("component", "audit").Logger(),
	}
}

// Record handles one event. Events that carry nothing worth logging are
// ignored. Only storage failures are returned.
func (r *Recorder) Record(ctx context.Context, ev events.Event) error {
	switch e := ev.(type) {
	case events.MessageEvent:
		return r.message(ctx, e)
	case events.JoinEvent:
		if !events.IsChannel(e.Channel) {
			return nil
		}
		return r.system(ctx, e.Channel, fmt.Sprintf("* %s has joined %s", e.Nick, e.Channel))
	case events.TopicReplyEvent:
		if e.Set {
			return r.system(ctx, e.Channel, fmt.Sprintf("* Topic for %s is: %s", e.Channel, e.Topic))
		}
		return r.system(ctx, e.Channel, fmt.Sprintf("* No topic is set for %s", e.Channel))
	case events.PartEvent:
		if !events.IsChannel(e.Channel) {
			return nil
		}
		return r.system(ctx, e.Channel, fmt.Sprintf("* %s has left %s (%s)", e.Nick, e.Channel, e.Reason))
	case events.QuitEvent:
		content := fmt.Sprintf("* %s has quit (%s)", e.Nick, e.Reason)
		for _, ch := range e.Channels {
			if err := r.system(ctx, ch, content); err != nil {
				return err
			}
		}
		return nil
	case events.ModeChangeEvent:
		if !events.IsChannel(e.Channel) {
			return nil
		}
		content, ok := modes.Translate(e.Setter, e.Channel, e.Modes, e.Targets)
		if !ok {
			r.log.Debug().Str("channel", e.Channel).Str("modes", e.Modes).Msg("ignoring malformed mode change")
			return nil
		}
		return r.write(ctx, "mode", e.Setter, e.Channel, content)
	case events.TopicEvent:
		if !events.IsChannel(e.Channel) {
			return nil
		}
		return r.system(ctx, e.Channel, fmt.Sprintf("* %s changed the topic to: %s", e.Setter, e.Topic))
	case events.KickEvent:
		if !events.IsChannel(e.Channel) {
			return nil
		}
		return r.system(ctx, e.Channel, fmt.Sprintf("* %s kicked %s (%s)", e.Kicker, e.Kicked, e.Reason))
	case events.NumericErrorEvent:
		if !events.IsChannel(e.Channel) {
			return nil
		}
		r.log.Info().Str("code", e.Code).Str("channel", e.Channel).Str("text", e.Text).Msg("command attempt failed")
		return r.write(ctx, "numeric", r.self(), e.Channel, "* Command attempt failed: "+e.Text)
	}
	return nil
}

// Admit counts one inbound message or CTCP request from sender against the
// rate limiter and reports whether it may be handled. A zero at means now.
func (r *Recorder) Admit(sender string, at time.Time) bool {
	if at.IsZero() {
		at = r.now()
	}
	decision := r.limiter.Admit(sender, at)
	metrics.MessagesAdmitted.WithLabelValues(decision.String()).Inc()
	if decision == ratelimit.RejectFlood {
		r.log.Warn().Str("sender", sender).Msg("flood detected, sender banned")
	}
	return decision.Allowed()
}

func (r *Recorder) message(ctx context.Context, e events.MessageEvent) error {
	if !r.Admit(e.Sender, e.At) {
		return nil
	}

	if sanitize.HasControl(e.Text) {
		metrics.MessagesFiltered.WithLabelValues("control").Inc()
		return nil
	}

	content := e.Text
	if e.Action {
		content = "* " + e.Sender + " " + e.Text
	}

	if events.IsChannel(e.Target) {
		return r.write(ctx, "message", e.Sender, e.Target, content)
	}
	if err := r.write(ctx, "message", e.Sender, e.Sender, content); err != nil {
		return err
	}
	if err := r.store.EnsureDirectChat(ctx, r.self(), e.Sender); err != nil {
		return fmt.Errorf("register direct chat: %w", err)
	}
	return nil
}

func (r *Recorder) system(ctx context.Context, channel, content string) error {
	return r.write(ctx, "event", SystemSender, channel, content)
}

func (r *Recorder) write(ctx context.Context, source, sender, channel, content string) error {
	rec := storage.AuditRecord{
		Timestamp: r.now(),
		Sender:    sender,
		Context:   channel,
		Content:   content,
	}
	if err := r.store.AppendAudit(ctx, rec); err != nil {
		return fmt.Errorf("append %s audit: %w", source, err)
	}
	metrics.AuditRecords.WithLabelValues(source).Inc()
	return nil
}
