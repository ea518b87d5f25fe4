// Package queue executes the pending command queue against the IRC
// connection and records what was done.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dalnet/chanctl/internal/metrics"
	"github.com/dalnet/chanctl/internal/storage"
)

// Client is the outbound side of the protocol connection.
type Client interface {
	SendRaw(tokens ...string) error
	SendMessage(target, text string) error
	SendAction(target, text string) error
	JoinChannel(name string) error
	SetNick(name string) error
	CurrentNick() string
}

// DefaultRetention is how long sent commands are kept before Collect removes them.
const DefaultRetention = 60 * time.Second

// Processor drains the pending command queue.
type Processor struct {
	store     storage.Store
	client    Client
	retention time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

// NewProcessor creates a Processor. A non-positive retention uses DefaultRetention.
func NewProcessor(store storage.Store, client Client, retention time.Duration, log zerolog.Logger) *Processor {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Processor{
		store:     store,
		client:    client,
		retention: retention,
		now:       time.Now,
		log:       log.With().Str("component", "queue").Logger(),
	}
}

// Drain processes every unsent command, oldest first. It stops at the first
// storage error; commands already handled in this cycle stay marked sent.
func (p *Processor) Drain(ctx context.Context) (int, error) {
	pending, err := p.store.PendingCommands(ctx)
	if err != nil {
		return 0, fmt.Errorf("load pending commands: %w", err)
	}
	for i, cmd := range pending {
		if err := p.Process(ctx, cmd); err != nil {
			return i, err
		}
	}
	return len(pending), nil
}

// Process handles one command and marks it sent. Parse failures and
// dispatch failures are not retried.
func (p *Processor) Process(ctx context.Context, cmd storage.PendingCommand) error {
	self := p.client.CurrentNick()
	name, plan, err := Parse(cmd.Context, cmd.Text, self)

	outcome := "dispatched"
	switch {
	case errors.Is(err, ErrNotChannel):
		outcome = "skipped"
		p.log.Debug().Int64("id", cmd.ID).Str("verb", name).Str("context", cmd.Context).
			Msg("channel command in direct context, skipping")
	case err != nil:
		outcome = "invalid"
		p.log.Debug().Err(err).Int64("id", cmd.ID).Str("verb", name).Msg("invalid command, skipping")
	default:
		if execErr := execute(plan, p.client); execErr != nil {
			outcome = "failed"
			p.log.Warn().Err(execErr).Int64("id", cmd.ID).Str("verb", name).
				Str("context", cmd.Context).Msg("dispatch failed")
			break
		}
		if err := p.record(ctx, self, plan); err != nil {
			return err
		}
	}

	if err := p.store.MarkSent(ctx, cmd.ID, p.now()); err != nil {
		return fmt.Errorf("mark command sent: %w", err)
	}
	metrics.CommandsProcessed.WithLabelValues(name, outcome).Inc()
	return nil
}

func (p *Processor) record(ctx context.Context, self string, plan Plan) error {
	if plan.Audit != nil {
		rec := storage.AuditRecord{
			Timestamp: p.now(),
			Sender:    self,
			Context:   plan.Audit.Context,
			Content:   plan.Audit.Content,
		}
		if err := p.store.AppendAudit(ctx, rec); err != nil {
			return fmt.Errorf("audit command: %w", err)
		}
		metrics.AuditRecords.WithLabelValues("command").Inc()
	}
	if plan.DirectChat != "" {
		if err := p.store.EnsureDirectChat(ctx, self, plan.DirectChat); err != nil {
			return fmt.Errorf("register direct chat: %w", err)
		}
	}
	return nil
}

// execute applies the plan's actions in order, stopping at the first error.
func execute(plan Plan, c Client) error {
	for _, a := range plan.Actions {
		var err error
		switch a.Kind {
		case ActRaw:
			err = c.SendRaw(a.Tokens...)
		case ActMessage:
			err = c.SendMessage(a.Target, a.Text)
		case ActAction:
			err = c.SendAction(a.Target, a.Text)
		case ActJoin:
			err = c.JoinChannel(a.Target)
		case ActNick:
			err = c.SetNick(a.Target)
		default:
			err = fmt.Errorf("unknown action kind %d", a.Kind)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Collect removes sent commands older than the retention window.
func (p *Processor) Collect(ctx context.Context) (int64, error) {
	n, err := p.store.PurgeSent(ctx, p.now().Add(-p.retention))
	if err != nil {
		return 0, fmt.Errorf("purge sent commands: %w", err)
	}
	if n > 0 {
		metrics.QueuePurged.Add(float64(n))
		p.log.Debug().Int64("count", n).Msg("purged sent commands")
	}
	return n, nil
}
