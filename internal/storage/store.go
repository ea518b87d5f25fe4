package storage

import (
	"context"
	"time"
)

// AuditRecord is one append-only entry of the audit trail.
type AuditRecord struct {
	ID        int64
	Timestamp time.Time
	Sender    string
	Context   string
	Content   string
}

// PendingCommand is one row of the outbound command queue.
// DispatchedAt is zero until the command has been sent.
type PendingCommand struct {
	ID           int64
	Context      string
	Text         string
	Sent         bool
	DispatchedAt time.Time
}

// Member is one channel membership row.
type Member struct {
	Nick  string
	Flags string
}

// Store is the persistence gateway for audit records, the pending command
// queue, channel membership snapshots and direct chat markers.
type Store interface {
	// AppendAudit writes a new audit record. A zero Timestamp is set to now.
	AppendAudit(ctx context.Context, rec AuditRecord) error
	// RecentAudit returns up to limit records for a context, newest first.
	RecentAudit(ctx context.Context, context string, limit int) ([]AuditRecord, error)

	// EnsureDirectChat records that bot has an open conversation with user.
	// Repeated calls for the same pair are no-ops.
	EnsureDirectChat(ctx context.Context, bot, user string) error

	// EnqueueCommand adds an unsent command and returns its id.
	EnqueueCommand(ctx context.Context, context, text string) (int64, error)
	// PendingCommands returns all unsent commands, oldest first.
	PendingCommands(ctx context.Context) ([]PendingCommand, error)
	// MarkSent flags a command as sent at the given time.
	MarkSent(ctx context.Context, id int64, at time.Time) error
	// PurgeSent deletes sent commands dispatched before cutoff.
	// Unsent commands are never deleted.
	PurgeSent(ctx context.Context, cutoff time.Time) (int64, error)

	// ReplaceMembers atomically replaces all membership rows of a channel.
	ReplaceMembers(ctx context.Context, channel string, members []Member) error
	// Members returns the stored membership of a channel ordered by nick.
	Members(ctx context.Context, channel string) ([]Member, error)

	Close() error
}
