package testutil_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dalnet/chanctl/internal/storage"
	"github.com/dalnet/chanctl/internal/testutil"
)

var _ storage.Store = (*testutil.MockStore)(nil)

func TestMockStore_Queue(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewMockStore()

	id1, _ := s.EnqueueCommand(ctx, "#chan", "hello")
	id2, _ := s.EnqueueCommand(ctx, "#chan", "world")

	now := time.Now()
	if err := s.MarkSent(ctx, id1, now.Add(-2*time.Minute)); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}
	pending, _ := s.PendingCommands(ctx)
	if len(pending) != 1 || pending[0].ID != id2 {
		t.Fatalf("expected only command %d pending, got %+v", id2, pending)
	}

	n, err := s.PurgeSent(ctx, now.Add(-time.Minute))
	if err != nil || n != 1 {
		t.Fatalf("expected 1 purged, got %d, %v", n, err)
	}
	if got := len(s.Commands()); got != 1 {
		t.Fatalf("expected 1 command left, got %d", got)
	}

	if err := s.MarkSent(ctx, 999, now); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMockStore_ErrorInjection(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewMockStore()
	boom := errors.New("boom")
	s.SetError("AppendAudit", boom)

	if err := s.AppendAudit(ctx, storage.AuditRecord{Context: "#c"}); !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if err := s.AppendAudit(ctx, storage.AuditRecord{Context: "#c"}); err != nil {
		t.Fatalf("error should be consumed after one call, got %v", err)
	}
	recs, _ := s.RecentAudit(ctx, "#c", 10)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
}

func TestMockClient_SetNick(t *testing.T) {
	c := testutil.NewMockClient("bot")
	if err := c.SetNick("bot2"); err != nil {
		t.Fatalf("SetNick: %v", err)
	}
	if c.CurrentNick() != "bot2" {
		t.Errorf("CurrentNick = %q, want bot2", c.CurrentNick())
	}
	c.SetError("SetNick", errors.New("erroneous"))
	_ = c.SetNick("bad nick")
	if c.CurrentNick() != "bot2" {
		t.Errorf("failed SetNick changed nick to %q", c.CurrentNick())
	}
	if c.Calls("SetNick") != 2 {
		t.Errorf("Calls(SetNick) = %d, want 2", c.Calls("SetNick"))
	}
}
