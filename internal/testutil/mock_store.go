package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dalnet/chanctl/internal/storage"
)

// MockStore implements storage.Store in memory for testing.
// All methods are safe for concurrent use.
type MockStore struct {
	mu       sync.Mutex
	audit    []storage.AuditRecord
	commands []storage.PendingCommand
	members  map[string][]storage.Member
	direct   map[[2]string]bool
	nextID   int64

	// Error injection: method -> next error (consumed on first call)
	errors map[string]error
}

// NewMockStore returns an empty MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		members: make(map[string][]storage.Member),
		direct:  make(map[[2]string]bool),
		errors:  make(map[string]error),
	}
}

// SetError injects an error to be returned on the next call to the named method.
func (m *MockStore) SetError(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[method] = err
}

func (m *MockStore) popError(method string) error {
	err := m.errors[method]
	delete(m.errors, method)
	return err
}

// --- Audit ------------------------------------------------------------------

func (m *MockStore) AppendAudit(_ context.Context, rec storage.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popError("AppendAudit"); err != nil {
		return err
	}
	m.nextID++
	rec.ID = m.nextID
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	m.audit = append(m.audit, rec)
	return nil
}

func (m *MockStore) RecentAudit(_ context.Context, ctxName string, limit int) ([]storage.AuditRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popError("RecentAudit"); err != nil {
		return nil, err
	}
	var out []storage.AuditRecord
	for i := len(m.audit) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if m.audit[i].Context == ctxName {
			out = append(out, m.audit[i])
		}
	}
	return out, nil
}

// Audit returns a copy of every audit record in insertion order.
func (m *MockStore) Audit() []storage.AuditRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.AuditRecord(nil), m.audit...)
}

// --- Direct chats -----------------------------------------------------------

func (m *MockStore) EnsureDirectChat(_ context.Context, bot, user string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popError("EnsureDirectChat"); err != nil {
		return err
	}
	m.direct[[2]string{bot, user}] = true
	return nil
}

// HasDirectChat reports whether EnsureDirectChat was called for the pair.
func (m *MockStore) HasDirectChat(bot, user string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.direct[[2]string{bot, user}]
}

// DirectChats returns the number of registered pairs.
func (m *MockStore) DirectChats() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.direct)
}

// --- Command queue ----------------------------------------------------------

func (m *MockStore) EnqueueCommand(_ context.Context, ctxName, text string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popError("EnqueueCommand"); err != nil {
		return 0, err
	}
	m.nextID++
	m.commands = append(m.commands, storage.PendingCommand{ID: m.nextID, Context: ctxName, Text: text})
	return m.nextID, nil
}

func (m *MockStore) PendingCommands(_ context.Context) ([]storage.PendingCommand, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popError("PendingCommands"); err != nil {
		return nil, err
	}
	var out []storage.PendingCommand
	for _, c := range m.commands {
		if !c.Sent {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MockStore) MarkSent(_ context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popError("MarkSent"); err != nil {
		return err
	}
	for i := range m.commands {
		if m.commands[i].ID == id {
			m.commands[i].Sent = true
			m.commands[i].DispatchedAt = at
			return nil
		}
	}
	return storage.ErrNotFound
}

func (m *MockStore) PurgeSent(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popError("PurgeSent"); err != nil {
		return 0, err
	}
	kept := m.commands[:0]
	var purged int64
	for _, c := range m.commands {
		if c.Sent && c.DispatchedAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, c)
	}
	m.commands = kept
	return purged, nil
}

// Commands returns a copy of every queued command, sent or not.
func (m *MockStore) Commands() []storage.PendingCommand {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.PendingCommand(nil), m.commands...)
}

// --- Membership -------------------------------------------------------------

func (m *MockStore) ReplaceMembers(_ context.Context, channel string, members []storage.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popError("ReplaceMembers"); err != nil {
		return err
	}
	cp := append([]storage.Member(nil), members...)
	sort.Slice(cp, func(i, j int) bool { return cp[i].Nick < cp[j].Nick })
	m.members[channel] = cp
	return nil
}

func (m *MockStore) Members(_ context.Context, channel string) ([]storage.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.popError("Members"); err != nil {
		return nil, err
	}
	return append([]storage.Member(nil), m.members[channel]...), nil
}

func (m *MockStore) Close() error {
	return nil
}
