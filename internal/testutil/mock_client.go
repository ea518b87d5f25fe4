package testutil

import (
	"strings"
	"sync"
)

// MockClient records outbound protocol calls. It satisfies the queue's
// client interface. All methods are safe for concurrent use.
type MockClient struct {
	mu    sync.Mutex
	nick  string
	sent  []string
	calls map[string]int

	// Error injection: method -> next error (consumed on first call)
	errors map[string]error
}

// NewMockClient returns a MockClient whose current nick is nick.
func NewMockClient(nick string) *MockClient {
	return &MockClient{
		nick:   nick,
		calls:  make(map[string]int),
		errors: make(map[string]error),
	}
}

// SetError injects an error to be returned on the next call to the named method.
func (c *MockClient) SetError(method string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors[method] = err
}

func (c *MockClient) record(method, line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[method]++
	if err := c.errors[method]; err != nil {
		delete(c.errors, method)
		return err
	}
	c.sent = append(c.sent, line)
	return nil
}

func (c *MockClient) SendRaw(tokens ...string) error {
	return c.record("SendRaw", strings.Join(tokens, " "))
}

func (c *MockClient) SendMessage(target, text string) error {
	return c.record("SendMessage", "PRIVMSG "+target+" :"+text)
}

func (c *MockClient) SendAction(target, text string) error {
	return c.record("SendAction", "PRIVMSG "+target+" :\x01ACTION "+text+"\x01")
}

func (c *MockClient) JoinChannel(name string) error {
	return c.record("JoinChannel", "JOIN "+name)
}

func (c *MockClient) SetNick(name string) error {
	if err := c.record("SetNick", "NICK "+name); err != nil {
		return err
	}
	c.mu.Lock()
	c.nick = name
	c.mu.Unlock()
	return nil
}

func (c *MockClient) ReplyVersion(nick string) error {
	return c.record("ReplyVersion", "NOTICE "+nick+" :\x01VERSION chanctl\x01")
}

func (c *MockClient) CurrentNick() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nick
}

// Sent returns every successfully recorded line, in order.
func (c *MockClient) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

// Calls returns how many times method was invoked, failed calls included.
func (c *MockClient) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}
