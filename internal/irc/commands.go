package irc

import (
	"errors"
	"fmt"
)

// The methods in this file are the outbound side used by the command queue
// and the driver.

// ErrNotConnected is returned for sends after the client was closed.
var ErrNotConnected = errors.New("not connected")

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// SendRaw sends a command built from tokens; the last token is sent as the
// trailing parameter so it may contain spaces.
func (c *Client) SendRaw(tokens ...string) error {
	if len(tokens) == 0 {
		return fmt.Errorf("empty command")
	}
	if c.isClosed() {
		return ErrNotConnected
	}
	return c.conn.Send(tokens[0], tokens[1:]...)
}

// SendMessage sends a PRIVMSG to a channel or nick.
func (c *Client) SendMessage(target, text string) error {
	if c.isClosed() {
		return ErrNotConnected
	}
	return c.conn.Send("PRIVMSG", target, text)
}

// SendAction sends a CTCP ACTION (/me).
func (c *Client) SendAction(target, text string) error {
	if c.isClosed() {
		return ErrNotConnected
	}
	return c.conn.Send("PRIVMSG", target, "\x01ACTION "+text+"\x01")
}

// JoinChannel joins a channel.
func (c *Client) JoinChannel(name string) error {
	if c.isClosed() {
		return ErrNotConnected
	}
	return c.conn.Send("JOIN", name)
}

// SetNick requests a nick change. A rejected nick comes back later as a
// numeric reply, not as an error here.
func (c *Client) SetNick(name string) error {
	if c.isClosed() {
		return ErrNotConnected
	}
	c.conn.SetNick(name)
	return nil
}

// ReplyVersion answers a CTCP VERSION request from nick.
func (c *Client) ReplyVersion(nick string) error {
	if c.isClosed() {
		return ErrNotConnected
	}
	return c.conn.Send("NOTICE", nick, "\x01VERSION "+versionReply()+"\x01")
}

// CurrentNick returns the nick the server currently knows the bot by.
func (c *Client) CurrentNick() string {
	return c.conn.CurrentNick()
}
