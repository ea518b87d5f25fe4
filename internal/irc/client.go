package irc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ergochat/irc-go/ircevent"
	"github.com/ergochat/irc-go/ircmsg"
	"github.com/rs/zerolog"

	"github.com/dalnet/chanctl/internal/config"
	"github.com/dalnet/chanctl/internal/events"
	"github.com/dalnet/chanctl/internal/logger"
)

// Version information (set at build time or here)
var (
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// nickRecoveryDelay is how long the bot waits on its alternate nick before
// asking NickServ to free the primary one.
var nickRecoveryDelay = 15 * time.Second

// ErrLoopExited is returned by Run when the connection loop stops without
// the context being cancelled.
var ErrLoopExited = errors.New("irc loop exited")

// Client represents the IRC bot connection. Inbound traffic is converted to
// typed events and forwarded on the events channel; nothing else happens on
// the read loop.
type Client struct {
	conn *ircevent.Connection
	cfg  *config.Config
	log  zerolog.Logger

	events chan<- events.Event
	done   chan struct{}

	mu         sync.Mutex
	closed     bool
	recovering bool
}

// NewClient creates a new IRC client that delivers events to out.
func NewClient(cfg *config.Config, out chan<- events.Event, log zerolog.Logger) *Client {
	c := &Client{
		cfg:    cfg,
		log:    log.With().Str("component", "irc").Logger(),
		events: out,
		done:   make(chan struct{}),
	}

	c.conn = &ircevent.Connection{
		Server:      fmt.Sprintf("%s:%d", cfg.Server, cfg.Port),
		Nick:        cfg.Nick,
		User:        cfg.Username,
		RealName:    cfg.IRCName,
		Password:    cfg.ServerPass,
		QuitMessage: "Shutting down",
		UseTLS:      cfg.UseTLS,
		TLSConfig:   &tls.Config{InsecureSkipVerify: cfg.TLSSkipVerify},
		Log:         logger.Std(log, "ircevent"),
	}

	c.registerHandlers()
	return c
}

func (c *Client) registerHandlers() {
	// Connected (end of MOTD)
	c.conn.AddCallback("376", c.onConnect)
	c.conn.AddCallback("422", c.onConnect) // MOTD missing is also "connected"

	// Everything else is converted and forwarded as is. CTCP requests are
	// answered by the driver once the sender passes the rate limiter.
	for _, code := range []string{
		"PRIVMSG",
		"JOIN", "PART", "QUIT", "NICK", "MODE", "TOPIC", "KICK",
		"353", // RPL_NAMREPLY
		"332", // RPL_TOPIC
		"331", // RPL_NOTOPIC
	} {
		c.conn.AddCallback(code, c.forward)
	}
	for code := range numericErrors {
		c.conn.AddCallback(code, c.forward)
	}

	// Nick issues
	c.conn.AddCallback("432", c.onNickHeld)  // ERR_ERRONEUSNICKNAME
	c.conn.AddCallback("433", c.onNickInUse) // ERR_NICKNAMEINUSE
}

// Run connects and blocks until ctx is cancelled or the connection loop
// gives up.
func (c *Client) Run(ctx context.Context) error {
	c.log.Info().Str("server", c.conn.Server).Bool("tls", c.cfg.UseTLS).Msg("connecting")
	if err := c.conn.Connect(); err != nil {
		return fmt.Errorf("connect to %s: %w", c.conn.Server, err)
	}

	loopDone := make(chan struct{})
	go func() {
		c.conn.Loop()
		close(loopDone)
	}()

	select {
	case <-ctx.Done():
		c.Quit()
		select {
		case <-loopDone:
		case <-time.After(5 * time.Second):
			c.log.Warn().Msg("connection loop did not stop in time")
		}
		return nil
	case <-loopDone:
		c.Quit()
		return ErrLoopExited
	}
}

// Quit disconnects from IRC and stops event delivery. It is safe to call
// more than once.
func (c *Client) Quit() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()
	c.conn.Quit()
}

// emit hands an event to the driver, giving up once the client is closed.
func (c *Client) emit(ev events.Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Client) forward(m ircmsg.Message) {
	if ev, ok := convert(m, c.conn.CurrentNick(), time.Now()); ok {
		c.emit(ev)
	}
}

func (c *Client) onConnect(e ircmsg.Message) {
	nick := c.conn.CurrentNick()
	c.log.Info().Str("nick", nick).Msg("connected to IRC server")

	// Sent ahead of the joins so membership from a previous connection is
	// dropped before the new JOIN and NAMES replies arrive.
	c.emit(events.ConnectedEvent{Nick: nick})

	// Identify to NickServ
	if c.cfg.NickPass != "" {
		c.conn.Privmsg("NickServ", fmt.Sprintf("IDENTIFY %s %s", c.cfg.Nick, c.cfg.NickPass))
	}

	for _, ch := range c.cfg.Channels {
		if err := c.JoinChannel(ch); err != nil {
			c.log.Error().Err(err).Str("channel", ch).Msg("join failed")
		}
	}
}

func versionReply() string {
	return fmt.Sprintf("chanctl %s (built %s, commit %s)", Version, BuildDate, GitCommit)
}

// onNickHeld handles ERR_ERRONEUSNICKNAME, which services send for a nick
// held after a kill.
func (c *Client) onNickHeld(e ircmsg.Message) {
	c.recoverNick(e, "RELEASE")
}

func (c *Client) onNickInUse(e ircmsg.Message) {
	c.recoverNick(e, "GHOST")
}

// recoverNick switches to the alternate nick and later asks NickServ to free
// the primary one. Rejections of any other nick (e.g. a bad /nick command)
// are only logged.
func (c *Client) recoverNick(e ircmsg.Message, verb string) {
	if !rejectsPrimary(e, c.cfg.Nick) {
		c.log.Warn().Strs("params", e.Params).Str("code", e.Command).Msg("nick change rejected")
		return
	}
	if strings.EqualFold(c.conn.CurrentNick(), c.cfg.Alternate) {
		return
	}

	c.mu.Lock()
	if c.recovering {
		c.mu.Unlock()
		return
	}
	c.recovering = true
	c.mu.Unlock()

	c.log.Warn().Str("code", e.Command).Str("alternate", c.cfg.Alternate).Msg("primary nick unavailable, switching to alternate")
	c.conn.SetNick(c.cfg.Alternate)

	// Schedule nick recovery
	go func() {
		defer func() {
			c.mu.Lock()
			c.recovering = false
			c.mu.Unlock()
		}()
		select {
		case <-time.After(nickRecoveryDelay):
		case <-c.done:
			return
		}
		if c.cfg.NickPass != "" {
			c.conn.Privmsg("NickServ", fmt.Sprintf("%s %s %s", verb, c.cfg.Nick, c.cfg.NickPass))
		}
		select {
		case <-time.After(2 * time.Second):
		case <-c.done:
			return
		}
		c.conn.SetNick(c.cfg.Nick)
	}()
}

// rejectsPrimary reports whether a 432/433 reply is about the primary nick.
// The rejected nick is the second parameter: "<me> <nick> :<reason>".
func rejectsPrimary(e ircmsg.Message, primary string) bool {
	return len(e.Params) >= 2 && strings.EqualFold(e.Params[1], primary)
}
