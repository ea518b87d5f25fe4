// Package events defines the typed inbound events produced by the IRC adapter
// and consumed by the driver.
package events

import (
	"strings"
	"time"
)

// Event is any inbound protocol event delivered to the driver.
type Event interface {
	isEvent()
}

// MessageEvent is a PRIVMSG to a channel or to the bot.
// Action is set for CTCP ACTION (/me) messages, in which case Text holds the
// action text without the CTCP framing.
type MessageEvent struct {
	Sender string
	Target string
	Text   string
	Action bool
	At     time.Time
}

// JoinEvent is a JOIN of Nick into Channel.
type JoinEvent struct {
	Nick    string
	Channel string
	Self    bool // the bot itself joined
}

// PartEvent is a PART of Nick from Channel.
type PartEvent struct {
	Nick    string
	Channel string
	Reason  string
	Self    bool
}

// QuitEvent is a QUIT. Channels is filled in by the driver from the roster
// before the event is recorded.
type QuitEvent struct {
	Nick     string
	Reason   string
	Channels []string
}

// NickEvent is a nick change.
type NickEvent struct {
	Old string
	New string
}

// ModeChangeEvent is a MODE on a channel. Modes is the signed letter string
// (e.g. "+ov") and Targets the positional parameters following it.
type ModeChangeEvent struct {
	Setter  string
	Channel string
	Modes   string
	Targets []string
}

// TopicEvent is a TOPIC change.
type TopicEvent struct {
	Setter  string
	Channel string
	Topic   string
}

// TopicReplyEvent is RPL_TOPIC (332) or RPL_NOTOPIC (331), received after the
// bot joins a channel.
type TopicReplyEvent struct {
	Channel string
	Topic   string
	Set     bool
}

// KickEvent is a KICK of Kicked from Channel.
type KickEvent struct {
	Kicker  string
	Channel string
	Kicked  string
	Reason  string
	Self    bool // the bot was kicked
}

// NamesEvent is one RPL_NAMREPLY (353) line. Names keep their prefix
// characters (@, +, ...).
type NamesEvent struct {
	Channel string
	Names   []string
}

// NumericErrorEvent is a numeric error reply that concerns a channel, such as
// ERR_CHANOPRIVSNEEDED (482).
type NumericErrorEvent struct {
	Code    string
	Channel string
	Text    string
}

// ConnectedEvent is a completed registration with the server, after the
// first connect or any reconnect. Channel state from an earlier connection
// no longer holds.
type ConnectedEvent struct {
	Nick string
}

// CTCPEvent is a CTCP request other than ACTION, such as VERSION or PING.
type CTCPEvent struct {
	Sender  string
	Target  string
	Command string // upper-cased
	Args    string
	At      time.Time
}

func (MessageEvent) isEvent()      {}
func (JoinEvent) isEvent()         {}
func (PartEvent) isEvent()         {}
func (QuitEvent) isEvent()         {}
func (NickEvent) isEvent()         {}
func (ModeChangeEvent) isEvent()   {}
func (TopicEvent) isEvent()        {}
func (TopicReplyEvent) isEvent()   {}
func (KickEvent) isEvent()         {}
func (NamesEvent) isEvent()        {}
func (NumericErrorEvent) isEvent() {}
func (ConnectedEvent) isEvent()    {}
func (CTCPEvent) isEvent()         {}

// channelSigils are the prefixes that mark a group channel context.
const channelSigils = "#&"

// IsChannel reports whether name is a channel context rather than a nick.
func IsChannel(name string) bool {
	return name != "" && strings.ContainsRune(channelSigils, rune(name[0]))
}
