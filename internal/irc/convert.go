package irc

import (
	"strings"
	"time"

	"github.com/ergochat/irc-go/ircmsg"

	"github.com/dalnet/chanctl/internal/events"
)

// numericErrors are the error replies shaped "<me> <channel> :<text>" that
// report a failed channel command.
var numericErrors = map[string]bool{
	"404": true, // ERR_CANNOTSENDTOCHAN
	"442": true, // ERR_NOTONCHANNEL
	"471": true, // ERR_CHANNELISFULL
	"473": true, // ERR_INVITEONLYCHAN
	"474": true, // ERR_BANNEDFROMCHAN
	"475": true, // ERR_BADCHANNELKEY
	"482": true, // ERR_CHANOPRIVSNEEDED
}

// convert turns a protocol message into a typed event. self is the bot's
// current nick. It returns false for messages that carry no event.
func convert(m ircmsg.Message, self string, now time.Time) (events.Event, bool) {
	p := m.Params
	switch m.Command {
	case "PRIVMSG":
		if len(p) < 2 {
			return nil, false
		}
		ev := events.MessageEvent{Sender: m.Nick(), Target: p[0], Text: p[1], At: now}
		if ctcp, text, ok := splitCTCP(p[1]); ok {
			if ctcp != "ACTION" {
				return events.CTCPEvent{Sender: m.Nick(), Target: p[0], Command: ctcp, Args: text, At: now}, true
			}
			ev.Action = true
			ev.Text = text
		}
		return ev, true

	case "JOIN":
		if len(p) < 1 {
			return nil, false
		}
		nick := m.Nick()
		return events.JoinEvent{Nick: nick, Channel: p[0], Self: strings.EqualFold(nick, self)}, true

	case "PART":
		if len(p) < 1 {
			return nil, false
		}
		nick := m.Nick()
		return events.PartEvent{Nick: nick, Channel: p[0], Reason: param(p, 1), Self: strings.EqualFold(nick, self)}, true

	case "QUIT":
		return events.QuitEvent{Nick: m.Nick(), Reason: param(p, 0)}, true

	case "NICK":
		if len(p) < 1 {
			return nil, false
		}
		return events.NickEvent{Old: m.Nick(), New: p[0]}, true

	case "MODE":
		// User modes on the bot itself are not channel events.
		if len(p) < 2 || !events.IsChannel(p[0]) {
			return nil, false
		}
		return events.ModeChangeEvent{Setter: m.Nick(), Channel: p[0], Modes: p[1], Targets: append([]string(nil), p[2:]...)}, true

	case "TOPIC":
		if len(p) < 1 {
			return nil, false
		}
		return events.TopicEvent{Setter: m.Nick(), Channel: p[0], Topic: param(p, 1)}, true

	case "KICK":
		if len(p) < 2 {
			return nil, false
		}
		return events.KickEvent{
			Kicker:  m.Nick(),
			Channel: p[0],
			Kicked:  p[1],
			Reason:  param(p, 2),
			Self:    strings.EqualFold(p[1], self),
		}, true

	case "353":
		// <me> <symbol> <channel> :<names>
		if len(p) < 4 {
			return nil, false
		}
		return events.NamesEvent{Channel: p[2], Names: strings.Fields(p[3])}, true

	case "332":
		// <me> <channel> :<topic>
		if len(p) < 3 {
			return nil, false
		}
		return events.TopicReplyEvent{Channel: p[1], Topic: p[2], Set: true}, true

	case "331":
		if len(p) < 2 {
			return nil, false
		}
		return events.TopicReplyEvent{Channel: p[1]}, true
	}

	if numericErrors[m.Command] {
		if len(p) < 3 {
			return nil, false
		}
		return events.NumericErrorEvent{Code: m.Command, Channel: p[1], Text: p[len(p)-1]}, true
	}
	return nil, false
}

func param(p []string, i int) string {
	if i < len(p) {
		return p[i]
	}
	return ""
}

// splitCTCP unwraps a "\x01VERB text\x01" message. The closing delimiter is
// optional, as some clients omit it.
func splitCTCP(text string) (string, string, bool) {
	if len(text) < 2 || text[0] != '\x01' {
		return "", "", false
	}
	body := strings.TrimSuffix(text[1:], "\x01")
	verb, rest, _ := strings.Cut(body, " ")
	return strings.ToUpper(verb), rest, true
}
