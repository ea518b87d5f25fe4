// Package roster tracks which channels the bot is in and who is in them,
// with the privilege level each member holds.
package roster

import (
	"sort"
	"strings"

	"github.com/dalnet/chanctl/internal/events"
	"github.com/dalnet/chanctl/internal/storage"
)

// prefixModes maps NAMES prefix characters to the mode letter they stand for.
var prefixModes = map[byte]byte{
	'~': 'q',
	'&': 'a',
	'@': 'o',
	'%': 'h',
	'+': 'v',
}

// flagOrder is the order privilege flags are rendered in.
const flagOrder = "vhoaq"

// Roster is not safe for concurrent use. The driver goroutine owns it.
type Roster struct {
	channels map[string]map[string]map[byte]bool // channel -> nick -> modes
	self     func() string
}

// New creates an empty Roster. self returns the bot's current nick and is
// used to recognise the bot leaving a channel.
func New(self func() string) *Roster {
	return &Roster{
		channels: make(map[string]map[string]map[byte]bool),
		self:     self,
	}
}

// Apply updates the roster from an event. It returns the channels a quitting
// nick was in, resolved before the nick is removed.
func (r *Roster) Apply(ev events.Event) []string {
	switch e := ev.(type) {
	case events.NamesEvent:
		members := r.channel(e.Channel)
		for _, name := range e.Names {
			nick, modes := splitPrefix(name)
			if nick == "" {
				continue
			}
			members[nick] = modes
		}
	case events.JoinEvent:
		if e.Self || strings.EqualFold(e.Nick, r.self()) {
			// NAMES follows our own join; start from scratch.
			r.channels[e.Channel] = make(map[string]map[byte]bool)
		}
		r.channel(e.Channel)[e.Nick] = map[byte]bool{}
	case events.PartEvent:
		r.leave(e.Channel, e.Nick, e.Self)
	case events.KickEvent:
		r.leave(e.Channel, e.Kicked, e.Self)
	case events.QuitEvent:
		chans := r.ChannelsOf(e.Nick)
		for _, ch := range chans {
			delete(r.channels[ch], e.Nick)
		}
		return chans
	case events.NickEvent:
		for _, members := range r.channels {
			if modes, ok := members[e.Old]; ok {
				delete(members, e.Old)
				members[e.New] = modes
			}
		}
	case events.ModeChangeEvent:
		r.applyModes(e)
	}
	return nil
}

func (r *Roster) channel(name string) map[string]map[byte]bool {
	members, ok := r.channels[name]
	if !ok {
		members = make(map[string]map[byte]bool)
		r.channels[name] = members
	}
	return members
}

func (r *Roster) leave(channel, nick string, self bool) {
	if self || strings.EqualFold(nick, r.self()) {
		delete(r.channels, channel)
		return
	}
	if members, ok := r.channels[channel]; ok {
		delete(members, nick)
	}
}

// applyModes walks a mode string the same way the translator does and keeps
// only the privilege letters.
func (r *Roster) applyModes(e events.ModeChangeEvent) {
	members, ok := r.channels[e.Channel]
	if !ok || e.Modes == "" {
		return
	}
	set := true
	next := 0
	for i := 0; i < len(e.Modes); i++ {
		letter := e.Modes[i]
		switch letter {
		case '+', '-':
			set = letter == '+'
			continue
		}
		if !strings.ContainsRune("vohqabekIl", rune(letter)) {
			continue
		}
		if next >= len(e.Targets) {
			return
		}
		target := e.Targets[next]
		next++
		if !strings.ContainsRune(flagOrder, rune(letter)) {
			continue
		}
		modes, ok := members[target]
		if !ok {
			continue
		}
		if set {
			modes[letter] = true
		} else {
			delete(modes, letter)
		}
	}
}

// splitPrefix separates NAMES prefixes from the nick. Multiple prefixes
// appear with multi-prefix servers.
func splitPrefix(name string) (string, map[byte]bool) {
	modes := map[byte]bool{}
	i := 0
	for i < len(name) {
		m, ok := prefixModes[name[i]]
		if !ok {
			break
		}
		modes[m] = true
		i++
	}
	return name[i:], modes
}

// ChannelsOf returns the tracked channels nick is in, sorted.
func (r *Roster) ChannelsOf(nick string) []string {
	var out []string
	for ch, members := range r.channels {
		if _, ok := members[nick]; ok {
			out = append(out, ch)
		}
	}
	sort.Strings(out)
	return out
}

// Channels returns every tracked channel, sorted.
func (r *Roster) Channels() []string {
	out := make([]string, 0, len(r.channels))
	for ch := range r.channels {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

// Snapshot returns the members of channel ordered by nick, with flags
// rendered as "+v +h +o +a +q" for the modes each one holds.
func (r *Roster) Snapshot(channel string) []storage.Member {
	members := r.channels[channel]
	out := make([]storage.Member, 0, len(members))
	for nick, modes := range members {
		out = append(out, storage.Member{Nick: nick, Flags: renderFlags(modes)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Nick < out[j].Nick })
	return out
}

func renderFlags(modes map[byte]bool) string {
	var parts []string
	for i := 0; i < len(flagOrder); i++ {
		if modes[flagOrder[i]] {
			parts = append(parts, "+"+string(flagOrder[i]))
		}
	}
	return strings.Join(parts, " ")
}

// Forget drops every tracked channel. The driver calls it when the client
// registers again after a reconnect.
func (r *Roster) Forget() {
	r.channels = make(map[string]map[string]map[byte]bool)
}
