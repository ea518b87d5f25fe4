package queue

import (
	"errors"
	"strings"
	"unicode"

	"github.com/dalnet/chanctl/internal/events"
	"github.com/dalnet/chanctl/internal/sanitize"
)

// Parse errors. A command failing to parse is dropped and marked sent.
var (
	ErrMissingArgument = errors.New("missing argument")
	ErrInvalidChannel  = errors.New("invalid channel name")
	ErrNotChannel      = errors.New("command needs a channel context")
)

// Request is one pending command as seen by a verb parser.
type Request struct {
	Context string // stored target of the command; always wins over arguments
	Args    string // text following the verb
	Self    string // current bot nick
}

// ActionKind selects the client call an Action maps to.
type ActionKind int

const (
	ActRaw ActionKind = iota
	ActMessage
	ActAction
	ActJoin
	ActNick
)

// Action is one call against the protocol client.
type Action struct {
	Kind   ActionKind
	Target string
	Text   string
	Tokens []string
}

// Audit is the record a command writes itself. Commands whose effect is
// echoed back by the server (MODE, TOPIC, KICK) leave it nil and are logged
// when the echo arrives.
type Audit struct {
	Context string
	Content string
}

// Plan is the validated result of parsing a command.
type Plan struct {
	Actions    []Action
	Audit      *Audit
	DirectChat string
}

type verb struct {
	name        string
	channelOnly bool
	parse       func(Request) (Plan, error)
}

var registry = map[string]verb{
	"/mode":     {name: "/mode", channelOnly: true, parse: parseMode},
	"/topic":    {name: "/topic", channelOnly: true, parse: parseTopic},
	"/kick":     {name: "/kick", channelOnly: true, parse: parseKick},
	"/ban":      {name: "/ban", channelOnly: true, parse: parseBan("+b")},
	"/unban":    {name: "/unban", channelOnly: true, parse: parseBan("-b")},
	"/password": {name: "/password", channelOnly: true, parse: parsePassword},
	"/msg":      {name: "/msg", parse: parseMsg},
	"/me":       {name: "/me", parse: parseMe},
	"/nick":     {name: "/nick", parse: parseNick},
	"/join":     {name: "/join", parse: parseJoin},
}

var plain = verb{name: "message", parse: parsePlain}

// lookup resolves the verb of a command text. Unknown first tokens make the
// whole text a plain message.
func lookup(text string) (verb, string) {
	head, rest := splitFirst(text)
	if v, ok := registry[strings.ToLower(head)]; ok {
		return v, rest
	}
	return plain, text
}

// Parse validates a command text against its stored context.
func Parse(context, text, self string) (string, Plan, error) {
	v, args := lookup(text)
	if v.channelOnly && !events.IsChannel(context) {
		return v.name, Plan{}, ErrNotChannel
	}
	plan, err := v.parse(Request{Context: context, Args: args, Self: self})
	return v.name, plan, err
}

// splitFirst returns the first whitespace-delimited token of s and the
// remainder with leading whitespace removed.
func splitFirst(s string) (string, string) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimLeftFunc(s[i:], unicode.IsSpace)
}

// skipChannel drops an optional leading channel token. The stored context is
// used regardless of what the producer wrote there.
func skipChannel(args string) string {
	head, rest := splitFirst(args)
	if events.IsChannel(head) {
		return rest
	}
	return args
}

func raw(tokens ...string) Action {
	return Action{Kind: ActRaw, Tokens: tokens}
}

func parseMode(req Request) (Plan, error) {
	fields := strings.Fields(skipChannel(req.Args))
	if len(fields) == 0 {
		return Plan{}, ErrMissingArgument
	}
	modes := sanitize.Arg(fields[0])
	if modes == "" {
		return Plan{}, ErrMissingArgument
	}
	tokens := []string{"MODE", req.Context, modes}
	for _, f := range fields[1:] {
		// Targets pair with mode letters by position; dropping one would
		// hand the following modes to the wrong members.
		t := sanitize.Arg(f)
		if t == "" {
			return Plan{}, ErrMissingArgument
		}
		tokens = append(tokens, t)
	}
	return Plan{Actions: []Action{raw(tokens...)}}, nil
}

func parseTopic(req Request) (Plan, error) {
	topic := sanitize.Arg(strings.TrimSpace(skipChannel(req.Args)))
	return Plan{Actions: []Action{raw("TOPIC", req.Context, topic)}}, nil
}

func parseKick(req Request) (Plan, error) {
	head, rest := splitFirst(skipChannel(req.Args))
	nick := sanitize.Arg(head)
	if nick == "" {
		return Plan{}, ErrMissingArgument
	}
	tokens := []string{"KICK", req.Context, nick}
	if reason := sanitize.Arg(strings.TrimSpace(rest)); reason != "" {
		tokens = append(tokens, reason)
	}
	return Plan{Actions: []Action{raw(tokens...)}}, nil
}

func parseBan(change string) func(Request) (Plan, error) {
	return func(req Request) (Plan, error) {
		head, _ := splitFirst(skipChannel(req.Args))
		target := sanitize.Arg(head)
		if target == "" {
			return Plan{}, ErrMissingArgument
		}
		return Plan{Actions: []Action{raw("MODE", req.Context, change, banMask(target))}}, nil
	}
}

// banMask expands a bare nick to nick!*@*; full masks pass through.
func banMask(target string) string {
	if strings.ContainsAny(target, "!@") {
		return target
	}
	return target + "!*@*"
}

func parsePassword(req Request) (Plan, error) {
	head, _ := splitFirst(skipChannel(req.Args))
	key := sanitize.Arg(head)
	if key == "" {
		return Plan{}, ErrMissingArgument
	}
	return Plan{Actions: []Action{raw("MODE", req.Context, "+k", key)}}, nil
}

func parseMsg(req Request) (Plan, error) {
	head, rest := splitFirst(req.Args)
	target := sanitize.Arg(head)
	text := sanitize.Arg(strings.TrimSpace(rest))
	if target == "" || text == "" {
		return Plan{}, ErrMissingArgument
	}
	return Plan{
		Actions:    []Action{{Kind: ActMessage, Target: target, Text: text}},
		Audit:      &Audit{Context: target, Content: text},
		DirectChat: target,
	}, nil
}

func parseMe(req Request) (Plan, error) {
	text := sanitize.Arg(strings.TrimSpace(req.Args))
	if text == "" {
		return Plan{}, ErrMissingArgument
	}
	return Plan{
		Actions: []Action{{Kind: ActAction, Target: req.Context, Text: text}},
		Audit:   &Audit{Context: req.Context, Content: "* " + req.Self + " " + text},
	}, nil
}

func parseNick(req Request) (Plan, error) {
	head, _ := splitFirst(req.Args)
	nick := sanitize.Arg(head)
	if nick == "" {
		return Plan{}, ErrMissingArgument
	}
	return Plan{
		Actions: []Action{{Kind: ActNick, Target: nick}},
		Audit:   &Audit{Context: req.Context, Content: "* Changed nick to " + nick},
	}, nil
}

func parseJoin(req Request) (Plan, error) {
	head, _ := splitFirst(req.Args)
	channel := sanitize.Arg(head)
	if channel == "" {
		return Plan{}, ErrMissingArgument
	}
	if !events.IsChannel(channel) {
		return Plan{}, ErrInvalidChannel
	}
	return Plan{
		Actions: []Action{{Kind: ActJoin, Target: channel}},
		Audit:   &Audit{Context: req.Context, Content: "* Joined " + channel},
	}, nil
}

func parsePlain(req Request) (Plan, error) {
	text := sanitize.Arg(req.Args)
	if strings.TrimSpace(text) == "" {
		return Plan{}, ErrMissingArgument
	}
	return Plan{
		Actions: []Action{{Kind: ActMessage, Target: req.Context, Text: text}},
		Audit:   &Audit{Context: req.Context, Content: text},
	}, nil
}
