// Package ratelimit throttles message-flooding senders with two sliding
// windows and a temporary ban.
//
// A Limiter is not safe for concurrent use; it is owned by the driver
// goroutine, which is the only caller.
package ratelimit

import "time"

// Config holds the window sizes, thresholds and ban length.
type Config struct {
	ShortWindow time.Duration
	ShortLimit  int
	LongWindow  time.Duration
	LongLimit   int
	BanDuration time.Duration
}

// DefaultConfig returns 10 messages per 10s, 50 per 60s, 3 minute bans.
func DefaultConfig() Config {
	return Config{
		ShortWindow: 10 * time.Second,
		ShortLimit:  10,
		LongWindow:  60 * time.Second,
		LongLimit:   50,
		BanDuration: 180 * time.Second,
	}
}

// Decision is the outcome of an admission check.
type Decision int

const (
	// Allow admits the message.
	Allow Decision = iota
	// RejectBanned drops a message from a sender with an active ban.
	RejectBanned
	// RejectFlood drops the message that pushed the sender over a threshold
	// and started a ban.
	RejectFlood
)

// Allowed reports whether the message may be processed further.
func (d Decision) Allowed() bool { return d == Allow }

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case RejectBanned:
		return "banned"
	case RejectFlood:
		return "flood"
	}
	return "unknown"
}

// Limiter keeps a per-sender activity window and ban expiry.
type Limiter struct {
	cfg     Config
	windows map[string][]time.Time
	bans    map[string]time.Time
}

// New creates a Limiter. Zero fields in cfg fall back to DefaultConfig.
func New(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.ShortWindow <= 0 {
		cfg.ShortWindow = def.ShortWindow
	}
	if cfg.ShortLimit <= 0 {
		cfg.ShortLimit = def.ShortLimit
	}
	if cfg.LongWindow <= 0 {
		cfg.LongWindow = def.LongWindow
	}
	if cfg.LongLimit <= 0 {
		cfg.LongLimit = def.LongLimit
	}
	if cfg.BanDuration <= 0 {
		cfg.BanDuration = def.BanDuration
	}
	return &Limiter{
		cfg:     cfg,
		windows: make(map[string][]time.Time),
		bans:    make(map[string]time.Time),
	}
}

// Admit records a message from sender at now and decides whether it passes.
// Thresholds are strict: exactly ShortLimit messages in ShortWindow pass, the
// next one starts a ban.
func (l *Limiter) Admit(sender string, now time.Time) Decision {
	if expiry, banned := l.bans[sender]; banned {
		if !now.After(expiry) {
			return RejectBanned
		}
		delete(l.bans, sender)
		delete(l.windows, sender)
	}

	window := append(l.windows[sender], now)
	window = prune(window, now.Add(-l.cfg.LongWindow))
	l.windows[sender] = window

	shortCutoff := now.Add(-l.cfg.ShortWindow)
	shortCount := 0
	for _, ts := range window {
		if ts.After(shortCutoff) {
			shortCount++
		}
	}
	longCount := len(window)

	if shortCount > l.cfg.ShortLimit || longCount > l.cfg.LongLimit {
		l.bans[sender] = now.Add(l.cfg.BanDuration)
		return RejectFlood
	}
	return Allow
}

// prune drops leading entries older than cutoff. Entries exactly at cutoff
// are kept.
func prune(window []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(window) && window[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return window
	}
	return append(window[:0], window[i:]...)
}

// Banned reports whether sender has an unexpired ban at now.
func (l *Limiter) Banned(sender string, now time.Time) bool {
	expiry, ok := l.bans[sender]
	return ok && !now.After(expiry)
}

// ActiveBans counts unexpired bans at now.
func (l *Limiter) ActiveBans(now time.Time) int {
	n := 0
	for _, expiry := range l.bans {
		if !now.After(expiry) {
			n++
		}
	}
	return n
}

// Sweep forgets expired bans and windows with no entry inside the long
// window. It returns the number of senders dropped.
func (l *Limiter) Sweep(now time.Time) int {
	dropped := 0
	for sender, expiry := range l.bans {
		if now.After(expiry) {
			delete(l.bans, sender)
			delete(l.windows, sender)
			dropped++
		}
	}
	cutoff := now.Add(-l.cfg.LongWindow)
	for sender, window := range l.windows {
		if _, banned := l.bans[sender]; banned {
			continue
		}
		if len(window) == 0 || window[len(window)-1].Before(cutoff) {
			delete(l.windows, sender)
			dropped++
		}
	}
	return dropped
}

// counts returns the current short and long counts for sender, for tests.
func (l *Limiter) counts(sender string, now time.Time) (short, long int) {
	window := l.windows[sender]
	shortCutoff := now.Add(-l.cfg.ShortWindow)
	longCutoff := now.Add(-l.cfg.LongWindow)
	for _, ts := range window {
		if ts.Before(longCutoff) {
			continue
		}
		long++
		if ts.After(shortCutoff) {
			short++
		}
	}
	return short, long
}
