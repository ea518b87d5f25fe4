// Package modes renders channel MODE changes as readable audit lines.
package modes

import (
	"fmt"
	"strings"
)

// parametrized lists the mode letters that consume one positional target.
const parametrized = "vohqabekIl"

// Translate renders a mode change by setter on channel. modes is the signed
// letter string ("+ov", "+o-v") and targets the positional parameters that
// follow it. Targets are consumed strictly in letter order.
//
// It returns false when modes does not start with a sign or produces no
// clause.
func Translate(setter, channel, modes string, targets []string) (string, bool) {
	if modes == "" || (modes[0] != '+' && modes[0] != '-') {
		return "", false
	}

	var clauses []string
	sign := byte('+')
	next := 0
	for i := 0; i < len(modes); i++ {
		letter := modes[i]
		if letter == '+' || letter == '-' {
			sign = letter
			continue
		}

		target := channel
		if strings.IndexByte(parametrized, letter) >= 0 && next < len(targets) {
			target = targets[next]
			next++
		}
		clauses = append(clauses, clause(sign == '+', letter, target, channel))
	}

	if len(clauses) == 0 {
		return "", false
	}
	return fmt.Sprintf("* %s %s", setter, strings.Join(clauses, "; ")), true
}

func clause(set bool, letter byte, target, channel string) string {
	if target != channel {
		switch letter {
		case 'v':
			if set {
				return "gives voice to " + target
			}
			return "removes voice from " + target
		case 'o':
			if set {
				return "gives channel operator status to " + target
			}
			return "removes channel operator status from " + target
		case 'b':
			if set {
				return "bans " + target
			}
			return "unbans " + target
		case 'k':
			if set {
				return "sets channel key to " + target
			}
			// Removal still names the key the setter supplied.
			return fmt.Sprintf("removes channel key (using %s)", target)
		}
	}

	action, prep := "sets", "to"
	if !set {
		action, prep = "removes", "from"
	}
	if target == channel {
		return fmt.Sprintf("%s mode %c on %s", action, letter, channel)
	}
	return fmt.Sprintf("%s mode %c %s %s", action, letter, prep, target)
}
