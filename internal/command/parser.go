package command

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// sendPattern matches a user mention, an amount and an optional trailing
	// note, e.g. `<@U123|alice> 5.00 thanks for lunch`. The platform delivers
	// mentions either escaped with the display name (`<@U123|alice>`) or bare
	// (`<@U123>`).
	sendPattern = regexp.MustCompile(`^<@([UW][A-Z0-9]+)(?:\|([^>]+))?>\s+(\d+(?:\.\d+)?)(?:\s+(.+))?$`)

	// registerEscapedPattern matches the register keyword followed by a
	// platform-escaped link, `<https://host|host>` or `<mailto:a@b|a@b>`,
	// and an optional secret.
	registerEscapedPattern = regexp.MustCompile(`(?i)^register\s+<(?:mailto:)?([^|>\s]+)(?:\|[^>]*)?>(?:\s+(\S+))?$`)

	// registerPlainPattern matches the register keyword with an unescaped
	// locator and an optional secret.
	registerPlainPattern = regexp.MustCompile(`(?i)^register\s+(\S+)(?:\s+(\S+))?$`)

	infoPattern = regexp.MustCompile(`(?i)^info$`)
)

type rule struct {
	name    string
	pattern *regexp.Regexp
	extract func(m []string) (Command, bool)
}

// rules are evaluated top to bottom; the first structural match wins. The
// order is load-bearing: escaped register links also satisfy the plain token
// pattern, so the escaped rule must come first.
var rules = []rule{
	{name: "send", pattern: sendPattern, extract: extractSend},
	{name: "register-escaped", pattern: registerEscapedPattern, extract: extractRegister},
	{name: "register-plain", pattern: registerPlainPattern, extract: extractRegister},
	{name: "info", pattern: infoPattern, extract: func([]string) (Command, bool) { return Info{}, true }},
}

// Parse classifies raw command text. It is pure and never fails: text that
// matches no rule yields Help.
func Parse(text string) Command {
	text = strings.TrimSpace(text)
	for _, r := range rules {
		m := r.pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if cmd, ok := r.extract(m); ok {
			return cmd
		}
	}
	return Help{}
}

func extractSend(m []string) (Command, bool) {
	amount, err := decimal.NewFromString(m[3])
	if err != nil || amount.IsNegative() {
		return nil, false
	}
	return Send{
		RecipientID:   m[1],
		RecipientName: strings.TrimSpace(m[2]),
		Amount:        amount,
		Note:          strings.TrimSpace(m[4]),
	}, true
}

func extractRegister(m []string) (Command, bool) {
	return Register{
		Locator: strings.TrimSpace(m[1]),
		Secret:  strings.TrimSpace(m[2]),
	}, true
}
