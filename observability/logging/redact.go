package logging

import (
	"log/slog"
	"strings"
	"unicode/utf8"
)

const partyKeep = 6

// ShortParty abbreviates a principal identifier to its leading and trailing
// characters, e.g. "SP2J6Z...V9EJ7". Short identifiers pass through.
func ShortParty(id string) string {
	id = strings.TrimSpace(id)
	if utf8.RuneCountInString(id) <= 2*partyKeep+3 {
		return id
	}
	runes := []rune(id)
	return string(runes[:partyKeep]) + "..." + string(runes[len(runes)-partyKeep+1:])
}

// Party returns a slog attribute holding the abbreviated principal.
// Unassigned parties are logged as "unassigned".
func Party(key, id string) slog.Attr {
	if strings.TrimSpace(id) == "" {
		return slog.String(key, "unassigned")
	}
	return slog.String(key, ShortParty(id))
}
