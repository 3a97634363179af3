// Package identity maps raw in-game display names to stable identity keys.
package identity

import (
	"regexp"
	"strings"
)

// LegacyPrefix is the token older name rules left at the front of stored keys
const LegacyPrefix = "player "

var (
	clanTagPattern      = regexp.MustCompile(`\[.*?\]`)
	playerPrefixPattern = regexp.MustCompile(`(?i)^player\s+`)
)

// Normalize returns the identity key for a raw display name: bracketed clan
// tags removed, any leading "player " token removed, trimmed and lowercased.
// Normalize(Normalize(x)) == Normalize(x) for every input.
func Normalize(raw string) string {
	name := clanTagPattern.ReplaceAllString(raw, "")
	name = strings.TrimSpace(name)
	for playerPrefixPattern.MatchString(name) {
		name = strings.TrimSpace(playerPrefixPattern.ReplaceAllString(name, ""))
	}
	return strings.ToLower(name)
}

// Equal reports whether two raw names resolve to the same identity
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// StripLegacyPrefix returns the key without the literal legacy prefix and
// whether the prefix was present
func StripLegacyPrefix(key string) (string, bool) {
	if !strings.HasPrefix(key, LegacyPrefix) {
		return key, false
	}
	return strings.TrimSpace(key[len(LegacyPrefix):]), true
}
