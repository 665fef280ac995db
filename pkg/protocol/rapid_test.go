package protocol

import (
	"strings"
	"testing"

	"pgregory.net/rapid"
)

// TestParseNeverPanics feeds arbitrary strings through the parser.
func TestParseNeverPanics(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		line := rapid.String().Draw(t, "line")

		cmd, ok := Parse(line)
		if !ok {
			return
		}

		if cmd.Verb == "" {
			t.Fatalf("parsed command with empty verb from %q", line)
		}
		if cmd.Verb != strings.ToUpper(cmd.Verb) {
			t.Fatalf("verb not uppercased: %q", cmd.Verb)
		}
	})
}

// TestParseVerbCaseInsensitive checks that verb casing never changes the
// parse result.
func TestParseVerbCaseInsensitive(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		verb := rapid.SampledFrom([]string{VerbLogin, VerbMsg, VerbWho, VerbDM, VerbPing}).Draw(t, "verb")
		arg := rapid.StringMatching(`[a-zA-Z0-9_-]{1,20}`).Draw(t, "arg")

		upper, okU := Parse(verb + " " + arg)
		lower, okL := Parse(strings.ToLower(verb) + " " + arg)

		if !okU || !okL {
			t.Fatalf("expected both casings to parse")
		}
		if upper.Verb != lower.Verb {
			t.Fatalf("verb mismatch: %q vs %q", upper.Verb, lower.Verb)
		}
		if upper.Rest(0) != lower.Rest(0) {
			t.Fatalf("args mismatch: %q vs %q", upper.Rest(0), lower.Rest(0))
		}
	})
}

// TestValidUsernameMatchesCharset cross-checks the regexp against a direct
// character scan.
func TestValidUsernameMatchesCharset(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		name := rapid.StringN(0, 30, 30).Draw(t, "name")

		legal := len(name) >= 1 && len(name) <= 20
		for _, r := range name {
			switch {
			case r >= 'a' && r <= 'z':
			case r >= 'A' && r <= 'Z':
			case r >= '0' && r <= '9':
			case r == '_' || r == '-':
			default:
				legal = false
			}
		}
		// Length limits are in bytes; multi-byte runes already failed the
		// charset check above.

		if got := ValidUsername(name); got != legal {
			t.Fatalf("ValidUsername(%q) = %v, want %v", name, got, legal)
		}
	})
}
