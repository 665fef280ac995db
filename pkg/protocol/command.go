package protocol

import (
	"regexp"
	"strings"
)

const (
	// MaxLineLength is the maximum number of bytes accepted between
	// newlines before the input buffer is discarded.
	MaxLineLength = 4096
)

// Command verbs. Matching is case-insensitive on the wire; these are the
// canonical uppercase forms.
const (
	VerbLogin = "LOGIN"
	VerbMsg   = "MSG"
	VerbWho   = "WHO"
	VerbDM    = "DM"
	VerbPing  = "PING"
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,20}$`)

// Command is a single parsed client line: an uppercased verb plus its
// whitespace-separated arguments. Arguments keep their original case.
type Command struct {
	Verb string
	Args []string
}

// Parse tokenizes one input line. The line is trimmed of surrounding
// whitespace (including a trailing \r left by CRLF clients) before
// splitting. Returns ok=false for a line that is empty after trimming;
// such lines carry no command and produce no reply.
func Parse(line string) (Command, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, false
	}

	return Command{
		Verb: strings.ToUpper(fields[0]),
		Args: fields[1:],
	}, true
}

// Rest joins the arguments from index i onward with single spaces.
// Tokenization already collapsed runs of whitespace, so the original
// spacing between words is not preserved beyond the single-space join.
func (c Command) Rest(i int) string {
	if i >= len(c.Args) {
		return ""
	}
	return strings.Join(c.Args[i:], " ")
}

// ValidUsername reports whether name is a legal username:
// 1-20 characters drawn from [a-zA-Z0-9_-]. Usernames are case-sensitive.
func ValidUsername(name string) bool {
	return usernameRegex.MatchString(name)
}
