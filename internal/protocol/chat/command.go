package chat

import "strings"

// Verb identifies one of the fixed client commands.
type Verb string

const (
	VerbLogin Verb = "LOGIN"
	VerbMsg   Verb = "MSG"
	VerbWho   Verb = "WHO"
	VerbDM    Verb = "DM"
	VerbPing  Verb = "PING"
)

// Command is a parsed client line: the matched verb and the remaining
// whitespace-separated tokens. Tokens are kept separate so each handler can
// decide how to join them; joining with single spaces yields the normalized
// argument text.
type Command struct {
	Verb Verb
	Args []string
}

// Text returns the arguments starting at index i rejoined with single
// spaces, which is the normalized form of the remaining line.
func (c Command) Text(i int) string {
	if i >= len(c.Args) {
		return ""
	}
	return strings.Join(c.Args[i:], " ")
}

// Parse tokenizes a raw line on whitespace runs and matches the first token
// against the fixed verb set. Matching is exact and case-insensitive: a line
// whose first token merely begins with a verb is not a command.
//
// ok is false when the line is empty or the verb is unrecognized; for a
// non-empty unrecognized line the caller replies ERR unknown-command.
func Parse(line string) (cmd Command, ok bool) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return Command{}, false
	}

	switch Verb(strings.ToUpper(tokens[0])) {
	case VerbLogin:
		cmd.Verb = VerbLogin
	case VerbMsg:
		cmd.Verb = VerbMsg
	case VerbWho:
		cmd.Verb = VerbWho
	case VerbDM:
		cmd.Verb = VerbDM
	case VerbPing:
		cmd.Verb = VerbPing
	default:
		return Command{}, false
	}

	cmd.Args = tokens[1:]
	return cmd, true
}
