package cli

import "strings"

// command is a parsed slash command.
type command struct {
	Name string
	Args string
}

// parseCommand parses a session input line. ok is false for plain text.
func parseCommand(input string) (command, bool) {
	input = strings.TrimSpace(input)
	rest, ok := strings.CutPrefix(input, "/")
	if !ok || rest == "" {
		return command{}, false
	}
	name, args, _ := strings.Cut(rest, " ")
	return command{Name: strings.ToLower(name), Args: strings.TrimSpace(args)}, true
}
