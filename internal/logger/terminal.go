package logger

import "golang.org/x/term"

// isTerminal reports whether fd is a terminal, deciding whether text
// output is colored.
func isTerminal(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}
