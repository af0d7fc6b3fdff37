// Package prompt asks for confirmation before destructive CLI actions.
package prompt

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
	"golang.org/x/term"
)

var (
	// ErrAborted is returned when the user presses Ctrl+C at a prompt.
	ErrAborted = errors.New("aborted")

	// ErrNotInteractive is returned when a confirmation is needed but
	// stdin cannot answer it.
	ErrNotInteractive = errors.New("confirmation required but stdin is not a terminal (use --force)")
)

// Confirm asks a yes/no question. An empty answer takes defaultYes.
func Confirm(label string, defaultYes bool) (bool, error) {
	hint := "y/N"
	if defaultYes {
		hint = "Y/n"
	}
	p := promptui.Prompt{
		Label:     fmt.Sprintf("%s [%s]", label, hint),
		IsConfirm: true,
	}

	answer, err := p.Run()
	switch {
	case errors.Is(err, promptui.ErrInterrupt):
		return false, ErrAborted
	case errors.Is(err, promptui.ErrAbort):
		// promptui reports "n" as an abort.
		return false, nil
	case err != nil && answer == "":
		return defaultYes, nil
	case err != nil:
		return false, err
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes", nil
}

// ConfirmWithForce returns true without asking when force is set.
// Otherwise it prompts, or fails with ErrNotInteractive when stdin is not
// a terminal.
func ConfirmWithForce(label string, force bool) (bool, error) {
	if force {
		return true, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, ErrNotInteractive
	}
	return Confirm(label, false)
}
