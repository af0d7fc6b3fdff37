package prompt

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/term"
)

func TestConfirmWithForceSkipsPrompt(t *testing.T) {
	ok, err := ConfirmWithForce("Delete a.txt?", true)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConfirmWithForceRefusesWithoutTerminal(t *testing.T) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		t.Skip("stdin is a terminal")
	}
	ok, err := ConfirmWithForce("Delete a.txt?", false)
	assert.ErrorIs(t, err, ErrNotInteractive)
	assert.False(t, ok)
}
