package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColorTextHandlerHighlightsFailures(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewColorTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}, true))

	l.Info("reply", KeyCommand, "CLOSE", KeyStatus, "STATUS_FILE_CLOSED")
	out := buf.String()
	assert.Contains(t, out, colorRed+"STATUS_FILE_CLOSED"+colorReset)
	assert.NotContains(t, out, colorRed+"CLOSE"+colorReset)

	buf.Reset()
	l.Info("reply", KeyStatus, "STATUS_SUCCESS")
	assert.NotContains(t, buf.String(), colorRed+"STATUS_SUCCESS")

	buf.Reset()
	l.Warn("fallback close failed", KeyError, "timeout")
	assert.Contains(t, buf.String(), colorRed+"timeout"+colorReset)
}

func TestColorTextHandlerPlain(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewColorTextHandler(&buf, nil, false))

	l.Info("reply", KeyStatus, "STATUS_ACCESS_DENIED", KeyCount, 3)
	out := buf.String()
	assert.Contains(t, out, "[INFO] reply status=STATUS_ACCESS_DENIED count=3")
	assert.NotContains(t, out, "\033[")
}

func TestColorTextHandlerDropsBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewColorTextHandler(&buf, nil, false))

	l.Debug("hidden")
	assert.Empty(t, buf.String())
}

func TestColorTextHandlerGroupsAndBoundAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewColorTextHandler(&buf, nil, false))

	l.With(KeySessionID, "0x11").WithGroup("lease").Info("break", "from", "RH", "to", "R")
	assert.Contains(t, buf.String(), "[INFO] break session_id=0x11 lease.from=RH lease.to=R")

	buf.Reset()
	l.Info("reply", slog.Group("credits", slog.Int("granted", 8)))
	assert.Contains(t, buf.String(), "credits.granted=8")
}

func TestColorTextHandlerQuotesLineBreaks(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewColorTextHandler(&buf, nil, false))

	l.Info("target", "name", "a\nb")
	assert.Contains(t, buf.String(), `name="a\nb"`)
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("\n")))
}
