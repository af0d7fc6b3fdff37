package client

import (
	"time"

	"github.com/marmos91/dittosmb/internal/smb/types"
)

// Metrics receives engine observations. A nil Metrics disables collection
// with zero overhead; see pkg/metrics/prometheus for the implementation.
type Metrics interface {
	// ObserveCompound records one Execute call. result is one of
	// "success", "error", "timeout", "build_error" or "replay_exhausted".
	ObserveCompound(shape, result string, d time.Duration)

	// RecordCommand records the status of one command reply.
	RecordCommand(cmd types.Command, status types.Status)

	// RecordReplay records a rebuild after a reconnect.
	RecordReplay(alternate bool)

	// RecordFallbackClose records a standalone CLOSE issued for a handle a
	// compound left open. outcome is "closed" or "failed".
	RecordFallbackClose(outcome string)
}

// Compound results reported to Metrics.
const (
	resultSuccess         = "success"
	resultError           = "error"
	resultTimeout         = "timeout"
	resultBuildError      = "build_error"
	resultReplayExhausted = "replay_exhausted"
)
