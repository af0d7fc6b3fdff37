package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/internal/smb/header"
	"github.com/marmos91/dittosmb/internal/telemetry"
	"github.com/marmos91/dittosmb/pkg/smb/compound"
	"github.com/marmos91/dittosmb/pkg/smb/handle"
	"github.com/marmos91/dittosmb/pkg/smb/transport"
	"github.com/marmos91/dittosmb/pkg/smb/wire"
)

// Intent is one filesystem operation expressed as a compound.
type Intent struct {
	// Name labels the operation in logs and traces.
	Name string
	// Path is the share-relative path the compound opens.
	Path string

	// Build assembles a fresh unit. It runs once per attempt and must not
	// reuse commands of an earlier attempt; replay is set when the attempt
	// resends after an alternate-channel reconnect.
	Build func(replay bool) (*compound.Unit, error)

	// Keep hands the handle opened by the unit to the caller when every
	// command succeeded, instead of closing it.
	Keep bool

	// Attrs are added to the compound's trace span.
	Attrs []attribute.KeyValue
}

// Result is the outcome of Execute.
type Result struct {
	// Unit is the unit of the final attempt with every command's outcome.
	Unit *compound.Unit
	// FileID is the kept handle when Intent.Keep was set.
	FileID wire.FileID
	// Attempts counts transmissions, the first one included.
	Attempts int
	// Replayed reports whether the final attempt carried the replay flag.
	Replayed bool
}

// attemptState names the steps of one Execute call for logs.
type attemptState string

const (
	stateBuilt       attemptState = "built"
	stateSent        attemptState = "sent"
	stateReconnected attemptState = "reconnected_during_send"
	stateRebuilding  attemptState = "rebuilding"
	stateResent      attemptState = "resent"
)

// Execute runs the intent until it completes without the transport
// reconnecting under it.
//
// The returned Result is non-nil whenever a response was walked, also when
// a command failed, so callers can inspect per-command outcomes. The error
// is the first command error in unit order or the transport error.
func (s *Session) Execute(ctx context.Context, in Intent) (*Result, error) {
	ctx, span := telemetry.StartCompoundSpan(ctx, in.Name, append([]attribute.KeyValue{
		telemetry.FSPath(in.Path),
		telemetry.SMBSessionID(s.tr.SessionID()),
		telemetry.SMBTreeID(s.tr.TreeID()),
	}, in.Attrs...)...)
	defer span.End()
	op := logger.Operation{Procedure: in.Name, Path: in.Path, SessionID: s.tr.SessionID()}
	if telemetry.IsEnabled() {
		op.TraceID, op.SpanID = telemetry.TraceID(ctx), telemetry.SpanID(ctx)
	}
	ctx = logger.StartOperation(ctx, op)

	start := time.Now()
	replay := false
	for attempt := 1; ; attempt++ {
		u, err := in.Build(replay)
		if err != nil {
			telemetry.RecordError(ctx, err)
			s.observe("", resultBuildError, start)
			return nil, err
		}
		u.SetReplay(replay)
		state := stateBuilt
		if attempt > 1 {
			state = stateResent
		}
		logger.DebugCtx(ctx, "Compound",
			"state", string(state),
			"shape", u.Shape(),
			logger.KeyAttempt, attempt,
			"replay", replay)

		res, err := s.attempt(ctx, in, u, attempt)
		re, reconnected := transport.AsReconnected(err)
		if !reconnected {
			s.finish(ctx, u, err, start)
			return res, err
		}

		replay = re.AlternateChannel
		channel := "same"
		if replay {
			channel = "alternate"
			telemetry.AddEvent(ctx, telemetry.EventReplay, telemetry.SMBAttempt(attempt+1))
		}
		if s.metrics != nil {
			s.metrics.RecordReplay(replay)
		}
		telemetry.AddEvent(ctx, telemetry.EventReconnect,
			telemetry.SMBAttempt(attempt),
			telemetry.SMBReplay(replay),
			attribute.String("smb.channel", channel))
		logger.InfoCtx(ctx, "Transport reconnected under compound",
			"state", string(stateReconnected),
			"shape", u.Shape(),
			logger.KeyChannel, channel,
			logger.KeyAttempt, attempt,
			logger.KeyMaxRetries, s.cfg.MaxReplays)

		if attempt > s.cfg.MaxReplays {
			err = fmt.Errorf("%w after %d attempts: %w", ErrReplayExhausted, attempt, err)
			telemetry.RecordError(ctx, err)
			s.observe(u.Shape(), resultReplayExhausted, start)
			return nil, err
		}
		logger.DebugCtx(ctx, "Compound", "state", string(stateRebuilding), logger.KeyAttempt, attempt+1)
	}
}

// attempt sends u once. Whatever happens, the handle opened by u is
// closed in the single cleanup phase at the end unless it was handed off.
func (s *Session) attempt(ctx context.Context, in Intent, u *compound.Unit, n int) (*Result, error) {
	ctx, span := telemetry.StartSMBSpan(ctx, telemetry.SpanSMBAttempt,
		telemetry.SMBAttempt(n),
		telemetry.SMBReplay(u.Replay()),
		telemetry.SMBLength(u.Len()))
	defer span.End()

	guard := handle.NewGuard(s, s.cfg.CloseTimeout)
	defer s.release(ctx, guard)

	stream, err := s.send(ctx, u)
	if err != nil {
		// Nothing of u was walked: the unit is abandoned, including any
		// lease entry inserted for it.
		u.Discard()
		return nil, err
	}
	telemetry.SetAttributes(ctx, telemetry.SMBMessageID(u.First().MessageID))
	logger.DebugCtx(ctx, "Compound",
		"state", string(stateSent),
		logger.MessageID(u.First().MessageID),
		logger.KeyCredits, s.tr.AvailableCredits())

	obs := &handle.Observer{
		Guard:    guard,
		Path:     in.Path,
		OnHeader: func(c *compound.Command, h *header.Header) { s.grant(c, h) },
		OnCompleted: func(c *compound.Command) {
			if cr, ok := c.Result.(*wire.CreateResponse); ok {
				telemetry.AddEvent(ctx, telemetry.EventHandleArmed, telemetry.SMBFileID(cr.FileID.String()))
			}
			if c.Err != nil {
				telemetry.AddEvent(ctx, telemetry.EventCommandFailed,
					telemetry.SMBCommand(c.Command().String()),
					telemetry.SMBStatus(c.Status.String()))
				logger.DebugCtx(ctx, "Compound command failed",
					logger.KeyCommand, c.Command().String(),
					logger.KeyPosition, c.Position.String(),
					logger.Status(c.Status),
					logger.Err(c.Err))
			}
		},
	}
	err = compound.Walk(stream, u, obs)

	res := &Result{Unit: u, Attempts: n, Replayed: u.Replay()}
	if fid := guard.FileID(); fid.IsResolved() {
		telemetry.SetAttributes(ctx, telemetry.SMBFileID(fid.String()))
	}
	if err == nil && in.Keep {
		res.FileID = guard.Detach()
	}
	return res, err
}

// release is the cleanup phase of an attempt.
func (s *Session) release(ctx context.Context, guard *handle.Guard) {
	outcome := guard.Release(ctx)
	if outcome == handle.OutcomeNone {
		return
	}
	telemetry.AddEvent(ctx, telemetry.EventHandleClosed, attribute.String("outcome", outcome.String()))
	if s.metrics != nil {
		s.metrics.RecordFallbackClose(outcome.String())
	}
}

func (s *Session) finish(ctx context.Context, u *compound.Unit, err error, start time.Time) {
	result := resultSuccess
	switch {
	case errors.Is(err, transport.ErrTimeout):
		result = resultTimeout
	case errors.Is(err, compound.ErrBuildFailed), errors.Is(err, wire.ErrInvalidArgument):
		result = resultBuildError
	case err != nil:
		result = resultError
	}
	if err != nil {
		telemetry.RecordError(ctx, err)
	}
	telemetry.SetAttributes(ctx, telemetry.SMBShape(u.Shape()), telemetry.SMBLength(u.Len()))
	s.observe(u.Shape(), result, start)
}

func (s *Session) observe(shape, result string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveCompound(shape, result, time.Since(start))
	}
}
