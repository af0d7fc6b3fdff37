// Package client runs filesystem operations as SMB2 compound requests.
//
// Every operation is an Intent executed by a Session: the intent builds a
// compound unit, the session sends it, walks the reply and closes whatever
// handle the unit left open. When the transport reconnects under an
// outstanding compound the unit is discarded and rebuilt from the intent,
// flagged as a replay when the reconnect moved to an alternate channel.
package client

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/internal/smb/header"
	"github.com/marmos91/dittosmb/internal/smb/types"
	"github.com/marmos91/dittosmb/internal/telemetry"
	"github.com/marmos91/dittosmb/pkg/smb/compound"
	"github.com/marmos91/dittosmb/pkg/smb/handle"
	"github.com/marmos91/dittosmb/pkg/smb/lease"
	"github.com/marmos91/dittosmb/pkg/smb/prefetch"
	"github.com/marmos91/dittosmb/pkg/smb/transport"
	"github.com/marmos91/dittosmb/pkg/smb/wire"
)

var (
	// ErrReplayExhausted is returned when the transport kept reconnecting
	// under a compound after MaxReplays rebuilds.
	ErrReplayExhausted = errors.New("client: replays exhausted")

	// ErrNotSymlink is returned by ReadSymlink for a path that is not a
	// symbolic link.
	ErrNotSymlink = errors.New("client: not a symbolic link")
)

// Session executes compounds over one transport.
type Session struct {
	tr              transport.Transport
	cfg             Config
	leases          *lease.Table
	metrics         Metrics
	prefetchMetrics prefetch.Metrics

	// reparseDowngraded latches the first time the server rejects
	// FSCTL_GET_REPARSE_POINT; symlinks are then read from the
	// STOPPED_ON_SYMLINK error context.
	reparseDowngraded atomic.Bool

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ handle.Closer = (*Session)(nil)

// Option configures a Session.
type Option func(*Session)

// WithLeaseTable replaces the process-wide lease table.
func WithLeaseTable(t *lease.Table) Option {
	return func(s *Session) { s.leases = t }
}

// WithMetrics sets the engine metrics.
func WithMetrics(m Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithPrefetchMetrics sets the metrics of prefetch batches.
func WithPrefetchMetrics(m prefetch.Metrics) Option {
	return func(s *Session) { s.prefetchMetrics = m }
}

// NewSession returns a session over tr and starts handling its lease
// break notifications.
func NewSession(tr transport.Transport, cfg Config, opts ...Option) *Session {
	cfg.applyDefaults()
	s := &Session{
		tr:     tr,
		cfg:    cfg,
		leases: lease.Default(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.wg.Add(1)
	go s.watchNotifications()
	return s
}

// Config returns the effective tunables.
func (s *Session) Config() Config { return s.cfg }

// Transport returns the underlying transport.
func (s *Session) Transport() transport.Transport { return s.tr }

// Leases returns the lease table used by the session.
func (s *Session) Leases() *lease.Table { return s.leases }

// ReparseDowngraded reports whether symlinks are read through the
// STOPPED_ON_SYMLINK fallback.
func (s *Session) ReparseDowngraded() bool { return s.reparseDowngraded.Load() }

// Close stops lease break handling. The transport stays open.
func (s *Session) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	s.wg.Wait()
	return nil
}

// CloseHandle implements handle.Closer with a standalone CLOSE. It is not
// replayed: after a reconnect the handle is gone or owned by the durable
// reconnect logic.
func (s *Session) CloseHandle(ctx context.Context, fid wire.FileID) error {
	ctx, span := telemetry.StartSMBSpan(ctx, telemetry.SpanSMBFallbackClose, telemetry.SMBFileID(fid.String()))
	defer span.End()

	u, err := compound.Start(&wire.CloseRequest{FileID: fid})
	if err != nil {
		return err
	}
	stream, err := s.send(ctx, u)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return err
	}
	if err := compound.Walk(stream, u, s.creditObserver()); err != nil {
		telemetry.RecordError(ctx, err)
		return err
	}
	return nil
}

// send marshals u and waits for its response.
func (s *Session) send(ctx context.Context, u *compound.Unit) (*transport.ResponseStream, error) {
	data, err := u.Marshal(s.tr, s.tr.SessionID(), s.tr.TreeID())
	if err != nil {
		return nil, err
	}
	msg := &transport.Message{Data: data, MessageIDs: u.MessageIDs()}
	p, err := s.tr.Submit(ctx, msg, nil)
	if err != nil {
		return nil, err
	}
	stream, err := transport.Await(ctx, p, s.cfg.RequestTimeout)
	if err != nil {
		p.Abandon(s.tr)
	}
	return stream, err
}

func (s *Session) creditObserver() compound.Observer {
	return compound.ObserverFuncs{
		OnHeader: func(c *compound.Command, h *header.Header) { s.grant(c, h) },
	}
}

// grant returns the credits of a located reply and records its status.
func (s *Session) grant(c *compound.Command, h *header.Header) {
	s.tr.GrantCredits(h.Credits)
	if s.metrics != nil {
		s.metrics.RecordCommand(c.Command(), h.Status)
	}
}

// watchNotifications applies lease breaks to the table and acknowledges
// the ones the server waits for.
func (s *Session) watchNotifications() {
	defer s.wg.Done()
	notes := s.tr.Notifications()
	for {
		select {
		case <-s.done:
			return
		case n, ok := <-notes:
			if !ok {
				return
			}
			if n.LeaseBreak != nil {
				s.handleLeaseBreak(n.LeaseBreak)
			}
		}
	}
}

func (s *Session) handleLeaseBreak(n *wire.LeaseBreakNotification) {
	ctx, span := telemetry.StartSMBSpan(context.Background(), telemetry.SpanSMBLeaseBreak,
		telemetry.SMBLeaseKey(n.Key),
		telemetry.SMBLeaseState(n.NewLeaseState),
		telemetry.SMBEpoch(n.NewEpoch))
	defer span.End()

	applied := s.leases.Break(n.Key, n.NewLeaseState, n.NewEpoch)
	if !n.AckRequired() {
		return
	}
	if !applied {
		logger.DebugCtx(ctx, "Acknowledging break of untracked lease", logger.KeyLeaseKey, n.Key.String())
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()
	if err := s.ackLeaseBreak(ctx, n); err != nil {
		telemetry.RecordError(ctx, err)
		logger.WarnCtx(ctx, "Lease break acknowledgment failed",
			logger.KeyLeaseKey, n.Key.String(),
			logger.KeyLeaseState, n.NewLeaseState,
			logger.KeyError, err)
	}
}

func (s *Session) ackLeaseBreak(ctx context.Context, n *wire.LeaseBreakNotification) error {
	u, err := compound.Start(&wire.LeaseBreakAck{Key: n.Key, LeaseState: n.NewLeaseState})
	if err != nil {
		return err
	}
	stream, err := s.send(ctx, u)
	if err != nil {
		return err
	}
	return compound.Walk(stream, u, s.creditObserver())
}

// commandStatus returns the status of a command error, if the error is
// the server's answer to cmd.
func commandStatus(err error, cmd types.Command) (types.Status, bool) {
	var se *types.StatusError
	if errors.As(err, &se) && se.Command == cmd {
		return se.Status, true
	}
	return 0, false
}
