// Package prefetch pipelines metadata compounds for the entries of a
// directory listing.
//
// A batch keeps up to AsyncDepth CREATE+QUERY_INFO+CLOSE or
// CREATE+READ+CLOSE compounds in flight, submitted without blocking and
// drained in completion order. A reconnect reported by any of them aborts
// the whole batch: the caller must enumerate the directory again.
package prefetch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/internal/smb/header"
	"github.com/marmos91/dittosmb/internal/smb/types"
	"github.com/marmos91/dittosmb/internal/telemetry"
	"github.com/marmos91/dittosmb/pkg/smb/compound"
	"github.com/marmos91/dittosmb/pkg/smb/handle"
	"github.com/marmos91/dittosmb/pkg/smb/transport"
	"github.com/marmos91/dittosmb/pkg/smb/wire"
)

// ErrRestartEnumeration is returned when the transport reconnected during
// a batch. Cached entries may be partially filled and the directory state
// on the server is unknown.
var ErrRestartEnumeration = errors.New("prefetch: connection lost, restart enumeration")

const streamInfoBuffer = 4096

// Entry outcomes reported to Metrics.
const (
	outcomeFetched   = "fetched"
	outcomeDefaulted = "defaulted"
	outcomeAborted   = "aborted"
)

// Config holds the batch tunables.
type Config struct {
	// AsyncDepth is the number of slots. It drops to one while fewer than
	// CreditLowWater credits are available when the batch starts.
	AsyncDepth     int
	CreditLowWater int

	SecondaryStream string
	SecondarySize   uint32

	// RequestTimeout bounds the wait for any slot to complete.
	RequestTimeout time.Duration
	CloseTimeout   time.Duration
}

// Metrics receives batch observations. Nil disables collection.
type Metrics interface {
	SetSlotsInFlight(n int)
	// RecordEntry records one finished job: "fetched", "defaulted" or
	// "aborted".
	RecordEntry(outcome string)
}

// Driver runs prefetch batches over one transport.
type Driver struct {
	tr      transport.Transport
	closer  handle.Closer
	cfg     Config
	metrics Metrics
}

// NewDriver returns a driver. closer issues the fallback CLOSE of handles
// a slot left open.
func NewDriver(tr transport.Transport, closer handle.Closer, cfg Config, m Metrics) *Driver {
	if cfg.AsyncDepth <= 0 {
		cfg.AsyncDepth = 1
	}
	return &Driver{tr: tr, closer: closer, cfg: cfg, metrics: m}
}

type jobKind uint8

const (
	jobMeta jobKind = iota
	jobSecondary
)

func (k jobKind) String() string {
	if k == jobSecondary {
		return "secondary"
	}
	return "meta"
}

// slot is one outstanding compound of a batch.
type slot struct {
	index   int
	entry   *Entry
	path    string
	kind    jobKind
	unit    *compound.Unit
	guard   *handle.Guard
	pending *transport.Pending
}

type batch struct {
	d             *Driver
	dir           string
	entries       []*Entry
	wantSecondary bool

	slots []*slot
	ready chan *transport.Pending
	busy  map[*Entry]bool
}

// Run fetches the metadata of entries, and the secondary stream of the
// ones that have it when wantSecondary is set. It returns once no slot is
// pending and no work remains.
func (d *Driver) Run(ctx context.Context, dir string, entries []*Entry, wantSecondary bool) error {
	ctx, span := telemetry.StartSMBSpan(ctx, telemetry.SpanSMBPrefetch,
		telemetry.FSPath(dir),
		telemetry.FSEntries(len(entries)))
	defer span.End()

	depth := d.cfg.AsyncDepth
	if avail := d.tr.AvailableCredits(); avail < d.cfg.CreditLowWater {
		depth = 1
		telemetry.AddEvent(ctx, telemetry.EventCreditsLow, telemetry.SMBCredits(avail))
		logger.DebugCtx(ctx, "Prefetch under credit pressure",
			logger.KeyCredits, avail,
			logger.KeyDepth, depth)
	}

	b := &batch{
		d:             d,
		dir:           dir,
		entries:       entries,
		wantSecondary: wantSecondary,
		slots:         make([]*slot, depth),
		ready:         make(chan *transport.Pending, depth),
		busy:          make(map[*Entry]bool),
	}
	err := b.run(ctx)
	if err != nil {
		telemetry.RecordError(ctx, err)
	}
	return err
}

func (b *batch) run(ctx context.Context) error {
	start := time.Now()
	if err := b.fillAll(ctx); err != nil {
		return b.abort(ctx, err)
	}

	timer := time.NewTimer(b.d.cfg.RequestTimeout)
	defer timer.Stop()
	for b.inFlight() > 0 {
		if b.d.cfg.RequestTimeout > 0 {
			timer.Reset(b.d.cfg.RequestTimeout)
		}
		var p *transport.Pending
		select {
		case p = <-b.ready:
		case <-timer.C:
			if b.d.cfg.RequestTimeout > 0 {
				return b.abort(ctx, transport.ErrTimeout)
			}
			continue
		case <-ctx.Done():
			return b.abort(ctx, ctx.Err())
		}

		s := b.slotOf(p)
		if s == nil {
			continue
		}
		stream, err := p.Result()
		if re, ok := transport.AsReconnected(err); ok {
			b.release(ctx, s, nil)
			telemetry.AddEvent(ctx, telemetry.EventRestartListing, telemetry.SMBAsyncSlot(s.index))
			logger.InfoCtx(ctx, "Prefetch batch aborted by reconnect",
				logger.KeyPath, b.dir,
				logger.KeySlot, s.index,
				logger.KeyChannel, channel(re))
			return b.abort(ctx, fmt.Errorf("%w: %w", ErrRestartEnumeration, re))
		}
		if err != nil {
			b.release(ctx, s, nil)
			return b.abort(ctx, err)
		}

		b.release(ctx, s, stream)
		if err := b.fillAll(ctx); err != nil {
			return b.abort(ctx, err)
		}
	}

	logger.DebugCtx(ctx, "Prefetch batch done",
		logger.KeyPath, b.dir,
		logger.KeyEntries, len(b.entries),
		logger.KeyDepth, len(b.slots),
		logger.KeyDurationMs, logger.Duration(start))
	return nil
}

// fillAll submits work into every empty slot. Running out of credits is
// only an error when nothing is in flight to return them.
func (b *batch) fillAll(ctx context.Context) error {
	for i := range b.slots {
		if b.slots[i] != nil {
			continue
		}
		err := b.fill(ctx, i)
		if errors.Is(err, transport.ErrInsufficientCredits) && b.inFlight() > 0 {
			logger.DebugCtx(ctx, "Prefetch waiting for credits", logger.KeySlot, i)
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// fill submits the next eligible job into slot i. It does nothing when no
// work remains.
func (b *batch) fill(ctx context.Context, i int) error {
	e, kind, ok := b.next()
	if !ok {
		return nil
	}
	s := &slot{
		index: i,
		entry: e,
		path:  wire.JoinPath(b.dir, e.Name),
		kind:  kind,
		guard: handle.NewGuard(b.d.closer, b.d.cfg.CloseTimeout),
	}
	u, err := b.build(s)
	if err != nil {
		return err
	}
	s.unit = u

	data, err := u.Marshal(b.d.tr, b.d.tr.SessionID(), b.d.tr.TreeID())
	if err != nil {
		u.Discard()
		return err
	}
	msg := &transport.Message{Data: data, MessageIDs: u.MessageIDs()}

	b.slots[i] = s
	b.busy[e] = true
	p, err := b.d.tr.Submit(ctx, msg, b.ready)
	if err != nil {
		b.slots[i] = nil
		delete(b.busy, e)
		u.Discard()
		return err
	}
	s.pending = p
	b.setInFlight()

	logger.DebugCtx(ctx, "Prefetch slot submitted",
		logger.KeySlot, i,
		logger.KeyPath, s.path,
		"job", kind.String(),
		logger.KeyMessageID, msg.Key())
	return nil
}

// next returns the first entry that still needs a job and is not in
// flight.
func (b *batch) next() (*Entry, jobKind, bool) {
	for _, e := range b.entries {
		if b.busy[e] {
			continue
		}
		if e.needsMeta() {
			return e, jobMeta, true
		}
		if e.needsSecondary(b.wantSecondary) {
			return e, jobSecondary, true
		}
	}
	return nil, 0, false
}

func (b *batch) build(s *slot) (*compound.Unit, error) {
	ci := &wire.CreateIntent{
		Path:              s.path,
		Access:            types.FileReadAttributes | types.Synchronize,
		Disposition:       types.FileOpen,
		KnownAttributes:   s.entry.Attributes,
		EnumeratedSymlink: s.entry.IsSymlink,
	}
	var middle *compound.Command
	create := func() (*compound.Unit, error) {
		req, err := wire.BuildCreate(ci)
		if err != nil {
			return nil, err
		}
		return compound.Start(req)
	}

	var u *compound.Unit
	var err error
	switch s.kind {
	case jobMeta:
		ci.Contexts = []wire.CreateContext{wire.MaximalAccessRequest()}
		if u, err = create(); err != nil {
			return nil, err
		}
		middle, err = u.Chain(&wire.QueryInfoRequest{
			InfoType:           types.InfoTypeFile,
			Class:              types.FileStreamInformation,
			OutputBufferLength: streamInfoBuffer,
		}, false)
	case jobSecondary:
		ci.Stream = b.d.cfg.SecondaryStream
		ci.Access |= types.FileReadData
		if u, err = create(); err != nil {
			return nil, err
		}
		middle, err = u.Chain(&wire.ReadRequest{Length: b.d.cfg.SecondarySize}, false)
		if err == nil {
			middle.Expect(types.StatusEndOfFile)
		}
	}
	if err != nil {
		return nil, err
	}
	if _, err := u.Chain(&wire.CloseRequest{}, true); err != nil {
		return nil, err
	}
	return u, nil
}

// release walks the response of s, if any, applies it to the entry and
// runs the slot's cleanup phase.
func (b *batch) release(ctx context.Context, s *slot, stream *transport.ResponseStream) {
	b.slots[s.index] = nil
	delete(b.busy, s.entry)
	b.setInFlight()

	if stream == nil {
		s.unit.Discard()
		s.guard.Release(ctx)
		b.record(outcomeAborted)
		return
	}

	obs := &handle.Observer{
		Guard: s.guard,
		Path:  s.path,
		OnHeader: func(_ *compound.Command, h *header.Header) {
			b.d.tr.GrantCredits(h.Credits)
		},
	}
	_ = compound.Walk(stream, s.unit, obs)
	s.guard.Release(ctx)

	switch s.kind {
	case jobMeta:
		b.record(b.applyMeta(ctx, s))
	case jobSecondary:
		b.record(b.applySecondary(s))
	}
}

// applyMeta records MaxAccess and HasSecondary. When they cannot be
// determined: no access if the open was denied, full access otherwise,
// and no secondary stream.
func (b *batch) applyMeta(ctx context.Context, s *slot) string {
	e := s.entry
	e.MetaFetched = true
	e.HasSecondary = false

	create := s.unit.At(0)
	cr, ok := create.Result.(*wire.CreateResponse)
	if !ok {
		e.MaxAccess = types.FileAllAccess
		if create.Status == types.StatusAccessDenied {
			e.MaxAccess = 0
		}
		logger.DebugCtx(ctx, "Prefetch defaulted entry",
			logger.KeyPath, s.path,
			logger.KeyStatus, create.Status.String(),
			logger.KeyError, create.Err)
		return outcomeDefaulted
	}
	e.MaxAccess = cr.MaximalAccess()

	q, ok := s.unit.At(1).Result.(*wire.QueryInfoResponse)
	if !ok {
		return outcomeDefaulted
	}
	streams, err := wire.DecodeFileStreamInfo(q.Output)
	if err != nil {
		return outcomeDefaulted
	}
	for _, st := range streams {
		if strings.EqualFold(st.Name, b.d.cfg.SecondaryStream) {
			e.HasSecondary = true
			break
		}
	}
	return outcomeFetched
}

func (b *batch) applySecondary(s *slot) string {
	e := s.entry
	e.SecondaryFetched = true
	r, ok := s.unit.At(1).Result.(*wire.ReadResponse)
	if !ok {
		if !s.unit.At(0).Succeeded() {
			e.HasSecondary = false
		}
		e.Secondary = nil
		return outcomeDefaulted
	}
	e.Secondary = r.Data
	return outcomeFetched
}

// abort drains every pending slot, closes what they opened and returns
// cause. All slots share one drain deadline; the credits of responses
// still missing at the deadline are reclaimed when they arrive.
func (b *batch) abort(ctx context.Context, cause error) error {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.drainTimeout())
	defer cancel()
	for _, s := range b.slots {
		if s == nil {
			continue
		}
		if s.pending == nil {
			b.release(ctx, s, nil)
			continue
		}
		stream, err := s.pending.Wait(dctx)
		if err != nil {
			s.pending.Abandon(b.d.tr)
			stream = nil
		}
		b.release(ctx, s, stream)
	}
	return cause
}

func (b *batch) drainTimeout() time.Duration {
	if b.d.cfg.RequestTimeout > 0 {
		return b.d.cfg.RequestTimeout
	}
	return handle.DefaultCloseTimeout
}

func (b *batch) slotOf(p *transport.Pending) *slot {
	for _, s := range b.slots {
		if s != nil && s.pending == p {
			return s
		}
	}
	return nil
}

func (b *batch) inFlight() int {
	n := 0
	for _, s := range b.slots {
		if s != nil {
			n++
		}
	}
	return n
}

func (b *batch) setInFlight() {
	if b.d.metrics != nil {
		b.d.metrics.SetSlotsInFlight(b.inFlight())
	}
}

func (b *batch) record(outcome string) {
	if b.d.metrics != nil {
		b.d.metrics.RecordEntry(outcome)
	}
}

func channel(re *transport.ReconnectedError) string {
	if re.AlternateChannel {
		return "alternate"
	}
	return "same"
}
