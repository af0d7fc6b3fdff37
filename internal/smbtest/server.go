package smbtest

import (
	"slices"
	"sync"
	"time"

	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/internal/smb/header"
	"github.com/marmos91/dittosmb/internal/smb/smbenc"
	"github.com/marmos91/dittosmb/internal/smb/types"
	"github.com/marmos91/dittosmb/pkg/smb/transport"
	"github.com/marmos91/dittosmb/pkg/smb/wire"
)

// Options selects the capabilities of a Server.
type Options struct {
	// Leasing grants file leases requested with RqLs.
	Leasing bool
	// DirectoryLeasing also grants leases on directories.
	DirectoryLeasing bool
	// DurableHandles grants DH2Q requests.
	DurableHandles bool
	// PersistentHandles grants persistence when requested.
	PersistentHandles bool
	// ReparseIoctl answers FSCTL_GET_REPARSE_POINT. Without it the IOCTL
	// fails with STATUS_INVALID_DEVICE_REQUEST.
	ReparseIoctl bool
	// MaxGrant caps the credits granted per reply. Zero grants what the
	// request asked for.
	MaxGrant uint16
	// Now overrides the clock.
	Now func() time.Time
}

// DefaultOptions enables every capability.
func DefaultOptions() Options {
	return Options{
		Leasing:           true,
		DirectoryLeasing:  true,
		DurableHandles:    true,
		PersistentHandles: true,
		ReparseIoctl:      true,
	}
}

// open is a server-side handle.
type open struct {
	fid           wire.FileID
	path          string
	node          *node
	stream        string
	deleteOnClose bool
	deletePending bool
	enumerated    int
	leaseKey      wire.LeaseKey
}

type serverLease struct {
	state uint32
	epoch uint16
}

// Server is an in-memory SMB2 server. It is safe for concurrent use; every
// compound executes atomically.
type Server struct {
	opts Options

	mu      sync.Mutex
	tree    *tree
	opens   map[uint64]*open
	nextFID uint64
	leases  map[wire.LeaseKey]*serverLease
	faults  []FaultFunc
	records []Record

	subMu       sync.Mutex
	subscribers []chan<- transport.Notification
}

// NewServer returns a server with an empty share.
func NewServer(opts Options) *Server {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Server{
		opts:    opts,
		tree:    newTree(now),
		opens:   make(map[uint64]*open),
		nextFID: 1,
		leases:  make(map[wire.LeaseKey]*serverLease),
	}
}

// Inject adds a fault function. Functions run in the order added; the
// first non-nil Fault wins.
func (s *Server) Inject(f FaultFunc) {
	s.mu.Lock()
	s.faults = append(s.faults, f)
	s.mu.Unlock()
}

// ClearFaults removes every fault function.
func (s *Server) ClearFaults() {
	s.mu.Lock()
	s.faults = nil
	s.mu.Unlock()
}

// Handle executes one compound request and returns the compound response.
// Commands run in order; a command marked related whose FileId is the
// placeholder inherits the handle of the preceding CREATE, and fails with
// the CREATE's status if it failed.
func (s *Server) Handle(msg []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := smbenc.NewWriter(len(msg) + 256)
	var chain relatedState
	prevStart := -1
	remaining := msg
	for i := 0; len(remaining) >= header.HeaderSize; i++ {
		hdr, err := header.Parse(remaining)
		if err != nil {
			logger.Debug("smbtest: unparsable request header", logger.KeyError, err)
			break
		}
		cmdBytes := remaining
		remaining = nil
		if hdr.NextCommand > 0 && int(hdr.NextCommand) <= len(cmdBytes) {
			remaining = cmdBytes[hdr.NextCommand:]
			cmdBytes = cmdBytes[:hdr.NextCommand]
		}

		rep := s.execute(i, hdr, cmdBytes, &chain)

		if prevStart >= 0 {
			out.Pad(header.CompoundAlignment)
			out.PutUint32At(prevStart+20, uint32(out.Len()-prevStart))
		}
		start := out.Len()
		rep.encode(out, hdr, s.grant(hdr))
		prevStart = start
		if rep.fault != nil {
			if rep.fault.CorruptHeader {
				out.PutUint32At(start, 0)
			}
			if rep.fault.BreakChain {
				out.PutUint32At(start+20, 3)
				prevStart = -1
			}
		}
	}
	return out.Bytes()
}

func (s *Server) grant(h *header.Header) uint16 {
	g := max(h.Credits, 1)
	if s.opts.MaxGrant > 0 {
		g = min(g, s.opts.MaxGrant)
	}
	return g
}

// relatedState carries the handle and status of the preceding command of
// a related chain.
type relatedState struct {
	fid       wire.FileID
	createErr types.Status
}

// reply is the outcome of one command.
type reply struct {
	status types.Status
	body   interface{ Encode(*smbenc.Writer) }
	fault  *Fault
}

func (r *reply) encode(w *smbenc.Writer, req *header.Header, credits uint16) {
	header.NewResponseHeader(req, r.status, credits).EncodeTo(w)
	if r.fault != nil && r.fault.Body != nil {
		w.WriteBytes(r.fault.Body)
		return
	}
	if r.body == nil || !r.status.CarriesBody(req.Command) {
		body := r.body
		if _, ok := body.(*wire.ErrorResponse); !ok {
			body = &wire.ErrorResponse{}
		}
		body.Encode(w)
		return
	}
	r.body.Encode(w)
}

func errorReply(status types.Status) *reply {
	return &reply{status: status, body: &wire.ErrorResponse{}}
}

func (s *Server) execute(index int, hdr *header.Header, msg []byte, chain *relatedState) *reply {
	req, err := wire.DecodeRequest(hdr.Command, msg)
	if err != nil {
		logger.Debug("smbtest: undecodable request", logger.KeyCommand, hdr.Command.String(), logger.KeyError, err)
		return errorReply(types.StatusInvalidParameter)
	}

	call := &Call{Header: hdr, Request: req, Index: index}
	if t, ok := req.(wire.Targeted); ok {
		if t.Target().IsPending() {
			switch {
			case !hdr.Flags.IsRelated():
				return s.finish(call, errorReply(types.StatusInvalidParameter))
			case chain.createErr != 0:
				return s.finish(call, errorReply(chain.createErr))
			case !chain.fid.IsResolved():
				return s.finish(call, errorReply(types.StatusInvalidParameter))
			}
			t.SetTarget(chain.fid)
		}
		if o := s.opens[t.Target().Volatile()]; o != nil {
			call.Path = o.path
		}
	}
	if c, ok := req.(*wire.CreateRequest); ok {
		call.Path = c.Name
	}

	for _, f := range s.faults {
		if fault := f(call); fault != nil {
			rep := &reply{fault: fault}
			if fault.Status != 0 {
				rep.status = fault.Status
				rep.body = &wire.ErrorResponse{}
				if hdr.Command == types.CommandCreate && fault.Status.IsError() {
					chain.createErr = fault.Status
				}
				return s.finish(call, rep)
			}
			rep2 := s.dispatch(call, chain)
			rep2.fault = fault
			return s.finish(call, rep2)
		}
	}
	return s.finish(call, s.dispatch(call, chain))
}

func (s *Server) dispatch(call *Call, chain *relatedState) *reply {
	switch r := call.Request.(type) {
	case *wire.CreateRequest:
		rep, fid := s.create(r)
		if rep.status.IsSuccess() {
			chain.fid = fid
			chain.createErr = 0
		} else {
			chain.createErr = rep.status
		}
		return rep
	case *wire.CloseRequest:
		return s.close(r)
	case *wire.FlushRequest:
		if s.opens[r.FileID.Volatile()] == nil {
			return errorReply(types.StatusFileClosed)
		}
		return &reply{body: &wire.FlushResponse{}}
	case *wire.ReadRequest:
		return s.read(r)
	case *wire.WriteRequest:
		return s.write(r)
	case *wire.QueryInfoRequest:
		return s.queryInfo(r)
	case *wire.SetInfoRequest:
		return s.setInfo(r)
	case *wire.IoctlRequest:
		return s.ioctl(r)
	case *wire.QueryDirectoryRequest:
		return s.queryDirectory(r)
	case *wire.LeaseBreakAck:
		return s.ackLease(r)
	}
	return errorReply(types.StatusNotSupported)
}

func (s *Server) finish(call *Call, rep *reply) *reply {
	rec := Record{
		Command:   call.Header.Command,
		MessageID: call.Header.MessageID,
		Index:     call.Index,
		Related:   call.Header.Flags.IsRelated(),
		Replay:    call.Header.Flags.IsReplay(),
		Path:      call.Path,
		Status:    rep.status,
	}
	if t, ok := call.Request.(wire.Targeted); ok {
		rec.FileID = t.Target()
	}
	if c, ok := rep.body.(*wire.CreateResponse); ok && rep.status.IsSuccess() {
		rec.FileID = c.FileID
	}
	s.records = append(s.records, rec)
	return rep
}

func (s *Server) lookupOpen(fid wire.FileID) (*open, *reply) {
	o := s.opens[fid.Volatile()]
	if o == nil || o.fid != fid {
		return nil, errorReply(types.StatusFileClosed)
	}
	return o, nil
}

// Records returns the trace of every executed command.
func (s *Server) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...)
}

// ResetRecords clears the trace.
func (s *Server) ResetRecords() {
	s.mu.Lock()
	s.records = nil
	s.mu.Unlock()
}

// Count returns how many times cmd was executed.
func (s *Server) Count(cmd types.Command) int {
	n := 0
	for _, r := range s.Records() {
		if r.Command == cmd {
			n++
		}
	}
	return n
}

// CloseAttempts returns how many CLOSE requests targeted fid.
func (s *Server) CloseAttempts(fid wire.FileID) int {
	n := 0
	for _, r := range s.Records() {
		if r.Command == types.CommandClose && r.FileID == fid {
			n++
		}
	}
	return n
}

// OpenHandles returns the number of handles currently open.
func (s *Server) OpenHandles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.opens)
}

// Subscribe registers ch for lease break notifications. Sends never block.
func (s *Server) Subscribe(ch chan<- transport.Notification) {
	s.subMu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.subMu.Unlock()
}

// Unsubscribe removes ch. No send to ch happens after it returns.
func (s *Server) Unsubscribe(ch chan<- transport.Notification) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subscribers = slices.DeleteFunc(s.subscribers, func(c chan<- transport.Notification) bool { return c == ch })
}

// BreakLease lowers a granted lease to newState and notifies subscribers.
// It reports whether the lease was known.
func (s *Server) BreakLease(key wire.LeaseKey, newState uint32) bool {
	s.mu.Lock()
	l := s.leases[key]
	var n *wire.LeaseBreakNotification
	if l != nil {
		l.epoch++
		n = &wire.LeaseBreakNotification{
			NewEpoch:          l.epoch,
			Key:               key,
			CurrentLeaseState: l.state,
			NewLeaseState:     newState,
		}
		if l.state&(types.LeaseStateWrite|types.LeaseStateHandle) != 0 {
			n.Flags = types.LeaseFlagBreakInProgress
		}
		l.state = newState
	}
	s.mu.Unlock()
	if n == nil {
		return false
	}

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- transport.Notification{LeaseBreak: n}:
		default:
		}
	}
	return true
}

// ackLease settles a break. The acknowledged state may not exceed the
// state the lease was broken to.
func (s *Server) ackLease(a *wire.LeaseBreakAck) *reply {
	l := s.leases[a.Key]
	if l == nil || a.LeaseState&^l.state != 0 {
		return errorReply(types.StatusInvalidParameter)
	}
	l.state = a.LeaseState
	return &reply{body: &wire.LeaseBreakAck{Key: a.Key, LeaseState: l.state}}
}

// LeaseState returns the state of a granted lease.
func (s *Server) LeaseState(key wire.LeaseKey) (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leases[key]
	if !ok {
		return 0, false
	}
	return l.state, true
}

// DropSession closes every open handle, as a server does when the session
// of a connection is lost.
func (s *Server) DropSession() {
	s.mu.Lock()
	clear(s.opens)
	s.mu.Unlock()
}
