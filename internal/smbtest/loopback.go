package smbtest

import (
	"context"
	"slices"
	"sync"

	"github.com/marmos91/dittosmb/pkg/smb/transport"
)

// Reconnect describes a connection loss injected at one submission.
type Reconnect struct {
	// Alternate reports the new connection as another channel of the
	// same session. Otherwise the server drops every open handle.
	Alternate bool
	// Executed runs the request on the server before the loss, so only
	// the response is lost.
	Executed bool
	// KeepHeld leaves held responses in place, as if they travel on a
	// channel that survived. Only meaningful with Alternate.
	KeepHeld bool
}

type held struct {
	seq     int
	pending *transport.Pending
	reply   []byte
}

// Loopback is a transport.Transport executing every request on a Server
// inside Submit. Responses can be held back to control completion order,
// and a connection loss can be injected at a given submission.
type Loopback struct {
	*transport.Ledger
	server *Server
	notify chan transport.Notification

	mu         sync.Mutex
	closed     bool
	submitted  int
	changed    chan struct{}
	hold       func(seq int, msg *transport.Message) bool
	held       []held
	reconnects map[int]Reconnect
	initial    int
}

var _ transport.Transport = (*Loopback)(nil)

// NewLoopback returns a transport for server with a window of credits.
// The loopback never grants credits itself.
func NewLoopback(server *Server, credits int) *Loopback {
	l := &Loopback{
		Ledger:     transport.NewLedger(0, credits),
		server:     server,
		notify:     make(chan transport.Notification, 64),
		changed:    make(chan struct{}),
		reconnects: make(map[int]Reconnect),
		initial:    credits,
	}
	server.Subscribe(l.notify)
	return l
}

// SessionID implements transport.Transport.
func (l *Loopback) SessionID() uint64 { return 0x11 }

// TreeID implements transport.Transport.
func (l *Loopback) TreeID() uint32 { return 0x22 }

// Notifications implements transport.Transport.
func (l *Loopback) Notifications() <-chan transport.Notification { return l.notify }

// Hold makes the loopback keep the response of every submission for which
// f returns true until ReleaseHeld. Submissions are numbered from 1.
func (l *Loopback) Hold(f func(seq int, msg *transport.Message) bool) {
	l.mu.Lock()
	l.hold = f
	l.mu.Unlock()
}

// HoldAll holds every response.
func (l *Loopback) HoldAll() {
	l.Hold(func(int, *transport.Message) bool { return true })
}

// ReconnectOn injects a connection loss at submission seq. That
// submission and, unless r keeps them, every held one fail with
// *transport.ReconnectedError and the credit window is reset.
func (l *Loopback) ReconnectOn(seq int, r Reconnect) {
	l.mu.Lock()
	l.reconnects[seq] = r
	l.mu.Unlock()
}

// Submit implements transport.Transport.
func (l *Loopback) Submit(ctx context.Context, msg *transport.Message, ready chan<- *transport.Pending) (*transport.Pending, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := transport.NewPending(msg, ready)

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, transport.ErrClosed
	}
	l.submitted++
	seq := l.submitted
	close(l.changed)
	l.changed = make(chan struct{})

	if r, ok := l.reconnects[seq]; ok {
		delete(l.reconnects, seq)
		var lost []held
		if !r.Alternate || !r.KeepHeld {
			lost, l.held = l.held, nil
		}
		l.mu.Unlock()
		l.reconnect(r, msg, p, lost)
		return p, nil
	}

	reply := l.server.Handle(msg.Data)
	if l.hold != nil && l.hold(seq, msg) {
		l.held = append(l.held, held{seq: seq, pending: p, reply: reply})
		l.mu.Unlock()
		return p, nil
	}
	l.mu.Unlock()

	p.Complete(transport.NewResponseStream(reply), nil)
	return p, nil
}

func (l *Loopback) reconnect(r Reconnect, msg *transport.Message, p *transport.Pending, lost []held) {
	if r.Executed {
		l.server.Handle(msg.Data)
	}
	if !r.Alternate {
		l.server.DropSession()
	}
	l.Reset(0, l.initial)

	err := &transport.ReconnectedError{AlternateChannel: r.Alternate}
	p.Complete(nil, err)
	for _, h := range lost {
		h.pending.Complete(nil, err)
	}
}

// Send implements transport.Transport.
func (l *Loopback) Send(ctx context.Context, msg *transport.Message) (*transport.ResponseStream, error) {
	p, err := l.Submit(ctx, msg, nil)
	if err != nil {
		return nil, err
	}
	stream, err := p.Wait(ctx)
	if err != nil {
		p.Abandon(l)
	}
	return stream, err
}

// ReleaseHeld completes the held submissions whose sequence numbers are
// given, in that order. Without arguments every held submission completes
// in submission order.
func (l *Loopback) ReleaseHeld(seqs ...int) {
	l.mu.Lock()
	var release []held
	if len(seqs) == 0 {
		release, l.held = l.held, nil
	} else {
		for _, seq := range seqs {
			i := slices.IndexFunc(l.held, func(h held) bool { return h.seq == seq })
			if i < 0 {
				continue
			}
			release = append(release, l.held[i])
			l.held = slices.Delete(l.held, i, i+1)
		}
	}
	l.mu.Unlock()

	for _, h := range release {
		h.pending.Complete(transport.NewResponseStream(h.reply), nil)
	}
}

// Held returns the sequence numbers of the held submissions.
func (l *Loopback) Held() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]int, len(l.held))
	for i, h := range l.held {
		out[i] = h.seq
	}
	return out
}

// Submitted returns the number of submissions so far.
func (l *Loopback) Submitted() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.submitted
}

// WaitSubmitted blocks until at least n submissions were made.
func (l *Loopback) WaitSubmitted(ctx context.Context, n int) error {
	for {
		l.mu.Lock()
		done, changed := l.submitted >= n, l.changed
		l.mu.Unlock()
		if done {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close implements transport.Transport. Held submissions fail with
// transport.ErrClosed.
func (l *Loopback) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	lost := l.held
	l.held = nil
	l.mu.Unlock()

	l.server.Unsubscribe(l.notify)
	close(l.notify)
	for _, h := range lost {
		h.pending.Complete(nil, transport.ErrClosed)
	}
	return nil
}
