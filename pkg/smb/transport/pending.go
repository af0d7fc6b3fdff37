package transport

import (
	"context"
	"sync"
)

// Message is a marshaled request ready to be written.
type Message struct {
	Data []byte
	// MessageIDs holds the first message id of every command. The first
	// entry identifies the response.
	MessageIDs []uint64
}

// Key returns the message id the response is matched on.
func (m *Message) Key() uint64 {
	if len(m.MessageIDs) == 0 {
		return 0
	}
	return m.MessageIDs[0]
}

// Pending is a submitted request whose response has not been consumed yet.
type Pending struct {
	key   uint64
	ready chan<- *Pending

	once   sync.Once
	done   chan struct{}
	stream *ResponseStream
	err    error

	mu        sync.Mutex
	settled   bool
	abandoned CreditGranter
}

// CreditGranter takes back the credits of replies nobody walks.
type CreditGranter interface {
	GrantCredits(n uint16)
}

// NewPending returns a pending request for msg. When ready is non-nil the
// request is delivered to it on completion; it must have room for every
// request submitted with it.
func NewPending(msg *Message, ready chan<- *Pending) *Pending {
	return &Pending{key: msg.Key(), ready: ready, done: make(chan struct{})}
}

// Key returns the message id of the first command.
func (p *Pending) Key() uint64 { return p.key }

// Done is closed when the response arrived or the request failed.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Result returns the outcome. It is only meaningful after Done is closed.
func (p *Pending) Result() (*ResponseStream, error) {
	return p.stream, p.err
}

// Wait blocks until the request completes or ctx ends.
func (p *Pending) Wait(ctx context.Context) (*ResponseStream, error) {
	select {
	case <-p.done:
		return p.stream, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Complete settles the request. Only the first call has an effect. The
// response of an abandoned request is not delivered; its credits go back
// to the granter passed to Abandon.
func (p *Pending) Complete(stream *ResponseStream, err error) {
	p.once.Do(func() {
		p.mu.Lock()
		p.stream, p.err = stream, err
		p.settled = true
		g := p.abandoned
		p.mu.Unlock()
		close(p.done)

		if g != nil {
			if stream != nil {
				stream.Reclaim(g)
			}
			return
		}
		if p.ready != nil {
			p.ready <- p
		}
	})
}

// Abandon gives up on p after its waiter timed out or was cancelled. The
// credits carried by its response are granted to g, whether the response
// already arrived unconsumed or arrives later.
func (p *Pending) Abandon(g CreditGranter) {
	p.mu.Lock()
	if p.settled {
		stream := p.stream
		p.mu.Unlock()
		if stream != nil {
			stream.Reclaim(g)
		}
		return
	}
	p.abandoned = g
	p.mu.Unlock()
}
