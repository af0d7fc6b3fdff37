package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/dittosmb/pkg/smb/wire"
)

// notificationMessageID is the MessageId of unsolicited server messages.
const notificationMessageID = ^uint64(0)

// Notification is an unsolicited message from the server.
type Notification struct {
	LeaseBreak *wire.LeaseBreakNotification
}

// Transport carries compound requests for one session and tree.
type Transport interface {
	// AllocateMessageIDs reserves message ids and credits for a request.
	AllocateMessageIDs(charges []uint16) ([]uint64, error)
	// CreditRequest returns the credits to ask for on a command.
	CreditRequest(charge uint16) uint16
	// GrantCredits returns credits granted by a reply to the window.
	GrantCredits(n uint16)
	// AvailableCredits returns the current credit window.
	AvailableCredits() int

	SessionID() uint64
	TreeID() uint32

	// Submit writes msg and returns without waiting for the response. When
	// ready is non-nil the Pending is delivered to it on completion.
	Submit(ctx context.Context, msg *Message, ready chan<- *Pending) (*Pending, error)
	// Send writes msg and waits for the complete response.
	Send(ctx context.Context, msg *Message) (*ResponseStream, error)

	// Notifications delivers lease breaks and other unsolicited messages.
	Notifications() <-chan Notification

	Close() error
}

// Await waits for p, bounded by timeout when it is positive. A deadline
// reached while waiting is reported as ErrTimeout.
func Await(ctx context.Context, p *Pending, timeout time.Duration) (*ResponseStream, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	stream, err := p.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: message %d: %w", ErrTimeout, p.Key(), err)
	}
	return stream, err
}
