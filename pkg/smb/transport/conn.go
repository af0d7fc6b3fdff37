package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/internal/smb/header"
	"github.com/marmos91/dittosmb/internal/smb/types"
	"github.com/marmos91/dittosmb/pkg/smb/wire"
)

// Config configures a Conn.
type Config struct {
	Address        string
	DialTimeout    time.Duration
	RequestTimeout time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int
	InitialCredits int
	SessionID      uint64
	TreeID         uint32
	// Reconnect re-dials after the connection is lost. Outstanding requests
	// then fail with *ReconnectedError instead of the connection error.
	Reconnect bool
	// Dialer overrides net.Dialer, mostly for tests.
	Dialer func(ctx context.Context) (net.Conn, error)
}

func (c *Config) applyDefaults() {
	if c.DialTimeout == 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.InitialCredits == 0 {
		c.InitialCredits = DefaultInitialCredits
	}
	if c.Dialer == nil {
		addr, timeout := c.Address, c.DialTimeout
		c.Dialer = func(ctx context.Context) (net.Conn, error) {
			d := net.Dialer{Timeout: timeout}
			return d.DialContext(ctx, "tcp", addr)
		}
	}
}

// Conn is a Transport over a NetBIOS-framed stream connection. A single
// reader goroutine matches responses to outstanding requests by the message
// id of their first command.
type Conn struct {
	*Ledger
	cfg Config

	mu      sync.Mutex
	nc      net.Conn
	pending map[uint64]*Pending
	closed  bool

	wmu    sync.Mutex
	notify chan Notification
	wg     sync.WaitGroup
}

var _ Transport = (*Conn)(nil)

// Dial connects to cfg.Address and starts the reader.
func Dial(ctx context.Context, cfg Config) (*Conn, error) {
	cfg.applyDefaults()
	nc, err := cfg.Dialer(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Address, err)
	}
	c := &Conn{
		Ledger:  NewLedger(0, cfg.InitialCredits),
		cfg:     cfg,
		nc:      nc,
		pending: make(map[uint64]*Pending),
		notify:  make(chan Notification, 64),
	}
	c.wg.Add(1)
	go c.readLoop(nc)

	logger.Debug("SMB transport connected", logger.KeyRemote, nc.RemoteAddr().String())
	return c, nil
}

// SessionID implements Transport.
func (c *Conn) SessionID() uint64 { return c.cfg.SessionID }

// TreeID implements Transport.
func (c *Conn) TreeID() uint32 { return c.cfg.TreeID }

// Notifications implements Transport.
func (c *Conn) Notifications() <-chan Notification { return c.notify }

// Submit implements Transport.
func (c *Conn) Submit(ctx context.Context, msg *Message, ready chan<- *Pending) (*Pending, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	nc := c.nc
	p := NewPending(msg, ready)
	c.pending[p.Key()] = p
	c.mu.Unlock()

	c.wmu.Lock()
	if c.cfg.WriteTimeout > 0 {
		_ = nc.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	err := WriteFrame(nc, msg.Data)
	c.wmu.Unlock()
	if err != nil {
		// The reader settles p once the connection is torn down.
		go c.connectionLost(nc, fmt.Errorf("write: %w", err))
	}
	return p, nil
}

// Send implements Transport.
func (c *Conn) Send(ctx context.Context, msg *Message) (*ResponseStream, error) {
	p, err := c.Submit(ctx, msg, nil)
	if err != nil {
		return nil, err
	}
	stream, err := Await(ctx, p, c.cfg.RequestTimeout)
	if err != nil {
		p.Abandon(c)
	}
	return stream, err
}

// Close tears down the connection and fails outstanding requests.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	nc := c.nc
	pending := c.takePending()
	c.mu.Unlock()

	err := nc.Close()
	for _, p := range pending {
		p.Complete(nil, ErrClosed)
	}
	c.wg.Wait()
	close(c.notify)
	return err
}

// takePending swaps out the pending map. c.mu must be held.
func (c *Conn) takePending() map[uint64]*Pending {
	pending := c.pending
	c.pending = make(map[uint64]*Pending)
	return pending
}

func (c *Conn) readLoop(nc net.Conn) {
	defer c.wg.Done()
	for {
		msg, err := ReadFrame(nc, c.cfg.MaxMessageSize)
		if err != nil {
			c.connectionLost(nc, err)
			return
		}
		c.dispatch(msg)
	}
}

func (c *Conn) dispatch(msg []byte) {
	h, err := header.Parse(msg)
	if err != nil {
		logger.Debug("Dropping unparsable SMB message", logger.KeyError, err)
		return
	}

	if h.MessageID == notificationMessageID && h.Command == types.CommandOplockBreak {
		c.deliverNotification(msg)
		return
	}

	if h.Status == types.StatusPending && h.Flags.IsAsync() && h.IsLast() {
		// Interim response; the final one follows with the same message id.
		c.GrantCredits(h.Credits)
		return
	}

	c.mu.Lock()
	p, ok := c.pending[h.MessageID]
	if ok {
		delete(c.pending, h.MessageID)
	}
	c.mu.Unlock()
	if !ok {
		logger.Debug("Dropping response without a pending request",
			logger.MessageID(h.MessageID),
			logger.KeyCommand, h.Command.String())
		NewResponseStream(msg).Reclaim(c)
		return
	}
	p.Complete(NewResponseStream(msg), nil)
}

func (c *Conn) deliverNotification(msg []byte) {
	n, err := wire.DecodeLeaseBreakNotification(msg)
	if err != nil {
		logger.Debug("Dropping malformed lease break", logger.KeyError, err)
		return
	}
	select {
	case c.notify <- Notification{LeaseBreak: n}:
	default:
		logger.Warn("Notification queue full, dropping lease break", logger.KeyLeaseKey, n.Key.String())
	}
}

// connectionLost fails the requests outstanding on nc and, when configured,
// re-dials. It is a no-op if nc has already been replaced.
func (c *Conn) connectionLost(nc net.Conn, cause error) {
	c.mu.Lock()
	if c.nc != nc || c.closed {
		c.mu.Unlock()
		return
	}
	pending := c.takePending()
	c.mu.Unlock()
	_ = nc.Close()

	failure := fmt.Errorf("connection lost: %w", cause)
	if c.cfg.Reconnect {
		if next, err := c.redial(); err == nil {
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				_ = next.Close()
			} else {
				c.nc = next
				c.mu.Unlock()
				c.Reset(0, c.cfg.InitialCredits)
				c.wg.Add(1)
				go c.readLoop(next)
				failure = &ReconnectedError{Cause: cause}
				logger.Info("SMB transport reconnected", logger.KeyRemote, next.RemoteAddr().String())
			}
		} else {
			logger.Warn("SMB transport redial failed", logger.KeyError, err)
		}
	}

	for _, p := range pending {
		p.Complete(nil, failure)
	}
}

func (c *Conn) redial() (net.Conn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.DialTimeout)
	defer cancel()
	nc, err := c.cfg.Dialer(ctx)
	if err != nil {
		return nil, err
	}
	return nc, nil
}

// IsConnectionError reports whether err came from a lost connection rather
// than from the server.
func IsConnectionError(err error) bool {
	if _, ok := AsReconnected(err); ok {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) || errors.Is(err, ErrClosed)
}
