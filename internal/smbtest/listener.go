package smbtest

import (
	"context"
	"errors"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/internal/smb/header"
	"github.com/marmos91/dittosmb/internal/smb/smbenc"
	"github.com/marmos91/dittosmb/internal/smb/types"
	"github.com/marmos91/dittosmb/pkg/smb/transport"
	"github.com/marmos91/dittosmb/pkg/smb/wire"
)

// Serve accepts NetBIOS-framed connections on ln and answers them from s
// until ctx is cancelled. Lease breaks are pushed to every connection.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-ctx.Done()
		return ln.Close()
	})

	g.Go(func() error {
		for {
			nc, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return nil
				}
				logger.Debug("smbtest: accept failed", logger.KeyError, err)
				continue
			}
			g.Go(func() error {
				s.serveConn(ctx, nc)
				return nil
			})
		}
	})

	return g.Wait()
}

func (s *Server) serveConn(ctx context.Context, nc net.Conn) {
	remote := nc.RemoteAddr().String()
	logger.Debug("smbtest: connection accepted", logger.KeyRemote, remote)

	var wmu sync.Mutex
	write := func(msg []byte) error {
		wmu.Lock()
		defer wmu.Unlock()
		return transport.WriteFrame(nc, msg)
	}

	notify := make(chan transport.Notification, 16)
	s.Subscribe(notify)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case n := <-notify:
				if n.LeaseBreak != nil {
					_ = write(EncodeLeaseBreak(n.LeaseBreak))
				}
			case <-done:
				return
			}
		}
	}()

	stop := context.AfterFunc(ctx, func() { _ = nc.Close() })
	defer func() {
		stop()
		s.Unsubscribe(notify)
		close(done)
		_ = nc.Close()
		logger.Debug("smbtest: connection closed", logger.KeyRemote, remote)
	}()

	for {
		msg, err := transport.ReadFrame(nc, transport.DefaultMaxMessageSize)
		if err != nil {
			return
		}
		if err := write(s.Handle(msg)); err != nil {
			return
		}
	}
}

// EncodeLeaseBreak frames a lease break notification as an unsolicited
// OPLOCK_BREAK message.
func EncodeLeaseBreak(n *wire.LeaseBreakNotification) []byte {
	w := smbenc.NewWriter(header.HeaderSize + 44)
	(&header.Header{
		Command:   types.CommandOplockBreak,
		Flags:     types.FlagResponse,
		MessageID: ^uint64(0),
	}).EncodeTo(w)
	n.Encode(w)
	return w.Bytes()
}
