package transport

import (
	"bytes"
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittosmb/internal/smb/header"
	"github.com/marmos91/dittosmb/internal/smb/smbenc"
	"github.com/marmos91/dittosmb/internal/smb/types"
	"github.com/marmos91/dittosmb/pkg/smb/wire"
)

// pipeDialer returns a dialer whose connections are served by serve.
func pipeDialer(serve func(nc net.Conn)) (func(ctx context.Context) (net.Conn, error), *atomic.Int32) {
	var dials atomic.Int32
	return func(ctx context.Context) (net.Conn, error) {
		dials.Add(1)
		client, server := net.Pipe()
		go serve(server)
		return client, nil
	}, &dials
}

// request marshals a single CLOSE request with the given message id.
func request(t *testing.T, id uint64) *Message {
	t.Helper()
	w := smbenc.NewWriter(128)
	(&header.Header{Command: types.CommandClose, MessageID: id, CreditCharge: 1}).EncodeTo(w)
	(&wire.CloseRequest{FileID: wire.NewFileID(1, 1)}).Encode(w)
	return &Message{Data: w.Bytes(), MessageIDs: []uint64{id}}
}

// answer builds the CLOSE response for a request frame.
func answer(req []byte, status types.Status) []byte {
	h, _ := header.Parse(req)
	w := smbenc.NewWriter(128)
	header.NewResponseHeader(h, status, 3).EncodeTo(w)
	(&wire.CloseResponse{}).Encode(w)
	return w.Bytes()
}

// echoServer answers every request frame in order.
func echoServer(nc net.Conn) {
	defer nc.Close()
	for {
		msg, err := ReadFrame(nc, DefaultMaxMessageSize)
		if err != nil {
			return
		}
		if WriteFrame(nc, answer(msg, types.StatusSuccess)) != nil {
			return
		}
	}
}

func dialTest(t *testing.T, dialer func(ctx context.Context) (net.Conn, error), reconnect bool) *Conn {
	t.Helper()
	c, err := Dial(context.Background(), Config{
		InitialCredits: 32,
		RequestTimeout: 2 * time.Second,
		Reconnect:      reconnect,
		Dialer:         dialer,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestConnSend(t *testing.T) {
	dialer, _ := pipeDialer(echoServer)
	c := dialTest(t, dialer, false)

	stream, err := c.Send(context.Background(), request(t, 5))
	require.NoError(t, err)

	h, err := stream.Header()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), h.MessageID)
	assert.True(t, h.Flags.IsResponse())

	_, err = wire.DecodeCloseResponse(stream.Reply())
	assert.NoError(t, err)
}

func TestConnSubmitOutOfOrder(t *testing.T) {
	// The server holds two requests and answers them in reverse order.
	dialer, _ := pipeDialer(func(nc net.Conn) {
		defer nc.Close()
		first, err := ReadFrame(nc, DefaultMaxMessageSize)
		if err != nil {
			return
		}
		second, err := ReadFrame(nc, DefaultMaxMessageSize)
		if err != nil {
			return
		}
		_ = WriteFrame(nc, answer(second, types.StatusSuccess))
		_ = WriteFrame(nc, answer(first, types.StatusSuccess))
		_, _ = ReadFrame(nc, DefaultMaxMessageSize)
	})
	c := dialTest(t, dialer, false)

	ready := make(chan *Pending, 2)
	p1, err := c.Submit(context.Background(), request(t, 1), ready)
	require.NoError(t, err)
	p2, err := c.Submit(context.Background(), request(t, 2), ready)
	require.NoError(t, err)

	assert.Same(t, p2, <-ready)
	assert.Same(t, p1, <-ready)

	stream, err := p1.Result()
	require.NoError(t, err)
	h, err := stream.Header()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), h.MessageID)
}

func TestConnInterimResponse(t *testing.T) {
	dialer, _ := pipeDialer(func(nc net.Conn) {
		defer nc.Close()
		msg, err := ReadFrame(nc, DefaultMaxMessageSize)
		if err != nil {
			return
		}
		req, _ := header.Parse(msg)
		interim := header.NewResponseHeader(req, types.StatusPending, 5)
		interim.SetAsyncID(99)
		w := smbenc.NewWriter(128)
		interim.EncodeTo(w)
		(&wire.ErrorResponse{}).Encode(w)
		_ = WriteFrame(nc, w.Bytes())
		_ = WriteFrame(nc, answer(msg, types.StatusSuccess))
		_, _ = ReadFrame(nc, DefaultMaxMessageSize)
	})
	c := dialTest(t, dialer, false)
	before := c.AvailableCredits()

	stream, err := c.Send(context.Background(), request(t, 9))
	require.NoError(t, err)
	h, err := stream.Header()
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, h.Status)
	assert.Equal(t, before+5, c.AvailableCredits())
}

func TestConnLeaseBreakNotification(t *testing.T) {
	dialer, _ := pipeDialer(func(nc net.Conn) {
		defer nc.Close()
		w := smbenc.NewWriter(128)
		(&header.Header{
			Command:   types.CommandOplockBreak,
			Flags:     types.FlagResponse,
			MessageID: notificationMessageID,
		}).EncodeTo(w)
		n := &wire.LeaseBreakNotification{NewEpoch: 2, NewLeaseState: types.LeaseStateRead}
		n.Key[0] = 7
		n.Encode(w)
		_ = WriteFrame(nc, w.Bytes())
		_, _ = ReadFrame(nc, DefaultMaxMessageSize)
	})
	c := dialTest(t, dialer, false)

	select {
	case n := <-c.Notifications():
		require.NotNil(t, n.LeaseBreak)
		assert.Equal(t, byte(7), n.LeaseBreak.Key[0])
		assert.Equal(t, types.LeaseStateRead, n.LeaseBreak.NewLeaseState)
	case <-time.After(2 * time.Second):
		t.Fatal("no notification")
	}
}

func TestConnReconnect(t *testing.T) {
	// The first connection drops the request; later ones answer.
	var conns atomic.Int32
	dialer, dials := pipeDialer(func(nc net.Conn) {
		if conns.Add(1) == 1 {
			_, _ = ReadFrame(nc, DefaultMaxMessageSize)
			_ = nc.Close()
			return
		}
		echoServer(nc)
	})
	c := dialTest(t, dialer, true)

	_, err := c.Send(context.Background(), request(t, 1))
	re, ok := AsReconnected(err)
	require.True(t, ok, "expected reconnect error, got %v", err)
	assert.False(t, re.AlternateChannel)
	assert.Equal(t, int32(2), dials.Load())

	_, err = c.Send(context.Background(), request(t, 2))
	assert.NoError(t, err)
}

func TestConnLostWithoutReconnect(t *testing.T) {
	dialer, _ := pipeDialer(func(nc net.Conn) {
		_, _ = ReadFrame(nc, DefaultMaxMessageSize)
		_ = nc.Close()
	})
	c := dialTest(t, dialer, false)

	_, err := c.Send(context.Background(), request(t, 1))
	require.Error(t, err)
	_, ok := AsReconnected(err)
	assert.False(t, ok)
}

func TestConnTimeout(t *testing.T) {
	dialer, _ := pipeDialer(func(nc net.Conn) {
		defer nc.Close()
		_, _ = ReadFrame(nc, DefaultMaxMessageSize)
		time.Sleep(time.Second)
	})
	c, err := Dial(context.Background(), Config{InitialCredits: 4, RequestTimeout: 50 * time.Millisecond, Dialer: dialer})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Send(context.Background(), request(t, 1))
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestConnTimeoutReclaimsLateCredits(t *testing.T) {
	dialer, _ := pipeDialer(func(nc net.Conn) {
		defer nc.Close()
		msg, err := ReadFrame(nc, DefaultMaxMessageSize)
		if err != nil {
			return
		}
		time.Sleep(150 * time.Millisecond)
		_ = WriteFrame(nc, answer(msg, types.StatusSuccess))
		_, _ = ReadFrame(nc, DefaultMaxMessageSize)
	})
	c, err := Dial(context.Background(), Config{InitialCredits: 4, RequestTimeout: 50 * time.Millisecond, Dialer: dialer})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Send(context.Background(), request(t, 1))
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 4, c.AvailableCredits())

	// The late reply grants 3 credits even though nobody waits for it.
	assert.Eventually(t, func() bool { return c.AvailableCredits() == 7 }, time.Second, 10*time.Millisecond)
}

// twoReplies builds a compound response whose replies grant 2 and 5
// credits.
func twoReplies() []byte {
	w := smbenc.NewWriter(256)
	for i, credits := range []uint16{2, 5} {
		start := w.Len()
		(&header.Header{Command: types.CommandClose, MessageID: uint64(i), Credits: credits}).EncodeTo(w)
		(&wire.CloseResponse{}).Encode(w)
		if i == 0 {
			w.Pad(8)
			w.PutUint32At(start+20, uint32(w.Len()-start))
		}
	}
	return w.Bytes()
}

func TestPendingAbandon(t *testing.T) {
	msg := &Message{MessageIDs: []uint64{1}}

	t.Run("response arrives later", func(t *testing.T) {
		l := NewLedger(0, 0)
		ready := make(chan *Pending, 1)
		p := NewPending(msg, ready)
		p.Abandon(l)
		p.Complete(NewResponseStream(twoReplies()), nil)

		assert.Equal(t, 7, l.AvailableCredits())
		assert.Empty(t, ready, "an abandoned request is not delivered")
	})

	t.Run("response already arrived", func(t *testing.T) {
		l := NewLedger(0, 0)
		p := NewPending(msg, nil)
		p.Complete(NewResponseStream(twoReplies()), nil)
		p.Abandon(l)
		assert.Equal(t, 7, l.AvailableCredits())
	})

	t.Run("request failed", func(t *testing.T) {
		l := NewLedger(0, 0)
		p := NewPending(msg, nil)
		p.Abandon(l)
		p.Complete(nil, ErrClosed)
		assert.Equal(t, 0, l.AvailableCredits())
	})
}

func TestConnClosed(t *testing.T) {
	dialer, _ := pipeDialer(echoServer)
	c, err := Dial(context.Background(), Config{Dialer: dialer})
	require.NoError(t, err)
	require.NoError(t, c.Close())

	_, err = c.Send(context.Background(), request(t, 1))
	assert.ErrorIs(t, err, ErrClosed)
	_, open := <-c.Notifications()
	assert.False(t, open)
}

func TestLedger(t *testing.T) {
	l := NewLedger(10, 5)

	ids, err := l.AllocateMessageIDs([]uint16{1, 3})
	require.NoError(t, err)
	assert.Equal(t, []uint64{10, 11}, ids)
	assert.Equal(t, 1, l.AvailableCredits())

	_, err = l.AllocateMessageIDs([]uint16{1, 1})
	assert.ErrorIs(t, err, ErrInsufficientCredits)
	assert.Equal(t, 1, l.AvailableCredits(), "a failed allocation consumes nothing")

	l.GrantCredits(4)
	ids, err = l.AllocateMessageIDs([]uint16{0})
	require.NoError(t, err)
	assert.Equal(t, []uint64{14}, ids)

	assert.Equal(t, uint16(1+creditTopUp), l.CreditRequest(1))
}

func TestResponseStream(t *testing.T) {
	w := smbenc.NewWriter(256)
	for i := 0; i < 2; i++ {
		start := w.Len()
		(&header.Header{Command: types.CommandClose, MessageID: uint64(i)}).EncodeTo(w)
		(&wire.CloseResponse{}).Encode(w)
		if i == 0 {
			w.Pad(8)
			w.PutUint32At(start+20, uint32(w.Len()-start))
		}
	}
	data := w.Bytes()

	s := NewResponseStream(data)
	first := s.Reply()
	assert.Equal(t, 128, len(first))
	require.NoError(t, s.Advance())
	h, err := s.Header()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), h.MessageID)
	assert.ErrorIs(t, s.Advance(), ErrNoNextCommand)

	// A damaged protocol id does not prevent advancing.
	broken := bytes.Clone(data)
	broken[0] = 0
	s = NewResponseStream(broken)
	_, err = s.Header()
	assert.Error(t, err)
	assert.NoError(t, s.Advance())

	// A misaligned NextCommand does.
	broken = bytes.Clone(data)
	broken[20] = 100
	s = NewResponseStream(broken)
	assert.ErrorIs(t, s.Advance(), ErrNoNextCommand)
}

func TestFraming(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0x85, 0, 0, 0}) // keepalive
	payload := (&header.Header{Command: types.CommandEcho}).Encode()
	require.NoError(t, WriteFrame(&buf, payload))

	got, err := ReadFrame(&buf, DefaultMaxMessageSize)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	buf.Reset()
	require.NoError(t, WriteFrame(&buf, []byte{1, 2, 3}))
	_, err = ReadFrame(&buf, DefaultMaxMessageSize)
	assert.Error(t, err)
}
