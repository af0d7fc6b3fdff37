package transport

import (
	"fmt"

	"github.com/marmos91/dittosmb/internal/smb/header"
)

// ResponseStream iterates over the replies of one compound response.
type ResponseStream struct {
	data []byte
	off  int
}

// NewResponseStream wraps a complete compound response.
func NewResponseStream(data []byte) *ResponseStream {
	return &ResponseStream{data: data}
}

// Reply returns the current reply from its SMB2 header up to the next reply,
// or to the end of the message when NextCommand is unusable.
func (s *ResponseStream) Reply() []byte {
	cur := s.data[s.off:]
	if next, ok := s.nextOffset(); ok {
		return cur[:next]
	}
	return cur
}

// Header parses the header of the current reply.
func (s *ResponseStream) Header() (*header.Header, error) {
	return header.Parse(s.data[s.off:])
}

// Advance moves to the next reply. It only trusts NextCommand: a damaged
// header elsewhere does not prevent locating the following reply.
func (s *ResponseStream) Advance() error {
	next, ok := s.nextOffset()
	if !ok {
		return fmt.Errorf("%w: at offset %d", ErrNoNextCommand, s.off)
	}
	if s.off+next+header.HeaderSize > len(s.data) {
		return fmt.Errorf("%w: next command at %d beyond %d bytes", ErrNoNextCommand, s.off+next, len(s.data))
	}
	s.off += next
	return nil
}

// Reclaim grants g the credits of every reply from the current one on.
// The stream position is left unchanged.
func (s *ResponseStream) Reclaim(g CreditGranter) {
	walk := &ResponseStream{data: s.data, off: s.off}
	for {
		if h, err := walk.Header(); err == nil {
			g.GrantCredits(h.Credits)
		}
		if walk.Advance() != nil {
			return
		}
	}
}

// Offset returns the position of the current reply in the message.
func (s *ResponseStream) Offset() int { return s.off }

// Bytes returns the whole response.
func (s *ResponseStream) Bytes() []byte { return s.data }

func (s *ResponseStream) nextOffset() (int, bool) {
	next, ok := header.PeekNextCommand(s.data[s.off:])
	if !ok || next == 0 || next%header.CompoundAlignment != 0 || next < header.HeaderSize {
		return 0, false
	}
	if s.off+int(next) > len(s.data) {
		return 0, false
	}
	return int(next), true
}
