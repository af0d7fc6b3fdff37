package compound

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittosmb/internal/smb/header"
	"github.com/marmos91/dittosmb/internal/smb/smbenc"
	"github.com/marmos91/dittosmb/internal/smb/types"
)

// seqAllocator hands out consecutive message ids.
type seqAllocator struct {
	next uint64
	err  error
}

func (a *seqAllocator) AllocateMessageIDs(charges []uint16) ([]uint64, error) {
	if a.err != nil {
		return nil, a.err
	}
	ids := make([]uint64, len(charges))
	for i, c := range charges {
		ids[i] = a.next
		a.next += uint64(c)
	}
	return ids, nil
}

func (a *seqAllocator) CreditRequest(charge uint16) uint16 { return charge + 1 }

// reply is one response of a chain built by chainReplies.
type reply struct {
	status types.Status
	body   interface{ Encode(*smbenc.Writer) }
	// raw replaces the encoded body when set.
	raw []byte
}

// chainReplies builds a compound response answering the commands of u.
func chainReplies(t *testing.T, u *Unit, replies ...reply) []byte {
	t.Helper()
	require.Len(t, replies, u.Len())

	w := smbenc.NewWriter(512)
	for i, r := range replies {
		c := u.At(i)
		h := &header.Header{
			Status:    r.status,
			Command:   c.Command(),
			Credits:   1,
			Flags:     types.FlagResponse,
			MessageID: c.MessageID,
		}
		if i > 0 {
			h.Flags |= types.FlagRelated
		}
		start := w.Len()
		h.EncodeTo(w)
		if r.raw != nil {
			w.WriteBytes(r.raw)
		} else {
			r.body.Encode(w)
		}
		if i < len(replies)-1 {
			w.Pad(header.CompoundAlignment)
			w.PutUint32At(start+20, uint32(w.Len()-start))
		}
	}
	return w.Bytes()
}

var errNoNext = errors.New("no next reply")

// bufStream walks a compound response buffer.
type bufStream struct {
	buf []byte
	off int
}

func (s *bufStream) Reply() []byte {
	cur := s.buf[s.off:]
	if next, ok := header.PeekNextCommand(cur); ok && next >= header.HeaderSize && next%8 == 0 && int(next) <= len(cur) {
		return cur[:next]
	}
	return cur
}

func (s *bufStream) Advance() error {
	next, ok := header.PeekNextCommand(s.buf[s.off:])
	if !ok || next == 0 || next%8 != 0 || s.off+int(next)+header.HeaderSize > len(s.buf) {
		return errNoNext
	}
	s.off += int(next)
	return nil
}

// recorder is an Observer that records events.
type recorder struct {
	headers   []types.Command
	completed []types.Command
}

func (r *recorder) HeaderParsed(c *Command, _ *header.Header) {
	r.headers = append(r.headers, c.Command())
}

func (r *recorder) Completed(c *Command) {
	r.completed = append(r.completed, c.Command())
}
