package header

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittosmb/internal/smb/types"
)

func TestEncodeParse(t *testing.T) {
	h := &Header{
		CreditCharge: 2,
		Status:       types.StatusBufferOverflow,
		Command:      types.CommandQueryInfo,
		Credits:      31,
		Flags:        types.FlagResponse | types.FlagRelated,
		NextCommand:  136,
		MessageID:    0x1122334455,
		TreeID:       7,
		SessionID:    0xDEADBEEF,
	}
	h.Signature[0] = 0xAB

	buf := h.Encode()
	require.Len(t, buf, HeaderSize)
	assert.True(t, IsSMB2Message(buf))

	got, err := Parse(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestParseRejectsBadHeaders(t *testing.T) {
	_, err := Parse(make([]byte, 10))
	assert.ErrorIs(t, err, ErrMessageTooShort)

	buf := (&Header{Command: types.CommandClose}).Encode()
	buf[0] = 0xFF
	_, err = Parse(buf)
	assert.ErrorIs(t, err, ErrInvalidProtocolID)

	buf = (&Header{Command: types.CommandClose}).Encode()
	buf[4] = 0x10
	_, err = Parse(buf)
	assert.ErrorIs(t, err, ErrInvalidHeaderSize)
}

func TestPeekNextCommandIgnoresDamage(t *testing.T) {
	buf := (&Header{NextCommand: 104}).Encode()
	buf[0], buf[4] = 0, 0

	next, ok := PeekNextCommand(buf)
	assert.True(t, ok)
	assert.Equal(t, uint32(104), next)

	_, ok = PeekNextCommand(buf[:23])
	assert.False(t, ok)
}

func TestAsyncID(t *testing.T) {
	var h Header
	h.SetAsyncID(0x0102030405060708)
	assert.True(t, h.Flags.IsAsync())
	assert.Equal(t, uint64(0x0102030405060708), h.AsyncID())
}

func TestNewResponseHeader(t *testing.T) {
	req := &Header{Command: types.CommandCreate, MessageID: 9, Flags: types.FlagRelated, SessionID: 3}
	resp := NewResponseHeader(req, types.StatusAccessDenied, 5)
	assert.True(t, resp.Flags.IsResponse())
	assert.True(t, resp.Flags.IsRelated())
	assert.Equal(t, uint64(9), resp.MessageID)
	assert.Equal(t, uint16(5), resp.Credits)
	assert.True(t, resp.IsLast())
}
