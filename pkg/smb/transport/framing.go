package transport

import (
	"fmt"
	"io"

	"github.com/marmos91/dittosmb/internal/smb/header"
)

const (
	netbiosSessionMessage   = 0x00
	netbiosSessionKeepAlive = 0x85
	netbiosMaxLength        = 0x00FFFFFF

	// DefaultMaxMessageSize bounds incoming frames.
	DefaultMaxMessageSize = 8 << 20
)

// ReadFrame reads one NetBIOS session message. Keepalive frames are skipped.
//
// Format: 1 byte type + 3 bytes length (big-endian), then the payload.
func ReadFrame(r io.Reader, maxSize int) ([]byte, error) {
	var nb [4]byte
	var length int
	for {
		if _, err := io.ReadFull(r, nb[:]); err != nil {
			return nil, err
		}
		switch nb[0] {
		case netbiosSessionMessage:
			length = int(nb[1])<<16 | int(nb[2])<<8 | int(nb[3])
		case netbiosSessionKeepAlive:
			continue
		default:
			return nil, fmt.Errorf("unsupported NetBIOS message type: 0x%02x", nb[0])
		}
		break
	}

	if length > maxSize {
		return nil, fmt.Errorf("SMB message too large: %d bytes (max %d)", length, maxSize)
	}
	if length < header.HeaderSize {
		return nil, fmt.Errorf("SMB message too small: %d bytes (need %d)", length, header.HeaderSize)
	}

	msg := make([]byte, length)
	if _, err := io.ReadFull(r, msg); err != nil {
		return nil, fmt.Errorf("read SMB message: %w", err)
	}
	return msg, nil
}

// WriteFrame writes payload as one NetBIOS session message.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > netbiosMaxLength {
		return fmt.Errorf("SMB message too large for NetBIOS framing: %d bytes", len(payload))
	}
	frame := make([]byte, 4+len(payload))
	frame[0] = netbiosSessionMessage
	frame[1] = byte(len(payload) >> 16)
	frame[2] = byte(len(payload) >> 8)
	frame[3] = byte(len(payload))
	copy(frame[4:], payload)
	_, err := w.Write(frame)
	return err
}
