// Package bytesize reads and writes byte counts such as "1Mi", "64KiB" or
// "100MB". The engine uses it for I/O payload caps and the secondary
// stream read size.
package bytesize

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ByteSize is a size in bytes.
//
// Accepted text forms are a plain number, a number with a binary suffix
// (Ki, Mi, Gi, Ti, optionally followed by B), a decimal suffix (K, M, G,
// T, optionally followed by B) or the suffix B. Suffixes are case
// insensitive and may be separated from the number by spaces. A
// fractional number is allowed with a suffix ("1.5Mi").
type ByteSize uint64

// Common byte size constants
const (
	B  ByteSize = 1
	KB ByteSize = 1000
	MB ByteSize = 1000 * KB
	GB ByteSize = 1000 * MB
	TB ByteSize = 1000 * GB

	KiB ByteSize = 1024
	MiB ByteSize = 1024 * KiB
	GiB ByteSize = 1024 * MiB
	TiB ByteSize = 1024 * GiB
)

// ErrOverflow is returned for sizes that do not fit in 64 bits.
var ErrOverflow = errors.New("byte size overflows uint64")

// binaryUnits lists the binary units from largest to smallest.
var binaryUnits = []struct {
	size   ByteSize
	suffix string
}{
	{TiB, "Ti"},
	{GiB, "Gi"},
	{MiB, "Mi"},
	{KiB, "Ki"},
}

func multiplier(unit string) (ByteSize, bool) {
	unit = strings.TrimSuffix(strings.ToLower(unit), "b")
	binary := strings.HasSuffix(unit, "i")
	unit = strings.TrimSuffix(unit, "i")

	var exp int
	switch unit {
	case "":
		if binary {
			return 0, false
		}
		return B, true
	case "k":
		exp = 1
	case "m":
		exp = 2
	case "g":
		exp = 3
	case "t":
		exp = 4
	default:
		return 0, false
	}

	base, m := KB, B
	if binary {
		base = KiB
	}
	for range exp {
		m *= base
	}
	return m, true
}

// ParseByteSize parses a human-readable byte size.
func ParseByteSize(s string) (ByteSize, error) {
	text := strings.TrimSpace(s)
	if text == "" {
		return 0, errors.New("empty byte size string")
	}

	end := strings.IndexFunc(text, func(r rune) bool {
		return (r < '0' || r > '9') && r != '.'
	})
	if end < 0 {
		end = len(text)
	}
	number, unit := text[:end], strings.TrimSpace(text[end:])
	if number == "" {
		return 0, fmt.Errorf("invalid byte size format: %q", s)
	}

	m, ok := multiplier(unit)
	if !ok {
		return 0, fmt.Errorf("unknown byte size unit: %q", unit)
	}

	if strings.Contains(number, ".") {
		f, err := strconv.ParseFloat(number, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number in byte size: %q", number)
		}
		v := f * float64(m)
		if v >= math.MaxUint64 {
			return 0, fmt.Errorf("%q: %w", s, ErrOverflow)
		}
		return ByteSize(v), nil
	}

	n, err := strconv.ParseUint(number, 10, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return 0, fmt.Errorf("%q: %w", s, ErrOverflow)
		}
		return 0, fmt.Errorf("invalid number in byte size: %q", number)
	}
	if n > math.MaxUint64/uint64(m) {
		return 0, fmt.Errorf("%q: %w", s, ErrOverflow)
	}
	return ByteSize(n) * m, nil
}

// UnmarshalText implements encoding.TextUnmarshaler, which lets viper and
// mapstructure decode configuration values straight into a ByteSize.
func (b *ByteSize) UnmarshalText(text []byte) error {
	size, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = size
	return nil
}

// MarshalText implements encoding.TextMarshaler. It writes the largest
// binary unit that divides b exactly, so the value reads back unchanged.
func (b ByteSize) MarshalText() ([]byte, error) {
	for _, u := range binaryUnits {
		if b >= u.size && b%u.size == 0 {
			return append(strconv.AppendUint(nil, uint64(b/u.size), 10), u.suffix...), nil
		}
	}
	return strconv.AppendUint(nil, uint64(b), 10), nil
}

// String returns a human-readable, possibly rounded, representation.
func (b ByteSize) String() string {
	for _, u := range binaryUnits {
		if b >= u.size {
			return strconv.FormatFloat(float64(b)/float64(u.size), 'f', 2, 64) + u.suffix + "B"
		}
	}
	return strconv.FormatUint(uint64(b), 10) + "B"
}

// Uint64 returns the ByteSize as a uint64.
func (b ByteSize) Uint64() uint64 {
	return uint64(b)
}

// Uint32 returns the ByteSize as a uint32, saturating at math.MaxUint32.
// SMB2 READ and WRITE lengths are 32-bit.
func (b ByteSize) Uint32() uint32 {
	return uint32(min(b, math.MaxUint32))
}

// Int64 returns the ByteSize as an int64, saturating at math.MaxInt64.
func (b ByteSize) Int64() int64 {
	return int64(min(b, math.MaxInt64))
}
