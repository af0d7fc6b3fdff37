package bytesize

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseByteSize(t *testing.T) {
	valid := map[string]ByteSize{
		"0":          0,
		"4096":       4 * KiB,
		"65536B":     64 * KiB,
		"1b":         B,
		"64Ki":       64 * KiB,
		"64KiB":      64 * KiB,
		"64kib":      64 * KiB,
		"8Mi":        8 * MiB,
		"8MIB":       8 * MiB,
		"2Gi":        2 * GiB,
		"1TiB":       TiB,
		"64K":        64 * KB,
		"64kb":       64 * KB,
		"8M":         8 * MB,
		"2GB":        2 * GB,
		"1T":         TB,
		" 1Mi":       MiB,
		"1Mi\t":      MiB,
		"1 Mi":       MiB,
		"1.5Mi":      MiB + 512*KiB,
		"0.25Gi":     256 * MiB,
		"3.0":        3,
		"16777215Ti": 16777215 * TiB,
	}
	for in, want := range valid {
		got, err := ParseByteSize(in)
		if assert.NoError(t, err, "input %q", in) {
			assert.Equal(t, want, got, "input %q", in)
		}
	}

	invalid := []string{
		"",
		"  ",
		"Mi",
		"abc",
		"-4Ki",
		"1Xi",
		"1iB",
		"1 2Mi",
		"1.2.3Mi",
		"12Mi34",
	}
	for _, in := range invalid {
		_, err := ParseByteSize(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestParseByteSizeOverflow(t *testing.T) {
	for _, in := range []string{"16777216Ti", "99999999999999999999", "20000000.5Ti"} {
		_, err := ParseByteSize(in)
		assert.ErrorIs(t, err, ErrOverflow, "input %q", in)
	}
}

func TestTextRoundTrip(t *testing.T) {
	cases := []struct {
		size ByteSize
		text string
	}{
		{0, "0"},
		{1500, "1500"},
		{MB, "1000000"},
		{64 * KiB, "64Ki"},
		{MiB, "1Mi"},
		{MiB + KiB, "1025Ki"},
		{3 * GiB, "3Gi"},
		{2 * TiB, "2Ti"},
	}
	for _, c := range cases {
		text, err := c.size.MarshalText()
		require.NoError(t, err)
		assert.Equal(t, c.text, string(text))

		var back ByteSize
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, c.size, back)
	}

	var b ByteSize = 7
	assert.Error(t, b.UnmarshalText([]byte("seven")))
	assert.Equal(t, ByteSize(7), b, "a failed decode leaves the value alone")
}

func TestString(t *testing.T) {
	assert.Equal(t, "512B", ByteSize(512).String())
	assert.Equal(t, "64.00KiB", (64 * KiB).String())
	assert.Equal(t, "1.50MiB", (MiB + 512*KiB).String())
	assert.Equal(t, "2.00TiB", (2 * TiB).String())
}

func TestConversionsSaturate(t *testing.T) {
	assert.Equal(t, uint32(8*MiB), (8 * MiB).Uint32())
	assert.Equal(t, uint32(math.MaxUint32), (5 * GiB).Uint32())

	assert.Equal(t, int64(GiB), GiB.Int64())
	assert.Equal(t, int64(math.MaxInt64), ByteSize(math.MaxUint64).Int64())

	assert.Equal(t, uint64(3*KiB), (3 * KiB).Uint64())
}
