package format_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"i4.energy/across/serialterm/format"
)

func TestHex(t *testing.T) {
	assert.Equal(t, "", format.Hex(nil, " "))
	assert.Equal(t, "0A FF 00", format.Hex([]byte{0x0a, 0xff, 0x00}, " "))
	assert.Equal(t, "41:42", format.Hex([]byte("AB"), ":"))
}

func TestDecimal(t *testing.T) {
	assert.Equal(t, "72 105 255", format.Decimal([]byte{72, 105, 255}, " "))
	assert.Equal(t, "", format.Decimal(nil, " "))
}

func TestASCII(t *testing.T) {
	assert.Equal(t, "温度 21\r\n", format.ASCII([]byte("温度 21\r\n")))
	assert.Equal(t, "ok.\n.", format.ASCII([]byte{'o', 'k', 0xff, '\n', 0x01}))
}

func TestParseHex(t *testing.T) {
	tests := []struct {
		in   string
		want []byte
	}{
		{"0A 1b:FF", []byte{0x0a, 0x1b, 0xff}},
		{"abc", []byte{0x0a, 0xbc}},
		{"zz", []byte{}},
		{"01,02;03", []byte{1, 2, 3}},
	}

	for _, tt := range tests {
		got, err := format.ParseHex(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestIsHex(t *testing.T) {
	assert.True(t, format.IsHex("0A 1B"))
	assert.True(t, format.IsHex("de:ad;be,ef"))
	assert.False(t, format.IsHex("hello"))
	assert.False(t, format.IsHex("   "))
	assert.False(t, format.IsHex(""))
}

func TestTime(t *testing.T) {
	ts := time.Date(2024, 3, 9, 7, 5, 3, 42*int(time.Millisecond), time.UTC)
	assert.Equal(t, "07:05:03.042", format.Time(ts))
}
