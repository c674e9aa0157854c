// Package format renders payloads for display and parses user input.
package format

import (
	"encoding/hex"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Hex renders data as upper-case two-digit bytes joined by sep.
func Hex(data []byte, sep string) string {
	enc := strings.ToUpper(hex.EncodeToString(data))
	parts := make([]string, len(data))
	for i := range data {
		parts[i] = enc[2*i : 2*i+2]
	}
	return strings.Join(parts, sep)
}

// Decimal renders data as decimal byte values joined by sep.
func Decimal(data []byte, sep string) string {
	parts := make([]string, len(data))
	for i, c := range data {
		parts[i] = strconv.Itoa(int(c))
	}
	return strings.Join(parts, sep)
}

// ASCII renders data as text. Valid UTF-8 is returned as is; otherwise
// printable ASCII, CR and LF are kept and every other byte becomes '.'.
func ASCII(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	out := make([]byte, len(data))
	for i, c := range data {
		switch {
		case c == '\r' || c == '\n':
			out[i] = c
		case c >= 0x20 && c < 0x7f:
			out[i] = c
		default:
			out[i] = '.'
		}
	}
	return string(out)
}

// ParseHex converts user input such as "0A 1b:FF" to bytes. Characters that
// are not hex digits are skipped; an odd number of digits is padded with a
// leading '0'.
func ParseHex(s string) ([]byte, error) {
	digits := make([]byte, 0, len(s)+1)
	for i := 0; i < len(s); i++ {
		if isHexDigit(s[i]) {
			digits = append(digits, s[i])
		}
	}
	if len(digits)%2 == 1 {
		digits = append([]byte{'0'}, digits...)
	}
	out := make([]byte, len(digits)/2)
	if _, err := hex.Decode(out, digits); err != nil {
		return nil, err
	}
	return out, nil
}

// IsHex reports whether s holds at least one hex digit and nothing besides
// hex digits, whitespace and the separators ',', ';' and ':'.
func IsHex(s string) bool {
	seen := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case isHexDigit(c):
			seen = true
		case c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == ',' || c == ';' || c == ':':
		default:
			return false
		}
	}
	return seen
}

// Time renders t as HH:MM:SS.mmm.
func Time(t time.Time) string {
	return t.Format("15:04:05.000")
}

func isHexDigit(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
