package frame

import (
	"bufio"
	"bytes"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Splitter is used for tokenizing the serial byte stream into lines. It uses
// the signature of bufio.SplitFunc so it can be directly used with
// bufio.Scanner.
//
// It splits the input on LF and drops a single CR directly preceding the LF,
// so both "\n" and "\r\n" terminated devices are handled.
//
// The atEOF parameter indicates whether any more data will be available.
// When true, any remaining data is returned as the final token.
func Splitter(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.IndexByte(data, LF[0]); i >= 0 {
		return i + 1, bytes.TrimSuffix(data[0:i], []byte(CR)), nil
	}

	if atEOF {
		return len(data), bytes.TrimSuffix(data, []byte(CR)), nil
	}
	return 0, nil, nil
}

var _ bufio.SplitFunc = Splitter

// rule classifies a line. line is the untrimmed input and trimmed its
// whitespace-trimmed form. ok is false when the rule does not apply.
type rule func(line, trimmed string) (f Frame, ok bool)

var (
	signPartialPattern    = regexp.MustCompile(`^-$`)
	decimalPartialPattern = regexp.MustCompile(`^\.\d*$`)
	numericPattern        = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
)

// rules are evaluated top to bottom and the first match wins. The partial
// shapes produced here are what Repair expects, so the order and patterns
// must stay as they are.
var rules = []rule{
	markerRule(MarkerUARTRead, `(?i)^uart\s+read:\s*(.*)$`),
	markerRule(MarkerCommand, `(?i)^command:\s*(.*)$`),
	markerRule(MarkerResponse, `(?i)^response:\s*(.*)$`),
	markerRule(MarkerArrow, `^>>\s*(.*)$`),
	signPartialRule,
	decimalPartialRule,
	numericRule,
}

func markerRule(marker, pattern string) rule {
	re := regexp.MustCompile(pattern)
	return func(line, trimmed string) (Frame, bool) {
		m := re.FindStringSubmatch(trimmed)
		if m == nil {
			return Frame{}, false
		}
		return Frame{
			Raw:     line,
			Kind:    KindCommand,
			Content: strings.TrimSpace(m[1]),
			Attrs:   Attributes{Prefix: marker},
		}, true
	}
}

func signPartialRule(line, trimmed string) (Frame, bool) {
	if !signPartialPattern.MatchString(trimmed) {
		return Frame{}, false
	}
	return Frame{
		Raw:     line,
		Kind:    KindNumericPartial,
		Content: line,
		Attrs:   Attributes{IsNegative: true},
	}, true
}

func decimalPartialRule(line, trimmed string) (Frame, bool) {
	if !decimalPartialPattern.MatchString(trimmed) {
		return Frame{}, false
	}
	return Frame{
		Raw:     line,
		Kind:    KindNumericPartial,
		Content: line,
		Attrs: Attributes{
			HasDecimal:  true,
			DecimalPart: strings.TrimPrefix(trimmed, DecimalDot),
		},
	}, true
}

func numericRule(line, trimmed string) (Frame, bool) {
	if !numericPattern.MatchString(trimmed) {
		return Frame{}, false
	}
	// Digit runs beyond float64 range still count as numeric, valued ±Inf.
	value, err := strconv.ParseFloat(trimmed, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return Frame{}, false
	}
	attrs := Attributes{
		Value:      value,
		IsNegative: strings.HasPrefix(trimmed, Minus),
		HasDecimal: strings.Contains(trimmed, DecimalDot),
		WholePart:  truncate(value),
	}
	if attrs.HasDecimal {
		attrs.DecimalPart = trimmed[strings.Index(trimmed, DecimalDot)+1:]
	}
	return Frame{Raw: line, Kind: KindNumeric, Content: line, Attrs: attrs}, true
}

func truncate(v float64) int64 {
	t := math.Trunc(v)
	if t > math.MaxInt64 || t < math.MinInt64 {
		return 0
	}
	return int64(t)
}

// Classify identifies the nature of a single line of device output.
func Classify(line string) Frame {
	trimmed := strings.TrimSpace(line)
	for _, r := range rules {
		if f, ok := r(line, trimmed); ok {
			return f
		}
	}
	return Frame{Raw: line, Kind: KindUnknown, Content: line}
}

// Extract splits buf into terminated lines and classifies each of them.
//
// The unterminated tail of buf is never classified; it is returned as
// remainder so the caller can prepend it to the next chunk. Blank lines
// produce no frame. If the terminated part of buf is not valid UTF-8 the
// whole buffer is returned as a single KindUnknown frame and the remainder
// is empty.
func Extract(buf []byte) (frames []Frame, remainder []byte) {
	return extract(buf, false)
}

// ExtractAll behaves like Extract but also classifies the unterminated
// tail, as if the stream had ended. It never returns a remainder.
func ExtractAll(buf []byte) []Frame {
	frames, _ := extract(buf, true)
	return frames
}

func extract(buf []byte, atEOF bool) ([]Frame, []byte) {
	if len(buf) == 0 {
		return nil, nil
	}

	if !decodable(buf, atEOF) {
		raw := string(buf)
		return []Frame{{Raw: raw, Kind: KindUnknown, Content: raw}}, nil
	}

	var frames []Frame
	data := buf
	for len(data) > 0 {
		advance, token, _ := Splitter(data, atEOF)
		if advance == 0 {
			break
		}
		data = data[advance:]

		line := string(token)
		if strings.TrimSpace(line) == "" {
			continue
		}
		frames = append(frames, Classify(line))
	}

	if len(data) == 0 {
		return frames, nil
	}
	return frames, bytes.Clone(data)
}

// decodable reports whether the part of buf that is about to be classified
// is valid UTF-8. The unterminated tail is excluded unless atEOF is set, as
// it may end in the first bytes of a multi-byte rune.
func decodable(buf []byte, atEOF bool) bool {
	if atEOF {
		return utf8.Valid(buf)
	}
	i := bytes.LastIndexByte(buf, LF[0])
	return utf8.Valid(buf[:i+1])
}
