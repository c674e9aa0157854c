package frame_test

import (
	"bufio"
	"math"
	"math/rand"
	"strings"
	"testing"

	"i4.energy/across/serialterm/frame"
)

func TestSplitter(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "LF terminated lines",
			input:    "12.5\n-3\nok\n",
			expected: []string{"12.5", "-3", "ok"},
		},
		{
			name:     "CRLF terminated lines",
			input:    "uart read: 42\r\nresponse: done\r\n",
			expected: []string{"uart read: 42", "response: done"},
		},
		{
			name:     "Mixed terminators",
			input:    "a\r\nb\nc\r\n",
			expected: []string{"a", "b", "c"},
		},
		{
			name:     "Lone CR is kept inside the line",
			input:    "a\rb\n",
			expected: []string{"a\rb"},
		},
		{
			name:     "Empty lines handling",
			input:    "\r\n\nx\n\r\n",
			expected: []string{"", "", "x", ""},
		},
		// EOF scenarios - testing atEOF functionality
		{
			name:     "Unterminated line at EOF",
			input:    "1\n2",
			expected: []string{"1", "2"},
		},
		{
			name:     "Trailing CR at EOF",
			input:    "abc\r",
			expected: []string{"abc"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tokens []string
			scanner := bufio.NewScanner(strings.NewReader(tt.input))
			scanner.Split(frame.Splitter)

			for scanner.Scan() {
				tokens = append(tokens, scanner.Text())
			}

			if err := scanner.Err(); err != nil {
				t.Fatalf("Scanner error: %v", err)
			}

			if len(tokens) != len(tt.expected) {
				t.Fatalf("Expected %d tokens, got %d.\nExpected: %q\nGot: %q",
					len(tt.expected), len(tokens), tt.expected, tokens)
			}

			for i, expected := range tt.expected {
				if tokens[i] != expected {
					t.Errorf("Token %d: expected %q, got %q", i, expected, tokens[i])
				}
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected frame.Kind
		content  string
		prefix   string
	}{
		// Command markers
		{name: "UART read", input: "uart read: 42", expected: frame.KindCommand, content: "42", prefix: frame.MarkerUARTRead},
		{name: "UART read upper case", input: "UART READ:hello", expected: frame.KindCommand, content: "hello", prefix: frame.MarkerUARTRead},
		{name: "UART read extra spaces", input: "uart   read:   x ", expected: frame.KindCommand, content: "x", prefix: frame.MarkerUARTRead},
		{name: "Command marker", input: "Command: reset", expected: frame.KindCommand, content: "reset", prefix: frame.MarkerCommand},
		{name: "Response marker", input: "response: OK", expected: frame.KindCommand, content: "OK", prefix: frame.MarkerResponse},
		{name: "Arrow marker", input: ">> 12", expected: frame.KindCommand, content: "12", prefix: frame.MarkerArrow},
		{name: "Marker without payload", input: "command:", expected: frame.KindCommand, content: "", prefix: frame.MarkerCommand},

		// Partials
		{name: "Bare minus", input: "-", expected: frame.KindNumericPartial, content: "-"},
		{name: "Bare minus with spaces", input: "  - ", expected: frame.KindNumericPartial, content: "  - "},
		{name: "Leading decimal", input: ".25", expected: frame.KindNumericPartial, content: ".25"},
		{name: "Lone dot", input: ".", expected: frame.KindNumericPartial, content: "."},

		// Numbers
		{name: "Integer", input: "5", expected: frame.KindNumeric, content: "5"},
		{name: "Negative decimal", input: "-12.75", expected: frame.KindNumeric, content: "-12.75"},

		// Unknown
		{name: "Garbage", input: "abc$%", expected: frame.KindUnknown, content: "abc$%"},
		{name: "Trailing dot", input: "5.", expected: frame.KindUnknown, content: "5."},
		{name: "Double minus", input: "--5", expected: frame.KindUnknown, content: "--5"},
		{name: "Minus dot", input: "-.5", expected: frame.KindUnknown, content: "-.5"},
		{name: "Single arrow", input: "> 12", expected: frame.KindUnknown, content: "> 12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := frame.Classify(tt.input)
			if result.Kind != tt.expected {
				t.Errorf("Expected %v, got %v for input %q", tt.expected, result.Kind, tt.input)
			}
			if result.Content != tt.content {
				t.Errorf("Expected content %q, got %q", tt.content, result.Content)
			}
			if result.Attrs.Prefix != tt.prefix {
				t.Errorf("Expected prefix %q, got %q", tt.prefix, result.Attrs.Prefix)
			}
			if result.Raw != tt.input {
				t.Errorf("Expected raw %q, got %q", tt.input, result.Raw)
			}
		})
	}
}

func TestClassifyAttributes(t *testing.T) {
	t.Run("Numeric with decimal", func(t *testing.T) {
		f := frame.Classify("-12.75")
		a := f.Attrs
		if a.Value != -12.75 || !a.IsNegative || !a.HasDecimal {
			t.Errorf("unexpected attributes: %+v", a)
		}
		if a.WholePart != -12 {
			t.Errorf("expected whole part -12, got %d", a.WholePart)
		}
		if a.DecimalPart != "75" {
			t.Errorf("expected decimal part 75, got %q", a.DecimalPart)
		}
	})

	t.Run("Integer has no decimal part", func(t *testing.T) {
		a := frame.Classify("42").Attrs
		if a.Value != 42 || a.IsNegative || a.HasDecimal || a.DecimalPart != "" || a.WholePart != 42 {
			t.Errorf("unexpected attributes: %+v", a)
		}
	})

	t.Run("Bare minus partial", func(t *testing.T) {
		a := frame.Classify("-").Attrs
		if !a.IsNegative || a.HasDecimal {
			t.Errorf("unexpected attributes: %+v", a)
		}
	})

	t.Run("Leading decimal partial", func(t *testing.T) {
		a := frame.Classify(".1411").Attrs
		if !a.HasDecimal || a.DecimalPart != "1411" || a.IsNegative {
			t.Errorf("unexpected attributes: %+v", a)
		}
	})

	t.Run("Out of range digit run stays numeric", func(t *testing.T) {
		huge := strings.Repeat("9", 400)

		f := frame.Classify(huge)
		if f.Kind != frame.KindNumeric {
			t.Fatalf("expected numeric, got %s", f.Kind)
		}
		if !math.IsInf(f.Attrs.Value, 1) || f.Attrs.WholePart != 0 {
			t.Errorf("unexpected attributes: %+v", f.Attrs)
		}

		f = frame.Classify("-" + huge)
		if f.Kind != frame.KindNumeric || !math.IsInf(f.Attrs.Value, -1) || !f.Attrs.IsNegative {
			t.Errorf("unexpected frame: %+v", f)
		}
	})

	t.Run("Marker wins over numeric payload", func(t *testing.T) {
		f := frame.Classify("uart read: 42")
		if f.Kind != frame.KindCommand || !f.HasPrefix() || f.Attrs.Value != 0 {
			t.Errorf("unexpected frame: %+v", f)
		}
	})
}

func TestExtract(t *testing.T) {
	t.Run("Keeps unterminated tail as remainder", func(t *testing.T) {
		frames, remainder := frame.Extract([]byte("1\n2\n3"))
		if len(frames) != 2 {
			t.Fatalf("expected 2 frames, got %d", len(frames))
		}
		if string(remainder) != "3" {
			t.Errorf("expected remainder %q, got %q", "3", remainder)
		}
	})

	t.Run("Complete numeric tail is still deferred", func(t *testing.T) {
		frames, remainder := frame.Extract([]byte("42"))
		if len(frames) != 0 {
			t.Errorf("expected no frames, got %d", len(frames))
		}
		if string(remainder) != "42" {
			t.Errorf("expected remainder %q, got %q", "42", remainder)
		}
	})

	t.Run("Blank lines are discarded", func(t *testing.T) {
		frames, remainder := frame.Extract([]byte("\n  \r\nx\n\n"))
		if len(frames) != 1 || frames[0].Raw != "x" {
			t.Fatalf("unexpected frames: %+v", frames)
		}
		if remainder != nil {
			t.Errorf("expected empty remainder, got %q", remainder)
		}
	})

	t.Run("Invalid UTF-8 becomes a single unknown frame", func(t *testing.T) {
		buf := []byte("ok\n\xff\xfe\n12")
		frames, remainder := frame.Extract(buf)
		if len(frames) != 1 {
			t.Fatalf("expected 1 frame, got %d", len(frames))
		}
		if frames[0].Kind != frame.KindUnknown || frames[0].Raw != string(buf) {
			t.Errorf("unexpected frame: %+v", frames[0])
		}
		if remainder != nil {
			t.Errorf("expected empty remainder, got %q", remainder)
		}
	})

	t.Run("Split multi-byte rune waits in the remainder", func(t *testing.T) {
		word := []byte("温度\n")
		frames, remainder := frame.Extract(word[:4])
		if len(frames) != 0 {
			t.Fatalf("expected no frames, got %d", len(frames))
		}
		frames, remainder = frame.Extract(append(remainder, word[4:]...))
		if len(frames) != 1 || frames[0].Raw != "温度" {
			t.Fatalf("unexpected frames: %+v", frames)
		}
		if remainder != nil {
			t.Errorf("expected empty remainder, got %q", remainder)
		}
	})

	t.Run("ExtractAll classifies the tail", func(t *testing.T) {
		frames := frame.ExtractAll([]byte("a\n-"))
		if len(frames) != 2 || frames[1].Kind != frame.KindNumericPartial {
			t.Fatalf("unexpected frames: %+v", frames)
		}
	})
}

func TestExtractChunkedStream(t *testing.T) {
	lines := []string{
		"uart read: 42", "-", "5", ".25", "3", "hello world", "温度: 21.5",
		"response: OK", "-0.001", "abc$%", ">> go",
	}
	var stream strings.Builder
	for i, l := range lines {
		stream.WriteString(l)
		if i%2 == 0 {
			stream.WriteString("\r\n")
		} else {
			stream.WriteString("\n")
		}
	}
	stream.WriteString("tail")
	data := []byte(stream.String())

	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		var raws []string
		var pending []byte
		for rest := data; len(rest) > 0; {
			n := 1 + rng.Intn(8)
			if n > len(rest) {
				n = len(rest)
			}
			var frames []frame.Frame
			frames, pending = frame.Extract(append(pending, rest[:n]...))
			rest = rest[n:]
			for _, f := range frames {
				raws = append(raws, f.Raw)
			}
		}

		got := strings.Join(raws, "\n") + "\n" + string(pending)
		want := strings.Join(lines, "\n") + "\n" + "tail"
		if got != want {
			t.Fatalf("round %d: reconstructed stream mismatch\nwant %q\ngot  %q", round, want, got)
		}
	}
}
