package frame

const (
	// Line Control
	LF = "\n"
	CR = "\r"

	// Command markers, matched case-insensitively at the start of a line
	MarkerUARTRead = "uart read:"
	MarkerCommand  = "command:"
	MarkerResponse = "response:"
	MarkerArrow    = ">>"

	// Numeric partials
	Minus      = "-"
	DecimalDot = "."
)

// Kind is the classification assigned to a line of input.
type Kind int

const (
	KindUnknown        Kind = iota // Anything the rules below do not match
	KindCommand                    // Line carrying one of the command markers
	KindNumeric                    // Complete number such as "-12.5"
	KindNumericPartial             // Bare sign or leading decimal part of a number
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindNumeric:
		return "numeric"
	case KindNumericPartial:
		return "numeric-partial"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind as its name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Attributes holds the kind-specific fields of a Frame. Only the fields
// relevant to the frame's Kind are populated.
type Attributes struct {
	// Prefix is the matched command marker (KindCommand).
	Prefix string
	// Value is the parsed number (KindNumeric).
	Value float64
	// IsNegative is set for a bare "-" partial and for negative numbers.
	IsNegative bool
	// HasDecimal is set when the line contains a decimal point.
	HasDecimal bool
	// WholePart is the integer part of Value, truncated toward zero.
	WholePart int64
	// DecimalPart holds the digits after the decimal point, if any.
	DecimalPart string
}

// Frame is one classified line of input. Frames are values; a repair
// produces a new Frame rather than modifying an existing one.
type Frame struct {
	// Raw is the line as received, without its line terminator.
	Raw string
	// Kind is the classification of the line.
	Kind Kind
	// Content is the payload after any command marker was stripped. It
	// equals Raw when the line carries no marker.
	Content string
	// Attrs holds the kind-specific fields.
	Attrs Attributes
}

// HasPrefix reports whether the frame was produced by a command marker.
func (f Frame) HasPrefix() bool {
	return f.Attrs.Prefix != ""
}
