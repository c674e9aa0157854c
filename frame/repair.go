package frame

import (
	"math"
	"strconv"
)

// Repair folds a numeric partial into the complete number that followed it.
//
// Devices that write a sign or a leading decimal point separately from the
// rest of a number produce two lines, e.g. "-" then "5", or ".25" then "3".
// When prev is such a partial and next is KindNumeric, Repair returns the
// merged frame and merged is true; the caller must drop prev. Otherwise next
// is returned unchanged. Only the single preceding frame is considered.
func Repair(prev, next Frame) (repaired Frame, merged bool) {
	if next.Kind != KindNumeric || prev.Kind != KindNumericPartial {
		return next, false
	}

	switch {
	case prev.Attrs.IsNegative:
		value := -math.Abs(next.Attrs.Value)
		out := next
		out.Raw = prev.Raw + next.Raw
		out.Content = formatValue(value)
		out.Attrs.Value = value
		out.Attrs.IsNegative = true
		out.Attrs.WholePart = truncate(value)
		return out, true

	case prev.Attrs.HasDecimal:
		current := next.Attrs.Value
		if current != math.Trunc(current) || prev.Attrs.DecimalPart == "" {
			return next, false
		}
		value, err := strconv.ParseFloat(formatValue(current)+DecimalDot+prev.Attrs.DecimalPart, 64)
		if err != nil {
			return next, false
		}
		out := next
		out.Raw = prev.Raw + next.Raw
		out.Content = formatValue(value)
		out.Attrs.Value = value
		out.Attrs.HasDecimal = true
		out.Attrs.WholePart = truncate(value)
		out.Attrs.DecimalPart = prev.Attrs.DecimalPart
		return out, true
	}

	return next, false
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
