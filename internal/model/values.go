package model

import (
	"strconv"
	"strings"
)

// ParsePrice normalizes a heterogeneous price representation (int, float,
// or string with currency symbols / thousands separators) into whole
// currency units. Returns false for empty, unparsable, or non-positive
// values. Re-parsing an already-canonical value returns the same value.
func ParsePrice(raw any) (int, bool) {
	switch v := raw.(type) {
	case nil:
		return 0, false
	case int:
		return positive(v)
	case int64:
		return positive(int(v))
	case float64:
		return positive(int(v))
	case string:
		cleaned := stripNonNumeric(v, true)
		if cleaned == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, false
		}
		return positive(int(f))
	default:
		return 0, false
	}
}

// ParseMileage normalizes a mileage representation into miles. Accepts the
// same shapes as ParsePrice plus a trailing "k" multiplier ("78k" → 78000).
func ParseMileage(raw any) (int, bool) {
	switch v := raw.(type) {
	case nil:
		return 0, false
	case int:
		return positive(v)
	case int64:
		return positive(int(v))
	case float64:
		return positive(int(v))
	case string:
		s := strings.TrimSpace(strings.ToLower(v))
		for _, suffix := range []string{"odometer", "mileage", "miles", "mi"} {
			s = strings.TrimSpace(strings.TrimSuffix(s, suffix))
		}
		mult := 1
		if strings.HasSuffix(s, "k") {
			mult = 1000
			s = strings.TrimSuffix(s, "k")
		}
		cleaned := stripNonNumeric(s, false)
		if cleaned == "" {
			return 0, false
		}
		n, err := strconv.Atoi(cleaned)
		if err != nil {
			return 0, false
		}
		return positive(n * mult)
	default:
		return 0, false
	}
}

// stripNonNumeric removes everything but digits, optionally preserving the
// first decimal point so "$12,499.50" parses as 12499.50.
func stripNonNumeric(s string, keepDecimal bool) string {
	var b strings.Builder
	sawDot := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' && keepDecimal && !sawDot:
			sawDot = true
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "." {
		return ""
	}
	return out
}

func positive(n int) (int, bool) {
	if n <= 0 {
		return 0, false
	}
	return n, true
}
