package normalizer

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	// Leading assignment/arrow residue: "= 5", "=> 5", ">5"
	leadingOperatorPattern = regexp.MustCompile(`^[=>]*\s*`)

	// Trailing unit suffix: "7.4V", "12 degC", "-75 dBm"
	trailingUnitPattern = regexp.MustCompile(`\s*[A-Za-z]+$`)
)

// CanonicalizeParameterName converts a raw parameter label into a storage-safe name.
// The result contains only [a-z0-9_], has no repeated underscores and no
// leading/trailing underscores. Applying it twice yields the same result.
func CanonicalizeParameterName(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))

	var b strings.Builder
	b.Grow(len(lowered))

	lastUnderscore := false
	for _, r := range lowered {
		isWord := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if isWord {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		// '_' and every other character collapse into a single '_'
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}

	return strings.Trim(b.String(), "_")
}

// CoerceValue converts a raw value token into int64, float64, string or nil.
//
// Leading '=' / '>' characters and a trailing alphabetic unit suffix are removed first.
// The remainder is parsed as an integer, or as a float when it contains a decimal
// point. Anything else is returned as the trimmed string; an empty remainder is nil.
func CoerceValue(raw string) any {
	value := strings.TrimSpace(raw)
	value = leadingOperatorPattern.ReplaceAllString(value, "")
	value = trailingUnitPattern.ReplaceAllString(value, "")

	if strings.Contains(value, ".") {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	} else if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return i
	}

	if value == "" {
		return nil
	}
	return value
}
