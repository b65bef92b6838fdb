// Package validation provides input validation for station names and
// source tags.
package validation

import (
	"fmt"
	"strings"
	"unicode"
)

// =============================================================================
// Name Validation
// =============================================================================

// NameRules defines the validation rules for a name.
type NameRules struct {
	MinLength    int
	MaxLength    int
	AllowSpaces  bool
	AllowDots    bool
	AllowHyphens bool
	AllowUnders  bool

	// Extra lists further allowed punctuation.
	Extra string
}

// StationNameRules returns the rules for station names. Station names are
// taken from feed headers and may contain spaces and light punctuation.
func StationNameRules() NameRules {
	return NameRules{
		MinLength:    1,
		MaxLength:    255,
		AllowSpaces:  true,
		AllowDots:    true,
		AllowHyphens: true,
		AllowUnders:  true,
		Extra:        "'()&/+",
	}
}

// SourceTagRules returns the rules for source tags such as "EC".
func SourceTagRules() NameRules {
	return NameRules{
		MinLength:    1,
		MaxLength:    32,
		AllowHyphens: true,
		AllowUnders:  true,
	}
}

// ValidateName validates a name according to the given rules.
func ValidateName(name string, rules NameRules) error {
	n := len([]rune(name))
	if n < rules.MinLength {
		return fmt.Errorf("name too short: minimum %d characters required", rules.MinLength)
	}
	if n > rules.MaxLength {
		return fmt.Errorf("name too long: maximum %d characters allowed", rules.MaxLength)
	}

	if strings.TrimSpace(name) != name {
		return fmt.Errorf("name cannot start or end with whitespace")
	}

	for i, r := range name {
		if r < 32 || r == 127 {
			return fmt.Errorf("name cannot contain control characters at position %d", i)
		}
		if r == ',' || r == '"' {
			return fmt.Errorf("name cannot contain CSV delimiters at position %d", i)
		}
		if !isAllowedNameChar(r, rules) {
			return fmt.Errorf("invalid character '%c' at position %d", r, i)
		}
	}

	return nil
}

func isAllowedNameChar(r rune, rules NameRules) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case ' ':
		return rules.AllowSpaces
	case '.':
		return rules.AllowDots
	case '-':
		return rules.AllowHyphens
	case '_':
		return rules.AllowUnders
	}
	return strings.ContainsRune(rules.Extra, r)
}

// ValidateStationName validates a station name.
func ValidateStationName(name string) error {
	return ValidateName(name, StationNameRules())
}

// ValidateSourceTag validates a source tag.
func ValidateSourceTag(tag string) error {
	return ValidateName(tag, SourceTagRules())
}
