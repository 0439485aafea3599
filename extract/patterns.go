package extract

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	pricePattern   = regexp.MustCompile(`\$[\d,]+`)
	expressPattern = regexp.MustCompile(`/express/([A-Z0-9]+)`)
	vinPattern     = regexp.MustCompile(`\b[A-HJ-NPR-Z0-9]{17}\b`)
	spacePattern   = regexp.MustCompile(`\s+`)
)

// FindPrice returns the first "$12,345" style token in text.
func FindPrice(text string) string {
	return pricePattern.FindString(text)
}

// FindVIN returns an express-checkout stock token, or else the first 17
// character VIN-shaped token that mixes letters and digits.
func FindVIN(text string) string {
	if m := expressPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	for _, tok := range vinPattern.FindAllString(text, -1) {
		if hasLetterAndDigit(tok) {
			return tok
		}
	}
	return ""
}

func hasLetterAndDigit(s string) bool {
	var letter, digit bool
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsLetter(r):
			letter = true
		}
	}
	return letter && digit
}

func collapseSpace(s string) string {
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}
