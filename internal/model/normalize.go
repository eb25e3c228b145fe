package model

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// placeholders are source values that mean "no data".
var placeholders = map[string]bool{
	"":        true,
	"-":       true,
	"--":      true,
	"n/a":     true,
	"na":      true,
	"none":    true,
	"null":    true,
	"unknown": true,
}

// IsPlaceholder reports whether s carries no information.
func IsPlaceholder(s string) bool {
	return placeholders[strings.ToLower(strings.TrimSpace(s))]
}

// NormalizeText folds case and width, drops punctuation and collapses
// whitespace, for comparing free-text descriptions across sources.
func NormalizeText(s string) string {
	s = cases.Fold().String(norm.NFKC.String(s))
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteRune(r)
			space = false
			continue
		}
		space = true
	}
	return b.String()
}

var dateLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"1-2-2006",
	"01/02/06",
	"1/2/06",
	"01-02-06",
	"Jan 2, 2006",
	"January 2, 2006",
}

// NormalizeDate renders any recognised date as YYYY-MM-DD. Unrecognised text
// is returned trimmed; placeholders become "".
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if IsPlaceholder(s) {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}

var amountRe = regexp.MustCompile(`-?\d[\d,]*(?:\.\d+)?|-?\.\d+`)

// ParseAmount extracts a monetary amount from text such as "$1,250.00" or
// "(45.00)". Returns nil when no number is present.
func ParseAmount(s string) *float64 {
	s = strings.TrimSpace(s)
	if IsPlaceholder(s) {
		return nil
	}
	m := amountRe.FindString(s)
	if m == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(m, ",", ""), 64)
	if err != nil {
		return nil
	}
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") && f > 0 {
		f = -f
	}
	return &f
}
