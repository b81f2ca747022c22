package matching

import (
	"strings"
	"unicode"

	"CoopLedgerSaas/internal/model"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// normalizeName lower-cases s, drops everything but letters and digits and
// collapses whitespace, so "JANE A. DOE" and "jane a doe" compare equal.
func normalizeName(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == ',' || r == '/':
			space = true
		}
	}
	return b.String()
}

// similarity returns the Levenshtein ratio of two normalized names in [0,1].
func similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	return levenshtein.RatioForStrings([]rune(a), []rune(b), levenshtein.DefaultOptions)
}

// memberScore is the best similarity of raw against the member's full, first
// and last names.
func memberScore(raw string, m model.Member) float64 {
	best := 0.0
	for _, candidate := range []string{m.FullName(), m.FirstName, m.LastName} {
		if s := similarity(raw, normalizeName(candidate)); s > best {
			best = s
		}
	}
	return best
}
