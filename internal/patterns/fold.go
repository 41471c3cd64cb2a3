package patterns

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// leetRatio is the share of leet characters above which a message is flagged
const leetRatio = 0.3

var leetMap = map[rune]rune{
	'0': 'o',
	'1': 'i',
	'3': 'e',
	'4': 'a',
	'5': 's',
	'7': 't',
	'8': 'b',
	'@': 'a',
	'$': 's',
	'!': 'i',
	'|': 'l',
	'+': 't',
}

// Cyrillic and Greek letters that render like Latin ones
var homoglyphMap = map[rune]rune{
	'а': 'a', 'в': 'b', 'е': 'e', 'к': 'k', 'м': 'm', 'н': 'h', 'о': 'o',
	'р': 'p', 'с': 'c', 'т': 't', 'у': 'y', 'х': 'x', 'і': 'i', 'ј': 'j',
	'ѕ': 's', 'ԁ': 'd', 'ɡ': 'g', 'ӏ': 'l',
	'α': 'a', 'β': 'b', 'ε': 'e', 'η': 'n', 'ι': 'i', 'κ': 'k', 'ν': 'v',
	'ο': 'o', 'ρ': 'p', 'τ': 't', 'υ': 'u', 'χ': 'x',
}

func isInvisible(r rune) bool {
	switch {
	case r >= 0x200B && r <= 0x200F:
		return true
	case r >= 0x202A && r <= 0x202E:
		return true
	case r >= 0x2060 && r <= 0x2069:
		return true
	case r == 0xFEFF, r == 0x00AD, r == 0x061C:
		return true
	}
	return false
}

func isLeet(r rune) bool {
	_, ok := leetMap[r]
	return ok
}

// Fold reduces text to the form toxicity rules are matched against: invisible
// characters dropped, compatibility forms and diacritics removed, lower-cased,
// homoglyphs and leet characters mapped to letters, and spaced or dotted
// letters joined back into words.
func Fold(text string) string {
	text = strings.Map(func(r rune) rune {
		if isInvisible(r) {
			return -1
		}
		return r
	}, text)

	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if s, _, err := transform.String(t, text); err == nil {
		text = s
	}
	text = strings.ToLower(text)

	fields := strings.Fields(text)
	for i, f := range fields {
		fields[i] = foldWord(f)
	}
	return strings.Join(joinSpaced(fields), " ")
}

// splitTrailing separates trailing punctuation so "idiot!!!" is not read as leet
func splitTrailing(w string) (core, tail string) {
	end := len(w)
	for end > 0 {
		r, size := utf8.DecodeLastRuneInString(w[:end])
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			break
		}
		end -= size
	}
	return w[:end], w[end:]
}

func foldWord(w string) string {
	core, tail := splitTrailing(w)
	hasLetter := strings.IndexFunc(core, unicode.IsLetter) >= 0

	var b strings.Builder
	b.Grow(len(w))
	for _, r := range core {
		if g, ok := homoglyphMap[r]; ok {
			r = g
		} else if hasLetter {
			if l, ok := leetMap[r]; ok {
				r = l
			}
		}
		b.WriteRune(r)
	}
	return undot(b.String()) + tail
}

// undot turns "f.u.c.k" into "fuck"; anything that is not strictly
// letter-separator-letter is returned unchanged
func undot(w string) string {
	if utf8.RuneCountInString(w) < 5 {
		return w
	}
	var b strings.Builder
	letter := true
	for _, r := range w {
		if letter {
			if !unicode.IsLetter(r) {
				return w
			}
			b.WriteRune(r)
		} else if !strings.ContainsRune(".-_*", r) {
			return w
		}
		letter = !letter
	}
	if letter {
		// ended on a separator
		return w
	}
	return b.String()
}

// joinSpaced merges runs of three or more single-letter words
func joinSpaced(fields []string) []string {
	out := fields[:0:0]
	for i := 0; i < len(fields); {
		j := i
		for j < len(fields) && isSingleLetter(fields[j]) {
			j++
		}
		if j-i >= 3 {
			out = append(out, strings.Join(fields[i:j], ""))
			i = j
			continue
		}
		out = append(out, fields[i])
		i++
	}
	return out
}

func isSingleLetter(s string) bool {
	r, size := utf8.DecodeRuneInString(s)
	return size == len(s) && unicode.IsLetter(r)
}

// hasHomoglyphs reports words mixing Latin with Cyrillic or Greek letters, and
// compatibility look-alikes (fullwidth, mathematical) that fold to ASCII.
func hasHomoglyphs(text string) bool {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		var latin, other bool
		for _, r := range w {
			switch {
			case r > unicode.MaxASCII && isASCIILookalike(r):
				return true
			case unicode.Is(unicode.Latin, r):
				latin = true
			case unicode.Is(unicode.Cyrillic, r), unicode.Is(unicode.Greek, r):
				other = true
			}
		}
		if latin && other {
			return true
		}
	}
	return false
}

func isASCIILookalike(r rune) bool {
	s := norm.NFKC.String(string(r))
	if s == string(r) || s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= utf8.RuneSelf || !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

// isLeetHeavy reports messages where leet characters inside words make up
// more than leetRatio of the non-space characters
func isLeetHeavy(text string) bool {
	var total, leet int
	for _, w := range strings.Fields(text) {
		core, tail := splitTrailing(w)
		hasLetter := strings.IndexFunc(core, unicode.IsLetter) >= 0
		for _, r := range core {
			total++
			if hasLetter && isLeet(r) {
				leet++
			}
		}
		total += utf8.RuneCountInString(tail)
	}
	if total == 0 || leet < 2 {
		return false
	}
	return float64(leet)/float64(total) > leetRatio
}
