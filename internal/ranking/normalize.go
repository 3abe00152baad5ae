package ranking

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agext/levenshtein"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	markStripper = strings.NewReplacer("™", "", "®", "", "©", "", "℠", "")
	symbolWords  = strings.NewReplacer("&", " and ", "+", " and ")
	folder       = cases.Fold()

	// Bare "i" and "x" are left alone: they are words or names ("Mega Man X")
	// more often than numerals.
	romanNumerals = map[string]string{
		"ii": "2", "iii": "3", "iv": "4", "v": "5", "vi": "6", "vii": "7", "viii": "8", "ix": "9",
		"xi": "11", "xii": "12", "xiii": "13", "xiv": "14", "xv": "15", "xvi": "16",
	}
)

// Normalize reduces a title to a comparable form: accents and trademark
// marks removed, case folded, & and + spelled out, punctuation dropped, a
// leading "the" removed, Roman numerals after the first word written as
// digits and whitespace collapsed.
func Normalize(title string) string {
	title = markStripper.Replace(title)
	decomposed, _, err := transform.String(transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn))), title)
	if err == nil {
		title = decomposed
	}
	title = folder.String(title)
	title = symbolWords.Replace(title)

	var b strings.Builder
	b.Grow(len(title))
	for _, r := range title {
		switch {
		case r == '\'' || r == '’':
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	fields := strings.Fields(b.String())
	if len(fields) > 1 && fields[0] == "the" {
		fields = fields[1:]
	}
	for i := 1; i < len(fields); i++ {
		if digits, ok := romanNumerals[fields[i]]; ok {
			fields[i] = digits
		}
	}
	return strings.Join(fields, " ")
}

// Similarity compares two titles after normalization. It is the larger of
// the Levenshtein ratio on the normalized strings and on their sorted
// tokens, so word order does not matter.
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	direct := ratio(na, nb)
	if direct == 1 {
		return 1
	}
	return max(direct, ratio(sortedTokens(na), sortedTokens(nb)))
}

func sortedTokens(s string) string {
	tokens := strings.Fields(s)
	slices.Sort(tokens)
	return strings.Join(tokens, " ")
}

func ratio(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.Distance(a, b, nil))/float64(longest)
}
