package match

import (
	"net/url"
	"strings"
	"unicode"
)

// legalSuffixes are trailing corporate designators stripped during name
// normalization so "Ace Plumbing LLC" and "Ace Plumbing" compare equal.
var legalSuffixes = map[string]bool{
	"llc":          true,
	"inc":          true,
	"incorporated": true,
	"corp":         true,
	"corporation":  true,
	"ltd":          true,
	"limited":      true,
	"co":           true,
	"company":      true,
	"llp":          true,
	"lp":           true,
	"pllc":         true,
	"pc":           true,
	"pa":           true,
}

// NormalizeName lowercases, strips punctuation, drops trailing legal
// suffixes and collapses whitespace.
func NormalizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '&' || r == '-' || r == '/':
			b.WriteRune(' ')
		}
	}

	words := strings.Fields(b.String())
	for len(words) > 1 && legalSuffixes[words[len(words)-1]] {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

// NormalizePhone reduces a phone string to E.164 for US numbers. Ten
// digits gain a +1 prefix; eleven digits starting with 1 drop the leading
// one. Anything else normalizes to empty and never participates in
// matching.
func NormalizePhone(phone string) string {
	var digits strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	switch {
	case len(d) == 10:
		return "+1" + d
	case len(d) == 11 && d[0] == '1':
		return "+1" + d[1:]
	default:
		return ""
	}
}

// NormalizeDomain reduces a website URL to its bare registrable host:
// lowercased, scheme and path dropped, leading www and any port stripped.
func NormalizeDomain(website string) string {
	website = strings.TrimSpace(strings.ToLower(website))
	if website == "" {
		return ""
	}
	if !strings.Contains(website, "://") {
		website = "https://" + website
	}
	parsed, err := url.Parse(website)
	if err != nil {
		return ""
	}
	host := parsed.Hostname()
	host = strings.TrimPrefix(host, "www.")
	return host
}

// Levenshtein computes the edit distance between two strings. Kept local
// because matching only ever compares short normalized names and no
// dependency in use provides it.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
