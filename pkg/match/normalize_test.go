package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Ace Plumbing LLC", "ace plumbing"},
		{"Ace Plumbing, Inc.", "ace plumbing"},
		{"ACE PLUMBING", "ace plumbing"},
		{"Joe's Pizza & Subs Co.", "joes pizza subs"},
		{"Smith-Jones Heating/Cooling Ltd", "smith jones heating cooling"},
		{"  Quality   Roofing  ", "quality roofing"},
		{"LLC", "llc"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, NormalizeName(c.in), "input %q", c.in)
	}
}

func TestNormalizeNameIdempotent(t *testing.T) {
	inputs := []string{"Ace Plumbing LLC", "Joe's Pizza & Subs", "Smith-Jones Heating Corp"}
	for _, in := range inputs {
		once := NormalizeName(in)
		assert.Equal(t, once, NormalizeName(once))
	}
}

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"(512) 555-0134", "+15125550134"},
		{"512.555.0134", "+15125550134"},
		{"1-512-555-0134", "+15125550134"},
		{"+1 512 555 0134", "+15125550134"},
		{"555-0134", ""},
		{"+44 20 7946 0958", ""},
		{"", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, NormalizePhone(c.in), "input %q", c.in)
	}
}

func TestNormalizeDomain(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://www.aceplumbing.com/contact", "aceplumbing.com"},
		{"http://ACEPLUMBING.COM", "aceplumbing.com"},
		{"aceplumbing.com", "aceplumbing.com"},
		{"https://aceplumbing.com:8080/", "aceplumbing.com"},
		{"", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, NormalizeDomain(c.in), "input %q", c.in)
	}
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, Levenshtein("ace plumbing", "ace plumbing"))
	assert.Equal(t, 1, Levenshtein("ace plumbing", "ace plumbin"))
	assert.Equal(t, 3, Levenshtein("kitten", "sitting"))
	assert.Equal(t, 5, Levenshtein("", "hello"))
	assert.Equal(t, 4, Levenshtein("four", ""))
}
