// Package cities canonicalizes city names for coverage matching. Storage
// keeps the title-cased spelling; every comparison goes through Normalize so
// "Yaoundé", "yaounde" and " YAOUNDÉ " land on the same key.
package cities

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	stripDiacritics = transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	titleCaser = cases.Title(language.Und)
)

// Normalize returns the comparison key for a city name: trimmed, lowercased,
// inner whitespace collapsed, diacritics stripped.
func Normalize(name string) string {
	collapsed := strings.Join(strings.Fields(name), " ")
	lowered := strings.ToLower(collapsed)
	stripped, _, err := transform.String(stripDiacritics, lowered)
	if err != nil {
		return lowered
	}
	return stripped
}

// Title returns the storage form of a city name: trimmed, whitespace
// collapsed, title-cased. Diacritics are preserved.
func Title(name string) string {
	collapsed := strings.Join(strings.Fields(name), " ")
	return titleCaser.String(collapsed)
}

// Equal reports whether two city names refer to the same city.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// Contains reports whether the normalized form of city appears in the
// normalized forms of covered.
func Contains(covered []string, city string) bool {
	key := Normalize(city)
	for _, candidate := range covered {
		if Normalize(candidate) == key {
			return true
		}
	}
	return false
}
