package stealth

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// uuleLengthAlphabet maps the canonical name length to the length marker
// character in the encoded value.
const uuleLengthAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

// BuildCanonicalName produces the canonical location string Google expects,
// e.g. "Boca Raton,Florida,United States".
func BuildCanonicalName(city, state string) string {
	parts := make([]string, 0, 3)
	if city = strings.TrimSpace(city); city != "" {
		parts = append(parts, city)
	}
	if state = strings.TrimSpace(state); state != "" {
		parts = append(parts, state)
	}
	parts = append(parts, "United States")
	return strings.Join(parts, ",")
}

// EncodeUULE encodes a canonical location name into the uule URL parameter
// value: "w+CAIQICI" + length marker + base64(canonicalName).
func EncodeUULE(canonicalName string) string {
	lengthChar := "A"
	if len(canonicalName) < len(uuleLengthAlphabet) {
		lengthChar = string(uuleLengthAlphabet[len(canonicalName)])
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(canonicalName))
	return fmt.Sprintf("w+CAIQICI%s%s", lengthChar, encoded)
}
