package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Normalize canonicalizes question text for keying: Unicode NFKC, lower-cased,
// with runs of whitespace collapsed to one space and the ends trimmed.
func Normalize(s string) string {
	s = strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
	return cases.Lower(language.Und).String(s)
}

// Key hashes parts into a stable hex digest. Parts are separated by a unit
// separator byte so ("ab", "c") and ("a", "bc") hash differently.
func Key(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0x1f})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// QuestionKey is the key for a normalized question alone.
func QuestionKey(question string) string {
	return Key(Normalize(question))
}
