package roomcode

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// Alphabet leaves out I, O, 0 and 1 so codes survive being read off a
// classroom projector.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const Length = 6

func Generate() (string, error) {
	code := make([]byte, Length)
	max := big.NewInt(int64(len(Alphabet)))
	for i := range code {
		num, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = Alphabet[num.Int64()]
	}
	return string(code), nil
}

// Normalize trims and upper-cases what a player typed.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func Valid(code string) bool {
	if len(code) != Length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(Alphabet, code[i]) < 0 {
			return false
		}
	}
	return true
}
