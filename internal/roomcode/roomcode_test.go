package roomcode

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var codePattern = regexp.MustCompile(`^[A-Z2-9]{6}$`)

func TestGenerate_MatchesFormat(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := Generate()
		require.NoError(t, err)
		assert.Regexp(t, codePattern, code)
		assert.NotContains(t, code, "I")
		assert.NotContains(t, code, "O")
		assert.True(t, Valid(code))
	}
}

func TestValid(t *testing.T) {
	cases := []struct {
		code string
		want bool
	}{
		{"ABC234", true},
		{"ABC23", false},
		{"ABC2345", false},
		{"ABCI23", false},
		{"ABC0O1", false},
		{"abc234", false},
		{"", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Valid(tc.code), tc.code)
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "ABC234", Normalize("  abc234 "))
}

func TestValid_AlphabetOnly(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		code := rapid.StringOfN(rapid.SampledFrom([]rune(Alphabet)), Length, Length, -1).Draw(t, "code")
		if !Valid(code) {
			t.Fatalf("expected %q to be valid", code)
		}
	})
}
