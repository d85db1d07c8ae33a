package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFold(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Anna", "anna"},
		{"  ANNA  ", "anna"},
		{"Zoë", "zoe"},
		{"Crème   Brûlée", "creme brulee"},
		{"STRASSE", "strasse"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Fold(tc.in), tc.in)
	}
}

func TestLetters(t *testing.T) {
	assert.Equal(t, "elephant", Letters(" Éléphant! "))
	assert.Equal(t, "icecream", Letters("ice-cream"))
}

func TestClean(t *testing.T) {
	assert.Equal(t, "Bo Li", Clean("  Bo   Li "))
}
