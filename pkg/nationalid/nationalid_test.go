package nationalid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidAcceptsWellFormedNumbers(t *testing.T) {
	for _, id := range []string{
		"10000000146",
		"12345678950",
	} {
		assert.True(t, Valid(id), id)
	}
}

func TestValidRejectsMalformedNumbers(t *testing.T) {
	cases := map[string]string{
		"too short":          "1234567890",
		"too long":           "123456789012",
		"leading zero":       "01234567895",
		"non-digit":          "1234567895x",
		"bad tenth digit":    "12345678960",
		"bad eleventh digit": "12345678951",
		"empty":              "",
	}
	for name, id := range cases {
		assert.False(t, Valid(id), name)
	}
}
