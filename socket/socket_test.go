package socket

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseType(t *testing.T) {
	tp, err := ParseType("ROUTER")
	assert.NoError(t, err)
	assert.Equal(t, Router, tp)

	_, err = ParseType("BOGUS")
	assert.Error(t, err)
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "DEALER", Dealer.String())
	assert.Equal(t, "UNKNOWN", Type(99).String())
}

func TestBindPortPatternMatchesWildcard(t *testing.T) {
	m := bindPortPattern.FindStringSubmatch("tcp://127.0.0.1:*")
	if assert.NotNil(t, m) {
		assert.Equal(t, "*", m[2])
	}
}

func TestBindPortPatternMatchesRangedBang(t *testing.T) {
	m := bindPortPattern.FindStringSubmatch("tcp://127.0.0.1:![60000-61000]")
	if assert.NotNil(t, m) {
		assert.Equal(t, "!", m[2])
		assert.Equal(t, "60000", m[3])
		assert.Equal(t, "61000", m[4])
	}
}

func TestBindPortPatternIgnoresPlainEndpoint(t *testing.T) {
	m := bindPortPattern.FindStringSubmatch("tcp://127.0.0.1:5555")
	assert.Nil(t, m)
}
