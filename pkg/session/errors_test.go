package session

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("outer: %w", Wrap(KindIO, "open", cause))

	assert.True(t, IsKind(err, KindIO))
	assert.False(t, IsKind(err, KindParse))
	assert.Equal(t, KindIO, KindOf(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "outer: open: boom", err.Error())

	assert.False(t, IsKind(cause, KindIO))
	assert.Equal(t, ErrorKind(0), KindOf(cause))
}

func TestErrorKindString(t *testing.T) {
	assert.Equal(t, "FRAMING", KindFraming.String())
	assert.Equal(t, "NEGOTIATION", KindNegotiation.String())
	assert.Equal(t, "KIND(99)", ErrorKind(99).String())
}

func TestStateString(t *testing.T) {
	for state, want := range map[State]string{
		StateConnect: "CONNECT",
		StateOpen:    "OPEN",
		StateData:    "DATA",
		StateClose:   "CLOSE",
		State(9):     "UNKNOWN",
	} {
		assert.Equal(t, want, state.String())
	}
}
