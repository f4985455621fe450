package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMatchesKindAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Persistence("drawer.apply", cause)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrValidation)
	assert.Equal(t, "drawer.apply: persistence error: connection refused", err.Error())
}

func TestPersistenceDoesNotDoubleWrap(t *testing.T) {
	inner := Persistence("feed.list", errors.New("timeout"))
	outer := Persistence("board.refresh", inner)

	assert.Same(t, inner, outer)
	assert.Nil(t, Persistence("noop", nil))
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"validation", Validation("op", "qty %d", 0), ErrValidation},
		{"funds", InsufficientFunds("op", "short"), ErrInsufficientFunds},
		{"transition", IllegalTransition("op", "closed"), ErrIllegalTransition},
		{"not found", NotFound("op", "line %q", "x"), ErrNotFound},
		{"foreign", errors.New("boom"), nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := Validation("pos.BuildLine", "quantity must be at least 1, got %d", 0)
	assert.Equal(t, "pos.BuildLine: quantity must be at least 1, got 0", err.Error())

	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "pos.BuildLine", ae.Op)
}
