package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_CategoryAndCauseAreMatchable(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("record purchase: %w", NewPersistenceError("failed to insert payment", cause))

	assert.ErrorIs(t, err, ErrInternal)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "persistence_failure", CodeOf(err))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestNewRejection(t *testing.T) {
	rejected := NewRejection("coupon_expired", "coupon has expired")

	assert.ErrorIs(t, rejected, ErrUnprocessable)
	assert.NotErrorIs(t, rejected, ErrNotFound)
	assert.Equal(t, "coupon has expired", rejected.Error())
}

func TestCodeOf_PlainError(t *testing.T) {
	assert.Equal(t, "", CodeOf(errors.New("boom")))
}

func TestNewInvalidStateError(t *testing.T) {
	err := NewInvalidStateError("refunded", "completed")
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, "cannot transition from refunded to completed", err.Error())
}
