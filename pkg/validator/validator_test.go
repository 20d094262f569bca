package validator

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

type sample struct {
	UserID string `validate:"required,uuid"`
	Amount int    `validate:"gt=0"`
	Score  int    `validate:"max=100"`
}

func TestFormatValidationError(t *testing.T) {
	v := validator.New()
	err := v.Struct(sample{Amount: 0, Score: 120})

	msg := FormatValidationError(err)
	assert.Contains(t, msg, "user_id is required")
	assert.Contains(t, msg, "amount must be greater than 0")
	assert.Contains(t, msg, "score must be at most 100")
}

func TestFormatValidationErrorPassesOtherErrors(t *testing.T) {
	assert.Equal(t, "unexpected EOF", FormatValidationError(errors.New("unexpected EOF")))
}
