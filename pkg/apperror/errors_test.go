package apperror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestMapErrorToStatus(t *testing.T) {
	testCases := []struct {
		Desc string
		Err  error
		Want int
	}{
		{"not found", fmt.Errorf("quest: %w", ErrNotFound), http.StatusNotFound},
		{"invalid award", fmt.Errorf("amount must be positive: %w", ErrInvalidAward), http.StatusBadRequest},
		{"requirements", fmt.Errorf("2 steps remaining: %w", ErrRequirementsNotMet), http.StatusUnprocessableEntity},
		{"transient", ErrTransientStore, http.StatusServiceUnavailable},
		{"conflict", ErrConflict, http.StatusConflict},
		{"app error code wins", New(http.StatusTeapot, "teapot", ErrNotFound), http.StatusTeapot},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range testCases {
		t.Run(tc.Desc, func(t *testing.T) {
			assert.Equal(t, tc.Want, MapErrorToStatus(tc.Err))
		})
	}
}

func TestFromStore(t *testing.T) {
	testCases := []struct {
		Desc string
		Err  error
		Want error
	}{
		{"record not found", gorm.ErrRecordNotFound, ErrNotFound},
		{"serialization failure", &pgconn.PgError{Code: "40001"}, ErrTransientStore},
		{"deadlock", &pgconn.PgError{Code: "40P01"}, ErrTransientStore},
		{"unique violation", &pgconn.PgError{Code: "23505"}, ErrConflict},
		{"deadline", context.DeadlineExceeded, ErrTransientStore},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), ErrTransientStore},
		{"sentinel passes through", fmt.Errorf("x: %w", ErrRequirementsNotMet), ErrRequirementsNotMet},
	}
	for _, tc := range testCases {
		t.Run(tc.Desc, func(t *testing.T) {
			got := FromStore("op", tc.Err)
			assert.ErrorIs(t, got, tc.Want)
		})
	}

	assert.NoError(t, FromStore("op", nil))
	plain := FromStore("ledger.award", errors.New("syntax error"))
	assert.EqualError(t, plain, "ledger.award: syntax error")
	assert.False(t, IsRetryable(plain))
	assert.True(t, IsRetryable(FromStore("op", context.DeadlineExceeded)))
}
