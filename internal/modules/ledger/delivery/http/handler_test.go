package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	ledgerDto "anoa.com/gamiledger/internal/modules/ledger/dto"
	"anoa.com/gamiledger/pkg/apperror"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLedger struct {
	lastAward ledgerDto.AwardRequest
	awardErr  error
	duplicate bool
}

func (f *fakeLedger) Award(ctx context.Context, req ledgerDto.AwardRequest) (*ledgerDto.AwardResult, error) {
	return f.AwardExternal(ctx, req)
}

func (f *fakeLedger) AwardExternal(ctx context.Context, req ledgerDto.AwardRequest) (*ledgerDto.AwardResult, error) {
	f.lastAward = req
	if f.awardErr != nil {
		return nil, f.awardErr
	}
	return &ledgerDto.AwardResult{UserID: req.UserID, NewTotal: req.Amount, Duplicate: f.duplicate}, nil
}

func (f *fakeLedger) AwardQuizResult(ctx context.Context, userID uuid.UUID, attemptID string, score int) (*ledgerDto.AwardResult, error) {
	return &ledgerDto.AwardResult{UserID: userID, NewTotal: score}, nil
}

func (f *fakeLedger) AwardDailyLogin(ctx context.Context, userID uuid.UUID) (*ledgerDto.AwardResult, error) {
	return &ledgerDto.AwardResult{UserID: userID, NewTotal: 5}, nil
}

func (f *fakeLedger) Snapshot(ctx context.Context, userID uuid.UUID) (*ledgerDto.SnapshotResponse, error) {
	return &ledgerDto.SnapshotResponse{UserID: userID, TotalPoints: 42}, nil
}

func newRouter(svc *fakeLedger, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewLedgerHandler(svc)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if userID != "" {
			c.Set("user_id", userID)
		}
		c.Next()
	})
	r.POST("/awards", h.Award)
	r.POST("/quiz-results", h.QuizResult)
	r.GET("/me", h.GetMine)
	return r
}

func TestAwardHandler(t *testing.T) {
	user := uuid.New()
	testCases := []struct {
		Desc     string
		Body     string
		Svc      *fakeLedger
		WantCode int
	}{
		{"created", fmt.Sprintf(`{"user_id":"%s","amount":10,"activity_type":"comment_posted"}`, user), &fakeLedger{}, http.StatusCreated},
		{"duplicate", fmt.Sprintf(`{"user_id":"%s","amount":10,"activity_type":"comment_posted","source_type":"comment","source_id":"c1"}`, user), &fakeLedger{duplicate: true}, http.StatusOK},
		{"missing amount", fmt.Sprintf(`{"user_id":"%s","activity_type":"comment_posted"}`, user), &fakeLedger{}, http.StatusBadRequest},
		{"invalid award", fmt.Sprintf(`{"user_id":"%s","amount":10,"activity_type":"streak_bonus"}`, user), &fakeLedger{awardErr: fmt.Errorf("system-only: %w", apperror.ErrInvalidAward)}, http.StatusBadRequest},
		{"store down", fmt.Sprintf(`{"user_id":"%s","amount":10,"activity_type":"comment_posted"}`, user), &fakeLedger{awardErr: apperror.ErrTransientStore}, http.StatusServiceUnavailable},
	}
	for _, tc := range testCases {
		t.Run(tc.Desc, func(t *testing.T) {
			r := newRouter(tc.Svc, "")
			req := httptest.NewRequest(http.MethodPost, "/awards", strings.NewReader(tc.Body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.WantCode, w.Code, w.Body.String())
		})
	}
}

func TestQuizResultValidatesScore(t *testing.T) {
	r := newRouter(&fakeLedger{}, "")
	body := fmt.Sprintf(`{"user_id":"%s","attempt_id":"a1","score":140}`, uuid.New())
	req := httptest.NewRequest(http.MethodPost, "/quiz-results", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "score must be at most 100")
}

func TestGetMine(t *testing.T) {
	user := uuid.New()
	r := newRouter(&fakeLedger{}, user.String())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data ledgerDto.SnapshotResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 42, body.Data.TotalPoints)
	assert.Equal(t, user, body.Data.UserID)

	anon := newRouter(&fakeLedger{}, "")
	w = httptest.NewRecorder()
	anon.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
