package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/achievement-api/internal/dto"
	"github.com/noah-isme/achievement-api/internal/middleware"
	"github.com/noah-isme/achievement-api/internal/models"
	appErrors "github.com/noah-isme/achievement-api/pkg/errors"
)

type reviewServiceMock struct {
	lastQuery    dto.ReviewQueueQuery
	lastDecision dto.DecisionRequest
	reviewer     string
	decideErr    error
}

func (m *reviewServiceMock) ListQueue(ctx context.Context, query dto.ReviewQueueQuery) ([]models.ReviewQueueItem, *models.Pagination, error) {
	m.lastQuery = query
	return []models.ReviewQueueItem{{SubmissionID: "sub-1"}}, &models.Pagination{Page: 1, PageSize: 50, TotalCount: 1}, nil
}

func (m *reviewServiceMock) OpenReview(ctx context.Context, submissionID, reviewerID string) (*models.Submission, error) {
	m.reviewer = reviewerID
	return &models.Submission{ID: submissionID, Status: models.SubmissionStatusUnderReview}, nil
}

func (m *reviewServiceMock) Decide(ctx context.Context, submissionID string, req dto.DecisionRequest, reviewerID string) (*models.Approval, error) {
	m.lastDecision, m.reviewer = req, reviewerID
	if m.decideErr != nil {
		return nil, m.decideErr
	}
	return &models.Approval{ID: "ap-1", SubmissionID: submissionID, Status: models.Decision(req.Decision)}, nil
}

func (m *reviewServiceMock) Rescore(ctx context.Context, submissionID, actorID string) (*models.VerificationSignal, error) {
	return &models.VerificationSignal{SubmissionID: submissionID, Status: models.SignalStatusComplete}, nil
}

var facultyClaims = &models.JWTClaims{UserID: "fac-1", Role: models.RoleFaculty, InstitutionID: "inst-1"}

func decideContext(body string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/submissions/sub-1/decision", bytes.NewBufferString(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = gin.Params{{Key: "id", Value: "sub-1"}}
	c.Set(middleware.ContextUserKey, facultyClaims)
	return c, w
}

func TestReviewHandlerQueueDefaultsFacultyInstitution(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &reviewServiceMock{}
	h := NewReviewHandler(svc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/review-queue?status=pending&page=2&pageSize=10", nil)
	c.Set(middleware.ContextUserKey, facultyClaims)

	h.Queue(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"pending"}, svc.lastQuery.Status)
	assert.Equal(t, 2, svc.lastQuery.Page)
	assert.Equal(t, 10, svc.lastQuery.PageSize)
	assert.Equal(t, "inst-1", svc.lastQuery.InstitutionID)
	assert.Contains(t, w.Body.String(), `"total_count":1`)
}

func TestReviewHandlerDecide(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &reviewServiceMock{}
	h := NewReviewHandler(svc)

	c, w := decideContext(`{"decision":"approved","marks":40,"feedback":"good"}`)
	h.Decide(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "fac-1", svc.reviewer)
	require.NotNil(t, svc.lastDecision.Marks)
	assert.Equal(t, 40, *svc.lastDecision.Marks)
}

func TestReviewHandlerDecideErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "policy conflict", err: appErrors.ErrPolicyConflict, status: http.StatusConflict, code: "POLICY_CONFLICT"},
		{name: "marks out of range", err: appErrors.ErrMarksOutOfRange, status: http.StatusUnprocessableEntity, code: "MARKS_OUT_OF_RANGE"},
		{name: "already finalized", err: appErrors.ErrSubmissionAlreadyFinalized, status: http.StatusConflict, code: "SUBMISSION_ALREADY_FINALIZED"},
		{name: "ledger contention", err: appErrors.ErrLedgerContention, status: http.StatusServiceUnavailable, code: "LEDGER_CONTENTION"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewReviewHandler(&reviewServiceMock{decideErr: tc.err})
			c, w := decideContext(`{"decision":"approved","marks":60,"feedback":"x"}`)
			h.Decide(c)
			assert.Equal(t, tc.status, w.Code)
			assert.Contains(t, w.Body.String(), tc.code)
			if tc.status == http.StatusServiceUnavailable {
				assert.Equal(t, "1", w.Header().Get("Retry-After"))
			}
		})
	}
}

func TestReviewHandlerOpenReview(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &reviewServiceMock{}
	h := NewReviewHandler(svc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/submissions/sub-1/review", nil)
	c.Params = gin.Params{{Key: "id", Value: "sub-1"}}
	c.Set(middleware.ContextUserKey, facultyClaims)

	h.OpenReview(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"under_review"`)
}
