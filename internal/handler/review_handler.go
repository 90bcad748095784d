package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/achievement-api/internal/dto"
	"github.com/noah-isme/achievement-api/internal/middleware"
	"github.com/noah-isme/achievement-api/internal/models"
	appErrors "github.com/noah-isme/achievement-api/pkg/errors"
	"github.com/noah-isme/achievement-api/pkg/response"
)

type reviewService interface {
	ListQueue(ctx context.Context, query dto.ReviewQueueQuery) ([]models.ReviewQueueItem, *models.Pagination, error)
	OpenReview(ctx context.Context, submissionID, reviewerID string) (*models.Submission, error)
	Decide(ctx context.Context, submissionID string, req dto.DecisionRequest, reviewerID string) (*models.Approval, error)
	Rescore(ctx context.Context, submissionID, actorID string) (*models.VerificationSignal, error)
}

// ReviewHandler exposes the reviewer endpoints.
type ReviewHandler struct {
	service reviewService
}

// NewReviewHandler constructs the handler.
func NewReviewHandler(service reviewService) *ReviewHandler {
	return &ReviewHandler{service: service}
}

// Queue godoc
// @Summary List submissions awaiting review
// @Tags Review
// @Produce json
// @Param status query string false "Comma separated statuses (default pending,under_review)"
// @Param studentId query string false "Student filter"
// @Param institutionId query string false "Institution filter"
// @Param category query string false "Activity category"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /review-queue [get]
func (h *ReviewHandler) Queue(c *gin.Context) {
	var query dto.ReviewQueueQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query"))
		return
	}
	if claims := middleware.CurrentUser(c); claims != nil && claims.Role == models.RoleFaculty && query.InstitutionID == "" {
		query.InstitutionID = claims.InstitutionID
	}
	items, pagination, err := h.service.ListQueue(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// OpenReview godoc
// @Summary Start reviewing a submission
// @Tags Review
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/review [post]
func (h *ReviewHandler) OpenReview(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	submission, err := h.service.OpenReview(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// Decide godoc
// @Summary Approve or reject a submission
// @Tags Review
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body dto.DecisionRequest true "Decision"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /submissions/{id}/decision [post]
func (h *ReviewHandler) Decide(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid decision payload"))
		return
	}
	approval, err := h.service.Decide(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, approval)
}

// Rescore godoc
// @Summary Recompute the verification signal of an open submission
// @Tags Review
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/rescore [post]
func (h *ReviewHandler) Rescore(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	signal, err := h.service.Rescore(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, signal, nil)
}
