package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/achievement-api/internal/dto"
	"github.com/noah-isme/achievement-api/internal/middleware"
	"github.com/noah-isme/achievement-api/internal/models"
	appErrors "github.com/noah-isme/achievement-api/pkg/errors"
	"github.com/noah-isme/achievement-api/pkg/response"
)

type submissionService interface {
	Submit(ctx context.Context, req dto.SubmitAchievementRequest, studentID, institutionID string) (*models.SubmissionDetail, error)
	Get(ctx context.Context, submissionID string, actor *models.JWTClaims) (*models.SubmissionDetail, error)
	Withdraw(ctx context.Context, submissionID, studentID string) error
}

type evidenceService interface {
	Upload(ctx context.Context, studentID, filename string, r io.Reader) (*dto.EvidenceUploadResponse, error)
}

// SubmissionHandler exposes the student-facing submission endpoints.
type SubmissionHandler struct {
	submissions submissionService
	evidence    evidenceService
}

// NewSubmissionHandler constructs the handler.
func NewSubmissionHandler(submissions submissionService, evidence evidenceService) *SubmissionHandler {
	return &SubmissionHandler{submissions: submissions, evidence: evidence}
}

// UploadEvidence godoc
// @Summary Upload an evidence file
// @Tags Submissions
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Certificate, photo or document"
// @Success 201 {object} response.Envelope
// @Router /evidence [post]
func (h *SubmissionHandler) UploadEvidence(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
		return
	}
	defer src.Close()

	uploaded, err := h.evidence.Upload(c.Request.Context(), claims.UserID, fileHeader.Filename, src)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, uploaded)
}

// Submit godoc
// @Summary Submit an achievement for verification
// @Tags Submissions
// @Accept json
// @Produce json
// @Param payload body dto.SubmitAchievementRequest true "Achievement claim"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /submissions [post]
func (h *SubmissionHandler) Submit(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.SubmitAchievementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid submission payload"))
		return
	}
	detail, err := h.submissions.Submit(c.Request.Context(), req, claims.UserID, claims.InstitutionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, detail)
}

// Get godoc
// @Summary Get a submission with its verification signal
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id} [get]
func (h *SubmissionHandler) Get(c *gin.Context) {
	detail, err := h.submissions.Get(c.Request.Context(), c.Param("id"), middleware.CurrentUser(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Withdraw godoc
// @Summary Withdraw a pending submission
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /submissions/{id} [delete]
func (h *SubmissionHandler) Withdraw(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if err := h.submissions.Withdraw(c.Request.Context(), id, claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.WithdrawResponse{SubmissionID: id, Withdrawn: true}, nil)
}
