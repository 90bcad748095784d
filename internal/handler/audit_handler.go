package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/achievement-api/internal/dto"
	"github.com/noah-isme/achievement-api/internal/middleware"
	"github.com/noah-isme/achievement-api/internal/models"
	appErrors "github.com/noah-isme/achievement-api/pkg/errors"
	"github.com/noah-isme/achievement-api/pkg/response"
)

type auditTrailService interface {
	ResolveQuery(query dto.AuditTrailQuery, actor *models.JWTClaims) (models.TrailScope, models.TrailFilter, error)
	Collect(ctx context.Context, scope models.TrailScope, filter models.TrailFilter) (*dto.AuditTrailResponse, error)
	Export(ctx context.Context, scope models.TrailScope, filter models.TrailFilter, format string) ([]byte, string, error)
	VerifyChain(ctx context.Context) (*models.ChainReport, error)
}

// AuditHandler serves the verified audit trail and ledger checks.
type AuditHandler struct {
	service auditTrailService
	now     func() time.Time
}

// NewAuditHandler constructs the handler.
func NewAuditHandler(service auditTrailService) *AuditHandler {
	return &AuditHandler{service: service, now: time.Now}
}

// Trail godoc
// @Summary Read the verified decision history of a student or institution
// @Tags Audit
// @Produce json
// @Param studentId query string false "Student ID"
// @Param institutionId query string false "Institution ID"
// @Param decision query string false "approved or rejected"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /audit-trail [get]
func (h *AuditHandler) Trail(c *gin.Context) {
	scope, filter, ok := h.resolve(c)
	if !ok {
		return
	}
	trail, err := h.service.Collect(c.Request.Context(), scope, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, trail, nil, map[string]interface{}{"omitted": trail.Omitted})
}

// Export godoc
// @Summary Export the verified audit trail
// @Tags Audit
// @Produce text/csv
// @Produce application/pdf
// @Param studentId query string false "Student ID"
// @Param institutionId query string false "Institution ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /audit-trail/export [get]
func (h *AuditHandler) Export(c *gin.Context) {
	scope, filter, ok := h.resolve(c)
	if !ok {
		return
	}
	format := c.DefaultQuery("format", "csv")
	body, contentType, err := h.service.Export(c.Request.Context(), scope, filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := fmt.Sprintf("audit-trail-%s.%s", h.now().UTC().Format("20060102"), format)
	response.Attachment(c, filename, contentType, body)
}

// VerifyLedger godoc
// @Summary Verify the whole decision ledger
// @Tags Audit
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /ledger/verify [get]
func (h *AuditHandler) VerifyLedger(c *gin.Context) {
	report, err := h.service.VerifyChain(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

func (h *AuditHandler) resolve(c *gin.Context) (models.TrailScope, models.TrailFilter, bool) {
	var query dto.AuditTrailQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid audit trail query"))
		return models.TrailScope{}, models.TrailFilter{}, false
	}
	scope, filter, err := h.service.ResolveQuery(query, middleware.CurrentUser(c))
	if err != nil {
		response.Error(c, err)
		return models.TrailScope{}, models.TrailFilter{}, false
	}
	return scope, filter, true
}
