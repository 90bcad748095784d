package dto

import (
	"time"

	"github.com/noah-isme/achievement-api/internal/models"
)

// AuditTrailQuery selects an audit trail. Exactly one of StudentID or InstitutionID is expected.
type AuditTrailQuery struct {
	StudentID     string     `form:"studentId"`
	InstitutionID string     `form:"institutionId"`
	Decision      string     `form:"decision" validate:"omitempty,oneof=approved rejected"`
	From          *time.Time `form:"from" time_format:"2006-01-02"`
	To            *time.Time `form:"to" time_format:"2006-01-02"`
	Format        string     `form:"format" validate:"omitempty,oneof=csv pdf"`
}

// AuditTrailResponse lists the verified entries of a trail. Omitted counts entries that failed
// verification and were reported instead of returned.
type AuditTrailResponse struct {
	Entries []models.TrailEntry `json:"entries"`
	Omitted int                 `json:"omitted"`
}
