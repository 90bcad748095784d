package dto

import "time"

// SubmitAchievementRequest captures a student's achievement claim and its evidence refs.
type SubmitAchievementRequest struct {
	Category        string    `json:"category" validate:"required,activity_category"`
	Title           string    `json:"title" validate:"required,max=255"`
	Description     string    `json:"description" validate:"required,max=5000"`
	Type            string    `json:"type" validate:"required,max=100"`
	ActivityDate    time.Time `json:"activity_date" validate:"required"`
	Duration        *string   `json:"duration,omitempty" validate:"omitempty,max=100"`
	Location        *string   `json:"location,omitempty" validate:"omitempty,max=255"`
	Organization    *string   `json:"organization,omitempty" validate:"omitempty,max=255"`
	Participants    *int      `json:"participants,omitempty" validate:"omitempty,min=1"`
	Rank            *string   `json:"rank,omitempty" validate:"omitempty,max=100"`
	Skills          []string  `json:"skills,omitempty" validate:"max=20,dive,required,max=64"`
	Files           []string  `json:"files" validate:"max=10,dive,required,max=512"`
	MaxMarks        int       `json:"max_marks" validate:"required,min=1,max=1000"`
	SuggestedPoints *int      `json:"suggested_points,omitempty" validate:"omitempty,min=0"`
}

// DecisionRequest is the reviewer's verdict on a submission.
type DecisionRequest struct {
	Decision       string `json:"decision" validate:"required,oneof=approved rejected"`
	Marks          *int   `json:"marks,omitempty"`
	Feedback       string `json:"feedback"`
	Override       bool   `json:"override"`
	OverrideReason string `json:"override_reason,omitempty"`
}

// ReviewQueueQuery captures review queue filters from the query string.
type ReviewQueueQuery struct {
	Status        []string `form:"status"`
	StudentID     string   `form:"studentId"`
	InstitutionID string   `form:"institutionId"`
	Category      string   `form:"category"`
	Page          int      `form:"page"`
	PageSize      int      `form:"pageSize"`
}

// EvidenceUploadResponse returns the ref to cite in a submission.
type EvidenceUploadResponse struct {
	Ref  string `json:"ref"`
	Size int64  `json:"size"`
}

// WithdrawResponse acknowledges a withdrawal.
type WithdrawResponse struct {
	SubmissionID string `json:"submissionId"`
	Withdrawn    bool   `json:"withdrawn"`
}
