package models

import (
	"time"

	"github.com/lib/pq"
)

// SubmissionStatus captures the approval lifecycle of a submission.
type SubmissionStatus string

const (
	SubmissionStatusPending     SubmissionStatus = "pending"
	SubmissionStatusUnderReview SubmissionStatus = "under_review"
	SubmissionStatusApproved    SubmissionStatus = "approved"
	SubmissionStatusRejected    SubmissionStatus = "rejected"
)

// Terminal reports whether no further transitions are allowed.
func (s SubmissionStatus) Terminal() bool {
	return s == SubmissionStatusApproved || s == SubmissionStatusRejected
}

// OpenStatuses lists the states from which a decision may still be taken.
var OpenStatuses = []SubmissionStatus{SubmissionStatusPending, SubmissionStatusUnderReview}

// EvidenceRef points to an evidence file held by the evidence store.
type EvidenceRef = string

// Submission is the evidence package for an activity.
type Submission struct {
	ID              string           `db:"id" json:"id"`
	ActivityID      string           `db:"activity_id" json:"activityId"`
	StudentID       string           `db:"student_id" json:"studentId"`
	Files           pq.StringArray   `db:"files" json:"files"`
	MaxMarks        int              `db:"max_marks" json:"maxMarks"`
	SuggestedPoints *int             `db:"suggested_points" json:"suggestedPoints,omitempty"`
	Status          SubmissionStatus `db:"status" json:"status"`
	SubmittedAt     time.Time        `db:"submitted_at" json:"submittedAt"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updatedAt"`
}

// SubmissionDetail joins a submission with its activity and latest verification signal.
type SubmissionDetail struct {
	Submission Submission          `json:"submission"`
	Activity   Activity            `json:"activity"`
	Signal     *VerificationSignal `json:"signal,omitempty"`
}

// ReviewQueueFilter constrains review queue listings.
type ReviewQueueFilter struct {
	Status        []SubmissionStatus
	StudentID     string
	InstitutionID string
	Category      ActivityCategory
	Limit         int
	Offset        int
}

// ReviewQueueItem is one row of the reviewer queue.
type ReviewQueueItem struct {
	SubmissionID         string           `db:"submission_id" json:"submissionId"`
	ActivityID           string           `db:"activity_id" json:"activityId"`
	StudentID            string           `db:"student_id" json:"studentId"`
	Title                string           `db:"title" json:"title"`
	Category             ActivityCategory `db:"category" json:"category"`
	Status               SubmissionStatus `db:"status" json:"status"`
	MaxMarks             int              `db:"max_marks" json:"maxMarks"`
	SubmittedAt          time.Time        `db:"submitted_at" json:"submittedAt"`
	PlagiarismRisk       *int             `db:"plagiarism_risk" json:"plagiarismRisk,omitempty"`
	AIContentRisk        *int             `db:"ai_content_risk" json:"aiContentRisk,omitempty"`
	DocumentAuthenticity *int             `db:"document_authenticity" json:"documentAuthenticity,omitempty"`
	SignalStatus         *SignalStatus    `db:"signal_status" json:"signalStatus,omitempty"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
