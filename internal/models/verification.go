package models

import (
	"time"

	"github.com/lib/pq"
)

// SignalStatus summarises how many risk fields could be computed.
type SignalStatus string

const (
	SignalStatusComplete SignalStatus = "complete"
	SignalStatusPartial  SignalStatus = "partial"
	SignalStatusUnknown  SignalStatus = "unknown"
)

// VerificationSignal holds trust scores for a submission's evidence. A nil score means unknown,
// which is never the same as a zero (safe) score.
type VerificationSignal struct {
	ID                   string         `db:"id" json:"id"`
	SubmissionID         string         `db:"submission_id" json:"submissionId"`
	PlagiarismRisk       *int           `db:"plagiarism_risk" json:"plagiarismRisk"`
	AIContentRisk        *int           `db:"ai_content_risk" json:"aiContentRisk"`
	DocumentAuthenticity *int           `db:"document_authenticity" json:"documentAuthenticity"`
	CrossReference       string         `db:"cross_reference" json:"crossReference"`
	Status               SignalStatus   `db:"status" json:"status"`
	ManualReviewOnly     bool           `db:"manual_review_only" json:"manualReviewOnly"`
	Warnings             pq.StringArray `db:"warnings" json:"warnings,omitempty"`
	CreatedAt            time.Time      `db:"created_at" json:"createdAt"`
}

// Complete reports whether every risk field is known.
func (s *VerificationSignal) Complete() bool {
	return s != nil && s.PlagiarismRisk != nil && s.AIContentRisk != nil && s.DocumentAuthenticity != nil
}

// ResolveStatus derives Status from the populated fields.
func (s *VerificationSignal) ResolveStatus() SignalStatus {
	known := 0
	for _, v := range []*int{s.PlagiarismRisk, s.AIContentRisk, s.DocumentAuthenticity} {
		if v != nil {
			known++
		}
	}
	switch known {
	case 3:
		return SignalStatusComplete
	case 0:
		return SignalStatusUnknown
	default:
		return SignalStatusPartial
	}
}
