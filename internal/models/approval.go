package models

import "time"

// Decision is the reviewer's verdict.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// Approval is the terminal decision artifact for a submission.
type Approval struct {
	ID               string    `db:"id" json:"id"`
	SubmissionID     string    `db:"submission_id" json:"submissionId"`
	FacultyID        string    `db:"faculty_id" json:"facultyId"`
	Status           Decision  `db:"status" json:"status"`
	Marks            *int      `db:"marks" json:"marks,omitempty"`
	Feedback         string    `db:"feedback" json:"feedback"`
	PolicyOverride   bool      `db:"policy_override" json:"policyOverride"`
	OverrideReason   *string   `db:"override_reason" json:"overrideReason,omitempty"`
	DigitalSignature string    `db:"digital_signature" json:"digitalSignature"`
	BlockchainHash   string    `db:"blockchain_hash" json:"blockchainHash"`
	ApprovedAt       time.Time `db:"approved_at" json:"approvedAt"`
}

// SubmissionStatus maps the decision onto the terminal submission status.
func (d Decision) SubmissionStatus() SubmissionStatus {
	if d == DecisionApproved {
		return SubmissionStatusApproved
	}
	return SubmissionStatusRejected
}
