package models

import "time"

// GenesisHash is the previous hash of the first ledger record.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// LedgerRecord is one append-only, hash-chained and signed entry wrapping an approval.
type LedgerRecord struct {
	Sequence      int64     `db:"sequence" json:"sequence"`
	ApprovalID    string    `db:"approval_id" json:"approvalId"`
	SubmissionID  string    `db:"submission_id" json:"submissionId"`
	PayloadHash   string    `db:"payload_hash" json:"payloadHash"`
	PreviousHash  string    `db:"previous_hash" json:"previousHash"`
	ThisHash      string    `db:"this_hash" json:"thisHash"`
	Signature     string    `db:"signature" json:"signature"`
	KeyID         string    `db:"key_id" json:"keyId"`
	HashAlgorithm string    `db:"hash_algorithm" json:"hashAlgorithm"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

// TrailScope selects whose history is read. Exactly one field is set.
type TrailScope struct {
	StudentID     string
	InstitutionID string
}

// TrailFilter narrows audit trail reads.
type TrailFilter struct {
	Decision Decision
	From     *time.Time
	To       *time.Time
}

// TrailEntry is one verified (Submission, Approval, LedgerRecord) triple.
type TrailEntry struct {
	Submission Submission   `db:"submission" json:"submission"`
	Activity   Activity     `db:"activity" json:"activity"`
	Approval   Approval     `db:"approval" json:"approval"`
	Record     LedgerRecord `db:"record" json:"record"`
}

// IntegrityWarning describes a ledger record that failed verification.
type IntegrityWarning struct {
	Sequence     int64     `json:"sequence"`
	SubmissionID string    `json:"submissionId"`
	Reason       string    `json:"reason"`
	DetectedAt   time.Time `json:"detectedAt"`
}

// ChainReport summarises a full-ledger verification pass.
type ChainReport struct {
	Length   int64              `json:"length"`
	Valid    bool               `json:"valid"`
	Warnings []IntegrityWarning `json:"warnings,omitempty"`
}
