package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/achievement-api/internal/models"
)

const trailColumns = `l.sequence AS "record.sequence", l.approval_id AS "record.approval_id", l.submission_id AS "record.submission_id",
       l.payload_hash AS "record.payload_hash", l.previous_hash AS "record.previous_hash", l.this_hash AS "record.this_hash",
       l.signature AS "record.signature", l.key_id AS "record.key_id", l.hash_algorithm AS "record.hash_algorithm",
       l.created_at AS "record.created_at",
       ap.id AS "approval.id", ap.submission_id AS "approval.submission_id", ap.faculty_id AS "approval.faculty_id",
       ap.status AS "approval.status", ap.marks AS "approval.marks", ap.feedback AS "approval.feedback",
       ap.policy_override AS "approval.policy_override", ap.override_reason AS "approval.override_reason",
       ap.digital_signature AS "approval.digital_signature", ap.blockchain_hash AS "approval.blockchain_hash",
       ap.approved_at AS "approval.approved_at",
       s.id AS "submission.id", s.activity_id AS "submission.activity_id", s.student_id AS "submission.student_id",
       s.files AS "submission.files", s.max_marks AS "submission.max_marks", s.suggested_points AS "submission.suggested_points",
       s.status AS "submission.status", s.submitted_at AS "submission.submitted_at", s.updated_at AS "submission.updated_at",
       a.id AS "activity.id", a.student_id AS "activity.student_id", a.institution_id AS "activity.institution_id",
       a.category AS "activity.category", a.title AS "activity.title", a.type AS "activity.type",
       a.activity_date AS "activity.activity_date", a.organization AS "activity.organization"`

// TrailRepository reads ledger records joined with the approvals and submissions they wrap.
type TrailRepository struct {
	db *sqlx.DB
}

// NewTrailRepository constructs the repository.
func NewTrailRepository(db *sqlx.DB) *TrailRepository {
	return &TrailRepository{db: db}
}

// ListTrail returns up to limit entries in the scope with afterSequence < sequence <= maxSequence,
// ordered by sequence. Decision and date filters are left to the caller: they read approval
// columns, which are only trustworthy once the entry has been verified against its record.
func (r *TrailRepository) ListTrail(ctx context.Context, scope models.TrailScope, afterSequence, maxSequence int64, limit int) ([]models.TrailEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	args := []interface{}{afterSequence, maxSequence}
	conditions := []string{"l.sequence > $1", "l.sequence <= $2"}

	switch {
	case scope.StudentID != "":
		args = append(args, scope.StudentID)
		conditions = append(conditions, fmt.Sprintf("s.student_id = $%d", len(args)))
	case scope.InstitutionID != "":
		args = append(args, scope.InstitutionID)
		conditions = append(conditions, fmt.Sprintf("a.institution_id = $%d", len(args)))
	default:
		return nil, fmt.Errorf("trail scope requires a student or institution")
	}

	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + trailColumns + `
	FROM ledger_records l
	JOIN approvals ap ON ap.id = l.approval_id
	JOIN submissions s ON s.id = l.submission_id
	JOIN activities a ON a.id = s.activity_id`)
	builder.WriteString(" WHERE ")
	builder.WriteString(strings.Join(conditions, " AND "))
	builder.WriteString(fmt.Sprintf(" ORDER BY l.sequence ASC LIMIT %d", limit))

	var entries []models.TrailEntry
	if err := r.db.SelectContext(ctx, &entries, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list audit trail: %w", err)
	}
	return entries, nil
}
