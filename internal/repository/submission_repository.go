package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/achievement-api/internal/models"
	"github.com/noah-isme/achievement-api/pkg/database"
)

const activityColumns = `a.id, a.student_id, a.institution_id, a.category, a.title, a.description, a.type, a.activity_date,
       a.duration, a.location, a.organization, a.participants, a.rank, a.skills, a.created_at, a.updated_at`

const submissionColumns = `id, activity_id, student_id, files, max_marks, suggested_points, status, submitted_at, updated_at`

// SubmissionRepository persists activities and their evidence submissions.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// CreateWithActivity inserts the activity and its submission in one transaction. A per-student
// advisory lock serialises the duplicate check so two identical concurrent submits cannot both
// pass it. titleKey is the normalised title used for duplicate detection.
func (r *SubmissionRepository) CreateWithActivity(ctx context.Context, activity *models.Activity, submission *models.Submission, titleKey string) error {
	now := time.Now().UTC()
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	activity.CreatedAt, activity.UpdatedAt = now, now
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	submission.ActivityID = activity.ID
	submission.StudentID = activity.StudentID
	submission.Status = models.SubmissionStatusPending
	submission.SubmittedAt, submission.UpdatedAt = now, now
	if submission.Files == nil {
		submission.Files = pq.StringArray{}
	}

	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "submission:"+activity.StudentID); err != nil {
			return fmt.Errorf("lock student submissions: %w", err)
		}

		const dupQuery = `SELECT EXISTS (
	SELECT 1 FROM activities a JOIN submissions s ON s.activity_id = a.id
	WHERE a.student_id = $1 AND a.title_key = $2 AND a.activity_date = $3 AND s.status <> 'rejected')`
		var exists bool
		if err := tx.GetContext(ctx, &exists, dupQuery, activity.StudentID, titleKey, activity.ActivityDate); err != nil {
			return fmt.Errorf("check duplicate activity: %w", err)
		}
		if exists {
			return ErrDuplicate
		}

		const activityInsert = `INSERT INTO activities
	(id, student_id, institution_id, category, title, title_key, description, type, activity_date, duration, location,
	 organization, participants, rank, skills, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`
		if _, err := tx.ExecContext(ctx, activityInsert,
			activity.ID, activity.StudentID, activity.InstitutionID, activity.Category, activity.Title, titleKey,
			activity.Description, activity.Type, activity.ActivityDate, activity.Duration, activity.Location,
			activity.Organization, activity.Participants, activity.Rank, activity.Skills, activity.CreatedAt, activity.UpdatedAt,
		); err != nil {
			return fmt.Errorf("insert activity: %w", err)
		}

		const submissionInsert = `INSERT INTO submissions (` + submissionColumns + `)
	VALUES (:id, :activity_id, :student_id, :files, :max_marks, :suggested_points, :status, :submitted_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, submissionInsert, submission); err != nil {
			return fmt.Errorf("insert submission: %w", err)
		}
		return nil
	})
}

// GetByID fetches a submission by identifier.
func (r *SubmissionRepository) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	const query = `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1`
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, id); err != nil {
		return nil, err
	}
	return &submission, nil
}

// GetActivity fetches an activity by identifier.
func (r *SubmissionRepository) GetActivity(ctx context.Context, id string) (*models.Activity, error) {
	const query = `SELECT ` + activityColumns + ` FROM activities a WHERE a.id = $1`
	var activity models.Activity
	if err := r.db.GetContext(ctx, &activity, query, id); err != nil {
		return nil, err
	}
	return &activity, nil
}

// ListQueue returns submissions joined with their latest verification signal (oldest first) and
// the total number of matching rows.
func (r *SubmissionRepository) ListQueue(ctx context.Context, filter models.ReviewQueueFilter) ([]models.ReviewQueueItem, int, error) {
	args := make([]interface{}, 0, 6)
	conditions := make([]string, 0, 4)

	statuses := filter.Status
	if len(statuses) == 0 {
		statuses = models.OpenStatuses
	}
	placeholders := make([]string, len(statuses))
	for i, status := range statuses {
		args = append(args, status)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}
	conditions = append(conditions, fmt.Sprintf("s.status IN (%s)", strings.Join(placeholders, ",")))
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("s.student_id = $%d", len(args)))
	}
	if filter.InstitutionID != "" {
		args = append(args, filter.InstitutionID)
		conditions = append(conditions, fmt.Sprintf("a.institution_id = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("a.category = $%d", len(args)))
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	countQuery := `SELECT COUNT(*) FROM submissions s JOIN activities a ON a.id = s.activity_id` + where
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count review queue: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	builder := strings.Builder{}
	builder.WriteString(`SELECT s.id AS submission_id, s.activity_id, s.student_id, a.title, a.category, s.status, s.max_marks,
       s.submitted_at, v.plagiarism_risk, v.ai_content_risk, v.document_authenticity, v.status AS signal_status
	FROM submissions s
	JOIN activities a ON a.id = s.activity_id
	LEFT JOIN LATERAL (
		SELECT plagiarism_risk, ai_content_risk, document_authenticity, status
		FROM verification_data WHERE submission_id = s.id
		ORDER BY created_at DESC, id DESC LIMIT 1
	) v ON TRUE`)
	builder.WriteString(where)
	builder.WriteString(fmt.Sprintf(" ORDER BY s.submitted_at ASC LIMIT %d OFFSET %d", limit, offset))

	var items []models.ReviewQueueItem
	if err := r.db.SelectContext(ctx, &items, builder.String(), args...); err != nil {
		return nil, 0, fmt.Errorf("list review queue: %w", err)
	}
	return items, total, nil
}

// TransitionStatus moves a submission to the target status only if it is currently in one of
// the expected states. sql.ErrNoRows is returned for an unknown id and ErrStatusMismatch when
// the row is in another state.
func (r *SubmissionRepository) TransitionStatus(ctx context.Context, id string, expected []models.SubmissionStatus, target models.SubmissionStatus) error {
	args := []interface{}{target, time.Now().UTC(), id}
	placeholders := make([]string, len(expected))
	for i, status := range expected {
		args = append(args, status)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}
	query := fmt.Sprintf("UPDATE submissions SET status = $1, updated_at = $2 WHERE id = $3 AND status IN (%s)", strings.Join(placeholders, ","))
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update submission status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check submission update rows: %w", err)
	}
	if rows > 0 {
		return nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return ErrStatusMismatch
}

// DeletePending removes a pending submission owned by studentID together with its activity and
// verification rows. When the submission is not withdrawable the current row is returned with
// ErrStatusMismatch.
func (r *SubmissionRepository) DeletePending(ctx context.Context, id, studentID string) (*models.Submission, error) {
	var submission models.Submission
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const lockQuery = `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1 AND student_id = $2 FOR UPDATE`
		if err := tx.GetContext(ctx, &submission, lockQuery, id, studentID); err != nil {
			return err
		}

		var decided bool
		if err := tx.GetContext(ctx, &decided, `SELECT EXISTS (SELECT 1 FROM approvals WHERE submission_id = $1)`, id); err != nil {
			return fmt.Errorf("check approvals: %w", err)
		}
		if decided || submission.Status != models.SubmissionStatusPending {
			return ErrStatusMismatch
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM verification_data WHERE submission_id = $1`, id); err != nil {
			return fmt.Errorf("delete verification data: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM submissions WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete submission: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM activities WHERE id = $1`, submission.ActivityID); err != nil {
			return fmt.Errorf("delete activity: %w", err)
		}
		return nil
	})
	if errors.Is(err, ErrStatusMismatch) {
		return &submission, err
	}
	if err != nil {
		return nil, err
	}
	return &submission, nil
}
