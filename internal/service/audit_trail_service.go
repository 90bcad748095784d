package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/noah-isme/achievement-api/internal/dto"
	"github.com/noah-isme/achievement-api/internal/models"
	appErrors "github.com/noah-isme/achievement-api/pkg/errors"
	"github.com/noah-isme/achievement-api/pkg/export"
)

const defaultTrailPageSize = 100

type trailStore interface {
	ListTrail(ctx context.Context, scope models.TrailScope, afterSequence, maxSequence int64, limit int) ([]models.TrailEntry, error)
}

type ledgerTailReader interface {
	Tail(ctx context.Context) (*models.LedgerRecord, error)
	Range(ctx context.Context, afterSequence int64, limit int) ([]models.LedgerRecord, error)
}

// IntegrityReporter receives ledger records that failed verification.
type IntegrityReporter interface {
	Report(ctx context.Context, warning models.IntegrityWarning)
}

// AuditIntegrityReporter logs, counts and audits integrity warnings.
type AuditIntegrityReporter struct {
	audit   auditWriter
	metrics *MetricsService
	logger  *zap.Logger
}

// NewIntegrityReporter constructs the default reporter. audit and metrics may be nil.
func NewIntegrityReporter(audit auditWriter, metrics *MetricsService, logger *zap.Logger) *AuditIntegrityReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditIntegrityReporter{audit: audit, metrics: metrics, logger: logger}
}

// Report records one warning. Failures to audit are logged and otherwise ignored.
func (r *AuditIntegrityReporter) Report(ctx context.Context, warning models.IntegrityWarning) {
	r.logger.Error("ledger integrity violation",
		zap.Int64("sequence", warning.Sequence),
		zap.String("submission_id", warning.SubmissionID),
		zap.String("reason", warning.Reason),
	)
	r.metrics.RecordIntegrityViolation()
	if r.audit == nil {
		return
	}
	resourceID := strconv.FormatInt(warning.Sequence, 10)
	entry := &models.AuditLog{
		Action:     models.AuditActionIntegrityWarning,
		Resource:   "ledger_record",
		ResourceID: &resourceID,
		NewValues:  auditJSON(map[string]interface{}{"submission_id": warning.SubmissionID, "reason": warning.Reason}),
		IPAddress:  "system",
		UserAgent:  "audit-trail-service",
	}
	if err := r.audit.CreateAuditLog(ctx, entry); err != nil {
		r.logger.Warn("failed to audit integrity violation", zap.Int64("sequence", warning.Sequence), zap.Error(err))
	}
}

// AuditTrailService is the read-only projection over the ledger used by reports and portfolios.
type AuditTrailService struct {
	trail    trailStore
	records  ledgerTailReader
	ledger   *LedgerService
	reporter IntegrityReporter
	pageSize int
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	tracer   trace.Tracer
	logger   *zap.Logger
	now      func() time.Time
}

// AuditTrailOption customises the audit trail service.
type AuditTrailOption func(*AuditTrailService)

// WithTrailPageSize sets how many entries are fetched per page.
func WithTrailPageSize(size int) AuditTrailOption {
	return func(s *AuditTrailService) {
		if size > 0 {
			s.pageSize = size
		}
	}
}

// WithIntegrityReporter overrides where integrity warnings go.
func WithIntegrityReporter(reporter IntegrityReporter) AuditTrailOption {
	return func(s *AuditTrailService) {
		if reporter != nil {
			s.reporter = reporter
		}
	}
}

// NewAuditTrailService constructs the audit trail reader.
func NewAuditTrailService(trail trailStore, records ledgerTailReader, ledger *LedgerService, logger *zap.Logger, opts ...AuditTrailOption) *AuditTrailService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &AuditTrailService{
		trail:    trail,
		records:  records,
		ledger:   ledger,
		pageSize: defaultTrailPageSize,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter("Verified against the approval ledger"),
		tracer:   otel.Tracer("github.com/noah-isme/achievement-api/internal/service/audit"),
		logger:   logger,
		now:      time.Now,
	}
	svc.reporter = NewIntegrityReporter(nil, nil, logger)
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// ResolveQuery turns request parameters into a scope and filter. Students are always pinned to
// their own history; reviewers must name exactly one student or institution.
func (s *AuditTrailService) ResolveQuery(query dto.AuditTrailQuery, actor *models.JWTClaims) (models.TrailScope, models.TrailFilter, error) {
	if actor == nil {
		return models.TrailScope{}, models.TrailFilter{}, appErrors.ErrUnauthorized
	}
	scope := models.TrailScope{StudentID: query.StudentID, InstitutionID: query.InstitutionID}
	if actor.Role == models.RoleStudent {
		if scope.InstitutionID != "" || (scope.StudentID != "" && scope.StudentID != actor.UserID) {
			return models.TrailScope{}, models.TrailFilter{}, appErrors.Clone(appErrors.ErrForbidden, "students may only read their own audit trail")
		}
		scope = models.TrailScope{StudentID: actor.UserID}
	}
	if err := validateScope(scope); err != nil {
		return models.TrailScope{}, models.TrailFilter{}, err
	}

	filter := models.TrailFilter{Decision: models.Decision(query.Decision), From: query.From}
	if filter.Decision != "" && filter.Decision != models.DecisionApproved && filter.Decision != models.DecisionRejected {
		return models.TrailScope{}, models.TrailFilter{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown decision %q", query.Decision))
	}
	if query.To != nil {
		end := *query.To
		if end.Equal(end.Truncate(24 * time.Hour)) {
			end = end.Add(24*time.Hour - time.Nanosecond)
		}
		filter.To = &end
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return models.TrailScope{}, models.TrailFilter{}, appErrors.Clone(appErrors.ErrValidation, "from must not be after to")
	}
	return scope, filter, nil
}

// History returns a lazy iterator over the verified trail. The iterator never reads past the
// ledger tail as it was when History was called.
func (s *AuditTrailService) History(ctx context.Context, scope models.TrailScope, filter models.TrailFilter) (*TrailIterator, error) {
	if err := validateScope(scope); err != nil {
		return nil, err
	}
	tail, err := s.records.Tail(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read ledger tail")
	}
	bound := int64(-1)
	if tail != nil {
		bound = tail.Sequence
	}
	return &TrailIterator{svc: s, ctx: ctx, scope: scope, filter: filter, bound: bound, after: -1}, nil
}

// Collect drains History into a slice.
func (s *AuditTrailService) Collect(ctx context.Context, scope models.TrailScope, filter models.TrailFilter) (*dto.AuditTrailResponse, error) {
	it, err := s.History(ctx, scope, filter)
	if err != nil {
		return nil, err
	}
	resp := &dto.AuditTrailResponse{Entries: []models.TrailEntry{}}
	for it.Next() {
		resp.Entries = append(resp.Entries, it.Entry())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	resp.Omitted = it.Omitted()
	return resp, nil
}

// Export renders the verified trail as csv or pdf and returns the document with its content type.
func (s *AuditTrailService) Export(ctx context.Context, scope models.TrailScope, filter models.TrailFilter, format string) ([]byte, string, error) {
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "pdf" {
		return nil, "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	ctx, span := s.tracer.Start(ctx, "audit.export", trace.WithAttributes(attribute.String("format", format)))
	defer span.End()

	trail, err := s.Collect(ctx, scope, filter)
	if err != nil {
		span.RecordError(err)
		return nil, "", err
	}
	data := trailDataset(trail.Entries)

	switch format {
	case "pdf":
		body, err := s.pdf.Render(data, "Achievement audit trail")
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render audit trail")
		}
		return body, "application/pdf", nil
	default:
		body, err := s.csv.Render(data)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render audit trail")
		}
		return body, "text/csv", nil
	}
}

// VerifyChain checks the whole ledger and reports every warning it finds.
func (s *AuditTrailService) VerifyChain(ctx context.Context) (*models.ChainReport, error) {
	report, err := s.ledger.VerifyChain(ctx, s.records)
	if err != nil {
		return nil, err
	}
	for _, warning := range report.Warnings {
		s.reporter.Report(ctx, warning)
	}
	return report, nil
}

// check verifies a trail entry. The returned reason is empty when the entry is sound.
func (s *AuditTrailService) check(entry *models.TrailEntry) string {
	if err := s.ledger.Check(&entry.Record); err != nil {
		return err.Error()
	}
	if err := s.ledger.CheckBinding(&entry.Record, &entry.Approval); err != nil {
		return err.Error()
	}
	if entry.Submission.ID != entry.Record.SubmissionID {
		return "record does not reference submission"
	}
	if entry.Submission.Status != entry.Approval.Status.SubmissionStatus() {
		return fmt.Sprintf("submission status %s disagrees with decision %s", entry.Submission.Status, entry.Approval.Status)
	}
	return ""
}

// matchesFilter applies decision and date filters to an already verified entry.
func matchesFilter(entry *models.TrailEntry, filter models.TrailFilter) bool {
	if filter.Decision != "" && entry.Approval.Status != filter.Decision {
		return false
	}
	if filter.From != nil && entry.Approval.ApprovedAt.Before(*filter.From) {
		return false
	}
	if filter.To != nil && entry.Approval.ApprovedAt.After(*filter.To) {
		return false
	}
	return true
}

func validateScope(scope models.TrailScope) error {
	if (scope.StudentID == "") == (scope.InstitutionID == "") {
		return appErrors.Clone(appErrors.ErrValidation, "exactly one of studentId or institutionId is required")
	}
	return nil
}

var trailHeaders = []string{
	"Sequence", "Decided At", "Student", "Title", "Category", "Decision", "Marks", "Max Marks",
	"Faculty", "Override", "Ledger Hash",
}

func trailDataset(entries []models.TrailEntry) export.Dataset {
	rows := make([]map[string]string, 0, len(entries))
	for _, entry := range entries {
		marks := ""
		if entry.Approval.Marks != nil {
			marks = strconv.Itoa(*entry.Approval.Marks)
		}
		rows = append(rows, map[string]string{
			"Sequence":    strconv.FormatInt(entry.Record.Sequence, 10),
			"Decided At":  entry.Approval.ApprovedAt.UTC().Format(time.RFC3339),
			"Student":     entry.Submission.StudentID,
			"Title":       entry.Activity.Title,
			"Category":    string(entry.Activity.Category),
			"Decision":    string(entry.Approval.Status),
			"Marks":       marks,
			"Max Marks":   strconv.Itoa(entry.Submission.MaxMarks),
			"Faculty":     entry.Approval.FacultyID,
			"Override":    strconv.FormatBool(entry.Approval.PolicyOverride),
			"Ledger Hash": entry.Record.ThisHash,
		})
	}
	return export.Dataset{Headers: trailHeaders, Rows: rows}
}

// TrailIterator pages through a verified audit trail. It is not safe for concurrent use.
type TrailIterator struct {
	svc    *AuditTrailService
	ctx    context.Context
	scope  models.TrailScope
	filter models.TrailFilter
	bound  int64

	after     int64
	page      []models.TrailEntry
	pos       int
	exhausted bool
	current   models.TrailEntry
	omitted   int
	err       error
}

// Next advances to the next verified entry.
func (it *TrailIterator) Next() bool {
	for it.err == nil {
		if it.pos < len(it.page) {
			entry := it.page[it.pos]
			it.pos++
			if reason := it.svc.check(&entry); reason != "" {
				it.omitted++
				it.svc.reporter.Report(it.ctx, models.IntegrityWarning{
					Sequence:     entry.Record.Sequence,
					SubmissionID: entry.Record.SubmissionID,
					Reason:       reason,
					DetectedAt:   it.svc.now().UTC(),
				})
				continue
			}
			if !matchesFilter(&entry, it.filter) {
				continue
			}
			it.current = entry
			return true
		}
		if it.exhausted || it.after >= it.bound {
			return false
		}
		if err := it.ctx.Err(); err != nil {
			it.err = err
			return false
		}
		page, err := it.svc.trail.ListTrail(it.ctx, it.scope, it.after, it.bound, it.svc.pageSize)
		if err != nil {
			it.err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read audit trail")
			return false
		}
		it.page, it.pos = page, 0
		if len(page) > 0 {
			it.after = page[len(page)-1].Record.Sequence
		}
		if len(page) < it.svc.pageSize {
			it.exhausted = true
		}
	}
	return false
}

// Entry returns the entry Next advanced to.
func (it *TrailIterator) Entry() models.TrailEntry {
	return it.current
}

// Err reports the error that stopped iteration, if any.
func (it *TrailIterator) Err() error {
	return it.err
}

// Omitted counts entries skipped because they failed verification.
func (it *TrailIterator) Omitted() int {
	return it.omitted
}

// Reset restarts iteration from the beginning within the original bound.
func (it *TrailIterator) Reset() {
	it.after = -1
	it.page = nil
	it.pos = 0
	it.exhausted = false
	it.current = models.TrailEntry{}
	it.omitted = 0
	it.err = nil
}
