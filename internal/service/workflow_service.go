package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/noah-isme/achievement-api/internal/dto"
	"github.com/noah-isme/achievement-api/internal/models"
	"github.com/noah-isme/achievement-api/internal/repository"
	appErrors "github.com/noah-isme/achievement-api/pkg/errors"
)

const lockPollInterval = 50 * time.Millisecond

type submissionStore interface {
	CreateWithActivity(ctx context.Context, activity *models.Activity, submission *models.Submission, titleKey string) error
	GetByID(ctx context.Context, id string) (*models.Submission, error)
	GetActivity(ctx context.Context, id string) (*models.Activity, error)
	ListQueue(ctx context.Context, filter models.ReviewQueueFilter) ([]models.ReviewQueueItem, int, error)
	TransitionStatus(ctx context.Context, id string, expected []models.SubmissionStatus, target models.SubmissionStatus) error
	DeletePending(ctx context.Context, id, studentID string) (*models.Submission, error)
}

type signalStore interface {
	InsertIfOpen(ctx context.Context, signal *models.VerificationSignal) error
	Latest(ctx context.Context, submissionID string) (*models.VerificationSignal, error)
}

type decisionStore interface {
	CommitDecision(ctx context.Context, approval *models.Approval, appendLedger repository.LedgerAppendFunc) (*models.LedgerRecord, error)
	GetBySubmission(ctx context.Context, submissionID string) (*models.Approval, error)
}

type signalScorer interface {
	Score(ctx context.Context, submissionID string, activity *models.Activity, refs []string) (*models.VerificationSignal, error)
	Forget(ctx context.Context, submissionID string) error
}

type ledgerAppender interface {
	Append(ctx context.Context, store repository.LedgerAppendStore, approval *models.Approval) (*models.LedgerRecord, error)
}

type decisionLocker interface {
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, bool, error)
}

type auditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type decisionNotifier interface {
	DecisionMade(submission *models.Submission, approval *models.Approval)
}

// WorkflowService orchestrates submission, review and decision of achievements.
type WorkflowService struct {
	submissions   submissionStore
	signals       signalStore
	decisions     decisionStore
	scorer        signalScorer
	ledger        ledgerAppender
	machine       *ApprovalStateMachine
	validator     *validator.Validate
	locker        decisionLocker
	lockTTL       time.Duration
	local         *keyedMutex
	notifications decisionNotifier
	audit         auditWriter
	metrics       *MetricsService
	tracer        trace.Tracer
	logger        *zap.Logger
	now           func() time.Time
}

// WorkflowOption customises the workflow service.
type WorkflowOption func(*WorkflowService)

// WithDecisionLock serialises decisions per submission through a distributed lock.
func WithDecisionLock(locker decisionLocker, ttl time.Duration) WorkflowOption {
	return func(s *WorkflowService) {
		s.locker = locker
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithWorkflowNotifications sets the collaborator told about committed decisions.
func WithWorkflowNotifications(n decisionNotifier) WorkflowOption {
	return func(s *WorkflowService) {
		s.notifications = n
	}
}

// WithWorkflowAudit records workflow actions in the audit log.
func WithWorkflowAudit(audit auditWriter) WorkflowOption {
	return func(s *WorkflowService) {
		s.audit = audit
	}
}

// WithWorkflowMetrics wires metrics collection.
func WithWorkflowMetrics(metrics *MetricsService) WorkflowOption {
	return func(s *WorkflowService) {
		s.metrics = metrics
	}
}

// WithWorkflowClock overrides the time source.
func WithWorkflowClock(now func() time.Time) WorkflowOption {
	return func(s *WorkflowService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewWorkflowService constructs the orchestrator.
func NewWorkflowService(
	submissions submissionStore,
	signals signalStore,
	decisions decisionStore,
	scorer signalScorer,
	ledger ledgerAppender,
	machine *ApprovalStateMachine,
	validate *validator.Validate,
	logger *zap.Logger,
	opts ...WorkflowOption,
) *WorkflowService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if machine == nil {
		machine = NewApprovalStateMachine(DefaultPolicy())
	}
	svc := &WorkflowService{
		submissions: submissions,
		signals:     signals,
		decisions:   decisions,
		scorer:      scorer,
		ledger:      ledger,
		machine:     machine,
		validator:   validate,
		lockTTL:     15 * time.Second,
		local:       newKeyedMutex(),
		tracer:      otel.Tracer("github.com/noah-isme/achievement-api/internal/service/workflow"),
		logger:      logger,
		now:         time.Now,
	}
	svc.validator.RegisterValidation("activity_category", func(fl validator.FieldLevel) bool {
		return models.ActivityCategory(fl.Field().String()).Valid()
	})
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Submit creates the activity and its pending submission, then scores the evidence. Scoring
// problems are recorded on the signal as warnings and never fail the submission.
func (s *WorkflowService) Submit(ctx context.Context, req dto.SubmitAchievementRequest, studentID, institutionID string) (*models.SubmissionDetail, error) {
	if strings.TrimSpace(studentID) == "" {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		s.metrics.RecordSubmission("invalid")
		return nil, appErrors.WithCause(appErrors.ErrValidation, err, "invalid payload")
	}
	title := sanitizeText(req.Title)
	description := sanitizeText(req.Description)
	if title == "" || description == "" {
		s.metrics.RecordSubmission("invalid")
		return nil, appErrors.Clone(appErrors.ErrValidation, "title and description must contain text")
	}
	activityDate := req.ActivityDate.UTC().Truncate(24 * time.Hour)
	if activityDate.After(s.now().UTC()) {
		s.metrics.RecordSubmission("invalid")
		return nil, appErrors.Clone(appErrors.ErrValidation, "activity date cannot be in the future")
	}
	if req.SuggestedPoints != nil && *req.SuggestedPoints > req.MaxMarks {
		s.metrics.RecordSubmission("invalid")
		return nil, appErrors.Clone(appErrors.ErrValidation, "suggested points cannot exceed max marks")
	}
	for _, ref := range req.Files {
		if !ownsEvidence(studentID, ref) {
			s.metrics.RecordSubmission("invalid")
			return nil, appErrors.Clone(appErrors.ErrValidation, "evidence "+ref+" was not uploaded by this student")
		}
	}

	activity := &models.Activity{
		StudentID:    studentID,
		Category:     models.ActivityCategory(req.Category),
		Title:        title,
		Description:  description,
		Type:         sanitizeText(req.Type),
		ActivityDate: activityDate,
		Duration:     sanitizeOptional(req.Duration),
		Location:     sanitizeOptional(req.Location),
		Organization: sanitizeOptional(req.Organization),
		Participants: req.Participants,
		Rank:         sanitizeOptional(req.Rank),
		Skills:       sanitizeList(req.Skills),
	}
	if institutionID != "" {
		activity.InstitutionID = &institutionID
	}
	submission := &models.Submission{
		Files:           append([]string{}, req.Files...),
		MaxMarks:        req.MaxMarks,
		SuggestedPoints: req.SuggestedPoints,
	}

	if err := s.submissions.CreateWithActivity(ctx, activity, submission, normalizeTitle(title)); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			s.metrics.RecordSubmission("duplicate")
			return nil, appErrors.ErrDuplicateActivity
		}
		s.metrics.RecordSubmission("error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create submission")
	}
	s.metrics.RecordSubmission("created")

	detail := &models.SubmissionDetail{Submission: *submission, Activity: *activity}
	signal, err := s.scoreAndStore(ctx, submission, activity)
	if err != nil {
		s.logger.Warn("submission stored without verification signal", zap.String("submission_id", submission.ID), zap.Error(err))
	} else {
		detail.Signal = signal
	}

	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &studentID,
		Action:     models.AuditActionSubmissionCreate,
		Resource:   "submission",
		ResourceID: &submission.ID,
		NewValues:  auditJSON(map[string]interface{}{"title": title, "category": req.Category, "files": len(req.Files)}),
	})
	return detail, nil
}

// OpenReview moves a pending submission to under_review. Reopening an open review is a no-op.
func (s *WorkflowService) OpenReview(ctx context.Context, submissionID, reviewerID string) (*models.Submission, error) {
	submission, err := s.loadSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	transition, err := s.machine.Evaluate(submission, nil, Command{Kind: CommandOpenReview})
	if err != nil {
		return nil, err
	}
	if transition.Noop {
		return submission, nil
	}
	if err := s.submissions.TransitionStatus(ctx, submissionID, []models.SubmissionStatus{models.SubmissionStatusPending}, transition.To); err != nil {
		if errors.Is(err, repository.ErrStatusMismatch) {
			return s.reloadAfterRace(ctx, submissionID)
		}
		return nil, s.mapLookupError(err, "failed to open review")
	}
	submission.Status = transition.To

	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &reviewerID,
		Action:     models.AuditActionReviewOpen,
		Resource:   "submission",
		ResourceID: &submissionID,
		OldValues:  auditJSON(map[string]interface{}{"status": transition.From}),
		NewValues:  auditJSON(map[string]interface{}{"status": transition.To}),
	})
	return submission, nil
}

// Decide approves or rejects a submission. The terminal status, ledger record and approval are
// committed atomically; notification, audit and metrics happen only after the commit.
func (s *WorkflowService) Decide(ctx context.Context, submissionID string, req dto.DecisionRequest, reviewerID string) (*models.Approval, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WithCause(appErrors.ErrValidation, err, "invalid payload")
	}
	spanCtx, span := s.tracer.Start(ctx, "workflow.decide", trace.WithAttributes(
		attribute.String("submission.id", submissionID),
		attribute.String("decision", req.Decision),
	))
	defer span.End()

	release := s.acquireDecisionLock(spanCtx, submissionID)
	defer release()

	submission, err := s.loadSubmission(spanCtx, submissionID)
	if err != nil {
		return nil, err
	}
	signal, err := s.latestSignal(spanCtx, submissionID)
	if err != nil {
		return nil, err
	}

	cmd := Command{
		Kind:           CommandReject,
		Marks:          req.Marks,
		Feedback:       sanitizeText(req.Feedback),
		Override:       req.Override,
		OverrideReason: sanitizeText(req.OverrideReason),
	}
	if models.Decision(req.Decision) == models.DecisionApproved {
		cmd.Kind = CommandApprove
	}
	transition, err := s.machine.Evaluate(submission, signal, cmd)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	approval := &models.Approval{
		ID:             uuid.NewString(),
		SubmissionID:   submissionID,
		FacultyID:      reviewerID,
		Status:         transition.Decision,
		Marks:          transition.Marks,
		Feedback:       transition.Feedback,
		PolicyOverride: transition.PolicyOverride,
		ApprovedAt:     s.now().UTC().Truncate(time.Microsecond),
	}
	if transition.OverrideReason != "" {
		reason := transition.OverrideReason
		approval.OverrideReason = &reason
	}

	record, err := s.decisions.CommitDecision(spanCtx, approval, func(ctx context.Context, store repository.LedgerAppendStore) (*models.LedgerRecord, error) {
		return s.ledger.Append(ctx, store, approval)
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, repository.ErrStatusMismatch) {
			return nil, appErrors.ErrSubmissionAlreadyFinalized
		}
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit decision")
	}

	submission.Status = transition.To
	if s.notifications != nil {
		s.notifications.DecisionMade(submission, approval)
	}
	s.metrics.RecordDecision(approval.Status, approval.PolicyOverride)
	s.emitAudit(spanCtx, &models.AuditLog{
		UserID:     &reviewerID,
		Action:     models.AuditActionDecision,
		Resource:   "submission",
		ResourceID: &submissionID,
		OldValues:  auditJSON(map[string]interface{}{"status": transition.From}),
		NewValues: auditJSON(map[string]interface{}{
			"status":          transition.To,
			"marks":           approval.Marks,
			"policy_override": approval.PolicyOverride,
			"ledger_sequence": record.Sequence,
			"warnings":        transition.Warnings,
		}),
	})
	s.logger.Info("decision committed",
		zap.String("submission_id", submissionID),
		zap.String("decision", string(approval.Status)),
		zap.Bool("policy_override", approval.PolicyOverride),
		zap.Int64("ledger_sequence", record.Sequence),
		zap.Strings("warnings", transition.Warnings),
	)
	return approval, nil
}

// Withdraw deletes a pending, undecided submission on behalf of its owner.
func (s *WorkflowService) Withdraw(ctx context.Context, submissionID, studentID string) error {
	submission, err := s.submissions.DeletePending(ctx, submissionID, studentID)
	if err != nil {
		if errors.Is(err, repository.ErrStatusMismatch) {
			if submission != nil && submission.Status.Terminal() {
				return appErrors.ErrSubmissionAlreadyFinalized
			}
			return appErrors.ErrWithdrawalNotAllowed
		}
		return s.mapLookupError(err, "failed to withdraw submission")
	}
	if err := s.scorer.Forget(ctx, submissionID); err != nil {
		s.logger.Warn("failed to drop fingerprints", zap.String("submission_id", submissionID), zap.Error(err))
	}
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &studentID,
		Action:     models.AuditActionSubmissionWithdraw,
		Resource:   "submission",
		ResourceID: &submissionID,
	})
	return nil
}

// Rescore recomputes the verification signal of an open submission. It holds the decision lock
// so a signal is never stored beside a decision committed while scoring ran.
func (s *WorkflowService) Rescore(ctx context.Context, submissionID, actorID string) (*models.VerificationSignal, error) {
	release := s.acquireDecisionLock(ctx, submissionID)
	defer release()

	submission, err := s.loadSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if submission.Status.Terminal() {
		return nil, appErrors.ErrSubmissionAlreadyFinalized
	}
	activity, err := s.submissions.GetActivity(ctx, submission.ActivityID)
	if err != nil {
		return nil, s.mapLookupError(err, "failed to load activity")
	}
	signal, err := s.scoreAndStore(ctx, submission, activity)
	if err != nil {
		return nil, err
	}
	s.emitAudit(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     models.AuditActionSubmissionRescore,
		Resource:   "submission",
		ResourceID: &submissionID,
		NewValues:  auditJSON(map[string]interface{}{"signal_status": signal.Status}),
	})
	return signal, nil
}

// Get returns a submission with its activity and latest signal. Students may only read their
// own submissions.
func (s *WorkflowService) Get(ctx context.Context, submissionID string, actor *models.JWTClaims) (*models.SubmissionDetail, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	submission, err := s.loadSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleStudent && submission.StudentID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
	}
	activity, err := s.submissions.GetActivity(ctx, submission.ActivityID)
	if err != nil {
		return nil, s.mapLookupError(err, "failed to load activity")
	}
	signal, err := s.latestSignal(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	return &models.SubmissionDetail{Submission: *submission, Activity: *activity, Signal: signal}, nil
}

// ListQueue returns the reviewer queue with pagination metadata.
func (s *WorkflowService) ListQueue(ctx context.Context, query dto.ReviewQueueQuery) ([]models.ReviewQueueItem, *models.Pagination, error) {
	page := query.Page
	if page <= 0 {
		page = 1
	}
	size := query.PageSize
	if size <= 0 {
		size = 50
	}
	if size > 200 {
		size = 200
	}
	filter := models.ReviewQueueFilter{
		StudentID:     query.StudentID,
		InstitutionID: query.InstitutionID,
		Limit:         size,
		Offset:        (page - 1) * size,
	}
	if query.Category != "" {
		category := models.ActivityCategory(query.Category)
		if !category.Valid() {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown category %q", query.Category))
		}
		filter.Category = category
	}
	for _, raw := range query.Status {
		for _, part := range strings.Split(raw, ",") {
			status := models.SubmissionStatus(strings.TrimSpace(part))
			switch status {
			case "":
				continue
			case models.SubmissionStatusPending, models.SubmissionStatusUnderReview, models.SubmissionStatusApproved, models.SubmissionStatusRejected:
				filter.Status = append(filter.Status, status)
			default:
				return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", status))
			}
		}
	}
	if len(filter.Status) == 0 {
		filter.Status = append(filter.Status, models.OpenStatuses...)
	}

	items, total, err := s.submissions.ListQueue(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list review queue")
	}
	return items, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// scoreAndStore scores the submission and persists the signal while the submission is open.
func (s *WorkflowService) scoreAndStore(ctx context.Context, submission *models.Submission, activity *models.Activity) (*models.VerificationSignal, error) {
	signal, err := s.scorer.Score(ctx, submission.ID, activity, submission.Files)
	if err != nil {
		if signal == nil {
			return nil, err
		}
		s.logger.Warn("scoring degraded", zap.String("submission_id", submission.ID), zap.Error(err))
	}
	if err := s.signals.InsertIfOpen(ctx, signal); err != nil {
		if errors.Is(err, repository.ErrStatusMismatch) {
			return nil, appErrors.ErrSubmissionAlreadyFinalized
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store verification signal")
	}
	return signal, nil
}

func (s *WorkflowService) loadSubmission(ctx context.Context, id string) (*models.Submission, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapLookupError(err, "failed to load submission")
	}
	return submission, nil
}

func (s *WorkflowService) latestSignal(ctx context.Context, submissionID string) (*models.VerificationSignal, error) {
	signal, err := s.signals.Latest(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load verification signal")
	}
	return signal, nil
}

func (s *WorkflowService) reloadAfterRace(ctx context.Context, submissionID string) (*models.Submission, error) {
	current, err := s.loadSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if current.Status.Terminal() {
		return nil, appErrors.ErrSubmissionAlreadyFinalized
	}
	return current, nil
}

func (s *WorkflowService) mapLookupError(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "submission not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

// acquireDecisionLock serialises decisions on one submission. The in-process lock is always
// taken; the distributed lock is best effort and the status compare-and-set stays authoritative
// when it is unavailable or cannot be obtained within its TTL.
func (s *WorkflowService) acquireDecisionLock(ctx context.Context, submissionID string) func() {
	unlock := s.local.Lock(submissionID)
	if s.locker == nil {
		return unlock
	}
	deadline := time.Now().Add(s.lockTTL)
	for {
		release, ok, err := s.locker.TryAcquire(ctx, "decision:"+submissionID, s.lockTTL)
		if err != nil {
			s.logger.Warn("decision lock unavailable, using in-process lock", zap.String("submission_id", submissionID), zap.Error(err))
			return unlock
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				if err := release(releaseCtx); err != nil {
					s.logger.Warn("failed to release decision lock", zap.String("submission_id", submissionID), zap.Error(err))
				}
				unlock()
			}
		}
		if time.Now().After(deadline) {
			s.logger.Warn("decision lock wait expired", zap.String("submission_id", submissionID))
			return unlock
		}
		select {
		case <-ctx.Done():
			return unlock
		case <-time.After(lockPollInterval):
		}
	}
}

func (s *WorkflowService) emitAudit(ctx context.Context, log *models.AuditLog) {
	if s.audit == nil || log == nil {
		return
	}
	log.IPAddress = "system"
	log.UserAgent = "workflow-service"
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to create workflow audit", zap.String("action", log.Action), zap.Error(err))
	}
}

func auditJSON(values map[string]interface{}) []byte {
	payload, err := json.Marshal(values)
	if err != nil {
		return nil
	}
	return payload
}

func sanitizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	clean := sanitizeText(*value)
	if clean == "" {
		return nil
	}
	return &clean
}

func sanitizeList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if clean := sanitizeText(v); clean != "" {
			out = append(out, clean)
		}
	}
	return out
}

// ownsEvidence reports whether ref lies under the student's upload prefix.
func ownsEvidence(studentID, ref string) bool {
	if ref == "" || path.Clean(ref) != ref {
		return false
	}
	owner, name, found := strings.Cut(ref, "/")
	return found && owner == studentID && name != ""
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock blocks until key is free and returns its unlock func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
