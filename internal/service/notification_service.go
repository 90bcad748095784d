package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/achievement-api/internal/models"
	"github.com/noah-isme/achievement-api/pkg/jobs"
	"github.com/noah-isme/achievement-api/pkg/notify"
)

const decisionNotificationJob = "decision_notification"

type jobQueue interface {
	Enqueue(job jobs.Job) error
}

// NotificationService delivers decision notifications off the request path.
type NotificationService struct {
	notifier notify.Notifier
	queue    jobQueue
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewNotificationService constructs the service. The queue is attached with AttachQueue once it
// has been built around Handle.
func NewNotificationService(notifier notify.Notifier, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{notifier: notifier, metrics: metrics, logger: logger}
}

// AttachQueue sets the queue used by DecisionMade.
func (s *NotificationService) AttachQueue(queue jobQueue) {
	s.queue = queue
}

// DecisionMade schedules a notification for a committed approval. It never blocks and never
// fails the caller: a full or stopped queue is logged and counted as dropped.
func (s *NotificationService) DecisionMade(submission *models.Submission, approval *models.Approval) {
	if s == nil || s.queue == nil || submission == nil || approval == nil {
		return
	}
	msg := notify.Message{
		StudentID:    submission.StudentID,
		SubmissionID: submission.ID,
		Decision:     string(approval.Status),
		Feedback:     approval.Feedback,
		DecidedAt:    approval.ApprovedAt,
	}
	if err := s.queue.Enqueue(jobs.Job{ID: approval.ID, Type: decisionNotificationJob, Payload: msg}); err != nil {
		s.metrics.RecordNotification("dropped")
		s.logger.Warn("decision notification dropped", zap.String("submission_id", submission.ID), zap.Error(err))
	}
}

// Handle is the queue handler delivering one notification.
func (s *NotificationService) Handle(ctx context.Context, job jobs.Job) error {
	msg, ok := job.Payload.(notify.Message)
	if !ok {
		s.logger.Error("unexpected notification payload", zap.String("job_id", job.ID))
		return nil
	}
	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.metrics.RecordNotification("failed")
		return fmt.Errorf("notify %s: %w", msg.SubmissionID, err)
	}
	s.metrics.RecordNotification("sent")
	return nil
}
