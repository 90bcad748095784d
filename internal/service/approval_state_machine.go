package service

import (
	"fmt"
	"strings"

	"github.com/noah-isme/achievement-api/internal/models"
	"github.com/noah-isme/achievement-api/pkg/config"
	appErrors "github.com/noah-isme/achievement-api/pkg/errors"
)

// CommandKind enumerates reviewer commands.
type CommandKind string

const (
	CommandOpenReview CommandKind = "open_review"
	CommandApprove    CommandKind = "approve"
	CommandReject     CommandKind = "reject"
)

// Command is a reviewer action against a submission.
type Command struct {
	Kind           CommandKind
	Marks          *int
	Feedback       string
	Override       bool
	OverrideReason string
}

// Transition is the accepted outcome of a command.
type Transition struct {
	From     models.SubmissionStatus
	To       models.SubmissionStatus
	Noop     bool
	Decision models.Decision
	Marks    *int
	Feedback string
	// PolicyOverride is set only when the override was needed to pass a policy guard.
	PolicyOverride bool
	OverrideReason string
	Warnings       []string
}

// Policy holds the risk thresholds that gate approvals.
type Policy struct {
	PlagiarismBlock   int
	AIContentBlock    int
	AuthenticityFloor int
	WarningLevel      int
}

// DefaultPolicy returns the stock thresholds.
func DefaultPolicy() Policy {
	return Policy{PlagiarismBlock: 80, AIContentBlock: 80, AuthenticityFloor: 20, WarningLevel: 40}
}

// PolicyFromConfig maps configuration onto a Policy.
func PolicyFromConfig(cfg config.PolicyConfig) Policy {
	return Policy{
		PlagiarismBlock:   cfg.PlagiarismBlock,
		AIContentBlock:    cfg.AIContentBlock,
		AuthenticityFloor: cfg.AuthenticityFloor,
		WarningLevel:      cfg.WarningLevel,
	}
}

// violations lists the thresholds the signal breaches.
func (p Policy) violations(signal *models.VerificationSignal) []string {
	var out []string
	if signal.PlagiarismRisk != nil && *signal.PlagiarismRisk >= p.PlagiarismBlock {
		out = append(out, fmt.Sprintf("plagiarism risk %d >= %d", *signal.PlagiarismRisk, p.PlagiarismBlock))
	}
	if signal.AIContentRisk != nil && *signal.AIContentRisk >= p.AIContentBlock {
		out = append(out, fmt.Sprintf("ai content risk %d >= %d", *signal.AIContentRisk, p.AIContentBlock))
	}
	if signal.DocumentAuthenticity != nil && *signal.DocumentAuthenticity < p.AuthenticityFloor {
		out = append(out, fmt.Sprintf("document authenticity %d < %d", *signal.DocumentAuthenticity, p.AuthenticityFloor))
	}
	return out
}

// warnings lists non-blocking concerns at or above the warning level.
func (p Policy) warnings(signal *models.VerificationSignal) []string {
	if signal == nil {
		return nil
	}
	var out []string
	if signal.PlagiarismRisk != nil && *signal.PlagiarismRisk >= p.WarningLevel {
		out = append(out, fmt.Sprintf("plagiarism risk %d", *signal.PlagiarismRisk))
	}
	if signal.AIContentRisk != nil && *signal.AIContentRisk >= p.WarningLevel {
		out = append(out, fmt.Sprintf("ai content risk %d", *signal.AIContentRisk))
	}
	if signal.DocumentAuthenticity != nil && *signal.DocumentAuthenticity <= 100-p.WarningLevel {
		out = append(out, fmt.Sprintf("document authenticity %d", *signal.DocumentAuthenticity))
	}
	return out
}

// ApprovalStateMachine decides whether a command may move a submission. It performs no I/O.
type ApprovalStateMachine struct {
	policy Policy
}

// NewApprovalStateMachine constructs the state machine.
func NewApprovalStateMachine(policy Policy) *ApprovalStateMachine {
	return &ApprovalStateMachine{policy: policy}
}

// Policy returns the configured thresholds.
func (m *ApprovalStateMachine) Policy() Policy {
	return m.policy
}

// Evaluate applies cmd to the submission given its latest signal (nil when none persisted).
func (m *ApprovalStateMachine) Evaluate(submission *models.Submission, signal *models.VerificationSignal, cmd Command) (Transition, error) {
	if submission.Status.Terminal() {
		return Transition{}, appErrors.Clone(appErrors.ErrSubmissionAlreadyFinalized,
			fmt.Sprintf("submission already %s", submission.Status))
	}
	if submission.Status != models.SubmissionStatusPending && submission.Status != models.SubmissionStatusUnderReview {
		return Transition{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown submission status %q", submission.Status))
	}

	switch cmd.Kind {
	case CommandOpenReview:
		return Transition{
			From: submission.Status,
			To:   models.SubmissionStatusUnderReview,
			Noop: submission.Status == models.SubmissionStatusUnderReview,
		}, nil
	case CommandApprove:
		return m.approve(submission, signal, cmd)
	case CommandReject:
		return m.reject(submission, signal, cmd)
	default:
		return Transition{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported command %q", cmd.Kind))
	}
}

func (m *ApprovalStateMachine) approve(submission *models.Submission, signal *models.VerificationSignal, cmd Command) (Transition, error) {
	if cmd.Marks == nil {
		return Transition{}, appErrors.ErrMissingMarks
	}
	if *cmd.Marks < 0 || *cmd.Marks > submission.MaxMarks {
		return Transition{}, appErrors.Clone(appErrors.ErrMarksOutOfRange,
			fmt.Sprintf("marks must be between 0 and %d", submission.MaxMarks))
	}
	feedback := strings.TrimSpace(cmd.Feedback)
	if feedback == "" {
		return Transition{}, appErrors.ErrMissingFeedback
	}
	reason := strings.TrimSpace(cmd.OverrideReason)
	if cmd.Override && reason == "" {
		return Transition{}, appErrors.Clone(appErrors.ErrValidation, "override reason is required when overriding policy")
	}
	if signal == nil {
		return Transition{}, appErrors.ErrVerificationPending
	}

	overridden := false
	if !signal.Complete() {
		if !cmd.Override {
			return Transition{}, appErrors.Clone(appErrors.ErrPolicyConflict,
				fmt.Sprintf("verification signal is %s; approval requires an override", signal.ResolveStatus()))
		}
		overridden = true
	}
	if breaches := m.policy.violations(signal); len(breaches) > 0 {
		if !cmd.Override {
			return Transition{}, appErrors.Clone(appErrors.ErrPolicyConflict, strings.Join(breaches, "; "))
		}
		overridden = true
	}

	marks := *cmd.Marks
	t := Transition{
		From:           submission.Status,
		To:             models.SubmissionStatusApproved,
		Decision:       models.DecisionApproved,
		Marks:          &marks,
		Feedback:       feedback,
		PolicyOverride: overridden,
		Warnings:       m.policy.warnings(signal),
	}
	if overridden {
		t.OverrideReason = reason
	}
	return t, nil
}

func (m *ApprovalStateMachine) reject(submission *models.Submission, signal *models.VerificationSignal, cmd Command) (Transition, error) {
	feedback := strings.TrimSpace(cmd.Feedback)
	if feedback == "" {
		return Transition{}, appErrors.ErrMissingFeedback
	}
	zero := 0
	return Transition{
		From:     submission.Status,
		To:       models.SubmissionStatusRejected,
		Decision: models.DecisionRejected,
		Marks:    &zero,
		Feedback: feedback,
		Warnings: m.policy.warnings(signal),
	}, nil
}
