package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/achievement-api/internal/models"
	appErrors "github.com/noah-isme/achievement-api/pkg/errors"
)

func intPtr(v int) *int { return &v }

func completeSignal(plag, ai, auth int) *models.VerificationSignal {
	s := &models.VerificationSignal{PlagiarismRisk: intPtr(plag), AIContentRisk: intPtr(ai), DocumentAuthenticity: intPtr(auth)}
	s.Status = s.ResolveStatus()
	return s
}

func pendingSubmission() *models.Submission {
	return &models.Submission{ID: "sub-1", MaxMarks: 50, Status: models.SubmissionStatusPending}
}

func TestStateMachineApproveHappyPath(t *testing.T) {
	sm := NewApprovalStateMachine(DefaultPolicy())
	tr, err := sm.Evaluate(pendingSubmission(), completeSignal(5, 10, 90), Command{Kind: CommandApprove, Marks: intPtr(45), Feedback: "Great"})
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionStatusApproved, tr.To)
	assert.Equal(t, models.DecisionApproved, tr.Decision)
	assert.Equal(t, 45, *tr.Marks)
	assert.False(t, tr.PolicyOverride)
	assert.Empty(t, tr.Warnings)
}

func TestStateMachineMarksBounds(t *testing.T) {
	sm := NewApprovalStateMachine(DefaultPolicy())
	sig := completeSignal(0, 0, 100)
	for _, marks := range []int{0, 50} {
		_, err := sm.Evaluate(pendingSubmission(), sig, Command{Kind: CommandApprove, Marks: intPtr(marks), Feedback: "ok"})
		assert.NoError(t, err, marks)
	}
	for _, marks := range []int{-1, 51} {
		_, err := sm.Evaluate(pendingSubmission(), sig, Command{Kind: CommandApprove, Marks: intPtr(marks), Feedback: "ok"})
		assert.True(t, errors.Is(err, appErrors.ErrMarksOutOfRange), marks)
	}
}

func TestStateMachineGuardOrder(t *testing.T) {
	sm := NewApprovalStateMachine(DefaultPolicy())

	_, err := sm.Evaluate(pendingSubmission(), nil, Command{Kind: CommandApprove})
	assert.ErrorIs(t, err, appErrors.ErrMissingMarks)

	_, err = sm.Evaluate(pendingSubmission(), nil, Command{Kind: CommandApprove, Marks: intPtr(60)})
	assert.ErrorIs(t, err, appErrors.ErrMarksOutOfRange)

	_, err = sm.Evaluate(pendingSubmission(), nil, Command{Kind: CommandApprove, Marks: intPtr(10), Feedback: "  "})
	assert.ErrorIs(t, err, appErrors.ErrMissingFeedback)

	_, err = sm.Evaluate(pendingSubmission(), nil, Command{Kind: CommandApprove, Marks: intPtr(10), Feedback: "fine"})
	assert.ErrorIs(t, err, appErrors.ErrVerificationPending)
}

func TestStateMachineUnknownSignalNeedsOverride(t *testing.T) {
	sm := NewApprovalStateMachine(DefaultPolicy())
	partial := &models.VerificationSignal{PlagiarismRisk: intPtr(5), DocumentAuthenticity: intPtr(90)}

	_, err := sm.Evaluate(pendingSubmission(), partial, Command{Kind: CommandApprove, Marks: intPtr(30), Feedback: "ok"})
	assert.ErrorIs(t, err, appErrors.ErrPolicyConflict)

	_, err = sm.Evaluate(pendingSubmission(), partial, Command{Kind: CommandApprove, Marks: intPtr(30), Feedback: "ok", Override: true})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	tr, err := sm.Evaluate(pendingSubmission(), partial, Command{Kind: CommandApprove, Marks: intPtr(30), Feedback: "ok", Override: true, OverrideReason: "checked certificate by phone"})
	require.NoError(t, err)
	assert.True(t, tr.PolicyOverride)
	assert.Equal(t, "checked certificate by phone", tr.OverrideReason)
}

func TestStateMachineThresholdsBlockApproval(t *testing.T) {
	sm := NewApprovalStateMachine(DefaultPolicy())
	cases := map[string]*models.VerificationSignal{
		"plagiarism":   completeSignal(80, 0, 100),
		"ai content":   completeSignal(0, 95, 100),
		"authenticity": completeSignal(0, 0, 19),
	}
	for name, sig := range cases {
		_, err := sm.Evaluate(pendingSubmission(), sig, Command{Kind: CommandApprove, Marks: intPtr(10), Feedback: "ok"})
		assert.ErrorIs(t, err, appErrors.ErrPolicyConflict, name)
	}

	tr, err := sm.Evaluate(pendingSubmission(), completeSignal(0, 0, 20), Command{Kind: CommandApprove, Marks: intPtr(10), Feedback: "ok"})
	require.NoError(t, err)
	assert.False(t, tr.PolicyOverride)
	assert.NotEmpty(t, tr.Warnings)
}

func TestStateMachineOverrideOnlyRecordedWhenUsed(t *testing.T) {
	sm := NewApprovalStateMachine(DefaultPolicy())
	tr, err := sm.Evaluate(pendingSubmission(), completeSignal(1, 1, 99), Command{Kind: CommandApprove, Marks: intPtr(10), Feedback: "ok", Override: true, OverrideReason: "n/a"})
	require.NoError(t, err)
	assert.False(t, tr.PolicyOverride)
	assert.Empty(t, tr.OverrideReason)
}

func TestStateMachineRejectForcesZeroMarks(t *testing.T) {
	sm := NewApprovalStateMachine(DefaultPolicy())
	sub := pendingSubmission()
	sub.Status = models.SubmissionStatusUnderReview

	_, err := sm.Evaluate(sub, nil, Command{Kind: CommandReject})
	assert.ErrorIs(t, err, appErrors.ErrMissingFeedback)

	tr, err := sm.Evaluate(sub, nil, Command{Kind: CommandReject, Marks: intPtr(40), Feedback: "Certificate illegible"})
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionStatusRejected, tr.To)
	require.NotNil(t, tr.Marks)
	assert.Equal(t, 0, *tr.Marks)
}

func TestStateMachineTerminalStatesRefuseEverything(t *testing.T) {
	sm := NewApprovalStateMachine(DefaultPolicy())
	for _, status := range []models.SubmissionStatus{models.SubmissionStatusApproved, models.SubmissionStatusRejected} {
		sub := pendingSubmission()
		sub.Status = status
		for _, kind := range []CommandKind{CommandOpenReview, CommandApprove, CommandReject} {
			_, err := sm.Evaluate(sub, completeSignal(0, 0, 100), Command{Kind: kind, Marks: intPtr(1), Feedback: "x"})
			assert.ErrorIs(t, err, appErrors.ErrSubmissionAlreadyFinalized, "%s/%s", status, kind)
		}
	}
}

func TestStateMachineOpenReview(t *testing.T) {
	sm := NewApprovalStateMachine(DefaultPolicy())
	tr, err := sm.Evaluate(pendingSubmission(), nil, Command{Kind: CommandOpenReview})
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionStatusUnderReview, tr.To)
	assert.False(t, tr.Noop)

	sub := pendingSubmission()
	sub.Status = models.SubmissionStatusUnderReview
	tr, err = sm.Evaluate(sub, nil, Command{Kind: CommandOpenReview})
	require.NoError(t, err)
	assert.True(t, tr.Noop)
}
