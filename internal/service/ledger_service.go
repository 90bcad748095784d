package service

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/achievement-api/internal/models"
	"github.com/noah-isme/achievement-api/internal/repository"
	appErrors "github.com/noah-isme/achievement-api/pkg/errors"
	"github.com/noah-isme/achievement-api/pkg/signing"
)

const chainPageSize = 500

type ledgerReader interface {
	Range(ctx context.Context, afterSequence int64, limit int) ([]models.LedgerRecord, error)
}

// canonicalApproval fixes the field order and formats hashed for an approval.
type canonicalApproval struct {
	ApprovalID     string `json:"approval_id"`
	SubmissionID   string `json:"submission_id"`
	FacultyID      string `json:"faculty_id"`
	Decision       string `json:"decision"`
	Marks          *int   `json:"marks"`
	Feedback       string `json:"feedback"`
	PolicyOverride bool   `json:"policy_override"`
	OverrideReason string `json:"override_reason"`
	DecidedAt      string `json:"decided_at"`
}

// LedgerService builds, verifies and appends hash-chained signed records.
type LedgerService struct {
	hasher     signing.Hasher
	signer     signing.Signer
	verifiers  map[string]signing.Signer
	maxRetries int
	metrics    *MetricsService
	logger     *zap.Logger
	now        func() time.Time
}

// LedgerOption customises the ledger service.
type LedgerOption func(*LedgerService)

// WithLedgerMaxRetries sets how many times an append is retried after losing the tail.
func WithLedgerMaxRetries(n int) LedgerOption {
	return func(s *LedgerService) {
		if n >= 0 {
			s.maxRetries = n
		}
	}
}

// WithLedgerMetrics wires metrics collection.
func WithLedgerMetrics(metrics *MetricsService) LedgerOption {
	return func(s *LedgerService) {
		s.metrics = metrics
	}
}

// WithLedgerVerifier registers a retired signer so records signed under its key still verify.
func WithLedgerVerifier(signer signing.Signer) LedgerOption {
	return func(s *LedgerService) {
		if signer != nil {
			s.verifiers[signer.KeyID()] = signer
		}
	}
}

// NewLedgerService constructs the ledger service.
func NewLedgerService(hasher signing.Hasher, signer signing.Signer, logger *zap.Logger, opts ...LedgerOption) *LedgerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &LedgerService{
		hasher:     hasher,
		signer:     signer,
		verifiers:  map[string]signing.Signer{signer.KeyID(): signer},
		maxRetries: 5,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Canonical returns the deterministic byte form of an approval that the payload hash covers.
func (s *LedgerService) Canonical(approval *models.Approval) ([]byte, error) {
	reason := ""
	if approval.OverrideReason != nil {
		reason = *approval.OverrideReason
	}
	return json.Marshal(canonicalApproval{
		ApprovalID:     approval.ID,
		SubmissionID:   approval.SubmissionID,
		FacultyID:      approval.FacultyID,
		Decision:       string(approval.Status),
		Marks:          approval.Marks,
		Feedback:       approval.Feedback,
		PolicyOverride: approval.PolicyOverride,
		OverrideReason: reason,
		DecidedAt:      approval.ApprovedAt.UTC().Truncate(time.Microsecond).Format(time.RFC3339Nano),
	})
}

// PayloadHash returns the hex digest of the approval's canonical form.
func (s *LedgerService) PayloadHash(approval *models.Approval) (string, error) {
	payload, err := s.Canonical(approval)
	if err != nil {
		return "", fmt.Errorf("canonical approval: %w", err)
	}
	return hex.EncodeToString(s.hasher.Sum(payload)), nil
}

// Append links the approval to the current tail and writes it through store. A lost race for
// the tail is retried with a fresh read until the retry budget is spent.
func (s *LedgerService) Append(ctx context.Context, store repository.LedgerAppendStore, approval *models.Approval) (*models.LedgerRecord, error) {
	if approval == nil || approval.ID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "approval id is required for the ledger")
	}
	payloadHash, err := s.PayloadHash(approval)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)
	}
	payloadRaw, _ := hex.DecodeString(payloadHash)

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		last, err := store.Tail(ctx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read ledger tail")
		}

		expected := int64(-1)
		previous := models.GenesisHash
		if last != nil {
			expected = last.Sequence
			previous = last.ThisHash
		}
		previousRaw, err := hex.DecodeString(previous)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrIntegrityViolation.Code, appErrors.ErrIntegrityViolation.Status, appErrors.ErrIntegrityViolation.Message)
		}

		thisRaw := s.hasher.Sum(payloadRaw, previousRaw)
		signature, err := s.signer.Sign(thisRaw)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign ledger record")
		}

		record := &models.LedgerRecord{
			Sequence:      expected + 1,
			ApprovalID:    approval.ID,
			SubmissionID:  approval.SubmissionID,
			PayloadHash:   payloadHash,
			PreviousHash:  previous,
			ThisHash:      hex.EncodeToString(thisRaw),
			Signature:     signature,
			KeyID:         s.signer.KeyID(),
			HashAlgorithm: s.hasher.Algorithm(),
			CreatedAt:     s.now().UTC().Truncate(time.Microsecond),
		}

		err = store.AppendIfTail(ctx, expected, record)
		if err == nil {
			return record, nil
		}
		if !errors.Is(err, repository.ErrLedgerTailMoved) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to append ledger record")
		}
		s.metrics.RecordLedgerRetry()
		s.logger.Debug("ledger tail moved, retrying append",
			zap.String("approval_id", approval.ID),
			zap.Int64("expected_sequence", expected),
			zap.Int("attempt", attempt+1),
		)
	}

	s.metrics.RecordLedgerContention()
	s.logger.Warn("ledger append abandoned", zap.String("approval_id", approval.ID), zap.Int("retries", s.maxRetries))
	return nil, appErrors.Clone(appErrors.ErrLedgerContention, "")
}

// Verify recomputes the record hash and checks its signature.
func (s *LedgerService) Verify(record *models.LedgerRecord) bool {
	return s.Check(record) == nil
}

// Check is Verify with the reason for a failure.
func (s *LedgerService) Check(record *models.LedgerRecord) error {
	if record == nil {
		return fmt.Errorf("record missing")
	}
	hasher := s.hasher
	if record.HashAlgorithm != "" && record.HashAlgorithm != hasher.Algorithm() {
		h, err := signing.NewHasher(record.HashAlgorithm)
		if err != nil {
			return err
		}
		hasher = h
	}
	payloadRaw, err := decodeDigest(record.PayloadHash, hasher.Size())
	if err != nil {
		return fmt.Errorf("payload hash: %w", err)
	}
	previousRaw, err := hex.DecodeString(record.PreviousHash)
	if err != nil {
		return fmt.Errorf("previous hash: %w", err)
	}
	thisRaw := hasher.Sum(payloadRaw, previousRaw)
	if hex.EncodeToString(thisRaw) != record.ThisHash {
		return fmt.Errorf("this hash does not match contents")
	}
	verifier, ok := s.verifiers[record.KeyID]
	if !ok {
		return fmt.Errorf("unknown signing key %q", record.KeyID)
	}
	if !verifier.Verify(thisRaw, record.Signature) {
		return fmt.Errorf("signature invalid")
	}
	return nil
}

// CheckBinding reports whether record wraps exactly this approval.
func (s *LedgerService) CheckBinding(record *models.LedgerRecord, approval *models.Approval) error {
	if record.ApprovalID != approval.ID || record.SubmissionID != approval.SubmissionID {
		return fmt.Errorf("record does not reference approval")
	}
	if approval.BlockchainHash != record.ThisHash || approval.DigitalSignature != record.Signature {
		return fmt.Errorf("approval hash or signature differs from ledger")
	}
	hasher := s.hasher
	if record.HashAlgorithm != "" && record.HashAlgorithm != hasher.Algorithm() {
		h, err := signing.NewHasher(record.HashAlgorithm)
		if err != nil {
			return err
		}
		hasher = h
	}
	payload, err := s.Canonical(approval)
	if err != nil {
		return err
	}
	if hex.EncodeToString(hasher.Sum(payload)) != record.PayloadHash {
		return fmt.Errorf("payload hash does not match approval")
	}
	return nil
}

// VerifyChain walks the whole ledger checking each record and its link to the previous one.
func (s *LedgerService) VerifyChain(ctx context.Context, reader ledgerReader) (*models.ChainReport, error) {
	report := &models.ChainReport{Valid: true}
	after := int64(-1)
	previous := models.GenesisHash

	for {
		records, err := reader.Range(ctx, after, chainPageSize)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read ledger")
		}
		for i := range records {
			record := &records[i]
			var problems []string
			if record.Sequence != after+1 {
				problems = append(problems, fmt.Sprintf("sequence gap after %d", after))
			}
			if record.PreviousHash != previous {
				problems = append(problems, "previous hash does not link to predecessor")
			}
			if err := s.Check(record); err != nil {
				problems = append(problems, err.Error())
			}
			for _, reason := range problems {
				report.Valid = false
				report.Warnings = append(report.Warnings, models.IntegrityWarning{
					Sequence:     record.Sequence,
					SubmissionID: record.SubmissionID,
					Reason:       reason,
					DetectedAt:   s.now().UTC(),
				})
			}
			after = record.Sequence
			previous = record.ThisHash
			report.Length++
		}
		if len(records) < chainPageSize {
			break
		}
	}

	if !report.Valid {
		s.logger.Error("ledger chain verification failed", zap.Int("warnings", len(report.Warnings)))
	}
	return report, nil
}

func decodeDigest(value string, size int) ([]byte, error) {
	raw, err := hex.DecodeString(value)
	if err != nil {
		return nil, err
	}
	if len(raw) != size {
		return nil, fmt.Errorf("expected %d byte digest, got %d", size, len(raw))
	}
	return raw, nil
}
