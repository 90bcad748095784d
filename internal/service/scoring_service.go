package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/achievement-api/internal/models"
	"github.com/noah-isme/achievement-api/internal/repository"
	"github.com/noah-isme/achievement-api/pkg/classifier"
	"github.com/noah-isme/achievement-api/pkg/config"
	appErrors "github.com/noah-isme/achievement-api/pkg/errors"
)

type evidenceReader interface {
	Read(ctx context.Context, ref string) ([]byte, error)
}

// FingerprintCorpus stores evidence shingles for cross-submission overlap checks.
type FingerprintCorpus interface {
	Overlap(ctx context.Context, owner string, shingles []uint64) (repository.FingerprintMatch, error)
	Register(ctx context.Context, owner string, shingles []uint64) error
	Remove(ctx context.Context, owner string) error
}

// evidenceFile is one resolved evidence ref.
type evidenceFile struct {
	Ref  string
	Data []byte
	MIME *mimetype.MIME
	Text string
}

// scoringInput is shared read-only by every strategy.
type scoringInput struct {
	SubmissionID string
	Activity     *models.Activity
	Files        []evidenceFile
	Text         string
	Shingles     []uint64
}

// riskResult is one strategy's outcome. A nil Score means unknown.
type riskResult struct {
	Score    *int
	Warnings []string
}

// RiskStrategy computes a single risk field of a verification signal.
type RiskStrategy interface {
	Name() string
	Assess(ctx context.Context, in *scoringInput) riskResult
}

// ScoringService computes verification signals from activity claims and evidence files.
type ScoringService struct {
	evidence     evidenceReader
	corpus       FingerprintCorpus
	plagiarism   RiskStrategy
	aiContent    RiskStrategy
	authenticity RiskStrategy
	shingleSize  int
	metrics      *MetricsService
	tracer       trace.Tracer
	logger       *zap.Logger
}

// ScoringOption customises the scoring service.
type ScoringOption func(*ScoringService)

// WithScoringMetrics wires metrics collection.
func WithScoringMetrics(metrics *MetricsService) ScoringOption {
	return func(s *ScoringService) {
		s.metrics = metrics
	}
}

// NewScoringService constructs the scorer. corpus and contentClassifier may be nil, in which case
// the matching risk is always unknown.
func NewScoringService(evidence evidenceReader, corpus FingerprintCorpus, contentClassifier classifier.ContentClassifier, cfg config.ScorerConfig, logger *zap.Logger, opts ...ScoringOption) *ScoringService {
	if logger == nil {
		logger = zap.NewNop()
	}
	size := cfg.ShingleSize
	if size <= 0 {
		size = 5
	}
	timeout := cfg.ClassifierTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	allowed := cfg.AllowedMIMEs
	if len(allowed) == 0 {
		allowed = defaultAllowedMIMEs
	}

	svc := &ScoringService{
		evidence:     evidence,
		corpus:       corpus,
		plagiarism:   &plagiarismStrategy{corpus: corpus},
		aiContent:    &aiContentStrategy{classifier: contentClassifier, timeout: timeout},
		authenticity: &authenticityStrategy{allowed: allowed, maxBytes: cfg.MaxEvidenceBytes},
		shingleSize:  size,
		tracer:       otel.Tracer("github.com/noah-isme/achievement-api/internal/service/scoring"),
		logger:       logger,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Score reads every evidence ref and computes the signal. When any ref cannot be read the
// returned signal is all unknown and flagged for manual review, and the error is
// ErrEvidenceUnavailable.
func (s *ScoringService) Score(ctx context.Context, submissionID string, activity *models.Activity, refs []string) (*models.VerificationSignal, error) {
	start := time.Now()
	spanCtx, span := s.tracer.Start(ctx, "scoring.score", trace.WithAttributes(
		attribute.String("submission.id", submissionID),
		attribute.Int("evidence.count", len(refs)),
	))
	defer span.End()

	files := make([]evidenceFile, 0, len(refs))
	for _, ref := range refs {
		data, err := s.evidence.Read(spanCtx, ref)
		if err != nil {
			span.RecordError(err)
			s.logger.Warn("evidence unavailable", zap.String("submission_id", submissionID), zap.String("ref", ref), zap.Error(err))
			signal := unknownSignal(submissionID, fmt.Sprintf("evidence %s unavailable", ref))
			s.metrics.ObserveScoring(signal.Status, time.Since(start))
			return signal, appErrors.WithCause(appErrors.ErrEvidenceUnavailable, err, fmt.Sprintf("evidence %s unavailable", ref))
		}
		mime := mimetype.Detect(data)
		files = append(files, evidenceFile{
			Ref:  ref,
			Data: data,
			MIME: mime,
			Text: extractText(baseMIME(mime), data),
		})
	}

	evidenceTexts := make([]string, 0, len(files))
	for _, f := range files {
		if t := strings.TrimSpace(f.Text); t != "" {
			evidenceTexts = append(evidenceTexts, t)
		}
	}
	evidenceText := strings.Join(evidenceTexts, "\n")
	text := strings.TrimSpace(activity.Description + "\n" + evidenceText)

	in := &scoringInput{
		SubmissionID: submissionID,
		Activity:     activity,
		Files:        files,
		Text:         text,
		Shingles:     shingles(text, s.shingleSize),
	}

	strategies := []RiskStrategy{s.plagiarism, s.aiContent, s.authenticity}
	results := make([]riskResult, len(strategies))
	g, gctx := errgroup.WithContext(spanCtx)
	for i, strategy := range strategies {
		i, strategy := i, strategy
		g.Go(func() error {
			results[i] = strategy.Assess(gctx, in)
			return nil
		})
	}
	_ = g.Wait()

	signal := &models.VerificationSignal{
		SubmissionID:         submissionID,
		PlagiarismRisk:       results[0].Score,
		AIContentRisk:        results[1].Score,
		DocumentAuthenticity: results[2].Score,
		CrossReference:       crossReference(activity, evidenceText),
		Warnings:             []string{},
	}
	for _, r := range results {
		signal.Warnings = append(signal.Warnings, r.Warnings...)
	}
	signal.Status = signal.ResolveStatus()
	signal.ManualReviewOnly = signal.Status == models.SignalStatusUnknown

	if s.corpus != nil && len(in.Shingles) > 0 {
		if err := s.corpus.Register(spanCtx, submissionID, in.Shingles); err != nil {
			s.logger.Warn("failed to register fingerprints", zap.String("submission_id", submissionID), zap.Error(err))
		}
	}

	span.SetAttributes(attribute.String("signal.status", string(signal.Status)))
	s.metrics.ObserveScoring(signal.Status, time.Since(start))
	return signal, nil
}

// Forget drops a submission's fingerprints from the plagiarism corpus.
func (s *ScoringService) Forget(ctx context.Context, submissionID string) error {
	if s.corpus == nil {
		return nil
	}
	return s.corpus.Remove(ctx, submissionID)
}

func unknownSignal(submissionID string, warnings ...string) *models.VerificationSignal {
	return &models.VerificationSignal{
		SubmissionID:     submissionID,
		Status:           models.SignalStatusUnknown,
		ManualReviewOnly: true,
		CrossReference:   "evidence could not be read",
		Warnings:         append([]string{}, warnings...),
	}
}

func baseMIME(m *mimetype.MIME) string {
	value := m.String()
	if i := strings.IndexByte(value, ';'); i >= 0 {
		value = value[:i]
	}
	return strings.TrimSpace(value)
}

func percent(v float64) *int {
	p := int(math.Round(v))
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return &p
}

type plagiarismStrategy struct {
	corpus FingerprintCorpus
}

func (p *plagiarismStrategy) Name() string { return "plagiarism" }

func (p *plagiarismStrategy) Assess(ctx context.Context, in *scoringInput) riskResult {
	if p.corpus == nil {
		return riskResult{Warnings: []string{"plagiarism corpus not configured"}}
	}
	if len(in.Shingles) == 0 {
		return riskResult{Warnings: []string{"not enough text for a plagiarism check"}}
	}
	match, err := p.corpus.Overlap(ctx, in.SubmissionID, in.Shingles)
	if err != nil {
		return riskResult{Warnings: []string{"plagiarism corpus unavailable"}}
	}
	return riskResult{Score: percent(match.Ratio * 100)}
}

type aiContentStrategy struct {
	classifier classifier.ContentClassifier
	timeout    time.Duration
}

func (a *aiContentStrategy) Name() string { return "ai_content" }

func (a *aiContentStrategy) Assess(ctx context.Context, in *scoringInput) riskResult {
	if a.classifier == nil {
		return riskResult{Warnings: []string{"AI content classifier not configured"}}
	}
	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	result, err := a.classifier.Classify(cctx, classifier.Input{Title: in.Activity.Title, Text: in.Text})
	switch {
	case err == nil:
		return riskResult{Score: percent(float64(result.Risk))}
	case errors.Is(err, classifier.ErrInsufficientText):
		return riskResult{Warnings: []string{"not enough text for an AI content check"}}
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(cctx.Err(), context.DeadlineExceeded):
		return riskResult{Warnings: []string{"AI content check timed out"}}
	default:
		return riskResult{Warnings: []string{"AI content check failed"}}
	}
}

type authenticityStrategy struct {
	allowed  []string
	maxBytes int64
}

func (a *authenticityStrategy) Name() string { return "document_authenticity" }

// Assess scores each file from 100 down and reports the weakest file.
func (a *authenticityStrategy) Assess(_ context.Context, in *scoringInput) riskResult {
	if len(in.Files) == 0 {
		return riskResult{Warnings: []string{"no evidence files to assess"}}
	}
	lowest := 100
	var warnings []string
	for _, f := range in.Files {
		score, issues := a.assessFile(f)
		for _, issue := range issues {
			warnings = append(warnings, fmt.Sprintf("evidence %s: %s", f.Ref, issue))
		}
		if score < lowest {
			lowest = score
		}
	}
	return riskResult{Score: percent(float64(lowest)), Warnings: warnings}
}

func (a *authenticityStrategy) assessFile(f evidenceFile) (int, []string) {
	if len(f.Data) == 0 {
		return 0, []string{"file is empty"}
	}

	if !mimeAllowed(f.MIME, a.allowed) {
		return 10, []string{fmt.Sprintf("content type %s is not accepted", baseMIME(f.MIME))}
	}

	score := 100
	var issues []string

	declared := normalizeExt(filepath.Ext(f.Ref))
	if declared != "" && declared != normalizeExt(f.MIME.Extension()) {
		score -= 40
		issues = append(issues, fmt.Sprintf("extension %s does not match detected %s", declared, baseMIME(f.MIME)))
	}
	if a.maxBytes > 0 && int64(len(f.Data)) > a.maxBytes {
		score -= 30
		issues = append(issues, "file exceeds the size limit")
	}

	switch {
	case f.MIME.Is("application/pdf"):
		tailStart := len(f.Data) - 1024
		if tailStart < 0 {
			tailStart = 0
		}
		if !strings.HasPrefix(string(f.Data), "%PDF-") || !strings.Contains(string(f.Data[tailStart:]), "%%EOF") {
			score -= 30
			issues = append(issues, "PDF structure is incomplete")
		}
		if strings.Contains(string(f.Data), "/JavaScript") || strings.Contains(string(f.Data), "/JS") {
			score -= 30
			issues = append(issues, "PDF embeds scripts")
		}
	case strings.HasPrefix(baseMIME(f.MIME), "image/"):
		if len(f.Data) < 1024 {
			score -= 20
			issues = append(issues, "image is too small to be a scan or photo")
		}
	}

	if score < 0 {
		score = 0
	}
	return score, issues
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	switch ext {
	case ".jpeg":
		return ".jpg"
	case ".text":
		return ".txt"
	}
	return ext
}

// crossReference states which of the activity's claims appear in the evidence text.
func crossReference(activity *models.Activity, evidenceText string) string {
	if strings.TrimSpace(evidenceText) == "" {
		return "no machine readable evidence text"
	}
	tokens := make(map[string]struct{})
	for _, w := range words(evidenceText) {
		tokens[w] = struct{}{}
	}
	lowered := strings.ToLower(evidenceText)

	var terms, found int
	seen := make(map[string]struct{})
	for _, w := range words(activity.Title) {
		if len(w) <= 3 {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		terms++
		if _, ok := tokens[w]; ok {
			found++
		}
	}

	parts := []string{fmt.Sprintf("title terms matched %d/%d", found, terms)}
	if activity.Organization != nil && strings.TrimSpace(*activity.Organization) != "" {
		org := strings.TrimSpace(*activity.Organization)
		if strings.Contains(lowered, strings.ToLower(org)) {
			parts = append(parts, fmt.Sprintf("organization %q found", org))
		} else {
			parts = append(parts, fmt.Sprintf("organization %q not found", org))
		}
	}
	if !activity.ActivityDate.IsZero() {
		year := strconv.Itoa(activity.ActivityDate.Year())
		if _, ok := tokens[year]; ok {
			parts = append(parts, "year "+year+" found")
		} else {
			parts = append(parts, "year "+year+" not found")
		}
	}
	return strings.Join(parts, "; ")
}
