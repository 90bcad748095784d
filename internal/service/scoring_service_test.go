package service

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/achievement-api/internal/models"
	"github.com/noah-isme/achievement-api/internal/repository"
	"github.com/noah-isme/achievement-api/pkg/classifier"
	"github.com/noah-isme/achievement-api/pkg/config"
	appErrors "github.com/noah-isme/achievement-api/pkg/errors"
)

const certificateText = `Certificate of participation awarded to Sari Wulandari for presenting a paper at the
National Student Robotics Conference organised by Universitas Indonesia in 2024. The paper described
a low cost line following robot built from recycled parts and tested on three school tracks.`

type stubEvidence struct {
	files map[string][]byte
}

func (s *stubEvidence) Read(_ context.Context, ref string) ([]byte, error) {
	data, ok := s.files[ref]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

type stubClassifier struct {
	risk  int
	err   error
	block bool
	calls int
	mu    sync.Mutex
}

func (s *stubClassifier) Classify(ctx context.Context, _ classifier.Input) (classifier.Result, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.block {
		<-ctx.Done()
		return classifier.Result{}, ctx.Err()
	}
	if s.err != nil {
		return classifier.Result{}, s.err
	}
	return classifier.Result{Risk: s.risk, Model: "stub"}, nil
}

type memoryCorpus struct {
	mu   sync.Mutex
	docs map[string][]uint64
	err  error
}

func newMemoryCorpus() *memoryCorpus {
	return &memoryCorpus{docs: map[string][]uint64{}}
}

func (m *memoryCorpus) Overlap(_ context.Context, owner string, shingles []uint64) (repository.FingerprintMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return repository.FingerprintMatch{}, m.err
	}
	query := map[uint64]struct{}{}
	for _, sh := range shingles {
		query[sh] = struct{}{}
	}
	var best repository.FingerprintMatch
	for o, doc := range m.docs {
		if o == owner {
			continue
		}
		shared := 0
		for _, sh := range doc {
			if _, ok := query[sh]; ok {
				shared++
			}
		}
		if shared > best.Shared {
			best = repository.FingerprintMatch{Owner: o, Shared: shared}
		}
	}
	if len(shingles) > 0 {
		best.Ratio = float64(best.Shared) / float64(len(shingles))
	}
	return best, nil
}

func (m *memoryCorpus) Register(_ context.Context, owner string, shingles []uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[owner] = append([]uint64(nil), shingles...)
	return nil
}

func (m *memoryCorpus) Remove(_ context.Context, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, owner)
	return nil
}

func testActivity() *models.Activity {
	org := "Universitas Indonesia"
	return &models.Activity{
		ID:           "act-1",
		StudentID:    "stu-1",
		Category:     models.CategoryConferences,
		Title:        "National Student Robotics Conference",
		Description:  "Presented a paper on recycled robots.",
		ActivityDate: time.Date(2024, 8, 17, 0, 0, 0, 0, time.UTC),
		Organization: &org,
	}
}

func newTestScorer(evidence evidenceReader, corpus FingerprintCorpus, cls classifier.ContentClassifier) *ScoringService {
	return NewScoringService(evidence, corpus, cls, config.ScorerConfig{ClassifierTimeout: 50 * time.Millisecond}, nil)
}

func TestScoreProducesCompleteSignal(t *testing.T) {
	evidence := &stubEvidence{files: map[string][]byte{"stu-1/cert.txt": []byte(certificateText)}}
	corpus := newMemoryCorpus()
	scorer := newTestScorer(evidence, corpus, &stubClassifier{risk: 30})

	signal, err := scorer.Score(context.Background(), "sub-1", testActivity(), []string{"stu-1/cert.txt"})
	require.NoError(t, err)

	assert.Equal(t, models.SignalStatusComplete, signal.Status)
	assert.False(t, signal.ManualReviewOnly)
	require.NotNil(t, signal.PlagiarismRisk)
	assert.Equal(t, 0, *signal.PlagiarismRisk)
	assert.Equal(t, 30, *signal.AIContentRisk)
	assert.Equal(t, 100, *signal.DocumentAuthenticity)
	assert.Equal(t, `title terms matched 4/4; organization "Universitas Indonesia" found; year 2024 found`, signal.CrossReference)
	assert.Empty(t, signal.Warnings)
	assert.NotEmpty(t, corpus.docs["sub-1"], "fingerprints registered")
}

func TestScoreIsIdempotentAndDetectsCopies(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	corpus := repository.NewFingerprintRepository(client, "test")

	evidence := &stubEvidence{files: map[string][]byte{
		"stu-1/cert.txt": []byte(certificateText),
		"stu-2/cert.txt": []byte(certificateText),
	}}
	scorer := newTestScorer(evidence, corpus, &stubClassifier{risk: 12})
	ctx := context.Background()

	first, err := scorer.Score(ctx, "sub-1", testActivity(), []string{"stu-1/cert.txt"})
	require.NoError(t, err)
	again, err := scorer.Score(ctx, "sub-1", testActivity(), []string{"stu-1/cert.txt"})
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, 0, *again.PlagiarismRisk)

	copied, err := scorer.Score(ctx, "sub-2", testActivity(), []string{"stu-2/cert.txt"})
	require.NoError(t, err)
	assert.Equal(t, 100, *copied.PlagiarismRisk)

	require.NoError(t, scorer.Forget(ctx, "sub-1"))
	rescored, err := scorer.Score(ctx, "sub-2", testActivity(), []string{"stu-2/cert.txt"})
	require.NoError(t, err)
	assert.Equal(t, 0, *rescored.PlagiarismRisk)
}

func TestScoreMissingEvidenceYieldsUnknownSignal(t *testing.T) {
	cls := &stubClassifier{risk: 10}
	scorer := newTestScorer(&stubEvidence{files: map[string][]byte{}}, newMemoryCorpus(), cls)

	signal, err := scorer.Score(context.Background(), "sub-1", testActivity(), []string{"stu-1/missing.pdf"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrEvidenceUnavailable))
	assert.Equal(t, appErrors.ClassDependency, appErrors.ClassOf(err))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	require.NotNil(t, signal)
	assert.Equal(t, models.SignalStatusUnknown, signal.Status)
	assert.True(t, signal.ManualReviewOnly)
	assert.Nil(t, signal.PlagiarismRisk)
	assert.Nil(t, signal.AIContentRisk)
	assert.Nil(t, signal.DocumentAuthenticity)
	assert.Equal(t, 0, cls.calls)
}

func TestScoreClassifierTimeoutLeavesFieldUnknown(t *testing.T) {
	evidence := &stubEvidence{files: map[string][]byte{"stu-1/cert.txt": []byte(certificateText)}}
	scorer := newTestScorer(evidence, newMemoryCorpus(), &stubClassifier{block: true})

	start := time.Now()
	signal, err := scorer.Score(context.Background(), "sub-1", testActivity(), []string{"stu-1/cert.txt"})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.Nil(t, signal.AIContentRisk)
	assert.NotNil(t, signal.PlagiarismRisk)
	assert.Equal(t, models.SignalStatusPartial, signal.Status)
	assert.Contains(t, signal.Warnings, "AI content check timed out")
}

func TestScoreDegradesWhenDependenciesFail(t *testing.T) {
	evidence := &stubEvidence{files: map[string][]byte{"stu-1/cert.txt": []byte(certificateText)}}
	corpus := newMemoryCorpus()
	corpus.err = errors.New("redis down")
	scorer := newTestScorer(evidence, corpus, &stubClassifier{err: classifier.ErrInsufficientText})

	signal, err := scorer.Score(context.Background(), "sub-1", testActivity(), []string{"stu-1/cert.txt"})
	require.NoError(t, err)
	assert.Nil(t, signal.PlagiarismRisk)
	assert.Nil(t, signal.AIContentRisk)
	assert.Equal(t, 100, *signal.DocumentAuthenticity)
	assert.Equal(t, models.SignalStatusPartial, signal.Status)
	assert.Contains(t, signal.Warnings, "plagiarism corpus unavailable")
	assert.Contains(t, signal.Warnings, "not enough text for an AI content check")
}

func TestAuthenticityPenalties(t *testing.T) {
	png := append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), bytes.Repeat([]byte{0}, 2048)...)
	tinyPNG := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00")
	pdf := []byte("%PDF-1.4\n1 0 obj << /Type /Catalog >> endobj\n%%EOF\n")
	scriptedPDF := []byte("%PDF-1.4\n1 0 obj << /OpenAction << /S /JavaScript /JS (app.alert(1)) >> >> endobj\n%%EOF\n")
	truncatedPDF := []byte("%PDF-1.4\n1 0 obj << /Type /Catalog >> endobj\n")
	archive := append([]byte("PK\x03\x04"), bytes.Repeat([]byte{1}, 64)...)

	cases := []struct {
		name  string
		ref   string
		data  []byte
		score int
		issue string
	}{
		{name: "clean pdf", ref: "a.pdf", data: pdf, score: 100},
		{name: "clean png", ref: "a.png", data: png, score: 100},
		{name: "empty", ref: "a.pdf", data: []byte{}, score: 0, issue: "file is empty"},
		{name: "disallowed type", ref: "a.zip", data: archive, score: 10, issue: "is not accepted"},
		{name: "extension mismatch", ref: "a.pdf", data: png, score: 60, issue: "does not match detected image/png"},
		{name: "tiny image", ref: "a.png", data: tinyPNG, score: 80, issue: "too small"},
		{name: "scripted pdf", ref: "a.pdf", data: scriptedPDF, score: 70, issue: "embeds scripts"},
		{name: "truncated pdf", ref: "a.pdf", data: truncatedPDF, score: 70, issue: "structure is incomplete"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			evidence := &stubEvidence{files: map[string][]byte{tc.ref: tc.data}}
			scorer := newTestScorer(evidence, newMemoryCorpus(), &stubClassifier{risk: 0})
			signal, err := scorer.Score(context.Background(), "sub-1", testActivity(), []string{tc.ref})
			require.NoError(t, err)
			require.NotNil(t, signal.DocumentAuthenticity)
			assert.Equal(t, tc.score, *signal.DocumentAuthenticity)
			if tc.issue != "" {
				assert.True(t, containsSubstring(signal.Warnings, tc.issue), "warnings %v", signal.Warnings)
			}
		})
	}
}

func TestAuthenticityUsesWeakestFile(t *testing.T) {
	evidence := &stubEvidence{files: map[string][]byte{
		"good.txt": []byte(certificateText),
		"bad.pdf":  {},
	}}
	scorer := newTestScorer(evidence, newMemoryCorpus(), &stubClassifier{risk: 0})
	signal, err := scorer.Score(context.Background(), "sub-1", testActivity(), []string{"good.txt", "bad.pdf"})
	require.NoError(t, err)
	assert.Equal(t, 0, *signal.DocumentAuthenticity)
}

func TestCrossReferenceWithoutText(t *testing.T) {
	assert.Equal(t, "no machine readable evidence text", crossReference(testActivity(), "  "))
	note := crossReference(testActivity(), "robotics certificate 2023")
	assert.Equal(t, `title terms matched 1/4; organization "Universitas Indonesia" not found; year 2024 not found`, note)
}

func containsSubstring(values []string, needle string) bool {
	for _, v := range values {
		if strings.Contains(v, needle) {
			return true
		}
	}
	return false
}
