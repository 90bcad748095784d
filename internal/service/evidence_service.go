package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/achievement-api/internal/dto"
	"github.com/noah-isme/achievement-api/pkg/config"
	appErrors "github.com/noah-isme/achievement-api/pkg/errors"
	"github.com/noah-isme/achievement-api/pkg/storage"
)

const sniffBytes = 3072

var defaultAllowedMIMEs = []string{"application/pdf", "image/png", "image/jpeg", "text/plain"}

type evidenceWriter interface {
	Save(ctx context.Context, ref string, r io.Reader) (string, error)
}

// EvidenceService stores uploaded evidence under the uploading student's prefix.
type EvidenceService struct {
	store   evidenceWriter
	allowed []string
	logger  *zap.Logger
}

// NewEvidenceService constructs the evidence upload service.
func NewEvidenceService(store evidenceWriter, cfg config.ScorerConfig, logger *zap.Logger) *EvidenceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := cfg.AllowedMIMEs
	if len(allowed) == 0 {
		allowed = defaultAllowedMIMEs
	}
	return &EvidenceService{store: store, allowed: allowed, logger: logger}
}

// Upload sniffs the content type, rejects types the scorer would not accept and saves the file.
// The returned ref is what a submission cites.
func (s *EvidenceService) Upload(ctx context.Context, studentID, filename string, r io.Reader) (*dto.EvidenceUploadResponse, error) {
	if strings.TrimSpace(studentID) == "" {
		return nil, appErrors.ErrUnauthorized
	}
	head := make([]byte, sniffBytes)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload")
	}
	head = head[:n]
	if n == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "evidence file is empty")
	}

	mime := mimetype.Detect(head)
	if !mimeAllowed(mime, s.allowed) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported file type %s", baseMIME(mime)))
	}

	ext := normalizeExt(filepath.Ext(filename))
	if ext == "" {
		ext = mime.Extension()
	}
	ref := studentID + "/" + uuid.NewString() + ext
	counter := &countingReader{r: io.MultiReader(bytes.NewReader(head), r)}
	if _, err := s.store.Save(ctx, ref, counter); err != nil {
		switch {
		case errors.Is(err, storage.ErrTooLarge):
			return nil, appErrors.Clone(appErrors.ErrValidation, "evidence file exceeds the size limit")
		case errors.Is(err, storage.ErrInvalidRef):
			return nil, appErrors.WithCause(appErrors.ErrValidation, err, "invalid evidence name")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store evidence")
		}
	}
	s.logger.Info("evidence stored", zap.String("ref", ref), zap.String("mime", baseMIME(mime)), zap.Int64("size", counter.n))
	return &dto.EvidenceUploadResponse{Ref: ref, Size: counter.n}, nil
}

func mimeAllowed(mime *mimetype.MIME, allowed []string) bool {
	for _, a := range allowed {
		if mime.Is(a) {
			return true
		}
	}
	return false
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
