package service

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/achievement-api/pkg/config"
	appErrors "github.com/noah-isme/achievement-api/pkg/errors"
	"github.com/noah-isme/achievement-api/pkg/storage"
)

func TestEvidenceUploadStoresUnderStudentPrefix(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir(), 1<<20)
	require.NoError(t, err)
	svc := NewEvidenceService(store, config.ScorerConfig{}, nil)

	body := strings.Repeat("Certificate of participation awarded by Universitas Indonesia. ", 100)
	resp, err := svc.Upload(context.Background(), "stu-1", "certificate.TXT", strings.NewReader(body))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resp.Ref, "stu-1/"))
	assert.True(t, strings.HasSuffix(resp.Ref, ".txt"))
	assert.EqualValues(t, len(body), resp.Size)

	stored, err := store.Read(context.Background(), resp.Ref)
	require.NoError(t, err)
	assert.Equal(t, body, string(stored))
}

func TestEvidenceUploadRejectsUnacceptedContent(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir(), 64)
	require.NoError(t, err)
	svc := NewEvidenceService(store, config.ScorerConfig{}, nil)
	ctx := context.Background()

	_, err = svc.Upload(ctx, "stu-1", "empty.pdf", bytes.NewReader(nil))
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	zip := append([]byte("PK\x03\x04"), make([]byte, 40)...)
	_, err = svc.Upload(ctx, "stu-1", "archive.zip", bytes.NewReader(zip))
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Upload(ctx, "stu-1", "long.txt", strings.NewReader(strings.Repeat("a", 200)))
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Upload(ctx, "", "note.txt", strings.NewReader("hello"))
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
