package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneMatchesOriginalByCode(t *testing.T) {
	clone := Clone(ErrMarksOutOfRange, "marks must be between 0 and 50")
	require.True(t, errors.Is(clone, ErrMarksOutOfRange))
	assert.False(t, errors.Is(clone, ErrMissingMarks))
	assert.Equal(t, "marks must be between 0 and 50", clone.Message)
	assert.Equal(t, http.StatusUnprocessableEntity, clone.Status)
}

func TestWrappedErrorStillMatchesInner(t *testing.T) {
	err := fmt.Errorf("decide: %w", ErrSubmissionAlreadyFinalized)
	require.True(t, errors.Is(err, ErrSubmissionAlreadyFinalized))
	assert.Equal(t, ClassState, ClassOf(err))
}

func TestFromErrorFallsBackToInternal(t *testing.T) {
	appErr := FromError(errors.New("boom"))
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, ClassInternal, ClassOf(errors.New("boom")))
	assert.Nil(t, FromError(nil))
}

func TestWithCauseKeepsClassAndCause(t *testing.T) {
	cause := errors.New("file missing")
	err := WithCause(ErrEvidenceUnavailable, cause, "evidence a.pdf unavailable")
	assert.True(t, errors.Is(err, ErrEvidenceUnavailable))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, ClassDependency, ClassOf(err))
	assert.Equal(t, "evidence a.pdf unavailable: file missing", err.Error())
}
