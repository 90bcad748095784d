package storage

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageSaveAndRead(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir(), 1024)
	require.NoError(t, err)

	ref, err := store.Save(context.Background(), "student-1/cert.txt", bytes.NewBufferString("certificate of completion"))
	require.NoError(t, err)
	assert.Equal(t, "student-1/cert.txt", ref)

	data, err := store.Read(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "certificate of completion", string(data))

	require.NoError(t, store.Delete(ref))
	_, err = store.Read(context.Background(), ref)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir(), 0)
	require.NoError(t, err)

	for _, ref := range []string{"../secret", "/etc/passwd", "", "a/../../b"} {
		_, err := store.Read(context.Background(), ref)
		assert.ErrorIs(t, err, ErrInvalidRef, ref)
	}
}

func TestLocalStorageEnforcesLimit(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir(), 4)
	require.NoError(t, err)

	_, err = store.Save(context.Background(), "big.bin", bytes.NewBufferString("0123456789"))
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = store.Read(context.Background(), "big.bin")
	assert.ErrorIs(t, err, ErrNotFound)
}
