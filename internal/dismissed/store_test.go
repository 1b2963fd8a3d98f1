package dismissed

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "dismissed.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDismiss(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	mark, err := s.Dismiss(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), mark.ReportID)

	ok, err := s.Contains(ctx, 3)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Contains(ctx, 4)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDismiss_DuplicateConflicts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Dismiss(ctx, 7)
	require.NoError(t, err)

	_, err = s.Dismiss(ctx, 7)
	assert.ErrorIs(t, err, ErrAlreadyDismissed)

	marks, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, marks, 1)
}

func TestDismiss_InvalidID(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Dismiss(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidID)

	_, err = s.Dismiss(context.Background(), -5)
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestList_Ordered(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []int64{9, 2, 5} {
		_, err := s.Dismiss(ctx, id)
		require.NoError(t, err)
	}

	marks, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, marks, 3)
	assert.Equal(t, uint64(2), marks[0].ReportID)
	assert.Equal(t, uint64(5), marks[1].ReportID)
	assert.Equal(t, uint64(9), marks[2].ReportID)
}

func TestDismiss_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dismissed.db")

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.Dismiss(context.Background(), 11)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	ok, err := s2.Contains(context.Background(), 11)
	require.NoError(t, err)
	assert.True(t, ok)
}
