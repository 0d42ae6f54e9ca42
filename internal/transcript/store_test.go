package transcript

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/flynn-ai/corrode/internal/errors"
)

func openStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "transcript.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestRecordAndRecent(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Record(ctx, Entry{Tool: "read_file", Arguments: `{"file_path":"a"}`, Result: `{}`, CreatedAt: base}))
	require.NoError(t, s.Record(ctx, Entry{Tool: "edit_file", Arguments: `{}`, Result: `{}`, IsError: true,
		Code: apperrors.CodeHunkMismatch, Duration: 15 * time.Millisecond, CreatedAt: base.Add(time.Second)}))
	require.NoError(t, s.Record(ctx, Entry{Tool: "read_file", Arguments: `{"file_path":"b"}`, Result: `{}`, CreatedAt: base.Add(2 * time.Second)}))

	all, err := s.Recent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, `{"file_path":"b"}`, all[0].Arguments)
	assert.Equal(t, "edit_file", all[1].Tool)
	assert.True(t, all[1].IsError)
	assert.Equal(t, apperrors.CodeHunkMismatch, all[1].Code)
	assert.Equal(t, 15*time.Millisecond, all[1].Duration)
	assert.True(t, base.Add(time.Second).Equal(all[1].CreatedAt))
	assert.Empty(t, all[0].Code)
	assert.NotEmpty(t, all[0].ID)

	reads, err := s.Recent(ctx, "read_file", 1)
	require.NoError(t, err)
	require.Len(t, reads, 1)
	assert.Equal(t, `{"file_path":"b"}`, reads[0].Arguments)
}

func TestGet(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, Entry{ID: "call-1", Tool: "get_crate", Arguments: `{}`, Result: `{"ok":true}`}))
	e, err := s.Get(ctx, "call-1")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, e.Result)

	_, err = s.Get(ctx, "missing")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeFileNotFound, apperrors.GetCode(err))
}

func TestReopenKeepsEntries(t *testing.T) {
	s, path := openStore(t)
	require.NoError(t, s.Record(context.Background(), Entry{Tool: "check_code", Arguments: `{}`, Result: `{}`}))
	require.NoError(t, s.Close())

	again, err := Open(path)
	require.NoError(t, err)
	defer again.Close()

	entries, err := again.Recent(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
