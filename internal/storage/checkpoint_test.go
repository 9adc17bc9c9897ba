package storage

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/budgetdb/pkg/types"
)

func TestNewSessionID_Ordered(t *testing.T) {
	ids := make([]string, 200)
	for i := range ids {
		ids[i] = NewSessionID()
	}
	assert.True(t, sort.StringsAreSorted(ids), "session ids sort in creation order")

	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		assert.False(t, seen[id], id)
		seen[id] = true
	}
}

func TestSaveCheckpoint_UpsertsInPlace(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()
	session := NewSessionID()

	cp := &Checkpoint{SessionID: session, TotalFiles: 10}
	require.NoError(t, s.SaveCheckpoint(ctx, cp))
	started := cp.StartedAt

	cp.FilesProcessed = 3
	cp.RowsInserted = 120
	cp.BytesProcessed = 4096
	cp.LastFile = "FY2026/Navy/p1_navy.xlsx"
	require.NoError(t, s.SaveCheckpoint(ctx, cp))

	assert.Equal(t, 1, countRows(t, s, "build_progress"))

	got, err := s.GetCheckpoint(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, 3, got.FilesProcessed)
	assert.Equal(t, 10, got.TotalFiles)
	assert.Equal(t, 120, got.RowsInserted)
	assert.Equal(t, int64(4096), got.BytesProcessed)
	assert.Equal(t, "FY2026/Navy/p1_navy.xlsx", got.LastFile)
	assert.Equal(t, SessionInProgress, got.Status)
	assert.True(t, got.StartedAt.Equal(started))

	assert.Error(t, s.SaveCheckpoint(ctx, &Checkpoint{}))
}

func TestMarkFileProcessed_Idempotent(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()
	session := NewSessionID()
	require.NoError(t, s.SaveCheckpoint(ctx, &Checkpoint{SessionID: session}))

	require.NoError(t, s.MarkFileProcessed(ctx, session, "FY2026/US_Army/p1_army.xlsx", types.KindExcel, 2, 0))
	require.NoError(t, s.MarkFileProcessed(ctx, session, "FY2026/US_Army/p1_army.xlsx", types.KindExcel, 2, 0))
	require.NoError(t, s.MarkFileProcessed(ctx, session, "FY2026/Navy/r2_navy.pdf", types.KindPDF, 0, 4))

	assert.Equal(t, 2, countRows(t, s, "processed_files"))

	files, err := s.ProcessedFiles(ctx, session)
	require.NoError(t, err)
	assert.Len(t, files, 2)
	assert.Contains(t, files, "FY2026/Navy/r2_navy.pdf")

	other, err := s.ProcessedFiles(ctx, NewSessionID())
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestLastCheckpoint(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()

	cp, err := s.LastCheckpoint(ctx)
	require.NoError(t, err)
	assert.Nil(t, cp)

	older := NewSessionID()
	newer := NewSessionID()
	require.NoError(t, s.SaveCheckpoint(ctx, &Checkpoint{SessionID: older, FilesProcessed: 1}))
	require.NoError(t, s.SaveCheckpoint(ctx, &Checkpoint{SessionID: newer, FilesProcessed: 2}))

	cp, err = s.LastCheckpoint(ctx)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, newer, cp.SessionID)

	require.NoError(t, s.MarkSessionComplete(ctx, newer, "done"))
	cp, err = s.LastCheckpoint(ctx)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, older, cp.SessionID)

	require.NoError(t, s.MarkSessionComplete(ctx, older, ""))
	cp, err = s.LastCheckpoint(ctx)
	require.NoError(t, err)
	assert.Nil(t, cp)

	done, err := s.GetCheckpoint(ctx, newer)
	require.NoError(t, err)
	assert.Equal(t, SessionCompleted, done.Status)
	assert.Equal(t, "done", done.Notes)
}

func TestMarkSessionComplete_Unknown(t *testing.T) {
	s := setupTestStorage(t)
	err := s.MarkSessionComplete(context.Background(), NewSessionID(), "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetCheckpoint(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
