package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertAndListInteraction(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.InsertInteraction(ctx, Interaction{ID: "resp-1", Model: "gpt-4", Conversation: `{"system":""}`})
	require.NoError(t, err)

	rows, err := s.ListInteractions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "resp-1", rows[0].ID)
	assert.Equal(t, "gpt-4", rows[0].Model)
}

func TestInsertInteraction_DuplicateIDIsReportedNotFatal(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertInteraction(ctx, Interaction{ID: "resp-2", Model: "m", Conversation: "{}"}))
	err := s.InsertInteraction(ctx, Interaction{ID: "resp-2", Model: "m", Conversation: "{}"})

	require.Error(t, err)
	var dup *DuplicateError
	assert.True(t, errors.As(err, &dup))
	assert.Equal(t, "resp-2", dup.ID)
}

func TestConfirmInteraction_MovesRowToConfirmedSet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertInteraction(ctx, Interaction{ID: "resp-3", Model: "m", Conversation: "{}"}))
	require.NoError(t, s.ConfirmInteraction(ctx, "resp-3"))

	rows, err := s.ListInteractions(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)

	var count int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT count(*) FROM confirmed_interactions WHERE id = ?`, "resp-3").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestConfirmInteraction_NotFound(t *testing.T) {
	s := openTestStore(t)
	err := s.ConfirmInteraction(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteInteraction(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertInteraction(ctx, Interaction{ID: "resp-4", Model: "m", Conversation: "{}"}))
	require.NoError(t, s.DeleteInteraction(ctx, "resp-4"))

	rows, err := s.ListInteractions(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
