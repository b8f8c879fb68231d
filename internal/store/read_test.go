package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadResolutions_Empty(t *testing.T) {
	s := createTestStore(t)

	got, err := s.ReadResolutions(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestReadResolutions_Order(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, r := range []struct{ id, query, model string }{
		{"c", "q1", "m1"},
		{"a", "q2", "m2"},
		{"b", "q3", "m1"},
	} {
		_, err := s.WriteResolution(ctx, createTestResolution(r.id, r.query, r.model, "{}"))
		require.NoError(t, err)
	}

	all, err := s.ReadResolutions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{all[0].ID, all[1].ID, all[2].ID}, "insertion order, not id order")
	assert.Equal(t, []int64{1, 2, 3}, []int64{all[0].Seq, all[1].Seq, all[2].Seq})

	m1, err := s.ReadResolutionsForModel(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, m1, 2)
	assert.Equal(t, "c", m1[0].ID)
	assert.Equal(t, "b", m1[1].ID)
}

func TestReadResolution_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadResolution(context.Background(), "q1", "m1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
