package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/sealed2048/internal/session"
)

func newSession(t *testing.T, id string) *session.Session {
	t.Helper()
	s, err := session.New(context.Background(), nil, session.Config{ID: id})
	require.NoError(t, err)
	return s
}

func TestSaveAndGet(t *testing.T) {
	ctx := context.Background()
	st, err := NewMemoryStore(0)
	require.NoError(t, err)

	s := newSession(t, "a")
	require.NoError(t, st.Save(ctx, s))

	got, err := st.Get(ctx, "a")
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = st.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	st, err := NewMemoryStore(2)
	require.NoError(t, err)

	require.NoError(t, st.Save(ctx, newSession(t, "a")))
	require.NoError(t, st.Save(ctx, newSession(t, "b")))
	_, err = st.Get(ctx, "a") // a is now most recent
	require.NoError(t, err)
	require.NoError(t, st.Save(ctx, newSession(t, "c")))

	assert.Equal(t, 2, st.Len())
	_, err = st.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = st.Get(ctx, "a")
	assert.NoError(t, err)
}
