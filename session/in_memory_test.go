package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/falai-dev/falai-go/core"
)

func TestInMemorySessionCRUD(t *testing.T) {
	repo := NewInMemorySessionRepository()
	ctx := t.Context()

	s := core.NewSession("s1")
	s.MergeData(map[string]any{"name": "Ada"})
	require.NoError(t, repo.Create(ctx, s))

	err := repo.Create(ctx, core.NewSession("s1"))
	assert.ErrorIs(t, err, ErrAlreadyExists)

	got, err := repo.FindByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.Data["name"])

	got.MergeData(map[string]any{"name": "Grace"})
	require.NoError(t, repo.Update(ctx, got))
	again, err := repo.FindByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Grace", again.Data["name"])

	require.NoError(t, repo.Delete(ctx, "s1"))
	_, err = repo.FindByID(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemorySessionIsolation(t *testing.T) {
	repo := NewInMemorySessionRepository()
	ctx := t.Context()

	s := core.NewSession("s1")
	require.NoError(t, repo.Create(ctx, s))

	// Mutating the caller's copy must not leak into the store.
	s.MergeData(map[string]any{"leak": true})
	got, err := repo.FindByID(ctx, "s1")
	require.NoError(t, err)
	assert.NotContains(t, got.Data, "leak")

	// Nor should mutating a returned copy.
	got.MergeData(map[string]any{"leak2": true})
	again, err := repo.FindByID(ctx, "s1")
	require.NoError(t, err)
	assert.NotContains(t, again.Data, "leak2")
}

func TestInMemoryUpdateCollectedData(t *testing.T) {
	repo := NewInMemorySessionRepository()
	ctx := t.Context()

	require.NoError(t, repo.Create(ctx, core.NewSession("s1")))
	require.NoError(t, repo.UpdateCollectedData(ctx, "s1", map[string]any{"email": "a@b.c"}))

	got, err := repo.FindByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "a@b.c", got.Data["email"])

	err = repo.UpdateCollectedData(ctx, "missing", map[string]any{"x": 1})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInMemoryMessages(t *testing.T) {
	repo := NewInMemoryMessageRepository()
	ctx := t.Context()

	require.NoError(t, repo.Create(ctx, "s1", core.NewUserMessage("hi")))
	require.NoError(t, repo.Create(ctx, "s1", core.NewAssistantMessage("hello")))
	require.NoError(t, repo.Create(ctx, "s2", core.NewUserMessage("other session")))

	msgs, err := repo.FindBySessionID(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, "hello", msgs[1].Content)

	require.NoError(t, repo.DeleteBySessionID(ctx, "s1"))
	msgs, err = repo.FindBySessionID(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	msgs, err = repo.FindBySessionID(ctx, "s2")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}
