package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexcodex/thinkloop/framework"
)

func TestFileSessionStore(t *testing.T) {
	store, err := NewFileSessionStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	history, err := store.History(ctx, "empty")
	require.NoError(t, err)
	assert.Empty(t, history)

	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, store.Append(ctx, "s1", Turn{Mode: "react", Prompt: "hi", Content: "hello", At: at}))
	require.NoError(t, store.Append(ctx, "s1", Turn{Mode: "react", Prompt: "again", Content: "sure", Usage: &framework.Usage{TotalTokens: 9}, At: at}))

	history, err = store.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "hi", history[0].Prompt)
	assert.Equal(t, 9, history[1].Usage.TotalTokens)
	assert.True(t, history[1].At.Equal(at))

	require.NoError(t, store.Clear(ctx, "s1"))
	require.NoError(t, store.Clear(ctx, "s1"))
	history, err = store.History(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, history)

	assert.Error(t, store.Append(ctx, "", Turn{}))
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, store.Append(cancelled, "s1", Turn{}), context.Canceled)
}
