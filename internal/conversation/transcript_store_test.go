package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTranscriptStore(t *testing.T) (*TranscriptStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewTranscriptStore(client), mr
}

func TestTranscriptStoreAppendAndList(t *testing.T) {
	store, _ := newTestTranscriptStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "room-1", TranscriptMessage{
		Role: "user", Text: "book a massage", State: "idle",
	}))
	require.NoError(t, store.Append(ctx, "room-1", TranscriptMessage{
		Role: "assistant", Text: "Which date?", State: "collect_date",
	}))

	msgs, err := store.List(ctx, "room-1", 50)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "book a massage", msgs[0].Text)
	assert.Equal(t, "assistant", msgs[1].Role)
	assert.NotEmpty(t, msgs[0].ID, "an id is assigned on append")
	assert.False(t, msgs[0].Timestamp.IsZero())
}

func TestTranscriptStoreListLimitReturnsMostRecent(t *testing.T) {
	store, _ := newTestTranscriptStore(t)
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three"} {
		require.NoError(t, store.Append(ctx, "room-1", TranscriptMessage{Role: "user", Text: text}))
	}

	msgs, err := store.List(ctx, "room-1", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].Text)
	assert.Equal(t, "three", msgs[1].Text)
}

func TestTranscriptStoreExpiry(t *testing.T) {
	store, mr := newTestTranscriptStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "room-1", TranscriptMessage{Role: "user", Text: "hello"}))

	// Transcripts expire with the conversation instead of accumulating.
	ttl := mr.TTL(transcriptKey("room-1"))
	assert.Greater(t, ttl, 23*time.Hour)

	mr.FastForward(25 * time.Hour)
	msgs, err := store.List(ctx, "room-1", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestTranscriptStoreSessionsAreIsolated(t *testing.T) {
	store, _ := newTestTranscriptStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "room-1", TranscriptMessage{Role: "user", Text: "a"}))
	require.NoError(t, store.Append(ctx, "room-2", TranscriptMessage{Role: "user", Text: "b"}))

	msgs, err := store.List(ctx, "room-1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "a", msgs[0].Text)
}

func TestTranscriptStoreNilSafe(t *testing.T) {
	var store *TranscriptStore
	require.NoError(t, store.Append(context.Background(), "room-1", TranscriptMessage{}))

	msgs, err := store.List(context.Background(), "room-1", 10)
	require.NoError(t, err)
	assert.Nil(t, msgs)

	assert.Nil(t, NewTranscriptStore(nil))
}

func TestTranscriptStoreRequiresSessionID(t *testing.T) {
	store, _ := newTestTranscriptStore(t)
	err := store.Append(context.Background(), "", TranscriptMessage{Role: "user", Text: "x"})
	assert.Error(t, err)
}
