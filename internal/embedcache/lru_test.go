package embedcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	calls int
}

func (e *countingEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	e.calls++
	return []float32{float32(len(text)), 1}, nil
}

func (e *countingEmbedder) ModelName() string { return "counting" }

func TestWrap_CachesRepeatedTexts(t *testing.T) {
	inner := &countingEmbedder{}
	cached := Wrap(inner, 16, time.Minute)

	first, err := cached.Embed(context.Background(), "hello", "RETRIEVAL_QUERY")
	require.NoError(t, err)
	second, err := cached.Embed(context.Background(), "hello", "RETRIEVAL_QUERY")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, inner.calls)
}

func TestWrap_TaskTypeIsPartOfTheKey(t *testing.T) {
	inner := &countingEmbedder{}
	cached := Wrap(inner, 16, time.Minute)

	_, err := cached.Embed(context.Background(), "hello", "RETRIEVAL_QUERY")
	require.NoError(t, err)
	_, err = cached.Embed(context.Background(), "hello", "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls)
}

func TestWrap_CachedVectorIsIsolated(t *testing.T) {
	inner := &countingEmbedder{}
	cached := Wrap(inner, 16, time.Minute)

	first, err := cached.Embed(context.Background(), "hello", "RETRIEVAL_QUERY")
	require.NoError(t, err)
	first[0] = -99

	second, err := cached.Embed(context.Background(), "hello", "RETRIEVAL_QUERY")
	require.NoError(t, err)
	require.NotEqual(t, float32(-99), second[0])
}

func TestWrap_DisabledWhenSizeOrTTLUnset(t *testing.T) {
	inner := &countingEmbedder{}
	require.Equal(t, inner, Wrap(inner, 0, time.Minute))
	require.Equal(t, inner, Wrap(inner, 16, 0))
	require.Nil(t, Wrap(nil, 16, time.Minute))
}
