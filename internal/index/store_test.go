package index

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ragserve/ragserve/internal/config"
	"github.com/ragserve/ragserve/internal/model"
	"github.com/ragserve/ragserve/internal/pkg/errs"
)

type fakeSource struct {
	docs []model.Document
	err  error
}

func (s *fakeSource) Name() string { return "fake" }

func (s *fakeSource) Documents(ctx context.Context) ([]model.Document, error) {
	return s.docs, s.err
}

// fakeEmbedder produces a deterministic 3-dim vector from the text length and
// records every text it was asked to embed.
type fakeEmbedder struct {
	mu    sync.Mutex
	seen  []string
	tasks []string
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	e.mu.Lock()
	e.seen = append(e.seen, text)
	e.tasks = append(e.tasks, taskType)
	e.mu.Unlock()
	n := float32(len(text))
	return []float32{n, 1, 1 / n}, nil
}

func (e *fakeEmbedder) ModelName() string { return "fake-embed" }

func testChunking() config.ChunkingConfig {
	return config.ChunkingConfig{ChunkSize: 4, Overlap: 1, MaxStoredChars: 600, EmbedWorkers: 2}
}

func TestStore_RebuildEmptyCorpus(t *testing.T) {
	store := NewStore(newTestFlat(t), &fakeSource{}, &fakeEmbedder{}, testChunking())
	_, err := store.Rebuild(context.Background())
	require.ErrorIs(t, err, errs.ErrEmptyCorpus)
}

func TestStore_SearchBeforeBuild(t *testing.T) {
	store := NewStore(newTestFlat(t), &fakeSource{}, &fakeEmbedder{}, testChunking())
	_, err := store.Search(context.Background(), []float32{1, 0, 0}, 3)
	require.ErrorIs(t, err, errs.ErrIndexMissing)

	_, err = store.Stats(context.Background())
	require.ErrorIs(t, err, errs.ErrIndexMissing)
}

func TestStore_RebuildPreservesChunkOrder(t *testing.T) {
	source := &fakeSource{docs: []model.Document{
		{Path: "docs/a.txt", Text: "one two three four five six seven"},
		{Path: "docs/b.txt", Text: "eight nine"},
	}}
	embedder := &fakeEmbedder{}
	store := NewStore(newTestFlat(t), source, embedder, testChunking())

	stats, err := store.Rebuild(context.Background())
	require.NoError(t, err)
	// a.txt: windows of 4 tokens with step 3 over 7 tokens = 3 chunks, b.txt = 1
	require.Equal(t, 4, stats.Vectors)
	require.Equal(t, 3, stats.Dim)

	chunk, err := store.Chunk(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, "a.txt", chunk.Source)
	require.Equal(t, 0, chunk.ChunkIndex)
	require.Equal(t, "one two three four", chunk.Text)

	chunk, err = store.Chunk(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, "b.txt", chunk.Source)
	require.Equal(t, 0, chunk.ChunkIndex)

	for _, task := range embedder.tasks {
		require.Equal(t, "RETRIEVAL_DOCUMENT", task)
	}
}

func TestStore_TruncatesStoredTextButEmbedsFullChunk(t *testing.T) {
	long := strings.Repeat("word ", 3) + "tail"
	source := &fakeSource{docs: []model.Document{{Path: "a.txt", Text: long}}}
	embedder := &fakeEmbedder{}
	cfg := testChunking()
	cfg.MaxStoredChars = 5
	store := NewStore(newTestFlat(t), source, embedder, cfg)

	_, err := store.Rebuild(context.Background())
	require.NoError(t, err)

	chunk, err := store.Chunk(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, "word ", chunk.Text)

	// the embedder still saw the whole chunk
	require.Contains(t, embedder.seen, "word word word tail")
}

func TestStore_RebuildStoresUnitVectors(t *testing.T) {
	source := &fakeSource{docs: []model.Document{
		{Path: "a.txt", Text: "one two three four five six seven"},
		{Path: "b.txt", Text: "eight nine"},
	}}
	backend := newTestFlat(t)
	store := NewStore(backend, source, &fakeEmbedder{}, testChunking())

	_, err := store.Rebuild(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, backend.vecs)
	for _, vec := range backend.vecs {
		var sum float64
		for _, x := range vec {
			sum += float64(x) * float64(x)
		}
		require.InDelta(t, 1.0, sum, 1e-6)
	}
}

func TestStore_RebuildUnchangedCorpusIsIdempotent(t *testing.T) {
	source := &fakeSource{docs: []model.Document{
		{Path: "a.txt", Text: "one two three four five six seven"},
		{Path: "b.txt", Text: "eight nine"},
	}}
	backend := newTestFlat(t)
	store := NewStore(backend, source, &fakeEmbedder{}, testChunking())

	first, err := store.Rebuild(context.Background())
	require.NoError(t, err)
	firstVecs := make([][]float32, len(backend.vecs))
	for i, vec := range backend.vecs {
		firstVecs[i] = append([]float32(nil), vec...)
	}
	firstChunks := append([]model.Chunk(nil), backend.chunks...)

	second, err := store.Rebuild(context.Background())
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, firstChunks, backend.chunks)
	require.Len(t, backend.vecs, len(firstVecs))
	for i := range firstVecs {
		require.Len(t, backend.vecs[i], len(firstVecs[i]))
		for j := range firstVecs[i] {
			require.InDelta(t, firstVecs[i][j], backend.vecs[i][j], 1e-6)
		}
	}
}

func TestStore_SearchRanksByCosine(t *testing.T) {
	source := &fakeSource{docs: []model.Document{
		{Path: "a.txt", Text: "aa bbbb cccccc"},
	}}
	cfg := config.ChunkingConfig{ChunkSize: 1, Overlap: 0, MaxStoredChars: 600, EmbedWorkers: 1}
	store := NewStore(newTestFlat(t), source, &fakeEmbedder{}, cfg)

	_, err := store.Rebuild(context.Background())
	require.NoError(t, err)

	query := []float32{4, 1, 0.25}
	require.NoError(t, Normalize(query))
	matches, err := store.Search(context.Background(), query, 3)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	// the 4-char chunk embeds to the same direction as the query
	require.Equal(t, 1, matches[0].Ref)
	for i := 1; i < len(matches); i++ {
		require.GreaterOrEqual(t, matches[i-1].Score, matches[i].Score)
	}
}

func TestStore_LoadAfterRestart(t *testing.T) {
	dir := t.TempDir()
	source := &fakeSource{docs: []model.Document{{Path: "a.txt", Text: "one two three"}}}

	backend, err := createFlatBackend(map[string]interface{}{"dir": dir})
	require.NoError(t, err)
	store := NewStore(backend, source, &fakeEmbedder{}, testChunking())
	_, err = store.Rebuild(context.Background())
	require.NoError(t, err)

	// a fresh store over the same directory picks the index up lazily
	reloaded, err := createFlatBackend(map[string]interface{}{"dir": dir})
	require.NoError(t, err)
	fresh := NewStore(reloaded, source, &fakeEmbedder{}, testChunking())
	stats, err := fresh.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.Vectors)
}
