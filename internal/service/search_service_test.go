package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ragserve/ragserve/internal/ai"
	"github.com/ragserve/ragserve/internal/config"
	"github.com/ragserve/ragserve/internal/index"
	"github.com/ragserve/ragserve/internal/model"
	"github.com/ragserve/ragserve/internal/pkg/errs"
)

type stubSource struct {
	docs []model.Document
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) Documents(ctx context.Context) ([]model.Document, error) {
	return s.docs, nil
}

// stubEmbedder maps known texts to fixed directions so rankings are exact.
type stubEmbedder struct {
	vectors map[string][]float32
}

func (e *stubEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	vec, ok := e.vectors[text]
	if !ok {
		return []float32{0.1, 0.1}, nil
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, nil
}

func (e *stubEmbedder) ModelName() string { return "stub-embed" }

type stubGenerator struct {
	answer string
	err    error
	prompt string
}

func (g *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.prompt = prompt
	return g.answer, g.err
}

type stubDetector struct{ lang string }

func (d stubDetector) Detect(text string) string { return d.lang }

func newTestService(t *testing.T, generator ai.IGenerator) (*SearchService, *stubEmbedder) {
	t.Helper()
	embedder := &stubEmbedder{vectors: map[string][]float32{
		"apples and oranges": {1, 0},
		"bicycles and trams": {0, 1},
		"fresh fruit":        {1, 0.2},
	}}
	source := &stubSource{docs: []model.Document{
		{Path: "docs/fruit.txt", Text: "apples and oranges"},
		{Path: "docs/transit.txt", Text: "bicycles and trams"},
	}}
	backend, err := index.New(config.IndexConfig{
		Backend: "flat",
		Data:    map[string]interface{}{"dir": t.TempDir()},
	})
	require.NoError(t, err)
	store := index.NewStore(backend, source, embedder, config.ChunkingConfig{
		ChunkSize: 10, Overlap: 2, MaxStoredChars: 600, EmbedWorkers: 1,
	})
	svc := NewSearchService(store, embedder, generator, stubDetector{lang: "eng"}, time.Second, 3)
	_, err = svc.Rebuild(context.Background())
	require.NoError(t, err)
	return svc, embedder
}

func TestSearchService_Query(t *testing.T) {
	svc, _ := newTestService(t, nil)
	res, err := svc.Query(context.Background(), "fresh fruit", 1)
	require.NoError(t, err)
	require.Equal(t, "fresh fruit", res.Query)
	require.Equal(t, "eng", res.Lang)
	require.Len(t, res.Results, 1)
	require.Equal(t, "fruit.txt", res.Results[0].Source)
	require.Equal(t, 0, res.Results[0].ChunkIndex)
	require.Equal(t, "apples and oranges", res.Results[0].Text)
}

func TestSearchService_QueryDefaultK(t *testing.T) {
	svc, _ := newTestService(t, nil)
	res, err := svc.Query(context.Background(), "fresh fruit", 0)
	require.NoError(t, err)
	require.Len(t, res.Results, 2)
	require.GreaterOrEqual(t, res.Results[0].Score, res.Results[1].Score)
}

func TestSearchService_QueryRejectsEmptyText(t *testing.T) {
	svc, _ := newTestService(t, nil)
	_, err := svc.Query(context.Background(), "  \t ", 3)
	require.ErrorIs(t, err, errs.ErrInvalid)
}

func TestSearchService_AnswerWithoutGenerator(t *testing.T) {
	svc, _ := newTestService(t, nil)
	res, err := svc.Answer(context.Background(), "fresh fruit", 1)
	require.NoError(t, err)
	require.Equal(t, SynthesisFallback, res.Answer)
	require.Len(t, res.Results, 1)
}

func TestSearchService_AnswerWithGenerator(t *testing.T) {
	gen := &stubGenerator{answer: "Apples are fruit [fruit.txt|chunk 0]."}
	svc, _ := newTestService(t, gen)
	res, err := svc.Answer(context.Background(), "fresh fruit", 1)
	require.NoError(t, err)
	require.Equal(t, gen.answer, res.Answer)
	require.Contains(t, gen.prompt, "fresh fruit")
	require.Contains(t, gen.prompt, "[fruit.txt | chunk 0]")
}

func TestSearchService_AnswerFallsBackWhenProviderUnavailable(t *testing.T) {
	gen := &stubGenerator{err: ai.ErrUnavailable}
	svc, _ := newTestService(t, gen)
	res, err := svc.Answer(context.Background(), "fresh fruit", 1)
	require.NoError(t, err)
	require.Equal(t, SynthesisFallback, res.Answer)
}

func TestSearchService_AnswerPropagatesGeneratorError(t *testing.T) {
	gen := &stubGenerator{err: errors.New("boom")}
	svc, _ := newTestService(t, gen)
	_, err := svc.Answer(context.Background(), "fresh fruit", 1)
	require.Error(t, err)
}
