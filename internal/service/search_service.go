package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/ragserve/ragserve/internal/ai"
	"github.com/ragserve/ragserve/internal/index"
	"github.com/ragserve/ragserve/internal/langdetect"
	"github.com/ragserve/ragserve/internal/model"
	"github.com/ragserve/ragserve/internal/pkg/errs"
)

// SearchService runs the retrieval pipeline: embed the query, search the
// store, join chunk metadata, annotate with the detected language.
type SearchService struct {
	store     *index.Store
	embedder  ai.IEmbedder
	generator ai.IGenerator // nil when no generation model is configured
	detector  langdetect.Detector
	timeout   time.Duration
	defaultK  int
}

func NewSearchService(store *index.Store, embedder ai.IEmbedder, generator ai.IGenerator,
	detector langdetect.Detector, timeout time.Duration, defaultK int) *SearchService {
	if defaultK <= 0 {
		defaultK = 3
	}
	return &SearchService{
		store:     store,
		embedder:  embedder,
		generator: generator,
		detector:  detector,
		timeout:   timeout,
		defaultK:  defaultK,
	}
}

func (s *SearchService) Rebuild(ctx context.Context) (model.BuildStats, error) {
	return s.store.Rebuild(ctx)
}

func (s *SearchService) Stats(ctx context.Context) (model.BuildStats, error) {
	return s.store.Stats(ctx)
}

func (s *SearchService) Query(ctx context.Context, text string, k int) (model.QueryResult, error) {
	if strings.TrimSpace(text) == "" {
		return model.QueryResult{}, fmt.Errorf("%w: query required", errs.ErrInvalid)
	}
	if k <= 0 {
		k = s.defaultK
	}
	vec, err := s.embedder.Embed(ctx, text, ai.TaskQuery)
	if err != nil {
		return model.QueryResult{}, fmt.Errorf("embed query: %w", err)
	}
	if err := index.Normalize(vec); err != nil {
		return model.QueryResult{}, fmt.Errorf("query vector: %w", err)
	}
	matches, err := s.store.Search(ctx, vec, k)
	if err != nil {
		return model.QueryResult{}, err
	}
	results := make([]model.SearchResult, 0, len(matches))
	for _, m := range matches {
		chunk, err := s.store.Chunk(ctx, m.Ref)
		if err != nil {
			return model.QueryResult{}, fmt.Errorf("join chunk: %w", err)
		}
		results = append(results, model.SearchResult{
			Score:      m.Score,
			Source:     chunk.Source,
			ChunkIndex: chunk.ChunkIndex,
			Text:       chunk.Text,
		})
	}
	return model.QueryResult{
		Query:   text,
		Lang:    s.detector.Detect(text),
		Results: results,
	}, nil
}

// SynthesisFallback is returned when no generation capability is configured.
// An absent generator is a degraded mode, never a failure.
const SynthesisFallback = "LLM synthesis not configured; returning cited passages instead."

func (s *SearchService) Answer(ctx context.Context, text string, k int) (model.AnswerResult, error) {
	res, err := s.Query(ctx, text, k)
	if err != nil {
		return model.AnswerResult{}, err
	}
	answer, err := s.synthesize(ctx, res.Query, res.Results)
	if err != nil {
		return model.AnswerResult{}, err
	}
	return model.AnswerResult{QueryResult: res, Answer: answer}, nil
}

func (s *SearchService) synthesize(ctx context.Context, query string, chunks []model.SearchResult) (string, error) {
	if s.generator == nil {
		return SynthesisFallback, nil
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	answer, err := s.generator.Generate(ctx, answerPrompt(query, chunks))
	if errors.Is(err, ai.ErrUnavailable) {
		logutil.GetLogger(ctx).Warn("generator unavailable, falling back to citations", zap.Error(err))
		return SynthesisFallback, nil
	}
	if err != nil {
		return "", fmt.Errorf("synthesize answer: %w", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", fmt.Errorf("empty ai response")
	}
	return answer, nil
}

func answerPrompt(query string, chunks []model.SearchResult) string {
	var sb strings.Builder
	sb.WriteString("You are a helpful assistant. Use the following source passages to answer the query. ")
	sb.WriteString("Cite each passage by filename and chunk index in square brackets.\n\n")
	fmt.Fprintf(&sb, "Query: %s\n\nSources:\n", query)
	for _, c := range chunks {
		fmt.Fprintf(&sb, "[%s | chunk %d]: %s\n\n", c.Source, c.ChunkIndex, c.Text)
	}
	sb.WriteString("\nProvide a concise answer in the same language as the query and include citations like [file.txt|chunk 0].")
	return sb.String()
}
