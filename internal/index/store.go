package index

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/ragserve/ragserve/internal/ai"
	"github.com/ragserve/ragserve/internal/chunker"
	"github.com/ragserve/ragserve/internal/config"
	"github.com/ragserve/ragserve/internal/corpus"
	"github.com/ragserve/ragserve/internal/model"
	"github.com/ragserve/ragserve/internal/pkg/errs"
)

// Store owns the pairing of vectors and chunk metadata. A rebuild holds the
// write lock for its full duration so searches never observe a half-written
// index.
type Store struct {
	mu       sync.RWMutex
	backend  Backend
	source   corpus.Source
	embedder ai.IEmbedder
	cfg      config.ChunkingConfig
	ready    bool
}

func NewStore(backend Backend, source corpus.Source, embedder ai.IEmbedder, cfg config.ChunkingConfig) *Store {
	return &Store{
		backend:  backend,
		source:   source,
		embedder: embedder,
		cfg:      cfg,
	}
}

type pendingChunk struct {
	chunk model.Chunk
	full  string
}

// Rebuild regenerates the whole index from the current corpus, replacing all
// prior entries. Entries keep source-document/chunk order regardless of how
// many embed workers run.
func (s *Store) Rebuild(ctx context.Context) (model.BuildStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := logutil.GetLogger(ctx).With(zap.String("backend", s.backend.Name()))
	docs, err := s.source.Documents(ctx)
	if err != nil {
		return model.BuildStats{}, err
	}

	var pending []pendingChunk
	for _, doc := range docs {
		chunks, err := chunker.Split(doc.Text, s.cfg.ChunkSize, s.cfg.Overlap)
		if err != nil {
			return model.BuildStats{}, err
		}
		source := filepath.Base(doc.Path)
		for idx, chunk := range chunks {
			pending = append(pending, pendingChunk{
				chunk: model.Chunk{
					Source:     source,
					ChunkIndex: idx,
					Text:       truncateRunes(chunk, s.cfg.MaxStoredChars),
				},
				full: chunk,
			})
		}
	}
	if len(pending) == 0 {
		return model.BuildStats{}, fmt.Errorf("%w: add .txt or .md files to the docs folder", errs.ErrEmptyCorpus)
	}
	logger.Info("corpus chunked", zap.Int("documents", len(docs)), zap.Int("chunks", len(pending)))

	vecs, err := s.embedAll(ctx, pending)
	if err != nil {
		return model.BuildStats{}, err
	}

	dim := len(vecs[0])
	entries := make([]Entry, len(pending))
	for i := range pending {
		if len(vecs[i]) != dim {
			return model.BuildStats{}, fmt.Errorf(
				"embedding dimension changed mid-build: chunk %s/%d has %d, index has %d",
				pending[i].chunk.Source, pending[i].chunk.ChunkIndex, len(vecs[i]), dim)
		}
		if err := Normalize(vecs[i]); err != nil {
			return model.BuildStats{}, fmt.Errorf("chunk %s/%d: %w",
				pending[i].chunk.Source, pending[i].chunk.ChunkIndex, err)
		}
		entries[i] = Entry{Vector: vecs[i], Chunk: pending[i].chunk}
	}

	if err := s.backend.Replace(ctx, dim, entries); err != nil {
		return model.BuildStats{}, fmt.Errorf("replace index: %w", err)
	}
	s.ready = true
	logger.Info("index rebuilt", zap.Int("vectors", len(entries)), zap.Int("dim", dim))
	return model.BuildStats{Vectors: len(entries), Dim: dim}, nil
}

// embedAll embeds the full (untruncated) chunk texts with a bounded worker
// pool; results land at their chunk's slot, so order is preserved.
func (s *Store) embedAll(ctx context.Context, pending []pendingChunk) ([][]float32, error) {
	workers := s.cfg.EmbedWorkers
	if workers <= 0 {
		workers = 1
	}
	vecs := make([][]float32, len(pending))
	sem := make(chan struct{}, workers)
	errCh := make(chan error, len(pending))
	for i := range pending {
		sem <- struct{}{}
		go func(i int) {
			defer func() { <-sem }()
			vec, err := s.embedder.Embed(ctx, pending[i].full, ai.TaskDocument)
			if err != nil {
				errCh <- fmt.Errorf("embed chunk %s/%d: %w",
					pending[i].chunk.Source, pending[i].chunk.ChunkIndex, err)
				return
			}
			vecs[i] = vec
			errCh <- nil
		}(i)
	}
	var firstErr error
	for range pending {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return vecs, nil
}

// Load prepares a previously persisted index for searching.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Load(ctx); err != nil {
		return err
	}
	s.ready = true
	return nil
}

// Search returns up to k entry refs with the highest inner product against
// query, descending. Refs below zero are "no match" placeholders and are
// dropped.
func (s *Store) Search(ctx context.Context, query []float32, k int) ([]Match, error) {
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	matches, err := s.backend.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	filtered := matches[:0]
	for _, m := range matches {
		if m.Ref < 0 {
			continue
		}
		filtered = append(filtered, m)
	}
	return filtered, nil
}

func (s *Store) Chunk(ctx context.Context, ref int) (model.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend.Chunk(ctx, ref)
}

func (s *Store) Stats(ctx context.Context) (model.BuildStats, error) {
	if err := s.ensureReady(ctx); err != nil {
		return model.BuildStats{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	count, dim, err := s.backend.Stats(ctx)
	if err != nil {
		return model.BuildStats{}, err
	}
	return model.BuildStats{Vectors: count, Dim: dim}, nil
}

func (s *Store) ensureReady(ctx context.Context) error {
	s.mu.RLock()
	ready := s.ready
	s.mu.RUnlock()
	if ready {
		return nil
	}
	return s.Load(ctx)
}

func truncateRunes(text string, max int) string {
	if max <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
