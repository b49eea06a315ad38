package index

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ragserve/ragserve/internal/config"
	"github.com/ragserve/ragserve/internal/model"
)

// Entry pairs a unit-length vector with its chunk metadata. Entry i's vector
// and chunk are written and read together; breaking that pairing corrupts
// retrieval.
type Entry struct {
	Vector []float32
	Chunk  model.Chunk
}

// Match is one search hit: the ordinal position of the entry and its inner
// product with the query vector.
type Match struct {
	Ref   int
	Score float32
}

// Backend is the vector index engine capability. A rebuild replaces the whole
// index; there is no incremental update. Backends are not required to be
// goroutine safe: Store serializes rebuilds against searches.
type Backend interface {
	Name() string
	// Replace atomically swaps the index content for a freshly built one.
	Replace(ctx context.Context, dim int, entries []Entry) error
	// Load prepares a previously persisted index for searching. Returns an
	// error wrapping errs.ErrIndexMissing when nothing has been built yet.
	Load(ctx context.Context) error
	// Search returns up to k entries with the highest inner product against
	// query, sorted by strictly non-increasing score.
	Search(ctx context.Context, query []float32, k int) ([]Match, error)
	Chunk(ctx context.Context, ref int) (model.Chunk, error)
	Stats(ctx context.Context) (count int, dim int, err error)
}

type Factory func(args interface{}) (Backend, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func New(cfg config.IndexConfig) (Backend, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if key == "" {
		return nil, fmt.Errorf("index.backend is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported index backend: %s", cfg.Backend)
	}
	return factory(cfg.Data)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode index config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode index config: %w", err)
	}
	return nil
}

// rankMatches sorts by descending score and trims to k.
func rankMatches(matches []Match, k int) []Match {
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if k > 0 && k < len(matches) {
		matches = matches[:k]
	}
	return matches
}
