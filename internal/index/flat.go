package index

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/ragserve/ragserve/internal/model"
	"github.com/ragserve/ragserve/internal/pkg/errs"
)

const (
	defaultVectorsFile = "index.vec"
	defaultMetaFile    = "index_meta.json"
)

type flatConfig struct {
	Dir         string `json:"dir"`
	VectorsFile string `json:"vectors_file"`
	MetaFile    string `json:"meta_file"`
}

// flatBackend is an in-memory inner-product index persisted as two co-located
// artifacts: a binary vector collection and a JSON chunk-metadata sequence.
// Both are written via temp file + rename so a crash never leaves a
// half-written artifact behind.
type flatBackend struct {
	vecPath  string
	metaPath string

	dim    int
	vecs   [][]float32
	chunks []model.Chunk
}

func init() {
	Register("flat", createFlatBackend)
}

func createFlatBackend(args interface{}) (Backend, error) {
	cfg := &flatConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	if cfg.VectorsFile == "" {
		cfg.VectorsFile = defaultVectorsFile
	}
	if cfg.MetaFile == "" {
		cfg.MetaFile = defaultMetaFile
	}
	return &flatBackend{
		vecPath:  filepath.Join(cfg.Dir, cfg.VectorsFile),
		metaPath: filepath.Join(cfg.Dir, cfg.MetaFile),
	}, nil
}

func (b *flatBackend) Name() string {
	return "flat"
}

func (b *flatBackend) Replace(ctx context.Context, dim int, entries []Entry) error {
	_ = ctx
	vecs := make([][]float32, len(entries))
	chunks := make([]model.Chunk, len(entries))
	for i, entry := range entries {
		if len(entry.Vector) != dim {
			return fmt.Errorf("entry %d has dimension %d, index has %d", i, len(entry.Vector), dim)
		}
		vecs[i] = entry.Vector
		chunks[i] = entry.Chunk
	}
	if err := b.persist(dim, vecs, chunks); err != nil {
		return err
	}
	b.dim = dim
	b.vecs = vecs
	b.chunks = chunks
	return nil
}

func (b *flatBackend) persist(dim int, vecs [][]float32, chunks []model.Chunk) error {
	if err := os.MkdirAll(filepath.Dir(b.vecPath), 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	buf := make([]byte, 8, 8+len(vecs)*dim*4)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(dim))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(vecs)))
	for _, vec := range vecs {
		buf = append(buf, EncodeVector(vec)...)
	}
	meta, err := json.Marshal(chunks)
	if err != nil {
		return fmt.Errorf("encode chunk metadata: %w", err)
	}
	if err := writeAtomic(b.vecPath, buf); err != nil {
		return fmt.Errorf("write vectors: %w", err)
	}
	if err := writeAtomic(b.metaPath, meta); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

func (b *flatBackend) Load(ctx context.Context) error {
	_ = ctx
	raw, err := os.ReadFile(b.vecPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: run rebuild first", errs.ErrIndexMissing)
	}
	if err != nil {
		return fmt.Errorf("read vectors: %w", err)
	}
	meta, err := os.ReadFile(b.metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: run rebuild first", errs.ErrIndexMissing)
	}
	if err != nil {
		return fmt.Errorf("read metadata: %w", err)
	}

	dim, vecs, err := decodeVectors(raw)
	if err != nil {
		return err
	}
	var chunks []model.Chunk
	if err := json.Unmarshal(meta, &chunks); err != nil {
		return fmt.Errorf("decode chunk metadata: %w", err)
	}
	if len(chunks) != len(vecs) {
		return fmt.Errorf("index artifacts disagree: %d vectors vs %d chunks", len(vecs), len(chunks))
	}
	b.dim = dim
	b.vecs = vecs
	b.chunks = chunks
	return nil
}

func (b *flatBackend) Search(ctx context.Context, query []float32, k int) ([]Match, error) {
	_ = ctx
	if len(b.vecs) == 0 {
		return nil, errs.ErrIndexMissing
	}
	if len(query) != b.dim {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(query), b.dim)
	}
	matches := make([]Match, 0, len(b.vecs))
	for i, vec := range b.vecs {
		score := Dot(query, vec)
		if math.IsNaN(float64(score)) {
			continue
		}
		matches = append(matches, Match{Ref: i, Score: score})
	}
	return rankMatches(matches, k), nil
}

func (b *flatBackend) Chunk(ctx context.Context, ref int) (model.Chunk, error) {
	_ = ctx
	if ref < 0 || ref >= len(b.chunks) {
		return model.Chunk{}, fmt.Errorf("chunk ref %d out of range [0, %d)", ref, len(b.chunks))
	}
	return b.chunks[ref], nil
}

func (b *flatBackend) Stats(ctx context.Context) (int, int, error) {
	_ = ctx
	return len(b.vecs), b.dim, nil
}

func decodeVectors(raw []byte) (int, [][]float32, error) {
	if len(raw) < 8 {
		return 0, nil, fmt.Errorf("vector artifact too short: %d bytes", len(raw))
	}
	dim := int(binary.LittleEndian.Uint32(raw[0:4]))
	count := int(binary.LittleEndian.Uint32(raw[4:8]))
	if dim <= 0 && count > 0 {
		return 0, nil, fmt.Errorf("vector artifact has invalid dimension %d", dim)
	}
	if len(raw) != 8+count*dim*4 {
		return 0, nil, fmt.Errorf("vector artifact size %d does not match %d entries of dim %d",
			len(raw), count, dim)
	}
	vecs := make([][]float32, count)
	off := 8
	for i := range vecs {
		vec, err := DecodeVector(raw[off : off+dim*4])
		if err != nil {
			return 0, nil, err
		}
		vecs[i] = vec
		off += dim * 4
	}
	return dim, vecs, nil
}

func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
