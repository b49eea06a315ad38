package index

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/didi/gendry/builder"
	_ "modernc.org/sqlite"

	"github.com/ragserve/ragserve/internal/model"
	"github.com/ragserve/ragserve/internal/pkg/errs"
)

const sqliteTable = "rag_entries"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS rag_entries (
	ref INTEGER PRIMARY KEY,
	source TEXT NOT NULL,
	chunk_idx INTEGER NOT NULL,
	text TEXT NOT NULL,
	embedding BLOB NOT NULL
)`

type sqliteConfig struct {
	Path string `json:"path"`
}

// sqliteBackend keeps vectors and chunk metadata as rows of a single table,
// so one transaction replaces both sides of every entry at once.
type sqliteBackend struct {
	db *sql.DB
}

func init() {
	Register("sqlite", createSQLiteBackend)
}

func createSQLiteBackend(args interface{}) (Backend, error) {
	cfg := &sqliteConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.Path == "" {
		cfg.Path = "./index.db"
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite index: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite index: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("ensure sqlite schema: %w", err)
	}
	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Name() string {
	return "sqlite"
}

func (b *sqliteBackend) Replace(ctx context.Context, dim int, entries []Entry) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+sqliteTable); err != nil {
		return err
	}
	const batchSize = 200
	for start := 0; start < len(entries); start += batchSize {
		end := start + batchSize
		if end > len(entries) {
			end = len(entries)
		}
		rows := make([]map[string]interface{}, 0, end-start)
		for ref := start; ref < end; ref++ {
			entry := entries[ref]
			if len(entry.Vector) != dim {
				return fmt.Errorf("entry %d has dimension %d, index has %d", ref, len(entry.Vector), dim)
			}
			rows = append(rows, map[string]interface{}{
				"ref":       ref,
				"source":    entry.Chunk.Source,
				"chunk_idx": entry.Chunk.ChunkIndex,
				"text":      entry.Chunk.Text,
				"embedding": EncodeVector(entry.Vector),
			})
		}
		sqlStr, args, err := builder.BuildInsert(sqliteTable, rows)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (b *sqliteBackend) Load(ctx context.Context) error {
	count, _, err := b.Stats(ctx)
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: run rebuild first", errs.ErrIndexMissing)
	}
	return nil
}

func (b *sqliteBackend) Search(ctx context.Context, query []float32, k int) ([]Match, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT ref, embedding FROM "+sqliteTable+" ORDER BY ref")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var ref int
		var blob []byte
		if err := rows.Scan(&ref, &blob); err != nil {
			return nil, err
		}
		vec, err := DecodeVector(blob)
		if err != nil {
			return nil, err
		}
		if len(vec) != len(query) {
			return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(query), len(vec))
		}
		score := Dot(query, vec)
		if math.IsNaN(float64(score)) {
			continue
		}
		matches = append(matches, Match{Ref: ref, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rankMatches(matches, k), nil
}

func (b *sqliteBackend) Chunk(ctx context.Context, ref int) (model.Chunk, error) {
	where := map[string]interface{}{"ref": ref}
	sqlStr, args, err := builder.BuildSelect(sqliteTable, where, []string{"source", "chunk_idx", "text"})
	if err != nil {
		return model.Chunk{}, err
	}
	var chunk model.Chunk
	row := b.db.QueryRowContext(ctx, sqlStr, args...)
	if err := row.Scan(&chunk.Source, &chunk.ChunkIndex, &chunk.Text); err != nil {
		if err == sql.ErrNoRows {
			return model.Chunk{}, fmt.Errorf("chunk ref %d not found", ref)
		}
		return model.Chunk{}, err
	}
	return chunk, nil
}

func (b *sqliteBackend) Stats(ctx context.Context) (int, int, error) {
	var count int
	if err := b.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+sqliteTable).Scan(&count); err != nil {
		return 0, 0, err
	}
	if count == 0 {
		return 0, 0, nil
	}
	var blobLen int
	if err := b.db.QueryRowContext(ctx, "SELECT length(embedding) FROM "+sqliteTable+" LIMIT 1").Scan(&blobLen); err != nil {
		return 0, 0, err
	}
	return count, blobLen / 4, nil
}
