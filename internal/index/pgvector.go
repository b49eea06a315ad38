package index

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/didi/gendry/builder"
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/ragserve/ragserve/internal/model"
	"github.com/ragserve/ragserve/internal/pkg/dbutil"
	"github.com/ragserve/ragserve/internal/pkg/errs"
)

const pgTable = "rag_entries"

type pgConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

// pgBackend delegates similarity search to Postgres with the pgvector
// extension; `<#>` is the negative inner product.
type pgBackend struct {
	db *sql.DB
}

func init() {
	Register("pgvector", createPGBackend)
}

func createPGBackend(args interface{}) (Backend, error) {
	cfg := &pgConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	dsn := cfg.DSN
	if dsn == "" {
		sslmode := cfg.SSLMode
		if sslmode == "" {
			sslmode = "disable"
		}
		dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslmode)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open pgvector index: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping pgvector index: %w", err)
	}
	if _, err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return nil, fmt.Errorf("ensure pgvector extension: %w", err)
	}
	const schema = `
CREATE TABLE IF NOT EXISTS rag_entries (
	ref integer PRIMARY KEY,
	source text NOT NULL,
	chunk_idx integer NOT NULL,
	text text NOT NULL,
	embedding vector NOT NULL
)`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("ensure pgvector schema: %w", err)
	}
	return &pgBackend{db: db}, nil
}

func (b *pgBackend) Name() string {
	return "pgvector"
}

func (b *pgBackend) Replace(ctx context.Context, dim int, entries []Entry) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+pgTable); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO "+pgTable+" (ref, source, chunk_idx, text, embedding) VALUES ($1, $2, $3, $4, $5)")
	if err != nil {
		return err
	}
	defer stmt.Close()
	for ref, entry := range entries {
		if len(entry.Vector) != dim {
			return fmt.Errorf("entry %d has dimension %d, index has %d", ref, len(entry.Vector), dim)
		}
		if _, err := stmt.ExecContext(ctx, ref, entry.Chunk.Source, entry.Chunk.ChunkIndex,
			entry.Chunk.Text, pgvector.NewVector(entry.Vector)); err != nil {
			if dbutil.IsConflict(err) {
				return fmt.Errorf("duplicate entry ref %d: %w", ref, err)
			}
			return err
		}
	}
	return tx.Commit()
}

func (b *pgBackend) Load(ctx context.Context) error {
	count, _, err := b.Stats(ctx)
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: run rebuild first", errs.ErrIndexMissing)
	}
	return nil
}

func (b *pgBackend) Search(ctx context.Context, query []float32, k int) ([]Match, error) {
	const q = `
		SELECT ref, (embedding <#> $1) * -1 AS score
		FROM rag_entries
		ORDER BY embedding <#> $1
		LIMIT $2
	`
	rows, err := b.db.QueryContext(ctx, q, pgvector.NewVector(query), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var ref int
		var score float64
		if err := rows.Scan(&ref, &score); err != nil {
			return nil, err
		}
		matches = append(matches, Match{Ref: ref, Score: float32(score)})
	}
	return matches, rows.Err()
}

func (b *pgBackend) Chunk(ctx context.Context, ref int) (model.Chunk, error) {
	where := map[string]interface{}{"ref": ref}
	sqlStr, args, err := builder.BuildSelect(pgTable, where, []string{"source", "chunk_idx", "text"})
	if err != nil {
		return model.Chunk{}, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
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

func (b *pgBackend) Stats(ctx context.Context) (int, int, error) {
	var count int
	if err := b.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+pgTable).Scan(&count); err != nil {
		return 0, 0, err
	}
	if count == 0 {
		return 0, 0, nil
	}
	var dim int
	if err := b.db.QueryRowContext(ctx, "SELECT vector_dims(embedding) FROM "+pgTable+" LIMIT 1").Scan(&dim); err != nil {
		return 0, 0, err
	}
	return count, dim, nil
}
