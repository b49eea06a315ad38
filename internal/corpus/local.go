package corpus

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ragserve/ragserve/internal/model"
	"github.com/ragserve/ragserve/internal/pkg/errs"
)

type localConfig struct {
	Dir string `json:"dir"`
}

type localSource struct {
	dir string
}

func init() {
	Register("local", createLocalSource)
}

func createLocalSource(args interface{}) (Source, error) {
	cfg := &localConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.Dir == "" {
		cfg.Dir = "./docs"
	}
	return &localSource{dir: cfg.Dir}, nil
}

func (s *localSource) Name() string {
	return "local"
}

func (s *localSource) Dir() string {
	return s.dir
}

func (s *localSource) Documents(ctx context.Context) ([]model.Document, error) {
	_ = ctx
	info, err := os.Stat(s.dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: docs folder not found: %s", errs.ErrNotFound, s.dir)
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read docs folder: %w", err)
	}
	var docs []model.Document
	for _, entry := range entries {
		if entry.IsDir() || !eligible(entry.Name()) {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		docs = append(docs, model.Document{Path: path, Text: documentText(entry.Name(), raw)})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	return docs, nil
}
