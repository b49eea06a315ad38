package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/ragserve/ragserve/internal/service"
)

// ReindexJob periodically regenerates the index so a running server picks up
// corpus changes without an operator call.
type ReindexJob struct {
	search *service.SearchService
}

func NewReindexJob(search *service.SearchService) *ReindexJob {
	return &ReindexJob{search: search}
}

func (j *ReindexJob) Name() string {
	return "reindex"
}

func (j *ReindexJob) Run(ctx context.Context) error {
	stats, err := j.search.Rebuild(ctx)
	if err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("scheduled reindex done",
		zap.Int("vectors", stats.Vectors),
		zap.Int("dim", stats.Dim),
	)
	return nil
}
