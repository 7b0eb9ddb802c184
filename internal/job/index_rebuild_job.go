package job

import (
	"context"

	"github.com/xxxsen/ctxkit/internal/metrics"
	"github.com/xxxsen/ctxkit/internal/model"
)

const IndexRebuildJobName = "index_rebuild"

type IndexRebuilder interface {
	Rebuild(ctx context.Context) (model.IndexInfo, error)
}

type IndexRebuildJob struct {
	index IndexRebuilder
}

func NewIndexRebuildJob(index IndexRebuilder) *IndexRebuildJob {
	return &IndexRebuildJob{index: index}
}

func (j *IndexRebuildJob) Name() string {
	return IndexRebuildJobName
}

func (j *IndexRebuildJob) Run(ctx context.Context) error {
	_, err := j.index.Rebuild(ctx)
	if err != nil {
		metrics.IndexBuilds.WithLabelValues("job_failed").Inc()
	}
	return err
}
