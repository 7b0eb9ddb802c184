package service

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ctxkit/internal/index"
	"github.com/xxxsen/ctxkit/internal/model"
	"github.com/xxxsen/ctxkit/internal/repo"
)

type IndexService struct {
	docs  *repo.DocumentRepo
	index *index.Index
}

func NewIndexService(docs *repo.DocumentRepo, idx *index.Index) *IndexService {
	return &IndexService{docs: docs, index: idx}
}

// Rebuild re-embeds every stored document, chats included, and publishes
// a new index version.
func (s *IndexService) Rebuild(ctx context.Context) (model.IndexInfo, error) {
	docs, err := s.docs.List(ctx, "", 0, 0)
	if err != nil {
		return model.IndexInfo{}, fmt.Errorf("list documents: %w", err)
	}
	info, err := s.index.Build(ctx, docs)
	if err != nil {
		return model.IndexInfo{}, err
	}
	logutil.GetLogger(ctx).Info("index rebuilt",
		zap.Uint64("version", info.Version),
		zap.Int("count", info.Count),
		zap.String("model", info.ModelName))
	return info, nil
}

func (s *IndexService) Info() (model.IndexInfo, bool) {
	return s.index.Info()
}

func (s *IndexService) Search(ctx context.Context, query string, k int) ([]model.SearchHit, error) {
	return s.index.Search(ctx, query, k)
}
