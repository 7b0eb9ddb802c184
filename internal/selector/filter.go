package selector

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ctxkit/internal/model"
)

type DocumentLookup interface {
	Get(ctx context.Context, path string) (*model.Document, error)
}

// Filter keeps pack hits, optionally of one project, and truncates to
// topK in score order. Hits whose metadata cannot be read are skipped.
func Filter(ctx context.Context, hits []model.SearchHit, topK int, project string, lookup DocumentLookup) []model.Candidate {
	out := make([]model.Candidate, 0, min(len(hits), max(topK, 0)))
	for _, hit := range hits {
		if len(out) >= topK {
			break
		}
		doc, err := lookup.Get(ctx, hit.Path)
		if err != nil {
			logutil.GetLogger(ctx).Warn("skip candidate without metadata", zap.String("path", hit.Path), zap.Error(err))
			continue
		}
		if doc.Kind != model.DocKindPack {
			continue
		}
		if project != "" && doc.Project != project {
			continue
		}
		out = append(out, model.Candidate{SearchHit: hit, Document: doc})
	}
	return out
}
