package service

import (
	"context"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ctxkit/internal/metrics"
	"github.com/xxxsen/ctxkit/internal/model"
	appErr "github.com/xxxsen/ctxkit/internal/pkg/errors"
	"github.com/xxxsen/ctxkit/internal/repo"
	"github.com/xxxsen/ctxkit/internal/schema"
)

type SchemaService struct {
	snapshots *repo.SchemaSnapshotRepo
	docs      *repo.DocumentRepo
}

func NewSchemaService(snapshots *repo.SchemaSnapshotRepo, docs *repo.DocumentRepo) *SchemaService {
	return &SchemaService{snapshots: snapshots, docs: docs}
}

func (s *SchemaService) Fingerprint(doc map[string]interface{}) (string, error) {
	if doc == nil {
		return "", fmt.Errorf("empty schema: %w", appErr.ErrInvalid)
	}
	return schema.Fingerprint(doc)
}

// Snapshot records doc in the history under its fingerprint. Recording an
// identical schema again returns the existing fingerprint.
func (s *SchemaService) Snapshot(ctx context.Context, slug string, doc map[string]interface{}) (*model.SchemaSnapshot, error) {
	fp, err := s.Fingerprint(doc)
	if err != nil {
		return nil, err
	}
	if slug == "" {
		slug = "default"
	}
	snap := &model.SchemaSnapshot{Fingerprint: fp, Slug: slug, Schema: doc, Ctime: time.Now().Unix()}
	if err := s.snapshots.Save(ctx, snap); err != nil {
		return nil, fmt.Errorf("save schema snapshot: %w", err)
	}
	logutil.GetLogger(ctx).Info("schema snapshot saved", zap.String("slug", slug), zap.String("fingerprint", fp))
	return snap, nil
}

func (s *SchemaService) History(ctx context.Context, limit uint) ([]*model.SchemaSnapshot, error) {
	return s.snapshots.History(ctx, limit)
}

func (s *SchemaService) Introspect(ctx context.Context, dsn string) (map[string]interface{}, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty dsn: %w", appErr.ErrInvalid)
	}
	return schema.IntrospectPostgres(ctx, dsn)
}

// Diff compares two schema documents directly.
func (s *SchemaService) Diff(oldDoc, newDoc map[string]interface{}) model.CompatibilityResult {
	return schema.Diff(oldDoc, newDoc)
}

// CheckPack reports how the pack at path relates to current.
func (s *SchemaService) CheckPack(ctx context.Context, path string, current map[string]interface{}) (model.CompatibilityResult, error) {
	doc, err := s.docs.Get(ctx, path)
	if err != nil {
		return model.CompatibilityResult{}, err
	}
	current, err = s.currentOrLatest(ctx, current)
	if err != nil {
		return model.CompatibilityResult{}, err
	}
	res, err := schema.CheckPackCompatibility(ctx, doc.SchemaFingerprint, current, s.snapshots)
	if err != nil {
		return model.CompatibilityResult{}, err
	}
	metrics.DriftResults.WithLabelValues(string(res.Level)).Inc()
	return res, nil
}

// Scan checks every pack against current, or against the latest recorded
// snapshot when current is nil.
func (s *SchemaService) Scan(ctx context.Context, current map[string]interface{}) ([]model.PackDrift, error) {
	current, err := s.currentOrLatest(ctx, current)
	if err != nil {
		return nil, err
	}
	packs, err := s.docs.List(ctx, model.DocKindPack, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("list packs: %w", err)
	}
	results := schema.ScanPacks(ctx, packs, current, s.snapshots)
	for _, r := range results {
		metrics.DriftResults.WithLabelValues(string(r.Result.Level)).Inc()
	}
	return results, nil
}

func (s *SchemaService) currentOrLatest(ctx context.Context, current map[string]interface{}) (map[string]interface{}, error) {
	if current != nil {
		return current, nil
	}
	latest, err := s.snapshots.Latest(ctx)
	if err != nil {
		if appErr.IsNotFound(err) {
			return nil, fmt.Errorf("no current schema given and no snapshot recorded: %w", appErr.ErrInvalid)
		}
		return nil, err
	}
	return latest.Schema, nil
}
