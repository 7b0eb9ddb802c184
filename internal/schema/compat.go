package schema

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ctxkit/internal/model"
	appErr "github.com/xxxsen/ctxkit/internal/pkg/errors"
)

const (
	NoteNoFingerprint    = "Pack has no schema fingerprint"
	NoteFingerprintMatch = "Schema fingerprints match exactly"
	NoteOriginalMissing  = "Original schema not found for comparison"
)

// SnapshotLookup finds a historical snapshot by fingerprint and returns
// appErr.ErrNotFound when the history has none.
type SnapshotLookup interface {
	FindByFingerprint(ctx context.Context, fingerprint string) (*model.SchemaSnapshot, error)
}

// CheckPackCompatibility compares the schema a pack was written against with
// the current schema. It never guesses: without the original snapshot the
// result is unknown.
func CheckPackCompatibility(ctx context.Context, packFingerprint string, current map[string]interface{}, lookup SnapshotLookup) (model.CompatibilityResult, error) {
	if packFingerprint == "" {
		return model.CompatibilityResult{Level: model.CompatUnknown, Notes: []string{NoteNoFingerprint}}, nil
	}
	currentFP, err := Fingerprint(current)
	if err != nil {
		return model.CompatibilityResult{}, err
	}
	if currentFP == packFingerprint {
		return model.CompatibilityResult{Level: model.CompatIdentical, Notes: []string{NoteFingerprintMatch}}, nil
	}
	if lookup == nil {
		return model.CompatibilityResult{Level: model.CompatUnknown, Notes: []string{NoteOriginalMissing}}, nil
	}
	snap, err := lookup.FindByFingerprint(ctx, packFingerprint)
	if err != nil {
		if appErr.IsNotFound(err) {
			return model.CompatibilityResult{Level: model.CompatUnknown, Notes: []string{NoteOriginalMissing}}, nil
		}
		return model.CompatibilityResult{}, fmt.Errorf("lookup schema snapshot: %w", err)
	}
	return Diff(snap.Schema, current), nil
}

// ScanPacks checks every pack against the current schema. A pack that cannot
// be checked is reported with the error level instead of aborting the scan.
func ScanPacks(ctx context.Context, packs []*model.Document, current map[string]interface{}, lookup SnapshotLookup) []model.PackDrift {
	out := make([]model.PackDrift, 0, len(packs))
	for _, pack := range packs {
		if pack == nil {
			continue
		}
		res, err := CheckPackCompatibility(ctx, pack.SchemaFingerprint, current, lookup)
		if err != nil {
			logutil.GetLogger(ctx).Warn("check pack compatibility failed", zap.String("path", pack.Path), zap.Error(err))
			res = model.CompatibilityResult{
				Level: model.CompatError,
				Notes: []string{fmt.Sprintf("Error checking compatibility: %v", err)},
			}
		}
		out = append(out, model.PackDrift{Path: pack.Path, Title: pack.Title, Result: res})
	}
	return out
}

// History is an in-memory snapshot history. Fingerprints are recomputed from
// the stored schema rather than trusted.
type History []*model.SchemaSnapshot

func (h History) FindByFingerprint(ctx context.Context, fingerprint string) (*model.SchemaSnapshot, error) {
	for _, snap := range h {
		if snap == nil {
			continue
		}
		fp, err := Fingerprint(snap.Schema)
		if err != nil {
			logutil.GetLogger(ctx).Warn("skip unreadable schema snapshot", zap.String("slug", snap.Slug), zap.Error(err))
			continue
		}
		if fp == fingerprint {
			return snap, nil
		}
	}
	return nil, appErr.ErrNotFound
}
