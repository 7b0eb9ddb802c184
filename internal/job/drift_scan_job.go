package job

import (
	"context"
	"errors"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ctxkit/internal/model"
	appErr "github.com/xxxsen/ctxkit/internal/pkg/errors"
)

type DriftScanner interface {
	Scan(ctx context.Context, current map[string]interface{}) ([]model.PackDrift, error)
}

// DriftScanJob checks every pack against the latest schema snapshot and
// logs the packs that broke.
type DriftScanJob struct {
	scanner DriftScanner
}

func NewDriftScanJob(scanner DriftScanner) *DriftScanJob {
	return &DriftScanJob{scanner: scanner}
}

func (j *DriftScanJob) Name() string {
	return "drift_scan"
}

func (j *DriftScanJob) Run(ctx context.Context) error {
	logger := logutil.GetLogger(ctx)
	results, err := j.scanner.Scan(ctx, nil)
	if errors.Is(err, appErr.ErrInvalid) {
		logger.Info("drift scan skipped: no schema snapshot recorded")
		return nil
	}
	if err != nil {
		return err
	}
	broken := 0
	for _, r := range results {
		switch r.Result.Level {
		case model.CompatBreaking:
			broken++
			logger.Warn("pack has breaking schema drift",
				zap.String("path", r.Path),
				zap.String("title", r.Title),
				zap.Strings("notes", r.Result.Notes))
		case model.CompatError:
			logger.Warn("pack drift check failed", zap.String("path", r.Path), zap.Strings("notes", r.Result.Notes))
		}
	}
	logger.Info("drift scan finished", zap.Int("packs", len(results)), zap.Int("breaking", broken))
	return nil
}
