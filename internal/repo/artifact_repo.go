package repo

import (
	"context"
	"database/sql"

	"github.com/xxxsen/ctxkit/internal/model"
	"github.com/xxxsen/ctxkit/internal/pkg/dbutil"
	appErr "github.com/xxxsen/ctxkit/internal/pkg/errors"
)

// ArtifactRepo keeps artifact metadata. Content lives in the file store.
type ArtifactRepo struct {
	db *sql.DB
}

func NewArtifactRepo(db *sql.DB) *ArtifactRepo {
	return &ArtifactRepo{db: db}
}

// Save is idempotent: artifacts are content addressed.
func (r *ArtifactRepo) Save(ctx context.Context, item *model.Artifact) error {
	const query = `
		INSERT INTO artifacts (hash, kind, lang, size, ctime)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (hash) DO NOTHING
	`
	sqlStr, args := dbutil.Finalize(query, []interface{}{item.Hash, string(item.Kind), item.Lang, item.Size, item.Ctime})
	_, err := r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *ArtifactRepo) Get(ctx context.Context, hash string) (*model.Artifact, error) {
	sqlStr, args, err := dbutil.Select("artifacts", map[string]interface{}{"hash": hash}, []string{"hash", "kind", "lang", "size", "ctime"})
	if err != nil {
		return nil, err
	}
	var (
		item model.Artifact
		kind string
	)
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&item.Hash, &kind, &item.Lang, &item.Size, &item.Ctime); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	item.Kind = model.ArtifactKind(kind)
	return &item, nil
}
