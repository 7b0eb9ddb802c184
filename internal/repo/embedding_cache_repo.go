package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/ctxkit/internal/model"
	"github.com/xxxsen/ctxkit/internal/pkg/dbutil"
)

// EmbeddingCacheRepo stores vectors in the pgvector text form, which reads
// back the same from a sqlite TEXT column and a postgres column.
type EmbeddingCacheRepo struct {
	db *sql.DB
}

func NewEmbeddingCacheRepo(db *sql.DB) *EmbeddingCacheRepo {
	return &EmbeddingCacheRepo{db: db}
}

// Get reports a miss with ok=false and no error.
func (r *EmbeddingCacheRepo) Get(ctx context.Context, modelName, taskType, contentHash string) ([]float32, bool, error) {
	sqlStr, args, err := dbutil.Select("embedding_cache", map[string]interface{}{
		"model_name":   modelName,
		"task_type":    taskType,
		"content_hash": contentHash,
	}, []string{"embedding"})
	if err != nil {
		return nil, false, err
	}
	var vec pgvector.Vector
	err = r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&vec)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return vec.Slice(), true, nil
}

// Save overwrites any vector stored under the same key. Empty vectors are
// not cached.
func (r *EmbeddingCacheRepo) Save(ctx context.Context, item *model.EmbeddingCache) error {
	if len(item.Embedding) == 0 {
		return nil
	}
	sqlStr, args := dbutil.Finalize(`
		INSERT INTO embedding_cache (model_name, task_type, content_hash, embedding, ctime)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (model_name, task_type, content_hash)
		DO UPDATE SET embedding = excluded.embedding, ctime = excluded.ctime
	`, []interface{}{item.ModelName, item.TaskType, item.ContentHash, pgvector.NewVector(item.Embedding), item.Ctime})
	_, err := r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// DeleteBefore expires entries written before cutoff (unix seconds) and
// returns how many were removed.
func (r *EmbeddingCacheRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	sqlStr, args, err := dbutil.Delete("embedding_cache", map[string]interface{}{"ctime <": cutoff})
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
