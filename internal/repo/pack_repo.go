package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/ctxkit/internal/model"
	"github.com/xxxsen/ctxkit/internal/pkg/dbutil"
	appErr "github.com/xxxsen/ctxkit/internal/pkg/errors"
)

// PackRepo stores context packs: the document row, the pack body and the
// ordered artifact references.
type PackRepo struct {
	db *sql.DB
}

func NewPackRepo(db *sql.DB) *PackRepo {
	return &PackRepo{db: db}
}

func (r *PackRepo) Save(ctx context.Context, pack *model.ContextPack) (err error) {
	if pack.Kind == "" {
		pack.Kind = model.DocKindPack
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = upsertDocument(ctx, tx, &pack.Document); err != nil {
		return fmt.Errorf("save pack document: %w", err)
	}
	const packQuery = `
		INSERT INTO packs (path, source_chat_hash, tokens_estimate, body)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (path) DO UPDATE SET
			source_chat_hash = excluded.source_chat_hash,
			tokens_estimate = excluded.tokens_estimate,
			body = excluded.body
	`
	sqlStr, args := dbutil.Finalize(packQuery, []interface{}{pack.Path, pack.SourceChatHash, pack.TokensEstimate, pack.Body})
	if _, err = tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("save pack: %w", err)
	}
	sqlStr, args = dbutil.Finalize("DELETE FROM pack_artifacts WHERE pack_path = ?", []interface{}{pack.Path})
	if _, err = tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return err
	}
	if len(pack.Artifacts) > 0 {
		data := make([]map[string]interface{}, 0, len(pack.Artifacts))
		for i, ref := range pack.Artifacts {
			data = append(data, map[string]interface{}{
				"pack_path":     pack.Path,
				"position":      i,
				"artifact_hash": ref.Hash,
				"kind":          string(ref.Kind),
			})
		}
		sqlStr, args, err = builder.BuildInsert("pack_artifacts", data)
		if err != nil {
			return err
		}
		sqlStr, args = dbutil.Finalize(sqlStr, args)
		if _, err = tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return fmt.Errorf("save pack artifacts: %w", err)
		}
	}
	return tx.Commit()
}

func (r *PackRepo) Get(ctx context.Context, path string) (*model.ContextPack, error) {
	docs, err := selectDocuments(ctx, r.db, map[string]interface{}{"path": path, "kind": string(model.DocKindPack)}, false)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, appErr.ErrNotFound
	}
	pack := &model.ContextPack{Document: *docs[0]}
	sqlStr, args, err := dbutil.Select("packs", map[string]interface{}{"path": path}, []string{"source_chat_hash", "tokens_estimate", "body"})
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	if err := row.Scan(&pack.SourceChatHash, &pack.TokensEstimate, &pack.Body); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	refs, err := r.listRefs(ctx, path)
	if err != nil {
		return nil, err
	}
	pack.Artifacts = refs
	return pack, nil
}

func (r *PackRepo) listRefs(ctx context.Context, path string) ([]model.ArtifactRef, error) {
	where := map[string]interface{}{"pack_path": path, "_orderby": "position asc"}
	sqlStr, args, err := dbutil.Select("pack_artifacts", where, []string{"artifact_hash", "kind"})
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	refs := make([]model.ArtifactRef, 0)
	for rows.Next() {
		var (
			ref  model.ArtifactRef
			kind string
		)
		if err := rows.Scan(&ref.Hash, &kind); err != nil {
			return nil, err
		}
		ref.Kind = model.ArtifactKind(kind)
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// Delete removes the pack; its artifact references cascade.
func (r *PackRepo) Delete(ctx context.Context, path string) error {
	where := map[string]interface{}{"path": path, "kind": string(model.DocKindPack)}
	sqlStr, args, err := dbutil.Delete("documents", where)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}
