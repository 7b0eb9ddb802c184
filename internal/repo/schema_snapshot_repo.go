package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/xxxsen/ctxkit/internal/model"
	"github.com/xxxsen/ctxkit/internal/pkg/dbutil"
	appErr "github.com/xxxsen/ctxkit/internal/pkg/errors"
)

type SchemaSnapshotRepo struct {
	db *sql.DB
}

func NewSchemaSnapshotRepo(db *sql.DB) *SchemaSnapshotRepo {
	return &SchemaSnapshotRepo{db: db}
}

// Save records a snapshot. Saving the same fingerprint twice keeps the
// first row.
func (r *SchemaSnapshotRepo) Save(ctx context.Context, snap *model.SchemaSnapshot) error {
	raw, err := json.Marshal(snap.Schema)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO schema_snapshots (fingerprint, slug, schema_json, ctime)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (fingerprint) DO NOTHING
	`
	sqlStr, args := dbutil.Finalize(query, []interface{}{snap.Fingerprint, snap.Slug, string(raw), snap.Ctime})
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *SchemaSnapshotRepo) FindByFingerprint(ctx context.Context, fingerprint string) (*model.SchemaSnapshot, error) {
	items, err := r.selectSnapshots(ctx, map[string]interface{}{"fingerprint": fingerprint})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, appErr.ErrNotFound
	}
	return items[0], nil
}

// Latest returns the most recently recorded snapshot.
func (r *SchemaSnapshotRepo) Latest(ctx context.Context) (*model.SchemaSnapshot, error) {
	items, err := r.History(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, appErr.ErrNotFound
	}
	return items[0], nil
}

// History lists snapshots newest first.
func (r *SchemaSnapshotRepo) History(ctx context.Context, limit uint) ([]*model.SchemaSnapshot, error) {
	where := map[string]interface{}{"_orderby": "ctime desc, fingerprint asc"}
	if limit > 0 {
		where["_limit"] = []uint{0, limit}
	}
	return r.selectSnapshots(ctx, where)
}

func (r *SchemaSnapshotRepo) selectSnapshots(ctx context.Context, where map[string]interface{}) ([]*model.SchemaSnapshot, error) {
	sqlStr, args, err := dbutil.Select("schema_snapshots", where, []string{"fingerprint", "slug", "schema_json", "ctime"})
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]*model.SchemaSnapshot, 0)
	for rows.Next() {
		var (
			snap model.SchemaSnapshot
			raw  string
		)
		if err := rows.Scan(&snap.Fingerprint, &snap.Slug, &raw, &snap.Ctime); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &snap.Schema); err != nil {
			return nil, err
		}
		items = append(items, &snap)
	}
	return items, rows.Err()
}
