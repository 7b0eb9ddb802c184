package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ctxkit/internal/model"
	"github.com/xxxsen/ctxkit/internal/pkg/dbutil"
	appErr "github.com/xxxsen/ctxkit/internal/pkg/errors"
)

var documentFields = []string{"path", "kind", "project", "title", "summary", "tables_json", "tags_json", "schema_fingerprint", "content_hash", "ctime"}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

type DocumentRepo struct {
	db *sql.DB
}

func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func (r *DocumentRepo) Upsert(ctx context.Context, doc *model.Document) error {
	return upsertDocument(ctx, r.db, doc)
}

func upsertDocument(ctx context.Context, q querier, doc *model.Document) error {
	tablesJSON, _ := json.Marshal(nonNil(doc.Tables))
	tagsJSON, _ := json.Marshal(nonNil(doc.Tags))
	const query = `
		INSERT INTO documents (path, kind, project, title, summary, tables_json, tags_json, schema_fingerprint, content_hash, ctime)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (path) DO UPDATE SET
			kind = excluded.kind,
			project = excluded.project,
			title = excluded.title,
			summary = excluded.summary,
			tables_json = excluded.tables_json,
			tags_json = excluded.tags_json,
			schema_fingerprint = excluded.schema_fingerprint,
			content_hash = excluded.content_hash,
			ctime = excluded.ctime
	`
	sqlStr, args := dbutil.Finalize(query, []interface{}{
		doc.Path, string(doc.Kind), doc.Project, doc.Title, doc.Summary,
		string(tablesJSON), string(tagsJSON), doc.SchemaFingerprint, doc.ContentHash, doc.Ctime,
	})
	_, err := q.ExecContext(ctx, sqlStr, args...)
	return err
}

// errCorruptDocument marks a row whose JSON columns cannot be decoded.
var errCorruptDocument = errors.New("corrupt document row")

// Get returns the document at path. A row with undecodable JSON columns is
// reported as an error rather than skipped.
func (r *DocumentRepo) Get(ctx context.Context, path string) (*model.Document, error) {
	docs, err := selectDocuments(ctx, r.db, map[string]interface{}{"path": path}, false)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, appErr.ErrNotFound
	}
	return docs[0], nil
}

// List returns documents ordered by path. An empty kind matches every kind.
func (r *DocumentRepo) List(ctx context.Context, kind model.DocKind, limit, offset uint) ([]*model.Document, error) {
	where := map[string]interface{}{"_orderby": "path asc"}
	if kind != "" {
		where["kind"] = string(kind)
	}
	if limit > 0 {
		where["_limit"] = []uint{offset, limit}
	}
	return r.selectDocuments(ctx, where)
}

func (r *DocumentRepo) Count(ctx context.Context, kind model.DocKind) (int, error) {
	query := "SELECT COUNT(*) FROM documents"
	var args []interface{}
	if kind != "" {
		query += " WHERE kind = ?"
		args = append(args, string(kind))
	}
	sqlStr, args := dbutil.Finalize(query, args)
	var n int
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *DocumentRepo) Delete(ctx context.Context, path string) error {
	sqlStr, args, err := dbutil.Delete("documents", map[string]interface{}{"path": path})
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

// selectDocuments for listings: corrupt rows are logged and skipped so one
// bad row does not hide the rest.
func (r *DocumentRepo) selectDocuments(ctx context.Context, where map[string]interface{}) ([]*model.Document, error) {
	return selectDocuments(ctx, r.db, where, true)
}

func selectDocuments(ctx context.Context, q querier, where map[string]interface{}, skipCorrupt bool) ([]*model.Document, error) {
	sqlStr, args, err := dbutil.Select("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := make([]*model.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if skipCorrupt && errors.Is(err, errCorruptDocument) {
			logutil.GetLogger(ctx).Warn("skip corrupt document", zap.Error(err))
			continue
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func scanDocument(rows *sql.Rows) (*model.Document, error) {
	var (
		doc        model.Document
		kind       string
		tablesJSON string
		tagsJSON   string
	)
	if err := rows.Scan(&doc.Path, &kind, &doc.Project, &doc.Title, &doc.Summary, &tablesJSON, &tagsJSON, &doc.SchemaFingerprint, &doc.ContentHash, &doc.Ctime); err != nil {
		return nil, err
	}
	doc.Kind = model.DocKind(kind)
	if err := json.Unmarshal([]byte(tablesJSON), &doc.Tables); err != nil {
		return nil, fmt.Errorf("%w: %s tables_json: %v", errCorruptDocument, doc.Path, err)
	}
	if err := json.Unmarshal([]byte(tagsJSON), &doc.Tags); err != nil {
		return nil, fmt.Errorf("%w: %s tags_json: %v", errCorruptDocument, doc.Path, err)
	}
	return &doc, nil
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
