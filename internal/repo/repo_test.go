package repo

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ctxkit/internal/model"
	"github.com/xxxsen/ctxkit/internal/pkg/dbutil"
	appErr "github.com/xxxsen/ctxkit/internal/pkg/errors"
	"github.com/xxxsen/ctxkit/internal/testutil"
)

func openDBs(t *testing.T) map[string]func(t *testing.T) *sql.DB {
	return map[string]func(t *testing.T) *sql.DB{
		"sqlite":   testutil.OpenTestDB,
		"postgres": testutil.OpenPostgresDB,
	}
}

func samplePack(path string) *model.ContextPack {
	return &model.ContextPack{
		Document: model.Document{
			Path:              path,
			Kind:              model.DocKindPack,
			Project:           "billing",
			Title:             "Invoice totals",
			Summary:           "How invoice totals are computed",
			Tables:            []string{"public.invoices"},
			Tags:              []string{"sql"},
			SchemaFingerprint: "blake3:abc",
			ContentHash:       "blake3:body",
			Ctime:             100,
		},
		SourceChatHash: "0123456789abcdef",
		TokensEstimate: 42,
		Body:           "Sum the line items.",
		Artifacts: []model.ArtifactRef{
			{Hash: "blake3:a1", Kind: model.ArtifactKindSQL},
			{Hash: "blake3:a2", Kind: model.ArtifactKindCode},
		},
	}
}

func TestPackRepoRoundTrip(t *testing.T) {
	for name, open := range openDBs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			db := open(t)
			packs := NewPackRepo(db)
			docs := NewDocumentRepo(db)
			path := "packs/" + name + "-invoice.md"
			t.Cleanup(func() { _ = packs.Delete(ctx, path) })

			pack := samplePack(path)
			require.NoError(t, packs.Save(ctx, pack))

			got, err := packs.Get(ctx, path)
			require.NoError(t, err)
			require.Equal(t, pack.Title, got.Title)
			require.Equal(t, pack.Tables, got.Tables)
			require.Equal(t, pack.Body, got.Body)
			require.Equal(t, pack.Artifacts, got.Artifacts)

			pack.Artifacts = pack.Artifacts[:1]
			pack.Title = "Invoice totals v2"
			require.NoError(t, packs.Save(ctx, pack))
			got, err = packs.Get(ctx, path)
			require.NoError(t, err)
			require.Equal(t, "Invoice totals v2", got.Title)
			require.Len(t, got.Artifacts, 1)

			doc, err := docs.Get(ctx, path)
			require.NoError(t, err)
			require.Equal(t, model.DocKindPack, doc.Kind)

			require.NoError(t, packs.Delete(ctx, path))
			_, err = packs.Get(ctx, path)
			require.ErrorIs(t, err, appErr.ErrNotFound)
		})
	}
}

func TestDocumentRepo(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenTestDB(t)
	repo := NewDocumentRepo(db)

	for _, doc := range []*model.Document{
		{Path: "chats/b.md", Kind: model.DocKindChat, Title: "b", Ctime: 1},
		{Path: "chats/a.md", Kind: model.DocKindChat, Title: "a", Ctime: 1},
		{Path: "packs/c.md", Kind: model.DocKindPack, Title: "c", Ctime: 1},
	} {
		require.NoError(t, repo.Upsert(ctx, doc))
	}

	chats, err := repo.List(ctx, model.DocKindChat, 0, 0)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	require.Equal(t, "chats/a.md", chats[0].Path)
	require.Equal(t, []string{}, chats[0].Tables)

	page, err := repo.List(ctx, "", 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "chats/b.md", page[0].Path)

	n, err := repo.Count(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 3, n)

	n, err = repo.Count(ctx, model.DocKindPack)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	require.NoError(t, repo.Delete(ctx, "chats/a.md"))
	require.ErrorIs(t, repo.Delete(ctx, "chats/a.md"), appErr.ErrNotFound)
	_, err = repo.Get(ctx, "chats/a.md")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestDocumentRepoCorruptRow(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenTestDB(t)
	repo := NewDocumentRepo(db)
	require.NoError(t, repo.Upsert(ctx, &model.Document{Path: "packs/good.md", Kind: model.DocKindPack, Title: "good", Ctime: 1}))
	require.NoError(t, repo.Upsert(ctx, &model.Document{Path: "packs/bad.md", Kind: model.DocKindPack, Title: "bad", Ctime: 1}))

	tests := []struct {
		name   string
		column string
	}{
		{name: "tables", column: "tables_json"},
		{name: "tags", column: "tags_json"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sqlStr, args := dbutil.Finalize("UPDATE documents SET "+tc.column+" = ? WHERE path = ?", []interface{}{"{not json", "packs/bad.md"})
			_, err := db.ExecContext(ctx, sqlStr, args...)
			require.NoError(t, err)

			_, err = repo.Get(ctx, "packs/bad.md")
			require.ErrorIs(t, err, errCorruptDocument)
			require.Contains(t, err.Error(), tc.column)

			docs, err := repo.List(ctx, model.DocKindPack, 0, 0)
			require.NoError(t, err)
			require.Len(t, docs, 1)
			require.Equal(t, "packs/good.md", docs[0].Path)

			sqlStr, args = dbutil.Finalize("UPDATE documents SET "+tc.column+" = ? WHERE path = ?", []interface{}{"[]", "packs/bad.md"})
			_, err = db.ExecContext(ctx, sqlStr, args...)
			require.NoError(t, err)
		})
	}
}

func TestSchemaSnapshotRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewSchemaSnapshotRepo(testutil.OpenTestDB(t))

	_, err := repo.Latest(ctx)
	require.ErrorIs(t, err, appErr.ErrNotFound)

	first := &model.SchemaSnapshot{
		Fingerprint: "blake3:1",
		Slug:        "v1",
		Schema:      map[string]interface{}{"public": map[string]interface{}{"users": map[string]interface{}{"id": "integer"}}},
		Ctime:       10,
	}
	second := &model.SchemaSnapshot{Fingerprint: "blake3:2", Slug: "v2", Schema: map[string]interface{}{}, Ctime: 20}
	require.NoError(t, repo.Save(ctx, first))
	require.NoError(t, repo.Save(ctx, second))
	require.NoError(t, repo.Save(ctx, &model.SchemaSnapshot{Fingerprint: "blake3:1", Slug: "dup", Schema: map[string]interface{}{}, Ctime: 30}))

	got, err := repo.FindByFingerprint(ctx, "blake3:1")
	require.NoError(t, err)
	require.Equal(t, "v1", got.Slug)
	require.Equal(t, first.Schema, got.Schema)

	latest, err := repo.Latest(ctx)
	require.NoError(t, err)
	require.Equal(t, "blake3:2", latest.Fingerprint)

	history, err := repo.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)

	_, err = repo.FindByFingerprint(ctx, "blake3:none")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestEmbeddingCacheRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewEmbeddingCacheRepo(testutil.OpenTestDB(t))

	_, ok, err := repo.Get(ctx, "m", "query", "h")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, repo.Save(ctx, &model.EmbeddingCache{ModelName: "m", TaskType: "query", ContentHash: "h", Embedding: []float32{0.5, -1, 2}, Ctime: 5}))
	vec, ok, err := repo.Get(ctx, "m", "query", "h")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []float32{0.5, -1, 2}, vec)

	n, err := repo.DeleteBefore(ctx, 6)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestArtifactRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewArtifactRepo(testutil.OpenTestDB(t))
	item := &model.Artifact{Hash: "blake3:x", Kind: model.ArtifactKindSQL, Lang: "sql", Size: 12, Ctime: 1}
	require.NoError(t, repo.Save(ctx, item))
	require.NoError(t, repo.Save(ctx, item))
	got, err := repo.Get(ctx, "blake3:x")
	require.NoError(t, err)
	require.Equal(t, item.Lang, got.Lang)
	_, err = repo.Get(ctx, "blake3:y")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}
