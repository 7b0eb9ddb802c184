package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ctxkit/internal/ai"
	"github.com/xxxsen/ctxkit/internal/artifact"
	"github.com/xxxsen/ctxkit/internal/composer"
	"github.com/xxxsen/ctxkit/internal/config"
	"github.com/xxxsen/ctxkit/internal/filestore"
	"github.com/xxxsen/ctxkit/internal/index"
	"github.com/xxxsen/ctxkit/internal/model"
	appErr "github.com/xxxsen/ctxkit/internal/pkg/errors"
	"github.com/xxxsen/ctxkit/internal/repo"
	"github.com/xxxsen/ctxkit/internal/schema"
	"github.com/xxxsen/ctxkit/internal/selector"
	"github.com/xxxsen/ctxkit/internal/testutil"
	"github.com/xxxsen/ctxkit/internal/tokenizer"
)

type fixture struct {
	packs   *PackService
	index   *IndexService
	context *ContextService
	schemas *SchemaService
	store   *artifact.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := testutil.OpenTestDB(t)
	docs := repo.NewDocumentRepo(conn)
	packRepo := repo.NewPackRepo(conn)
	snapshots := repo.NewSchemaSnapshotRepo(conn)
	store := artifact.NewStore(filestore.NewLocal(t.TempDir()), repo.NewArtifactRepo(conn))
	idx := index.New(t.TempDir(), ai.NewEmbedder(ai.NewLocalProvider(0), "hash-v1"))
	cfg := config.DefaultCompose()
	sel := selector.New(nil, packRepo, store, selector.ConfigFrom(cfg))
	comp := composer.New(packRepo, store, tokenizer.Chars, snapshots, composer.ConfigFrom(cfg))
	return &fixture{
		packs:   NewPackService(docs, packRepo, store, tokenizer.Chars, nil),
		index:   NewIndexService(docs, idx),
		context: NewContextService(idx, docs, sel, comp, cfg),
		schemas: NewSchemaService(snapshots, docs),
		store:   store,
	}
}

const revenueBody = "Monthly revenue is the sum of paid invoices per month.\n\n" +
	"```sql\nselect date_trunc('month', paid_at) m, sum(amount) from invoices group by 1\n```\n"

func TestComposeEmptyIndex(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	res, err := f.context.ComposeContext(ctx, ComposeRequest{Prompt: "what is monthly revenue?"})
	require.NoError(t, err)
	require.Equal(t, "[CONTEXTKIT] No relevant context found.\n\nwhat is monthly revenue?", res.Text)
	require.Zero(t, res.Candidates)

	_, err = f.context.ComposeContext(ctx, ComposeRequest{Prompt: "  "})
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestIngestIndexCompose(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	pack, err := f.packs.Ingest(ctx, PackInput{
		Project: "billing",
		Title:   "Monthly revenue",
		Summary: "monthly revenue from paid invoices",
		Body:    revenueBody,
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(pack.Path, "packs/monthly-revenue--"))
	require.Len(t, pack.Artifacts, 1)
	require.Equal(t, model.ArtifactKindSQL, pack.Artifacts[0].Kind)
	require.Equal(t, []string{"invoices"}, pack.Tables)
	require.Positive(t, pack.TokensEstimate)

	_, err = f.packs.IngestChat(ctx, ChatInput{Project: "billing", Title: "revenue chat", Body: "monthly revenue from paid invoices"})
	require.NoError(t, err)

	info, err := f.index.Rebuild(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, info.Count)

	res, err := f.context.ComposeContext(ctx, ComposeRequest{Prompt: "monthly revenue from invoices", MaxTokens: 4000})
	require.NoError(t, err)
	require.Equal(t, []string{pack.Path}, res.Packs)
	require.Contains(t, res.Text, "## Context: Monthly revenue (Project: billing)")
	require.Contains(t, res.Text, "### Artifact (sql):")
	require.LessOrEqual(t, res.Tokens, 4000)
	require.True(t, strings.HasSuffix(res.Text, "[END CONTEXT]\n\nmonthly revenue from invoices"))

	res, err = f.context.ComposeContext(ctx, ComposeRequest{Prompt: "monthly revenue", Project: "nope"})
	require.NoError(t, err)
	require.Equal(t, "[CONTEXTKIT] No relevant context found within project 'nope'.\n\nmonthly revenue", res.Text)
}

func TestIngestReplacesSamePath(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	in := PackInput{Path: "packs/rev.md", Title: "Revenue", Body: revenueBody, Tags: []string{"b", "a", "a"}}
	_, err := f.packs.Ingest(ctx, in)
	require.NoError(t, err)

	in.Body = "No code any more."
	_, err = f.packs.Ingest(ctx, in)
	require.NoError(t, err)

	got, err := f.packs.Get(ctx, "packs/rev.md")
	require.NoError(t, err)
	require.Equal(t, "No code any more.", got.Body)
	require.Empty(t, got.Artifacts)
	require.Equal(t, []string{"a", "b"}, got.Tags)

	_, err = f.packs.Ingest(ctx, PackInput{Title: "no body"})
	require.ErrorIs(t, err, appErr.ErrInvalid)

	require.NoError(t, f.packs.Delete(ctx, "packs/rev.md"))
	_, err = f.packs.Get(ctx, "packs/rev.md")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestIngestKindConflict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.packs.IngestChat(ctx, ChatInput{Path: "shared.md", Project: "billing", Title: "chat", Body: "we talked"})
	require.NoError(t, err)
	_, err = f.packs.Ingest(ctx, PackInput{Path: "shared.md", Title: "pack", Body: "text"})
	require.ErrorIs(t, err, appErr.ErrConflict)

	_, err = f.packs.Ingest(ctx, PackInput{Path: "packs/p.md", Title: "pack", Body: "text"})
	require.NoError(t, err)
	_, err = f.packs.IngestChat(ctx, ChatInput{Path: "packs/p.md", Project: "billing", Title: "chat", Body: "again"})
	require.ErrorIs(t, err, appErr.ErrConflict)
}

func TestImportFile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	file := filepath.Join(t.TempDir(), "churn-definition.yaml")
	content := `project: growth
title: Churn definition
tables: [subscriptions]
body: |
  A customer churns when no active subscription remains for 30 days.
`
	require.NoError(t, os.WriteFile(file, []byte(content), 0o644))
	pack, err := f.packs.ImportFile(ctx, file)
	require.NoError(t, err)
	require.Equal(t, "packs/churn-definition.md", pack.Path)
	require.Equal(t, "growth", pack.Project)
	require.Equal(t, []string{"subscriptions"}, pack.Tables)
	require.Equal(t, "A customer churns when no active subscription remains for 30 days.", pack.Summary)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("title: [unclosed"), 0o644))
	_, err = f.packs.ImportFile(ctx, bad)
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestSummarizeChat(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	chat, err := f.packs.IngestChat(ctx, ChatInput{
		Path:    "chats/rev.md",
		Project: "billing",
		Title:   "Revenue chat",
		Body:    "\nuser: how is revenue computed?\n\nassistant: sum of paid invoices\n",
	})
	require.NoError(t, err)
	require.Equal(t, model.DocKindChat, chat.Kind)

	pack, err := f.packs.Summarize(ctx, "chats/rev.md")
	require.NoError(t, err)
	require.Equal(t, model.DocKindPack, pack.Kind)
	require.Equal(t, "user: how is revenue computed?\nassistant: sum of paid invoices", pack.Summary)
	require.Len(t, pack.SourceChatHash, 64)

	_, err = f.packs.Summarize(ctx, pack.Path)
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestIngestChatKeepsNoArtifacts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	blocks := artifact.Extract(revenueBody)
	require.Len(t, blocks, 1)
	hash := schema.HashContent([]byte(blocks[0].Content))

	chat, err := f.packs.IngestChat(ctx, ChatInput{Path: "chats/rev.md", Project: "billing", Title: "chat", Body: revenueBody})
	require.NoError(t, err)
	require.Equal(t, []string{"invoices"}, chat.Tables)
	_, err = f.store.Load(ctx, hash)
	require.True(t, appErr.IsNotFound(err))

	_, err = f.packs.Ingest(ctx, PackInput{Path: "packs/rev.md", Project: "billing", Title: "Revenue", Body: revenueBody})
	require.NoError(t, err)
	_, err = f.store.Load(ctx, hash)
	require.NoError(t, err)
}

func ordersSchema() map[string]interface{} {
	return map[string]interface{}{
		"public": map[string]interface{}{
			"orders": map[string]interface{}{"id": "integer", "total": "numeric"},
		},
	}
}

func TestSchemaDrift(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	snap, err := f.schemas.Snapshot(ctx, "", ordersSchema())
	require.NoError(t, err)
	require.Equal(t, "default", snap.Slug)
	again, err := f.schemas.Snapshot(ctx, "prod", ordersSchema())
	require.NoError(t, err)
	require.Equal(t, snap.Fingerprint, again.Fingerprint)
	history, err := f.schemas.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)

	_, err = f.packs.Ingest(ctx, PackInput{Path: "packs/orders.md", Title: "Orders", Body: "orders total", SchemaFingerprint: snap.Fingerprint})
	require.NoError(t, err)
	_, err = f.packs.Ingest(ctx, PackInput{Path: "packs/loose.md", Title: "Loose", Body: "no schema"})
	require.NoError(t, err)

	current := ordersSchema()
	delete(current["public"].(map[string]interface{})["orders"].(map[string]interface{}), "total")
	res, err := f.schemas.CheckPack(ctx, "packs/orders.md", current)
	require.NoError(t, err)
	require.Equal(t, model.CompatBreaking, res.Level)
	require.Contains(t, strings.Join(res.Notes, "\n"), "Removed column: total")

	drift, err := f.schemas.Scan(ctx, nil)
	require.NoError(t, err)
	require.Len(t, drift, 2)
	byPath := map[string]model.CompatibilityLevel{}
	for _, d := range drift {
		byPath[d.Path] = d.Result.Level
	}
	require.Equal(t, model.CompatUnknown, byPath["packs/loose.md"])
	require.Equal(t, model.CompatIdentical, byPath["packs/orders.md"])
	require.Equal(t, []string{schema.NoteNoFingerprint}, drift[0].Result.Notes)
}

func TestSchemaScanWithoutSnapshot(t *testing.T) {
	f := newFixture(t)
	_, err := f.schemas.Scan(context.Background(), nil)
	require.ErrorIs(t, err, appErr.ErrInvalid)
}
