package mcpserver

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ctxkit/internal/ai"
	"github.com/xxxsen/ctxkit/internal/artifact"
	"github.com/xxxsen/ctxkit/internal/composer"
	"github.com/xxxsen/ctxkit/internal/config"
	"github.com/xxxsen/ctxkit/internal/filestore"
	"github.com/xxxsen/ctxkit/internal/index"
	"github.com/xxxsen/ctxkit/internal/repo"
	"github.com/xxxsen/ctxkit/internal/selector"
	"github.com/xxxsen/ctxkit/internal/service"
	"github.com/xxxsen/ctxkit/internal/testutil"
	"github.com/xxxsen/ctxkit/internal/tokenizer"
)

func newTools(t *testing.T) (*Tools, *service.PackService) {
	t.Helper()
	conn := testutil.OpenTestDB(t)
	docs := repo.NewDocumentRepo(conn)
	packRepo := repo.NewPackRepo(conn)
	snapshots := repo.NewSchemaSnapshotRepo(conn)
	store := artifact.NewStore(filestore.NewLocal(t.TempDir()), repo.NewArtifactRepo(conn))
	idx := index.New(t.TempDir(), ai.NewEmbedder(ai.NewLocalProvider(0), "hash-v1"))
	cfg := config.DefaultCompose()
	contexts := service.NewContextService(idx, docs,
		selector.New(nil, packRepo, store, selector.ConfigFrom(cfg)),
		composer.New(packRepo, store, tokenizer.Chars, snapshots, composer.ConfigFrom(cfg)),
		cfg)
	return &Tools{deps: Deps{Contexts: contexts, Schemas: service.NewSchemaService(snapshots, docs)}},
		service.NewPackService(docs, packRepo, store, tokenizer.Chars, nil)
}

func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(r *mcp.CallToolResult) string {
	if r == nil {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestDefinitions(t *testing.T) {
	tools, _ := newTools(t)
	require.Equal(t, "compose_context", tools.ComposeDefinition().Name)
	require.Equal(t, "search_packs", tools.SearchDefinition().Name)
	require.Equal(t, "check_pack_drift", tools.CheckDefinition().Name)
	require.Equal(t, "scan_drift", tools.ScanDefinition().Name)
	require.NotNil(t, New(tools.deps))
}

func TestComposeTool(t *testing.T) {
	ctx := context.Background()
	tools, _ := newTools(t)

	res, err := tools.Compose(ctx, makeReq(map[string]interface{}{}))
	require.NoError(t, err)
	require.True(t, res.IsError)

	res, err = tools.Compose(ctx, makeReq(map[string]interface{}{"prompt": "revenue?", "max_tokens": float64(2000)}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.Equal(t, "[CONTEXTKIT] No relevant context found.\n\nrevenue?", resultText(res))

	res, err = tools.Compose(ctx, makeReq(map[string]interface{}{"prompt": "revenue?", "current_schema": "{not json"}))
	require.NoError(t, err)
	require.True(t, res.IsError)
	require.Contains(t, resultText(res), "invalid current_schema")
}

func TestDriftTools(t *testing.T) {
	ctx := context.Background()
	tools, packs := newTools(t)
	_, err := packs.Ingest(ctx, service.PackInput{Path: "packs/a.md", Title: "A", Body: "body"})
	require.NoError(t, err)

	current := `{"public": {"orders": {"id": "integer"}}}`
	res, err := tools.Check(ctx, makeReq(map[string]interface{}{"path": "packs/a.md", "current_schema": current}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.True(t, strings.HasPrefix(resultText(res), "packs/a.md: unknown"))

	res, err = tools.Scan(ctx, makeReq(map[string]interface{}{"current_schema": current}))
	require.NoError(t, err)
	require.Contains(t, resultText(res), `"path": "packs/a.md"`)

	res, err = tools.Scan(ctx, makeReq(map[string]interface{}{}))
	require.NoError(t, err)
	require.True(t, res.IsError)
}
