// Package mcpserver exposes context composition and drift checks as MCP
// tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/xxxsen/ctxkit/internal/schema"
	"github.com/xxxsen/ctxkit/internal/service"
)

const Version = "0.1.0"

type Deps struct {
	Contexts *service.ContextService
	Schemas  *service.SchemaService
}

func New(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"ctxkit",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions("Call compose_context before answering analytical questions to load prior context packs."),
	)
	tools := &Tools{deps: deps}
	s.AddTool(tools.ComposeDefinition(), tools.Compose)
	s.AddTool(tools.SearchDefinition(), tools.Search)
	s.AddTool(tools.CheckDefinition(), tools.Check)
	s.AddTool(tools.ScanDefinition(), tools.Scan)
	return s
}

func ServeStdio(deps Deps) error {
	return server.ServeStdio(New(deps))
}

type Tools struct {
	deps Deps
}

func (t *Tools) ComposeDefinition() mcp.Tool {
	return mcp.NewTool("compose_context",
		mcp.WithDescription("Select relevant context packs for a prompt and return the prompt prefixed with them, within a token budget."),
		mcp.WithString("prompt", mcp.Required(), mcp.Description("The question or task to build context for")),
		mcp.WithNumber("max_tokens", mcp.Description("Token budget for the composed text (default 8000)")),
		mcp.WithString("project", mcp.Description("Only use packs of this project")),
		mcp.WithString("current_schema", mcp.Description("Current database schema as JSON, used to flag stale packs")),
	)
}

func (t *Tools) Compose(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt := req.GetString("prompt", "")
	if strings.TrimSpace(prompt) == "" {
		return mcp.NewToolResultError("'prompt' is required"), nil
	}
	current, err := schemaArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := t.deps.Contexts.ComposeContext(ctx, service.ComposeRequest{
		Prompt:        prompt,
		MaxTokens:     intArg(req, "max_tokens", 0),
		Project:       req.GetString("project", ""),
		CurrentSchema: current,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("compose failed: %v", err)), nil
	}
	return mcp.NewToolResultText(res.Text), nil
}

func (t *Tools) SearchDefinition() mcp.Tool {
	return mcp.NewTool("search_packs",
		mcp.WithDescription("Semantic search over stored context packs."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
		mcp.WithString("project", mcp.Description("Only return packs of this project")),
		mcp.WithNumber("top_k", mcp.Description("Max results (default 10)")),
	)
}

func (t *Tools) Search(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}
	candidates, err := t.deps.Contexts.Search(ctx, query, req.GetString("project", ""), intArg(req, "top_k", 0))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if len(candidates) == 0 {
		return mcp.NewToolResultText("No context packs found."), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d packs:\n\n", len(candidates))
	for i, c := range candidates {
		fmt.Fprintf(&b, "[%d] %s (%.3f)\n    %s | project: %s\n", i+1, c.Path, c.Score, c.Document.Title, c.Document.Project)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (t *Tools) CheckDefinition() mcp.Tool {
	return mcp.NewTool("check_pack_drift",
		mcp.WithDescription("Compare the schema a pack was written against with the current schema."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Pack path")),
		mcp.WithString("current_schema", mcp.Description("Current schema as JSON; defaults to the latest snapshot")),
	)
}

func (t *Tools) Check(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	if path == "" {
		return mcp.NewToolResultError("'path' is required"), nil
	}
	current, err := schemaArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := t.deps.Schemas.CheckPack(ctx, path, current)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("check failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s: %s\n%s", path, res.Level, strings.Join(res.Notes, "\n"))), nil
}

func (t *Tools) ScanDefinition() mcp.Tool {
	return mcp.NewTool("scan_drift",
		mcp.WithDescription("Check every pack against the current schema and report the results as JSON."),
		mcp.WithString("current_schema", mcp.Description("Current schema as JSON; defaults to the latest snapshot")),
	)
}

func (t *Tools) Scan(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	current, err := schemaArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := t.deps.Schemas.Scan(ctx, current)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("scan failed: %v", err)), nil
	}
	raw, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(raw)), nil
}

func schemaArg(req mcp.CallToolRequest) (map[string]interface{}, error) {
	raw := strings.TrimSpace(req.GetString("current_schema", ""))
	if raw == "" {
		return nil, nil
	}
	doc, err := schema.Parse([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid current_schema: %v", err)
	}
	return doc, nil
}

// intArg reads a numeric argument; JSON numbers arrive as float64.
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}
