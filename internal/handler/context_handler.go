package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/ctxkit/internal/pkg/response"
	"github.com/xxxsen/ctxkit/internal/service"
)

type ContextHandler struct {
	contexts *service.ContextService
	index    *service.IndexService
}

func NewContextHandler(contexts *service.ContextService, index *service.IndexService) *ContextHandler {
	return &ContextHandler{contexts: contexts, index: index}
}

func (h *ContextHandler) Compose(c *gin.Context) {
	var req service.ComposeRequest
	if !bindJSON(c, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		badRequest(c, "prompt required")
		return
	}
	res, err := h.contexts.ComposeContext(c.Request.Context(), req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

type searchRequest struct {
	Query   string `json:"query"`
	Project string `json:"project"`
	TopK    int    `json:"top_k"`
}

func (h *ContextHandler) Search(c *gin.Context) {
	var req searchRequest
	if !bindJSON(c, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		badRequest(c, "query required")
		return
	}
	candidates, err := h.contexts.Search(c.Request.Context(), req.Query, req.Project, req.TopK)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"candidates": candidates})
}

func (h *ContextHandler) RebuildIndex(c *gin.Context) {
	info, err := h.index.Rebuild(c.Request.Context())
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, info)
}

func (h *ContextHandler) IndexInfo(c *gin.Context) {
	info, ok := h.index.Info()
	response.Success(c, gin.H{"loaded": ok, "index": info})
}
