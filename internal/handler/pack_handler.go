package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/ctxkit/internal/model"
	"github.com/xxxsen/ctxkit/internal/pkg/response"
	"github.com/xxxsen/ctxkit/internal/service"
)

type PackHandler struct {
	packs *service.PackService
}

func NewPackHandler(packs *service.PackService) *PackHandler {
	return &PackHandler{packs: packs}
}

func (h *PackHandler) Create(c *gin.Context) {
	var req service.PackInput
	if !bindJSON(c, &req) {
		return
	}
	pack, err := h.packs.Ingest(c.Request.Context(), req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, pack)
}

func (h *PackHandler) List(c *gin.Context) {
	kind := model.DocKind(c.DefaultQuery("kind", string(model.DocKindPack)))
	if kind == "all" {
		kind = ""
	} else if !kind.Valid() {
		badRequest(c, "unknown kind")
		return
	}
	ctx := c.Request.Context()
	docs, err := h.packs.List(ctx, kind, queryUint(c, "limit"), queryUint(c, "offset"))
	if err != nil {
		handleError(c, err)
		return
	}
	total, err := h.packs.Count(ctx, kind)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"documents": docs, "total": total})
}

func (h *PackHandler) Get(c *gin.Context) {
	pack, err := h.packs.Get(c.Request.Context(), pathParam(c, "path"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, pack)
}

func (h *PackHandler) Delete(c *gin.Context) {
	if err := h.packs.Delete(c.Request.Context(), pathParam(c, "path")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{})
}

func (h *PackHandler) CreateChat(c *gin.Context) {
	var req service.ChatInput
	if !bindJSON(c, &req) {
		return
	}
	doc, err := h.packs.IngestChat(c.Request.Context(), req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

type summarizeRequest struct {
	Path string `json:"path"`
}

func (h *PackHandler) Summarize(c *gin.Context) {
	var req summarizeRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Path == "" {
		badRequest(c, "path required")
		return
	}
	pack, err := h.packs.Summarize(c.Request.Context(), req.Path)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, pack)
}
