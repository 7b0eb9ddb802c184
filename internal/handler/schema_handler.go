package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/ctxkit/internal/pkg/response"
	"github.com/xxxsen/ctxkit/internal/service"
)

type SchemaHandler struct {
	schemas *service.SchemaService
}

func NewSchemaHandler(schemas *service.SchemaService) *SchemaHandler {
	return &SchemaHandler{schemas: schemas}
}

type snapshotRequest struct {
	Slug   string                 `json:"slug"`
	Schema map[string]interface{} `json:"schema"`
}

func (h *SchemaHandler) Snapshot(c *gin.Context) {
	var req snapshotRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Schema == nil {
		badRequest(c, "schema required")
		return
	}
	snap, err := h.schemas.Snapshot(c.Request.Context(), req.Slug, req.Schema)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, snap)
}

func (h *SchemaHandler) History(c *gin.Context) {
	items, err := h.schemas.History(c.Request.Context(), queryUint(c, "limit"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"snapshots": items})
}

func (h *SchemaHandler) Fingerprint(c *gin.Context) {
	var req snapshotRequest
	if !bindJSON(c, &req) {
		return
	}
	fp, err := h.schemas.Fingerprint(req.Schema)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"fingerprint": fp})
}

type driftRequest struct {
	Path          string                 `json:"path"`
	CurrentSchema map[string]interface{} `json:"current_schema"`
}

func (h *SchemaHandler) Check(c *gin.Context) {
	var req driftRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Path == "" {
		badRequest(c, "path required")
		return
	}
	res, err := h.schemas.CheckPack(c.Request.Context(), req.Path, req.CurrentSchema)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *SchemaHandler) Scan(c *gin.Context) {
	var req driftRequest
	if !bindJSON(c, &req) {
		return
	}
	results, err := h.schemas.Scan(c.Request.Context(), req.CurrentSchema)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"packs": results})
}

type diffRequest struct {
	Old map[string]interface{} `json:"old"`
	New map[string]interface{} `json:"new"`
}

func (h *SchemaHandler) Diff(c *gin.Context) {
	var req diffRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Old == nil || req.New == nil {
		badRequest(c, "old and new schemas required")
		return
	}
	response.Success(c, h.schemas.Diff(req.Old, req.New))
}
