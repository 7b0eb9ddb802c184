package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/ctxkit/internal/artifact"
	"github.com/xxxsen/ctxkit/internal/pkg/response"
)

type ArtifactHandler struct {
	store *artifact.Store
}

func NewArtifactHandler(store *artifact.Store) *ArtifactHandler {
	return &ArtifactHandler{store: store}
}

func (h *ArtifactHandler) Get(c *gin.Context) {
	item, err := h.store.Load(c.Request.Context(), c.Param("hash"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, item)
}
