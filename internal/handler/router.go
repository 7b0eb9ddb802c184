package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xxxsen/ctxkit/internal/middleware"
)

type RouterDeps struct {
	Contexts  *ContextHandler
	Packs     *PackHandler
	Artifacts *ArtifactHandler
	Schemas   *SchemaHandler
	// RateLimitRPS applies to the compose and search endpoints only.
	RateLimitRPS   float64
	RateLimitBurst int
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	limited := api.Group("")
	limited.Use(middleware.RateLimit(deps.RateLimitRPS, deps.RateLimitBurst))
	limited.POST("/context/compose", deps.Contexts.Compose)
	limited.POST("/context/search", deps.Contexts.Search)

	api.GET("/index", deps.Contexts.IndexInfo)
	api.POST("/index/rebuild", deps.Contexts.RebuildIndex)

	api.POST("/packs", deps.Packs.Create)
	api.GET("/packs", deps.Packs.List)
	api.GET("/packs/*path", deps.Packs.Get)
	api.DELETE("/packs/*path", deps.Packs.Delete)
	api.POST("/chats", deps.Packs.CreateChat)
	api.POST("/chats/summarize", deps.Packs.Summarize)

	api.GET("/artifacts/:hash", deps.Artifacts.Get)

	api.POST("/schemas", deps.Schemas.Snapshot)
	api.GET("/schemas", deps.Schemas.History)
	api.POST("/schemas/fingerprint", deps.Schemas.Fingerprint)
	api.POST("/drift/check", deps.Schemas.Check)
	api.POST("/drift/scan", deps.Schemas.Scan)
	api.POST("/drift/diff", deps.Schemas.Diff)

	api.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
