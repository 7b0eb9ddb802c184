package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ctxkit/internal/middleware"
	"github.com/xxxsen/ctxkit/internal/pkg/errcode"
	"github.com/xxxsen/ctxkit/internal/pkg/response"
)

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	requestID, _ := c.Get(middleware.ContextRequestIDKey)
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.Any("request_id", requestID),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	response.Fail(c, err)
}

func badRequest(c *gin.Context, msg string) {
	response.Error(c, errcode.ErrInvalid, msg)
}

func queryUint(c *gin.Context, key string) uint {
	value := c.Query(key)
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0
	}
	return uint(parsed)
}

// pathParam reads a catch-all parameter without its leading slash.
func pathParam(c *gin.Context, key string) string {
	return strings.TrimPrefix(c.Param(key), "/")
}

// bindJSON decodes the body keeping numbers as json.Number, so schema
// documents fingerprint the same as ones read with schema.Parse.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if c.Request.Body == nil {
		badRequest(c, http.StatusText(http.StatusBadRequest))
		return false
	}
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		badRequest(c, http.StatusText(http.StatusBadRequest))
		return false
	}
	return true
}
