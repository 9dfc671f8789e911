package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"my-page/internal/logger"
	"my-page/internal/model"
	"my-page/internal/service"

	"github.com/gin-gonic/gin"
)

type DocumentHandler struct{ store *service.Store }

func NewDocumentHandler(store *service.Store) *DocumentHandler {
	return &DocumentHandler{store: store}
}

// GET /api/:type
func (h *DocumentHandler) Get(c *gin.Context) {
	t, err := model.ParseDocType(c.Param("type"))
	if err != nil {
		fail(c, err)
		return
	}
	doc, err := h.store.Get(c.Request.Context(), t)
	if err != nil {
		logger.Error("document.get failed", "type", t.String(), "err", err)
		fail(c, err)
		return
	}
	setRevision(c, doc.Revision)
	c.Data(http.StatusOK, "application/json; charset=utf-8", doc.Body)
}

// POST /api/:type  body: any JSON value
func (h *DocumentHandler) Put(c *gin.Context) {
	t, err := model.ParseDocType(c.Param("type"))
	if err != nil {
		fail(c, err)
		return
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"success": false, "error": "request body too large"})
			return
		}
		fail(c, err)
		return
	}

	rev, err := h.store.Put(c.Request.Context(), t, body, ifMatch(c))
	if err != nil {
		logger.Error("document.put failed", "type", t.String(), "err", err)
		fail(c, err)
		return
	}
	setRevision(c, rev)
	c.JSON(http.StatusOK, model.SaveResponse{
		Success:   true,
		Message:   fmt.Sprintf("%s数据保存成功", t),
		Timestamp: isoNow(),
		Revision:  rev,
	})
}

func setRevision(c *gin.Context, rev string) {
	c.Header("ETag", `"`+rev+`"`)
	c.Header("X-Revision", rev)
}

func ifMatch(c *gin.Context) string {
	v := strings.TrimSpace(c.GetHeader("If-Match"))
	v = strings.TrimPrefix(v, "W/")
	return strings.Trim(v, `"`)
}

func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrUnknownDocType):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrInvalidDocument):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, service.ErrBadCredentials):
		status = http.StatusUnauthorized
	}
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

// isoNow matches JavaScript's Date.prototype.toISOString.
func isoNow() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}
