package handler

import (
	"net/http"

	"my-page/internal/logger"
	"my-page/internal/model"
	"my-page/internal/service"

	"github.com/gin-gonic/gin"
)

const serverName = "My Page Local Server"

type SystemHandler struct{ store *service.Store }

func NewSystemHandler(store *service.Store) *SystemHandler {
	return &SystemHandler{store: store}
}

// GET /api/health
func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, model.HealthResponse{Status: "ok", Timestamp: isoNow(), Server: serverName})
}

// GET /api/stats
func (h *SystemHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.store.Stats(c.Request.Context()))
}

// POST /api/backup
func (h *SystemHandler) Backup(c *gin.Context) {
	stamp, files, err := h.store.Backup(c.Request.Context())
	if err != nil {
		logger.Error("backup failed", "err", err)
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, model.BackupResponse{
		Success:   true,
		Message:   "数据备份成功",
		Timestamp: stamp,
		Files:     files,
	})
}
