package handler

import (
	"net/http"

	"my-page/internal/logger"
	"my-page/internal/middleware"
	"my-page/internal/model"
	"my-page/internal/service"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	auth   *service.AuthService
	secret []byte
}

func NewAuthHandler(auth *service.AuthService, secret []byte) *AuthHandler {
	return &AuthHandler{auth: auth, secret: secret}
}

// POST /api/login  body: {"username":"...","password":"..."}
func (h *AuthHandler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "请输入用户名和密码"})
		return
	}

	u, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		logger.Warn("login.failed", "username", req.Username, "err", err)
		fail(c, err)
		return
	}

	token, err := middleware.IssueToken(h.secret, u)
	if err != nil {
		logger.Error("login.token", "err", err)
		fail(c, err)
		return
	}
	logger.Info("login.ok", "uid", u.ID, "name", u.Username, "role", u.Role)
	c.JSON(http.StatusOK, model.LoginResponse{Success: true, Token: token, User: *u})
}
