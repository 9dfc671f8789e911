package handler

import (
	"net/http"

	"my-page/internal/config"
	"my-page/internal/logger"
	"my-page/internal/middleware"
	"my-page/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// NewRouter wires every /api route onto a fresh gin engine.
func NewRouter(cfg *config.Config, store *service.Store) *gin.Engine {
	secret := []byte(cfg.Auth.JWTSecret)
	docH := NewDocumentHandler(store)
	sysH := NewSystemHandler(store)
	authH := NewAuthHandler(service.NewAuthService(store, cfg.Auth.PasswordHash), secret)

	r := gin.New()
	r.Use(gin.CustomRecovery(func(c *gin.Context, err any) {
		logger.Error("panic", "err", err, "path", c.Request.URL.Path)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "服务器内部错误"})
	}))
	r.Use(middleware.RequestID(), middleware.Identity(secret), middleware.AccessLog())
	corsCfg := cors.Config{
		AllowOrigins:  cfg.Server.CORSOrigins,
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "If-Match", middleware.RequestIDHeader},
		ExposeHeaders: []string{"ETag", "X-Revision", middleware.RequestIDHeader},
	}
	if len(corsCfg.AllowOrigins) == 0 {
		corsCfg.AllowOrigins = nil
		corsCfg.AllowAllOrigins = true
	}
	r.Use(cors.New(corsCfg))
	r.Use(bodyLimit(cfg.BodyLimit()))

	api := r.Group("/api")
	api.GET("/health", sysH.Health)
	api.GET("/stats", sysH.Stats)
	api.POST("/backup", sysH.Backup)
	api.POST("/login", authH.Login)
	api.GET("/:type", docH.Get)
	api.POST("/:type", docH.Put)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "not found"})
	})
	return r
}

func bodyLimit(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if n > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}
