package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
)

type RouterOptions struct {
	AllowedOrigins []string
	Debug          bool
	// Metrics mounts /metrics and the gin request collectors.
	Metrics bool
}

func NewRouter(h *Handler, opts RouterOptions, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	if opts.Debug {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(ZapLogger(logger.Named("HTTP")))
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(opts.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = opts.AllowedOrigins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", requestIDHeader}
	corsConfig.ExposeHeaders = []string{requestIDHeader}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	health := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) }
	router.GET("/health", health)
	router.HEAD("/health", health)

	h.RegisterRoutes(router)

	if opts.Metrics {
		ginprometheus.NewPrometheus("gin").Use(router)
	}
	return router
}
