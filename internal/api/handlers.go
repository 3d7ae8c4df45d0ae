package api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"reelforge/internal/database"
	"reelforge/internal/ledger"
	"reelforge/internal/models"
	"reelforge/internal/pipeline"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	webhookSecretHeader = "X-Webhook-Secret"
)

// VideoService is the request side of the production pipeline.
type VideoService interface {
	RequestScript(ctx context.Context, userID uuid.UUID, req pipeline.ScriptRequest) (*models.Script, error)
	GetScript(ctx context.Context, userID, scriptID uuid.UUID) (*models.Script, error)
	ListScripts(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Script, error)
	DeleteScript(ctx context.Context, userID, scriptID uuid.UUID) error
	RequestVideo(ctx context.Context, userID uuid.UUID, req pipeline.VideoRequest) (*models.Video, error)
	GetVideo(ctx context.Context, userID, videoID uuid.UUID) (*models.Video, error)
	ListVideos(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Video, error)
	DeleteVideo(ctx context.Context, userID, videoID uuid.UUID) error
	PublishVideo(ctx context.Context, userID, videoID uuid.UUID, req pipeline.PublishRequest) (uuid.UUID, error)
	ConnectPlatform(ctx context.Context, account *models.PlatformAccount) error
}

// CreditReader exposes balances and statements.
type CreditReader interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (int64, error)
	History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.CreditTransaction, error)
}

// PaymentEventHandler applies a verified payment event.
type PaymentEventHandler interface {
	Handle(ctx context.Context, ev models.PaymentEvent) error
}

type Handler struct {
	videos        VideoService
	credits       CreditReader
	payments      PaymentEventHandler
	verifier      *TokenVerifier
	webhookSecret []byte
	logger        *zap.Logger
}

func NewHandler(videos VideoService, credits CreditReader, payments PaymentEventHandler, verifier *TokenVerifier, webhookSecret string, logger *zap.Logger) *Handler {
	return &Handler{
		videos:        videos,
		credits:       credits,
		payments:      payments,
		verifier:      verifier,
		webhookSecret: []byte(webhookSecret),
		logger:        logger.Named("APIHandler"),
	}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.POST("/webhooks/payments", h.paymentWebhook)

	v1 := r.Group("/api/v1", h.Auth())
	{
		v1.GET("/credits/balance", h.getBalance)
		v1.GET("/credits/history", h.getHistory)

		v1.POST("/scripts", h.createScript)
		v1.GET("/scripts", h.listScripts)
		v1.GET("/scripts/:id", h.getScript)
		v1.DELETE("/scripts/:id", h.deleteScript)

		v1.POST("/videos", h.createVideo)
		v1.GET("/videos", h.listVideos)
		v1.GET("/videos/:id", h.getVideo)
		v1.DELETE("/videos/:id", h.deleteVideo)
		v1.POST("/videos/:id/publish", h.publishVideo)

		v1.PUT("/platform/youtube", h.connectYouTube)
	}
}

func page(c *gin.Context, def, maxLimit int) (limit, offset int) {
	limit, _ = strconv.Atoi(c.Query("limit"))
	offset, _ = strconv.Atoi(c.Query("offset"))
	database.SanitizeLimit(&limit, def, maxLimit)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func pathID(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: malformed id %q", models.ErrInvalidInput, c.Param("id"))
	}
	return id, nil
}

func (h *Handler) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", models.ErrInvalidInput, err))
		return false
	}
	return true
}

func (h *Handler) getBalance(c *gin.Context) {
	userID := currentUser(c)
	balance, err := h.credits.GetBalance(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": userID, "balance": balance})
}

func (h *Handler) getHistory(c *gin.Context) {
	limit, offset := page(c, ledger.DefaultHistoryLimit, ledger.MaxHistoryLimit)
	history, err := h.credits.History(c.Request.Context(), currentUser(c), limit, offset)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": history, "limit": limit, "offset": offset})
}

func (h *Handler) createScript(c *gin.Context) {
	var req pipeline.ScriptRequest
	if !h.bind(c, &req) {
		return
	}
	script, err := h.videos.RequestScript(c.Request.Context(), currentUser(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, script)
}

func (h *Handler) listScripts(c *gin.Context) {
	limit, offset := page(c, defaultPageSize, maxPageSize)
	scripts, err := h.videos.ListScripts(c.Request.Context(), currentUser(c), limit, offset)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scripts": scripts, "limit": limit, "offset": offset})
}

func (h *Handler) getScript(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	script, err := h.videos.GetScript(c.Request.Context(), currentUser(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, script)
}

func (h *Handler) createVideo(c *gin.Context) {
	var req pipeline.VideoRequest
	if !h.bind(c, &req) {
		return
	}
	video, err := h.videos.RequestVideo(c.Request.Context(), currentUser(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, video)
}

func (h *Handler) listVideos(c *gin.Context) {
	limit, offset := page(c, defaultPageSize, maxPageSize)
	videos, err := h.videos.ListVideos(c.Request.Context(), currentUser(c), limit, offset)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"videos": videos, "limit": limit, "offset": offset})
}

func (h *Handler) getVideo(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	video, err := h.videos.GetVideo(c.Request.Context(), currentUser(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, video)
}

func (h *Handler) deleteScript(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.videos.DeleteScript(c.Request.Context(), currentUser(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) deleteVideo(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.videos.DeleteVideo(c.Request.Context(), currentUser(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) publishVideo(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	var req pipeline.PublishRequest
	if c.Request.ContentLength != 0 && !h.bind(c, &req) {
		return
	}
	jobID, err := h.videos.PublishVideo(c.Request.Context(), currentUser(c), id, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"videoId": id, "jobId": jobID})
}

type connectPlatformRequest struct {
	AccessToken  string    `json:"accessToken" binding:"required"`
	RefreshToken string    `json:"refreshToken" binding:"required"`
	Expiry       time.Time `json:"expiry"`
}

func (h *Handler) connectYouTube(c *gin.Context) {
	var req connectPlatformRequest
	if !h.bind(c, &req) {
		return
	}
	err := h.videos.ConnectPlatform(c.Request.Context(), &models.PlatformAccount{
		UserID:       currentUser(c),
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		Expiry:       req.Expiry,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) paymentWebhook(c *gin.Context) {
	got := []byte(c.GetHeader(webhookSecretHeader))
	if len(h.webhookSecret) == 0 || subtle.ConstantTimeCompare(got, h.webhookSecret) != 1 {
		h.fail(c, models.ErrUnauthorized)
		return
	}
	var ev models.PaymentEvent
	if !h.bind(c, &ev) {
		return
	}
	if err := h.payments.Handle(c.Request.Context(), ev); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
