package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"reelforge/internal/ledger"
	"reelforge/internal/models"
	"reelforge/internal/pipeline"
)

const (
	testSecret        = "test-jwt-secret"
	testWebhookSecret = "hook-secret"
)

type videoServiceMock struct {
	mock.Mock
}

func (m *videoServiceMock) RequestScript(ctx context.Context, userID uuid.UUID, req pipeline.ScriptRequest) (*models.Script, error) {
	args := m.Called(ctx, userID, req)
	s, _ := args.Get(0).(*models.Script)
	return s, args.Error(1)
}

func (m *videoServiceMock) GetScript(ctx context.Context, userID, scriptID uuid.UUID) (*models.Script, error) {
	args := m.Called(ctx, userID, scriptID)
	s, _ := args.Get(0).(*models.Script)
	return s, args.Error(1)
}

func (m *videoServiceMock) ListScripts(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Script, error) {
	args := m.Called(ctx, userID, limit, offset)
	s, _ := args.Get(0).([]*models.Script)
	return s, args.Error(1)
}

func (m *videoServiceMock) RequestVideo(ctx context.Context, userID uuid.UUID, req pipeline.VideoRequest) (*models.Video, error) {
	args := m.Called(ctx, userID, req)
	v, _ := args.Get(0).(*models.Video)
	return v, args.Error(1)
}

func (m *videoServiceMock) GetVideo(ctx context.Context, userID, videoID uuid.UUID) (*models.Video, error) {
	args := m.Called(ctx, userID, videoID)
	v, _ := args.Get(0).(*models.Video)
	return v, args.Error(1)
}

func (m *videoServiceMock) ListVideos(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.Video, error) {
	args := m.Called(ctx, userID, limit, offset)
	v, _ := args.Get(0).([]*models.Video)
	return v, args.Error(1)
}

func (m *videoServiceMock) DeleteScript(ctx context.Context, userID, scriptID uuid.UUID) error {
	return m.Called(ctx, userID, scriptID).Error(0)
}

func (m *videoServiceMock) DeleteVideo(ctx context.Context, userID, videoID uuid.UUID) error {
	return m.Called(ctx, userID, videoID).Error(0)
}

func (m *videoServiceMock) PublishVideo(ctx context.Context, userID, videoID uuid.UUID, req pipeline.PublishRequest) (uuid.UUID, error) {
	args := m.Called(ctx, userID, videoID, req)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *videoServiceMock) ConnectPlatform(ctx context.Context, account *models.PlatformAccount) error {
	return m.Called(ctx, account).Error(0)
}

type creditReaderMock struct {
	mock.Mock
}

func (m *creditReaderMock) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *creditReaderMock) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.CreditTransaction, error) {
	args := m.Called(ctx, userID, limit, offset)
	txs, _ := args.Get(0).([]models.CreditTransaction)
	return txs, args.Error(1)
}

type paymentsMock struct {
	mock.Mock
}

func (m *paymentsMock) Handle(ctx context.Context, ev models.PaymentEvent) error {
	return m.Called(ctx, ev).Error(0)
}

type apiHarness struct {
	router   *gin.Engine
	videos   *videoServiceMock
	credits  *creditReaderMock
	payments *paymentsMock
	userID   uuid.UUID
}

func newHarness(t *testing.T) *apiHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zap.NewNop()
	verifier, err := NewTokenVerifier(testSecret, logger)
	require.NoError(t, err)

	h := &apiHarness{
		videos:   &videoServiceMock{},
		credits:  &creditReaderMock{},
		payments: &paymentsMock{},
		userID:   uuid.New(),
	}
	handler := NewHandler(h.videos, h.credits, h.payments, verifier, testWebhookSecret, logger)
	h.router = NewRouter(handler, RouterOptions{}, logger)

	t.Cleanup(func() {
		h.videos.AssertExpectations(t)
		h.credits.AssertExpectations(t)
		h.payments.AssertExpectations(t)
	})
	return h
}

func signToken(t *testing.T, secret, subject string, expiresIn time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func (h *apiHarness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return h.doWithHeaders(t, method, path, body, map[string]string{
		"Authorization": "Bearer " + signToken(t, testSecret, h.userID.String(), time.Hour),
	})
}

func (h *apiHarness) doWithHeaders(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func TestHealth(t *testing.T) {
	h := newHarness(t)

	w := h.doWithHeaders(t, http.MethodGet, "/health", nil, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestAuth(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic abc"},
		{"garbage token", "Bearer not-a-jwt"},
		{"wrong secret", "Bearer " + signToken(t, "other-secret", uuid.NewString(), time.Hour)},
		{"expired", "Bearer " + signToken(t, testSecret, uuid.NewString(), -time.Minute)},
		{"subject not a uuid", "Bearer " + signToken(t, testSecret, "alice", time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.header != "" {
				headers["Authorization"] = tt.header
			}
			w := h.doWithHeaders(t, http.MethodGet, "/api/v1/credits/balance", nil, headers)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestGetBalance(t *testing.T) {
	h := newHarness(t)
	h.credits.On("GetBalance", mock.Anything, h.userID).Return(int64(42), nil).Once()

	w := h.do(t, http.MethodGet, "/api/v1/credits/balance", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"userId":%q,"balance":42}`, h.userID), w.Body.String())
}

func TestGetBalance_UnknownUser(t *testing.T) {
	h := newHarness(t)
	h.credits.On("GetBalance", mock.Anything, h.userID).Return(int64(0), models.ErrUserNotFound).Once()

	w := h.do(t, http.MethodGet, "/api/v1/credits/balance", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetHistory_SanitizesPaging(t *testing.T) {
	h := newHarness(t)
	h.credits.On("History", mock.Anything, h.userID, ledger.DefaultHistoryLimit, 0).
		Return([]models.CreditTransaction{}, nil).Once()
	h.credits.On("History", mock.Anything, h.userID, 5, 10).
		Return([]models.CreditTransaction{}, nil).Once()

	w := h.do(t, http.MethodGet, "/api/v1/credits/history?limit=500&offset=-3", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodGet, "/api/v1/credits/history?limit=5&offset=10", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateScript(t *testing.T) {
	h := newHarness(t)
	req := pipeline.ScriptRequest{Niche: "history", Keywords: []string{"rome"}, Length: 60}
	script := &models.Script{ID: uuid.New(), UserID: h.userID, Status: models.ScriptPending}
	h.videos.On("RequestScript", mock.Anything, h.userID, req).Return(script, nil).Once()

	w := h.do(t, http.MethodPost, "/api/v1/scripts", req)

	require.Equal(t, http.StatusAccepted, w.Code)
	var got models.Script
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, script.ID, got.ID)
}

func TestCreateScript_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid", fmt.Errorf("%w: niche is required", models.ErrInvalidInput), http.StatusBadRequest},
		{"no credits", models.ErrInsufficientCredits, http.StatusPaymentRequired},
		{"conflict", models.ErrLedgerConflict, http.StatusConflict},
		{"internal", fmt.Errorf("db down"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.videos.On("RequestScript", mock.Anything, h.userID, mock.Anything).Return(nil, tt.err).Once()

			w := h.do(t, http.MethodPost, "/api/v1/scripts", pipeline.ScriptRequest{Niche: "x"})

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusInternalServerError {
				assert.NotContains(t, decodeError(t, w), "db down")
			}
		})
	}
}

func TestCreateScript_MalformedBody(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scripts", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, h.userID.String(), time.Hour))
	w := httptest.NewRecorder()

	h.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetVideo(t *testing.T) {
	h := newHarness(t)
	videoID := uuid.New()
	h.videos.On("GetVideo", mock.Anything, h.userID, videoID).
		Return(&models.Video{ID: videoID, UserID: h.userID, Status: models.VideoProcessing}, nil).Once()

	w := h.do(t, http.MethodGet, "/api/v1/videos/"+videoID.String(), nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), videoID.String())
}

func TestGetVideo_BadID(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/api/v1/videos/not-a-uuid", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateVideo(t *testing.T) {
	h := newHarness(t)
	req := pipeline.VideoRequest{ScriptID: uuid.New(), Voice: "alloy"}
	h.videos.On("RequestVideo", mock.Anything, h.userID, req).
		Return(&models.Video{ID: uuid.New(), UserID: h.userID, Status: models.VideoRequested}, nil).Once()

	w := h.do(t, http.MethodPost, "/api/v1/videos", req)

	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestListVideos(t *testing.T) {
	h := newHarness(t)
	h.videos.On("ListVideos", mock.Anything, h.userID, 2, 4).Return([]*models.Video{}, nil).Once()

	w := h.do(t, http.MethodGet, "/api/v1/videos?limit=2&offset=4", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"videos":[],"limit":2,"offset":4}`, w.Body.String())
}

func TestDeleteVideo(t *testing.T) {
	h := newHarness(t)
	videoID := uuid.New()
	h.videos.On("DeleteVideo", mock.Anything, h.userID, videoID).Return(nil).Once()

	w := h.do(t, http.MethodDelete, "/api/v1/videos/"+videoID.String(), nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestDeleteScript(t *testing.T) {
	h := newHarness(t)
	scriptID, missing := uuid.New(), uuid.New()
	h.videos.On("DeleteScript", mock.Anything, h.userID, scriptID).Return(nil).Once()
	h.videos.On("DeleteScript", mock.Anything, h.userID, missing).Return(models.ErrNotFound).Once()

	w := h.do(t, http.MethodDelete, "/api/v1/scripts/"+scriptID.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = h.do(t, http.MethodDelete, "/api/v1/scripts/"+missing.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPublishVideoInProgressConflicts(t *testing.T) {
	h := newHarness(t)
	videoID := uuid.New()
	h.videos.On("PublishVideo", mock.Anything, h.userID, videoID, pipeline.PublishRequest{}).
		Return(uuid.Nil, fmt.Errorf("%w: video %s has a publish in progress", models.ErrInvalidState, videoID)).Once()

	w := h.do(t, http.MethodPost, "/api/v1/videos/"+videoID.String()+"/publish", pipeline.PublishRequest{})

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPublishVideo(t *testing.T) {
	h := newHarness(t)
	videoID, jobID := uuid.New(), uuid.New()
	req := pipeline.PublishRequest{Title: "Rome", Tags: []string{"history"}}
	h.videos.On("PublishVideo", mock.Anything, h.userID, videoID, req).Return(jobID, nil).Once()

	w := h.do(t, http.MethodPost, "/api/v1/videos/"+videoID.String()+"/publish", req)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"videoId":%q,"jobId":%q}`, videoID, jobID), w.Body.String())
}

func TestPublishVideo_EmptyBodyAndGates(t *testing.T) {
	h := newHarness(t)
	videoID := uuid.New()
	h.videos.On("PublishVideo", mock.Anything, h.userID, videoID, pipeline.PublishRequest{}).
		Return(uuid.Nil, models.ErrPlatformNotConnected).Once()

	w := h.do(t, http.MethodPost, "/api/v1/videos/"+videoID.String()+"/publish", nil)

	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
}

func TestConnectYouTube(t *testing.T) {
	h := newHarness(t)
	expiry := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h.videos.On("ConnectPlatform", mock.Anything, mock.MatchedBy(func(a *models.PlatformAccount) bool {
		return a.UserID == h.userID && a.AccessToken == "at" && a.RefreshToken == "rt" && a.Expiry.Equal(expiry)
	})).Return(nil).Once()

	w := h.do(t, http.MethodPut, "/api/v1/platform/youtube", gin.H{
		"accessToken":  "at",
		"refreshToken": "rt",
		"expiry":       expiry,
	})

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestConnectYouTube_MissingTokens(t *testing.T) {
	h := newHarness(t)

	w := h.do(t, http.MethodPut, "/api/v1/platform/youtube", gin.H{"accessToken": "at"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPaymentWebhook(t *testing.T) {
	h := newHarness(t)
	ev := models.PaymentEvent{
		EventType:   models.PaymentCheckoutCompleted,
		UserID:      uuid.New(),
		Amount:      100,
		ExternalRef: "cs_1",
	}
	h.payments.On("Handle", mock.Anything, ev).Return(nil).Once()

	w := h.doWithHeaders(t, http.MethodPost, "/webhooks/payments", ev, map[string]string{
		webhookSecretHeader: testWebhookSecret,
	})

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPaymentWebhook_RejectsBadSecret(t *testing.T) {
	h := newHarness(t)

	w := h.doWithHeaders(t, http.MethodPost, "/webhooks/payments", models.PaymentEvent{}, map[string]string{
		webhookSecretHeader: "wrong",
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	h := newHarness(t)
	h.credits.On("GetBalance", mock.Anything, h.userID).Return(int64(0), nil).Once()

	w := h.doWithHeaders(t, http.MethodGet, "/api/v1/credits/balance", nil, map[string]string{
		"Authorization":  "Bearer " + signToken(t, testSecret, h.userID.String(), time.Hour),
		requestIDHeader: "req-1",
	})

	assert.Equal(t, "req-1", w.Header().Get(requestIDHeader))
}
