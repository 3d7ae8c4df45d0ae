// Package youtube uploads rendered videos with the YouTube Data API.
package youtube

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"reelforge/internal/adapters"
	"reelforge/internal/config"
	"reelforge/internal/models"
)

const (
	privacyPublic  = "public"
	privacyPrivate = "private"
)

type Platform struct {
	oauth      *oauth2.Config
	categoryID string
	language   string
	endpoint   string
	logger     *zap.Logger
}

var _ adapters.VideoPlatform = (*Platform)(nil)

func New(cfg config.YouTubeConfig, logger *zap.Logger) *Platform {
	return &Platform{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{yt.YoutubeUploadScope, yt.YoutubeScope},
		},
		categoryID: cfg.CategoryID,
		language:   cfg.Language,
		logger:     logger.Named("YouTube"),
	}
}

// WithEndpoint points the client at another API root. Used in tests.
func (p *Platform) WithEndpoint(endpoint string) *Platform {
	p.endpoint = endpoint
	return p
}

func (p *Platform) Upload(ctx context.Context, account models.PlatformAccount, video []byte, meta adapters.UploadMetadata, scheduledAt *time.Time) (res adapters.UploadResult, err error) {
	start := time.Now()
	defer func() { adapters.Observe("youtube", "upload", start, err) }()

	token := &oauth2.Token{
		AccessToken:  account.AccessToken,
		RefreshToken: account.RefreshToken,
		Expiry:       account.Expiry,
		TokenType:    "Bearer",
	}
	opts := []option.ClientOption{option.WithHTTPClient(p.oauth.Client(ctx, token))}
	if p.endpoint != "" {
		opts = append(opts, option.WithEndpoint(p.endpoint))
	}
	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return adapters.UploadResult{}, fmt.Errorf("youtube service: %w", err)
	}

	v, status := p.buildVideo(meta, scheduledAt)
	uploaded, err := svc.Videos.Insert([]string{"snippet", "status"}, v).
		Media(bytes.NewReader(video)).
		Context(ctx).
		Do()
	if err != nil {
		return adapters.UploadResult{}, classify(err)
	}

	p.logger.Info("Video uploaded",
		zap.String("external_id", uploaded.Id),
		zap.String("status", string(status)),
		zap.Int("bytes", len(video)),
	)
	return adapters.UploadResult{ExternalID: uploaded.Id, Status: status}, nil
}

// buildVideo uploads scheduled videos as private with publishAt; everything else goes public.
func (p *Platform) buildVideo(meta adapters.UploadMetadata, scheduledAt *time.Time) (*yt.Video, models.PublishStatus) {
	v := &yt.Video{
		Snippet: &yt.VideoSnippet{
			Title:                meta.Title,
			Description:          meta.Description,
			Tags:                 meta.Tags,
			CategoryId:           p.categoryID,
			DefaultLanguage:      p.language,
			DefaultAudioLanguage: p.language,
		},
		Status: &yt.VideoStatus{PrivacyStatus: privacyPublic},
	}
	if scheduledAt != nil {
		v.Status.PrivacyStatus = privacyPrivate
		v.Status.PublishAt = scheduledAt.UTC().Format(time.RFC3339)
		return v, models.PublishUploaded
	}
	return v, models.PublishPublished
}

func classify(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return adapters.UpstreamError(gerr.Code, "youtube insert", err)
	}
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		// Refresh token revoked or invalid: the user must reconnect.
		return fmt.Errorf("%w: %w: %v", models.ErrPlatformNotConnected, models.ErrTerminalUpstream, err)
	}
	return adapters.UpstreamError(0, "youtube insert", err)
}
