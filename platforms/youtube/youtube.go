package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	youtubeapi "google.golang.org/api/youtube/v3"

	"orbix-worker/config"
	"orbix-worker/models"
	"orbix-worker/platforms"
)

// categoryEntertainment ist die YouTube-Kategorie, unter der Orbix-Shorts
// laufen.
const categoryEntertainment = "24"

// Client veröffentlicht Renders als YouTube Shorts und liest deren
// Statistiken. Auth läuft über den Refresh-Token-Flow.
type Client struct {
	service *youtubeapi.Service
	logger  *zap.Logger
}

// NewClient erstellt den YouTube-Collaborator aus den OAuth-Credentials.
func NewClient(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Client, error) {
	if cfg.YouTubeClientID == "" || cfg.YouTubeClientSecret == "" || cfg.YouTubeRefreshToken == "" {
		return nil, errors.New("youtube credentials not configured")
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.YouTubeClientID,
		ClientSecret: cfg.YouTubeClientSecret,
		Endpoint:     googleoauth.Endpoint,
		Scopes:       []string{youtubeapi.YoutubeUploadScope, youtubeapi.YoutubeReadonlyScope},
	}
	token := &oauth2.Token{RefreshToken: cfg.YouTubeRefreshToken}
	httpClient := oauthCfg.Client(ctx, token)

	service, err := youtubeapi.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create YouTube service: %w", err)
	}
	return &Client{service: service, logger: logger}, nil
}

// Name gibt den Plattform-Bezeichner zurück.
func (c *Client) Name() string { return models.PlatformYouTube }

// Publish lädt das gerenderte Video von der Output-URL und reicht es bei
// YouTube ein.
func (c *Client) Publish(ctx context.Context, job platforms.Job) (string, error) {
	tmpPath, err := c.download(ctx, job.VideoURL)
	if err != nil {
		return "", &platforms.PublishError{Platform: c.Name(), Retryable: true, Err: err}
	}
	defer os.Remove(tmpPath)

	file, err := os.Open(tmpPath)
	if err != nil {
		return "", &platforms.PublishError{Platform: c.Name(), Retryable: true, Err: err}
	}
	defer file.Close()

	video := &youtubeapi.Video{
		Snippet: &youtubeapi.VideoSnippet{
			Title:       job.Title,
			Description: job.Description,
			Tags:        []string{"Orbix Network", job.Category},
			CategoryId:  categoryEntertainment,
		},
		Status: &youtubeapi.VideoStatus{
			PrivacyStatus:           job.Visibility,
			SelfDeclaredMadeForKids: false,
		},
	}

	call := c.service.Videos.Insert([]string{"snippet", "status"}, video).Media(file)
	response, err := call.Context(ctx).Do()
	if err != nil {
		return "", &platforms.PublishError{Platform: c.Name(), Retryable: retryable(err), Err: err}
	}

	c.logger.Info("Uploaded video to YouTube", zap.String("video_id", response.Id))
	return response.Id, nil
}

// FetchMetrics liest die Statistiken eines Videos.
func (c *Client) FetchMetrics(ctx context.Context, platformVideoID string) (*platforms.Metrics, error) {
	response, err := c.service.Videos.List([]string{"statistics"}).Id(platformVideoID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("youtube videos.list: %w", err)
	}
	if len(response.Items) == 0 {
		return nil, fmt.Errorf("video %s not found", platformVideoID)
	}

	stats := response.Items[0].Statistics
	return &platforms.Metrics{
		Views:    int64(stats.ViewCount),
		Likes:    int64(stats.LikeCount),
		Comments: int64(stats.CommentCount),
	}, nil
}

// download holt das Video aus dem Objektspeicher in eine Temp-Datei.
func (c *Client) download(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download video: bad status %s", resp.Status)
	}

	tmpFile, err := os.CreateTemp("", "orbix-upload-*.mp4")
	if err != nil {
		return "", err
	}
	defer tmpFile.Close()

	if _, err := io.Copy(tmpFile, resp.Body); err != nil {
		os.Remove(tmpFile.Name())
		return "", err
	}
	return tmpFile.Name(), nil
}

// retryable stuft API-Fehler ein: Quota und Server-Fehler sind transient,
// inhaltliche Ablehnungen (4xx) terminal.
func retryable(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusForbidden || apiErr.Code == http.StatusTooManyRequests {
			return true // Quota
		}
		return apiErr.Code >= 500
	}
	return true // Netzfehler
}
