package rumble

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"orbix-worker/models"
	"orbix-worker/platforms"
)

// Client ist der Rumble-Collaborator. Die Upload-API ist noch nicht
// angebunden; die Plattform ist per Setting enable_rumble standardmäßig
// abgeschaltet. Ein Publish-Versuch schlägt terminal fehl und wird dem
// Operator angezeigt.
type Client struct {
	logger *zap.Logger
}

// NewClient erstellt den Rumble-Collaborator.
func NewClient(logger *zap.Logger) *Client {
	return &Client{logger: logger}
}

// Name gibt den Plattform-Bezeichner zurück.
func (c *Client) Name() string { return models.PlatformRumble }

// Publish ist noch nicht implementiert.
func (c *Client) Publish(ctx context.Context, job platforms.Job) (string, error) {
	c.logger.Warn("Rumble publishing not yet implemented", zap.Uint("render_id", job.RenderID))
	return "", &platforms.PublishError{
		Platform:  c.Name(),
		Retryable: false,
		Err:       errors.New("rumble upload API not implemented"),
	}
}

// FetchMetrics ist noch nicht implementiert.
func (c *Client) FetchMetrics(ctx context.Context, platformVideoID string) (*platforms.Metrics, error) {
	return nil, errors.New("rumble metrics API not implemented")
}
