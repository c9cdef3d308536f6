package platforms

import (
	"context"
	"fmt"
)

// Job beschreibt eine Veröffentlichung eines fertigen Renders.
type Job struct {
	RenderID    uint
	VideoURL    string
	Title       string
	Description string
	Category    string
	Visibility  string
}

// Metrics sind die Tageskennzahlen eines veröffentlichten Videos.
type Metrics struct {
	Views               int64
	Likes               int64
	Comments            int64
	AvgWatchTimeSeconds float64
}

// PublishError markiert eine fehlgeschlagene Veröffentlichung. Retryable
// trennt Quota-/Netzfehler (später erneut versuchen) von inhaltlichen
// Ablehnungen (terminal FAILED).
type PublishError struct {
	Platform  string
	Retryable bool
	Err       error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %s: %v", e.Platform, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// Platform ist der Collaborator-Vertrag einer Veröffentlichungsplattform.
type Platform interface {
	// Name gibt den Plattform-Bezeichner zurück (z.B. "YOUTUBE").
	Name() string

	// Publish lädt das Video hoch und gibt die Plattform-Video-ID zurück.
	Publish(ctx context.Context, job Job) (string, error)

	// FetchMetrics holt die aktuellen Kennzahlen eines Videos.
	FetchMetrics(ctx context.Context, platformVideoID string) (*Metrics, error)
}
