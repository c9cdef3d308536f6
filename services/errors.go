package services

import (
	"errors"

	"orbix-worker/collab"
	"orbix-worker/platforms"
)

// IsPermanent stuft einen Collaborator-Fehler als inhaltlich/terminal ein.
// Alles andere gilt als transient und wird im nächsten Durchlauf erneut
// versucht. Verlorene bedingte Updates sind hier bewusst kein Fehlerfall:
// die Services melden sie als (won bool) und der Verlierer ist ein No-op.
func IsPermanent(err error) bool {
	var genErr *collab.GenerationError
	if errors.As(err, &genErr) {
		return true
	}
	var pubErr *platforms.PublishError
	if errors.As(err, &pubErr) {
		return !pubErr.Retryable
	}
	return false
}
