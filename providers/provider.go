package providers

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"orbix-worker/models"
)

// MaxCandidatesPerFetch begrenzt die Kandidaten pro Quelle und Abruf.
const MaxCandidatesPerFetch = 20

// Candidate ist ein standardisierter Beitrag, wie ihn eine Quelle liefert,
// bevor er de-dupliziert und als RawItem gespeichert wird.
type Candidate struct {
	URL         string
	Title       string
	Snippet     string
	PublishedAt time.Time
}

// Fetcher ist das Interface, das jeder Quell-Abholer (RSS, HTML)
// implementieren muss.
type Fetcher interface {
	// Fetch holt die aktuellsten Kandidaten einer Quelle.
	Fetch(ctx context.Context, source *models.Source) ([]Candidate, error)

	// Type gibt den Quelltyp zurück, den dieser Fetcher bedient.
	Type() string
}

// FetchError markiert einen Netz- oder Parse-Fehler beim Abruf einer
// Quelle. Er ist transient: der nächste Tick versucht es erneut.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// TruncateUTF8 kürzt s auf höchstens limit Bytes, ohne eine Mehrbyte-Rune
// zu zerschneiden; Postgres lehnt Textspalten mit ungültigem UTF-8 ab.
func TruncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
