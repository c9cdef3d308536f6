package collab

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
	"go.uber.org/zap"

	"orbix-worker/config"
)

// Categories sind die fünf Orbix-Rubriken; das Modell muss genau eine
// davon (oder DISCARD) liefern.
var Categories = []string{
	"AI & Automation Takeovers",
	"Corporate Collapses & Reversals",
	"Tech Decisions With Massive Fallout",
	"Laws & Rules That Quietly Changed Everything",
	"Money & Market Shock",
}

// Verdict ist das Ergebnis der Bewertung eines Rohbeitrags.
type Verdict struct {
	Category   string         `json:"category"`
	ShockScore int            `json:"shock_score"`
	Factors    map[string]int `json:"factors"`
	Reasoning  string         `json:"reasoning"`
}

// Discard meldet, ob das Modell den Beitrag aussortiert hat.
func (v *Verdict) Discard() bool {
	return v.Category == "DISCARD"
}

// ValidCategory prüft die Kategorie gegen die geschlossene Liste.
func (v *Verdict) ValidCategory() bool {
	for _, c := range Categories {
		if v.Category == c {
			return true
		}
	}
	return false
}

// ScriptDraft sind die generierten Erzählbausteine für eine Story.
type ScriptDraft struct {
	Hook                  string `json:"hook"`
	WhatHappened          string `json:"what_happened"`
	WhyItMatters          string `json:"why_it_matters"`
	WhatHappensNext       string `json:"what_happens_next"`
	CTALine               string `json:"cta_line"`
	DurationTargetSeconds int    `json:"duration_target_seconds"`
}

// GenerationError markiert eine inhaltliche Ablehnung durch das Modell
// (fehlende Pflichtfelder, unbrauchbares JSON). Sie zählt gegen das
// Retry-Budget der Story.
type GenerationError struct {
	Reason string
}

func (e *GenerationError) Error() string {
	return "generation failed: " + e.Reason
}

// ScoringModel bewertet einen Rohbeitrag mit Shock-Score und Kategorie.
type ScoringModel interface {
	Score(ctx context.Context, title, snippet string) (*Verdict, error)
}

// ScriptModel generiert ein Skript für eine qualifizierte Story.
type ScriptModel interface {
	Generate(ctx context.Context, title, snippet, category string, shockScore int) (*ScriptDraft, error)
}

// CohereModel implementiert ScoringModel und ScriptModel über die
// Cohere-Chat-API.
type CohereModel struct {
	client *cohereclient.Client
	model  string
	logger *zap.Logger
}

// NewCohereModel erstellt den Cohere-Collaborator.
func NewCohereModel(cfg *config.Config, logger *zap.Logger) *CohereModel {
	// HTTP/1.1 erzwingen, die Cohere-API bricht sonst gelegentlich mit
	// HTTP/2-Protokollfehlern ab.
	httpClient := &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			TLSNextProto:      make(map[string]func(authority string, c *tls.Conn) http.RoundTripper),
			ForceAttemptHTTP2: false,
		},
	}
	client := cohereclient.NewClient(
		cohereclient.WithToken(cfg.CohereAPIKey),
		cohereclient.WithHTTPClient(httpClient),
	)
	return &CohereModel{client: client, model: cfg.CohereModel, logger: logger}
}

const scorePreamble = "You are a news classifier for Orbix Network. Return only valid JSON."

func scorePrompt(title, snippet string) string {
	return fmt.Sprintf(`Analyze this news story and classify it into exactly ONE category, then score its "shock value" (0-100).

Story:
Title: %s
Snippet: %s

Categories (choose exactly ONE):
%s

Shock Score Components (total 0-100):
- Scale (0-30): How many people/companies affected?
- Speed (0-20): How quickly did this happen?
- Power shift (0-25): How much did power/control change?
- Permanence (0-15): How permanent is this change?
- Explainability (0-10): How hard is this to explain to average person?

Rules:
- If story is unclear, political rage, graphic violence, or speculation-heavy, return category "DISCARD"
- Only return a category if the story clearly fits

Return JSON format:
{"category": "category name or DISCARD", "shock_score": 0, "factors": {"scale": 0, "speed": 0, "power_shift": 0, "permanence": 0, "explainability": 0}, "reasoning": "brief explanation"}`,
		title, truncate(snippet, 500), "- "+strings.Join(Categories, "\n- "))
}

// Score bewertet einen Rohbeitrag.
func (m *CohereModel) Score(ctx context.Context, title, snippet string) (*Verdict, error) {
	text, err := m.chat(ctx, scorePreamble, scorePrompt(title, snippet), 0.3)
	if err != nil {
		return nil, err
	}
	var verdict Verdict
	if err := json.Unmarshal(extractJSON(text), &verdict); err != nil {
		return nil, &GenerationError{Reason: "classifier returned invalid JSON"}
	}
	return &verdict, nil
}

const generatePreamble = "You are a script writer for Orbix Network. Return only valid JSON. Follow the exact structure."

func generatePrompt(title, snippet, category string, shockScore int) string {
	return fmt.Sprintf(`Generate a short-form video script (30-45 seconds) for this news story.

Story:
Title: %s
Snippet: %s
Category: %s
Shock Score: %d

Script Structure (REQUIRED):
1. Hook (1-2 sentences, statement not question, attention-grabbing)
2. What Happened (2-3 sentences, factual)
3. Why It Matters (2-3 sentences, impact)
4. What Happens Next (1-2 sentences, implications)
5. CTA Line (soft utility, never "please subscribe")

Tone Requirements:
- Calm and observational
- Authoritative but not preachy
- No speculation language ("might", "could", "probably")
- No political rage framing
- No graphic descriptions

Return JSON format:
{"hook": "", "what_happened": "", "why_it_matters": "", "what_happens_next": "", "cta_line": "", "duration_target_seconds": 35}`,
		title, snippet, category, shockScore)
}

// Generate erzeugt ein Skript für eine qualifizierte Story.
func (m *CohereModel) Generate(ctx context.Context, title, snippet, category string, shockScore int) (*ScriptDraft, error) {
	text, err := m.chat(ctx, generatePreamble, generatePrompt(title, snippet, category, shockScore), 0.7)
	if err != nil {
		return nil, err
	}

	var draft ScriptDraft
	if err := json.Unmarshal(extractJSON(text), &draft); err != nil {
		return nil, &GenerationError{Reason: "script model returned invalid JSON"}
	}
	if draft.Hook == "" || draft.WhatHappened == "" || draft.WhyItMatters == "" ||
		draft.WhatHappensNext == "" || draft.CTALine == "" {
		return nil, &GenerationError{Reason: "script missing required fields"}
	}
	if draft.DurationTargetSeconds <= 0 {
		draft.DurationTargetSeconds = 35
	}
	return &draft, nil
}

func (m *CohereModel) chat(ctx context.Context, preamble, message string, temperature float64) (string, error) {
	resp, err := m.client.Chat(ctx, &cohere.ChatRequest{
		Model:       &m.model,
		Preamble:    &preamble,
		Message:     message,
		Temperature: &temperature,
	})
	if err != nil {
		return "", fmt.Errorf("cohere chat: %w", err)
	}
	return resp.Text, nil
}

// extractJSON schneidet Markdown-Zäune und umgebenden Text um das erste
// JSON-Objekt weg.
func extractJSON(text string) []byte {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return []byte(text)
	}
	return []byte(text[start : end+1])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
