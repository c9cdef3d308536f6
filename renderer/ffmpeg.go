package renderer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	ffmpeg "github.com/u2takey/ffmpeg-go"
	"go.uber.org/zap"

	"orbix-worker/config"
	"orbix-worker/storage"
)

// Job beschreibt einen einzelnen Render-Auftrag.
type Job struct {
	RenderID        uint
	Template        string
	BackgroundType  string
	BackgroundID    string
	DurationSeconds int

	Hook         string
	WhatHappened string
	WhyItMatters string
	Category     string
}

// RenderError markiert einen fehlgeschlagenen Render-Vorgang; Log enthält
// die ffmpeg-Ausgabe für die Audit-Spur.
type RenderError struct {
	Log string
	Err error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render failed: %v", e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Collaborator rendert ein Skript zu einem Video und liefert die
// Output-Referenz (öffentliche URL).
type Collaborator interface {
	Render(ctx context.Context, job Job) (string, error)
}

// FFmpegRenderer rendert 1080x1920-Videos über ffmpeg und lädt das
// Ergebnis nach S3 hoch.
type FFmpegRenderer struct {
	Config   *config.Config
	S3Client *s3.Client
	Logger   *zap.Logger
}

// NewFFmpegRenderer erstellt den Render-Collaborator.
func NewFFmpegRenderer(cfg *config.Config, s3Client *s3.Client, logger *zap.Logger) *FFmpegRenderer {
	return &FFmpegRenderer{Config: cfg, S3Client: s3Client, Logger: logger}
}

// Render baut das ffmpeg-Kommando für Template und Hintergrund, führt es
// mit Timeout aus und lädt das Ergebnis hoch.
func (r *FFmpegRenderer) Render(ctx context.Context, job Job) (string, error) {
	log := r.Logger.With(zap.Uint("render_id", job.RenderID))

	outputFile, err := os.CreateTemp("", "orbix-render-*.mp4")
	if err != nil {
		return "", &RenderError{Err: err}
	}
	outputPath := outputFile.Name()
	outputFile.Close()
	defer os.Remove(outputPath)

	duration := job.DurationSeconds
	if duration <= 0 {
		duration = 35
	}

	stream := r.backgroundInput(job, duration, log)
	stream = stream.Output(outputPath, ffmpeg.KwArgs{
		"vf":     r.videoFilter(job),
		"t":      fmt.Sprintf("%d", duration),
		"c:v":    "libx264",
		"preset": "medium",
		"crf":    "23",
	}).OverWriteOutput()

	if err := r.runWithTimeout(ctx, stream); err != nil {
		return "", err
	}

	data, err := os.ReadFile(outputPath)
	if err != nil {
		return "", &RenderError{Err: err}
	}

	key := fmt.Sprintf("renders/%d.mp4", job.RenderID)
	log.Info("Uploading rendered video to S3", zap.String("key", key), zap.Int("bytes", len(data)))
	link, err := storage.UploadFile(ctx, r.S3Client, r.Config.StratoS3Bucket, key, "video/mp4", data, r.Config)
	if err != nil {
		return "", &RenderError{Err: fmt.Errorf("s3 upload: %w", err)}
	}
	return link, nil
}

// backgroundInput wählt den ffmpeg-Input: Still-Bild geloopt, Motion-Clip
// endlos wiederholt, Fallback auf eine Farbfläche bei fehlendem Asset.
func (r *FFmpegRenderer) backgroundInput(job Job, duration int, log *zap.Logger) *ffmpeg.Stream {
	sub := "motion"
	if job.BackgroundType == "STILL" {
		sub = "stills"
	}
	path := filepath.Join(r.Config.AssetsPath, "backgrounds", sub, job.BackgroundID)

	if _, err := os.Stat(path); err != nil {
		log.Warn("Background asset not found, using solid color", zap.String("path", path))
		return ffmpeg.Input(fmt.Sprintf("color=c=0x1a1a1a:s=1080x1920:d=%d", duration), ffmpeg.KwArgs{"f": "lavfi"})
	}

	if job.BackgroundType == "STILL" {
		return ffmpeg.Input(path, ffmpeg.KwArgs{"loop": 1, "t": duration})
	}
	return ffmpeg.Input(path, ffmpeg.KwArgs{"stream_loop": -1, "t": duration})
}

// videoFilter liefert die drawtext-Overlays je Template.
func (r *FFmpegRenderer) videoFilter(job Job) string {
	base := "scale=1080:1920:force_original_aspect_ratio=decrease,pad=1080:1920:(ow-iw)/2:(oh-ih)/2"
	font := r.Config.FontFile

	switch job.Template {
	case "B":
		// Template B: before/after
		return base + fmt.Sprintf(",drawtext=text='%s':fontfile=%s:fontsize=50:fontcolor=white:x=(w-text_w)/2:y=400",
			escapeDrawtext(job.WhatHappened), font)
	case "C":
		// Template C: impact bullets
		return base + fmt.Sprintf(",drawtext=text='%s':fontfile=%s:fontsize=45:fontcolor=white:x=(w-text_w)/2:y=500",
			escapeDrawtext(job.WhyItMatters), font)
	default:
		// Template A: headline + category
		return base + fmt.Sprintf(",drawtext=text='%s':fontfile=%s:fontsize=60:fontcolor=white:x=(w-text_w)/2:y=200",
			escapeDrawtext(job.Hook), font) +
			fmt.Sprintf(",drawtext=text='%s':fontfile=%s:fontsize=40:fontcolor=0x888888:x=(w-text_w)/2:y=300",
				escapeDrawtext(job.Category), font)
	}
}

// runWithTimeout führt den kompilierten ffmpeg-Prozess aus und bricht ihn
// beim Timeout hart ab; Abbruch zählt als FAILED.
func (r *FFmpegRenderer) runWithTimeout(ctx context.Context, stream *ffmpeg.Stream) error {
	timeout := time.Duration(r.Config.RenderTimeoutSeconds) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := stream.Compile()
	var out strings.Builder
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Start(); err != nil {
		return &RenderError{Err: err}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return &RenderError{Log: out.String(), Err: fmt.Errorf("ffmpeg timeout after %s", timeout)}
	case err := <-done:
		if err != nil {
			return &RenderError{Log: out.String(), Err: fmt.Errorf("ffmpeg: %w", err)}
		}
		return nil
	}
}

// escapeDrawtext maskiert die Zeichen, die drawtext als Syntax liest.
func escapeDrawtext(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	s = strings.ReplaceAll(s, `:`, `\:`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return s
}
