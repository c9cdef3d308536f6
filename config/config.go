package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4242"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	// Cron-Zeitpläne der Pipeline-Jobs (Format von robfig/cron)
	IngestSchedule       string `envconfig:"INGEST_SCHEDULE" default:"@every 5m"`
	ScoreSchedule        string `envconfig:"SCORE_SCHEDULE" default:"@every 2m"`
	GenerateSchedule     string `envconfig:"GENERATE_SCHEDULE" default:"@every 3m"`
	ReviewSweepSchedule  string `envconfig:"REVIEW_SWEEP_SCHEDULE" default:"@every 1m"`
	RenderCreateSchedule string `envconfig:"RENDER_CREATE_SCHEDULE" default:"@every 3m"`
	RenderSchedule       string `envconfig:"RENDER_SCHEDULE" default:"@every 5m"`
	PublishSchedule      string `envconfig:"PUBLISH_SCHEDULE" default:"@every 10m"`
	AnalyticsSchedule    string `envconfig:"ANALYTICS_SCHEDULE" default:"0 2 * * *"`

	// Retry-Budgets pro Entität
	MaxGenerationAttempts int `envconfig:"MAX_GENERATION_ATTEMPTS" default:"3"`
	MaxRenderAttempts     int `envconfig:"MAX_RENDER_ATTEMPTS" default:"3"`
	MaxPublishAttempts    int `envconfig:"MAX_PUBLISH_ATTEMPTS" default:"5"`

	// Cohere-Modell für Shock-Scoring und Skript-Generierung
	CohereAPIKey string `envconfig:"COHERE_API_KEY"`
	CohereModel  string `envconfig:"COHERE_MODEL" default:"command-r-08-2024"`

	// YouTube OAuth (Refresh-Token-Flow)
	YouTubeClientID     string `envconfig:"YOUTUBE_CLIENT_ID"`
	YouTubeClientSecret string `envconfig:"YOUTUBE_CLIENT_SECRET"`
	YouTubeRefreshToken string `envconfig:"YOUTUBE_REFRESH_TOKEN"`

	// Rendering
	AssetsPath           string `envconfig:"ASSETS_PATH" default:"./assets"`
	FontFile             string `envconfig:"FONT_FILE" default:"./assets/fonts/inter_bold.ttf"`
	RenderTimeoutSeconds int    `envconfig:"RENDER_TIMEOUT_SECONDS" default:"300"`

	StratoS3Key    string `envconfig:"STRATO_S3_KEY" required:"true"`
	StratoS3Secret string `envconfig:"STRATO_S3_SECRET" required:"true"`
	StratoS3URL    string `envconfig:"STRATO_S3_URL" required:"true"`
	StratoS3Region string `envconfig:"STRATO_S3_REGION" required:"true"`
	StratoS3Bucket string `envconfig:"STRATO_S3_BUCKET" default:"renders"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
