package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds every knob the pipeline reads from the environment.
type Config struct {
	Classifier ClassifierConfig
	Sentiment  SentimentConfig
	Geocoder   GeocoderConfig
	Spam       SpamConfig
	Priority   PriorityConfig
	Uploads    UploadsConfig
	Port       string
}

type ClassifierConfig struct {
	Endpoint string
	Model    string
	APIKey   string
}

type SentimentConfig struct {
	Endpoint string
	Model    string
	APIKey   string
}

type GeocoderConfig struct {
	PrimaryURL  string
	PrimaryKey  string
	FallbackURL string
}

type SpamConfig struct {
	// Threshold is read from SPAM_THRESHOLD (default 0.5). The spam
	// prefilter does not consult it: its classifier stage acts on a
	// yes/no verdict, not on a probability cutoff.
	Threshold float64
}

type PriorityConfig struct {
	ExpansionCountries map[string]bool
}

type UploadsConfig struct {
	Dir            string
	MaxUploadSizeMB int
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// Load reads .env (if present) then the process environment. Unlike the
// teacher's Load, a missing .env file is not fatal — most deployments
// supply the environment directly.
func Load() (*Config, error) {
	_ = godotenv.Load()

	threshold, err := strconv.ParseFloat(getEnvOrDefault("SPAM_THRESHOLD", "0.5"), 64)
	if err != nil {
		threshold = 0.5
	}

	maxUploadMB, err := strconv.Atoi(getEnvOrDefault("MAX_UPLOAD_SIZE_MB", "10"))
	if err != nil {
		maxUploadMB = 10
	}

	expansion := map[string]bool{}
	for _, c := range strings.Split(getEnvOrDefault("EXPANSION_COUNTRIES", ""), ",") {
		c = strings.TrimSpace(c)
		if c != "" {
			expansion[c] = true
		}
	}

	sentimentEndpoint := getEnvOrDefault("SENTIMENT_ENDPOINT", os.Getenv("LLM_ENDPOINT"))
	sentimentModel := getEnvOrDefault("SENTIMENT_MODEL", os.Getenv("LLM_MODEL"))
	sentimentKey := getEnvOrDefault("SENTIMENT_API_KEY", os.Getenv("LLM_API_KEY"))

	return &Config{
		Classifier: ClassifierConfig{
			Endpoint: os.Getenv("LLM_ENDPOINT"),
			Model:    os.Getenv("LLM_MODEL"),
			APIKey:   os.Getenv("LLM_API_KEY"),
		},
		Sentiment: SentimentConfig{
			Endpoint: sentimentEndpoint,
			Model:    sentimentModel,
			APIKey:   sentimentKey,
		},
		Geocoder: GeocoderConfig{
			PrimaryURL:  getEnvOrDefault("PRIMARY_GEOCODER_URL", "https://geocode-maps.yandex.ru/1.x/"),
			PrimaryKey:  os.Getenv("PRIMARY_GEOCODER_KEY"),
			FallbackURL: getEnvOrDefault("FALLBACK_GEOCODER_URL", "https://nominatim.openstreetmap.org/search"),
		},
		Spam: SpamConfig{
			Threshold: threshold,
		},
		Priority: PriorityConfig{
			ExpansionCountries: expansion,
		},
		Uploads: UploadsConfig{
			Dir:             getEnvOrDefault("UPLOADS_DIR", "./uploads"),
			MaxUploadSizeMB: maxUploadMB,
		},
		Port: getEnvOrDefault("PORT", "8080"),
	}, nil
}
