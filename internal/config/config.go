package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	ListenAddr    string
	InputAPIToken string

	LLSSBaseURL  string
	LLSSAPIToken string

	LichessBaseURL string
	LichessWSURL   string

	RedisURL    string
	DatabaseURL string

	DisplayWidth  int
	DisplayHeight int

	ConfigureURL string

	SubmitTimeout time.Duration
	CreateTimeout time.Duration
	SessionTTL    time.Duration

	UICatalogDir string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:    ":8000",
		DisplayWidth:  800,
		DisplayHeight: 480,
		SubmitTimeout: 10 * time.Second,
		CreateTimeout: 15 * time.Second,
		SessionTTL:    30 * 24 * time.Hour,
	}

	if v := strings.TrimSpace(os.Getenv("HLSS_LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	cfg.InputAPIToken = strings.TrimSpace(os.Getenv("HLSS_API_TOKEN"))

	cfg.LLSSBaseURL = strings.TrimSpace(os.Getenv("LLSS_BASE_URL"))
	cfg.LLSSAPIToken = strings.TrimSpace(os.Getenv("LLSS_API_TOKEN"))

	cfg.LichessBaseURL = strings.TrimSpace(os.Getenv("LICHESS_BASE_URL"))
	if cfg.LichessBaseURL == "" {
		cfg.LichessBaseURL = "https://lichess.org"
	}
	cfg.LichessWSURL = strings.TrimSpace(os.Getenv("LICHESS_WS_URL"))

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	cfg.ConfigureURL = strings.TrimSpace(os.Getenv("HLSS_CONFIGURE_URL"))
	cfg.UICatalogDir = strings.TrimSpace(os.Getenv("HLSS_UI_CATALOG_DIR"))

	if v := strings.TrimSpace(os.Getenv("DISPLAY_WIDTH")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.DisplayWidth = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("DISPLAY_HEIGHT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.DisplayHeight = n
		}
	}

	if v := strings.TrimSpace(os.Getenv("SUBMIT_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.SubmitTimeout = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("CREATE_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.CreateTimeout = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("SESSION_TTL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.SessionTTL = d
		}
	}

	if cfg.LLSSBaseURL == "" {
		return nil, errors.New("LLSS_BASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	return cfg, nil
}
