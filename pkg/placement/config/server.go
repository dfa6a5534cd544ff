// Package config loads the server's environment settings and the chat
// client's YAML profile.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/adhocore/gronx"
	"github.com/dustin/go-humanize"
)

// Server holds the settings read from the environment
type Server struct {
	DBPath        string
	BaseURL       string
	Port          string
	UploadDir     string
	MaxUpload     int64 // bytes
	RetentionCron string
	RetentionAge  time.Duration
	LoginRPS      float64
	LoginBurst    int
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// LoadServer reads PLACEMENT_* variables and PORT, applying defaults
func LoadServer() (*Server, error) {
	cfg := &Server{
		DBPath:        getenv("PLACEMENT_DB_PATH", "placement.db"),
		BaseURL:       getenv("PLACEMENT_BASE_URL", "http://localhost:8080"),
		Port:          getenv("PORT", "8080"),
		UploadDir:     getenv("PLACEMENT_UPLOAD_DIR", "uploads"),
		RetentionCron: getenv("PLACEMENT_RETENTION_CRON", "0 3 * * *"),
	}

	maxUpload, err := humanize.ParseBytes(getenv("PLACEMENT_MAX_UPLOAD", "10MB"))
	if err != nil {
		return nil, fmt.Errorf("PLACEMENT_MAX_UPLOAD: %w", err)
	}
	if maxUpload == 0 {
		return nil, fmt.Errorf("PLACEMENT_MAX_UPLOAD must be greater than zero")
	}
	cfg.MaxUpload = int64(maxUpload)

	if !gronx.IsValid(cfg.RetentionCron) {
		return nil, fmt.Errorf("PLACEMENT_RETENTION_CRON: invalid cron expression %q", cfg.RetentionCron)
	}

	days, err := strconv.Atoi(getenv("PLACEMENT_RETENTION_DAYS", "30"))
	if err != nil || days <= 0 {
		return nil, fmt.Errorf("PLACEMENT_RETENTION_DAYS must be a positive integer")
	}
	cfg.RetentionAge = time.Duration(days) * 24 * time.Hour

	cfg.LoginRPS, err = strconv.ParseFloat(getenv("PLACEMENT_LOGIN_RPS", "5"), 64)
	if err != nil || cfg.LoginRPS <= 0 {
		return nil, fmt.Errorf("PLACEMENT_LOGIN_RPS must be a positive number")
	}
	cfg.LoginBurst, err = strconv.Atoi(getenv("PLACEMENT_LOGIN_BURST", "10"))
	if err != nil || cfg.LoginBurst <= 0 {
		return nil, fmt.Errorf("PLACEMENT_LOGIN_BURST must be a positive integer")
	}

	return cfg, nil
}

// MaxUploadHuman renders the upload limit for logs, e.g. "10 MB"
func (s *Server) MaxUploadHuman() string {
	return humanize.Bytes(uint64(s.MaxUpload))
}
