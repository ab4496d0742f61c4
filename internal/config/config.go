package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIBaseURL        string
	RequestTimeout    time.Duration
	UploadTimeout     time.Duration
	QRValidateTimeout time.Duration
	QRSampleHz        float64
	QRRejectCooldown  time.Duration
	ArmedDelay        time.Duration
	CaptureRetryWait  time.Duration
	JPEGQuality       int
	ResultPollHz      float64
	ResultWatchdog    time.Duration
	StateDir          string
	LogLevel          string

	// binsim (local fake backend) settings
	BinsimPort       string
	BinsimJWTSecret  string
	BinsimTokenTTL   time.Duration
	BinsimCORSOrigin []string
	BinsimRateRPM    int
	PointsPerBottle  int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		APIBaseURL:        getEnv("API_BASE_URL", "http://localhost:8000"),
		RequestTimeout:    getDuration("REQUEST_TIMEOUT", 15*time.Second),
		UploadTimeout:     getDuration("SCAN_UPLOAD_TIMEOUT", 30*time.Second),
		QRValidateTimeout: getDuration("QR_VALIDATE_TIMEOUT", 10*time.Second),
		QRSampleHz:        getFloat("QR_SAMPLE_HZ", 2),
		QRRejectCooldown:  getDuration("QR_REJECT_COOLDOWN", 2*time.Second),
		ArmedDelay:        getDuration("ARMED_DELAY", time.Second),
		CaptureRetryWait:  getDuration("CAPTURE_RETRY_WAIT", 200*time.Millisecond),
		JPEGQuality:       getInt("JPEG_QUALITY", 90),
		ResultPollHz:      getFloat("RESULT_POLL_HZ", 3),
		ResultWatchdog:    getDuration("RESULT_WATCHDOG", 10*time.Second),
		StateDir:          getEnv("STATE_DIR", "./state"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		BinsimPort:        getEnv("BINSIM_PORT", "8000"),
		BinsimJWTSecret:   getEnv("BINSIM_JWT_SECRET", "binsim-dev-secret"),
		BinsimTokenTTL:    getDuration("BINSIM_TOKEN_TTL", 24*time.Hour),
		BinsimCORSOrigin:  splitCSV(getEnv("BINSIM_CORS_ORIGINS", "*")),
		BinsimRateRPM:     getInt("BINSIM_RATE_RPM", 300),
		PointsPerBottle:   getInt("POINTS_PER_BOTTLE", 5),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an absolute http(s) URL")
	}

	if c.QRSampleHz <= 0 {
		return fmt.Errorf("QR_SAMPLE_HZ must be positive")
	}

	if c.ResultPollHz <= 0 {
		return fmt.Errorf("RESULT_POLL_HZ must be positive")
	}

	if c.ResultWatchdog <= 0 {
		return fmt.Errorf("RESULT_WATCHDOG must be positive")
	}

	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("JPEG_QUALITY must be in 1..100")
	}

	if strings.TrimSpace(c.StateDir) == "" {
		return fmt.Errorf("STATE_DIR cannot be empty")
	}

	if strings.TrimSpace(c.BinsimJWTSecret) == "" {
		return fmt.Errorf("BINSIM_JWT_SECRET cannot be empty")
	}

	return nil
}

// WebSocketURL derives the push stream URL from the API base by swapping the
// scheme to ws(s) and appending the per-user notification path.
func (c *Config) WebSocketURL(userID string) (string, error) {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil {
		return "", err
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/notifications/" + url.PathEscape(userID)
	return u.String(), nil
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
