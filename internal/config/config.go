package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL string
	ProjectID   string
	DatasetID   string
	TableID     string

	BucketName           string
	ObjectStoreEndpoint  string
	ObjectStoreAccessKey string
	ObjectStoreSecretKey string
	ObjectStoreRegion    string
	ObjectStoreUseSSL    bool

	DownloadDir     string
	SearchURL       string
	BrowserBin      string
	BrowserHeadless bool
	SettleDelay     time.Duration
	ResultTimeout   time.Duration
	DownloadTimeout time.Duration
	PollInterval    time.Duration

	DefaultWatermark time.Time
	Location         *time.Location

	PushgatewayURL string
	APIPort        string
}

// NewWarehouse loads only what the setup and api binaries need.
func NewWarehouse() (*Config, error) {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	cfg := &Config{
		DatabaseURL: databaseURL,
		DatasetID:   os.Getenv("DATASET_ID"),
		TableID:     getEnv("TABLE_ID", "seia_limpio"),
		APIPort:     getEnv("API_PORT", "8080"),
	}
	if cfg.DatasetID == "" {
		return nil, fmt.Errorf("DATASET_ID environment variable is not set")
	}

	return cfg, nil
}

// New loads the full ingestion configuration.
func New() (*Config, error) {
	cfg, err := NewWarehouse()
	if err != nil {
		return nil, err
	}

	*cfg = Config{
		DatabaseURL:     cfg.DatabaseURL,
		DatasetID:       cfg.DatasetID,
		TableID:         cfg.TableID,
		APIPort:         cfg.APIPort,
		ProjectID:       os.Getenv("PROJECT_ID"),
		BucketName:      os.Getenv("BUCKET_NAME"),
		DownloadDir:     getEnv("DOWNLOAD_DIR", "/tmp/downloads_excel"),
		SearchURL:       getEnv("SEIA_SEARCH_URL", "https://seia.sea.gob.cl/busqueda/buscarProyecto.php"),
		BrowserBin:      os.Getenv("BROWSER_BIN"),
		PushgatewayURL:  os.Getenv("PUSHGATEWAY_URL"),
		ResultTimeout:   30 * time.Second,
		DownloadTimeout: 60 * time.Second,
		PollInterval:    time.Second,

		ObjectStoreEndpoint:  getEnv("OBJECT_STORE_ENDPOINT", "storage.googleapis.com"),
		ObjectStoreAccessKey: os.Getenv("OBJECT_STORE_ACCESS_KEY"),
		ObjectStoreSecretKey: os.Getenv("OBJECT_STORE_SECRET_KEY"),
		ObjectStoreRegion:    os.Getenv("OBJECT_STORE_REGION"),
	}

	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable is not set")
	}
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("BUCKET_NAME environment variable is not set")
	}

	cfg.BrowserHeadless, err = getEnvAsBool("BROWSER_HEADLESS", true)
	if err != nil {
		return nil, err
	}

	cfg.ObjectStoreUseSSL, err = getEnvAsBool("OBJECT_STORE_USE_SSL", true)
	if err != nil {
		return nil, err
	}

	seconds, err := getEnvAsInt("SETTLE_DELAY_SECONDS", 5)
	if err != nil {
		return nil, err
	}
	cfg.SettleDelay = time.Duration(seconds) * time.Second

	seconds, err = getEnvAsInt("RESULT_TIMEOUT_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	cfg.ResultTimeout = time.Duration(seconds) * time.Second

	seconds, err = getEnvAsInt("DOWNLOAD_TIMEOUT_SECONDS", 60)
	if err != nil {
		return nil, err
	}
	cfg.DownloadTimeout = time.Duration(seconds) * time.Second

	millis, err := getEnvAsInt("POLL_INTERVAL_MILLIS", 1000)
	if err != nil {
		return nil, err
	}
	cfg.PollInterval = time.Duration(millis) * time.Millisecond

	watermark := getEnv("DEFAULT_WATERMARK", "2013-01-01")
	cfg.DefaultWatermark, err = time.Parse("2006-01-02", watermark)
	if err != nil {
		return nil, fmt.Errorf("invalid value for DEFAULT_WATERMARK: expected YYYY-MM-DD, got '%s'", watermark)
	}

	timezone := getEnv("TIMEZONE", "America/Santiago")
	cfg.Location, err = time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid value for TIMEZONE: %w", err)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: expected an integer, got '%s'", key, valueStr)
	}

	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, fmt.Errorf("invalid value for %s: expected a boolean, got '%s'", key, valueStr)
	}

	return value, nil
}
