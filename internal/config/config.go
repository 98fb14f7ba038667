package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port             int
	DataDir          string
	CacheType        string
	CacheCapacity    int
	CacheMinFreeMB   int
	DraftWorkers     int
	MaxFileSizeMB    int
	ArchivesEnabled  bool
	SlideDuration    time.Duration
	SlideMode        string
	FitMode          string
	ViewportWidth    int
	ViewportHeight   int
	DraftJPEGQuality int
	FinalJPEGQuality int
	VipsMaxCacheMB   int
	VipsConcurrency  int
	LogLevel         string
	LogFormat        string
	AllowedOrigin    string
}

func Load() *Config {
	cfg := &Config{
		Port:             getEnvInt("PORT", 8080),
		DataDir:          getEnv("DATA_DIR", "/data"),
		CacheType:        getEnv("CACHE", "memory"),
		CacheCapacity:    getEnvInt("CACHE_CAPACITY", 6),
		CacheMinFreeMB:   getEnvInt("CACHE_MIN_FREE_MB", 0),
		DraftWorkers:     getEnvInt("DRAFT_WORKERS", 2),
		MaxFileSizeMB:    getEnvInt("MAX_FILE_SIZE_MB", 500),
		ArchivesEnabled:  getEnvBool("ARCHIVES_ENABLED", true),
		SlideDuration:    getEnvDuration("SLIDE_DURATION", 4*time.Second),
		SlideMode:        getEnv("SLIDE_MODE", "random"),
		FitMode:          getEnv("FIT_MODE", "fit"),
		ViewportWidth:    getEnvInt("VIEWPORT_WIDTH", 1024),
		ViewportHeight:   getEnvInt("VIEWPORT_HEIGHT", 728),
		DraftJPEGQuality: getEnvInt("DRAFT_JPEG_QUALITY", 70),
		FinalJPEGQuality: getEnvInt("FINAL_JPEG_QUALITY", 92),
		VipsMaxCacheMB:   getEnvInt("VIPS_MAX_CACHE_MB", 256),
		VipsConcurrency:  getEnvInt("VIPS_CONCURRENCY", 1),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "json"),
		AllowedOrigin:    getEnv("ALLOWED_ORIGIN", ""),
	}

	return cfg
}

// Validate rejects values the server cannot run with
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	if c.CacheType != "memory" && c.CacheType != "disabled" {
		return fmt.Errorf("unknown CACHE type: %s (supported: memory, disabled)", c.CacheType)
	}
	if c.CacheCapacity < 1 {
		return fmt.Errorf("CACHE_CAPACITY must be at least 1, got %d", c.CacheCapacity)
	}
	if c.CacheMinFreeMB < 0 {
		return fmt.Errorf("CACHE_MIN_FREE_MB must not be negative, got %d", c.CacheMinFreeMB)
	}
	if c.DraftWorkers < 1 {
		return fmt.Errorf("DRAFT_WORKERS must be at least 1, got %d", c.DraftWorkers)
	}
	if c.MaxFileSizeMB < 1 {
		return fmt.Errorf("MAX_FILE_SIZE_MB must be at least 1, got %d", c.MaxFileSizeMB)
	}
	if c.SlideDuration <= 0 {
		return fmt.Errorf("SLIDE_DURATION must be positive, got %s", c.SlideDuration)
	}
	if c.ViewportWidth < 1 || c.ViewportHeight < 1 {
		return fmt.Errorf("viewport must be positive, got %dx%d", c.ViewportWidth, c.ViewportHeight)
	}
	for name, q := range map[string]int{"DRAFT_JPEG_QUALITY": c.DraftJPEGQuality, "FINAL_JPEG_QUALITY": c.FinalJPEGQuality} {
		if q < 1 || q > 100 {
			return fmt.Errorf("%s must be within 1..100, got %d", name, q)
		}
	}
	return nil
}

// MinFreeBytes is the memory floor for the cache, 0 when the policy is off
func (c *Config) MinFreeBytes() uint64 {
	return uint64(c.CacheMinFreeMB) * 1024 * 1024
}

// MaxFileSize is the per-file read ceiling in bytes
func (c *Config) MaxFileSize() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("4s", "1m30s") or plain seconds ("4", "2.5")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(seconds * float64(time.Second))
	}
	return defaultValue
}
