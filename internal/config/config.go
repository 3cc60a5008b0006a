// Package config loads lens-match settings from the environment.
//
// A .env file in the working directory is read first when present. Every key
// is prefixed LENS_.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Backend names.
const (
	BackendNone      = "none"
	BackendTesseract = "tesseract"
	BackendOllama    = "ollama"
	BackendScene     = "scene"
	BackendHistogram = "histogram"
)

type AppConfig struct {
	LogLevel     string
	DataDir      string
	HTTPAddr     string
	HTTPToken    string
	MaxImageSide int
	SeedDefaults bool
}

type TextConfig struct {
	Backend        string
	Languages      []string
	TessdataPrefix string
}

type LabelConfig struct {
	Backend         string
	OllamaURL       string
	VisionModel     string
	TimeoutSeconds  int
	TopK            int
	ConfidenceFloor float64
}

type EmbeddingConfig struct {
	Backend string
}

type Config struct {
	App       AppConfig
	Text      TextConfig
	Labels    LabelConfig
	Embedding EmbeddingConfig
}

// Load reads configuration from the environment, with defaults for every key.
func Load() (*Config, error) {
	_ = godotenv.Load()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	defaultDataDir := filepath.Join(homeDir, ".local", "share", "lens-match")

	return &Config{
		App: AppConfig{
			LogLevel:     getEnv("LENS_LOG_LEVEL", "info"),
			DataDir:      getEnv("LENS_DATA_DIR", defaultDataDir),
			HTTPAddr:     getEnv("LENS_HTTP_ADDR", "127.0.0.1:8787"),
			HTTPToken:    getEnv("LENS_HTTP_TOKEN", ""),
			MaxImageSide: getEnvInt("LENS_MAX_IMAGE_SIDE", 1600),
			SeedDefaults: getEnvBool("LENS_SEED_DEFAULT_RULES", true),
		},
		Text: TextConfig{
			Backend:        strings.ToLower(getEnv("LENS_TEXT_BACKEND", BackendTesseract)),
			Languages:      splitList(getEnv("LENS_OCR_LANGUAGE", "eng")),
			TessdataPrefix: getEnv("LENS_TESSDATA_PREFIX", ""),
		},
		Labels: LabelConfig{
			Backend:         strings.ToLower(getEnv("LENS_LABEL_BACKEND", BackendScene)),
			OllamaURL:       getEnv("LENS_OLLAMA_URL", "http://localhost:11434"),
			VisionModel:     getEnv("LENS_OLLAMA_VISION_MODEL", "llava:7b"),
			TimeoutSeconds:  getEnvInt("LENS_OLLAMA_TIMEOUT_SECONDS", 60),
			TopK:            getEnvInt("LENS_LABEL_TOP_K", 5),
			ConfidenceFloor: getEnvFloat("LENS_LABEL_CONFIDENCE_FLOOR", 0),
		},
		Embedding: EmbeddingConfig{
			Backend: strings.ToLower(getEnv("LENS_EMBEDDING_BACKEND", BackendHistogram)),
		},
	}, nil
}

// Validate rejects unknown backend names and out-of-range values.
func (c *Config) Validate() error {
	if err := oneOf("LENS_TEXT_BACKEND", c.Text.Backend, BackendTesseract, BackendNone); err != nil {
		return err
	}
	if err := oneOf("LENS_LABEL_BACKEND", c.Labels.Backend, BackendOllama, BackendScene, BackendNone); err != nil {
		return err
	}
	if err := oneOf("LENS_EMBEDDING_BACKEND", c.Embedding.Backend, BackendHistogram, BackendNone); err != nil {
		return err
	}
	switch strings.ToLower(c.App.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LENS_LOG_LEVEL must be debug, info, warn or error, got %q", c.App.LogLevel)
	}

	floor := c.Labels.ConfidenceFloor
	if math.IsNaN(floor) || floor < 0 || floor > 1 {
		return fmt.Errorf("LENS_LABEL_CONFIDENCE_FLOOR must be within [0,1], got %v", floor)
	}
	if c.App.MaxImageSide < 0 {
		return fmt.Errorf("LENS_MAX_IMAGE_SIDE must not be negative, got %d", c.App.MaxImageSide)
	}
	if c.Labels.TopK <= 0 {
		return fmt.Errorf("LENS_LABEL_TOP_K must be positive, got %d", c.Labels.TopK)
	}
	if c.Labels.Backend == BackendOllama {
		if c.Labels.OllamaURL == "" || c.Labels.VisionModel == "" {
			return fmt.Errorf("LENS_OLLAMA_URL and LENS_OLLAMA_VISION_MODEL are required for the ollama label backend")
		}
		if c.Labels.TimeoutSeconds <= 0 {
			return fmt.Errorf("LENS_OLLAMA_TIMEOUT_SECONDS must be positive, got %d", c.Labels.TimeoutSeconds)
		}
	}
	if c.Text.Backend == BackendTesseract && len(c.Text.Languages) == 0 {
		return fmt.Errorf("LENS_OCR_LANGUAGE is required for the tesseract text backend")
	}
	return nil
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, ", "), value)
}

// splitList splits a "+" or "," separated language list such as "eng+deu".
func splitList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == '+' || r == ',' })
	out := fields[:0]
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
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
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
