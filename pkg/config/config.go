// Package config loads the control plane's configuration from environment
// variables, following the flat-struct / getEnv idiom used across the
// Oriane Go services.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable named in the configuration table of the spec,
// plus the ambient logging/storage fields every service carries.
type Config struct {
	// HTTP surface (C4)
	HTTPAddr            string
	MaxVideosPerRequest int

	// Concurrency manager (C2)
	MaxParallelJobs int

	// Worker runner (C3)
	PipelineEntrypoint string
	DebugPipeline      bool

	// Batch orchestrator (C5)
	BatchSize           int
	InterBatchDelay     time.Duration
	InterItemDelay      time.Duration
	MaxRetries          int
	CheckpointFile      string
	BatchDriverCommand  string
	EmptyBatchRetries   int
	EmptyBatchBackoff   time.Duration
	ShutdownGracePeriod time.Duration

	// Verifier / vector store (C7)
	VectorCollection string
	WeaviateURL      string
	WeaviateAPIKey   string

	// Source table (A4)
	SourceDBDSN string
	SQLitePath  string

	// Object store (A3)
	VideosBucket string
	FramesBucket string
	AWSRegion    string

	// Logging (A2)
	LogLevel  string
	LogFormat string
}

func getEnv(key, defaultValue string, printEnv bool) string {
	value := os.Getenv(key)
	if printEnv {
		if value == "" {
			log.Printf("ENV: %s = %s (default)", key, defaultValue)
		} else {
			log.Printf("ENV: %s = %s", key, displayValue(key, value))
		}
	}
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int, printEnv bool) int {
	raw := getEnv(key, "", printEnv)
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("ENV: %s = %q is not an integer, using default %d", key, raw, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool, printEnv bool) bool {
	raw := getEnv(key, "", printEnv)
	if raw == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("ENV: %s = %q is not a bool, using default %t", key, raw, defaultValue)
		return defaultValue
	}
	return b
}

func getEnvSeconds(key string, defaultSeconds float64, printEnv bool) time.Duration {
	raw := getEnv(key, "", printEnv)
	if raw == "" {
		return time.Duration(defaultSeconds * float64(time.Second))
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("ENV: %s = %q is not a number, using default %gs", key, raw, defaultSeconds)
		return time.Duration(defaultSeconds * float64(time.Second))
	}
	return time.Duration(secs * float64(time.Second))
}

func isSensitiveKey(key string) bool {
	sensitiveSuffixes := []string{"API_KEY", "TOKEN", "PASSWORD", "SECRET", "DSN"}
	for _, suffix := range sensitiveSuffixes {
		if len(key) >= len(suffix) && key[len(key)-len(suffix):] == suffix {
			return true
		}
	}
	return false
}

func displayValue(key, value string) string {
	if !isSensitiveKey(key) {
		return value
	}
	l := len(value)
	if l <= 8 {
		return "***masked***"
	}
	return value[:4] + "***masked***" + value[l-4:]
}

// Load reads configuration from the environment (after attempting to load a
// .env file), applying defaults for everything not set. Set
// DEBUG_CONFIG_PRINT=true to echo resolved values (masking secrets) to the
// standard logger, mirroring the teacher service's config loader.
func Load() (*Config, error) {
	_ = godotenv.Load()
	printEnv := os.Getenv("DEBUG_CONFIG_PRINT") == "true"

	cfg := &Config{
		HTTPAddr:            getEnv("HTTP_ADDR", ":8080", printEnv),
		MaxVideosPerRequest: getEnvInt("MAX_VIDEOS_PER_REQUEST", 50, printEnv),

		MaxParallelJobs: getEnvInt("MAX_PARALLEL_JOBS", 4, printEnv),

		PipelineEntrypoint: getEnv("PIPELINE_ENTRYPOINT", "", printEnv),
		DebugPipeline:      getEnvBool("DEBUG_PIPELINE", false, printEnv),

		BatchSize:           getEnvInt("BATCH_SIZE", 1000, printEnv),
		InterBatchDelay:     getEnvSeconds("INTER_BATCH_DELAY", 0.5, printEnv),
		InterItemDelay:      getEnvSeconds("INTER_ITEM_DELAY", 0.1, printEnv),
		MaxRetries:          getEnvInt("MAX_RETRIES", 3, printEnv),
		CheckpointFile:      getEnv("CHECKPOINT_FILE", "./checkpoint.txt", printEnv),
		BatchDriverCommand:  getEnv("BATCH_DRIVER_COMMAND", "", printEnv),
		EmptyBatchRetries:   getEnvInt("EMPTY_BATCH_RETRIES", 3, printEnv),
		EmptyBatchBackoff:   getEnvSeconds("EMPTY_BATCH_BACKOFF", 5, printEnv),
		ShutdownGracePeriod: getEnvSeconds("SHUTDOWN_GRACE_PERIOD", 30, printEnv),

		VectorCollection: getEnv("VECTOR_COLLECTION", "watched_frames", printEnv),
		WeaviateURL:      getEnv("WEAVIATE_URL", "", printEnv),
		WeaviateAPIKey:   getEnv("WEAVIATE_API_KEY", "", printEnv),

		SourceDBDSN: getEnv("SOURCE_DB_DSN", "", printEnv),
		SQLitePath:  getEnv("SQLITE_PATH", "./output/sourcetable.db", printEnv),

		VideosBucket: getEnv("VIDEOS_BUCKET", "oriane-contents", printEnv),
		FramesBucket: getEnv("FRAMES_BUCKET", "oriane-frames", printEnv),
		AWSRegion:    getEnv("AWS_REGION", "us-east-1", printEnv),

		LogLevel:  getEnv("LOG_LEVEL", "info", printEnv),
		LogFormat: getEnv("LOG_FORMAT", "text", printEnv),
	}

	if cfg.MaxParallelJobs <= 0 {
		return nil, fmt.Errorf("MAX_PARALLEL_JOBS must be positive, got %d", cfg.MaxParallelJobs)
	}
	if cfg.MaxVideosPerRequest <= 0 {
		return nil, fmt.Errorf("MAX_VIDEOS_PER_REQUEST must be positive, got %d", cfg.MaxVideosPerRequest)
	}

	return cfg, nil
}
