// Command ingest runs one extraction: it pulls every page of the
// customer records API into a timestamped local CSV file and uploads
// the completed file to object storage.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/JingYou-data/serverless-data-microservice/pkg/client"
	"github.com/JingYou-data/serverless-data-microservice/pkg/extract"
	"github.com/JingYou-data/serverless-data-microservice/pkg/logging"
	"github.com/JingYou-data/serverless-data-microservice/pkg/normalize"
	"github.com/JingYou-data/serverless-data-microservice/pkg/ratelimit"
	"github.com/JingYou-data/serverless-data-microservice/pkg/sink"
	"github.com/JingYou-data/serverless-data-microservice/pkg/storage"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// config holds everything the run needs, loaded from the environment.
type config struct {
	baseURL  string
	endpoint string
	token    string

	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	recordsPerPage int
	requestTimeout time.Duration
	interPageDelay time.Duration

	outputDir string

	redisURL string

	storageEndpoint  string
	storageAccessKey string
	storageSecretKey string
	storageUseSSL    bool
	bucket           string
	prefix           string
}

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: getEnvBool("LOG_PRETTY", false),
		Output: os.Stderr,
	})

	cfg, err := loadConfig()
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, outputPath, err := run(ctx, logger, cfg)
	if report != nil {
		report.LogSummary(logger)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("Extraction failed")
	}

	upload(ctx, logger, cfg, outputPath)
}

// run executes the extraction and returns the report and the local
// output path.
func run(ctx context.Context, logger zerolog.Logger, cfg config) (*extract.RunReport, string, error) {
	var tracker *ratelimit.Tracker
	if cfg.redisURL != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.redisURL})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return nil, "", fmt.Errorf("connect to redis at %s: %w", cfg.redisURL, err)
		}
		defer redisClient.Close()

		tracker = ratelimit.NewTracker(redisClient, logging.NewLogger("ratelimit"))
		logger.Info().Str("redis", cfg.redisURL).Msg("Rate limit budget tracking enabled")
	}

	apiClient, err := client.New(client.Config{
		BaseURL:     cfg.baseURL,
		Endpoint:    cfg.endpoint,
		Token:       cfg.token,
		MaxAttempts: cfg.maxAttempts,
		Backoff: client.BackoffPolicy{
			InitialWait: cfg.initialBackoff,
			MaxWait:     cfg.maxBackoff,
		},
		RequestTimeout: cfg.requestTimeout,
		RateLimiter:    tracker,
	})
	if err != nil {
		return nil, "", fmt.Errorf("create API client: %w", err)
	}

	normalizer := normalize.New(normalize.DefaultColumns(), normalize.DefaultSentinel)

	outputPath := filepath.Join(cfg.outputDir, sink.TimestampedName("customers_extract", time.Now()))
	writer, err := sink.Open(outputPath, normalizer.Columns())
	if err != nil {
		return nil, "", fmt.Errorf("open output file: %w", err)
	}

	extractor, err := extract.New(apiClient, normalizer, writer, extract.Config{
		PageSize:       cfg.recordsPerPage,
		InterPageDelay: cfg.interPageDelay,
	})
	if err != nil {
		writer.Close()
		return nil, "", fmt.Errorf("create extractor: %w", err)
	}

	logger.Info().
		Str("api", cfg.baseURL+cfg.endpoint).
		Str("output", outputPath).
		Msg("Starting extraction")

	report, runErr := extractor.Run(ctx)

	if err := writer.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close output file")
	}

	for column, count := range normalizer.MissingCounts() {
		logger.Debug().
			Str("column", column).
			Int("substitutions", count).
			Msg("Missing field substituted with sentinel")
	}

	if runErr != nil {
		return report, outputPath, runErr
	}

	return report, outputPath, nil
}

// upload pushes the completed file to object storage. Upload failures
// are reported, not retried; the local file stays in place either way.
func upload(ctx context.Context, logger zerolog.Logger, cfg config, outputPath string) {
	if cfg.bucket == "" {
		logger.Info().Str("output", outputPath).Msg("No bucket configured, keeping local file only")
		return
	}

	uploader, err := storage.NewUploader(storage.Config{
		Endpoint:  cfg.storageEndpoint,
		AccessKey: cfg.storageAccessKey,
		SecretKey: cfg.storageSecretKey,
		UseSSL:    cfg.storageUseSSL,
		Bucket:    cfg.bucket,
		Prefix:    cfg.prefix,
	})
	if err != nil {
		logger.Warn().Err(err).Str("output", outputPath).Msg("Upload skipped, local file retained")
		return
	}

	if err := uploader.EnsureBucket(ctx); err != nil {
		logger.Warn().Err(err).Str("output", outputPath).Msg("Upload skipped, local file retained")
		return
	}

	uri, err := uploader.Upload(ctx, outputPath)
	if err != nil {
		logger.Warn().Err(err).Str("output", outputPath).Msg("Upload failed, local file retained")
		return
	}

	logger.Info().Str("uri", uri).Msg("Extract uploaded")
}

// loadConfig reads and validates the environment.
func loadConfig() (config, error) {
	cfg := config{
		baseURL:  os.Getenv("API_BASE_URL"),
		endpoint: getEnv("API_ENDPOINT", "/api/v1/customers"),
		token:    os.Getenv("API_TOKEN"),

		maxAttempts:    getEnvInt("MAX_RETRIES", 5),
		initialBackoff: getEnvDuration("INITIAL_BACKOFF", 1*time.Second),
		maxBackoff:     getEnvDuration("MAX_BACKOFF", 30*time.Second),
		recordsPerPage: getEnvInt("RECORDS_PER_PAGE", 1000),
		requestTimeout: getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		interPageDelay: getEnvDuration("INTER_PAGE_DELAY", 500*time.Millisecond),

		outputDir: getEnv("OUTPUT_DIR", "."),

		redisURL: os.Getenv("REDIS_URL"),

		storageEndpoint:  os.Getenv("STORAGE_ENDPOINT"),
		storageAccessKey: os.Getenv("STORAGE_ACCESS_KEY"),
		storageSecretKey: os.Getenv("STORAGE_SECRET_KEY"),
		storageUseSSL:    getEnvBool("STORAGE_USE_SSL", true),
		bucket:           os.Getenv("S3_BUCKET"),
		prefix:           getEnv("S3_PREFIX", "raw/customers"),
	}

	if cfg.baseURL == "" {
		return cfg, fmt.Errorf("API_BASE_URL is required")
	}
	if cfg.token == "" {
		return cfg, fmt.Errorf("API_TOKEN is required")
	}
	if cfg.maxAttempts < 1 {
		return cfg, fmt.Errorf("MAX_RETRIES must be >= 1 (got %d)", cfg.maxAttempts)
	}
	if cfg.recordsPerPage < 1 {
		return cfg, fmt.Errorf("RECORDS_PER_PAGE must be >= 1 (got %d)", cfg.recordsPerPage)
	}
	if cfg.bucket != "" && cfg.storageEndpoint == "" {
		return cfg, fmt.Errorf("STORAGE_ENDPOINT is required when S3_BUCKET is set")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		warnBadEnv(key, value, defaultValue)
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		warnBadEnv(key, value, defaultValue)
		return defaultValue
	}
	return b
}

// getEnvDuration accepts Go duration strings ("500ms", "30s") and, for
// compatibility with older deployments, bare numbers meaning seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	warnBadEnv(key, value, defaultValue)
	return defaultValue
}

// warnBadEnv makes a discarded malformed value visible instead of
// silently running with the default.
func warnBadEnv(key, value string, defaultValue any) {
	log.Warn().
		Str("key", key).
		Str("value", value).
		Interface("default", defaultValue).
		Msg("Ignoring malformed environment value")
}
