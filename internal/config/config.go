package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/prepbufr-etl/internal/domain"
)

// Observation sources.
const (
	SourceWindBorne = "windborne"
	SourceKafka     = "kafka"
	SourceFile      = "file"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Bucketing and output.
	BucketHours     float64
	BucketAlignment domain.Alignment
	Combined        bool
	OutputGridded   bool
	OutputDir       string
	ErrorTablePath  string

	// Observation source selection and fetch window.
	Source     string
	SourceFile string
	StartTime  time.Time // zero means EndTime - Lookback
	EndTime    time.Time // zero means now
	Lookback   time.Duration

	// WindBorne sensor-data API.
	WindBorneURL           string
	WindBorneClientID      string
	WindBorneAPIKey        string
	WindBorneTimeout       time.Duration
	WindBorneRetryAttempts int

	// Kafka source and sink. The sink is enabled when brokers and a sink
	// topic are both set.
	KafkaBrokers       []string
	KafkaSourceTopic   string
	KafkaSinkTopic     string
	KafkaGroupID       string
	BatchSize          int
	BatchFlushInterval time.Duration
}

// KafkaSinkEnabled reports whether report batches are also published to Kafka.
func (c *Config) KafkaSinkEnabled() bool {
	return len(c.KafkaBrokers) > 0 && c.KafkaSinkTopic != ""
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	bucketHours, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("BUCKET_HOURS", "6.0"), 64)
	if err != nil || bucketHours <= 0 {
		return nil, errors.New("invalid BUCKET_HOURS")
	}

	alignment, err := domain.ParseAlignment(sharedcfg.EnvOrDefault("BUCKET_ALIGN", "start"))
	if err != nil {
		return nil, fmt.Errorf("invalid BUCKET_ALIGN: %w", err)
	}

	combined, err := parseBool("COMBINED", false)
	if err != nil {
		return nil, err
	}
	gridded, err := parseBool("OUTPUT_GRIDDED", false)
	if err != nil {
		return nil, err
	}

	lookback, err := parsePositiveDuration("LOOKBACK", "24h")
	if err != nil {
		return nil, err
	}
	wbTimeout, err := parsePositiveDuration("WB_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}

	retries, err := strconv.Atoi(sharedcfg.EnvOrDefault("WB_RETRY_ATTEMPTS", "3"))
	if err != nil || retries < 1 {
		return nil, errors.New("invalid WB_RETRY_ATTEMPTS")
	}

	start, err := parseTime("START_TIME")
	if err != nil {
		return nil, err
	}
	end, err := parseTime("END_TIME")
	if err != nil {
		return nil, err
	}

	var brokers []string
	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}

	cfg := &Config{
		HTTPAddr:        os.Getenv("HTTP_ADDR"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		BucketHours:     bucketHours,
		BucketAlignment: alignment,
		Combined:        combined,
		OutputGridded:   gridded,
		OutputDir:       sharedcfg.EnvOrDefault("OUTPUT_DIR", "out"),
		ErrorTablePath:  os.Getenv("ERROR_TABLE_PATH"),

		Source:     strings.ToLower(sharedcfg.EnvOrDefault("SOURCE", SourceFile)),
		SourceFile: sharedcfg.EnvOrDefault("SOURCE_FILE", "data/mock/observations.json"),
		StartTime:  start,
		EndTime:    end,
		Lookback:   lookback,

		WindBorneURL:           sharedcfg.EnvOrDefault("WB_API_URL", "https://sensor-data.windbornesystems.com/api/v1"),
		WindBorneClientID:      os.Getenv("WB_CLIENT_ID"),
		WindBorneAPIKey:        os.Getenv("WB_API_KEY"),
		WindBorneTimeout:       wbTimeout,
		WindBorneRetryAttempts: retries,

		KafkaBrokers:       brokers,
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "raw-observations"),
		KafkaSinkTopic:     os.Getenv("KAFKA_SINK_TOPIC"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "prepbufr-etl"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if _, err := domain.NewBucketer(c.BucketHours, c.BucketAlignment); err != nil {
		return fmt.Errorf("invalid BUCKET_HOURS: %w", err)
	}
	if c.OutputDir == "" {
		return errors.New("OUTPUT_DIR is required")
	}
	if !c.StartTime.IsZero() && !c.EndTime.IsZero() && !c.StartTime.Before(c.EndTime) {
		return errors.New("START_TIME must be before END_TIME")
	}

	switch c.Source {
	case SourceWindBorne:
		if c.WindBorneClientID == "" || c.WindBorneAPIKey == "" {
			return errors.New("SOURCE is windborne but WB_CLIENT_ID or WB_API_KEY is not set")
		}
	case SourceKafka:
		if len(c.KafkaBrokers) == 0 {
			return errors.New("SOURCE is kafka but KAFKA_BROKERS is not set")
		}
		if c.KafkaSourceTopic == "" {
			return errors.New("KAFKA_SOURCE_TOPIC is required")
		}
	case SourceFile:
		if c.SourceFile == "" {
			return errors.New("SOURCE is file but SOURCE_FILE is not set")
		}
	default:
		return fmt.Errorf("invalid SOURCE %q", c.Source)
	}
	return nil
}

func parseBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s", key)
	}
	return b, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

// parseTime accepts RFC3339 or unix seconds. Unset yields the zero time.
func parseTime(key string) (time.Time, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return time.Time{}, nil
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s", key)
	}
	return t.UTC(), nil
}
