package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/prepbufr-etl/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Empty(t, cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)

	assert.Equal(t, 6.0, cfg.BucketHours)
	assert.Equal(t, domain.AlignStart, cfg.BucketAlignment)
	assert.False(t, cfg.Combined)
	assert.False(t, cfg.OutputGridded)
	assert.Equal(t, "out", cfg.OutputDir)
	assert.Empty(t, cfg.ErrorTablePath)

	assert.Equal(t, SourceFile, cfg.Source)
	assert.Equal(t, "data/mock/observations.json", cfg.SourceFile)
	assert.True(t, cfg.StartTime.IsZero())
	assert.True(t, cfg.EndTime.IsZero())
	assert.Equal(t, 24*time.Hour, cfg.Lookback)

	assert.Equal(t, "https://sensor-data.windbornesystems.com/api/v1", cfg.WindBorneURL)
	assert.Equal(t, 30*time.Second, cfg.WindBorneTimeout)
	assert.Equal(t, 3, cfg.WindBorneRetryAttempts)

	assert.Empty(t, cfg.KafkaBrokers)
	assert.False(t, cfg.KafkaSinkEnabled())
	assert.Equal(t, "raw-observations", cfg.KafkaSourceTopic)
	assert.Equal(t, "prepbufr-etl", cfg.KafkaGroupID)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.BatchFlushInterval)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("BUCKET_HOURS", "3")
	t.Setenv("BUCKET_ALIGN", "cycle")
	t.Setenv("COMBINED", "true")
	t.Setenv("OUTPUT_GRIDDED", "1")
	t.Setenv("OUTPUT_DIR", "/tmp/bufr")
	t.Setenv("ERROR_TABLE_PATH", "tables.toml")
	t.Setenv("SOURCE", "windborne")
	t.Setenv("WB_CLIENT_ID", "client")
	t.Setenv("WB_API_KEY", "secret")
	t.Setenv("WB_TIMEOUT", "5s")
	t.Setenv("WB_RETRY_ATTEMPTS", "5")
	t.Setenv("START_TIME", "2024-04-26T00:00:00Z")
	t.Setenv("END_TIME", "1714176000")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_SINK_TOPIC", "prepbufr-reports")
	t.Setenv("BATCH_SIZE", "100")
	t.Setenv("BATCH_FLUSH_INTERVAL", "1s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 3.0, cfg.BucketHours)
	assert.Equal(t, domain.AlignCycle, cfg.BucketAlignment)
	assert.True(t, cfg.Combined)
	assert.True(t, cfg.OutputGridded)
	assert.Equal(t, "/tmp/bufr", cfg.OutputDir)
	assert.Equal(t, "tables.toml", cfg.ErrorTablePath)
	assert.Equal(t, SourceWindBorne, cfg.Source)
	assert.Equal(t, "client", cfg.WindBorneClientID)
	assert.Equal(t, "secret", cfg.WindBorneAPIKey)
	assert.Equal(t, 5*time.Second, cfg.WindBorneTimeout)
	assert.Equal(t, 5, cfg.WindBorneRetryAttempts)
	assert.Equal(t, time.Date(2024, 4, 26, 0, 0, 0, 0, time.UTC), cfg.StartTime)
	assert.Equal(t, time.Date(2024, 4, 27, 0, 0, 0, 0, time.UTC), cfg.EndTime)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaSinkEnabled())
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, time.Second, cfg.BatchFlushInterval)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
		want  string
	}{
		{"SHUTDOWN_TIMEOUT", "not-a-duration", "SHUTDOWN_TIMEOUT"},
		{"BATCH_SIZE", "0", "BATCH_SIZE"},
		{"BATCH_FLUSH_INTERVAL", "nope", "BATCH_FLUSH_INTERVAL"},
		{"BUCKET_HOURS", "abc", "BUCKET_HOURS"},
		{"BUCKET_HOURS", "-6", "BUCKET_HOURS"},
		{"BUCKET_HOURS", "0.0000001", "BUCKET_HOURS"},
		{"BUCKET_ALIGN", "noon", "BUCKET_ALIGN"},
		{"COMBINED", "maybe", "COMBINED"},
		{"OUTPUT_GRIDDED", "sometimes", "OUTPUT_GRIDDED"},
		{"LOOKBACK", "-1h", "LOOKBACK"},
		{"WB_TIMEOUT", "0s", "WB_TIMEOUT"},
		{"WB_RETRY_ATTEMPTS", "0", "WB_RETRY_ATTEMPTS"},
		{"START_TIME", "yesterday", "START_TIME"},
		{"SOURCE", "ftp", "SOURCE"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_WindBorneRequiresCredentials(t *testing.T) {
	t.Setenv("SOURCE", "windborne")
	t.Setenv("WB_CLIENT_ID", "client")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WB_API_KEY")
}

func TestLoad_KafkaSourceRequiresBrokers(t *testing.T) {
	t.Setenv("SOURCE", "kafka")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KAFKA_BROKERS")

	t.Setenv("KAFKA_BROKERS", "localhost:9092")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.KafkaSinkEnabled())
}

func TestLoad_TimeWindowOrder(t *testing.T) {
	t.Setenv("START_TIME", "2024-04-27T00:00:00Z")
	t.Setenv("END_TIME", "2024-04-26T00:00:00Z")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "START_TIME")
}
