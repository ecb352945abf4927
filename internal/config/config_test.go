package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strongdm/ai-beacon/pkg/beacon"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "beacon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	def := beacon.DefaultConfig()
	assert.Equal(t, def.Transport, cfg.Transport)
	assert.Equal(t, def.Dedup, cfg.Dedup)
	assert.Equal(t, def.Replay, cfg.Replay)
	assert.NotNil(t, cfg.LayeredTransport)
	assert.Equal(t, []string{SenderStderr}, cfg.Senders)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, ":8080", cfg.Receive.Addr)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeFile(t, `
dsn: https://ingest.example.com/v1/events
app_id: shop
senders: [http, stderr]
sampling:
  error_sample_rate: 0.25
  bypass: [crash, error]
transport:
  batch_size: 50
  flush_interval: 2s
dedup:
  time_window: 10s
tiers:
  custom: critical
kafka:
  brokers: [localhost:9092]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://ingest.example.com/v1/events", cfg.DSN)
	assert.Equal(t, "shop", cfg.AppID)
	assert.Equal(t, []string{SenderHTTP, SenderStderr}, cfg.Senders)
	assert.Equal(t, 0.25, cfg.Sampling.ErrorSampleRate)
	assert.Equal(t, []beacon.Category{beacon.CategoryCrash, beacon.CategoryError}, cfg.Sampling.Bypass)
	assert.Equal(t, 50, cfg.Transport.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.Transport.FlushInterval)
	assert.Equal(t, 10*time.Second, cfg.Dedup.TimeWindow)
	assert.Equal(t, beacon.TierCritical, cfg.Tiers[beacon.CategoryCustom])
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "beacon-events", cfg.Kafka.Topic)

	// Untouched keys keep their defaults.
	assert.Equal(t, 100, cfg.Transport.OfflineQueueSize)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "app_id: from-file\ntransport:\n  batch_size: 50\n")
	t.Setenv("BEACON_APP_ID", "from-env")
	t.Setenv("BEACON_TRANSPORT_BATCH_SIZE", "7")
	t.Setenv("BEACON_DEDUP_TIME_WINDOW", "1s")
	t.Setenv("BEACON_TRANSPORT_GZIP", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.AppID)
	assert.Equal(t, 7, cfg.Transport.BatchSize)
	assert.Equal(t, time.Second, cfg.Dedup.TimeWindow)
	assert.True(t, cfg.Transport.Gzip)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidClientConfig(t *testing.T) {
	path := writeFile(t, "transport:\n  batch_size: 0\n")
	_, err := Load(path)
	assert.ErrorContains(t, err, "transport.batch_size")
}

func TestValidate_SenderRequirements(t *testing.T) {
	tests := []struct {
		name    string
		senders []string
		want    string
	}{
		{"none", nil, "at least one sender"},
		{"unknown", []string{"carrier-pigeon"}, `unknown sender "carrier-pigeon"`},
		{"http without dsn", []string{SenderHTTP}, "requires dsn"},
		{"sqs without queue", []string{SenderSQS}, "sqs.queue_url"},
		{"kafka without brokers", []string{SenderKafka}, "kafka.brokers"},
		{"cxdb without addr", []string{SenderCXDB}, "cxdb.addr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Config: beacon.DefaultConfig(), Senders: tt.senders}
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}

	ok := Config{Config: beacon.DefaultConfig(), Senders: []string{SenderStderr, SenderNoop}}
	assert.NoError(t, ok.Validate())
}
