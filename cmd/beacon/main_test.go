package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/strongdm/ai-beacon/internal/config"
	"github.com/strongdm/ai-beacon/pkg/beacon"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "beacon dev")
}

func TestRelayCommand_EndToEnd(t *testing.T) {
	t.Setenv("BEACON_SENDERS", "noop")
	t.Setenv("BEACON_TRANSPORT_ENABLE_OFFLINE", "false")

	rootCmd.SetIn(bytes.NewBufferString(`{"category":"custom","name":"a"}` + "\n"))
	rootCmd.SetArgs([]string{"relay"})
	t.Cleanup(func() {
		rootCmd.SetIn(nil)
		rootCmd.SetArgs(nil)
	})

	assert.NoError(t, rootCmd.ExecuteContext(context.Background()))
}

func testConfig(senders ...string) *config.Config {
	return &config.Config{Config: beacon.DefaultConfig(), Senders: senders}
}

func TestBuildSender(t *testing.T) {
	ctx := context.Background()

	s, release, err := buildSender(ctx, testConfig(config.SenderStderr), zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, s)
	release()

	cfg := testConfig(config.SenderNoop, config.SenderKafka)
	cfg.Kafka = config.KafkaConfig{Brokers: []string{"127.0.0.1:9092"}, Topic: "events"}
	s, release, err = buildSender(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, s.Send(ctx, beacon.Batch{}), "an empty batch reaches no sender")
	assert.NoError(t, s.Close())
	release()
}

func TestBuildSender_Errors(t *testing.T) {
	ctx := context.Background()

	_, _, err := buildSender(ctx, testConfig("pigeon"), zap.NewNop())
	assert.ErrorContains(t, err, `unknown sender "pigeon"`)

	_, _, err = buildSender(ctx, testConfig(config.SenderStderr, config.SenderKafka), zap.NewNop())
	assert.ErrorContains(t, err, "brokers and topic")

	_, _, err = buildSender(ctx, testConfig(), zap.NewNop())
	assert.Error(t, err)
}
