// relay.go reads JSON-lines observations from stdin and pushes them
// through a beacon client to the configured senders.

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/strongdm/ai-beacon/internal/config"
	"github.com/strongdm/ai-beacon/internal/logger"
	"github.com/strongdm/ai-beacon/internal/telemetry"
	"github.com/strongdm/ai-beacon/pkg/beacon"
	"github.com/strongdm/ai-beacon/pkg/beacon/integrations"
)

// maxLineBytes bounds one input line.
const maxLineBytes = 4 << 20

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Capture JSON-lines observations from stdin and deliver them",
	Long: `relay reads one JSON object per line from stdin, for example

  {"category":"error","error_type":"TypeError","message":"x is undefined","tags":{"page":"/cart"}}

and captures each through the full pipeline: dedup, sampling, enrichment,
tiering and batched delivery to the configured senders. On EOF it flushes
and exits.`,
	RunE: runRelay,
}

// relayEvent is the input line format.
type relayEvent struct {
	ID           string            `json:"id"`
	Category     beacon.Category   `json:"category"`
	Name         string            `json:"name"`
	Timestamp    int64             `json:"timestamp"` // unix milliseconds
	ErrorType    string            `json:"error_type"`
	Message      string            `json:"message"`
	Stack        string            `json:"stack"`
	Fatal        bool              `json:"fatal"`
	URL          string            `json:"url"`
	Method       string            `json:"method"`
	Status       int               `json:"status"`
	ResourceType string            `json:"resource_type"`
	Value        float64           `json:"value"`
	Unit         string            `json:"unit"`
	Fields       map[string]any    `json:"fields"`
	Tags         map[string]string `json:"tags"`
}

func (e relayEvent) raw() beacon.RawEvent {
	raw := beacon.RawEvent{
		ID:           e.ID,
		Category:     e.Category,
		Name:         e.Name,
		ErrorType:    e.ErrorType,
		Message:      e.Message,
		Stack:        e.Stack,
		Fatal:        e.Fatal,
		URL:          e.URL,
		Method:       e.Method,
		Status:       e.Status,
		ResourceType: e.ResourceType,
		Value:        e.Value,
		Unit:         e.Unit,
		Fields:       e.Fields,
	}
	if raw.Category == "" {
		raw.Category = beacon.CategoryCustom
	}
	if e.Timestamp > 0 {
		raw.Timestamp = time.UnixMilli(e.Timestamp)
	}
	return raw
}

// relayStats counts input lines by outcome.
type relayStats struct {
	Lines    int
	Captured int
	Skipped  int
}

func runRelay(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx := cmd.Context()

	tp, err := telemetry.NewProvider(ctx, cfg.OTLP, "beacon-relay")
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warn("metrics shutdown failed", zap.Error(err))
		}
	}()

	sender, release, err := buildSender(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer release()

	opts := []beacon.Option{
		beacon.WithSender(sender),
		beacon.WithLogger(log),
		beacon.WithMeterProvider(tp.MeterProvider),
		beacon.WithIntegrations(integrations.NewErrors(), integrations.NewSession()),
	}
	if cfg.OfflineFile != "" {
		opts = append(opts, beacon.WithOfflinePersister(beacon.NewFileStore(cfg.OfflineFile)))
	}
	client, err := beacon.NewClient(cfg.Config, opts...)
	if err != nil {
		_ = sender.Close()
		return err
	}

	stats, relayErr := relay(ctx, client, cmd.InOrStdin(), log)
	log.Info("relay input finished",
		zap.Int("lines", stats.Lines),
		zap.Int("captured", stats.Captured),
		zap.Int("skipped", stats.Skipped))

	flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout+cfg.Transport.SendTimeout)
	defer cancel()
	if err := client.Flush(flushCtx); err != nil {
		log.Warn("flush did not complete", zap.Error(err))
	}
	if err := client.Close(); err != nil {
		log.Warn("client close", zap.Error(err))
	}
	return relayErr
}

// relay captures every well-formed line from in until EOF or ctx is
// done. Malformed lines are logged and skipped.
func relay(ctx context.Context, client *beacon.Client, in io.Reader, log *zap.Logger) (relayStats, error) {
	var stats relayStats

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64<<10), maxLineBytes)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		stats.Lines++

		ev, err := decodeLine(line)
		if err != nil {
			stats.Skipped++
			log.Warn("skipping malformed line", zap.Int("line", stats.Lines), zap.Error(err))
			continue
		}

		lineCtx := ctx
		for k, v := range ev.Tags {
			lineCtx = beacon.WithTag(lineCtx, k, v)
		}
		client.CaptureContext(lineCtx, ev.raw())
		stats.Captured++
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("relay: read input: %w", err)
	}
	return stats, nil
}

// decodeLine parses one line. Integral numbers in fields stay int64 so
// they reach the wire without a decimal point.
func decodeLine(line []byte) (relayEvent, error) {
	var ev relayEvent
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	if err := dec.Decode(&ev); err != nil {
		return ev, err
	}
	for k, v := range ev.Fields {
		ev.Fields[k] = normalizeNumbers(v)
	}
	return ev, nil
}

func normalizeNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case map[string]any:
		for k, e := range x {
			x[k] = normalizeNumbers(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = normalizeNumbers(e)
		}
		return x
	}
	return v
}
