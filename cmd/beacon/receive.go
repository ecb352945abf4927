// receive.go runs a development ingest endpoint that accepts batches
// posted by the http sender and logs what they contain.

package main

import (
	"context"
	"errors"
	"io"
	"maps"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/strongdm/ai-beacon/internal/config"
	"github.com/strongdm/ai-beacon/internal/logger"
	"github.com/strongdm/ai-beacon/pkg/beacon"
	"github.com/strongdm/ai-beacon/pkg/beacon/senders/httpsender"
)

// maxBodyBytes bounds a decompressed request body.
const maxBodyBytes = 16 << 20

var receiveAddr string

var receiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Run a development ingest endpoint that logs received batches",
	RunE:  runReceive,
}

func init() {
	receiveCmd.Flags().StringVar(&receiveAddr, "addr", "", "Listen address (overrides receive.addr)")
}

func runReceive(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	addr := cfg.Receive.Addr
	if receiveAddr != "" {
		addr = receiveAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           newReceiver(cfg.Receive, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("ingest endpoint starting", zap.String("address", addr), zap.String("path", cfg.Receive.Path))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-cmd.Context().Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	log.Info("ingest endpoint stopping")
	return srv.Shutdown(ctx)
}

// receiver accepts record batches and keeps per event_type totals.
type receiver struct {
	router *gin.Engine
	log    *zap.Logger

	mu     sync.Mutex
	counts map[string]int
}

func newReceiver(cfg config.ReceiveConfig, log *zap.Logger) *receiver {
	r := &receiver{
		router: gin.New(),
		log:    log,
		counts: make(map[string]int),
	}
	r.router.Use(gin.Recovery())

	path := cfg.Path
	if path == "" {
		path = "/ingest"
	}
	r.router.GET("/health", r.health)
	r.router.GET("/stats", r.stats)
	r.router.POST(path, r.ingest)
	return r
}

func (r *receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.router.ServeHTTP(w, req)
}

func (r *receiver) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (r *receiver) stats(c *gin.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.JSON(http.StatusOK, maps.Clone(r.counts))
}

func (r *receiver) ingest(c *gin.Context) {
	body, err := readBody(c.Request)
	if err != nil {
		r.log.Warn("unreadable batch", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "read_error", "message": err.Error()})
		return
	}
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsArray() {
		r.log.Warn("batch is not a JSON array", zap.Int("bytes", len(body)))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
		return
	}
	// Full decode checks every record against the wire format.
	if _, err := beacon.DecodeBatch(body); err != nil {
		r.log.Warn("batch does not decode", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "decode_error", "message": err.Error()})
		return
	}

	appID := c.GetHeader(httpsender.AppIDHeader)
	accepted := 0
	gjson.ParseBytes(body).ForEach(func(_, rec gjson.Result) bool {
		eventType := rec.Get("event_type").String()
		r.log.Info("record received",
			zap.String("app_id", appID),
			zap.String("event_id", rec.Get("event_id").String()),
			zap.String("event_type", eventType),
			zap.String("event_name", rec.Get("event_name").String()),
			zap.String("tier", rec.Get("tier").String()),
			zap.String("fingerprint", rec.Get("fingerprint").String()),
			zap.Int64("dedup_count", rec.Get("dedup_count").Int()),
			zap.String("session_id", rec.Get("session_id").String()))

		r.mu.Lock()
		r.counts[eventType]++
		r.mu.Unlock()
		accepted++
		return true
	})

	c.JSON(http.StatusAccepted, gin.H{"accepted": accepted})
}

// readBody returns the request body, inflating it when the sender
// gzipped it.
func readBody(req *http.Request) ([]byte, error) {
	var body io.Reader = req.Body
	if strings.EqualFold(req.Header.Get("Content-Encoding"), "gzip") {
		zr, err := gzip.NewReader(req.Body)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		body = zr
	}
	data, err := io.ReadAll(io.LimitReader(body, maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxBodyBytes {
		return nil, errors.New("body exceeds size limit")
	}
	return data, nil
}
