package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gestio-hq/gestio/internal/telemetry"
)

// Shipper delivers written audit records to an external destination (SIEM,
// log aggregator, flat file). Shipping is strictly downstream of the local
// write: a record is shipped only after it is durable in the database, and a
// shipping failure never un-writes it.
type Shipper interface {
	// Ship sends one record to the destination.
	Ship(ctx context.Context, rec *Record) error
	// Close flushes buffered records and releases resources.
	Close() error
}

// ShipperConfig selects and configures one shipping destination.
type ShipperConfig struct {
	// Enabled determines if this shipper is active.
	Enabled bool `mapstructure:"enabled" json:"enabled"`
	// Type is the destination kind: "webhook" or "file".
	Type string `mapstructure:"type" json:"type"`
	// Webhook configuration, required when Type is "webhook".
	Webhook *WebhookConfig `mapstructure:"webhook" json:"webhook,omitempty"`
	// File configuration, required when Type is "file".
	File *FileConfig `mapstructure:"file" json:"file,omitempty"`
}

// WebhookConfig holds webhook shipper configuration.
type WebhookConfig struct {
	// URL is the webhook endpoint.
	URL string `mapstructure:"url" json:"url"`
	// Headers are additional HTTP headers to send (e.g. an auth token).
	Headers map[string]string `mapstructure:"headers" json:"headers,omitempty"`
	// Timeout is the per-delivery HTTP timeout.
	Timeout time.Duration `mapstructure:"timeout" json:"timeout"`
	// BatchSize is how many records to accumulate before sending (0 disables batching).
	BatchSize int `mapstructure:"batch_size" json:"batch_size"`
	// FlushInterval is how often a partially filled batch is flushed.
	FlushInterval time.Duration `mapstructure:"flush_interval" json:"flush_interval"`
}

// FileConfig holds file shipper configuration.
type FileConfig struct {
	// Path is the audit log file path.
	Path string `mapstructure:"path" json:"path"`
	// MaxSizeMB is the maximum file size before rotation.
	MaxSizeMB int `mapstructure:"max_size_mb" json:"max_size_mb"`
	// MaxBackups is the number of rotated files to keep.
	MaxBackups int `mapstructure:"max_backups" json:"max_backups"`
}

// MultiShipper fans one record out to every enabled destination. A failing
// destination does not stop delivery to the others.
type MultiShipper struct {
	shippers []Shipper
	types    []string
	mu       sync.RWMutex
}

// NewMultiShipper builds a MultiShipper from configs, skipping disabled
// entries. It returns nil (no shipping) when no destination is enabled.
func NewMultiShipper(configs []ShipperConfig) (*MultiShipper, error) {
	ms := &MultiShipper{}

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		var (
			shipper Shipper
			err     error
		)
		switch cfg.Type {
		case "webhook":
			if cfg.Webhook == nil {
				return nil, fmt.Errorf("webhook config is required for webhook shipper")
			}
			shipper = NewWebhookShipper(cfg.Webhook)
		case "file":
			if cfg.File == nil {
				return nil, fmt.Errorf("file config is required for file shipper")
			}
			shipper, err = NewFileShipper(cfg.File)
		default:
			return nil, fmt.Errorf("unknown shipper type: %s", cfg.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create %s shipper: %w", cfg.Type, err)
		}

		ms.shippers = append(ms.shippers, shipper)
		ms.types = append(ms.types, cfg.Type)
	}

	return ms, nil
}

// Ship delivers rec to every destination, returning the last error seen.
func (ms *MultiShipper) Ship(ctx context.Context, rec *Record) error {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var lastErr error
	for i, shipper := range ms.shippers {
		if err := shipper.Ship(ctx, rec); err != nil {
			lastErr = err
			telemetry.AuditShipFailuresTotal.WithLabelValues(ms.types[i]).Inc()
			slog.Error("audit shipper delivery failed", "destination", ms.types[i], "error", err)
		}
	}
	return lastErr
}

// Close closes every destination.
func (ms *MultiShipper) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var lastErr error
	for _, shipper := range ms.shippers {
		if err := shipper.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// WebhookShipper POSTs records as JSON to an HTTP endpoint, optionally in
// batches.
type WebhookShipper struct {
	cfg       *WebhookConfig
	client    *http.Client
	batchCh   chan *Record
	batch     []*Record
	batchMu   sync.Mutex
	closeCh   chan struct{}
	closeOnce sync.Once
}

// NewWebhookShipper creates a webhook shipper. When cfg.BatchSize > 0 a
// background goroutine accumulates records and flushes them by size or by
// FlushInterval, whichever comes first.
func NewWebhookShipper(cfg *WebhookConfig) *WebhookShipper {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	ws := &WebhookShipper{
		cfg: cfg,
		client: &http.Client{
			Timeout: timeout,
		},
		batchCh: make(chan *Record, 1000),
		closeCh: make(chan struct{}),
	}

	if cfg.BatchSize > 0 {
		go ws.processBatches()
	}

	return ws
}

// processBatches accumulates queued records and flushes on size or interval.
func (ws *WebhookShipper) processBatches() {
	flushInterval := ws.cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case rec := <-ws.batchCh:
			ws.batchMu.Lock()
			ws.batch = append(ws.batch, rec)
			if len(ws.batch) >= ws.cfg.BatchSize {
				ws.flushBatch()
			}
			ws.batchMu.Unlock()
		case <-ticker.C:
			ws.batchMu.Lock()
			if len(ws.batch) > 0 {
				ws.flushBatch()
			}
			ws.batchMu.Unlock()
		case <-ws.closeCh:
			ws.batchMu.Lock()
			if len(ws.batch) > 0 {
				ws.flushBatch()
			}
			ws.batchMu.Unlock()
			return
		}
	}
}

// flushBatch sends the accumulated batch. Caller must hold batchMu.
func (ws *WebhookShipper) flushBatch() {
	if len(ws.batch) == 0 {
		return
	}

	data, err := json.Marshal(ws.batch)
	if err != nil {
		slog.Error("failed to marshal audit batch, dropping", "size", len(ws.batch), "error", err)
		ws.batch = ws.batch[:0]
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), ws.client.Timeout)
	defer cancel()

	if err := ws.sendRequest(ctx, data); err != nil {
		slog.Error("failed to send audit batch", "size", len(ws.batch), "error", err)
	}

	ws.batch = ws.batch[:0]
}

// Ship queues rec for batched delivery, or sends it directly when batching
// is disabled or the queue is full.
func (ws *WebhookShipper) Ship(ctx context.Context, rec *Record) error {
	if ws.cfg.BatchSize > 0 {
		select {
		case ws.batchCh <- rec:
			return nil
		default:
			// Queue full, fall through to a direct send.
		}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	return ws.sendRequest(ctx, data)
}

func (ws *WebhookShipper) sendRequest(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.cfg.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range ws.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := ws.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// Close stops the batch processor, flushing any pending records.
func (ws *WebhookShipper) Close() error {
	ws.closeOnce.Do(func() {
		close(ws.closeCh)
	})
	return nil
}

// FileShipper appends records as JSON lines to a local file with size-based
// rotation.
type FileShipper struct {
	cfg  *FileConfig
	file *os.File
	mu   sync.Mutex
}

// NewFileShipper opens (or creates) the audit log file in append mode.
func NewFileShipper(cfg *FileConfig) (*FileShipper, error) {
	file, err := os.OpenFile(cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}

	return &FileShipper{
		cfg:  cfg,
		file: file,
	}, nil
}

// Ship appends rec as one JSON line, rotating the file first if it exceeds
// the configured size.
func (fs *FileShipper) Ship(ctx context.Context, rec *Record) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.cfg.MaxSizeMB > 0 {
		info, err := fs.file.Stat()
		if err == nil && info.Size() > int64(fs.cfg.MaxSizeMB)*1024*1024 {
			if err := fs.rotate(); err != nil {
				slog.Error("failed to rotate audit log file", "path", fs.cfg.Path, "error", err)
			}
		}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	if _, err := fs.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write audit record: %w", err)
	}

	return nil
}

// rotate shifts path.N to path.N+1, moves the live file to path.1, and
// reopens a fresh live file. Caller must hold mu.
func (fs *FileShipper) rotate() error {
	if err := fs.file.Close(); err != nil {
		return err
	}

	for i := fs.cfg.MaxBackups - 1; i >= 1; i-- {
		oldPath := fmt.Sprintf("%s.%d", fs.cfg.Path, i)
		newPath := fmt.Sprintf("%s.%d", fs.cfg.Path, i+1)
		_ = os.Rename(oldPath, newPath)
	}

	_ = os.Rename(fs.cfg.Path, fs.cfg.Path+".1")

	if fs.cfg.MaxBackups > 0 {
		_ = os.Remove(fmt.Sprintf("%s.%d", fs.cfg.Path, fs.cfg.MaxBackups+1))
	}

	file, err := os.OpenFile(fs.cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}

	fs.file = file
	return nil
}

// Close closes the underlying file.
func (fs *FileShipper) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.file.Close()
}
