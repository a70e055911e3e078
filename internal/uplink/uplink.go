// Package uplink pushes stored records to the upstream collector. The
// gateway stores first and forwards later, so an upstream outage costs
// latency, not data: records stay flagged as pending until a push
// succeeds and are retried on the next sweep.
package uplink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fieldgate/fieldgate/internal/config"
	"github.com/fieldgate/fieldgate/internal/metrics"
	"github.com/fieldgate/fieldgate/internal/store"
)

// Manager owns the background push loop.
type Manager struct {
	cfg    config.UplinkConfig
	db     *store.DB
	log    *zap.Logger
	client *http.Client
}

// New creates a Manager. Call Start to begin background work.
func New(cfg config.UplinkConfig, db *store.DB, log *zap.Logger) *Manager {
	return &Manager{
		cfg: cfg,
		db:  db,
		log: log,
		client: &http.Client{
			Timeout: cfg.Timeout.Std(),
		},
	}
}

// Start sweeps pending records on a ticker; blocks until ctx is done.
func (m *Manager) Start(ctx context.Context) error {
	m.log.Info("uplink manager starting",
		zap.String("url", m.cfg.URL),
		zap.Duration("interval", m.cfg.Interval.Std()),
		zap.Int("batch_size", m.cfg.BatchSize),
	)

	ticker := time.NewTicker(m.cfg.Interval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info("uplink manager stopped")
			return nil
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep pushes one batch of pending records. Exported so tests (and a
// future flush-on-shutdown) can drive it directly. A record is marked
// uplinked only after the upstream answered 2xx; failures leave it
// pending for the next sweep.
func (m *Manager) Sweep(ctx context.Context) {
	recs, err := m.db.UnuplinkedRecords(m.cfg.BatchSize)
	if err != nil {
		m.log.Error("uplink: list pending", zap.Error(err))
		return
	}
	if len(recs) == 0 {
		return
	}

	var pushed []int64
	for _, rec := range recs {
		if err := m.push(ctx, rec); err != nil {
			metrics.UplinkErrorsTotal.Inc()
			m.log.Warn("uplink: push failed, will retry",
				zap.Int64("id", rec.ID),
				zap.Error(err),
			)
			// Stop the sweep: if the upstream is down, the rest of the
			// batch fails the same way.
			break
		}
		metrics.UplinkPushedTotal.Inc()
		pushed = append(pushed, rec.ID)
	}

	if len(pushed) > 0 {
		if err := m.db.MarkUplinked(pushed); err != nil {
			m.log.Error("uplink: mark pushed", zap.Error(err))
			return
		}
		m.log.Debug("uplink: batch pushed", zap.Int("count", len(pushed)))
	}
}

func (m *Manager) push(ctx context.Context, rec *store.StoredRecord) error {
	raw, err := json.Marshal(rec.Record)
	if err != nil {
		return fmt.Errorf("uplink: marshal record %d: %w", rec.ID, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.URL, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("uplink: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("uplink: post: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("uplink: upstream answered %s", resp.Status)
	}
	return nil
}
