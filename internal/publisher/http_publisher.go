// Package publisher hands locally built records to the external signer and
// relay gateway. Signing keys never live in this process; the gateway signs
// the record and fans it out to the relay pool. The record comes back
// through the store's ingest pipeline, which is what fulfills pending RSVPs.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/florrin/calagenda/internal/models"
)

// HTTPPublisher posts records to a gateway endpoint as JSON.
type HTTPPublisher struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// NewHTTPPublisher constructs a publisher. An empty endpoint yields a
// publisher that drops records with a log line, for instances where an
// external pipeline watches the store directly.
func NewHTTPPublisher(endpoint string, logger *zap.Logger) *HTTPPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPPublisher{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
		logger:   logger,
	}
}

// Publish sends one record to the gateway.
func (p *HTTPPublisher) Publish(ctx context.Context, rec models.Record) error {
	if p.endpoint == "" {
		p.logger.Debug("no publish endpoint configured, record stays local", zap.String("id", rec.ID))
		return nil
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", rec.ID, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("publish record %s: %w", rec.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("publish record %s: gateway returned %d", rec.ID, resp.StatusCode)
	}
	p.logger.Info("record published", zap.String("id", rec.ID), zap.Int("kind", rec.Kind))
	return nil
}
