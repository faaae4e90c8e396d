// Package telemetry fetches battery and grid telemetry from the provider
// gateway. Samples are returned in provider-native sign convention; the
// caller normalizes exactly once at ingestion.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"sunfence/internal/core/domain"
)

type Client struct {
	url        string
	httpClient *http.Client
}

func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type telemetryDocument struct {
	SoCPct    float64 `json:"soc_pct"`
	PBatW     float64 `json:"p_bat_w"`
	PGridW    float64 `json:"p_grid_w"`
	PLoadW    float64 `json:"p_load_w"`
	TsEpochMs int64   `json:"ts_epoch_ms"`
}

func (c *Client) Fetch(ctx context.Context) (*domain.TelemetrySample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telemetry: unexpected status %d", resp.StatusCode)
	}

	var doc telemetryDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("telemetry: decode: %w", err)
	}
	if doc.SoCPct < 0 || doc.SoCPct > 100 {
		return nil, fmt.Errorf("telemetry: soc_pct %.1f out of range", doc.SoCPct)
	}

	fetchedAt := time.Now()
	if doc.TsEpochMs > 0 {
		fetchedAt = time.UnixMilli(doc.TsEpochMs)
	}
	return &domain.TelemetrySample{
		SoCPct:    doc.SoCPct,
		PBatW:     doc.PBatW,
		PGridW:    doc.PGridW,
		PLoadW:    doc.PLoadW,
		FetchedAt: fetchedAt,
	}, nil
}
