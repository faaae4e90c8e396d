// Package pricefeed fetches the current electricity price pair from a tariff
// gateway endpoint. The endpoint returns a single JSON object; anything else
// (HTTP error, malformed body, timeout) means "no sample this tick".
package pricefeed

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

type priceDocument struct {
	ImportCPerKWh float64 `json:"import_c_per_kwh"`
	FeedInCPerKWh float64 `json:"feed_in_c_per_kwh"`
	TsEpochMs     int64   `json:"ts_epoch_ms"`
}

func (c *Client) Fetch(ctx context.Context) (*domain.PriceSample, error) {
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
		return nil, fmt.Errorf("pricefeed: unexpected status %d", resp.StatusCode)
	}

	var doc priceDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("pricefeed: decode: %w", err)
	}

	fetchedAt := time.Now()
	if doc.TsEpochMs > 0 {
		fetchedAt = time.UnixMilli(doc.TsEpochMs)
	}
	return &domain.PriceSample{
		ImportCPerKWh: doc.ImportCPerKWh,
		FeedInCPerKWh: doc.FeedInCPerKWh,
		FetchedAt:     fetchedAt,
	}, nil
}
