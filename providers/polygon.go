package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

const polygonAggsURL = "https://api.polygon.io/v2/aggs/ticker/%s/range/1/day/%s/%s?adjusted=true&sort=asc&limit=50000&apiKey=%s"

// benchmarkLookbackDays covers 252 trading days plus buffer for holidays.
const benchmarkLookbackDays = 400

// PolygonProvider fetches daily aggregates from Polygon.io. It serves
// benchmark instruments only; in the stock chain it is skipped like an
// unconfigured provider. Requires POLYGON_API_KEY.
type PolygonProvider struct {
	apiKey     string
	httpClient *http.Client
}

// NewPolygonProvider creates a Polygon.io provider.
func NewPolygonProvider(apiKey string) *PolygonProvider {
	return &PolygonProvider{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *PolygonProvider) Name() string { return "polygon" }

func (p *PolygonProvider) Available() bool { return p.apiKey != "" }

// Free tier allows 5 requests per minute.
func (p *PolygonProvider) MinInterval() time.Duration { return 12 * time.Second }

// BenchmarkOnly reports that this provider serves benchmark instruments only.
func (p *PolygonProvider) BenchmarkOnly() bool { return true }

// FetchStock is not offered; the chain moves on without counting an attempt.
func (p *PolygonProvider) FetchStock(ctx context.Context, symbol string) (*RawStockRecord, error) {
	return nil, newFetchError(p.Name(), CodeNotConfigured, fmt.Errorf("benchmark-only provider"))
}

type polygonAggsResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Timestamp int64   `json:"t"` // unix millis
		Close     float64 `json:"c"`
	} `json:"results"`
	Error string `json:"error"`
}

// FetchBenchmark returns about a year of daily closes for one instrument.
func (p *PolygonProvider) FetchBenchmark(ctx context.Context, symbol string) (*BenchmarkSeries, error) {
	if !p.Available() {
		return nil, newFetchError(p.Name(), CodeNotConfigured, nil)
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -benchmarkLookbackDays)
	url := fmt.Sprintf(polygonAggsURL, symbol,
		start.Format("2006-01-02"), end.Format("2006-01-02"), p.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, newFetchError(p.Name(), CodeTransient, err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, newFetchError(p.Name(), CodeTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, newFetchError(p.Name(), CodeRateLimited, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusNotFound:
		return nil, newFetchError(p.Name(), CodeNotFound, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, newFetchError(p.Name(), CodeTransient, fmt.Errorf("status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newFetchError(p.Name(), CodeTransient, err)
	}

	var aggs polygonAggsResponse
	if err := json.Unmarshal(body, &aggs); err != nil {
		return nil, newFetchError(p.Name(), CodeTransient, fmt.Errorf("decoding aggs: %w", err))
	}
	if aggs.Error != "" {
		return nil, newFetchError(p.Name(), CodeTransient, fmt.Errorf("aggs error: %s", aggs.Error))
	}
	if len(aggs.Results) == 0 {
		return nil, newFetchError(p.Name(), CodeNotFound, fmt.Errorf("no aggregates for %s", symbol))
	}

	bars := make([]Bar, 0, len(aggs.Results))
	for _, r := range aggs.Results {
		bars = append(bars, Bar{
			Date:  time.UnixMilli(r.Timestamp).UTC().Truncate(24 * time.Hour),
			Close: decimal.NewFromFloat(r.Close),
		})
	}
	return &BenchmarkSeries{Symbol: symbol, Bars: bars}, nil
}
