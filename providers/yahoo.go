package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	yahooChartURL        = "https://query1.finance.yahoo.com/v8/finance/chart/%s?range=%s&interval=%s"
	yahooQuoteSummaryURL = "https://query1.finance.yahoo.com/v10/finance/quoteSummary/%s?modules=price,summaryProfile,earnings"
	yahooUserAgent       = "Mozilla/5.0 (compatible; stockscreener/1.0)"
)

// YahooProvider fetches stock and benchmark data from the public Yahoo
// Finance endpoints. Keyless, so it is always available.
type YahooProvider struct {
	httpClient *http.Client
}

// NewYahooProvider creates a Yahoo Finance provider.
func NewYahooProvider() *YahooProvider {
	return &YahooProvider{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (y *YahooProvider) Name() string { return "yahoo" }

func (y *YahooProvider) Available() bool { return true }

func (y *YahooProvider) MinInterval() time.Duration { return time.Second }

// yahooChartResponse mirrors the v8 chart payload.
type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// yahooQuoteSummaryResponse mirrors the v10 quoteSummary payload, trimmed to
// the modules this provider requests.
type yahooQuoteSummaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			Price struct {
				LongName           string         `json:"longName"`
				ShortName          string         `json:"shortName"`
				MarketCap          yahooRawNumber `json:"marketCap"`
				RegularMarketPrice yahooRawNumber `json:"regularMarketPrice"`
			} `json:"price"`
			SummaryProfile struct {
				Sector   string `json:"sector"`
				Industry string `json:"industry"`
			} `json:"summaryProfile"`
			Earnings struct {
				EarningsChart struct {
					Quarterly []struct {
						Date   string         `json:"date"` // e.g. "4Q2024"
						Actual yahooRawNumber `json:"actual"`
					} `json:"quarterly"`
				} `json:"earningsChart"`
			} `json:"earnings"`
		} `json:"result"`
		Error *struct {
			Code string `json:"code"`
		} `json:"error"`
	} `json:"quoteSummary"`
}

type yahooRawNumber struct {
	Raw *float64 `json:"raw"`
}

// FetchStock assembles a raw record from the chart and quoteSummary APIs.
func (y *YahooProvider) FetchStock(ctx context.Context, symbol string) (*RawStockRecord, error) {
	rec := &RawStockRecord{Symbol: symbol}

	daily, err := y.fetchChart(ctx, symbol, "2y", "1d")
	if err != nil {
		return nil, err
	}
	if len(daily) == 0 {
		return nil, newFetchError(y.Name(), CodeNotFound, fmt.Errorf("no daily bars for %s", symbol))
	}
	rec.Daily = daily

	// Weekly and monthly bars are fetched on their own timeframes rather than
	// resampled from daily closes.
	if weekly, err := y.fetchChart(ctx, symbol, "5y", "1wk"); err == nil {
		rec.Weekly = weekly
	}
	if monthly, err := y.fetchChart(ctx, symbol, "10y", "1mo"); err == nil {
		rec.Monthly = monthly
	}

	if err := y.fillProfile(ctx, symbol, rec); err != nil {
		// Profile fields stay unknown; the price series alone is still a
		// usable record.
		return rec, nil
	}
	return rec, nil
}

// FetchBenchmark returns roughly 14 months of daily closes, enough for the
// longest relative-strength lookback window.
func (y *YahooProvider) FetchBenchmark(ctx context.Context, symbol string) (*BenchmarkSeries, error) {
	bars, err := y.fetchChart(ctx, symbol, "2y", "1d")
	if err != nil {
		return nil, err
	}
	return &BenchmarkSeries{Symbol: symbol, Bars: bars}, nil
}

func (y *YahooProvider) fetchChart(ctx context.Context, symbol, rng, interval string) ([]Bar, error) {
	url := fmt.Sprintf(yahooChartURL, symbol, rng, interval)
	body, err := y.get(ctx, url)
	if err != nil {
		return nil, err
	}

	var resp yahooChartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, newFetchError(y.Name(), CodeTransient, fmt.Errorf("decoding chart response: %w", err))
	}
	if resp.Chart.Error != nil {
		code := CodeTransient
		if resp.Chart.Error.Code == "Not Found" {
			code = CodeNotFound
		}
		return nil, newFetchError(y.Name(), code, fmt.Errorf("chart error: %s", resp.Chart.Error.Description))
	}
	if len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, newFetchError(y.Name(), CodeNotFound, fmt.Errorf("empty chart result for %s", symbol))
	}

	result := resp.Chart.Result[0]
	closes := result.Indicators.Quote[0].Close
	bars := make([]Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		bars = append(bars, Bar{
			Date:  time.Unix(ts, 0).UTC().Truncate(24 * time.Hour),
			Close: decimal.NewFromFloat(*closes[i]),
		})
	}
	return bars, nil
}

func (y *YahooProvider) fillProfile(ctx context.Context, symbol string, rec *RawStockRecord) error {
	url := fmt.Sprintf(yahooQuoteSummaryURL, symbol)
	body, err := y.get(ctx, url)
	if err != nil {
		return err
	}

	var resp yahooQuoteSummaryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return newFetchError(y.Name(), CodeTransient, fmt.Errorf("decoding quoteSummary: %w", err))
	}
	if resp.QuoteSummary.Error != nil || len(resp.QuoteSummary.Result) == 0 {
		return newFetchError(y.Name(), CodeNotFound, fmt.Errorf("no quoteSummary for %s", symbol))
	}

	r := resp.QuoteSummary.Result[0]
	rec.CompanyName = r.Price.LongName
	if rec.CompanyName == "" {
		rec.CompanyName = r.Price.ShortName
	}
	rec.Sector = r.SummaryProfile.Sector
	rec.Industry = r.SummaryProfile.Industry
	if r.Price.MarketCap.Raw != nil {
		mc := decimal.NewFromFloat(*r.Price.MarketCap.Raw)
		rec.MarketCap = &mc
	}
	if r.Price.RegularMarketPrice.Raw != nil {
		p := decimal.NewFromFloat(*r.Price.RegularMarketPrice.Raw)
		rec.Price = &p
	}

	for _, q := range r.Earnings.EarningsChart.Quarterly {
		if q.Actual.Raw == nil {
			continue
		}
		date, ok := parseYahooQuarter(q.Date)
		if !ok {
			continue
		}
		rec.EPSQuarters = append(rec.EPSQuarters, EPSQuarter{
			Date: date,
			EPS:  decimal.NewFromFloat(*q.Actual.Raw),
		})
	}
	return nil
}

func (y *YahooProvider) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, newFetchError(y.Name(), CodeTransient, err)
	}
	req.Header.Set("User-Agent", yahooUserAgent)

	resp, err := y.httpClient.Do(req)
	if err != nil {
		return nil, newFetchError(y.Name(), CodeTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, newFetchError(y.Name(), CodeRateLimited, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusNotFound:
		return nil, newFetchError(y.Name(), CodeNotFound, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, newFetchError(y.Name(), CodeTransient, fmt.Errorf("status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newFetchError(y.Name(), CodeTransient, err)
	}
	return body, nil
}

// parseYahooQuarter converts Yahoo's "1Q2024" labels to the quarter-end date.
func parseYahooQuarter(label string) (time.Time, bool) {
	parts := strings.SplitN(label, "Q", 2)
	if len(parts) != 2 {
		return time.Time{}, false
	}
	quarter, err := strconv.Atoi(parts[0])
	if err != nil || quarter < 1 || quarter > 4 {
		return time.Time{}, false
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, false
	}
	// Last day of the quarter's final month.
	month := time.Month(quarter * 3)
	firstOfNext := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC)
	return firstOfNext.AddDate(0, 0, -1), true
}
