package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const alphaVantageBaseURL = "https://www.alphavantage.co/query"

// AlphaVantageProvider fetches stock fundamentals and price series from the
// Alpha Vantage REST API. Requires ALPHAVANTAGE_API_KEY; without it the
// provider reports unavailable and the chain skips it.
type AlphaVantageProvider struct {
	apiKey     string
	httpClient *http.Client
}

// NewAlphaVantageProvider creates an Alpha Vantage provider.
func NewAlphaVantageProvider(apiKey string) *AlphaVantageProvider {
	return &AlphaVantageProvider{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *AlphaVantageProvider) Name() string { return "alphavantage" }

func (a *AlphaVantageProvider) Available() bool { return a.apiKey != "" }

// Free tier allows 5 requests per minute.
func (a *AlphaVantageProvider) MinInterval() time.Duration { return 12 * time.Second }

type avOverview struct {
	Name                 string `json:"Name"`
	Sector               string `json:"Sector"`
	Industry             string `json:"Industry"`
	MarketCapitalization string `json:"MarketCapitalization"`
}

type avEarnings struct {
	QuarterlyEarnings []struct {
		FiscalDateEnding string `json:"fiscalDateEnding"`
		ReportedEPS      string `json:"reportedEPS"`
	} `json:"quarterlyEarnings"`
}

// FetchStock assembles a raw record from OVERVIEW, EARNINGS and the daily,
// weekly and monthly time-series endpoints.
func (a *AlphaVantageProvider) FetchStock(ctx context.Context, symbol string) (*RawStockRecord, error) {
	if !a.Available() {
		return nil, newFetchError(a.Name(), CodeNotConfigured, nil)
	}

	rec := &RawStockRecord{Symbol: symbol}

	daily, err := a.fetchSeries(ctx, symbol, "TIME_SERIES_DAILY", "Time Series (Daily)")
	if err != nil {
		return nil, err
	}
	if len(daily) == 0 {
		return nil, newFetchError(a.Name(), CodeNotFound, fmt.Errorf("no daily series for %s", symbol))
	}
	rec.Daily = daily
	p := daily[len(daily)-1].Close
	rec.Price = &p

	if weekly, err := a.fetchSeries(ctx, symbol, "TIME_SERIES_WEEKLY", "Weekly Time Series"); err == nil {
		rec.Weekly = weekly
	}
	if monthly, err := a.fetchSeries(ctx, symbol, "TIME_SERIES_MONTHLY", "Monthly Time Series"); err == nil {
		rec.Monthly = monthly
	}

	var overview avOverview
	if err := a.getJSON(ctx, symbol, "OVERVIEW", &overview); err == nil {
		rec.CompanyName = overview.Name
		rec.Sector = overview.Sector
		rec.Industry = overview.Industry
		if mc, err := decimal.NewFromString(overview.MarketCapitalization); err == nil {
			rec.MarketCap = &mc
		}
	}

	var earnings avEarnings
	if err := a.getJSON(ctx, symbol, "EARNINGS", &earnings); err == nil {
		for _, q := range earnings.QuarterlyEarnings {
			date, derr := time.Parse("2006-01-02", q.FiscalDateEnding)
			eps, eerr := decimal.NewFromString(q.ReportedEPS)
			if derr != nil || eerr != nil {
				continue
			}
			rec.EPSQuarters = append(rec.EPSQuarters, EPSQuarter{Date: date, EPS: eps})
		}
		// API returns newest first; the record contract is oldest first.
		sort.Slice(rec.EPSQuarters, func(i, j int) bool {
			return rec.EPSQuarters[i].Date.Before(rec.EPSQuarters[j].Date)
		})
	}

	return rec, nil
}

// FetchBenchmark returns the daily close series for a benchmark instrument.
func (a *AlphaVantageProvider) FetchBenchmark(ctx context.Context, symbol string) (*BenchmarkSeries, error) {
	if !a.Available() {
		return nil, newFetchError(a.Name(), CodeNotConfigured, nil)
	}
	bars, err := a.fetchSeries(ctx, symbol, "TIME_SERIES_DAILY", "Time Series (Daily)")
	if err != nil {
		return nil, err
	}
	return &BenchmarkSeries{Symbol: symbol, Bars: bars}, nil
}

func (a *AlphaVantageProvider) fetchSeries(ctx context.Context, symbol, function, seriesKey string) ([]Bar, error) {
	body, err := a.get(ctx, symbol, function)
	if err != nil {
		return nil, err
	}

	// The series lives under a function-specific key, with dates as keys and
	// string-valued OHLC fields.
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, newFetchError(a.Name(), CodeTransient, fmt.Errorf("decoding %s: %w", function, err))
	}
	if err := a.checkThrottle(envelope); err != nil {
		return nil, err
	}

	raw, ok := envelope[seriesKey]
	if !ok {
		return nil, newFetchError(a.Name(), CodeNotFound, fmt.Errorf("missing %q for %s", seriesKey, symbol))
	}
	var series map[string]struct {
		Close string `json:"4. close"`
	}
	if err := json.Unmarshal(raw, &series); err != nil {
		return nil, newFetchError(a.Name(), CodeTransient, fmt.Errorf("decoding %s series: %w", function, err))
	}

	bars := make([]Bar, 0, len(series))
	for dateStr, v := range series {
		date, derr := time.Parse("2006-01-02", dateStr)
		closePrice, cerr := decimal.NewFromString(v.Close)
		if derr != nil || cerr != nil {
			continue
		}
		bars = append(bars, Bar{Date: date, Close: closePrice})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

func (a *AlphaVantageProvider) getJSON(ctx context.Context, symbol, function string, out any) error {
	body, err := a.get(ctx, symbol, function)
	if err != nil {
		return err
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err == nil {
		if terr := a.checkThrottle(envelope); terr != nil {
			return terr
		}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return newFetchError(a.Name(), CodeTransient, fmt.Errorf("decoding %s: %w", function, err))
	}
	return nil
}

// checkThrottle detects the "Note"/"Information" payloads Alpha Vantage
// returns with HTTP 200 when the call budget is exceeded.
func (a *AlphaVantageProvider) checkThrottle(envelope map[string]json.RawMessage) error {
	if _, ok := envelope["Note"]; ok {
		return newFetchError(a.Name(), CodeRateLimited, fmt.Errorf("call frequency exceeded"))
	}
	if _, ok := envelope["Information"]; ok {
		return newFetchError(a.Name(), CodeRateLimited, fmt.Errorf("call budget exceeded"))
	}
	if msg, ok := envelope["Error Message"]; ok {
		return newFetchError(a.Name(), CodeNotFound, fmt.Errorf("%s", string(msg)))
	}
	return nil
}

func (a *AlphaVantageProvider) get(ctx context.Context, symbol, function string) ([]byte, error) {
	url := fmt.Sprintf("%s?function=%s&symbol=%s&apikey=%s", alphaVantageBaseURL, function, symbol, a.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, newFetchError(a.Name(), CodeTransient, err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, newFetchError(a.Name(), CodeTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, newFetchError(a.Name(), CodeRateLimited, fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newFetchError(a.Name(), CodeTransient, fmt.Errorf("status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newFetchError(a.Name(), CodeTransient, err)
	}
	return body, nil
}
