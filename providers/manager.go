package providers

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Manager tries providers strictly in priority order and returns the first
// non-error, non-empty result. Partial results are never merged across
// providers. Call spacing per provider is enforced through shared limiters,
// so the guarantee holds across concurrent workers.
type Manager struct {
	priority []string
	registry map[string]Provider
	limiters map[string]*rate.Limiter
}

// NewManager builds a manager from a priority list of provider names.
// Names without a matching provider are ignored with a warning.
func NewManager(priority []string, provs ...Provider) *Manager {
	m := &Manager{
		priority: make([]string, 0, len(priority)),
		registry: make(map[string]Provider, len(provs)),
		limiters: make(map[string]*rate.Limiter, len(provs)),
	}
	for _, p := range provs {
		m.registry[p.Name()] = p
		if iv := p.MinInterval(); iv > 0 {
			m.limiters[p.Name()] = rate.NewLimiter(rate.Every(iv), 1)
		}
	}
	for _, name := range priority {
		if _, ok := m.registry[name]; !ok {
			log.Warn().Str("provider", name).Msg("Unknown provider in priority list, ignoring")
			continue
		}
		m.priority = append(m.priority, name)
	}
	return m
}

// Available returns the names of configured providers in priority order.
func (m *Manager) Available() []string {
	var names []string
	for _, name := range m.priority {
		if m.registry[name].Available() {
			names = append(names, name)
		}
	}
	return names
}

// FetchStock returns the first provider's raw record for symbol. On total
// failure it returns an *ExhaustedError carrying the last attempt's reason.
func (m *Manager) FetchStock(ctx context.Context, symbol string) (*RawStockRecord, error) {
	var last *FetchError
	for _, name := range m.priority {
		p := m.registry[name]
		if !p.Available() {
			// Missing credential, not a failed attempt.
			continue
		}
		if bo, ok := p.(BenchmarkOnlyProvider); ok && bo.BenchmarkOnly() {
			// Capability rejection is known up front; skip before spending a
			// rate-limit slot.
			continue
		}
		if err := m.wait(ctx, name); err != nil {
			return nil, err
		}
		rec, err := p.FetchStock(ctx, symbol)
		if err != nil {
			var fe *FetchError
			if errors.As(err, &fe) {
				if fe.Code == CodeNotConfigured {
					continue
				}
				last = fe
			} else {
				last = newFetchError(name, CodeTransient, err)
			}
			log.Warn().Str("provider", name).Str("symbol", symbol).Err(err).
				Msg("Provider fetch failed, trying next")
			continue
		}
		if rec == nil {
			last = newFetchError(name, CodeNotFound, nil)
			log.Warn().Str("provider", name).Str("symbol", symbol).
				Msg("Provider returned empty payload, trying next")
			continue
		}
		return rec, nil
	}
	return nil, &ExhaustedError{Symbol: symbol, Last: last}
}

// FetchBenchmark returns the first provider's series for a benchmark
// instrument, with the same fallback semantics as FetchStock.
func (m *Manager) FetchBenchmark(ctx context.Context, symbol string) (*BenchmarkSeries, error) {
	var last *FetchError
	for _, name := range m.priority {
		p := m.registry[name]
		if !p.Available() {
			continue
		}
		if err := m.wait(ctx, name); err != nil {
			return nil, err
		}
		series, err := p.FetchBenchmark(ctx, symbol)
		if err != nil {
			var fe *FetchError
			if errors.As(err, &fe) {
				if fe.Code == CodeNotConfigured {
					continue
				}
				last = fe
			} else {
				last = newFetchError(name, CodeTransient, err)
			}
			log.Warn().Str("provider", name).Str("symbol", symbol).Err(err).
				Msg("Benchmark fetch failed, trying next")
			continue
		}
		if series == nil || len(series.Bars) == 0 {
			last = newFetchError(name, CodeNotFound, nil)
			continue
		}
		return series, nil
	}
	return nil, &ExhaustedError{Symbol: symbol, Last: last}
}

func (m *Manager) wait(ctx context.Context, name string) error {
	lim, ok := m.limiters[name]
	if !ok {
		return nil
	}
	return lim.Wait(ctx)
}
