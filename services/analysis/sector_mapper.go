package analysis

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// defaultSectorETFMap maps sector names (including the alias spellings used
// by different providers) to the SPDR sector ETF tracking them.
var defaultSectorETFMap = map[string]string{
	"Technology":             "XLK",
	"Health Care":            "XLV",
	"Healthcare":             "XLV",
	"Financials":             "XLF",
	"Financial Services":     "XLF",
	"Consumer Discretionary": "XLY",
	"Consumer Cyclical":      "XLY",
	"Consumer Staples":       "XLP",
	"Consumer Defensive":     "XLP",
	"Energy":                 "XLE",
	"Industrials":            "XLI",
	"Materials":              "XLB",
	"Basic Materials":        "XLB",
	"Real Estate":            "XLRE",
	"Utilities":              "XLU",
	"Communication Services": "XLC",
}

// SectorMapper resolves a stock's sector to its benchmark ETF. The table is
// immutable once constructed.
type SectorMapper struct {
	table map[string]string
}

// NewSectorMapper builds a mapper with the built-in sector table.
func NewSectorMapper() *SectorMapper {
	table := make(map[string]string, len(defaultSectorETFMap))
	for k, v := range defaultSectorETFMap {
		table[k] = v
	}
	return &SectorMapper{table: table}
}

// LoadSectorMapper reads a sector→ETF table from a YAML file. Entries extend
// and override the built-in table.
func LoadSectorMapper(path string) (*SectorMapper, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sector map: %w", err)
	}
	var overrides map[string]string
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parsing sector map: %w", err)
	}

	m := NewSectorMapper()
	for sector, etf := range overrides {
		m.table[sector] = etf
	}
	return m, nil
}

// ETF resolves a sector name to its tracking ETF. Unknown sectors fail to
// resolve; callers treat the sector comparison as unavailable rather than
// defaulting to the broad market.
func (m *SectorMapper) ETF(sector string) (string, bool) {
	etf, ok := m.table[sector]
	return etf, ok
}

// ETFs returns the distinct sector ETF symbols, sorted.
func (m *SectorMapper) ETFs() []string {
	seen := make(map[string]bool, len(m.table))
	var out []string
	for _, etf := range m.table {
		if !seen[etf] {
			seen[etf] = true
			out = append(out, etf)
		}
	}
	sort.Strings(out)
	return out
}
