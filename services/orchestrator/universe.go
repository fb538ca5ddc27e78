package orchestrator

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

// LoadUniverse reads the symbol universe from a newline-delimited file.
// Blank lines and #-comments are skipped, order is preserved, duplicates are
// dropped.
func LoadUniverse(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening symbols file: %w", err)
	}
	defer f.Close()

	seen := make(map[string]bool)
	var symbols []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		symbol := strings.ToUpper(line)
		if seen[symbol] {
			continue
		}
		seen[symbol] = true
		symbols = append(symbols, symbol)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading symbols file: %w", err)
	}

	log.Info().Int("count", len(symbols)).Str("file", path).Msg("Loaded symbol universe")
	return symbols, nil
}
