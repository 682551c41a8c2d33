package coupon

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// fileLoader implements Loader for reading gzipped catalogue files from disk.
type fileLoader struct {
	logger zerolog.Logger
}

// NewFileLoader creates a new file-based catalogue loader.
func NewFileLoader(logger zerolog.Logger) Loader {
	return &fileLoader{
		logger: logger.With().Str("component", "coupon-loader").Logger(),
	}
}

// Load reads a gzipped catalogue file with one JSON coupon per line.
func (l *fileLoader) Load(ctx context.Context, filePath string) (*Catalogue, error) {
	l.logger.Info().Str("file", filePath).Msg("loading coupon catalogue")

	file, err := os.Open(filePath)
	if err != nil {
		l.logger.Error().Err(err).Str("file", filePath).Msg("failed to open coupon catalogue")
		return nil, fmt.Errorf("failed to open coupon catalogue %s: %w", filePath, err)
	}
	defer file.Close()

	catalogue, err := readCatalogue(ctx, file, filePath, l.logger)
	if err != nil {
		return nil, err
	}

	l.logger.Info().
		Str("file", filePath).
		Int("coupons_loaded", catalogue.Size()).
		Msg("coupon catalogue loaded successfully")

	return catalogue, nil
}

// readCatalogue decodes a gzipped JSON-lines stream. Blank lines are skipped;
// a malformed line fails the whole load so a partial catalogue is never imported.
func readCatalogue(ctx context.Context, r io.Reader, source string, logger zerolog.Logger) (*Catalogue, error) {
	gzipReader, err := gzip.NewReader(r)
	if err != nil {
		logger.Error().Err(err).Str("source", source).Msg("failed to create gzip reader")
		return nil, fmt.Errorf("failed to create gzip reader for %s: %w", source, err)
	}
	defer gzipReader.Close()

	catalogue := NewCatalogue(1024)

	scanner := bufio.NewScanner(gzipReader)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo%10_000 == 0 {
			select {
			case <-ctx.Done():
				logger.Warn().Str("source", source).Msg("coupon loading cancelled")
				return nil, ctx.Err()
			default:
			}
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var rec catalogueRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("%s line %d: invalid JSON: %w", source, lineNo, err)
		}
		if err := catalogue.Add(rec.toCoupon()); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", source, lineNo, err)
		}
	}

	if err := scanner.Err(); err != nil {
		logger.Error().Err(err).Str("source", source).Msg("error reading coupon catalogue")
		return nil, fmt.Errorf("error reading coupon catalogue %s: %w", source, err)
	}

	return catalogue, nil
}
