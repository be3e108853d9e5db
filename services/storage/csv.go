package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"sjsage522/pricecrawler/internal/crawler"
	"sjsage522/pricecrawler/logger"
	apperrors "sjsage522/pricecrawler/pkg/errors"
)

// CSVSink writes records to a CSV file with the communities table's columns
type CSVSink struct {
	path string
}

// NewCSVSink creates a CSV sink for path
func NewCSVSink(path string) *CSVSink {
	return &CSVSink{path: path}
}

// Write stores all records at once. An existing file is never overwritten,
// and the file only appears once every row has been flushed.
func (s *CSVSink) Write(ctx context.Context, records []crawler.CommunityRecord) error {
	if _, err := os.Stat(s.path); err == nil {
		return apperrors.NewPersistence("csv", fmt.Sprintf("%s already exists", s.path), nil)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return apperrors.NewPersistence("csv", "could not create output dir", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return apperrors.NewPersistence("csv", "could not create file", err)
	}
	defer os.Remove(tmp.Name())

	writer := csv.NewWriter(tmp)
	writer.Write(Columns)
	for _, r := range records {
		if ctx.Err() != nil {
			tmp.Close()
			return apperrors.NewPersistence("csv", "write cancelled", ctx.Err())
		}
		writer.Write(stringRow(r))
	}
	writer.Flush()

	if err := writer.Error(); err != nil {
		tmp.Close()
		return apperrors.NewPersistence("csv", "csv write error", err)
	}
	if err := tmp.Close(); err != nil {
		return apperrors.NewPersistence("csv", "could not close file", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return apperrors.NewPersistence("csv", "could not move file into place", err)
	}

	logger.ForStorage().Info().
		Int("rows", len(records)).
		Str("path", s.path).
		Msg("Records saved")
	return nil
}

// Close implements Sink
func (s *CSVSink) Close() error {
	return nil
}
