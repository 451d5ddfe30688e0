package records

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/registrar/internal/config"
)

// ValuesAPI is the slice of the spreadsheet values API the sheet needs.
type ValuesAPI interface {
	Get(ctx context.Context, spreadsheetID, rng string) ([][]string, error)
	Update(ctx context.Context, spreadsheetID, rng, value string) error
}

// Sheet is both the record source and the status sink for one worksheet.
type Sheet struct {
	api    ValuesAPI
	cfg    config.SheetsConfig
	logger *zap.Logger

	mu     sync.Mutex
	layout *columnLayout
}

// NewSheet creates a Sheet bound to the configured worksheet.
func NewSheet(api ValuesAPI, cfg config.SheetsConfig, logger *zap.Logger) *Sheet {
	return &Sheet{
		api:    api,
		cfg:    cfg,
		logger: logger.Named("sheets"),
	}
}

func (s *Sheet) dataRange() string {
	return quoteSheet(s.cfg.SheetName) + "!" + s.cfg.Range
}

// FetchPending returns every row whose status cell reads "pending".
// A missing status header yields an empty result rather than an error.
// A read aborted by ctx returns the context error unwrapped.
func (s *Sheet) FetchPending(ctx context.Context) ([]WorkItem, error) {
	rows, err := s.api.Get(ctx, s.cfg.SpreadsheetID, s.dataRange())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.logger.Error("Failed to read sheet.", zap.String("range", s.dataRange()), zap.Error(err))
		return nil, fmt.Errorf("%w: reading %s: %w", ErrSourceUnavailable, s.dataRange(), err)
	}
	if len(rows) == 0 {
		s.logger.Warn("Sheet is empty.")
		return []WorkItem{}, nil
	}

	headers := rows[0]
	s.rememberLayout(headers)

	statusIdx := findHeader(headers, s.cfg.Columns.StatusHeader)
	if statusIdx < 0 {
		s.logger.Warn("No status column found; nothing to process.",
			zap.String("keyword", s.cfg.Columns.StatusHeader),
			zap.Strings("available_columns", headers))
		return []WorkItem{}, nil
	}

	items := []WorkItem{}
	for i, row := range rows[1:] {
		if statusIdx >= len(row) || !strings.EqualFold(strings.TrimSpace(row[statusIdx]), string(StatusPending)) {
			continue
		}
		fields := make(map[string]string, len(row))
		for j, cell := range row {
			name := fmt.Sprintf("Column_%d", j+1)
			if j < len(headers) && strings.TrimSpace(headers[j]) != "" {
				name = strings.TrimSpace(headers[j])
			}
			fields[name] = cell
		}
		items = append(items, WorkItem{RowNumber: i + 2, Fields: fields})
	}

	s.logger.Info("Fetched pending records.", zap.Int("count", len(items)), zap.Int("rows_scanned", len(rows)-1))
	return items, nil
}

// TestConnection reads the header row and returns its cells.
func (s *Sheet) TestConnection(ctx context.Context) ([]string, error) {
	rng := quoteSheet(s.cfg.SheetName) + "!A1:N1"
	rows, err := s.api.Get(ctx, s.cfg.SpreadsheetID, rng)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	if len(rows) == 0 {
		return []string{}, nil
	}
	s.rememberLayout(rows[0])
	return rows[0], nil
}

// rememberLayout resolves sink columns from headers, keeping the configured
// fallback letter for any role without a matching header.
func (s *Sheet) rememberLayout(headers []string) {
	c := s.cfg.Columns
	resolve := func(keyword, fallback string) string {
		if idx := findHeader(headers, keyword); idx >= 0 {
			return columnLetter(idx)
		}
		return fallback
	}
	layout := &columnLayout{
		Status: resolve(c.StatusHeader, c.StatusFallback),
		Email:  resolve(c.EmailHeader, c.EmailFallback),
		Error:  resolve(c.ErrorHeader, c.ErrorFallback),
	}

	s.mu.Lock()
	s.layout = layout
	s.mu.Unlock()
}

func (s *Sheet) columns() columnLayout {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.layout != nil {
		return *s.layout
	}
	c := s.cfg.Columns
	return columnLayout{Status: c.StatusFallback, Email: c.EmailFallback, Error: c.ErrorFallback}
}

func (s *Sheet) writeCell(ctx context.Context, role, column string, row int, value string) error {
	if row < 2 {
		return fmt.Errorf("%w: row %d is not a data row", ErrSinkWrite, row)
	}
	rng := cellRange(s.cfg.SheetName, column, row)
	if err := s.api.Update(ctx, s.cfg.SpreadsheetID, rng, value); err != nil {
		s.logger.Error("Failed to write cell.", zap.String("role", role), zap.String("range", rng), zap.Error(err))
		return fmt.Errorf("%w: %s at %s: %v", ErrSinkWrite, role, rng, err)
	}
	s.logger.Debug("Cell written.", zap.String("role", role), zap.String("range", rng))
	return nil
}

// UpdateStatus overwrites the row's status cell.
func (s *Sheet) UpdateStatus(ctx context.Context, row int, status Status) error {
	return s.writeCell(ctx, "status", s.columns().Status, row, string(status))
}

// RecordEmail overwrites the row's email cell.
func (s *Sheet) RecordEmail(ctx context.Context, row int, email string) error {
	return s.writeCell(ctx, "email", s.columns().Email, row, email)
}

// RecordError overwrites the row's error cell.
func (s *Sheet) RecordError(ctx context.Context, row int, message string) error {
	return s.writeCell(ctx, "error", s.columns().Error, row, message)
}
