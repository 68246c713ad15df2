package search

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/propspec/internal/domain"
)

const (
	exportSheet    = "Entities"
	exportPageSize = 500
	// exportRowLimit caps a single workbook.
	exportRowLimit = 100000
)

var exportFixedHeaders = []string{"id", "entityType", "path", "version", "createdAt", "updatedAt"}

// Export writes every entity matching req to w as an XLSX workbook and
// returns the number of data rows. Property columns are the sorted union of
// property keys across the matches. Rows go through an excelize stream
// writer page by page, so matches are never held in memory all at once.
func (s *Service) Export(ctx context.Context, req Request, w io.Writer) (int, error) {
	spec := s.Specification(req)

	propertyKeys, err := s.repo.PropertyKeys(ctx, spec)
	if err != nil {
		return 0, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return 0, fmt.Errorf("rename sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(exportSheet)
	if err != nil {
		return 0, fmt.Errorf("open stream writer: %w", err)
	}

	header := make([]any, 0, len(exportFixedHeaders)+len(propertyKeys))
	for _, h := range exportFixedHeaders {
		header = append(header, h)
	}
	for _, key := range propertyKeys {
		header = append(header, key)
	}
	if err := sw.SetRow("A1", header); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	written := 0
	page := domain.Page{Limit: exportPageSize}
	for written < exportRowLimit {
		items, err := s.repo.List(ctx, spec, req.Sorts, page)
		if err != nil {
			return 0, err
		}
		for _, entity := range items {
			if written == exportRowLimit {
				break
			}
			cell, err := excelize.CoordinatesToCellName(1, written+2)
			if err != nil {
				return 0, fmt.Errorf("resolve cell: %w", err)
			}
			if err := sw.SetRow(cell, entityRow(entity, propertyKeys)); err != nil {
				return 0, fmt.Errorf("write row %d: %w", written+2, err)
			}
			written++
		}
		if len(items) < page.Limit {
			break
		}
		page.Offset += len(items)
	}

	if err := sw.Flush(); err != nil {
		return 0, fmt.Errorf("flush rows: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return 0, fmt.Errorf("write workbook: %w", err)
	}
	return written, nil
}

func entityRow(entity domain.Entity, propertyKeys []string) []any {
	row := []any{
		entity.ID.String(),
		entity.EntityType,
		entity.Path,
		entity.Version,
		entity.CreatedAt.UTC().Format(time.RFC3339),
		entity.UpdatedAt.UTC().Format(time.RFC3339),
	}
	for _, key := range propertyKeys {
		row = append(row, cellValue(entity.Properties[key]))
	}
	return row
}

func cellValue(value any) any {
	switch v := value.(type) {
	case nil:
		return ""
	case string, bool, float64, int, int64:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}
