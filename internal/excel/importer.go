package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/example/flashbot/internal/storage"
)

// ImportConfig defines the import configuration
type ImportConfig struct {
	FilePath    string // Path to the Excel or CSV file
	FrontColumn string // Column with the card front
	BackColumn  string // Column with the card back
	SheetName   string // Name of the sheet to import (Excel only)
	StartRow    int    // The row to start importing from (1-based index)
}

// DefaultImportConfig returns the default import configuration
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		FrontColumn: "A",
		BackColumn:  "B",
		SheetName:   "Sheet1",
		StartRow:    2, // By default, start from the second row (skip header)
	}
}

// ImportResult holds the result of an import operation
type ImportResult struct {
	TotalProcessed int
	Created        int
	Errors         []string
}

// ImportCards imports front/back pairs from an Excel or CSV file into the
// named deck.
func ImportCards(ctx context.Context, store storage.Store, userID int64, deckName string, config ImportConfig) (*ImportResult, error) {
	ext := strings.ToLower(filepath.Ext(config.FilePath))
	if ext == ".csv" {
		return importFromCSV(ctx, store, userID, deckName, config)
	}
	return importFromExcel(ctx, store, userID, deckName, config)
}

// importFromExcel imports cards from an Excel file
func importFromExcel(ctx context.Context, store storage.Store, userID int64, deckName string, config ImportConfig) (*ImportResult, error) {
	f, err := excelize.OpenFile(config.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(config.SheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %v", err)
	}

	frontIdx, backIdx, err := columnIndexes(config)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	for i, row := range rows {
		// Skip header rows
		if i < config.StartRow-1 {
			continue
		}
		result.TotalProcessed++
		if err := importRow(ctx, store, userID, deckName, row, frontIdx, backIdx); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", i+1, err))
			continue
		}
		result.Created++
	}

	return result, nil
}

// importFromCSV imports cards from a CSV file
func importFromCSV(ctx context.Context, store storage.Store, userID int64, deckName string, config ImportConfig) (*ImportResult, error) {
	f, err := os.Open(config.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %v", err)
	}
	defer f.Close()

	frontIdx, backIdx, err := columnIndexes(config)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	result := &ImportResult{}
	for line := 1; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %v", err)
		}
		if line < config.StartRow {
			continue
		}
		result.TotalProcessed++
		if err := importRow(ctx, store, userID, deckName, row, frontIdx, backIdx); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", line, err))
			continue
		}
		result.Created++
	}

	return result, nil
}

// columnIndexes converts the configured column letters to 0-based indexes
func columnIndexes(config ImportConfig) (int, int, error) {
	frontNum, err := excelize.ColumnNameToNumber(config.FrontColumn)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid front column %q: %v", config.FrontColumn, err)
	}
	backNum, err := excelize.ColumnNameToNumber(config.BackColumn)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid back column %q: %v", config.BackColumn, err)
	}
	return frontNum - 1, backNum - 1, nil
}

// importRow creates one card from a spreadsheet row
func importRow(ctx context.Context, store storage.Store, userID int64, deckName string, row []string, frontIdx, backIdx int) error {
	front := cell(row, frontIdx)
	back := cell(row, backIdx)
	if front == "" || back == "" {
		return fmt.Errorf("empty front or back")
	}
	_, err := store.CreateCard(ctx, userID, deckName, front, back)
	return err
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
