package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/couchcryptid/rainfall-trend-etl/internal/domain"
)

// Writer writes the tables of a run into an output directory.
type Writer struct {
	dir    string
	logger *slog.Logger
}

// NewWriter creates a Writer for dir. The directory must exist.
func NewWriter(dir string, logger *slog.Logger) *Writer {
	return &Writer{dir: dir, logger: logger}
}

// Write writes every CSV table and the workbook and returns the file names.
// A table that cannot be written fails the call; the workbook is a
// convenience copy, so its failure is only logged.
func (w *Writer) Write(report *domain.Report) ([]string, error) {
	names := make(map[string]string, len(report.Stations))
	for _, st := range report.Stations {
		names[st.ID] = st.DisplayName()
	}

	annual := resultsTable(report.ResultsAt(domain.Annual), false)
	var seasonalResults []domain.TrendResult
	for _, r := range report.Results {
		if r.Level.Kind == domain.LevelSeasonal {
			seasonalResults = append(seasonalResults, r)
		}
	}
	seasonal := resultsTable(seasonalResults, true)
	exclusions := exclusionsTable(report.Exclusions)

	files := []struct {
		name string
		t    table
	}{
		{MonthlyFile, seriesTable(domain.LevelMonthly, report.Monthly, names)},
		{AnnualFile, seriesTable(domain.LevelAnnual, report.Annual, names)},
		{SeasonalFile, seriesTable(domain.LevelSeasonal, report.Seasonal, names)},
		{StationsFile, annual},
		{SeasonsFile, seasonal},
		{ExclusionsFile, exclusions},
	}

	written := make([]string, 0, len(files)+1)
	for _, f := range files {
		if err := writeFile(filepath.Join(w.dir, f.name), f.t); err != nil {
			return written, fmt.Errorf("write %s: %w", f.name, err)
		}
		w.logger.Debug("table written", "file", f.name, "rows", len(f.t.rows))
		written = append(written, f.name)
	}

	if err := writeWorkbook(filepath.Join(w.dir, WorkbookFile), annual, seasonal, exclusions); err != nil {
		w.logger.Warn("workbook not written", "file", WorkbookFile, "error", err)
		return written, nil
	}
	return append(written, WorkbookFile), nil
}

func writeFile(path string, t table) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writeCSV(f, t); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// writeCSV writes a table with its header row.
func writeCSV(w io.Writer, t table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.header); err != nil {
		return err
	}
	record := make([]string, len(t.header))
	for _, row := range t.rows {
		for i, v := range row {
			record[i] = formatCell(v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// writeWorkbook saves the tables as sheets of one workbook, in order.
func writeWorkbook(path string, tables ...table) error {
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	for i, t := range tables {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", t.sheet); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(t.sheet); err != nil {
			return err
		}
		if err := writeSheet(f, t, bold); err != nil {
			return fmt.Errorf("sheet %s: %w", t.sheet, err)
		}
	}
	return f.SaveAs(path)
}

func writeSheet(f *excelize.File, t table, headerStyle int) error {
	header := make([]any, len(t.header))
	for i, h := range t.header {
		header[i] = h
	}
	if err := f.SetSheetRow(t.sheet, "A1", &header); err != nil {
		return err
	}
	if err := f.SetRowStyle(t.sheet, 1, 1, headerStyle); err != nil {
		return err
	}
	last, _ := excelize.ColumnNumberToName(len(t.header))
	if err := f.SetColWidth(t.sheet, "A", last, 16); err != nil {
		return err
	}
	if err := f.SetPanes(t.sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}

	for r, row := range t.rows {
		cells := make([]any, len(row))
		for i, v := range row {
			cells[i] = workbookCell(v)
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(t.sheet, cell, &cells); err != nil {
			return err
		}
	}
	return nil
}
