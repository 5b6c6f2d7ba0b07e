// Package export renders approved analyses as an Excel workbook for
// downstream reporting.
package export

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"factsheet/internal/store"
)

const sheetName = "ESG Summaries"

var columns = []struct {
	title string
	width float64
}{
	{"File ID", 38},
	{"Company Name", 28},
	{"Filename", 32},
	{"Analysis", 80},
	{"Editor Notes", 40},
	{"Approved At", 24},
}

// Workbook builds an xlsx workbook with one row per approved review.
func Workbook(reviews []*store.ApprovedReview) ([]byte, error) {
	if len(reviews) == 0 {
		return nil, fmt.Errorf("no approved reviews to export")
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("drop default sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	dataStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{
			Horizontal: "left",
			Vertical:   "top",
			WrapText:   true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create data style: %w", err)
	}

	for i, col := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, col.title); err != nil {
			return nil, fmt.Errorf("write header %s: %w", col.title, err)
		}
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
		name, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(sheetName, name, name, col.width)
	}
	_ = f.SetRowHeight(sheetName, 1, 22)

	for rowIdx, review := range reviews {
		values := []any{
			review.FileID,
			review.CompanyName,
			review.OriginalFilename,
			review.AnalysisFinal,
			review.EditorNotes,
			review.UpdatedAt.UTC().Format(time.RFC3339),
		}
		excelRow := rowIdx + 2
		for colIdx, value := range values {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, excelRow)
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return nil, fmt.Errorf("write row %d: %w", excelRow, err)
			}
			_ = f.SetCellStyle(sheetName, cell, cell, dataStyle)
		}
	}

	lastCol, _ := excelize.ColumnNumberToName(len(columns))
	_ = f.AutoFilter(sheetName, fmt.Sprintf("A1:%s%d", lastCol, len(reviews)+1), nil)
	_ = f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})

	buffer, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buffer.Bytes(), nil
}

// Filename returns the dated attachment name for an export.
func Filename(now time.Time) string {
	return fmt.Sprintf("esg_summaries_%s.xlsx", now.Format("20060102"))
}
