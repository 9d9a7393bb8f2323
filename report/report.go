// Package report renders the monthly payroll OT summary for download.
package report

import (
	"encoding/csv"
	"fmt"
	"io"

	"otengine/models"
	"otengine/timeutil"

	"github.com/xuri/excelize/v2"
)

const SheetName = "OT Summary"

var header = []string{"Employee", "Department", "Sessions", "Pending Review", "Payable OT Hours"}

func Filename(month, year int, ext string) string {
	return fmt.Sprintf("ot_payroll_%d_%02d.%s", year, month, ext)
}

func WriteCSV(w io.Writer, rows []models.PayrollSummaryRow) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		writer.Write([]string{
			row.Employee,
			row.Department,
			fmt.Sprintf("%d", row.Sessions),
			fmt.Sprintf("%d", row.PendingReview),
			fmt.Sprintf("%.2f", row.PayableOTHours),
		})
	}
	writer.Flush()
	return writer.Error()
}

// WriteXLSX writes a single-sheet workbook with a bold header row and a total
// row at the bottom.
func WriteXLSX(w io.Writer, rows []models.PayrollSummaryRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}
	headerRow := make([]interface{}, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &headerRow); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetRowStyle(SheetName, 1, 1, bold); err != nil {
		return err
	}

	var total float64
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []interface{}{row.Employee, row.Department, row.Sessions, row.PendingReview, row.PayableOTHours}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return err
		}
		total += row.PayableOTHours
	}

	totalRow := len(rows) + 2
	cell, err := excelize.CoordinatesToCellName(1, totalRow)
	if err != nil {
		return err
	}
	totals := []interface{}{"Total", "", "", "", timeutil.RoundHours(total)}
	if err := f.SetSheetRow(SheetName, cell, &totals); err != nil {
		return err
	}
	if err := f.SetRowStyle(SheetName, totalRow, totalRow, bold); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetName, "A", "B", 28); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetName, "C", "E", 18); err != nil {
		return err
	}
	return f.Write(w)
}
