package billing

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/jwalitptl/clinic-records/internal/model"
)

const statementSheet = "Statement"

var statementHeader = []interface{}{
	"Date", "Service", "Cost", "Paid", "Unpaid", "Status", "Payment Method", "Notes",
}

// WriteStatement renders a patient's billing records as an xlsx workbook,
// followed by a totals row.
func WriteStatement(w io.Writer, patientID uuid.UUID, records []*model.BillingRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", statementSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	if err := f.SetSheetRow(statementSheet, "A1", &[]interface{}{"Patient", patientID.String()}); err != nil {
		return fmt.Errorf("failed to write title row: %w", err)
	}
	if err := f.SetSheetRow(statementSheet, "A3", &statementHeader); err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}

	money, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return fmt.Errorf("failed to create money style: %w", err)
	}

	row := 4
	for _, r := range records {
		cell, _ := excelize.CoordinatesToCellName(1, row)
		values := []interface{}{
			r.Date,
			r.Service,
			r.Cost.InexactFloat64(),
			r.PaidAmount.InexactFloat64(),
			r.UnpaidAmount.InexactFloat64(),
			string(r.PaymentStatus()),
			deref(r.PaymentMethod),
			deref(r.Notes),
		}
		if err := f.SetSheetRow(statementSheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", row, err)
		}
		row++
	}

	summary := Summarize(patientID, records)
	totalCell, _ := excelize.CoordinatesToCellName(1, row+1)
	totals := []interface{}{
		"Total", "",
		summary.TotalBilled.InexactFloat64(),
		summary.TotalPaid.InexactFloat64(),
		summary.TotalUnpaid.InexactFloat64(),
	}
	if err := f.SetSheetRow(statementSheet, totalCell, &totals); err != nil {
		return fmt.Errorf("failed to write totals: %w", err)
	}

	last, _ := excelize.CoordinatesToCellName(5, row+1)
	if err := f.SetCellStyle(statementSheet, "C4", last, money); err != nil {
		return fmt.Errorf("failed to style amounts: %w", err)
	}
	if err := f.SetColWidth(statementSheet, "B", "B", 28); err != nil {
		return fmt.Errorf("failed to size columns: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
