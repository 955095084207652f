// Package export формирует выгрузки отчетов о неисправностях.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"fault-dashboard/internal/models"
)

// SheetName - имя листа с отчетами.
const SheetName = "Faults"

var headers = []string{
	"ID", "Date", "Title", "Severity", "Asset ID", "Reporter",
	"Subsystem", "Location", "Category", "Description", "Observed Cause",
	"Root Cause Known", "Root Cause Details", "Workaround", "Temporary Fix", "Temporary Fix Details",
	"Passenger Safety", "Staff Safety", "Spare Parts Required", "Spare Parts List",
	"Estimated Repair Time", "Supervisor Notified", "Escalation Needed", "Diagnostic Steps",
	"Files", "Created At", "Updated At",
}

// Filename возвращает имя файла выгрузки на момент at.
func Filename(at time.Time) string {
	return fmt.Sprintf("faults_%s.xlsx", at.UTC().Format("20060102_150405"))
}

// WriteFaults пишет книгу XLSX с одной строкой на отчет.
func WriteFaults(w io.Writer, items []models.FaultListItem, generatedAt time.Time) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "#000000", Style: 1},
		},
	})
	if err != nil {
		return err
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(SheetName, cell, h)
		f.SetCellStyle(SheetName, cell, cell, headerStyle)
	}

	for row, item := range items {
		values := rowValues(item)
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(SheetName, cell, v); err != nil {
				return err
			}
		}
	}

	// Ширина колонок
	f.SetColWidth(SheetName, "A", "A", 38)
	f.SetColWidth(SheetName, "B", "F", 18)
	f.SetColWidth(SheetName, "J", "J", 50)
	if err := f.SetPanes(SheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}

	f.SetDocProps(&excelize.DocProperties{
		Title:   "Fault reports",
		Created: generatedAt.UTC().Format(time.RFC3339),
	})

	_, err = f.WriteTo(w)
	return err
}

func rowValues(item models.FaultListItem) []any {
	r := item.FaultReport
	return []any{
		r.ID, r.Date, r.Title, string(r.Severity), r.AssetID, r.Reporter,
		r.Subsystem, r.Location, r.Category, r.Description, r.ObservedCause,
		yesNo(r.RootCauseKnown), r.RootCauseDetails, r.Workaround, yesNo(r.TemporaryFix), r.TemporaryFixDetails,
		yesNo(r.PassengerSafety), yesNo(r.StaffSafety), yesNo(r.SparePartsRequired), r.SparePartsList,
		r.EstimatedRepairTime, yesNo(r.SupervisorNotified), yesNo(r.EscalationNeeded), yesNo(r.DiagnosticSteps),
		item.FileCount, r.CreatedAt.UTC().Format(time.RFC3339), r.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
