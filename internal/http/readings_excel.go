package httpapi

import (
	"bytes"
	"fmt"

	"iot-telemetry/internal/domain"

	"github.com/xuri/excelize/v2"
)

// ReadingsExportHeader column titles, same order as the JSON fields
var ReadingsExportHeader = []string{
	"ID",
	"Temperatura (°C)",
	"Umidade (%)",
	"Protocolo",
	"Latência (ms)",
	"Timestamp",
}

const readingsSheet = "Leituras"

// GenerateReadingsExport renders views as a single-sheet workbook
func GenerateReadingsExport(views []domain.ReadingView) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(readingsSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, title := range ReadingsExportHeader {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(readingsSheet, cell, title); err != nil {
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(ReadingsExportHeader), 1)
	if err := f.SetCellStyle(readingsSheet, "A1", lastHeader, headerStyle); err != nil {
		return nil, fmt.Errorf("failed to style header: %w", err)
	}

	for i, v := range views {
		row := []any{v.ID, v.Temperatura, v.Umidade, v.Protocolo, v.LatenciaMs, v.Timestamp}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(readingsSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
