// Package xlsx renders structured clinical records as a spreadsheet.
package xlsx

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/medvoice/internal/core/domain"
)

const SheetName = "Records"

// Columns is the header row, in order.
var Columns = []string{
	"File ID",
	"Display name",
	"Processed at",
	"Patient name",
	"Date of birth",
	"Gender",
	"Marital status",
	"Ethnicity",
	"Occupation",
	"Medical history",
	"Surgical history",
	"Drug allergy",
	"Prescribed medications",
	"Recently prescribed medications",
	"Appearance and behavior",
	"Speech and thoughts",
	"Mood",
	"Thoughts",
	"Blood pressure",
	"Pulse rate",
	"Temperature",
	"Note",
	"Extraction error",
}

type Exporter struct{}

func NewExporter() *Exporter {
	return &Exporter{}
}

func (e *Exporter) Export(rows []domain.RecordRow) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]any, len(Columns))
	for i, col := range Columns {
		header[i] = col
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}
	lastCol, err := excelize.ColumnNumberToName(len(Columns))
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(SheetName, "A1", lastCol+"1", bold); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}
	if err := f.SetPanes(SheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		values := recordValues(row)
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	if err := f.SetColWidth(SheetName, "A", lastCol, 22); err != nil {
		return nil, fmt.Errorf("set column width: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func recordValues(row domain.RecordRow) []any {
	processed := ""
	if !row.ModifiedAt.IsZero() {
		processed = row.ModifiedAt.UTC().Format(time.DateTime)
	}
	values := []any{row.FileID, row.DisplayName, processed}

	if row.Output.Failed() || row.Output.Record == nil {
		for len(values) < len(Columns)-1 {
			values = append(values, "")
		}
		return append(values, row.Output.Error)
	}

	r := row.Output.Record
	return append(values,
		string(r.PatientName),
		string(r.PatientDOB),
		string(r.PatientGender),
		string(r.Demographics.MaritalStatus),
		string(r.Demographics.Ethnicity),
		string(r.Demographics.Occupation),
		string(r.PastMedicalHistory.MedicalHistory),
		string(r.PastMedicalHistory.SurgicalHistory),
		string(r.Medications.DrugAllergy),
		string(r.Medications.PrescribedMedications),
		string(r.Medications.RecentlyPrescribedMedications),
		string(r.MentalState.AppearanceAndBehavior),
		string(r.MentalState.SpeechAndThoughts),
		string(r.MentalState.Mood),
		string(r.MentalState.Thoughts),
		string(r.PhysicalExamination.BloodPressure),
		string(r.PhysicalExamination.PulseRate),
		string(r.PhysicalExamination.Temperature),
		string(r.Note),
		"",
	)
}
