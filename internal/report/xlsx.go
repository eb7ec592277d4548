// Package report exports run results to spreadsheet workbooks.
package report

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/ems-pipeline/internal/model"
)

// WriteRunReport writes a workbook with the run's daily summary and the
// full step log, one sheet each.
func WriteRunReport(path string, summary []model.DailySummaryRow, steps []model.StepLog) error {
	f := xlsx.NewFile()

	if err := addSummarySheet(f, summary); err != nil {
		return err
	}
	if err := addStepSheet(f, steps); err != nil {
		return err
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save %s", path)
	}
	return nil
}

func addSummarySheet(f *xlsx.File, summary []model.DailySummaryRow) error {
	sheet, err := f.AddSheet("Daily Summary")
	if err != nil {
		return eris.Wrap(err, "report: add summary sheet")
	}

	header := sheet.AddRow()
	for _, name := range []string{"Run", "Date", "County", "Incidents", "Injury Y", "Naloxone Y"} {
		header.AddCell().SetString(name)
	}

	for _, row := range summary {
		r := sheet.AddRow()
		r.AddCell().SetString(row.RunID)
		r.AddCell().SetString(row.IncidentDate.Format("2006-01-02"))
		county := ""
		if row.IncidentCounty != nil {
			county = *row.IncidentCounty
		}
		r.AddCell().SetString(county)
		r.AddCell().SetInt64(row.TotalIncidents)
		r.AddCell().SetInt64(row.InjuryYes)
		r.AddCell().SetInt64(row.NaloxoneYes)
	}
	return nil
}

func addStepSheet(f *xlsx.File, steps []model.StepLog) error {
	sheet, err := f.AddSheet("Step Log")
	if err != nil {
		return eris.Wrap(err, "report: add step sheet")
	}

	header := sheet.AddRow()
	for _, name := range []string{"ID", "Run", "Step", "Status", "Started", "Ended", "Rows In", "Rows Out", "Rows Reject", "Error"} {
		header.AddCell().SetString(name)
	}

	for _, s := range steps {
		r := sheet.AddRow()
		r.AddCell().SetInt64(s.ID)
		r.AddCell().SetString(s.RunID)
		r.AddCell().SetString(s.StepName)
		r.AddCell().SetString(string(s.Status))
		r.AddCell().SetString(s.StartedAt.Format("2006-01-02 15:04:05"))
		ended := ""
		if s.EndedAt != nil {
			ended = s.EndedAt.Format("2006-01-02 15:04:05")
		}
		r.AddCell().SetString(ended)
		r.AddCell().SetInt64(s.RowsIn)
		r.AddCell().SetInt64(s.RowsOut)
		r.AddCell().SetInt64(s.RowsReject)
		r.AddCell().SetString(s.ErrorMessage)
	}
	return nil
}
