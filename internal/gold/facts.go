package gold

import (
	"sort"
	"time"

	"github.com/sells-group/ems-pipeline/internal/model"
	"github.com/sells-group/ems-pipeline/internal/silver"
)

// lookups holds one resolved key lookup per conformed dimension.
type lookups struct {
	county          *dimLookup
	complaint       *dimLookup
	symptom         *dimLookup
	provider        *dimLookup
	disposition     *dimLookup
	destinationType *dimLookup
}

func dateKeyPtr(ts *time.Time) *int {
	if ts == nil {
		return nil
	}
	key := DateKey(*ts)
	return &key
}

// buildFact projects a clean row onto the fact grain. Dimension keys fall
// back to the unknown member; date keys stay null when the timestamp is.
func buildFact(c *model.CleanRecord, lk *lookups) model.FactRecord {
	return model.FactRecord{
		IncidentDateKey:           dateKeyPtr(c.IncidentDttm),
		UnitNotifiedDateKey:       dateKeyPtr(c.UnitNotifiedByDispatchDttm),
		ArrivedSceneDateKey:       dateKeyPtr(c.UnitArrivedOnSceneDttm),
		ArrivedPatientDateKey:     dateKeyPtr(c.UnitArrivedToPatientDttm),
		LeftSceneDateKey:          dateKeyPtr(c.UnitLeftSceneDttm),
		ArrivedDestinationDateKey: dateKeyPtr(c.PatientArrivedDestinationDttm),

		CountyKey:              lk.county.keyFor([]*string{c.IncidentCounty}),
		ComplaintKey:           lk.complaint.keyFor([]*string{c.ChiefComplaintDispatch, c.ChiefComplaintAnatomicLoc}),
		SymptomKey:             lk.symptom.keyFor([]*string{c.PrimarySymptom, c.ProviderImpressionPrimary}),
		ProviderKey:            lk.provider.keyFor([]*string{c.ProviderTypeStructure, c.ProviderTypeService, c.ProviderTypeServiceLevel}),
		DispositionEDKey:       lk.disposition.keyFor([]*string{c.DispositionED}),
		DispositionHospitalKey: lk.disposition.keyFor([]*string{c.DispositionHospital}),
		DestinationTypeKey:     lk.destinationType.keyFor([]*string{c.DestinationType}),

		ProviderToSceneMins:       c.ProviderToSceneMins,
		ProviderToDestinationMins: c.ProviderToDestinationMins,

		InjuryFlg:               c.InjuryFlg,
		NaloxoneGivenFlg:        c.NaloxoneGivenFlg,
		MedicationGivenOtherFlg: c.MedicationGivenOtherFlg,

		RunID:        c.RunID,
		FileName:     c.FileName,
		SourceRowNum: c.SourceRowNum,
		RecordHash:   c.RecordHash,
	}
}

func flagIsYes(v *string) bool {
	return v != nil && *v == silver.FlagYes
}

// summarize aggregates the run's fact-backed clean rows into daily counts
// per (incident date, county). factRuns attributes each record hash to the
// run that owns its fact row; only rows owned by runID are counted. Rows
// without an incident date carry no daily bucket and are excluded.
func summarize(runID string, records []model.CleanRecord, factRuns map[string]string) []model.DailySummaryRow {
	// County null is folded to "" for grouping; silver never stores empty
	// strings, so the fold is unambiguous.
	type bucket struct {
		dateKey int
		county  string
	}
	totals := make(map[bucket]*model.DailySummaryRow)

	for i := range records {
		c := &records[i]
		if factRuns[c.RecordHash] != runID || c.IncidentDttm == nil {
			continue
		}
		ts := *c.IncidentDttm
		day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)

		key := bucket{dateKey: DateKey(day)}
		if c.IncidentCounty != nil {
			key.county = *c.IncidentCounty
		}
		row, ok := totals[key]
		if !ok {
			row = &model.DailySummaryRow{
				RunID:          runID,
				IncidentDate:   day,
				IncidentCounty: c.IncidentCounty,
			}
			totals[key] = row
		}
		row.TotalIncidents++
		if flagIsYes(c.InjuryFlg) {
			row.InjuryYes++
		}
		if flagIsYes(c.NaloxoneGivenFlg) {
			row.NaloxoneYes++
		}
	}

	rows := make([]model.DailySummaryRow, 0, len(totals))
	for _, row := range totals {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].IncidentDate.Equal(rows[j].IncidentDate) {
			return rows[i].IncidentDate.Before(rows[j].IncidentDate)
		}
		return countyOrEmpty(rows[i].IncidentCounty) < countyOrEmpty(rows[j].IncidentCounty)
	})
	return rows
}

func countyOrEmpty(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
