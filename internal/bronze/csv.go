// Package bronze reads source extracts into raw records. Bronze is
// append-only: ingestion never parses or validates field content, it only
// attaches lineage.
package bronze

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ems-pipeline/internal/model"
)

// columnSetters maps normalized header names onto raw record fields.
// Headers are matched case-insensitively; unrecognized columns are ignored
// and absent columns load as empty strings.
var columnSetters = map[string]func(*model.RawRecord, string){
	"INCIDENT_DT":                    func(r *model.RawRecord, v string) { r.IncidentDT = v },
	"INCIDENT_COUNTY":                func(r *model.RawRecord, v string) { r.IncidentCounty = v },
	"CHIEF_COMPLAINT_DISPATCH":       func(r *model.RawRecord, v string) { r.ChiefComplaintDispatch = v },
	"CHIEF_COMPLAINT_ANATOMIC_LOC":   func(r *model.RawRecord, v string) { r.ChiefComplaintAnatomicLoc = v },
	"PRIMARY_SYMPTOM":                func(r *model.RawRecord, v string) { r.PrimarySymptom = v },
	"PROVIDER_IMPRESSION_PRIMARY":    func(r *model.RawRecord, v string) { r.ProviderImpressionPrimary = v },
	"DISPOSITION_ED":                 func(r *model.RawRecord, v string) { r.DispositionED = v },
	"DISPOSITION_HOSPITAL":           func(r *model.RawRecord, v string) { r.DispositionHospital = v },
	"DESTINATION_TYPE":               func(r *model.RawRecord, v string) { r.DestinationType = v },
	"PROVIDER_TYPE_STRUCTURE":        func(r *model.RawRecord, v string) { r.ProviderTypeStructure = v },
	"PROVIDER_TYPE_SERVICE":          func(r *model.RawRecord, v string) { r.ProviderTypeService = v },
	"PROVIDER_TYPE_SERVICE_LEVEL":    func(r *model.RawRecord, v string) { r.ProviderTypeServiceLevel = v },
	"PROVIDER_TO_SCENE_MINS":         func(r *model.RawRecord, v string) { r.ProviderToSceneMins = v },
	"PROVIDER_TO_DESTINATION_MINS":   func(r *model.RawRecord, v string) { r.ProviderToDestinationMins = v },
	"UNIT_NOTIFIED_BY_DISPATCH_DT":   func(r *model.RawRecord, v string) { r.UnitNotifiedByDispatchDT = v },
	"UNIT_ARRIVED_ON_SCENE_DT":       func(r *model.RawRecord, v string) { r.UnitArrivedOnSceneDT = v },
	"UNIT_ARRIVED_TO_PATIENT_DT":     func(r *model.RawRecord, v string) { r.UnitArrivedToPatientDT = v },
	"UNIT_LEFT_SCENE_DT":             func(r *model.RawRecord, v string) { r.UnitLeftSceneDT = v },
	"PATIENT_ARRIVED_DESTINATION_DT": func(r *model.RawRecord, v string) { r.PatientArrivedDestinationDT = v },
	"INJURY_FLG":                     func(r *model.RawRecord, v string) { r.InjuryFlg = v },
	"NALOXONE_GIVEN_FLG":             func(r *model.RawRecord, v string) { r.NaloxoneGivenFlg = v },
	"MEDICATION_GIVEN_OTHER_FLG":     func(r *model.RawRecord, v string) { r.MedicationGivenOtherFlg = v },
}

// ReadCSV parses a source extract into raw records with lineage attached.
// Source row numbers are 1-based over the data rows, excluding the header.
func ReadCSV(path, runID string) ([]model.RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "bronze: open %s", path)
	}
	defer f.Close()

	records, err := Read(f, filepath.Base(path), runID)
	if err != nil {
		return nil, eris.Wrapf(err, "bronze: read %s", path)
	}
	return records, nil
}

// Read parses CSV content from r, stamping each record with fileName and
// runID lineage.
func Read(r io.Reader, fileName, runID string) ([]model.RawRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, eris.Wrap(err, "read header")
	}

	setters := make([]func(*model.RawRecord, string), len(header))
	for i, name := range header {
		setters[i] = columnSetters[strings.ToUpper(strings.TrimSpace(name))]
	}

	var records []model.RawRecord
	var rowNum int64
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "read row %d", rowNum+1)
		}
		rowNum++

		rec := model.RawRecord{
			RunID:        runID,
			FileName:     fileName,
			SourceRowNum: rowNum,
		}
		for i, v := range row {
			if i < len(setters) && setters[i] != nil {
				setters[i](&rec, v)
			}
		}
		records = append(records, rec)
	}
	return records, nil
}
