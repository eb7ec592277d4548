package store

import "github.com/sells-group/ems-pipeline/internal/model"

// Column lists and row builders shared by both backends. Order here must
// match the migration DDL; nil pointers become SQL NULLs in either driver.

var rawColumns = []string{
	"run_id", "file_name", "source_row_num",
	"incident_dt", "incident_county",
	"chief_complaint_dispatch", "chief_complaint_anatomic_loc",
	"primary_symptom", "provider_impression_primary",
	"disposition_ed", "disposition_hospital", "destination_type",
	"provider_type_structure", "provider_type_service", "provider_type_service_level",
	"provider_to_scene_mins", "provider_to_destination_mins",
	"unit_notified_by_dispatch_dt", "unit_arrived_on_scene_dt",
	"unit_arrived_to_patient_dt", "unit_left_scene_dt", "patient_arrived_destination_dt",
	"injury_flg", "naloxone_given_flg", "medication_given_other_flg",
}

func rawRow(r *model.RawRecord) []any {
	return []any{
		r.RunID, r.FileName, r.SourceRowNum,
		r.IncidentDT, r.IncidentCounty,
		r.ChiefComplaintDispatch, r.ChiefComplaintAnatomicLoc,
		r.PrimarySymptom, r.ProviderImpressionPrimary,
		r.DispositionED, r.DispositionHospital, r.DestinationType,
		r.ProviderTypeStructure, r.ProviderTypeService, r.ProviderTypeServiceLevel,
		r.ProviderToSceneMins, r.ProviderToDestinationMins,
		r.UnitNotifiedByDispatchDT, r.UnitArrivedOnSceneDT,
		r.UnitArrivedToPatientDT, r.UnitLeftSceneDT, r.PatientArrivedDestinationDT,
		r.InjuryFlg, r.NaloxoneGivenFlg, r.MedicationGivenOtherFlg,
	}
}

var cleanColumns = []string{
	"run_id", "file_name", "source_row_num",
	"incident_dttm", "incident_county",
	"chief_complaint_dispatch", "chief_complaint_anatomic_loc",
	"primary_symptom", "provider_impression_primary",
	"disposition_ed", "disposition_hospital", "destination_type",
	"provider_type_structure", "provider_type_service", "provider_type_service_level",
	"provider_to_scene_mins", "provider_to_destination_mins",
	"unit_notified_by_dispatch_dttm", "unit_arrived_on_scene_dttm",
	"unit_arrived_to_patient_dttm", "unit_left_scene_dttm", "patient_arrived_destination_dttm",
	"injury_flg", "naloxone_given_flg", "medication_given_other_flg",
	"record_hash",
}

func cleanRow(c *model.CleanRecord) []any {
	return []any{
		c.RunID, c.FileName, c.SourceRowNum,
		c.IncidentDttm, c.IncidentCounty,
		c.ChiefComplaintDispatch, c.ChiefComplaintAnatomicLoc,
		c.PrimarySymptom, c.ProviderImpressionPrimary,
		c.DispositionED, c.DispositionHospital, c.DestinationType,
		c.ProviderTypeStructure, c.ProviderTypeService, c.ProviderTypeServiceLevel,
		c.ProviderToSceneMins, c.ProviderToDestinationMins,
		c.UnitNotifiedByDispatchDttm, c.UnitArrivedOnSceneDttm,
		c.UnitArrivedToPatientDttm, c.UnitLeftSceneDttm, c.PatientArrivedDestinationDttm,
		c.InjuryFlg, c.NaloxoneGivenFlg, c.MedicationGivenOtherFlg,
		c.RecordHash,
	}
}

var rejectColumns = []string{
	"run_id", "file_name", "source_row_num", "error_type", "error_message",
}

func rejectRow(r *model.RejectRecord) []any {
	return []any{r.RunID, r.FileName, r.SourceRowNum, string(r.ErrorType), r.ErrorMessage}
}

var dateColumns = []string{
	"date_key", "full_date", "year", "quarter", "month", "day",
	"day_of_week", "day_name", "month_name", "is_weekend",
}

func dateRow(d *model.DateRow) []any {
	return []any{
		d.DateKey, d.FullDate, d.Year, d.Quarter, d.Month, d.Day,
		d.DayOfWeek, d.DayName, d.MonthName, d.IsWeekend,
	}
}

var factColumns = []string{
	"incident_date_key", "unit_notified_date_key", "arrived_scene_date_key",
	"arrived_patient_date_key", "left_scene_date_key", "arrived_destination_date_key",
	"county_key", "complaint_key", "symptom_key", "provider_key",
	"disposition_ed_key", "disposition_hospital_key", "destination_type_key",
	"provider_to_scene_mins", "provider_to_destination_mins",
	"injury_flg", "naloxone_given_flg", "medication_given_other_flg",
	"run_id", "file_name", "source_row_num", "record_hash",
}

func factRow(f *model.FactRecord) []any {
	return []any{
		f.IncidentDateKey, f.UnitNotifiedDateKey, f.ArrivedSceneDateKey,
		f.ArrivedPatientDateKey, f.LeftSceneDateKey, f.ArrivedDestinationDateKey,
		f.CountyKey, f.ComplaintKey, f.SymptomKey, f.ProviderKey,
		f.DispositionEDKey, f.DispositionHospitalKey, f.DestinationTypeKey,
		f.ProviderToSceneMins, f.ProviderToDestinationMins,
		f.InjuryFlg, f.NaloxoneGivenFlg, f.MedicationGivenOtherFlg,
		f.RunID, f.FileName, f.SourceRowNum, f.RecordHash,
	}
}

var summaryColumns = []string{
	"run_id", "incident_date", "incident_county",
	"total_incidents", "injury_yes", "naloxone_yes",
}

func summaryRow(s *model.DailySummaryRow) []any {
	return []any{
		s.RunID, s.IncidentDate, s.IncidentCounty,
		s.TotalIncidents, s.InjuryYes, s.NaloxoneYes,
	}
}
