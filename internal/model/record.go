// Package model defines the bronze, silver, and gold record shapes shared
// across the pipeline.
package model

import "time"

// RawRecord is one bronze row as ingested upstream: untyped string fields
// plus lineage. Bronze is append-only; the pipeline never mutates it.
type RawRecord struct {
	BronzeID     int64  `json:"bronze_id"`
	RunID        string `json:"run_id"`
	FileName     string `json:"file_name"`
	SourceRowNum int64  `json:"source_row_num"`

	IncidentDT                string `json:"incident_dt"`
	IncidentCounty            string `json:"incident_county"`
	ChiefComplaintDispatch    string `json:"chief_complaint_dispatch"`
	ChiefComplaintAnatomicLoc string `json:"chief_complaint_anatomic_loc"`
	PrimarySymptom            string `json:"primary_symptom"`
	ProviderImpressionPrimary string `json:"provider_impression_primary"`
	DispositionED             string `json:"disposition_ed"`
	DispositionHospital       string `json:"disposition_hospital"`
	DestinationType           string `json:"destination_type"`
	ProviderTypeStructure     string `json:"provider_type_structure"`
	ProviderTypeService       string `json:"provider_type_service"`
	ProviderTypeServiceLevel  string `json:"provider_type_service_level"`
	ProviderToSceneMins       string `json:"provider_to_scene_mins"`
	ProviderToDestinationMins string `json:"provider_to_destination_mins"`

	UnitNotifiedByDispatchDT    string `json:"unit_notified_by_dispatch_dt"`
	UnitArrivedOnSceneDT        string `json:"unit_arrived_on_scene_dt"`
	UnitArrivedToPatientDT      string `json:"unit_arrived_to_patient_dt"`
	UnitLeftSceneDT             string `json:"unit_left_scene_dt"`
	PatientArrivedDestinationDT string `json:"patient_arrived_destination_dt"`

	InjuryFlg               string `json:"injury_flg"`
	NaloxoneGivenFlg        string `json:"naloxone_given_flg"`
	MedicationGivenOtherFlg string `json:"medication_given_other_flg"`
}

// HashFields returns the business field values in the canonical digest
// order. Changing this order or its membership invalidates every stored
// RecordHash and must be treated as a schema version change.
func (r *RawRecord) HashFields() []string {
	return []string{
		r.IncidentDT,
		r.IncidentCounty,
		r.ChiefComplaintDispatch,
		r.ChiefComplaintAnatomicLoc,
		r.PrimarySymptom,
		r.ProviderImpressionPrimary,
		r.DispositionED,
		r.DispositionHospital,
		r.DestinationType,
		r.ProviderTypeStructure,
		r.ProviderTypeService,
		r.ProviderTypeServiceLevel,
		r.ProviderToSceneMins,
		r.ProviderToDestinationMins,
		r.UnitNotifiedByDispatchDT,
		r.UnitArrivedOnSceneDT,
		r.UnitArrivedToPatientDT,
		r.UnitLeftSceneDT,
		r.PatientArrivedDestinationDT,
		r.InjuryFlg,
		r.NaloxoneGivenFlg,
		r.MedicationGivenOtherFlg,
	}
}

// CleanRecord is one silver row: the typed, normalized projection of a
// RawRecord plus its content digest. RecordHash is unique across silver.
type CleanRecord struct {
	RunID        string `json:"run_id"`
	FileName     string `json:"file_name"`
	SourceRowNum int64  `json:"source_row_num"`

	IncidentDttm *time.Time `json:"incident_dttm"`

	IncidentCounty            *string `json:"incident_county"`
	ChiefComplaintDispatch    *string `json:"chief_complaint_dispatch"`
	ChiefComplaintAnatomicLoc *string `json:"chief_complaint_anatomic_loc"`
	PrimarySymptom            *string `json:"primary_symptom"`
	ProviderImpressionPrimary *string `json:"provider_impression_primary"`
	DispositionED             *string `json:"disposition_ed"`
	DispositionHospital       *string `json:"disposition_hospital"`
	DestinationType           *string `json:"destination_type"`
	ProviderTypeStructure     *string `json:"provider_type_structure"`
	ProviderTypeService       *string `json:"provider_type_service"`
	ProviderTypeServiceLevel  *string `json:"provider_type_service_level"`

	ProviderToSceneMins       *int64 `json:"provider_to_scene_mins"`
	ProviderToDestinationMins *int64 `json:"provider_to_destination_mins"`

	UnitNotifiedByDispatchDttm    *time.Time `json:"unit_notified_by_dispatch_dttm"`
	UnitArrivedOnSceneDttm        *time.Time `json:"unit_arrived_on_scene_dttm"`
	UnitArrivedToPatientDttm      *time.Time `json:"unit_arrived_to_patient_dttm"`
	UnitLeftSceneDttm             *time.Time `json:"unit_left_scene_dttm"`
	PatientArrivedDestinationDttm *time.Time `json:"patient_arrived_destination_dttm"`

	InjuryFlg               *string `json:"injury_flg"`
	NaloxoneGivenFlg        *string `json:"naloxone_given_flg"`
	MedicationGivenOtherFlg *string `json:"medication_given_other_flg"`

	RecordHash string `json:"record_hash"`
}

// ErrorType identifies why a record was rejected during validation.
type ErrorType string

const (
	ErrInvalidIncidentDT  ErrorType = "INVALID_INCIDENT_DT"
	ErrMissingCounty      ErrorType = "MISSING_COUNTY"
	ErrInvalidInjuryFlg   ErrorType = "INVALID_INJURY_FLG"
	ErrInvalidNaloxoneFlg ErrorType = "INVALID_NALOXONE_FLG"
	ErrInvalidMedGivenFlg ErrorType = "INVALID_MED_GIVEN_FLG"
)

// RejectRecord is one silver reject row. (RunID, SourceRowNum) is unique;
// rejects are permanent audit records.
type RejectRecord struct {
	RunID        string    `json:"run_id"`
	FileName     string    `json:"file_name"`
	SourceRowNum int64     `json:"source_row_num"`
	ErrorType    ErrorType `json:"error_type"`
	ErrorMessage string    `json:"error_message"`
}
