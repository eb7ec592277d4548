package model

import "time"

// StepStatus is the lifecycle state of a step log entry.
type StepStatus string

const (
	StepStarted StepStatus = "STARTED"
	StepSuccess StepStatus = "SUCCESS"
	StepFailed  StepStatus = "FAILED"
)

// StepLog is one row of the run step audit log. A row is created STARTED
// when a step begins and finalized exactly once when it ends.
type StepLog struct {
	ID           int64      `json:"id"`
	RunID        string     `json:"run_id"`
	StepName     string     `json:"step_name"`
	Status       StepStatus `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	RowsIn       int64      `json:"rows_in"`
	RowsOut      int64      `json:"rows_out"`
	RowsReject   int64      `json:"rows_reject"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// DimMember is one dimension row: a surrogate key plus the natural
// attribute values in the dimension's declared column order. Exactly one
// member per dimension carries Unknown=true and serves as the fallback key.
type DimMember struct {
	Key     int64     `json:"key"`
	Attrs   []*string `json:"attrs"`
	Unknown bool      `json:"unknown"`
}

// DateRow is one DimDate row. Derived attributes are computed once at
// insert time and never recomputed.
type DateRow struct {
	DateKey   int       `json:"date_key"` // yyyymmdd
	FullDate  time.Time `json:"full_date"`
	Year      int       `json:"year"`
	Quarter   int       `json:"quarter"`
	Month     int       `json:"month"`
	Day       int       `json:"day"`
	DayOfWeek int       `json:"day_of_week"` // 1=Sunday .. 7=Saturday
	DayName   string    `json:"day_name"`
	MonthName string    `json:"month_name"`
	IsWeekend bool      `json:"is_weekend"`
}

// FactRecord is one encounter fact. Dimension keys are never null (the
// unknown member key is the fallback); date keys stay null when the source
// timestamp is null. RecordHash is unique in the fact table.
type FactRecord struct {
	IncidentDateKey           *int `json:"incident_date_key"`
	UnitNotifiedDateKey       *int `json:"unit_notified_date_key"`
	ArrivedSceneDateKey       *int `json:"arrived_scene_date_key"`
	ArrivedPatientDateKey     *int `json:"arrived_patient_date_key"`
	LeftSceneDateKey          *int `json:"left_scene_date_key"`
	ArrivedDestinationDateKey *int `json:"arrived_destination_date_key"`

	CountyKey              int64 `json:"county_key"`
	ComplaintKey           int64 `json:"complaint_key"`
	SymptomKey             int64 `json:"symptom_key"`
	ProviderKey            int64 `json:"provider_key"`
	DispositionEDKey       int64 `json:"disposition_ed_key"`
	DispositionHospitalKey int64 `json:"disposition_hospital_key"`
	DestinationTypeKey     int64 `json:"destination_type_key"`

	ProviderToSceneMins       *int64 `json:"provider_to_scene_mins"`
	ProviderToDestinationMins *int64 `json:"provider_to_destination_mins"`

	InjuryFlg               *string `json:"injury_flg"`
	NaloxoneGivenFlg        *string `json:"naloxone_given_flg"`
	MedicationGivenOtherFlg *string `json:"medication_given_other_flg"`

	RunID        string `json:"run_id"`
	FileName     string `json:"file_name"`
	SourceRowNum int64  `json:"source_row_num"`
	RecordHash   string `json:"record_hash"`
}

// DailySummaryRow is one row of the per-run daily aggregate, recomputed
// wholesale for a run id on every gold load.
type DailySummaryRow struct {
	RunID          string    `json:"run_id"`
	IncidentDate   time.Time `json:"incident_date"`
	IncidentCounty *string   `json:"incident_county"`
	TotalIncidents int64     `json:"total_incidents"`
	InjuryYes      int64     `json:"injury_yes"`
	NaloxoneYes    int64     `json:"naloxone_yes"`
}
