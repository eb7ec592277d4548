// Package silver turns bronze rows into validated, typed, deduplicated
// clean rows. Field normalization and classification are pure functions so
// the rules can be tested without a database.
package silver

import (
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/ems-pipeline/internal/model"
)

// Normalized flag values. FlagInvalid is a sentinel distinct from both
// valid values and null; records carrying it are rejected, so it never
// reaches the clean store.
const (
	FlagYes     = "Y"
	FlagNo      = "N"
	FlagInvalid = "X"
)

// flagSynonyms maps uppercased raw flag content to its normalized value.
var flagSynonyms = map[string]string{
	"Y": FlagYes, "YES": FlagYes, "1": FlagYes, "TRUE": FlagYes, "T": FlagYes,
	"N": FlagNo, "NO": FlagNo, "0": FlagNo, "FALSE": FlagNo, "F": FlagNo,
}

// timestampLayouts are tried in order when parsing date-valued fields.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006",
}

// trimNull trims whitespace and converts the empty string to null.
func trimNull(s string) *string {
	t := strings.TrimSpace(s)
	if t == "" {
		return nil
	}
	return &t
}

// parseTimestamp returns null for blank or unparsable input. A malformed
// date is indistinguishable from a missing one downstream.
func parseTimestamp(s string) *time.Time {
	v := trimNull(s)
	if v == nil {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, *v); err == nil {
			return &t
		}
	}
	return nil
}

// parseInt returns null for blank, unparsable, or out-of-range input.
func parseInt(s string) *int64 {
	v := trimNull(s)
	if v == nil {
		return nil
	}
	n, err := strconv.ParseInt(*v, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

// normalizeFlag maps boolean-like content onto Y/N, blank onto null, and
// anything else onto the invalid sentinel.
func normalizeFlag(s string) *string {
	v := trimNull(s)
	if v == nil {
		return nil
	}
	norm, ok := flagSynonyms[strings.ToUpper(*v)]
	if !ok {
		norm = FlagInvalid
	}
	return &norm
}

// Normalize projects a bronze row onto its typed silver shape and stamps
// the content hash. The result still carries the invalid flag sentinel
// where present; Classify decides whether the record may be loaded.
func Normalize(r *model.RawRecord) model.CleanRecord {
	return model.CleanRecord{
		RunID:        r.RunID,
		FileName:     r.FileName,
		SourceRowNum: r.SourceRowNum,

		IncidentDttm: parseTimestamp(r.IncidentDT),

		IncidentCounty:            trimNull(r.IncidentCounty),
		ChiefComplaintDispatch:    trimNull(r.ChiefComplaintDispatch),
		ChiefComplaintAnatomicLoc: trimNull(r.ChiefComplaintAnatomicLoc),
		PrimarySymptom:            trimNull(r.PrimarySymptom),
		ProviderImpressionPrimary: trimNull(r.ProviderImpressionPrimary),
		DispositionED:             trimNull(r.DispositionED),
		DispositionHospital:       trimNull(r.DispositionHospital),
		DestinationType:           trimNull(r.DestinationType),
		ProviderTypeStructure:     trimNull(r.ProviderTypeStructure),
		ProviderTypeService:       trimNull(r.ProviderTypeService),
		ProviderTypeServiceLevel:  trimNull(r.ProviderTypeServiceLevel),

		ProviderToSceneMins:       parseInt(r.ProviderToSceneMins),
		ProviderToDestinationMins: parseInt(r.ProviderToDestinationMins),

		UnitNotifiedByDispatchDttm:    parseTimestamp(r.UnitNotifiedByDispatchDT),
		UnitArrivedOnSceneDttm:        parseTimestamp(r.UnitArrivedOnSceneDT),
		UnitArrivedToPatientDttm:      parseTimestamp(r.UnitArrivedToPatientDT),
		UnitLeftSceneDttm:             parseTimestamp(r.UnitLeftSceneDT),
		PatientArrivedDestinationDttm: parseTimestamp(r.PatientArrivedDestinationDT),

		InjuryFlg:               normalizeFlag(r.InjuryFlg),
		NaloxoneGivenFlg:        normalizeFlag(r.NaloxoneGivenFlg),
		MedicationGivenOtherFlg: normalizeFlag(r.MedicationGivenOtherFlg),

		RecordHash: RecordHash(r),
	}
}
