package silver

import (
	"github.com/sells-group/ems-pipeline/internal/model"
)

// rule pairs a reject reason with the predicate that triggers it.
type rule struct {
	errType model.ErrorType
	match   func(*model.CleanRecord) bool
}

// classifyRules is evaluated in order and the first match wins: a record
// failing several validations is recorded with the earliest reason only.
// Downstream consumers depend on this order.
var classifyRules = []rule{
	{model.ErrInvalidIncidentDT, func(c *model.CleanRecord) bool {
		return c.IncidentDttm == nil
	}},
	{model.ErrMissingCounty, func(c *model.CleanRecord) bool {
		return c.IncidentCounty == nil
	}},
	{model.ErrInvalidInjuryFlg, func(c *model.CleanRecord) bool {
		return isInvalidFlag(c.InjuryFlg)
	}},
	{model.ErrInvalidNaloxoneFlg, func(c *model.CleanRecord) bool {
		return isInvalidFlag(c.NaloxoneGivenFlg)
	}},
	{model.ErrInvalidMedGivenFlg, func(c *model.CleanRecord) bool {
		return isInvalidFlag(c.MedicationGivenOtherFlg)
	}},
}

func isInvalidFlag(v *string) bool {
	return v != nil && *v == FlagInvalid
}

// Classify returns the reject reason for a normalized record, or ok=true
// when the record passes every rule and may be loaded into the clean store.
func Classify(c *model.CleanRecord) (model.ErrorType, bool) {
	for _, r := range classifyRules {
		if r.match(c) {
			return r.errType, false
		}
	}
	return "", true
}
