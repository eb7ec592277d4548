package gold

import (
	"context"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/ems-pipeline/internal/model"
	"github.com/sells-group/ems-pipeline/internal/store"
)

// Conformed dimension specs. Attribute column order here is the tuple
// order used for lookups and inserts.
var (
	DimCounty = store.DimSpec{
		Name:        "county",
		Table:       "dim_county",
		KeyColumn:   "county_key",
		AttrColumns: []string{"county_name"},
	}
	DimComplaint = store.DimSpec{
		Name:        "complaint",
		Table:       "dim_complaint",
		KeyColumn:   "complaint_key",
		AttrColumns: []string{"chief_complaint_dispatch", "chief_complaint_anatomic_loc"},
	}
	DimSymptom = store.DimSpec{
		Name:        "symptom",
		Table:       "dim_symptom",
		KeyColumn:   "symptom_key",
		AttrColumns: []string{"primary_symptom", "provider_impression_primary"},
	}
	DimProvider = store.DimSpec{
		Name:        "provider",
		Table:       "dim_provider",
		KeyColumn:   "provider_key",
		AttrColumns: []string{"provider_type_structure", "provider_type_service", "provider_type_service_level"},
	}
	DimDisposition = store.DimSpec{
		Name:        "disposition",
		Table:       "dim_disposition",
		KeyColumn:   "disposition_key",
		AttrColumns: []string{"disposition_name"},
	}
	DimDestinationType = store.DimSpec{
		Name:        "destination_type",
		Table:       "dim_destination_type",
		KeyColumn:   "destination_type_key",
		AttrColumns: []string{"destination_type_name"},
	}
)

// tupleExtractors yields the attribute tuples a clean record contributes
// to each dimension. Disposition is conformed: ED and hospital values
// share one dimension, so a record contributes up to two tuples there.
var tupleExtractors = map[string]func(*model.CleanRecord) [][]*string{
	DimCounty.Name: func(c *model.CleanRecord) [][]*string {
		return [][]*string{{c.IncidentCounty}}
	},
	DimComplaint.Name: func(c *model.CleanRecord) [][]*string {
		return [][]*string{{c.ChiefComplaintDispatch, c.ChiefComplaintAnatomicLoc}}
	},
	DimSymptom.Name: func(c *model.CleanRecord) [][]*string {
		return [][]*string{{c.PrimarySymptom, c.ProviderImpressionPrimary}}
	},
	DimProvider.Name: func(c *model.CleanRecord) [][]*string {
		return [][]*string{{c.ProviderTypeStructure, c.ProviderTypeService, c.ProviderTypeServiceLevel}}
	},
	DimDisposition.Name: func(c *model.CleanRecord) [][]*string {
		return [][]*string{{c.DispositionED}, {c.DispositionHospital}}
	},
	DimDestinationType.Name: func(c *model.CleanRecord) [][]*string {
		return [][]*string{{c.DestinationType}}
	},
}

// tupleKey renders an attribute tuple as a lookup key with nulls
// normalized to the empty string. Silver never stores empty strings, so
// the normalization is unambiguous.
func tupleKey(tuple []*string) string {
	parts := make([]string, len(tuple))
	for i, v := range tuple {
		if v != nil {
			parts[i] = *v
		}
	}
	return strings.Join(parts, "\x1f")
}

func allNil(tuple []*string) bool {
	for _, v := range tuple {
		if v != nil {
			return false
		}
	}
	return true
}

// dimLookup resolves attribute tuples to surrogate keys. Tuples that are
// entirely null, or absent from the dimension, resolve to the unknown
// member's key.
type dimLookup struct {
	keys    map[string]int64
	unknown int64
}

func (l *dimLookup) keyFor(tuple []*string) int64 {
	if allNil(tuple) {
		return l.unknown
	}
	if key, ok := l.keys[tupleKey(tuple)]; ok {
		return key
	}
	return l.unknown
}

func buildLookup(dim store.DimSpec, members []model.DimMember) (*dimLookup, error) {
	l := &dimLookup{keys: make(map[string]int64), unknown: -1}
	for _, m := range members {
		if m.Unknown {
			l.unknown = m.Key
			continue
		}
		l.keys[tupleKey(m.Attrs)] = m.Key
	}
	if l.unknown < 0 {
		return nil, eris.Errorf("gold: dimension %s has no unknown member; migrations not applied?", dim.Name)
	}
	return l, nil
}

// syncDim inserts the dimension tuples present in the clean rows but not
// yet in the dimension, then returns a lookup over the refreshed members.
// Dimensions are append-only: existing members are never updated.
func syncDim(ctx context.Context, st store.Store, dim store.DimSpec, records []model.CleanRecord) (*dimLookup, error) {
	members, err := st.ListDimMembers(ctx, dim)
	if err != nil {
		return nil, eris.Wrapf(err, "gold: list %s members", dim.Name)
	}
	lookup, err := buildLookup(dim, members)
	if err != nil {
		return nil, err
	}

	extract := tupleExtractors[dim.Name]
	missing := make(map[string][]*string)
	for i := range records {
		for _, tuple := range extract(&records[i]) {
			if allNil(tuple) {
				continue
			}
			key := tupleKey(tuple)
			if _, ok := lookup.keys[key]; ok {
				continue
			}
			if _, ok := missing[key]; !ok {
				missing[key] = tuple
			}
		}
	}
	if len(missing) == 0 {
		return lookup, nil
	}

	keys := make([]string, 0, len(missing))
	for key := range missing {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	tuples := make([][]*string, len(keys))
	for i, key := range keys {
		tuples[i] = missing[key]
	}

	if _, err := st.InsertDimMembers(ctx, dim, tuples); err != nil {
		return nil, eris.Wrapf(err, "gold: insert %s members", dim.Name)
	}

	members, err = st.ListDimMembers(ctx, dim)
	if err != nil {
		return nil, eris.Wrapf(err, "gold: relist %s members", dim.Name)
	}
	return buildLookup(dim, members)
}
