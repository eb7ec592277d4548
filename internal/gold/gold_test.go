package gold

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ems-pipeline/internal/model"
	"github.com/sells-group/ems-pipeline/internal/silver"
	"github.com/sells-group/ems-pipeline/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func str(s string) *string { return &s }

func cleanRecord(runID string, rowNum int64, hash string) model.CleanRecord {
	dt := time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)
	y := silver.FlagYes
	return model.CleanRecord{
		RunID:                  runID,
		FileName:               "extract.csv",
		SourceRowNum:           rowNum,
		IncidentDttm:           &dt,
		IncidentCounty:         str("BUTLER"),
		ChiefComplaintDispatch: str("OVERDOSE"),
		PrimarySymptom:         str("UNRESPONSIVE"),
		DispositionED:          str("ADMITTED"),
		DestinationType:        str("HOSPITAL"),
		InjuryFlg:              &y,
		RecordHash:             hash,
	}
}

func loadClean(t *testing.T, st store.Store, lastID int64, records ...model.CleanRecord) {
	t.Helper()
	_, err := st.LoadSilverBatch(context.Background(), store.SilverBatch{
		Pipeline:  silver.Pipeline,
		NewLastID: lastID,
		Cleans:    records,
	})
	require.NoError(t, err)
}

func dimKeys(t *testing.T, st store.Store, dim store.DimSpec) (known int, unknown int64) {
	t.Helper()
	members, err := st.ListDimMembers(context.Background(), dim)
	require.NoError(t, err)
	unknown = -1
	for _, m := range members {
		if m.Unknown {
			unknown = m.Key
			continue
		}
		known++
	}
	require.GreaterOrEqual(t, unknown, int64(0))
	return known, unknown
}

func TestGoldRun(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	loadClean(t, st, 2,
		cleanRecord("run-1", 1, "hash-a"),
		cleanRecord("run-1", 2, "hash-b"),
	)

	res, err := NewLoader(st).Run(ctx, "run-1", false)
	require.NoError(t, err)
	assert.Equal(t, model.StepSuccess, res.Status)
	assert.Equal(t, int64(2), res.RowsIn)
	assert.Equal(t, int64(2), res.RowsOut)

	// One real county member next to the seeded unknown.
	known, _ := dimKeys(t, st, DimCounty)
	assert.Equal(t, 1, known)

	runs, err := st.FactRuns(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	summary, err := st.ListDailySummary(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, summary, 1)
	assert.Equal(t, int64(2), summary[0].TotalIncidents)
	assert.Equal(t, int64(2), summary[0].InjuryYes)
	assert.Equal(t, int64(0), summary[0].NaloxoneYes)
	require.NotNil(t, summary[0].IncidentCounty)
	assert.Equal(t, "BUTLER", *summary[0].IncidentCounty)

	steps, err := st.ListSteps(ctx)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, StepName, steps[0].StepName)
	assert.Equal(t, model.StepSuccess, steps[0].Status)
}

func TestGoldRerunIsIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	loadClean(t, st, 1, cleanRecord("run-1", 1, "hash-a"))

	loader := NewLoader(st)
	_, err := loader.Run(ctx, "run-1", false)
	require.NoError(t, err)

	before, err := st.ListDailySummary(ctx, "run-1")
	require.NoError(t, err)

	// Second run: no new facts, no duplicate dim members, same summary.
	res, err := loader.Run(ctx, "run-1", false)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.RowsOut)

	known, _ := dimKeys(t, st, DimCounty)
	assert.Equal(t, 1, known)

	after, err := st.ListDailySummary(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestGoldIncrementalSecondRun(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	loadClean(t, st, 1, cleanRecord("run-1", 1, "hash-a"))
	loader := NewLoader(st)
	_, err := loader.Run(ctx, "run-1", false)
	require.NoError(t, err)

	// A second run brings one new record with a new county.
	rec := cleanRecord("run-2", 2, "hash-b")
	rec.IncidentCounty = str("WARREN")
	loadClean(t, st, 2, rec)

	res, err := loader.Run(ctx, "run-2", false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowsOut)

	known, _ := dimKeys(t, st, DimCounty)
	assert.Equal(t, 2, known)

	// run-2's summary covers only its own fact.
	summary, err := st.ListDailySummary(ctx, "run-2")
	require.NoError(t, err)
	require.Len(t, summary, 1)
	assert.Equal(t, int64(1), summary[0].TotalIncidents)
	assert.Equal(t, "WARREN", *summary[0].IncidentCounty)

	// run-1's summary is untouched.
	summary, err = st.ListDailySummary(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, summary, 1)
	assert.Equal(t, "BUTLER", *summary[0].IncidentCounty)
}

func TestGoldUnknownFallback(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// All optional dimension attributes null: every key resolves to the
	// unknown member, never to SQL NULL.
	rec := cleanRecord("run-1", 1, "hash-a")
	rec.ChiefComplaintDispatch = nil
	rec.ChiefComplaintAnatomicLoc = nil
	rec.PrimarySymptom = nil
	rec.ProviderImpressionPrimary = nil
	rec.DispositionED = nil
	rec.DispositionHospital = nil
	rec.DestinationType = nil
	loadClean(t, st, 1, rec)

	res, err := NewLoader(st).Run(ctx, "run-1", false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowsOut)

	// No spurious members created for the all-null tuples.
	for _, dim := range []store.DimSpec{DimComplaint, DimSymptom, DimProvider, DimDisposition, DimDestinationType} {
		known, _ := dimKeys(t, st, dim)
		assert.Equal(t, 0, known, "dimension %s", dim.Name)
	}
}

func TestGoldDispositionConformed(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// ED and hospital dispositions share one dimension; a value used by
	// both appears once.
	rec := cleanRecord("run-1", 1, "hash-a")
	rec.DispositionED = str("ADMITTED")
	rec.DispositionHospital = str("ADMITTED")
	rec2 := cleanRecord("run-1", 2, "hash-b")
	rec2.DispositionED = str("RELEASED")
	rec2.DispositionHospital = nil
	loadClean(t, st, 2, rec, rec2)

	_, err := NewLoader(st).Run(ctx, "run-1", false)
	require.NoError(t, err)

	known, _ := dimKeys(t, st, DimDisposition)
	assert.Equal(t, 2, known) // ADMITTED, RELEASED
}

func TestGoldNullDateKeys(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	rec := cleanRecord("run-1", 1, "hash-a")
	rec.UnitArrivedOnSceneDttm = nil
	loadClean(t, st, 1, rec)

	_, err := NewLoader(st).Run(ctx, "run-1", false)
	require.NoError(t, err)

	// Null timestamps produce null date keys without failing the load.
	summary, err := st.ListDailySummary(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, summary, 1)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), summary[0].IncidentDate)
}

func TestGoldFullRefresh(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	loadClean(t, st, 1, cleanRecord("run-1", 1, "hash-a"))
	loader := NewLoader(st)
	_, err := loader.Run(ctx, "run-1", false)
	require.NoError(t, err)

	// Full refresh rebuilds everything from silver; unknown members and
	// counts come out the same.
	res, err := loader.Run(ctx, "run-1", true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowsOut)

	known, unknown := dimKeys(t, st, DimCounty)
	assert.Equal(t, 1, known)
	assert.GreaterOrEqual(t, unknown, int64(0))

	runs, err := st.FactRuns(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestSummarizeAttributionAndFlags(t *testing.T) {
	y := silver.FlagYes
	n := silver.FlagNo

	day1 := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 3, 16, 10, 0, 0, 0, time.UTC)

	records := []model.CleanRecord{
		{RunID: "run-1", RecordHash: "a", IncidentDttm: &day1, IncidentCounty: str("BUTLER"), InjuryFlg: &y, NaloxoneGivenFlg: &y},
		{RunID: "run-1", RecordHash: "b", IncidentDttm: &day1, IncidentCounty: str("BUTLER"), InjuryFlg: &n},
		{RunID: "run-1", RecordHash: "c", IncidentDttm: &day2, IncidentCounty: str("WARREN")},
		{RunID: "run-0", RecordHash: "d", IncidentDttm: &day1, IncidentCounty: str("BUTLER")}, // owned by an earlier run
		{RunID: "run-1", RecordHash: "e", IncidentCounty: str("BUTLER")},                      // no incident date
	}
	factRuns := map[string]string{"a": "run-1", "b": "run-1", "c": "run-1", "d": "run-0", "e": "run-1"}

	rows := summarize("run-1", records, factRuns)
	require.Len(t, rows, 2)

	assert.Equal(t, "BUTLER", *rows[0].IncidentCounty)
	assert.Equal(t, int64(2), rows[0].TotalIncidents)
	assert.Equal(t, int64(1), rows[0].InjuryYes)
	assert.Equal(t, int64(1), rows[0].NaloxoneYes)

	assert.Equal(t, "WARREN", *rows[1].IncidentCounty)
	assert.Equal(t, int64(1), rows[1].TotalIncidents)
}
