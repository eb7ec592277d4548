package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ems-pipeline/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testRaw(runID string, rowNum int64, county string) model.RawRecord {
	return model.RawRecord{
		RunID:          runID,
		FileName:       "extract.csv",
		SourceRowNum:   rowNum,
		IncidentDT:     "2024-03-15 14:30:00",
		IncidentCounty: county,
		InjuryFlg:      "Y",
	}
}

func TestMigrateIdempotent(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	// A second migrate must not fail or duplicate the unknown members.
	require.NoError(t, s.Migrate(ctx))

	members, err := s.ListDimMembers(ctx, DimSpec{
		Name: "county", Table: "dim_county", KeyColumn: "county_key",
		AttrColumns: []string{"county_name"},
	})
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.True(t, members[0].Unknown)
	assert.Nil(t, members[0].Attrs[0])
}

func TestWatermarkInitAndSet(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	// First access creates a zero entry.
	wm, err := s.Watermark(ctx, "ems_silver_gold")
	require.NoError(t, err)
	assert.Equal(t, int64(0), wm)

	require.NoError(t, s.SetWatermark(ctx, "ems_silver_gold", 42))
	wm, err = s.Watermark(ctx, "ems_silver_gold")
	require.NoError(t, err)
	assert.Equal(t, int64(42), wm)

	// Upsert replaces, not appends.
	require.NoError(t, s.SetWatermark(ctx, "ems_silver_gold", 100))
	wm, err = s.Watermark(ctx, "ems_silver_gold")
	require.NoError(t, err)
	assert.Equal(t, int64(100), wm)

	// Other pipelines are independent.
	wm, err = s.Watermark(ctx, "other_pipeline")
	require.NoError(t, err)
	assert.Equal(t, int64(0), wm)
}

func TestStepLogLifecycle(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	id, err := s.StartStep(ctx, "run-1", "SILVER_LOAD")
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	steps, err := s.ListSteps(ctx)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, model.StepStarted, steps[0].Status)
	assert.Nil(t, steps[0].EndedAt)

	require.NoError(t, s.EndStep(ctx, id, StepResult{
		Status: model.StepSuccess, RowsIn: 10, RowsOut: 8, RowsReject: 2,
	}))

	steps, err = s.ListSteps(ctx)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, model.StepSuccess, steps[0].Status)
	assert.NotNil(t, steps[0].EndedAt)
	assert.Equal(t, int64(10), steps[0].RowsIn)
	assert.Equal(t, int64(8), steps[0].RowsOut)
	assert.Equal(t, int64(2), steps[0].RowsReject)
	assert.Empty(t, steps[0].ErrorMessage)
}

func TestStepLogFailure(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	id, err := s.StartStep(ctx, "run-1", "GOLD_LOAD")
	require.NoError(t, err)
	require.NoError(t, s.EndStep(ctx, id, StepResult{
		Status: model.StepFailed, ErrorMessage: "boom",
	}))

	steps, err := s.ListSteps(ctx)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, model.StepFailed, steps[0].Status)
	assert.Equal(t, "boom", steps[0].ErrorMessage)
}

func TestListStepsNewestFirst(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	first, err := s.StartStep(ctx, "run-1", "SILVER_LOAD")
	require.NoError(t, err)
	second, err := s.StartStep(ctx, "run-1", "GOLD_LOAD")
	require.NoError(t, err)

	steps, err := s.ListSteps(ctx)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, second, steps[0].ID)
	assert.Equal(t, first, steps[1].ID)
}

func TestInsertAndFetchRaw(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	n, err := s.InsertRaw(ctx, []model.RawRecord{
		testRaw("run-1", 1, "BUTLER"),
		testRaw("run-1", 2, "WARREN"),
		testRaw("run-1", 3, "HAMILTON"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	maxID, err := s.MaxRawID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), maxID)

	batch, err := s.FetchRawBatch(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, int64(1), batch[0].BronzeID)
	assert.Equal(t, "BUTLER", batch[0].IncidentCounty)
	assert.Equal(t, int64(2), batch[1].BronzeID)

	batch, err = s.FetchRawBatch(ctx, 2, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, int64(3), batch[0].BronzeID)
	assert.Equal(t, "HAMILTON", batch[0].IncidentCounty)

	batch, err = s.FetchRawBatch(ctx, 3, 10)
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestMaxRawIDEmpty(t *testing.T) {
	s := newTestSQLiteStore(t)

	maxID, err := s.MaxRawID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), maxID)
}

func testClean(runID string, rowNum int64, hash string) model.CleanRecord {
	dt := time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)
	county := "BUTLER"
	return model.CleanRecord{
		RunID:          runID,
		FileName:       "extract.csv",
		SourceRowNum:   rowNum,
		IncidentDttm:   &dt,
		IncidentCounty: &county,
		RecordHash:     hash,
	}
}

func TestLoadSilverBatch(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	batch := SilverBatch{
		Pipeline:  "ems_silver_gold",
		NewLastID: 3,
		Cleans: []model.CleanRecord{
			testClean("run-1", 1, "hash-a"),
			testClean("run-1", 2, "hash-b"),
		},
		Rejects: []model.RejectRecord{
			{RunID: "run-1", FileName: "extract.csv", SourceRowNum: 3,
				ErrorType: model.ErrMissingCounty, ErrorMessage: "incident_county is missing"},
		},
	}

	counts, err := s.LoadSilverBatch(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts.CleansInserted)
	assert.Equal(t, int64(1), counts.RejectsInserted)

	// Watermark advanced with the batch.
	wm, err := s.Watermark(ctx, "ems_silver_gold")
	require.NoError(t, err)
	assert.Equal(t, int64(3), wm)

	// Reissuing the identical batch inserts nothing.
	counts, err = s.LoadSilverBatch(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts.CleansInserted)
	assert.Equal(t, int64(0), counts.RejectsInserted)

	n, err := s.CleanRowCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestLoadSilverBatchRejectedPairExcludedFromClean(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	// A reject committed for (run-1, 5) keeps any later clean candidate
	// with the same source pair out of the clean store.
	_, err := s.LoadSilverBatch(ctx, SilverBatch{
		Pipeline: "ems_silver_gold", NewLastID: 1,
		Rejects: []model.RejectRecord{
			{RunID: "run-1", FileName: "extract.csv", SourceRowNum: 5,
				ErrorType: model.ErrInvalidIncidentDT, ErrorMessage: "incident_dt is missing or unparseable"},
		},
	})
	require.NoError(t, err)

	counts, err := s.LoadSilverBatch(ctx, SilverBatch{
		Pipeline: "ems_silver_gold", NewLastID: 2,
		Cleans:   []model.CleanRecord{testClean("run-1", 5, "hash-a")},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts.CleansInserted)

	n, err := s.CleanRowCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	// A different run with the same row number is unaffected.
	counts, err = s.LoadSilverBatch(ctx, SilverBatch{
		Pipeline: "ems_silver_gold", NewLastID: 3,
		Cleans:   []model.CleanRecord{testClean("run-2", 5, "hash-b")},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.CleansInserted)
}

func TestLoadSilverBatchHashDedupAcrossRuns(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := s.LoadSilverBatch(ctx, SilverBatch{
		Pipeline: "ems_silver_gold", NewLastID: 1,
		Cleans: []model.CleanRecord{testClean("run-1", 1, "hash-a")},
	})
	require.NoError(t, err)

	// Same content hash from a later run is skipped; the original row wins.
	counts, err := s.LoadSilverBatch(ctx, SilverBatch{
		Pipeline: "ems_silver_gold", NewLastID: 2,
		Cleans: []model.CleanRecord{testClean("run-2", 9, "hash-a")},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts.CleansInserted)

	rows, err := s.ListClean(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "run-1", rows[0].RunID)
	assert.Equal(t, int64(1), rows[0].SourceRowNum)
}

func TestResetSilver(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := s.LoadSilverBatch(ctx, SilverBatch{
		Pipeline: "ems_silver_gold", NewLastID: 5,
		Cleans: []model.CleanRecord{testClean("run-1", 1, "hash-a")},
		Rejects: []model.RejectRecord{
			{RunID: "run-1", FileName: "extract.csv", SourceRowNum: 2, ErrorType: model.ErrMissingCounty},
		},
	})
	require.NoError(t, err)

	require.NoError(t, s.ResetSilver(ctx, "ems_silver_gold"))

	n, err := s.CleanRowCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	wm, err := s.Watermark(ctx, "ems_silver_gold")
	require.NoError(t, err)
	assert.Equal(t, int64(0), wm)
}

var testDimCounty = DimSpec{
	Name: "county", Table: "dim_county", KeyColumn: "county_key",
	AttrColumns: []string{"county_name"},
}

func TestDimMembers(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	butler := "BUTLER"
	warren := "WARREN"
	n, err := s.InsertDimMembers(ctx, testDimCounty, [][]*string{{&butler}, {&warren}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	members, err := s.ListDimMembers(ctx, testDimCounty)
	require.NoError(t, err)
	require.Len(t, members, 3) // unknown + 2

	var unknownSeen int
	names := map[string]bool{}
	for _, m := range members {
		if m.Unknown {
			unknownSeen++
			continue
		}
		require.NotNil(t, m.Attrs[0])
		names[*m.Attrs[0]] = true
	}
	assert.Equal(t, 1, unknownSeen)
	assert.True(t, names["BUTLER"])
	assert.True(t, names["WARREN"])
}

func TestInsertDatesIgnoresDuplicates(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	day := model.DateRow{
		DateKey: 20240315, FullDate: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Year: 2024, Quarter: 1, Month: 3, Day: 15,
		DayOfWeek: 6, DayName: "Friday", MonthName: "March",
	}

	n, err := s.InsertDates(ctx, []model.DateRow{day})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.InsertDates(ctx, []model.DateRow{day})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func unknownKey(t *testing.T, s *SQLiteStore, dim DimSpec) int64 {
	t.Helper()
	members, err := s.ListDimMembers(context.Background(), dim)
	require.NoError(t, err)
	for _, m := range members {
		if m.Unknown {
			return m.Key
		}
	}
	t.Fatalf("no unknown member in %s", dim.Name)
	return 0
}

func allUnknownFact(t *testing.T, s *SQLiteStore, runID, hash string) model.FactRecord {
	t.Helper()
	return model.FactRecord{
		CountyKey:              unknownKey(t, s, testDimCounty),
		ComplaintKey:           unknownKey(t, s, DimSpec{Name: "complaint", Table: "dim_complaint", KeyColumn: "complaint_key", AttrColumns: []string{"chief_complaint_dispatch", "chief_complaint_anatomic_loc"}}),
		SymptomKey:             unknownKey(t, s, DimSpec{Name: "symptom", Table: "dim_symptom", KeyColumn: "symptom_key", AttrColumns: []string{"primary_symptom", "provider_impression_primary"}}),
		ProviderKey:            unknownKey(t, s, DimSpec{Name: "provider", Table: "dim_provider", KeyColumn: "provider_key", AttrColumns: []string{"provider_type_structure", "provider_type_service", "provider_type_service_level"}}),
		DispositionEDKey:       unknownKey(t, s, DimSpec{Name: "disposition", Table: "dim_disposition", KeyColumn: "disposition_key", AttrColumns: []string{"disposition_name"}}),
		DispositionHospitalKey: unknownKey(t, s, DimSpec{Name: "disposition", Table: "dim_disposition", KeyColumn: "disposition_key", AttrColumns: []string{"disposition_name"}}),
		DestinationTypeKey:     unknownKey(t, s, DimSpec{Name: "destination_type", Table: "dim_destination_type", KeyColumn: "destination_type_key", AttrColumns: []string{"destination_type_name"}}),
		RunID:                  runID,
		FileName:               "extract.csv",
		SourceRowNum:           1,
		RecordHash:             hash,
	}
}

func TestInsertFactsDedup(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	fact := allUnknownFact(t, s, "run-1", "hash-a")

	n, err := s.InsertFacts(ctx, []model.FactRecord{fact})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Same hash again is skipped.
	n, err = s.InsertFacts(ctx, []model.FactRecord{fact})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	runs, err := s.FactRuns(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"hash-a": "run-1"}, runs)
}

func TestResetGoldPreservesUnknownMembers(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	butler := "BUTLER"
	_, err := s.InsertDimMembers(ctx, testDimCounty, [][]*string{{&butler}})
	require.NoError(t, err)

	fact := allUnknownFact(t, s, "run-1", "hash-a")
	_, err = s.InsertFacts(ctx, []model.FactRecord{fact})
	require.NoError(t, err)

	require.NoError(t, s.ResetGold(ctx))

	runs, err := s.FactRuns(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)

	members, err := s.ListDimMembers(ctx, testDimCounty)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.True(t, members[0].Unknown)
}

func TestReplaceDailySummary(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	county := "BUTLER"
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.ReplaceDailySummary(ctx, "run-1", []model.DailySummaryRow{
		{RunID: "run-1", IncidentDate: day, IncidentCounty: &county, TotalIncidents: 3, InjuryYes: 1, NaloxoneYes: 2},
	}))

	rows, err := s.ListDailySummary(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(3), rows[0].TotalIncidents)

	// Replace swaps the run's rows wholesale.
	require.NoError(t, s.ReplaceDailySummary(ctx, "run-1", []model.DailySummaryRow{
		{RunID: "run-1", IncidentDate: day, IncidentCounty: &county, TotalIncidents: 5, InjuryYes: 0, NaloxoneYes: 0},
	}))

	rows, err = s.ListDailySummary(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(5), rows[0].TotalIncidents)

	// Other runs are untouched.
	rows, err = s.ListDailySummary(ctx, "run-2")
	require.NoError(t, err)
	assert.Empty(t, rows)
}
