package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ems-pipeline/internal/db"
	"github.com/sells-group/ems-pipeline/internal/model"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres connects to the warehouse and verifies the connection.
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, eris.New("postgres: no database_url configured")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping database")
	}

	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool; tests pass a pgxmock pool.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Migrate applies all pending SQL migrations in lexicographic order under
// an advisory lock, tracking applied files in schema_migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "store.migrate"))

	if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_lock(7241936)"); err != nil {
		return eris.Wrap(err, "postgres: acquire migration advisory lock")
	}
	defer func() {
		if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_unlock(7241936)"); err != nil {
			log.Warn("failed to release migration advisory lock", zap.Error(err))
		}
	}()

	if _, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			id         SERIAL PRIMARY KEY,
			filename   TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return eris.Wrap(err, "postgres: ensure migration table")
	}

	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return eris.Wrap(err, "postgres: read migration dir")
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		name := entry.Name()
		if applied[name] {
			continue
		}

		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return eris.Wrapf(err, "postgres: read migration %s", name)
		}

		log.Info("applying migration", zap.String("file", name))

		if _, err := s.pool.Exec(ctx, string(data)); err != nil {
			return eris.Wrapf(err, "postgres: apply migration %s", name)
		}
		if _, err := s.pool.Exec(ctx,
			"INSERT INTO schema_migrations (filename, applied_at) VALUES ($1, now())",
			name,
		); err != nil {
			return eris.Wrapf(err, "postgres: record migration %s", name)
		}
	}

	return nil
}

func (s *PostgresStore) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, "SELECT filename FROM schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan migration row")
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

// Watermark reads the last processed bronze id for a pipeline, creating a
// zero-valued entry on first access.
func (s *PostgresStore) Watermark(ctx context.Context, pipeline string) (int64, error) {
	var lastID int64
	err := s.pool.QueryRow(ctx,
		"SELECT last_bronze_id FROM etl_watermark WHERE pipeline_name = $1",
		pipeline,
	).Scan(&lastID)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, err := s.pool.Exec(ctx,
			"INSERT INTO etl_watermark (pipeline_name, last_bronze_id) VALUES ($1, 0)",
			pipeline,
		); err != nil {
			return 0, eris.Wrapf(err, "postgres: init watermark for %s", pipeline)
		}
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: read watermark for %s", pipeline)
	}
	return lastID, nil
}

const pgWatermarkUpsert = `
	INSERT INTO etl_watermark (pipeline_name, last_bronze_id)
	VALUES ($1, $2)
	ON CONFLICT (pipeline_name)
	DO UPDATE SET last_bronze_id = EXCLUDED.last_bronze_id, updated_at = now()`

func (s *PostgresStore) SetWatermark(ctx context.Context, pipeline string, lastID int64) error {
	if _, err := s.pool.Exec(ctx, pgWatermarkUpsert, pipeline, lastID); err != nil {
		return eris.Wrapf(err, "postgres: set watermark for %s", pipeline)
	}
	return nil
}

func (s *PostgresStore) StartStep(ctx context.Context, runID, stepName string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO etl_run_step_log (run_id, step_name, status)
		 VALUES ($1, $2, 'STARTED') RETURNING step_log_id`,
		runID, stepName,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: start step %s", stepName)
	}
	return id, nil
}

func (s *PostgresStore) EndStep(ctx context.Context, stepID int64, res StepResult) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE etl_run_step_log
		 SET ended_at = now(), status = $1, rows_in = $2, rows_out = $3,
		     rows_reject = $4, error_message = NULLIF($5, '')
		 WHERE step_log_id = $6`,
		string(res.Status), res.RowsIn, res.RowsOut, res.RowsReject, res.ErrorMessage, stepID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: end step %d", stepID)
	}
	return nil
}

func (s *PostgresStore) ListSteps(ctx context.Context) ([]model.StepLog, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT step_log_id, run_id, step_name, status, started_at, ended_at,
		        rows_in, rows_out, rows_reject, error_message
		 FROM etl_run_step_log ORDER BY step_log_id DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list steps")
	}
	defer rows.Close()

	var steps []model.StepLog
	for rows.Next() {
		var st model.StepLog
		var errMsg *string
		if err := rows.Scan(&st.ID, &st.RunID, &st.StepName, &st.Status, &st.StartedAt,
			&st.EndedAt, &st.RowsIn, &st.RowsOut, &st.RowsReject, &errMsg); err != nil {
			return nil, eris.Wrap(err, "postgres: scan step row")
		}
		if errMsg != nil {
			st.ErrorMessage = *errMsg
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

func (s *PostgresStore) InsertRaw(ctx context.Context, records []model.RawRecord) (int64, error) {
	rows := make([][]any, len(records))
	for i := range records {
		rows[i] = rawRow(&records[i])
	}
	return db.CopyFrom(ctx, s.pool, "ems_raw", rawColumns, rows)
}

func (s *PostgresStore) MaxRawID(ctx context.Context) (int64, error) {
	var maxID int64
	err := s.pool.QueryRow(ctx, "SELECT COALESCE(MAX(bronze_id), 0) FROM ems_raw").Scan(&maxID)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: max bronze id")
	}
	return maxID, nil
}

var rawSelectColumns = "bronze_id, " + strings.Join(rawColumns, ", ")

func (s *PostgresStore) FetchRawBatch(ctx context.Context, afterID int64, limit int) ([]model.RawRecord, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf("SELECT %s FROM ems_raw WHERE bronze_id > $1 ORDER BY bronze_id LIMIT $2", rawSelectColumns),
		afterID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: fetch raw batch")
	}
	defer rows.Close()

	var records []model.RawRecord
	for rows.Next() {
		var r model.RawRecord
		if err := rows.Scan(
			&r.BronzeID, &r.RunID, &r.FileName, &r.SourceRowNum,
			&r.IncidentDT, &r.IncidentCounty,
			&r.ChiefComplaintDispatch, &r.ChiefComplaintAnatomicLoc,
			&r.PrimarySymptom, &r.ProviderImpressionPrimary,
			&r.DispositionED, &r.DispositionHospital, &r.DestinationType,
			&r.ProviderTypeStructure, &r.ProviderTypeService, &r.ProviderTypeServiceLevel,
			&r.ProviderToSceneMins, &r.ProviderToDestinationMins,
			&r.UnitNotifiedByDispatchDT, &r.UnitArrivedOnSceneDT,
			&r.UnitArrivedToPatientDT, &r.UnitLeftSceneDT, &r.PatientArrivedDestinationDT,
			&r.InjuryFlg, &r.NaloxoneGivenFlg, &r.MedicationGivenOtherFlg,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan raw row")
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// LoadSilverBatch commits one extractor batch atomically: rejects, clean
// rows, and the watermark advance all land in a single transaction.
func (s *PostgresStore) LoadSilverBatch(ctx context.Context, batch SilverBatch) (BatchCounts, error) {
	var counts BatchCounts

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return counts, eris.Wrap(err, "postgres: begin silver batch")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rejectRows := make([][]any, len(batch.Rejects))
	for i := range batch.Rejects {
		rejectRows[i] = rejectRow(&batch.Rejects[i])
	}
	counts.RejectsInserted, err = db.InsertIgnore(ctx, tx, db.InsertConfig{
		Table:        "ems_reject",
		Columns:      rejectColumns,
		ConflictKeys: []string{"run_id", "source_row_num"},
	}, rejectRows)
	if err != nil {
		return counts, err
	}

	cleanRows := make([][]any, len(batch.Cleans))
	for i := range batch.Cleans {
		cleanRows[i] = cleanRow(&batch.Cleans[i])
	}
	// A clean candidate whose (run_id, source_row_num) already sits in the
	// reject store stays out of clean, keeping the two stores disjoint even
	// when the same source pair lands in bronze more than once.
	counts.CleansInserted, err = db.InsertIgnore(ctx, tx, db.InsertConfig{
		Table:        "ems_clean",
		Columns:      cleanColumns,
		ConflictKeys: []string{"record_hash"},
		Exclude: &db.ExcludeConfig{
			Table:   "ems_reject",
			Columns: []string{"run_id", "source_row_num"},
		},
	}, cleanRows)
	if err != nil {
		return counts, err
	}

	if _, err := tx.Exec(ctx, pgWatermarkUpsert, batch.Pipeline, batch.NewLastID); err != nil {
		return counts, eris.Wrapf(err, "postgres: advance watermark for %s", batch.Pipeline)
	}

	if err := tx.Commit(ctx); err != nil {
		return counts, eris.Wrap(err, "postgres: commit silver batch")
	}
	return counts, nil
}

func (s *PostgresStore) ResetSilver(ctx context.Context, pipeline string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin silver reset")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "TRUNCATE TABLE ems_reject, ems_clean"); err != nil {
		return eris.Wrap(err, "postgres: truncate silver")
	}
	if _, err := tx.Exec(ctx, pgWatermarkUpsert, pipeline, 0); err != nil {
		return eris.Wrapf(err, "postgres: rewind watermark for %s", pipeline)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit silver reset")
}

func (s *PostgresStore) CleanRowCount(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(1) FROM ems_clean").Scan(&n); err != nil {
		return 0, eris.Wrap(err, "postgres: count clean rows")
	}
	return n, nil
}

var cleanSelectColumns = strings.Join(cleanColumns, ", ")

func (s *PostgresStore) ListClean(ctx context.Context) ([]model.CleanRecord, error) {
	rows, err := s.pool.Query(ctx,
		fmt.Sprintf("SELECT %s FROM ems_clean ORDER BY clean_id", cleanSelectColumns),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list clean rows")
	}
	defer rows.Close()

	var records []model.CleanRecord
	for rows.Next() {
		var c model.CleanRecord
		if err := rows.Scan(
			&c.RunID, &c.FileName, &c.SourceRowNum,
			&c.IncidentDttm, &c.IncidentCounty,
			&c.ChiefComplaintDispatch, &c.ChiefComplaintAnatomicLoc,
			&c.PrimarySymptom, &c.ProviderImpressionPrimary,
			&c.DispositionED, &c.DispositionHospital, &c.DestinationType,
			&c.ProviderTypeStructure, &c.ProviderTypeService, &c.ProviderTypeServiceLevel,
			&c.ProviderToSceneMins, &c.ProviderToDestinationMins,
			&c.UnitNotifiedByDispatchDttm, &c.UnitArrivedOnSceneDttm,
			&c.UnitArrivedToPatientDttm, &c.UnitLeftSceneDttm, &c.PatientArrivedDestinationDttm,
			&c.InjuryFlg, &c.NaloxoneGivenFlg, &c.MedicationGivenOtherFlg,
			&c.RecordHash,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan clean row")
		}
		records = append(records, c)
	}
	return records, rows.Err()
}

func dimSelectSQL(dim DimSpec) string {
	cols := make([]string, 0, len(dim.AttrColumns)+2)
	cols = append(cols, pgx.Identifier{dim.KeyColumn}.Sanitize())
	for _, c := range dim.AttrColumns {
		cols = append(cols, pgx.Identifier{c}.Sanitize())
	}
	cols = append(cols, "unknown_flag")
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		strings.Join(cols, ", "),
		pgx.Identifier{dim.Table}.Sanitize(),
		pgx.Identifier{dim.KeyColumn}.Sanitize(),
	)
}

func (s *PostgresStore) ListDimMembers(ctx context.Context, dim DimSpec) ([]model.DimMember, error) {
	rows, err := s.pool.Query(ctx, dimSelectSQL(dim))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list %s members", dim.Name)
	}
	defer rows.Close()

	var members []model.DimMember
	for rows.Next() {
		m := model.DimMember{Attrs: make([]*string, len(dim.AttrColumns))}
		dests := make([]any, 0, len(dim.AttrColumns)+2)
		dests = append(dests, &m.Key)
		for i := range m.Attrs {
			dests = append(dests, &m.Attrs[i])
		}
		dests = append(dests, &m.Unknown)
		if err := rows.Scan(dests...); err != nil {
			return nil, eris.Wrapf(err, "postgres: scan %s member", dim.Name)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *PostgresStore) InsertDimMembers(ctx context.Context, dim DimSpec, tuples [][]*string) (int64, error) {
	rows := make([][]any, len(tuples))
	for i, tuple := range tuples {
		row := make([]any, len(tuple))
		for j, v := range tuple {
			row[j] = v
		}
		rows[i] = row
	}
	n, err := db.CopyFrom(ctx, s.pool, dim.Table, dim.AttrColumns, rows)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: insert %s members", dim.Name)
	}
	return n, nil
}

func (s *PostgresStore) InsertDates(ctx context.Context, dates []model.DateRow) (int64, error) {
	rows := make([][]any, len(dates))
	for i := range dates {
		rows[i] = dateRow(&dates[i])
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin date insert")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	n, err := db.InsertIgnore(ctx, tx, db.InsertConfig{
		Table:        "dim_date",
		Columns:      dateColumns,
		ConflictKeys: []string{"date_key"},
	}, rows)
	if err != nil {
		return 0, err
	}
	return n, eris.Wrap(tx.Commit(ctx), "postgres: commit date insert")
}

func (s *PostgresStore) FactRuns(ctx context.Context) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, "SELECT record_hash, run_id FROM fact_ems_encounter")
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list fact hashes")
	}
	defer rows.Close()

	runs := make(map[string]string)
	for rows.Next() {
		var hash, runID string
		if err := rows.Scan(&hash, &runID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan fact hash")
		}
		runs[hash] = runID
	}
	return runs, rows.Err()
}

func (s *PostgresStore) InsertFacts(ctx context.Context, facts []model.FactRecord) (int64, error) {
	rows := make([][]any, len(facts))
	for i := range facts {
		rows[i] = factRow(&facts[i])
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin fact insert")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	n, err := db.InsertIgnore(ctx, tx, db.InsertConfig{
		Table:        "fact_ems_encounter",
		Columns:      factColumns,
		ConflictKeys: []string{"record_hash"},
	}, rows)
	if err != nil {
		return 0, err
	}
	return n, eris.Wrap(tx.Commit(ctx), "postgres: commit fact insert")
}

// ResetGold wipes derived state for a full refresh: facts first to respect
// referential integrity, then non-unknown dimension rows, dates, and the
// summary. Unknown members and their surrogate keys survive.
func (s *PostgresStore) ResetGold(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin gold reset")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	stmts := []string{
		"DELETE FROM fact_ems_encounter",
		"DELETE FROM dim_complaint WHERE NOT unknown_flag",
		"DELETE FROM dim_symptom WHERE NOT unknown_flag",
		"DELETE FROM dim_provider WHERE NOT unknown_flag",
		"DELETE FROM dim_county WHERE NOT unknown_flag",
		"DELETE FROM dim_disposition WHERE NOT unknown_flag",
		"DELETE FROM dim_destination_type WHERE NOT unknown_flag",
		"DELETE FROM dim_date",
		"DELETE FROM ems_daily_summary",
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return eris.Wrapf(err, "postgres: gold reset: %s", stmt)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit gold reset")
}

// ReplaceDailySummary deletes and reinserts the aggregate rows for one run
// id, the delete+reinsert idempotent upsert pattern.
func (s *PostgresStore) ReplaceDailySummary(ctx context.Context, runID string, summary []model.DailySummaryRow) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin summary replace")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "DELETE FROM ems_daily_summary WHERE run_id = $1", runID); err != nil {
		return eris.Wrapf(err, "postgres: delete summary for run %s", runID)
	}

	rows := make([][]any, len(summary))
	for i := range summary {
		rows[i] = summaryRow(&summary[i])
	}
	if _, err := db.CopyFrom(ctx, tx, "ems_daily_summary", summaryColumns, rows); err != nil {
		return eris.Wrapf(err, "postgres: insert summary for run %s", runID)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit summary replace")
}

func (s *PostgresStore) ListDailySummary(ctx context.Context, runID string) ([]model.DailySummaryRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT run_id, incident_date, incident_county, total_incidents, injury_yes, naloxone_yes
		 FROM ems_daily_summary WHERE run_id = $1
		 ORDER BY incident_date, incident_county`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list daily summary")
	}
	defer rows.Close()

	var summary []model.DailySummaryRow
	for rows.Next() {
		var r model.DailySummaryRow
		if err := rows.Scan(&r.RunID, &r.IncidentDate, &r.IncidentCounty,
			&r.TotalIncidents, &r.InjuryYes, &r.NaloxoneYes); err != nil {
			return nil, eris.Wrap(err, "postgres: scan summary row")
		}
		summary = append(summary, r)
	}
	return summary, rows.Err()
}
