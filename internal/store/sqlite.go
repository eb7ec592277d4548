package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/ems-pipeline/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs local
// development and the integration tests; semantics match PostgresStore.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS ems_raw (
	bronze_id      INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id         TEXT NOT NULL,
	file_name      TEXT NOT NULL,
	source_row_num INTEGER NOT NULL,
	incident_dt                    TEXT,
	incident_county                TEXT,
	chief_complaint_dispatch       TEXT,
	chief_complaint_anatomic_loc   TEXT,
	primary_symptom                TEXT,
	provider_impression_primary    TEXT,
	disposition_ed                 TEXT,
	disposition_hospital           TEXT,
	destination_type               TEXT,
	provider_type_structure        TEXT,
	provider_type_service          TEXT,
	provider_type_service_level    TEXT,
	provider_to_scene_mins         TEXT,
	provider_to_destination_mins   TEXT,
	unit_notified_by_dispatch_dt   TEXT,
	unit_arrived_on_scene_dt       TEXT,
	unit_arrived_to_patient_dt     TEXT,
	unit_left_scene_dt             TEXT,
	patient_arrived_destination_dt TEXT,
	injury_flg                     TEXT,
	naloxone_given_flg             TEXT,
	medication_given_other_flg     TEXT,
	loaded_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_ems_raw_run_id ON ems_raw (run_id);

CREATE TABLE IF NOT EXISTS etl_watermark (
	pipeline_name  TEXT PRIMARY KEY,
	last_bronze_id INTEGER NOT NULL,
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS etl_run_step_log (
	step_log_id   INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	step_name     TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'STARTED',
	started_at    DATETIME NOT NULL,
	ended_at      DATETIME,
	rows_in       INTEGER NOT NULL DEFAULT 0,
	rows_out      INTEGER NOT NULL DEFAULT 0,
	rows_reject   INTEGER NOT NULL DEFAULT 0,
	error_message TEXT
);

CREATE INDEX IF NOT EXISTS idx_etl_run_step_log_run_id ON etl_run_step_log (run_id);

CREATE TABLE IF NOT EXISTS ems_clean (
	clean_id       INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id         TEXT NOT NULL,
	file_name      TEXT NOT NULL,
	source_row_num INTEGER NOT NULL,
	incident_dttm DATETIME,
	incident_county              TEXT,
	chief_complaint_dispatch     TEXT,
	chief_complaint_anatomic_loc TEXT,
	primary_symptom              TEXT,
	provider_impression_primary  TEXT,
	disposition_ed               TEXT,
	disposition_hospital         TEXT,
	destination_type             TEXT,
	provider_type_structure      TEXT,
	provider_type_service        TEXT,
	provider_type_service_level  TEXT,
	provider_to_scene_mins       INTEGER,
	provider_to_destination_mins INTEGER,
	unit_notified_by_dispatch_dttm   DATETIME,
	unit_arrived_on_scene_dttm       DATETIME,
	unit_arrived_to_patient_dttm     DATETIME,
	unit_left_scene_dttm             DATETIME,
	patient_arrived_destination_dttm DATETIME,
	injury_flg                 TEXT,
	naloxone_given_flg         TEXT,
	medication_given_other_flg TEXT,
	record_hash TEXT NOT NULL UNIQUE,
	loaded_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_ems_clean_run_id ON ems_clean (run_id);

CREATE TABLE IF NOT EXISTS ems_reject (
	reject_id      INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id         TEXT NOT NULL,
	file_name      TEXT NOT NULL,
	source_row_num INTEGER NOT NULL,
	error_type     TEXT NOT NULL,
	error_message  TEXT,
	rejected_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (run_id, source_row_num)
);

CREATE TABLE IF NOT EXISTS dim_county (
	county_key   INTEGER PRIMARY KEY AUTOINCREMENT,
	county_name  TEXT,
	unknown_flag INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS dim_complaint (
	complaint_key                INTEGER PRIMARY KEY AUTOINCREMENT,
	chief_complaint_dispatch     TEXT,
	chief_complaint_anatomic_loc TEXT,
	unknown_flag                 INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS dim_symptom (
	symptom_key                 INTEGER PRIMARY KEY AUTOINCREMENT,
	primary_symptom             TEXT,
	provider_impression_primary TEXT,
	unknown_flag                INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS dim_provider (
	provider_key                INTEGER PRIMARY KEY AUTOINCREMENT,
	provider_type_structure     TEXT,
	provider_type_service       TEXT,
	provider_type_service_level TEXT,
	unknown_flag                INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS dim_disposition (
	disposition_key  INTEGER PRIMARY KEY AUTOINCREMENT,
	disposition_name TEXT,
	unknown_flag     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS dim_destination_type (
	destination_type_key  INTEGER PRIMARY KEY AUTOINCREMENT,
	destination_type_name TEXT,
	unknown_flag          INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS dim_date (
	date_key    INTEGER PRIMARY KEY,
	full_date   DATE NOT NULL,
	year        INTEGER NOT NULL,
	quarter     INTEGER NOT NULL,
	month       INTEGER NOT NULL,
	day         INTEGER NOT NULL,
	day_of_week INTEGER NOT NULL,
	day_name    TEXT NOT NULL,
	month_name  TEXT NOT NULL,
	is_weekend  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS fact_ems_encounter (
	fact_key INTEGER PRIMARY KEY AUTOINCREMENT,
	incident_date_key            INTEGER REFERENCES dim_date (date_key),
	unit_notified_date_key       INTEGER REFERENCES dim_date (date_key),
	arrived_scene_date_key       INTEGER REFERENCES dim_date (date_key),
	arrived_patient_date_key     INTEGER REFERENCES dim_date (date_key),
	left_scene_date_key          INTEGER REFERENCES dim_date (date_key),
	arrived_destination_date_key INTEGER REFERENCES dim_date (date_key),
	county_key               INTEGER NOT NULL REFERENCES dim_county (county_key),
	complaint_key            INTEGER NOT NULL REFERENCES dim_complaint (complaint_key),
	symptom_key              INTEGER NOT NULL REFERENCES dim_symptom (symptom_key),
	provider_key             INTEGER NOT NULL REFERENCES dim_provider (provider_key),
	disposition_ed_key       INTEGER NOT NULL REFERENCES dim_disposition (disposition_key),
	disposition_hospital_key INTEGER NOT NULL REFERENCES dim_disposition (disposition_key),
	destination_type_key     INTEGER NOT NULL REFERENCES dim_destination_type (destination_type_key),
	provider_to_scene_mins       INTEGER,
	provider_to_destination_mins INTEGER,
	injury_flg                 TEXT,
	naloxone_given_flg         TEXT,
	medication_given_other_flg TEXT,
	run_id         TEXT NOT NULL,
	file_name      TEXT NOT NULL,
	source_row_num INTEGER NOT NULL,
	record_hash    TEXT NOT NULL UNIQUE,
	loaded_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_fact_ems_encounter_run_id ON fact_ems_encounter (run_id);

CREATE TABLE IF NOT EXISTS ems_daily_summary (
	run_id          TEXT NOT NULL,
	incident_date   DATE NOT NULL,
	incident_county TEXT,
	total_incidents INTEGER NOT NULL,
	injury_yes      INTEGER NOT NULL,
	naloxone_yes    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ems_daily_summary_run_id ON ems_daily_summary (run_id);

INSERT INTO dim_county (county_name, unknown_flag)
SELECT NULL, 1 WHERE NOT EXISTS (SELECT 1 FROM dim_county WHERE unknown_flag = 1);

INSERT INTO dim_complaint (chief_complaint_dispatch, chief_complaint_anatomic_loc, unknown_flag)
SELECT NULL, NULL, 1 WHERE NOT EXISTS (SELECT 1 FROM dim_complaint WHERE unknown_flag = 1);

INSERT INTO dim_symptom (primary_symptom, provider_impression_primary, unknown_flag)
SELECT NULL, NULL, 1 WHERE NOT EXISTS (SELECT 1 FROM dim_symptom WHERE unknown_flag = 1);

INSERT INTO dim_provider (provider_type_structure, provider_type_service, provider_type_service_level, unknown_flag)
SELECT NULL, NULL, NULL, 1 WHERE NOT EXISTS (SELECT 1 FROM dim_provider WHERE unknown_flag = 1);

INSERT INTO dim_disposition (disposition_name, unknown_flag)
SELECT NULL, 1 WHERE NOT EXISTS (SELECT 1 FROM dim_disposition WHERE unknown_flag = 1);

INSERT INTO dim_destination_type (destination_type_name, unknown_flag)
SELECT NULL, 1 WHERE NOT EXISTS (SELECT 1 FROM dim_destination_type WHERE unknown_flag = 1);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Watermark(ctx context.Context, pipeline string) (int64, error) {
	var lastID int64
	err := s.db.QueryRowContext(ctx,
		"SELECT last_bronze_id FROM etl_watermark WHERE pipeline_name = ?",
		pipeline,
	).Scan(&lastID)
	if err == sql.ErrNoRows {
		if _, err := s.db.ExecContext(ctx,
			"INSERT INTO etl_watermark (pipeline_name, last_bronze_id) VALUES (?, 0)",
			pipeline,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: init watermark for %s", pipeline)
		}
		return 0, nil
	}
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: read watermark for %s", pipeline)
	}
	return lastID, nil
}

const sqliteWatermarkUpsert = `
	INSERT INTO etl_watermark (pipeline_name, last_bronze_id, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT (pipeline_name)
	DO UPDATE SET last_bronze_id = excluded.last_bronze_id, updated_at = excluded.updated_at`

func (s *SQLiteStore) SetWatermark(ctx context.Context, pipeline string, lastID int64) error {
	if _, err := s.db.ExecContext(ctx, sqliteWatermarkUpsert, pipeline, lastID, time.Now().UTC()); err != nil {
		return eris.Wrapf(err, "sqlite: set watermark for %s", pipeline)
	}
	return nil
}

func (s *SQLiteStore) StartStep(ctx context.Context, runID, stepName string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO etl_run_step_log (run_id, step_name, status, started_at) VALUES (?, ?, 'STARTED', ?)",
		runID, stepName, time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: start step %s", stepName)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: step log id")
	}
	return id, nil
}

func (s *SQLiteStore) EndStep(ctx context.Context, stepID int64, res StepResult) error {
	var errMsg *string
	if res.ErrorMessage != "" {
		errMsg = &res.ErrorMessage
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE etl_run_step_log
		 SET ended_at = ?, status = ?, rows_in = ?, rows_out = ?, rows_reject = ?, error_message = ?
		 WHERE step_log_id = ?`,
		time.Now().UTC(), string(res.Status), res.RowsIn, res.RowsOut, res.RowsReject, errMsg, stepID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: end step %d", stepID)
	}
	return nil
}

func (s *SQLiteStore) ListSteps(ctx context.Context) ([]model.StepLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT step_log_id, run_id, step_name, status, started_at, ended_at,
		        rows_in, rows_out, rows_reject, error_message
		 FROM etl_run_step_log ORDER BY step_log_id DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list steps")
	}
	defer rows.Close()

	var steps []model.StepLog
	for rows.Next() {
		var st model.StepLog
		var errMsg *string
		if err := rows.Scan(&st.ID, &st.RunID, &st.StepName, &st.Status, &st.StartedAt,
			&st.EndedAt, &st.RowsIn, &st.RowsOut, &st.RowsReject, &errMsg); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan step row")
		}
		if errMsg != nil {
			st.ErrorMessage = *errMsg
		}
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

// placeholders returns "?, ?, ..." with n markers.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func (s *SQLiteStore) InsertRaw(ctx context.Context, records []model.RawRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin raw insert")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO ems_raw (%s) VALUES (%s)",
		strings.Join(rawColumns, ", "), placeholders(len(rawColumns)),
	))
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare raw insert")
	}
	defer stmt.Close()

	var n int64
	for i := range records {
		if _, err := stmt.ExecContext(ctx, rawRow(&records[i])...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert raw row %d", records[i].SourceRowNum)
		}
		n++
	}

	return n, eris.Wrap(tx.Commit(), "sqlite: commit raw insert")
}

func (s *SQLiteStore) MaxRawID(ctx context.Context) (int64, error) {
	var maxID int64
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(bronze_id), 0) FROM ems_raw").Scan(&maxID)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: max bronze id")
	}
	return maxID, nil
}

func (s *SQLiteStore) FetchRawBatch(ctx context.Context, afterID int64, limit int) ([]model.RawRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM ems_raw WHERE bronze_id > ? ORDER BY bronze_id LIMIT ?", rawSelectColumns),
		afterID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: fetch raw batch")
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
			return nil, eris.Wrap(err, "sqlite: scan raw row")
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) LoadSilverBatch(ctx context.Context, batch SilverBatch) (BatchCounts, error) {
	var counts BatchCounts

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return counts, eris.Wrap(err, "sqlite: begin silver batch")
	}
	defer tx.Rollback() //nolint:errcheck

	rejectStmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT OR IGNORE INTO ems_reject (%s) VALUES (%s)",
		strings.Join(rejectColumns, ", "), placeholders(len(rejectColumns)),
	))
	if err != nil {
		return counts, eris.Wrap(err, "sqlite: prepare reject insert")
	}
	defer rejectStmt.Close()

	for i := range batch.Rejects {
		res, err := rejectStmt.ExecContext(ctx, rejectRow(&batch.Rejects[i])...)
		if err != nil {
			return counts, eris.Wrapf(err, "sqlite: insert reject row %d", batch.Rejects[i].SourceRowNum)
		}
		if n, err := res.RowsAffected(); err == nil {
			counts.RejectsInserted += n
		}
	}

	// A clean candidate whose (run_id, source_row_num) already sits in the
	// reject store stays out of clean, keeping the two stores disjoint even
	// when the same source pair lands in bronze more than once.
	cleanStmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT OR IGNORE INTO ems_clean (%s) SELECT %s WHERE NOT EXISTS (SELECT 1 FROM ems_reject WHERE run_id = ? AND source_row_num = ?)",
		strings.Join(cleanColumns, ", "), placeholders(len(cleanColumns)),
	))
	if err != nil {
		return counts, eris.Wrap(err, "sqlite: prepare clean insert")
	}
	defer cleanStmt.Close()

	for i := range batch.Cleans {
		c := &batch.Cleans[i]
		res, err := cleanStmt.ExecContext(ctx, append(cleanRow(c), c.RunID, c.SourceRowNum)...)
		if err != nil {
			return counts, eris.Wrapf(err, "sqlite: insert clean row %d", c.SourceRowNum)
		}
		if n, err := res.RowsAffected(); err == nil {
			counts.CleansInserted += n
		}
	}

	if _, err := tx.ExecContext(ctx, sqliteWatermarkUpsert, batch.Pipeline, batch.NewLastID, time.Now().UTC()); err != nil {
		return counts, eris.Wrapf(err, "sqlite: advance watermark for %s", batch.Pipeline)
	}

	return counts, eris.Wrap(tx.Commit(), "sqlite: commit silver batch")
}

func (s *SQLiteStore) ResetSilver(ctx context.Context, pipeline string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin silver reset")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, stmt := range []string{"DELETE FROM ems_reject", "DELETE FROM ems_clean"} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return eris.Wrapf(err, "sqlite: silver reset: %s", stmt)
		}
	}
	if _, err := tx.ExecContext(ctx, sqliteWatermarkUpsert, pipeline, 0, time.Now().UTC()); err != nil {
		return eris.Wrapf(err, "sqlite: rewind watermark for %s", pipeline)
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit silver reset")
}

func (s *SQLiteStore) CleanRowCount(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM ems_clean").Scan(&n); err != nil {
		return 0, eris.Wrap(err, "sqlite: count clean rows")
	}
	return n, nil
}

func (s *SQLiteStore) ListClean(ctx context.Context) ([]model.CleanRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM ems_clean ORDER BY clean_id", cleanSelectColumns),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list clean rows")
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
			return nil, eris.Wrap(err, "sqlite: scan clean row")
		}
		records = append(records, c)
	}
	return records, rows.Err()
}

// quoteIdent quotes a SQL identifier for SQLite.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func (s *SQLiteStore) ListDimMembers(ctx context.Context, dim DimSpec) ([]model.DimMember, error) {
	cols := make([]string, 0, len(dim.AttrColumns)+2)
	cols = append(cols, quoteIdent(dim.KeyColumn))
	for _, c := range dim.AttrColumns {
		cols = append(cols, quoteIdent(c))
	}
	cols = append(cols, "unknown_flag")

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT %s FROM %s ORDER BY %s",
		strings.Join(cols, ", "), quoteIdent(dim.Table), quoteIdent(dim.KeyColumn),
	))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list %s members", dim.Name)
	}
	defer rows.Close()

	var members []model.DimMember
	for rows.Next() {
		m := model.DimMember{Attrs: make([]*string, len(dim.AttrColumns))}
		var unknown int64
		dests := make([]any, 0, len(dim.AttrColumns)+2)
		dests = append(dests, &m.Key)
		for i := range m.Attrs {
			dests = append(dests, &m.Attrs[i])
		}
		dests = append(dests, &unknown)
		if err := rows.Scan(dests...); err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s member", dim.Name)
		}
		m.Unknown = unknown != 0
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *SQLiteStore) InsertDimMembers(ctx context.Context, dim DimSpec, tuples [][]*string) (int64, error) {
	if len(tuples) == 0 {
		return 0, nil
	}

	cols := make([]string, len(dim.AttrColumns))
	for i, c := range dim.AttrColumns {
		cols[i] = quoteIdent(c)
	}

	stmt, err := s.db.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(dim.Table), strings.Join(cols, ", "), placeholders(len(cols)),
	))
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: prepare %s insert", dim.Name)
	}
	defer stmt.Close()

	var n int64
	for _, tuple := range tuples {
		args := make([]any, len(tuple))
		for i, v := range tuple {
			args[i] = v
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return n, eris.Wrapf(err, "sqlite: insert %s member", dim.Name)
		}
		n++
	}
	return n, nil
}

func (s *SQLiteStore) InsertDates(ctx context.Context, dates []model.DateRow) (int64, error) {
	if len(dates) == 0 {
		return 0, nil
	}

	stmt, err := s.db.PrepareContext(ctx, fmt.Sprintf(
		"INSERT OR IGNORE INTO dim_date (%s) VALUES (%s)",
		strings.Join(dateColumns, ", "), placeholders(len(dateColumns)),
	))
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare date insert")
	}
	defer stmt.Close()

	var n int64
	for i := range dates {
		res, err := stmt.ExecContext(ctx, dateRow(&dates[i])...)
		if err != nil {
			return n, eris.Wrapf(err, "sqlite: insert date %d", dates[i].DateKey)
		}
		if affected, err := res.RowsAffected(); err == nil {
			n += affected
		}
	}
	return n, nil
}

func (s *SQLiteStore) FactRuns(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT record_hash, run_id FROM fact_ems_encounter")
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list fact hashes")
	}
	defer rows.Close()

	runs := make(map[string]string)
	for rows.Next() {
		var hash, runID string
		if err := rows.Scan(&hash, &runID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan fact hash")
		}
		runs[hash] = runID
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) InsertFacts(ctx context.Context, facts []model.FactRecord) (int64, error) {
	if len(facts) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin fact insert")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT OR IGNORE INTO fact_ems_encounter (%s) VALUES (%s)",
		strings.Join(factColumns, ", "), placeholders(len(factColumns)),
	))
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare fact insert")
	}
	defer stmt.Close()

	var n int64
	for i := range facts {
		res, err := stmt.ExecContext(ctx, factRow(&facts[i])...)
		if err != nil {
			return n, eris.Wrapf(err, "sqlite: insert fact for row %d", facts[i].SourceRowNum)
		}
		if affected, err := res.RowsAffected(); err == nil {
			n += affected
		}
	}

	return n, eris.Wrap(tx.Commit(), "sqlite: commit fact insert")
}

func (s *SQLiteStore) ResetGold(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin gold reset")
	}
	defer tx.Rollback() //nolint:errcheck

	stmts := []string{
		"DELETE FROM fact_ems_encounter",
		"DELETE FROM dim_complaint WHERE unknown_flag = 0",
		"DELETE FROM dim_symptom WHERE unknown_flag = 0",
		"DELETE FROM dim_provider WHERE unknown_flag = 0",
		"DELETE FROM dim_county WHERE unknown_flag = 0",
		"DELETE FROM dim_disposition WHERE unknown_flag = 0",
		"DELETE FROM dim_destination_type WHERE unknown_flag = 0",
		"DELETE FROM dim_date",
		"DELETE FROM ems_daily_summary",
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return eris.Wrapf(err, "sqlite: gold reset: %s", stmt)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit gold reset")
}

func (s *SQLiteStore) ReplaceDailySummary(ctx context.Context, runID string, summary []model.DailySummaryRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin summary replace")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM ems_daily_summary WHERE run_id = ?", runID); err != nil {
		return eris.Wrapf(err, "sqlite: delete summary for run %s", runID)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO ems_daily_summary (%s) VALUES (%s)",
		strings.Join(summaryColumns, ", "), placeholders(len(summaryColumns)),
	))
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare summary insert")
	}
	defer stmt.Close()

	for i := range summary {
		if _, err := stmt.ExecContext(ctx, summaryRow(&summary[i])...); err != nil {
			return eris.Wrapf(err, "sqlite: insert summary for run %s", runID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit summary replace")
}

func (s *SQLiteStore) ListDailySummary(ctx context.Context, runID string) ([]model.DailySummaryRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, incident_date, incident_county, total_incidents, injury_yes, naloxone_yes
		 FROM ems_daily_summary WHERE run_id = ?
		 ORDER BY incident_date, incident_county`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list daily summary")
	}
	defer rows.Close()

	var summary []model.DailySummaryRow
	for rows.Next() {
		var r model.DailySummaryRow
		if err := rows.Scan(&r.RunID, &r.IncidentDate, &r.IncidentCounty,
			&r.TotalIncidents, &r.InjuryYes, &r.NaloxoneYes); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan summary row")
		}
		summary = append(summary, r)
	}
	return summary, rows.Err()
}
