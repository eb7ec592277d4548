// Package store persists the warehouse layers. Two backends implement the
// same interface: Postgres (pgx) for production and SQLite (modernc) for
// local development and tests.
package store

import (
	"context"

	"github.com/sells-group/ems-pipeline/internal/model"
)

// StepResult finalizes a step log entry.
type StepResult struct {
	Status       model.StepStatus `json:"status"`
	RowsIn       int64            `json:"rows_in"`
	RowsOut      int64            `json:"rows_out"`
	RowsReject   int64            `json:"rows_reject"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

// SilverBatch is one extractor batch ready to commit: its rejects, its
// accepted clean rows, and the watermark position the batch advances to.
// The whole batch commits atomically or not at all.
type SilverBatch struct {
	Pipeline  string
	NewLastID int64
	Rejects   []model.RejectRecord
	Cleans    []model.CleanRecord
}

// BatchCounts reports rows actually inserted by a silver batch. Counts are
// best effort: a backend that cannot report affected rows returns zero.
type BatchCounts struct {
	RejectsInserted int64
	CleansInserted  int64
}

// DimSpec describes one conformed dimension: its table, surrogate key
// column, and natural attribute columns in declared order.
type DimSpec struct {
	Name        string
	Table       string
	KeyColumn   string
	AttrColumns []string
}

// Store is the persistence interface the pipeline stages run against.
// All inserts are safely re-issuable given the same inputs.
type Store interface {
	// Watermark, keyed by pipeline name. Watermark creates a zero-valued
	// entry on first access.
	Watermark(ctx context.Context, pipeline string) (int64, error)
	SetWatermark(ctx context.Context, pipeline string, lastID int64) error

	// Step audit log.
	StartStep(ctx context.Context, runID, stepName string) (int64, error)
	EndStep(ctx context.Context, stepID int64, res StepResult) error
	ListSteps(ctx context.Context) ([]model.StepLog, error)

	// Bronze.
	InsertRaw(ctx context.Context, rows []model.RawRecord) (int64, error)
	MaxRawID(ctx context.Context) (int64, error)
	FetchRawBatch(ctx context.Context, afterID int64, limit int) ([]model.RawRecord, error)

	// Silver.
	LoadSilverBatch(ctx context.Context, batch SilverBatch) (BatchCounts, error)
	ResetSilver(ctx context.Context, pipeline string) error
	CleanRowCount(ctx context.Context) (int64, error)
	ListClean(ctx context.Context) ([]model.CleanRecord, error)

	// Gold.
	ListDimMembers(ctx context.Context, dim DimSpec) ([]model.DimMember, error)
	InsertDimMembers(ctx context.Context, dim DimSpec, tuples [][]*string) (int64, error)
	InsertDates(ctx context.Context, rows []model.DateRow) (int64, error)
	FactRuns(ctx context.Context) (map[string]string, error)
	InsertFacts(ctx context.Context, facts []model.FactRecord) (int64, error)
	ResetGold(ctx context.Context) error
	ReplaceDailySummary(ctx context.Context, runID string, rows []model.DailySummaryRow) error
	ListDailySummary(ctx context.Context, runID string) ([]model.DailySummaryRow, error)

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error
}
