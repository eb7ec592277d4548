package silver

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ems-pipeline/internal/model"
	"github.com/sells-group/ems-pipeline/internal/store"
)

// Pipeline is the watermark key shared by the silver and gold stages.
const Pipeline = "ems_silver_gold"

// StepName identifies the silver stage in the run step log.
const StepName = "SILVER_LOAD"

// errorMessages are the human-readable reject messages stored alongside
// each error type.
var errorMessages = map[model.ErrorType]string{
	model.ErrInvalidIncidentDT:  "incident_dt is missing or unparseable",
	model.ErrMissingCounty:      "incident_county is missing",
	model.ErrInvalidInjuryFlg:   "injury_flg is not a recognized boolean",
	model.ErrInvalidNaloxoneFlg: "naloxone_given_flg is not a recognized boolean",
	model.ErrInvalidMedGivenFlg: "medication_given_other_flg is not a recognized boolean",
}

// Loader drives the incremental bronze-to-silver load. It walks bronze in
// watermark order, one batch per transaction, so an interrupted run resumes
// from the last committed batch.
type Loader struct {
	store     store.Store
	batchSize int
	log       *zap.Logger
}

// NewLoader returns a Loader reading batches of batchSize rows.
func NewLoader(st store.Store, batchSize int) *Loader {
	if batchSize <= 0 {
		batchSize = 50000
	}
	return &Loader{
		store:     st,
		batchSize: batchSize,
		log:       zap.L().With(zap.String("component", "silver")),
	}
}

// Run executes the silver stage under a step log entry. The entry is
// finalized SUCCESS or FAILED even when the load errors partway; counts
// reflect the batches that committed.
func (l *Loader) Run(ctx context.Context, runID string, fullRefresh bool) (store.StepResult, error) {
	stepID, err := l.store.StartStep(ctx, runID, StepName)
	if err != nil {
		return store.StepResult{}, eris.Wrap(err, "silver: start step")
	}

	res, runErr := l.load(ctx, runID, fullRefresh)
	if runErr != nil {
		res.Status = model.StepFailed
		res.ErrorMessage = runErr.Error()
	} else {
		res.Status = model.StepSuccess
	}

	if err := l.store.EndStep(ctx, stepID, res); err != nil {
		if runErr != nil {
			return res, eris.Wrap(runErr, "silver: load failed and step log update failed")
		}
		return res, eris.Wrap(err, "silver: end step")
	}
	return res, runErr
}

func (l *Loader) load(ctx context.Context, runID string, fullRefresh bool) (store.StepResult, error) {
	var res store.StepResult

	if fullRefresh {
		l.log.Info("full refresh requested, resetting silver layer")
		if err := l.store.ResetSilver(ctx, Pipeline); err != nil {
			return res, eris.Wrap(err, "silver: reset")
		}
	}

	lastID, err := l.store.Watermark(ctx, Pipeline)
	if err != nil {
		return res, eris.Wrap(err, "silver: read watermark")
	}
	maxID, err := l.store.MaxRawID(ctx)
	if err != nil {
		return res, eris.Wrap(err, "silver: read bronze high water")
	}

	// Reported rows_in is the bronze high-water mark, not rows read this
	// run. Preserved because downstream reporting already keys off it.
	res.RowsIn = maxID

	l.log.Info("starting silver load",
		zap.String("run_id", runID),
		zap.Int64("watermark", lastID),
		zap.Int64("max_bronze_id", maxID),
		zap.Int("batch_size", l.batchSize))

	for lastID < maxID {
		records, err := l.store.FetchRawBatch(ctx, lastID, l.batchSize)
		if err != nil {
			return res, eris.Wrapf(err, "silver: fetch batch after %d", lastID)
		}
		if len(records) == 0 {
			break
		}

		batch := store.SilverBatch{Pipeline: Pipeline}
		for i := range records {
			r := &records[i]
			clean := Normalize(r)
			if errType, ok := Classify(&clean); !ok {
				batch.Rejects = append(batch.Rejects, model.RejectRecord{
					RunID:        r.RunID,
					FileName:     r.FileName,
					SourceRowNum: r.SourceRowNum,
					ErrorType:    errType,
					ErrorMessage: errorMessages[errType],
				})
				continue
			}
			batch.Cleans = append(batch.Cleans, clean)
		}

		// A batch that does not advance the watermark would spin forever;
		// stop at the last committed position instead.
		batch.NewLastID = records[len(records)-1].BronzeID
		if batch.NewLastID <= lastID {
			l.log.Warn("batch made no progress, stopping",
				zap.Int64("watermark", lastID),
				zap.Int64("last_bronze_id", batch.NewLastID))
			break
		}

		counts, err := l.store.LoadSilverBatch(ctx, batch)
		if err != nil {
			return res, eris.Wrapf(err, "silver: load batch ending at %d", batch.NewLastID)
		}
		res.RowsOut += counts.CleansInserted
		res.RowsReject += counts.RejectsInserted

		l.log.Debug("committed silver batch",
			zap.Int64("last_bronze_id", batch.NewLastID),
			zap.Int("rows", len(records)),
			zap.Int64("cleans_inserted", counts.CleansInserted),
			zap.Int64("rejects_inserted", counts.RejectsInserted))

		lastID = batch.NewLastID
	}

	l.log.Info("silver load complete",
		zap.String("run_id", runID),
		zap.Int64("rows_out", res.RowsOut),
		zap.Int64("rows_reject", res.RowsReject))
	return res, nil
}
