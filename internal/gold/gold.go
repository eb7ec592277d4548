// Package gold builds the star schema from the clean silver rows:
// append-only conformed dimensions, a calendar dimension, a hash-deduped
// encounter fact table, and a per-run daily summary.
package gold

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ems-pipeline/internal/model"
	"github.com/sells-group/ems-pipeline/internal/store"
)

// StepName identifies the gold stage in the run step log.
const StepName = "GOLD_LOAD"

// Loader drives the silver-to-gold load.
type Loader struct {
	store store.Store
	log   *zap.Logger
}

func NewLoader(st store.Store) *Loader {
	return &Loader{
		store: st,
		log:   zap.L().With(zap.String("component", "gold")),
	}
}

// Run executes the gold stage under a step log entry, finalized SUCCESS or
// FAILED even when the load errors partway.
func (l *Loader) Run(ctx context.Context, runID string, fullRefresh bool) (store.StepResult, error) {
	stepID, err := l.store.StartStep(ctx, runID, StepName)
	if err != nil {
		return store.StepResult{}, eris.Wrap(err, "gold: start step")
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
			return res, eris.Wrap(runErr, "gold: load failed and step log update failed")
		}
		return res, eris.Wrap(err, "gold: end step")
	}
	return res, runErr
}

func (l *Loader) load(ctx context.Context, runID string, fullRefresh bool) (store.StepResult, error) {
	var res store.StepResult

	if fullRefresh {
		l.log.Info("full refresh requested, resetting gold layer")
		if err := l.store.ResetGold(ctx); err != nil {
			return res, eris.Wrap(err, "gold: reset")
		}
	}

	records, err := l.store.ListClean(ctx)
	if err != nil {
		return res, eris.Wrap(err, "gold: read clean rows")
	}
	res.RowsIn = int64(len(records))

	l.log.Info("starting gold load",
		zap.String("run_id", runID),
		zap.Int("clean_rows", len(records)))

	dates := DeriveDates(records)
	datesInserted, err := l.store.InsertDates(ctx, dates)
	if err != nil {
		return res, eris.Wrap(err, "gold: load calendar dimension")
	}

	lk := &lookups{}
	for _, d := range []struct {
		spec store.DimSpec
		dest **dimLookup
	}{
		{DimCounty, &lk.county},
		{DimComplaint, &lk.complaint},
		{DimSymptom, &lk.symptom},
		{DimProvider, &lk.provider},
		{DimDisposition, &lk.disposition},
		{DimDestinationType, &lk.destinationType},
	} {
		lookup, err := syncDim(ctx, l.store, d.spec, records)
		if err != nil {
			return res, err
		}
		*d.dest = lookup
	}

	factRuns, err := l.store.FactRuns(ctx)
	if err != nil {
		return res, eris.Wrap(err, "gold: read fact hashes")
	}

	var facts []model.FactRecord
	for i := range records {
		c := &records[i]
		if _, ok := factRuns[c.RecordHash]; ok {
			continue
		}
		facts = append(facts, buildFact(c, lk))
		factRuns[c.RecordHash] = c.RunID
	}

	factsInserted, err := l.store.InsertFacts(ctx, facts)
	if err != nil {
		return res, eris.Wrap(err, "gold: load facts")
	}
	res.RowsOut = factsInserted

	summary := summarize(runID, records, factRuns)
	if err := l.store.ReplaceDailySummary(ctx, runID, summary); err != nil {
		return res, eris.Wrap(err, "gold: replace daily summary")
	}

	l.log.Info("gold load complete",
		zap.String("run_id", runID),
		zap.Int64("dates_inserted", datesInserted),
		zap.Int64("facts_inserted", factsInserted),
		zap.Int("summary_rows", len(summary)))
	return res, nil
}
