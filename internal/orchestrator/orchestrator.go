// Package orchestrator coordinates one end-to-end panel build.
//
// Flow: resolve -> normalize -> sample -> persist -> verify. Each phase
// records attrition for the rows it drops, publishes progress events, and
// the whole run is bracketed by a PipelineRun row so reruns are auditable.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"firm-panel-lab/internal/domain"
	"firm-panel-lab/internal/idhash"
	"firm-panel-lab/internal/ingestion"
	"firm-panel-lab/internal/normalization"
	"firm-panel-lab/internal/observability"
	"firm-panel-lab/internal/progress"
	"firm-panel-lab/internal/sample"
	"firm-panel-lab/internal/storage"
	"firm-panel-lab/internal/verification"
)

// Phase names reported to metrics and progress subscribers.
const (
	phaseResolve   = "resolve"
	phaseNormalize = "normalize"
	phaseSample    = "sample"
	phasePersist   = "persist"
	phaseVerify    = "verify"
)

// Attrition reason for firms whose period sequence could not be ordered.
const reasonNonIncreasingDates = "non_increasing_dates"

// EventPublisher receives stage events as the build progresses.
// *progress.Hub satisfies it; a nil publisher disables publishing.
type EventPublisher interface {
	Publish(event progress.StageEvent)
}

// Orchestrator drives a full build from stored raw records to a
// verified panel.
type Orchestrator struct {
	rawStore       storage.RawRecordStore
	periodStore    storage.FirmPeriodStore
	panelStore     storage.PanelRowStore
	shockStore     storage.ShockEventStore
	patentStore    storage.PatentGrantStore
	runStore       storage.PipelineRunStore
	attritionStore storage.AttritionStore
	statStore      storage.SampleStatStore

	resolver   *ingestion.Resolver
	winsorLow  float64
	winsorHigh float64
	publisher  EventPublisher
	skipVerify bool
	verbose    bool
	nowMs      func() int64
	nonce      string
}

// Options configures an Orchestrator.
type Options struct {
	RawStore       storage.RawRecordStore
	PeriodStore    storage.FirmPeriodStore
	PanelStore     storage.PanelRowStore
	ShockStore     storage.ShockEventStore
	PatentStore    storage.PatentGrantStore
	RunStore       storage.PipelineRunStore
	AttritionStore storage.AttritionStore
	StatStore      storage.SampleStatStore

	// Resolver decides duplicate report-date groups. Defaults to a
	// resolver with no manual overrides.
	Resolver *ingestion.Resolver

	// WinsorLow and WinsorHigh are the clamp percentiles. Both zero
	// means the 1%/99% defaults.
	WinsorLow  float64
	WinsorHigh float64

	// Publisher receives stage events; nil disables publishing.
	Publisher EventPublisher

	// SkipVerify skips the invariant battery after persisting.
	SkipVerify bool

	// Verbose enables per-phase log output.
	Verbose bool

	// NowMs overrides the clock, for tests.
	NowMs func() int64

	// Nonce distinguishes runs started at the same millisecond.
	Nonce string
}

// New builds an Orchestrator from options, applying defaults.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		rawStore:       opts.RawStore,
		periodStore:    opts.PeriodStore,
		panelStore:     opts.PanelStore,
		shockStore:     opts.ShockStore,
		patentStore:    opts.PatentStore,
		runStore:       opts.RunStore,
		attritionStore: opts.AttritionStore,
		statStore:      opts.StatStore,
		resolver:       opts.Resolver,
		winsorLow:      opts.WinsorLow,
		winsorHigh:     opts.WinsorHigh,
		publisher:      opts.Publisher,
		skipVerify:     opts.SkipVerify,
		verbose:        opts.Verbose,
		nowMs:          opts.NowMs,
		nonce:          opts.Nonce,
	}
	if o.resolver == nil {
		o.resolver = ingestion.NewResolver(nil)
	}
	if o.winsorLow == 0 && o.winsorHigh == 0 {
		o.winsorLow = 0.01
		o.winsorHigh = 0.99
	}
	if o.nowMs == nil {
		o.nowMs = func() int64 { return time.Now().UnixMilli() }
	}
	if o.nonce == "" {
		o.nonce = "run"
	}
	return o
}

// RunResult summarizes one completed build.
type RunResult struct {
	RunID        string
	RawRecords   int64
	FirmPeriods  int64
	PanelRows    int64
	SampleRows   int64
	RejectedKeys int64
	Violations   int
	Errors       []string
}

// Run executes the build. A phase error marks the run failed and is
// returned; invariant violations are reported in the result, not as an
// error.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	startMs := o.nowMs()
	run := &domain.PipelineRun{
		RunID:       idhash.ComputePipelineRunID(startMs, o.nonce),
		StartedAtMs: startMs,
		Status:      domain.RunStatusRunning,
	}
	if err := o.runStore.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create pipeline run: %w", err)
	}
	result := &RunResult{RunID: run.RunID}
	o.log("Starting panel build %s", run.RunID)

	phaseLog := log.New(io.Discard, "", 0)
	if o.verbose {
		phaseLog = log.Default()
	}

	// Phase 1: resolve duplicate report dates into unique firm-periods.
	phaseStart := time.Now()
	o.publish(run.RunID, phaseResolve, progress.StatusStarted, 0, 0, "")
	rawCount, err := o.rawStore.Count(ctx)
	if err != nil {
		return nil, o.fail(ctx, run, phaseResolve, phaseStart, err)
	}
	manager := ingestion.NewManager(ingestion.ManagerOptions{
		RawStore:    o.rawStore,
		PeriodStore: o.periodStore,
		Resolver:    o.resolver,
		Logger:      phaseLog,
	})
	resStats, err := manager.ResolveDuplicates(ctx)
	if err != nil {
		return nil, o.fail(ctx, run, phaseResolve, phaseStart, err)
	}
	result.RawRecords = rawCount
	result.FirmPeriods = int64(resStats.Keys - resStats.Rejected())
	result.RejectedKeys = int64(resStats.Rejected())
	observability.RecordPipelineRun(phaseResolve, "success", time.Since(phaseStart).Seconds())
	o.publish(run.RunID, phaseResolve, progress.StatusFinished, int(rawCount), int(result.FirmPeriods), "")
	o.log("  Resolved %d keys: %d single, %d coalesced, %d calendar, %d overridden, %d rejected",
		resStats.Keys, resStats.Single, resStats.Coalesced, resStats.CalendarTies,
		resStats.Overridden, result.RejectedKeys)

	if result.FirmPeriods == 0 {
		o.log("  No firm-periods resolved, nothing to build")
		return result, o.finish(ctx, run, result)
	}

	// Phase 2: align periods to the calendar and derive panel variables.
	phaseStart = time.Now()
	o.publish(run.RunID, phaseNormalize, progress.StatusStarted, int(result.FirmPeriods), 0, "")
	runner := normalization.NewRunner(o.periodStore, o.shockStore, o.patentStore, phaseLog)
	rows, normStats, err := runner.NormalizeAll(ctx)
	if err != nil {
		return nil, o.fail(ctx, run, phaseNormalize, phaseStart, err)
	}
	result.PanelRows = int64(len(rows))
	observability.RecordPipelineRun(phaseNormalize, "success", time.Since(phaseStart).Seconds())
	o.publish(run.RunID, phaseNormalize, progress.StatusFinished, int(result.FirmPeriods), len(rows), "")
	o.log("  Normalized %d firms into %d panel rows (%d firms rejected)",
		normStats.Firms, normStats.Rows, normStats.RejectedFirms)

	// Phase 3: censor the estimation sample and winsorize its tails.
	phaseStart = time.Now()
	o.publish(run.RunID, phaseSample, progress.StatusStarted, len(rows), 0, "")
	censored := sample.Censor(rows)
	winsorStats := sample.Winsorize(rows, run.RunID, o.winsorLow, o.winsorHigh, o.nowMs())
	inSample := 0
	for _, row := range rows {
		if row.InSample {
			inSample++
		}
	}
	result.SampleRows = int64(inSample)
	observability.RecordPipelineRun(phaseSample, "success", time.Since(phaseStart).Seconds())
	o.publish(run.RunID, phaseSample, progress.StatusFinished, len(rows), inSample, "")
	o.log("  Sampled %d of %d rows (%d censor reasons, %d winsor stats)",
		inSample, len(rows), len(censored), len(winsorStats))

	// Phase 4: persist the panel, attrition ledger and winsor bounds.
	phaseStart = time.Now()
	o.publish(run.RunID, phasePersist, progress.StatusStarted, len(rows), 0, "")
	if err := o.panelStore.InsertBulk(ctx, rows); err != nil {
		return nil, o.fail(ctx, run, phasePersist, phaseStart, err)
	}
	attrition := o.buildAttrition(run.RunID, resStats, normStats, censored)
	if err := o.attritionStore.InsertBulk(ctx, attrition); err != nil {
		return nil, o.fail(ctx, run, phasePersist, phaseStart, err)
	}
	if err := o.statStore.InsertBulk(ctx, winsorStats); err != nil {
		return nil, o.fail(ctx, run, phasePersist, phaseStart, err)
	}
	observability.RecordPipelineRun(phasePersist, "success", time.Since(phaseStart).Seconds())
	o.publish(run.RunID, phasePersist, progress.StatusFinished, len(rows), len(rows), "")
	o.log("  Persisted %d rows, %d attrition entries, %d stats",
		len(rows), len(attrition), len(winsorStats))

	// Phase 5: verify panel invariants against the stored rows.
	if !o.skipVerify {
		phaseStart = time.Now()
		o.publish(run.RunID, phaseVerify, progress.StatusStarted, len(rows), 0, "")
		verifier := verification.NewPanelVerifier(verification.PanelVerifierOptions{
			PanelStore:  o.panelStore,
			PeriodStore: o.periodStore,
			ShockStore:  o.shockStore,
			PatentStore: o.patentStore,
			WinsorLow:   o.winsorLow,
			WinsorHigh:  o.winsorHigh,
		})
		report, err := verifier.VerifyPanel(ctx)
		if err != nil {
			return nil, o.fail(ctx, run, phaseVerify, phaseStart, err)
		}
		result.Violations = len(report.Violations)
		for _, v := range report.Violations {
			observability.RecordInvariantViolation(v.Property)
			result.Errors = append(result.Errors,
				fmt.Sprintf("%s: gvkey=%s period=%s %s", v.Property, v.GVKey, v.PeriodID, v.Detail))
		}
		detail := ""
		if result.Violations > 0 {
			detail = fmt.Sprintf("%d violations", result.Violations)
		}
		observability.RecordPipelineRun(phaseVerify, "success", time.Since(phaseStart).Seconds())
		o.publish(run.RunID, phaseVerify, progress.StatusFinished, report.TotalRows, report.TotalRows, detail)
		o.log("  Verified %d rows: %d violations", report.TotalRows, result.Violations)
	}

	return result, o.finish(ctx, run, result)
}

// buildAttrition converts per-phase drop counts into ledger rows.
func (o *Orchestrator) buildAttrition(runID string, resStats *ingestion.ResolutionStats, normStats *normalization.Stats, censored map[string]int64) []*domain.StageAttrition {
	createdAt := o.nowMs()
	rows := make([]*domain.StageAttrition, 0, len(censored)+3)
	if resStats.Irreconcilable > 0 {
		rows = append(rows, &domain.StageAttrition{
			PipelineRunID: runID,
			Stage:         domain.StageResolve,
			Reason:        ingestion.ReasonIrreconcilable,
			Count:         int64(resStats.Irreconcilable),
			CreatedAt:     createdAt,
		})
	}
	if resStats.TooMany > 0 {
		rows = append(rows, &domain.StageAttrition{
			PipelineRunID: runID,
			Stage:         domain.StageResolve,
			Reason:        ingestion.ReasonTooManyRecords,
			Count:         int64(resStats.TooMany),
			CreatedAt:     createdAt,
		})
	}
	if normStats.RejectedFirms > 0 {
		rows = append(rows, &domain.StageAttrition{
			PipelineRunID: runID,
			Stage:         domain.StageNormalize,
			Reason:        reasonNonIncreasingDates,
			Count:         int64(normStats.RejectedFirms),
			CreatedAt:     createdAt,
		})
	}
	for reason, count := range censored {
		rows = append(rows, &domain.StageAttrition{
			PipelineRunID: runID,
			Stage:         domain.StageCensor,
			Reason:        reason,
			Count:         count,
			CreatedAt:     createdAt,
		})
	}
	return rows
}

// finish marks the run completed and copies the final counters onto it.
func (o *Orchestrator) finish(ctx context.Context, run *domain.PipelineRun, result *RunResult) error {
	finished := o.nowMs()
	run.FinishedAtMs = &finished
	run.Status = domain.RunStatusCompleted
	run.RawRecords = result.RawRecords
	run.FirmPeriods = result.FirmPeriods
	run.PanelRows = result.PanelRows
	run.SampleRows = result.SampleRows
	run.Rejected = result.RejectedKeys
	if result.Violations > 0 {
		run.Note = fmt.Sprintf("%d invariant violations", result.Violations)
	}
	if err := o.runStore.Finish(ctx, run); err != nil {
		return fmt.Errorf("finish pipeline run: %w", err)
	}
	o.log("Completed panel build %s: %d raw, %d periods, %d rows, %d in sample",
		run.RunID, run.RawRecords, run.FirmPeriods, run.PanelRows, run.SampleRows)
	return nil
}

// fail marks the run failed, emits the failure event and wraps the error.
func (o *Orchestrator) fail(ctx context.Context, run *domain.PipelineRun, phase string, started time.Time, err error) error {
	observability.RecordPipelineRun(phase, "error", time.Since(started).Seconds())
	o.publish(run.RunID, phase, progress.StatusFailed, 0, 0, err.Error())

	finished := o.nowMs()
	run.FinishedAtMs = &finished
	run.Status = domain.RunStatusFailed
	run.Note = fmt.Sprintf("%s: %v", phase, err)
	if ferr := o.runStore.Finish(ctx, run); ferr != nil {
		o.log("  Failed to record run failure: %v", ferr)
	}
	return fmt.Errorf("phase %s failed: %w", phase, err)
}

func (o *Orchestrator) publish(runID, stage, status string, rowsIn, rowsOut int, detail string) {
	if o.publisher == nil {
		return
	}
	o.publisher.Publish(progress.StageEvent{
		PipelineRunID: runID,
		Stage:         stage,
		Status:        status,
		RowsIn:        rowsIn,
		RowsOut:       rowsOut,
		Detail:        detail,
		AtMs:          o.nowMs(),
	})
}

func (o *Orchestrator) log(format string, args ...interface{}) {
	if o.verbose {
		log.Printf("[orchestrator] "+format, args...)
	}
}
