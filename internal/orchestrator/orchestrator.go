// Package orchestrator runs the beat loop: the single goroutine that moves
// intents from the inbox through the queue into history.
package orchestrator

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"telos/internal/agent"
	"telos/internal/retry"
	"telos/internal/state"
	"telos/internal/store"
	"telos/internal/types"
)

// Phase names the orchestrator's current position in a cycle. It only ever
// changes inside the beat goroutine; readers see a snapshot.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseIngesting
	PhaseDraining
	PhaseShuttingDown
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseIngesting:
		return "ingesting"
	case PhaseDraining:
		return "draining"
	case PhaseShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

const (
	// beatCommandBuffer bounds queued beat requests. Senders never block:
	// a full buffer means a beat is already pending and the request is
	// coalesced into it.
	beatCommandBuffer = 32

	// maxProcessingFailures is the per-intent budget inside one drain
	// pass. The third failure quarantines the record instead of
	// requeueing it.
	maxProcessingFailures = 3
)

// OutcomeNotifier receives the final answer for every successfully
// processed intent. Delivery is best-effort; errors are logged only.
type OutcomeNotifier func(ctx context.Context, intent types.Intent, finalAnswer string) error

// Orchestrator owns the beat loop. Construct with New, start with Run, and
// nudge with RequestBeat from any goroutine.
type Orchestrator struct {
	app    *state.AppContext
	log    *zap.Logger
	beats  chan struct{}
	done   chan struct{}
	phase  atomic.Int32
	notify OutcomeNotifier
}

// New builds an orchestrator over the shared application context.
func New(app *state.AppContext, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		app:   app,
		log:   log,
		beats: make(chan struct{}, beatCommandBuffer),
		done:  make(chan struct{}),
	}
}

// SetOutcomeNotifier installs a best-effort outcome callback. Call before
// Run; the loop reads it without a lock.
func (o *Orchestrator) SetOutcomeNotifier(notify OutcomeNotifier) {
	o.notify = notify
}

// Phase reports the loop's current phase.
func (o *Orchestrator) Phase() Phase {
	return Phase(o.phase.Load())
}

// RequestBeat asks the loop to run a cycle soon. It never blocks: when the
// request buffer is full or the loop has exited, the request is dropped and
// false is returned. A dropped request is harmless because a beat is
// already pending or the daemon is going down.
func (o *Orchestrator) RequestBeat() bool {
	select {
	case <-o.done:
		return false
	default:
	}
	select {
	case o.beats <- struct{}{}:
		return true
	default:
		return false
	}
}

// Run executes the beat loop until ctx is cancelled. It first rebuilds the
// in-memory queue from intent records already on disk, then runs one
// immediate cycle, then alternates between the ticker and explicit beat
// requests. Cancellation is only observed between cycles, so a cycle that
// has started always completes its drain.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer close(o.done)
	defer o.phase.Store(int32(PhaseShuttingDown))

	if err := o.rebuildQueue(ctx); err != nil {
		return err
	}

	interval := o.app.Config().Beat.Interval()
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	o.beat(ctx)

	for {
		select {
		case <-ctx.Done():
			o.log.Info("beat loop stopping", zap.Int("backlog", o.app.BacklogSize()))
			return nil
		case <-ticker.C:
			o.beat(ctx)
		case <-o.beats:
			o.beat(ctx)
		}
	}
}

// RunOnce rebuilds the queue from disk, runs a single cycle and returns.
// It drives the same pipeline as Run without a ticker, for one-shot
// scheduling from cron or the command line.
func (o *Orchestrator) RunOnce(ctx context.Context) error {
	defer close(o.done)
	defer o.phase.Store(int32(PhaseShuttingDown))

	if err := o.rebuildQueue(ctx); err != nil {
		return err
	}
	o.beat(ctx)
	return nil
}

// rebuildQueue restores queue state after a restart: every record already
// in intent/queue re-enters the in-memory queue in creation order.
func (o *Orchestrator) rebuildQueue(ctx context.Context) error {
	st := o.app.Store()
	var records []store.IntentRecord
	err := retry.Do(ctx, o.log, "scan_queue", retry.DefaultPolicy(), func() error {
		found, issues, err := st.ScanQueue()
		if err != nil {
			return err
		}
		records = found
		o.logScanIssues("queue", issues)
		return nil
	})
	if err != nil {
		return err
	}
	for _, record := range records {
		intent := record.Intent
		intent.StoragePath = record.Path
		o.app.PushIntent(intent)
	}
	if len(records) > 0 {
		o.log.Info("restored queued intents", zap.Int("count", len(records)))
	}
	return nil
}

// beat runs one full cycle: ingest the inbox, then drain the queue.
func (o *Orchestrator) beat(ctx context.Context) {
	o.phase.Store(int32(PhaseIngesting))
	o.ingest(ctx)
	o.phase.Store(int32(PhaseDraining))
	o.drain(ctx)
	o.phase.Store(int32(PhaseIdle))
}

// ingest scans intent/inbox and routes every parsable record: at or above
// the alignment threshold it is promoted into intent/queue and queued in
// memory, below it is deferred. Records that fail to parse are logged and
// left in place.
func (o *Orchestrator) ingest(ctx context.Context) {
	st := o.app.Store()
	threshold := o.app.Config().Beat.IntentThreshold

	var records []store.IntentRecord
	err := retry.Do(ctx, o.log, "scan_inbox", retry.DefaultPolicy(), func() error {
		found, issues, err := st.ScanInbox()
		if err != nil {
			return err
		}
		records = found
		o.logScanIssues("inbox", issues)
		return nil
	})
	if err != nil {
		o.log.Error("inbox scan failed", zap.Error(err))
		return
	}

	for _, record := range records {
		intent := record.Intent
		if intent.TelosAlignment >= threshold {
			queuedPath := ""
			err := retry.Do(ctx, o.log, "promote_intent", retry.DefaultPolicy(), func() error {
				path, err := st.Promote(record.Path)
				if err != nil {
					return err
				}
				queuedPath = path
				return nil
			})
			if err != nil {
				o.log.Error("promoting intent failed",
					zap.String("intent_id", intent.ID.String()),
					zap.Error(err))
				continue
			}
			intent.StoragePath = queuedPath
			o.app.PushIntent(intent)
			o.log.Info("intent queued",
				zap.String("intent_id", intent.ID.String()),
				zap.String("summary", intent.Summary),
				zap.Float64("alignment", intent.TelosAlignment))
		} else {
			err := retry.Do(ctx, o.log, "defer_intent", retry.DefaultPolicy(), func() error {
				_, err := st.Defer(record.Path)
				return err
			})
			if err != nil {
				o.log.Error("deferring intent failed",
					zap.String("intent_id", intent.ID.String()),
					zap.Error(err))
				continue
			}
			o.log.Info("intent deferred",
				zap.String("intent_id", intent.ID.String()),
				zap.Float64("alignment", intent.TelosAlignment),
				zap.Float64("threshold", threshold))
		}
	}
}

// drain empties the in-memory queue. Each intent goes through the agent and
// its persistence chain; a failure at any point requeues the intent at the
// front until its per-pass failure budget runs out, then quarantines it.
// The failure counter resets at the start of every drain pass.
func (o *Orchestrator) drain(ctx context.Context) {
	failures := make(map[uuid.UUID]int)

	for {
		intent, ok := o.app.PopNextIntent()
		if !ok {
			return
		}

		if err := o.process(ctx, intent); err != nil {
			failures[intent.ID]++
			count := failures[intent.ID]
			if count >= maxProcessingFailures {
				o.log.Error("intent quarantined after repeated failures",
					zap.String("intent_id", intent.ID.String()),
					zap.Int("failures", count),
					zap.Error(err))
				o.quarantine(ctx, intent)
				continue
			}
			o.log.Warn("intent processing failed, requeueing",
				zap.String("intent_id", intent.ID.String()),
				zap.Int("failures", count),
				zap.Error(err))
			o.app.PushFrontIntent(intent)
			continue
		}
		delete(failures, intent.ID)
		o.log.Info("intent processed",
			zap.String("intent_id", intent.ID.String()),
			zap.String("summary", intent.Summary))
	}
}

// process runs the full per-intent pipeline: the ReAct loop, then the
// persistence chain (llm logs, journal, sp index, archive). Every storage
// step carries its own retry budget. The memory snapshot runs last and is
// observational: its failure is logged but never fails the intent.
func (o *Orchestrator) process(ctx context.Context, intent types.Intent) error {
	st := o.app.Store()

	run, err := o.app.Agent().RunReAct(ctx, agent.Input{
		Intent:      intent,
		BacklogSize: o.app.BacklogSize(),
	})
	if err != nil {
		return err
	}

	if err := retry.Do(ctx, o.log, "append_llm_logs", retry.DefaultPolicy(), func() error {
		return st.AppendLLMLogs(run.Logs)
	}); err != nil {
		return err
	}

	var journalPath string
	if err := retry.Do(ctx, o.log, "append_journal", retry.DefaultPolicy(), func() error {
		path, err := st.AppendJournalEntry(intent, run.Outcome)
		if err != nil {
			return err
		}
		journalPath = path
		return nil
	}); err != nil {
		return err
	}

	if err := retry.Do(ctx, o.log, "update_sp_index", retry.DefaultPolicy(), func() error {
		return st.UpdateSPIndex(intent, run.Outcome)
	}); err != nil {
		return err
	}

	var historyPath string
	if err := retry.Do(ctx, o.log, "archive_intent", retry.DefaultPolicy(), func() error {
		path, err := st.Archive(intent)
		if err != nil {
			return err
		}
		historyPath = path
		return nil
	}); err != nil {
		return err
	}

	if err := retry.Do(ctx, o.log, "memory_snapshot", retry.DefaultPolicy(), func() error {
		_, err := st.IngestMemorySnapshot(intent, run.Outcome, journalPath, historyPath)
		return err
	}); err != nil {
		o.log.Error("memory snapshot failed",
			zap.String("intent_id", intent.ID.String()),
			zap.Error(err))
	}

	if o.notify != nil {
		if err := o.notify(ctx, intent, run.Outcome.FinalAnswer); err != nil {
			o.log.Warn("outcome notification failed",
				zap.String("intent_id", intent.ID.String()),
				zap.Error(err))
		}
	}

	return nil
}

// quarantine moves a repeatedly failing record into intent/queue/failed.
// Failure here is terminal for the record and only logged: the intent is
// already out of the queue and the file stays where it is for manual
// inspection.
func (o *Orchestrator) quarantine(ctx context.Context, intent types.Intent) {
	if intent.StoragePath == "" {
		return
	}
	err := retry.Do(ctx, o.log, "quarantine_intent", retry.DefaultPolicy(), func() error {
		_, err := o.app.Store().Quarantine(intent.StoragePath)
		return err
	})
	if err != nil {
		o.log.Error("quarantining intent failed",
			zap.String("intent_id", intent.ID.String()),
			zap.String("path", intent.StoragePath),
			zap.Error(err))
	}
}

func (o *Orchestrator) logScanIssues(dir string, issues []store.ScanIssue) {
	for _, issue := range issues {
		o.log.Warn("skipping unparsable intent record",
			zap.String("dir", dir),
			zap.String("path", issue.Path),
			zap.Error(issue.Err))
	}
}
