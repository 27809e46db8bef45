// Package sync drives the windowed paging sweep that mirrors the upstream
// certificate inventory. A single background worker walks the time axis in
// bounded windows, pages each window through the client, persists every
// page, and advances the durable checkpoint page by page.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/erauner12/certview-mirror/internal/certview"
	"github.com/erauner12/certview-mirror/internal/payload"
	"github.com/erauner12/certview-mirror/internal/store"
	"github.com/rs/zerolog/log"
)

// ErrAlreadyRunning rejects start, resume, and reset while a sweep worker
// is active.
var ErrAlreadyRunning = errors.New("sync is already running")

// errSweepCancelled routes cooperative cancellation out of the pagination
// loop without tripping the error path.
var errSweepCancelled = errors.New("sweep cancelled")

// stopJoinTimeout bounds how long Stop waits for the worker to drain before
// returning and leaving it to finish in the background.
const stopJoinTimeout = 5 * time.Second

// Lister fetches one page of upstream records. Retries and re-auth happen
// behind this interface; an error here is terminal for the sweep.
type Lister interface {
	FetchPage(ctx context.Context, q certview.PageQuery) ([]map[string]any, error)
}

// Store is the slice of the persistence layer the engine drives.
type Store interface {
	GetState(ctx context.Context) (store.SyncState, error)
	SaveState(ctx context.Context, patch store.StatePatch) error
	SaveCertificates(ctx context.Context, records []map[string]any) (int, error)
	ClearData(ctx context.Context) error
}

// Engine owns the sweep worker. At most one sweep is active at a time; all
// lifecycle calls are safe for concurrent use.
type Engine struct {
	client   Lister
	store    Store
	pageSize int
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine builds an Engine around a page client and a store.
func NewEngine(client Lister, st Store, pageSize int) *Engine {
	return &Engine{
		client:   client,
		store:    st,
		pageSize: pageSize,
		now:      time.Now,
	}
}

// StartFull wipes the mirrored data and launches a sweep from the default
// anchor. Rejected while a sweep is active.
func (e *Engine) StartFull(ctx context.Context, interval Interval) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.workerActive() {
		return ErrAlreadyRunning
	}
	if err := e.store.ClearData(ctx); err != nil {
		return err
	}

	anchor := store.DefaultValidFromDate
	zero := int64(0)
	running := store.StatusRunning
	err := e.store.SaveState(ctx, store.StatePatch{
		ValidFromDate: &anchor,
		TotalRecords:  &zero,
		Status:        &running,
	})
	if err != nil {
		return err
	}

	e.launch(interval)
	return nil
}

// Resume launches a sweep from the persisted checkpoint. Rejected while a
// sweep is active.
func (e *Engine) Resume(ctx context.Context, interval Interval) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.workerActive() {
		return ErrAlreadyRunning
	}
	running := store.StatusRunning
	if err := e.store.SaveState(ctx, store.StatePatch{Status: &running}); err != nil {
		return err
	}

	e.launch(interval)
	return nil
}

// Stop signals cooperative cancellation and waits for the worker to drain.
// The wait is bounded: past the join timeout the worker is left to finish
// its in-flight page on its own. Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	select {
	case <-done:
	case <-time.After(stopJoinTimeout):
		log.Warn().Msg("sync worker still draining after stop timeout")
	}
}

// Reset clears all mirrored data and the checkpoint. Rejected while a sweep
// is active.
func (e *Engine) Reset(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.workerActive() {
		return ErrAlreadyRunning
	}
	return e.store.ClearData(ctx)
}

// Running reports whether a sweep worker is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.workerActive()
}

// workerActive expects e.mu to be held.
func (e *Engine) workerActive() bool {
	if e.done == nil {
		return false
	}
	select {
	case <-e.done:
		return false
	default:
		return true
	}
}

// launch spawns the sweep worker. The worker context is detached from the
// caller: the sweep must outlive the HTTP request that started it. Expects
// e.mu to be held.
func (e *Engine) launch(interval Interval) {
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.cancel = cancel
	e.done = done

	go func() {
		defer close(done)
		defer cancel()
		sweepRunning.Set(1)
		defer sweepRunning.Set(0)
		e.sweep(runCtx, interval)
	}()
}

func (e *Engine) sweep(ctx context.Context, interval Interval) {
	state, err := e.store.GetState(ctx)
	if err != nil {
		e.fail(ctx, err)
		return
	}
	checkpoint, err := parseTimestamp(state.LastSuccessfulValidFromDate)
	if err != nil {
		e.fail(ctx, fmt.Errorf("parse checkpoint %q: %w", state.LastSuccessfulValidFromDate, err))
		return
	}

	// The cursor starts one day past the checkpoint: the boundary day is
	// never re-ingested, at the cost of skipping records that share the
	// checkpoint's calendar day.
	cursor := checkpoint.UTC().AddDate(0, 0, 1)
	now := e.now().UTC()
	total := state.TotalRecordsCollected

	log.Info().
		Str("interval", string(interval)).
		Str("checkpoint", state.LastSuccessfulValidFromDate).
		Time("sweep_until", now).
		Msg("sweep started")

	for !cursor.After(now) {
		if ctx.Err() != nil {
			e.halt(ctx)
			return
		}

		end := windowEnd(cursor, interval)
		if end.After(now) {
			end = now
		}
		windowStartSeconds.Set(float64(cursor.Unix()))

		if err := e.syncWindow(ctx, cursor, end, &total); err != nil {
			if errors.Is(err, errSweepCancelled) {
				e.halt(ctx)
				return
			}
			e.fail(ctx, err)
			return
		}

		cursor = nextWindowStart(cursor, interval)
	}

	if ctx.Err() != nil {
		e.halt(ctx)
		return
	}
	completed := store.StatusCompleted
	if err := e.store.SaveState(ctx, store.StatePatch{Status: &completed}); err != nil {
		e.fail(ctx, err)
		return
	}
	log.Info().Int64("total_records", total).Msg("sweep completed")
}

// syncWindow pages one window until an empty or short page ends it. The
// running total is shared across windows so the persisted count keeps
// climbing through the whole sweep.
func (e *Engine) syncWindow(ctx context.Context, start, end time.Time, total *int64) error {
	startStr := formatTimestamp(start)
	endStr := formatTimestamp(end)
	logger := log.With().Str("window_start", startStr).Str("window_end", endStr).Logger()
	logger.Info().Msg("syncing window")

	for page := 0; ; page++ {
		if ctx.Err() != nil {
			return errSweepCancelled
		}

		records, err := e.client.FetchPage(ctx, certview.PageQuery{
			StartDate:  startStr,
			EndDate:    endStr,
			PageNumber: page,
			PageSize:   e.pageSize,
		})
		if err != nil {
			if ctx.Err() != nil {
				return errSweepCancelled
			}
			return err
		}
		if len(records) == 0 {
			logger.Info().Int("pages", page).Msg("window drained")
			return nil
		}

		batch := normalizeBatch(records)
		saved, err := e.store.SaveCertificates(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				return errSweepCancelled
			}
			return err
		}

		// Checkpoint after the catalog write, page by page, so a stop or
		// crash resumes from the last fully persisted page.
		newTotal := *total + int64(len(records))
		*total = newTotal
		patch := store.StatePatch{TotalRecords: &newTotal}
		if maxDate, ok := payload.MaxString(batch, "validFromDate"); ok {
			patch.ValidFromDate = &maxDate
		}
		if err := e.store.SaveState(ctx, patch); err != nil {
			if ctx.Err() != nil {
				return errSweepCancelled
			}
			return err
		}

		pagesTotal.Inc()
		recordsTotal.Add(float64(len(records)))
		logger.Info().
			Int("page", page).
			Int("returned", len(records)).
			Int("persisted", saved).
			Int64("total", newTotal).
			Msg("page persisted")

		if len(records) < e.pageSize {
			logger.Info().Int("pages", page+1).Msg("window drained")
			return nil
		}
	}
}

// fail persists the ERROR status. The sweep context may already be
// cancelled; the status write must survive it.
func (e *Engine) fail(ctx context.Context, err error) {
	errorsTotal.Inc()
	log.Error().Err(err).Msg("sweep failed")

	status := store.StatusError
	if serr := e.store.SaveState(context.WithoutCancel(ctx), store.StatePatch{Status: &status}); serr != nil {
		log.Error().Err(serr).Msg("failed to persist ERROR status")
	}
}

// halt persists the STOPPED status after cooperative cancellation.
func (e *Engine) halt(ctx context.Context) {
	log.Info().Msg("sweep stopped")

	status := store.StatusStopped
	if serr := e.store.SaveState(context.WithoutCancel(ctx), store.StatePatch{Status: &status}); serr != nil {
		log.Error().Err(serr).Msg("failed to persist STOPPED status")
	}
}

// normalizeBatch ensures every record carries a certhash, falling back to
// the upstream sha1 field. Records are otherwise passed through verbatim;
// the store projects what it indexes.
func normalizeBatch(records []map[string]any) []map[string]any {
	for _, rec := range records {
		if _, ok := rec["certhash"]; !ok {
			if sha, ok := rec["sha1"]; ok {
				rec["certhash"] = sha
			}
		}
	}
	return records
}
