// Package inventory stages a user-supplied certificate inventory workbook
// and annotates the mirrored catalog against it in the background.
package inventory

import (
	"context"
	"io"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/erauner12/certview-mirror/internal/store"
)

// Store is the slice of the persistence layer the worker drives.
type Store interface {
	ReplaceInventoryMappings(ctx context.Context, rows []store.InventoryRow) (int, error)
	UnprocessedMappings(ctx context.Context) ([]store.InventoryRow, error)
	MarkMappingProcessed(ctx context.Context, id int64) error
	InventoryCounts(ctx context.Context) (store.InventoryCounts, error)
	FindCertificateBySerial(ctx context.Context, serial string) (*store.CertMatch, error)
	SetCertificateMapping(ctx context.Context, id, status string) (bool, error)
}

// Worker owns the annotation pass. At most one pass is active at a time;
// it runs independently of the sync worker and serializes with it only
// through the store.
type Worker struct {
	store Store

	mu   sync.Mutex
	done chan struct{}
}

// NewWorker builds a Worker around a store.
func NewWorker(st Store) *Worker {
	return &Worker{store: st}
}

// Import parses the workbook, replaces the staged rows, and launches the
// annotation pass in the background. Returns the number of rows staged.
// Rejected while a previous pass is still active.
func (w *Worker) Import(ctx context.Context, r io.Reader) (int, error) {
	rows, err := ParseWorkbook(r)
	if err != nil {
		return 0, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.active() {
		return 0, ErrImportAlreadyRunning
	}

	n, err := w.store.ReplaceInventoryMappings(ctx, rows)
	if err != nil {
		return 0, err
	}

	// The pass must outlive the HTTP request that uploaded the workbook.
	done := make(chan struct{})
	w.done = done
	go func() {
		defer close(done)
		w.apply(context.Background())
	}()

	return n, nil
}

// Running reports whether an annotation pass is active.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active()
}

// Counts surfaces staging progress for the status endpoint.
func (w *Worker) Counts(ctx context.Context) (store.InventoryCounts, error) {
	return w.store.InventoryCounts(ctx)
}

// active expects w.mu to be held.
func (w *Worker) active() bool {
	if w.done == nil {
		return false
	}
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

// apply walks the staged rows once. A row whose serial matches an unmapped
// catalog entry flips it to mapped with the staged status; absent or
// already-mapped targets are skipped. Row-level failures are logged and do
// not stop the pass; every visited row is marked processed.
func (w *Worker) apply(ctx context.Context) {
	log.Info().Msg("inventory annotation pass started")

	rows, err := w.store.UnprocessedMappings(ctx)
	if err != nil {
		log.Error().Err(err).Msg("inventory annotation pass failed to load staged rows")
		return
	}

	annotated := 0
	for _, row := range rows {
		if match, err := w.store.FindCertificateBySerial(ctx, row.SerialNumber); err != nil {
			log.Error().Err(err).Str("serial_number", row.SerialNumber).Msg("serial lookup failed")
		} else if match != nil && !match.MappedToMip {
			if changed, err := w.store.SetCertificateMapping(ctx, match.ID, row.CertificateStatus); err != nil {
				log.Error().Err(err).Str("certificate_id", match.ID).Msg("mapping update failed")
			} else if changed {
				annotated++
			}
		}
		if err := w.store.MarkMappingProcessed(ctx, row.ID); err != nil {
			log.Error().Err(err).Int64("mapping_id", row.ID).Msg("failed to mark mapping processed")
		}
	}

	log.Info().Int("rows", len(rows)).Int("annotated", annotated).Msg("inventory annotation pass completed")
}
