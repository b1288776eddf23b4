package imports

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"yaad/internal/config"
	"yaad/internal/library"
	"yaad/internal/logging"
	"yaad/internal/media"
	"yaad/internal/services"
)

// Resolver turns a raw entry into a reconciled candidate.
type Resolver interface {
	Resolve(ctx context.Context, entry media.RawEntry) (*media.Candidate, error)
}

// Upserter commits one reconciled entry to the library.
type Upserter interface {
	Upsert(ctx context.Context, userID int64, candidate *media.Candidate, entry media.RawEntry, opts library.UpsertOptions) (library.UpsertOutcome, error)
}

// Progress describes one processed item in a running batch.
type Progress struct {
	RunID string
	Index int
	Total int
	Name  string
	// Status is the upsert outcome, or empty when the item failed.
	Status library.UpsertStatus
	Err    error
}

// ProgressFunc receives a Progress after each item. It runs on the batch
// goroutine, so a slow callback slows the batch.
type ProgressFunc func(Progress)

// Runner drives entries through reconciliation and upsert one at a time, in
// source order, pacing between items and stopping between items on
// cancellation. Work already committed stays committed.
type Runner struct {
	resolver Resolver
	upserter Upserter
	pacing   time.Duration
	progress ProgressFunc
	logger   *slog.Logger

	// createUnmatched controls whether entries reconciliation could not
	// match still produce a bare library row from the entry's own fields.
	createUnmatched bool
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithProgress registers a per-item progress callback.
func WithProgress(fn ProgressFunc) RunnerOption {
	return func(r *Runner) { r.progress = fn }
}

// WithoutUnmatchedCreation makes unmatched entries count as failures instead
// of producing bare rows.
func WithoutUnmatchedCreation() RunnerOption {
	return func(r *Runner) { r.createUnmatched = false }
}

// NewRunner builds a batch runner using the configured inter-item pacing.
func NewRunner(resolver Resolver, upserter Upserter, importCfg config.Import, logger *slog.Logger, opts ...RunnerOption) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	runner := &Runner{
		resolver:        resolver,
		upserter:        upserter,
		pacing:          time.Duration(importCfg.PacingMS) * time.Millisecond,
		logger:          logger,
		createUnmatched: true,
	}
	for _, opt := range opts {
		opt(runner)
	}
	return runner
}

// Run processes the entries sequentially and returns the aggregate result.
// Cancellation is honored between items: the result reflects everything
// committed before the stop, and the context error is returned alongside it.
func (r *Runner) Run(ctx context.Context, userID int64, entries []media.RawEntry, opts library.UpsertOptions) (media.ImportResult, error) {
	runID := uuid.NewString()
	logger := r.logger.With("run_id", runID, "user_id", userID)
	logger.Info("starting batch", "entries", len(entries))

	var result media.ImportResult
	for index, entry := range entries {
		if err := ctx.Err(); err != nil {
			logger.Info("batch cancelled", "processed", index)
			return result, err
		}
		if index > 0 && r.pacing > 0 {
			if err := sleepCtx(ctx, r.pacing); err != nil {
				return result, err
			}
		}

		status, err := r.processOne(ctx, userID, entry, opts, &result)
		r.report(Progress{
			RunID:  runID,
			Index:  index,
			Total:  len(entries),
			Name:   entry.Name,
			Status: status,
			Err:    err,
		})
		if services.Fatal(err) {
			logger.Error("batch aborted", "error", err)
			return result, err
		}
	}

	logger.Info("batch finished",
		"imported", result.Imported,
		"updated", result.Updated,
		"skipped", result.Skipped,
		"failed", result.Failed)
	return result, nil
}

func (r *Runner) processOne(ctx context.Context, userID int64, entry media.RawEntry, opts library.UpsertOptions, result *media.ImportResult) (library.UpsertStatus, error) {
	candidate, err := r.resolver.Resolve(ctx, entry)
	if err != nil {
		if services.Fatal(err) {
			result.RecordError(entry.Name, err)
			return "", err
		}
		if !r.recoverable(err) {
			result.RecordError(entry.Name, err)
			return "", err
		}
		r.logger.Debug("entry unmatched, keeping source data",
			"title", entry.Name, "reason", services.FailureReason(err))
		candidate = nil
	}

	outcome, err := r.upserter.Upsert(ctx, userID, candidate, entry, opts)
	if err != nil {
		result.RecordError(entry.Name, err)
		return "", err
	}
	switch outcome.Status {
	case library.StatusCreated:
		result.Imported++
	case library.StatusUpdated:
		result.Updated++
	case library.StatusSkipped:
		result.Skipped++
	}
	return outcome.Status, nil
}

// recoverable reports whether a reconciliation failure still allows the
// entry's own fields to be saved.
func (r *Runner) recoverable(err error) bool {
	if !r.createUnmatched {
		return false
	}
	return errors.Is(err, services.ErrNotFound) || errors.Is(err, services.ErrDetailFetch)
}

func (r *Runner) report(progress Progress) {
	if r.progress != nil {
		r.progress(progress)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
