// Package watcher retries withdrawals that were waiting for a dispute game or
// failed on the RPC transport.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/megabridge/withdrawal-prover/database/models"
	"github.com/megabridge/withdrawal-prover/prover"
	"github.com/megabridge/withdrawal-prover/types"
)

type Store interface {
	GetPendingProofRecords(ctx context.Context) ([]models.ProofRecord, error)
}

type Pipeline interface {
	Run(ctx context.Context, txHash common.Hash, opts prover.RunOpts) (*types.ProveResult, error)
}

type Watcher struct {
	store    Store
	pipeline Pipeline
	opts     WatcherOpts
	logger   *slog.Logger
}

type WatcherOpts struct {
	// Interval between checks of pending withdrawals.
	Interval time.Duration
	// DryRun re-assembles proofs without submitting them.
	DryRun bool
	Logger *slog.Logger
}

func NewWatcher(store Store, pipeline Pipeline, opts WatcherOpts) *Watcher {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Minute
	}
	return &Watcher{store: store, pipeline: pipeline, opts: opts, logger: opts.Logger}
}

// Run checks pending withdrawals every Interval until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("Starting withdrawal watcher", "interval", w.opts.Interval, "dryRun", w.opts.DryRun)

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	for {
		if _, err := w.CheckPending(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("Failed to check pending withdrawals", "error", err)
		}

		select {
		case <-ctx.Done():
			w.logger.Info("Shutting down withdrawal watcher")
			return nil
		case <-ticker.C:
		}
	}
}

// CheckPending re-runs the pipeline for every pending withdrawal and returns
// how many of them moved on. A failing withdrawal is logged and does not stop
// the others; one that failed on the transport stays pending.
func (w *Watcher) CheckPending(ctx context.Context) (int, error) {
	records, err := w.store.GetPendingProofRecords(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get pending withdrawals: %w", err)
	}
	if len(records) == 0 {
		w.logger.Debug("No pending withdrawals")
		return 0, nil
	}

	advanced := 0
	for _, record := range records {
		if err := ctx.Err(); err != nil {
			return advanced, err
		}

		txHash := common.HexToHash(record.TxHash)
		result, err := w.pipeline.Run(ctx, txHash, prover.RunOpts{DryRun: w.opts.DryRun})
		switch {
		case errors.Is(err, types.ErrNoCoveringGame):
			w.logger.Debug("Withdrawal still waiting for a dispute game", "txHash", record.TxHash, "l2Block", record.L2BlockNumber)
			continue
		case errors.Is(err, types.ErrAlreadyProven):
			w.logger.Info("Pending withdrawal was proven elsewhere", "txHash", record.TxHash)
		case types.IsTransient(err):
			w.logger.Warn("Pending withdrawal hit a transport failure, will retry", "txHash", record.TxHash, "error", err)
			continue
		case err != nil:
			w.logger.Warn("Failed to prove pending withdrawal", "txHash", record.TxHash, "error", err)
			continue
		default:
			w.logger.Info("Pending withdrawal advanced", "txHash", record.TxHash, "status", result.Status)
		}
		advanced++
	}

	w.logger.Info("Checked pending withdrawals", "pending", len(records), "advanced", advanced)
	return advanced, nil
}
