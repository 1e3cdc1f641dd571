// Package prover assembles withdrawal proofs and runs the full proving
// sequence for a single L2 transaction.
package prover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/megabridge/withdrawal-prover/game"
	"github.com/megabridge/withdrawal-prover/hashing"
	"github.com/megabridge/withdrawal-prover/metrics"
	"github.com/megabridge/withdrawal-prover/outputroot"
	"github.com/megabridge/withdrawal-prover/types"
	"github.com/megabridge/withdrawal-prover/withdrawal"
)

type RootClaimReader interface {
	GameRootClaim(ctx context.Context, proxy common.Address) (common.Hash, error)
}

// Recorder persists the outcome of a run.
type Recorder interface {
	RecordAttempt(ctx context.Context, txHash common.Hash, result *types.ProveResult, runErr error) error
}

type Pipeline struct {
	extractor *withdrawal.Extractor
	locator   *game.Locator
	claims    RootClaimReader
	verifier  *outputroot.Verifier
	prover    *Prover
	recorder  Recorder
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

type PipelineOpts struct {
	Extractor *withdrawal.Extractor
	Locator   *game.Locator
	Claims    RootClaimReader
	Verifier  *outputroot.Verifier
	Prover    *Prover
	// Recorder and Metrics are optional.
	Recorder Recorder
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

func NewPipeline(opts PipelineOpts) (*Pipeline, error) {
	if opts.Extractor == nil || opts.Locator == nil || opts.Claims == nil || opts.Verifier == nil || opts.Prover == nil {
		return nil, errors.New("pipeline is missing a stage")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Pipeline{
		extractor: opts.Extractor,
		locator:   opts.Locator,
		claims:    opts.Claims,
		verifier:  opts.Verifier,
		prover:    opts.Prover,
		recorder:  opts.Recorder,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
	}, nil
}

type RunOpts struct {
	// DryRun stops after simulation; nothing is signed or broadcast and the
	// attempt is not recorded.
	DryRun bool
}

// Run proves the withdrawal initiated by txHash. The returned result is
// filled as far as the run got, also on error. Errors are *types.StageError
// values naming the failed step.
func (p *Pipeline) Run(ctx context.Context, txHash common.Hash, opts RunOpts) (result *types.ProveResult, err error) {
	result = &types.ProveResult{Status: types.Failed}
	log := p.logger.With("txHash", txHash.Hex())

	defer func() {
		switch {
		case errors.Is(err, types.ErrNoCoveringGame):
			result.Status = types.NoCoveringGame
		case errors.Is(err, types.ErrAlreadyProven):
			result.Status = types.AlreadyProven
		case err != nil:
			result.Status = types.Failed
		}
		p.metrics.RecordOutcome(result.Status)
		p.metrics.RecordError(err)
		if p.recorder != nil && !opts.DryRun {
			if rerr := p.recorder.RecordAttempt(context.WithoutCancel(ctx), txHash, result, err); rerr != nil {
				log.Warn("Failed to record proving attempt", "error", rerr)
			}
		}
	}()

	// extract
	started := time.Now()
	w, err := p.extractor.Extract(ctx, txHash)
	p.metrics.ObserveStage(types.StageExtract, started)
	if err != nil {
		return result, &types.StageError{Stage: types.StageExtract, Err: err}
	}
	result.Withdrawal = w
	result.Status = types.Extracted
	log = log.With("withdrawalHash", w.WithdrawalHash.Hex())

	// locate
	if err := ctx.Err(); err != nil {
		return result, &types.StageError{Stage: types.StageLocate, Err: err}
	}
	started = time.Now()
	dg, err := p.locator.Locate(ctx, w.L2BlockNumber)
	p.metrics.ObserveStage(types.StageLocate, started)
	if err != nil {
		if errors.Is(err, types.ErrNoCoveringGame) {
			log.Info("No dispute game covers the withdrawal yet", "l2Block", w.L2BlockNumber)
		}
		return result, &types.StageError{Stage: types.StageLocate, Err: err}
	}

	// verify
	if err := ctx.Err(); err != nil {
		return result, &types.StageError{Stage: types.StageVerify, Err: err}
	}
	started = time.Now()
	claim, err := p.claims.GameRootClaim(ctx, dg.Proxy)
	if err != nil {
		return result, &types.StageError{Stage: types.StageVerify, Err: fmt.Errorf("failed to read root claim of game %d: %w", dg.Index, err)}
	}
	selection := &types.GameSelection{DisputeGame: *dg, RootClaim: claim}
	result.Game = selection

	root, err := p.verifier.Verify(ctx, selection, hashing.StorageSlotKey(w.WithdrawalHash))
	p.metrics.ObserveStage(types.StageVerify, started)
	if err != nil {
		return result, &types.StageError{Stage: types.StageVerify, Err: err}
	}
	result.RootVersion = &root.Version
	p.metrics.RecordRootVersion(root.Version)

	// assemble
	if err := ctx.Err(); err != nil {
		return result, &types.StageError{Stage: types.StageAssemble, Err: err}
	}
	started = time.Now()
	args, err := p.prover.Assemble(ctx, w, selection, root)
	if err == nil {
		result.Args = args
		err = p.prover.CheckNotProven(ctx, w.WithdrawalHash)
	}
	p.metrics.ObserveStage(types.StageAssemble, started)
	if err != nil {
		if errors.Is(err, types.ErrAlreadyProven) {
			log.Info("Withdrawal already proven, nothing to submit")
		}
		return result, &types.StageError{Stage: types.StageAssemble, Err: err}
	}

	// submit
	if err := ctx.Err(); err != nil {
		return result, &types.StageError{Stage: types.StageSubmit, Err: err}
	}
	started = time.Now()
	defer p.metrics.ObserveStage(types.StageSubmit, started)

	if !opts.DryRun {
		if err := p.prover.Preflight(ctx); err != nil {
			return result, &types.StageError{Stage: types.StageSubmit, Err: err}
		}
	}
	if err := p.prover.Simulate(ctx, args); err != nil {
		return result, &types.StageError{Stage: types.StageSubmit, Err: err}
	}
	result.Status = types.ReadyToProve
	if opts.DryRun {
		log.Info("Dry run complete", "game", dg.Index, "version", root.Version)
		return result, nil
	}

	if err := ctx.Err(); err != nil {
		return result, &types.StageError{Stage: types.StageSubmit, Err: err}
	}
	txh, err := p.prover.Submit(context.WithoutCancel(ctx), args)
	if err != nil {
		return result, &types.StageError{Stage: types.StageSubmit, Err: err}
	}
	result.Status = types.Submitted
	result.L1TxHash = &txh
	log.Info("Withdrawal proof submitted", "l1TxHash", txh.Hex(), "game", dg.Index, "version", root.Version)
	return result, nil
}
