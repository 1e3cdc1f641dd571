package prover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/megabridge/withdrawal-prover/hashing"
	"github.com/megabridge/withdrawal-prover/protocol"
	"github.com/megabridge/withdrawal-prover/types"
)

type Portal interface {
	From() common.Address
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	NumProofSubmitters(ctx context.Context, withdrawalHash common.Hash) (uint64, error)
	SimulateProve(ctx context.Context, args types.ProveArgs) error
	SubmitProve(ctx context.Context, args types.ProveArgs) (common.Hash, error)
}

type ProofReader interface {
	GetStorageProof(ctx context.Context, address common.Address, keys []common.Hash, block uint64) (*types.StorageInclusionProof, error)
	StorageAt(ctx context.Context, address common.Address, slot common.Hash, block uint64) (common.Hash, error)
}

// ProofVerifier checks a storage proof against a state root.
type ProofVerifier func(stateRoot common.Hash, proof *types.StorageInclusionProof) error

type Prover struct {
	portal Portal
	proofs ProofReader
	opts   ProverOpts
	logger *slog.Logger
}

type ProverOpts struct {
	// L1ChainID, when set, must match the portal endpoint's chain id.
	L1ChainID uint64
	// MinBalance is the signer balance below which a warning is logged.
	MinBalance *big.Int
	// VerifyProof, when set, checks fetched storage proofs locally.
	VerifyProof ProofVerifier
	Logger      *slog.Logger
}

func NewProver(portal Portal, proofs ProofReader, opts ProverOpts) *Prover {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Prover{portal: portal, proofs: proofs, opts: opts, logger: opts.Logger}
}

// Assemble builds the proveWithdrawalTransaction arguments for w against a
// verified game.
func (p *Prover) Assemble(ctx context.Context, w *types.ExtractedWithdrawal, game *types.GameSelection, root *types.VerifiedOutputRoot) (*types.ProveArgs, error) {
	if game.L2BlockNumber < w.L2BlockNumber {
		return nil, fmt.Errorf("%w: game %d checkpoint %d is before withdrawal block %d", types.ErrIntegrity, game.Index, game.L2BlockNumber, w.L2BlockNumber)
	}
	slot := hashing.StorageSlotKey(w.WithdrawalHash)

	var proof [][]byte
	switch root.Version {
	case types.RootVersionV0:
		nodes, err := p.inclusionProof(ctx, slot, game, root)
		if err != nil {
			return nil, err
		}
		proof = nodes
	case types.RootVersionV1:
		if err := p.checkSentMessage(ctx, slot, game.L2BlockNumber); err != nil {
			return nil, err
		}
		proof = [][]byte{}
	default:
		return nil, fmt.Errorf("unsupported output root version %s", root.Version)
	}

	return &types.ProveArgs{
		Withdrawal:       w.Withdrawal,
		DisputeGameIndex: new(big.Int).SetUint64(game.Index),
		OutputRootProof:  root.Proof,
		WithdrawalProof:  proof,
	}, nil
}

// inclusionProof returns the storage proof nodes for slot, reusing the proof
// fetched during verification when it covers slot.
func (p *Prover) inclusionProof(ctx context.Context, slot common.Hash, game *types.GameSelection, root *types.VerifiedOutputRoot) ([][]byte, error) {
	sp := root.StorageProof
	if sp == nil || len(sp.StorageProof) != 1 || sp.StorageProof[0].Key != slot {
		fetched, err := p.proofs.GetStorageProof(ctx, protocol.L2ToL1MessagePasserAddress, []common.Hash{slot}, game.L2BlockNumber)
		if err != nil {
			if errors.Is(err, types.ErrIntegrity) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", types.ErrProofUnavailable, err)
		}
		sp = fetched
	}

	if len(sp.StorageProof) != 1 {
		return nil, fmt.Errorf("%w: expected 1 storage proof, got %d", types.ErrIntegrity, len(sp.StorageProof))
	}
	if sp.StorageHash != root.Proof.MessagePasserStorageRoot {
		return nil, fmt.Errorf("%w: proof storage root %s differs from verified %s", types.ErrIntegrity, sp.StorageHash.Hex(), root.Proof.MessagePasserStorageRoot.Hex())
	}
	entry := sp.StorageProof[0]
	if entry.Value == nil || entry.Value.Sign() == 0 {
		return nil, fmt.Errorf("%w: withdrawal slot %s is empty at block %d", types.ErrIntegrity, slot.Hex(), game.L2BlockNumber)
	}
	if p.opts.VerifyProof != nil {
		if err := p.opts.VerifyProof(root.Proof.StateRoot, sp); err != nil {
			return nil, err
		}
	}
	p.logger.Debug("Assembled inclusion proof", "slot", slot.Hex(), "nodes", len(entry.Proof))
	return entry.Proof, nil
}

// checkSentMessage reads sentMessages[hash] at block. The check is skipped
// when no endpoint serves eth_getStorageAt or the state at block is pruned.
func (p *Prover) checkSentMessage(ctx context.Context, slot common.Hash, block uint64) error {
	word, err := p.proofs.StorageAt(ctx, protocol.L2ToL1MessagePasserAddress, slot, block)
	if errors.Is(err, types.ErrUnsupportedMethod) || errors.Is(err, types.ErrStateUnavailable) {
		p.logger.Warn("Cannot read message passer storage, skipping sent message check", "block", block, "error", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read sent message slot: %w", err)
	}
	if word == (common.Hash{}) {
		return fmt.Errorf("%w: withdrawal slot %s is empty at block %d", types.ErrIntegrity, slot.Hex(), block)
	}
	return nil
}

// CheckNotProven fails with types.ErrAlreadyProven when any submitter has
// proven withdrawalHash.
func (p *Prover) CheckNotProven(ctx context.Context, withdrawalHash common.Hash) error {
	n, err := p.portal.NumProofSubmitters(ctx, withdrawalHash)
	if err != nil {
		return fmt.Errorf("failed to read proof submitters: %w", err)
	}
	p.logger.Info("Checked proof submitters", "withdrawalHash", withdrawalHash.Hex(), "count", n)
	if n > 0 {
		return fmt.Errorf("%w: %s has %d proof submitters", types.ErrAlreadyProven, withdrawalHash.Hex(), n)
	}
	return nil
}

// Preflight checks the L1 chain and the signer's balance.
func (p *Prover) Preflight(ctx context.Context) error {
	chainId, err := p.portal.ChainID(ctx)
	if err != nil {
		return err
	}
	if p.opts.L1ChainID != 0 && chainId.Uint64() != p.opts.L1ChainID {
		return fmt.Errorf("%w: L1 endpoint reports %s, expected %d", types.ErrChainMismatch, chainId, p.opts.L1ChainID)
	}

	from := p.portal.From()
	balance, err := p.portal.BalanceAt(ctx, from)
	if err != nil {
		return err
	}
	if balance.Sign() == 0 {
		return fmt.Errorf("%w: signer %s has no funds", types.ErrInsufficientBalance, from.Hex())
	}
	if p.opts.MinBalance != nil && balance.Cmp(p.opts.MinBalance) < 0 {
		p.logger.Warn("Signer balance is low", "address", from.Hex(), "balance", balance, "minimum", p.opts.MinBalance)
	}
	return nil
}

// Simulate dry-runs the prove call against current L1 state.
func (p *Prover) Simulate(ctx context.Context, args *types.ProveArgs) error {
	if err := p.portal.SimulateProve(ctx, *args); err != nil {
		return err
	}
	p.logger.Info("Simulated proveWithdrawalTransaction", "game", args.DisputeGameIndex, "proofNodes", len(args.WithdrawalProof))
	return nil
}

// Submit broadcasts the prove call and returns the transaction hash.
func (p *Prover) Submit(ctx context.Context, args *types.ProveArgs) (common.Hash, error) {
	return p.portal.SubmitProve(ctx, *args)
}
