// Package outputroot rebuilds a game's output root from L2 state and checks
// it against the game's root claim.
package outputroot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/megabridge/withdrawal-prover/hashing"
	"github.com/megabridge/withdrawal-prover/protocol"
	"github.com/megabridge/withdrawal-prover/types"
)

type HeaderReader interface {
	BlockHeader(ctx context.Context, number uint64) (*types.BlockHeader, error)
}

type ProofReader interface {
	GetStorageProof(ctx context.Context, address common.Address, keys []common.Hash, block uint64) (*types.StorageInclusionProof, error)
}

// VersionStore remembers which root version a deployment uses.
type VersionStore interface {
	LoadRootVersion(ctx context.Context, deployment string) (types.RootVersion, time.Time, bool, error)
	SaveRootVersion(ctx context.Context, deployment string, version types.RootVersion) error
}

type Verifier struct {
	headers HeaderReader
	proofs  ProofReader
	opts    VerifierOpts
	logger  *slog.Logger
}

type VerifierOpts struct {
	// Order is the sequence in which versions are tried.
	Order []types.RootVersion
	// Store and Deployment enable the version hint. A hint older than HintTTL
	// is ignored.
	Store      VersionStore
	Deployment string
	HintTTL    time.Duration
	Logger     *slog.Logger
}

func NewVerifier(headers HeaderReader, proofs ProofReader, opts VerifierOpts) *Verifier {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if len(opts.Order) == 0 {
		opts.Order = types.DefaultRootVersionOrder
	}
	return &Verifier{headers: headers, proofs: proofs, opts: opts, logger: opts.Logger}
}

// Verify rebuilds the output root of game under each version in turn and
// returns the first one equal to game.RootClaim. slot is the message passer
// storage key included in any storage proof fetched on the way, so the
// proof can be reused for the withdrawal.
func (v *Verifier) Verify(ctx context.Context, game *types.GameSelection, slot common.Hash) (*types.VerifiedOutputRoot, error) {
	header, err := v.headers.BlockHeader(ctx, game.L2BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to get MegaETH block %d: %w", game.L2BlockNumber, err)
	}

	hint, fresh := v.loadHint(ctx)
	order := v.order(hint, fresh)

	var proofErr error
	for _, version := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		proof := types.OutputRootProof{
			Version:         version.Bytes32(),
			StateRoot:       header.StateRoot,
			LatestBlockhash: header.Hash,
		}
		var storageProof *types.StorageInclusionProof

		switch version {
		case types.RootVersionV1:
			if header.WithdrawalsRoot == nil {
				v.logger.Debug("Block has no withdrawalsRoot, skipping version", "version", version, "block", header.Number)
				continue
			}
			proof.MessagePasserStorageRoot = *header.WithdrawalsRoot
		case types.RootVersionV0:
			sp, err := v.proofs.GetStorageProof(ctx, protocol.L2ToL1MessagePasserAddress, []common.Hash{slot}, header.Number)
			if err != nil {
				if types.IsTransient(err) || errors.Is(err, types.ErrUnsupportedMethod) || errors.Is(err, types.ErrStateUnavailable) {
					v.logger.Warn("Storage proof unavailable, cannot try version", "version", version, "block", header.Number, "error", err)
					proofErr = err
					continue
				}
				return nil, fmt.Errorf("failed to get storage proof at block %d: %w", header.Number, err)
			}
			proof.MessagePasserStorageRoot = sp.StorageHash
			storageProof = sp
		default:
			return nil, fmt.Errorf("unsupported output root version %s", version)
		}

		root := hashing.OutputRoot(proof)
		if root != game.RootClaim {
			v.logger.Debug("Output root version did not match", "version", version, "computed", root.Hex(), "rootClaim", game.RootClaim.Hex())
			continue
		}

		v.logger.Info("Output root verified", "version", version, "game", game.Index, "l2Block", header.Number, "root", root.Hex())
		if !fresh || hint != version {
			v.saveHint(ctx, version)
		}
		return &types.VerifiedOutputRoot{
			Version:      version,
			Proof:        proof,
			Root:         root,
			StorageProof: storageProof,
		}, nil
	}

	if proofErr != nil {
		return nil, fmt.Errorf("%w: no version in %v matched game %d and %v", types.ErrProofUnavailable, order, game.Index, proofErr)
	}
	return nil, fmt.Errorf("%w: game %d claims %s, no version in %v matches block %d", types.ErrOutputRootMismatch, game.Index, game.RootClaim.Hex(), order, header.Number)
}

// order puts a fresh hint first and keeps the configured order otherwise.
func (v *Verifier) order(hint types.RootVersion, fresh bool) []types.RootVersion {
	if !fresh {
		return v.opts.Order
	}
	order := []types.RootVersion{hint}
	for _, version := range v.opts.Order {
		if version != hint {
			order = append(order, version)
		}
	}
	return order
}

func (v *Verifier) loadHint(ctx context.Context) (types.RootVersion, bool) {
	if v.opts.Store == nil {
		return 0, false
	}
	version, discoveredAt, ok, err := v.opts.Store.LoadRootVersion(ctx, v.opts.Deployment)
	if err != nil {
		v.logger.Warn("Failed to load root version hint", "deployment", v.opts.Deployment, "error", err)
		return 0, false
	}
	if !ok {
		return 0, false
	}
	if v.opts.HintTTL > 0 && time.Since(discoveredAt) > v.opts.HintTTL {
		v.logger.Debug("Root version hint is stale", "version", version, "discoveredAt", discoveredAt)
		return version, false
	}
	if !slices.Contains(v.opts.Order, version) {
		v.logger.Warn("Root version hint is not in the configured order, ignoring", "version", version)
		return version, false
	}
	return version, true
}

func (v *Verifier) saveHint(ctx context.Context, version types.RootVersion) {
	if v.opts.Store == nil {
		return
	}
	if err := v.opts.Store.SaveRootVersion(ctx, v.opts.Deployment, version); err != nil {
		v.logger.Warn("Failed to save root version hint", "deployment", v.opts.Deployment, "error", err)
	}
}
