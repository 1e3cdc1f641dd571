package ethereum

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/megabridge/withdrawal-prover/types"
)

type OptimismPortal interface {
	DisputeGameFactory(ctx context.Context) (common.Address, error)
	RespectedGameType(ctx context.Context) (uint32, error)
	NumProofSubmitters(ctx context.Context, withdrawalHash common.Hash) (uint64, error)
	ProvenWithdrawals(ctx context.Context, withdrawalHash common.Hash, submitter common.Address) (common.Address, uint64, error)
	FinalizedWithdrawals(ctx context.Context, withdrawalHash common.Hash) (bool, error)
	WithdrawalStatus(ctx context.Context, withdrawalHash common.Hash, submitter common.Address) (*types.WithdrawalStatus, error)
}

var _ OptimismPortal = &Client{}

func (c *Client) portal() common.Address {
	return c.Opts.OptimismPortalAddress
}

func (c *Client) DisputeGameFactory(ctx context.Context) (common.Address, error) {
	var factory common.Address
	err := c.call(ctx, "disputeGameFactory", c.portal(), disputeGameFactoryFn, []any{&factory})
	return factory, err
}

func (c *Client) RespectedGameType(ctx context.Context) (uint32, error) {
	var gameType uint32
	err := c.call(ctx, "respectedGameType", c.portal(), respectedGameTypeFn, []any{&gameType})
	return gameType, err
}

func (c *Client) NumProofSubmitters(ctx context.Context, withdrawalHash common.Hash) (uint64, error) {
	var n *big.Int
	if err := c.call(ctx, "numProofSubmitters", c.portal(), numProofSubmittersFn, []any{&n}, withdrawalHash); err != nil {
		return 0, err
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("%w: numProofSubmitters %s out of range", types.ErrIntegrity, n)
	}
	return n.Uint64(), nil
}

func (c *Client) ProvenWithdrawals(ctx context.Context, withdrawalHash common.Hash, submitter common.Address) (common.Address, uint64, error) {
	var (
		proxy     common.Address
		timestamp uint64
	)
	err := c.call(ctx, "provenWithdrawals", c.portal(), provenWithdrawalsFn, []any{&proxy, &timestamp}, withdrawalHash, submitter)
	return proxy, timestamp, err
}

func (c *Client) FinalizedWithdrawals(ctx context.Context, withdrawalHash common.Hash) (bool, error) {
	var finalized bool
	err := c.call(ctx, "finalizedWithdrawals", c.portal(), finalizedWithdrawalsFn, []any{&finalized}, withdrawalHash)
	return finalized, err
}

// WithdrawalStatus collects the portal's proof and finalization state for a
// withdrawal. A zero submitter defaults to the client's signer.
func (c *Client) WithdrawalStatus(ctx context.Context, withdrawalHash common.Hash, submitter common.Address) (*types.WithdrawalStatus, error) {
	if submitter == (common.Address{}) {
		submitter = c.From()
	}

	n, err := c.NumProofSubmitters(ctx, withdrawalHash)
	if err != nil {
		return nil, err
	}
	finalized, err := c.FinalizedWithdrawals(ctx, withdrawalHash)
	if err != nil {
		return nil, err
	}
	status := &types.WithdrawalStatus{
		WithdrawalHash:     withdrawalHash,
		NumProofSubmitters: n,
		Finalized:          finalized,
		Submitter:          submitter,
	}
	if submitter != (common.Address{}) {
		proxy, ts, err := c.ProvenWithdrawals(ctx, withdrawalHash, submitter)
		if err != nil {
			return nil, err
		}
		status.DisputeGameProxy = proxy
		status.ProvenTimestamp = hexutil.Uint64(ts)
	}
	return status, nil
}
