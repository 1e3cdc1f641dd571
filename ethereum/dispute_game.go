package ethereum

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/megabridge/withdrawal-prover/types"
)

type DisputeGame interface {
	GameL2BlockNumber(ctx context.Context, proxy common.Address) (uint64, error)
	GameRootClaim(ctx context.Context, proxy common.Address) (common.Hash, error)
	GameStatus(ctx context.Context, proxy common.Address) (uint8, error)
}

var _ DisputeGame = &Client{}

func (c *Client) GameL2BlockNumber(ctx context.Context, proxy common.Address) (uint64, error) {
	var number *big.Int
	if err := c.call(ctx, "l2BlockNumber", proxy, l2BlockNumberFn, []any{&number}); err != nil {
		return 0, err
	}
	if !number.IsUint64() {
		return 0, fmt.Errorf("%w: game %s l2BlockNumber %s out of range", types.ErrIntegrity, proxy.Hex(), number)
	}
	return number.Uint64(), nil
}

func (c *Client) GameRootClaim(ctx context.Context, proxy common.Address) (common.Hash, error) {
	var claim [32]byte
	if err := c.call(ctx, "rootClaim", proxy, rootClaimFn, []any{&claim}); err != nil {
		return common.Hash{}, err
	}
	return claim, nil
}

func (c *Client) GameStatus(ctx context.Context, proxy common.Address) (uint8, error) {
	var status uint8
	if err := c.call(ctx, "status", proxy, statusFn, []any{&status}); err != nil {
		return 0, err
	}
	return status, nil
}
