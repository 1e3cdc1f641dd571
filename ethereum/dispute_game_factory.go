package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/megabridge/withdrawal-prover/types"
)

type DisputeGameFactory interface {
	GameCount(ctx context.Context) (uint64, error)
	GameAtIndex(ctx context.Context, index uint64) (types.GameEntry, error)
}

var _ DisputeGameFactory = &Client{}

func (c *Client) DisputeGameFactoryAddress() common.Address {
	return c.disputeGameFactoryAddress
}

func (c *Client) GameCount(ctx context.Context) (uint64, error) {
	var count *big.Int
	if err := c.call(ctx, "gameCount", c.disputeGameFactoryAddress, gameCountFn, []any{&count}); err != nil {
		return 0, err
	}
	if !count.IsUint64() {
		return 0, fmt.Errorf("%w: gameCount %s out of range", types.ErrIntegrity, count)
	}
	return count.Uint64(), nil
}

func (c *Client) GameAtIndex(ctx context.Context, index uint64) (types.GameEntry, error) {
	var (
		gameType  uint32
		timestamp uint64
		proxy     common.Address
	)
	err := c.call(ctx, "gameAtIndex", c.disputeGameFactoryAddress, gameAtIndexFn, []any{&gameType, &timestamp, &proxy}, new(big.Int).SetUint64(index))
	if err != nil {
		var revert *types.RevertError
		if errors.As(err, &revert) {
			return types.GameEntry{}, fmt.Errorf("%w: index %d: %v", types.ErrGameNotFound, index, err)
		}
		return types.GameEntry{}, err
	}
	if proxy == (common.Address{}) {
		return types.GameEntry{}, fmt.Errorf("%w: index %d has no proxy", types.ErrGameNotFound, index)
	}
	return types.GameEntry{Index: index, GameType: gameType, Timestamp: timestamp, Proxy: proxy}, nil
}
