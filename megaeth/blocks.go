package megaeth

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/megabridge/withdrawal-prover/types"
)

type rpcHeader struct {
	Number          *hexutil.Big `json:"number"`
	Hash            common.Hash  `json:"hash"`
	StateRoot       common.Hash  `json:"stateRoot"`
	WithdrawalsRoot *common.Hash `json:"withdrawalsRoot"`
}

// BlockHeader reads a header with eth_getBlockByNumber and keeps the hash the
// node reports. The header is not re-hashed locally, so fields this client
// does not know about cannot change the block hash.
func (c *Client) BlockHeader(ctx context.Context, number uint64) (*types.BlockHeader, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	var raw json.RawMessage
	if err := c.primary().rpc.CallContext(ctx, &raw, "eth_getBlockByNumber", hexutil.EncodeUint64(number), false); err != nil {
		return nil, types.ClassifyRPCError("eth_getBlockByNumber", err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, &types.RPCError{
			Method: "eth_getBlockByNumber",
			Kind:   types.ErrNotFound,
			Err:    fmt.Errorf("block %d", number),
		}
	}

	var head rpcHeader
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("failed to decode block %d: %w", number, err)
	}
	if head.Number == nil || head.Number.ToInt().Uint64() != number {
		return nil, fmt.Errorf("%w: endpoint returned block %v for request %d", types.ErrIntegrity, head.Number, number)
	}

	return &types.BlockHeader{
		Number:          number,
		Hash:            head.Hash,
		StateRoot:       head.StateRoot,
		WithdrawalsRoot: head.WithdrawalsRoot,
	}, nil
}
