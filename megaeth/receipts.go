package megaeth

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/megabridge/withdrawal-prover/types"
)

// TransactionReceipt returns the receipt of an included transaction, or an
// error wrapping types.ErrTransactionNotFound.
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	receipt, err := c.primary().eth.TransactionReceipt(ctx, txHash)
	if err != nil {
		err = types.ClassifyRPCError("eth_getTransactionReceipt", err)
		if errors.Is(err, types.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", types.ErrTransactionNotFound, txHash.Hex())
		}
		return nil, err
	}
	return receipt, nil
}
