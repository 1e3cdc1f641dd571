package ethereum

import (
	"context"
	"errors"
	"fmt"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/lmittmann/w3"

	"github.com/megabridge/withdrawal-prover/types"
)

// call runs a read-only eth_call of fn against to and decodes the result into
// returns. name is used in errors.
func (c *Client) call(ctx context.Context, name string, to common.Address, fn *w3.Func, returns []any, args ...any) error {
	input, err := fn.EncodeArgs(args...)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}

	ctx, cancel := c.callContext(ctx)
	defer cancel()

	out, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: input}, nil)
	if err != nil {
		if rerr := revertError(err); rerr != nil {
			return fmt.Errorf("%s on %s: %w", name, to.Hex(), rerr)
		}
		return types.ClassifyRPCError("eth_call "+name, err)
	}
	if err := fn.DecodeReturns(out, returns...); err != nil {
		return fmt.Errorf("failed to decode %s from %s (%d bytes): %w", name, to.Hex(), len(out), err)
	}
	return nil
}

// revertError extracts the revert reason from an execution error, or returns
// nil when err is not a revert.
func revertError(err error) *types.RevertError {
	var data []byte
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if s, ok := dataErr.ErrorData().(string); ok {
			data = common.FromHex(s)
		}
	}
	if len(data) == 0 && !strings.Contains(err.Error(), "revert") {
		return nil
	}

	reason, uerr := abi.UnpackRevert(data)
	if uerr != nil {
		reason = strings.TrimPrefix(err.Error(), "execution reverted: ")
		if reason == "execution reverted" {
			reason = ""
		}
	}
	return &types.RevertError{Reason: reason, Data: data}
}
