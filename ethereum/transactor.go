package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/megabridge/withdrawal-prover/types"
)

type Transactor interface {
	From() common.Address
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	SimulateProve(ctx context.Context, args types.ProveArgs) error
	SubmitProve(ctx context.Context, args types.ProveArgs) (common.Hash, error)
}

var _ Transactor = &Client{}

func (c *Client) proveCall(args types.ProveArgs) (ethereum.CallMsg, error) {
	data, err := EncodeProveWithdrawal(args)
	if err != nil {
		return ethereum.CallMsg{}, fmt.Errorf("failed to encode proveWithdrawalTransaction: %w", err)
	}
	portal := c.portal()
	return ethereum.CallMsg{From: c.From(), To: &portal, Data: data}, nil
}

// SimulateProve executes proveWithdrawalTransaction as an eth_call from the
// signer. A revert is returned as a *types.RevertError.
func (c *Client) SimulateProve(ctx context.Context, args types.ProveArgs) error {
	msg, err := c.proveCall(args)
	if err != nil {
		return err
	}

	ctx, cancel := c.callContext(ctx)
	defer cancel()

	if _, err := c.client.CallContract(ctx, msg, nil); err != nil {
		if rerr := revertError(err); rerr != nil {
			return rerr
		}
		return types.ClassifyRPCError("eth_call proveWithdrawalTransaction", err)
	}
	return nil
}

// SubmitProve signs and broadcasts proveWithdrawalTransaction and returns the
// transaction hash. It does not wait for inclusion.
func (c *Client) SubmitProve(ctx context.Context, args types.ProveArgs) (common.Hash, error) {
	if c.Opts.PrivateKey == nil {
		return common.Hash{}, errors.New("no private key configured")
	}
	msg, err := c.proveCall(args)
	if err != nil {
		return common.Hash{}, err
	}

	tx, err := c.buildTx(ctx, msg)
	if err != nil {
		return common.Hash{}, err
	}

	signed, err := gethtypes.SignTx(tx, gethtypes.LatestSignerForChainID(c.chainId), c.Opts.PrivateKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	sendCtx, cancel := c.callContext(ctx)
	defer cancel()
	if err := c.client.SendTransaction(sendCtx, signed); err != nil {
		if rerr := revertError(err); rerr != nil {
			return common.Hash{}, rerr
		}
		return common.Hash{}, types.ClassifyRPCError("eth_sendRawTransaction", err)
	}

	c.logger.Info("Submitted proveWithdrawalTransaction", "txHash", signed.Hash().Hex(), "nonce", signed.Nonce(), "gas", signed.Gas())
	return signed.Hash(), nil
}

func (c *Client) buildTx(ctx context.Context, msg ethereum.CallMsg) (*gethtypes.Transaction, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	nonce, err := c.client.PendingNonceAt(ctx, msg.From)
	if err != nil {
		return nil, types.ClassifyRPCError("eth_getTransactionCount", err)
	}

	estimate, err := c.client.EstimateGas(ctx, msg)
	if err != nil {
		if rerr := revertError(err); rerr != nil {
			return nil, rerr
		}
		return nil, types.ClassifyRPCError("eth_estimateGas", err)
	}
	gas := uint64(float64(estimate) * c.Opts.GasLimitMultiplier)

	head, err := c.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, types.ClassifyRPCError("eth_getBlockByNumber", err)
	}

	if head.BaseFee == nil {
		gasPrice, err := c.client.SuggestGasPrice(ctx)
		if err != nil {
			return nil, types.ClassifyRPCError("eth_gasPrice", err)
		}
		if err := c.checkAffordable(ctx, msg.From, gas, gasPrice); err != nil {
			return nil, err
		}
		return gethtypes.NewTx(&gethtypes.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gas,
			To:       msg.To,
			Data:     msg.Data,
		}), nil
	}

	tip, err := c.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, types.ClassifyRPCError("eth_maxPriorityFeePerGas", err)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	if err := c.checkAffordable(ctx, msg.From, gas, feeCap); err != nil {
		return nil, err
	}

	return gethtypes.NewTx(&gethtypes.DynamicFeeTx{
		ChainID:   c.chainId,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        msg.To,
		Data:      msg.Data,
	}), nil
}

// maxCost is gas * price, failing when either the price or the product does
// not fit 256 bits.
func maxCost(gas uint64, price *big.Int) (*uint256.Int, error) {
	p, overflow := uint256.FromBig(price)
	if overflow || price.Sign() < 0 {
		return nil, fmt.Errorf("gas price %s out of range", price)
	}
	cost, overflow := new(uint256.Int).MulOverflow(p, uint256.NewInt(gas))
	if overflow {
		return nil, fmt.Errorf("transaction cost overflows: gas %d at price %s", gas, price)
	}
	return cost, nil
}

// checkAffordable fails with types.ErrInsufficientBalance when from cannot
// pay for gas at price.
func (c *Client) checkAffordable(ctx context.Context, from common.Address, gas uint64, price *big.Int) error {
	cost, err := maxCost(gas, price)
	if err != nil {
		return err
	}
	balance, err := c.client.BalanceAt(ctx, from, nil)
	if err != nil {
		return types.ClassifyRPCError("eth_getBalance", err)
	}
	bal, _ := uint256.FromBig(balance)
	if bal.Lt(cost) {
		return fmt.Errorf("%w: %s holds %s wei, transaction may cost %s", types.ErrInsufficientBalance, from.Hex(), balance, cost.Dec())
	}
	return nil
}

// WaitForReceipt polls for the receipt of txHash until it is included or ctx
// is done. A failed receipt is reported as types.ErrProofRejected.
func (c *Client) WaitForReceipt(ctx context.Context, txHash common.Hash, interval time.Duration) (*gethtypes.Receipt, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		callCtx, cancel := c.callContext(ctx)
		receipt, err := c.client.TransactionReceipt(callCtx, txHash)
		cancel()

		switch {
		case err == nil && receipt.Status == gethtypes.ReceiptStatusFailed:
			return receipt, fmt.Errorf("%w: transaction %s failed in block %s", types.ErrProofRejected, txHash.Hex(), receipt.BlockNumber)
		case err == nil:
			return receipt, nil
		case !errors.Is(err, ethereum.NotFound):
			c.logger.Warn("Failed to get receipt, retrying", "txHash", txHash.Hex(), "error", err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for %s: %w", txHash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
