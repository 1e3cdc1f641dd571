// Package withdrawal reads withdrawals out of L2 transaction receipts.
package withdrawal

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/megabridge/withdrawal-prover/hashing"
	"github.com/megabridge/withdrawal-prover/protocol"
	"github.com/megabridge/withdrawal-prover/types"
)

type ReceiptClient interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
}

type Extractor struct {
	receipts ReceiptClient
	logger   *slog.Logger
}

type ExtractorOpts struct {
	Logger *slog.Logger
}

var messagePasserABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(protocol.MessagePasserABI))
	if err != nil {
		panic(fmt.Sprintf("failed to parse message passer abi: %v", err))
	}
	messagePasserABI = parsed
}

func NewExtractor(receipts ReceiptClient, opts ExtractorOpts) *Extractor {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Extractor{receipts: receipts, logger: opts.Logger}
}

// Extract fetches the receipt of txHash and returns its withdrawal. When the
// transaction initiated several withdrawals the first one is returned.
func (e *Extractor) Extract(ctx context.Context, txHash common.Hash) (*types.ExtractedWithdrawal, error) {
	all, err := e.ExtractAll(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if len(all) > 1 {
		e.logger.Warn("Transaction initiated several withdrawals, using the first", "txHash", txHash.Hex(), "count", len(all))
	}
	return all[0], nil
}

// ExtractAll returns every withdrawal initiated by txHash, in log order.
func (e *Extractor) ExtractAll(ctx context.Context, txHash common.Hash) ([]*types.ExtractedWithdrawal, error) {
	receipt, err := e.receipts.TransactionReceipt(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction receipt on MegaETH: %w", err)
	}

	withdrawals, err := ParseMessagesPassed(receipt)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", txHash.Hex(), err)
	}
	for _, w := range withdrawals {
		e.logger.Info("Extracted withdrawal", "txHash", txHash.Hex(), "withdrawalHash", w.WithdrawalHash.Hex(), "l2Block", w.L2BlockNumber, "nonce", w.Withdrawal.Nonce)
	}
	return withdrawals, nil
}

// ParseMessagesPassed decodes every MessagePassed log the message passer
// emitted in receipt and checks each emitted hash against the recomputed one.
func ParseMessagesPassed(receipt *gethtypes.Receipt) ([]*types.ExtractedWithdrawal, error) {
	var withdrawals []*types.ExtractedWithdrawal
	for _, log := range receipt.Logs {
		if log.Address != protocol.L2ToL1MessagePasserAddress {
			continue
		}
		if len(log.Topics) == 0 || log.Topics[0] != protocol.MessagePassedEventABIHash {
			continue
		}

		w, err := parseMessagePassed(log)
		if err != nil {
			return nil, err
		}
		w.L2TxHash = receipt.TxHash
		if receipt.BlockNumber != nil {
			w.L2BlockNumber = receipt.BlockNumber.Uint64()
		}
		withdrawals = append(withdrawals, w)
	}
	if len(withdrawals) == 0 {
		return nil, types.ErrEventNotFound
	}
	return withdrawals, nil
}

func parseMessagePassed(log *gethtypes.Log) (*types.ExtractedWithdrawal, error) {
	if len(log.Topics) != 4 {
		return nil, fmt.Errorf("%w: MessagePassed log %d has %d topics", types.ErrIntegrity, log.Index, len(log.Topics))
	}

	var message struct {
		Value          *big.Int
		GasLimit       *big.Int
		Data           []byte
		WithdrawalHash [32]byte
	}
	if err := messagePasserABI.UnpackIntoInterface(&message, "MessagePassed", log.Data); err != nil {
		return nil, fmt.Errorf("%w: failed to unpack MessagePassed: %v", types.ErrIntegrity, err)
	}

	withdrawal := types.WithdrawalTransaction{
		Nonce:    new(big.Int).SetBytes(log.Topics[1].Bytes()),
		Sender:   common.BytesToAddress(log.Topics[2].Bytes()),
		Target:   common.BytesToAddress(log.Topics[3].Bytes()),
		Value:    message.Value,
		GasLimit: message.GasLimit,
		Data:     message.Data,
	}

	computed, err := hashing.WithdrawalHash(withdrawal)
	if err != nil {
		return nil, err
	}
	emitted := common.Hash(message.WithdrawalHash)
	if computed != emitted {
		return nil, fmt.Errorf("%w: computed withdrawal hash %s, event carries %s", types.ErrIntegrity, computed.Hex(), emitted.Hex())
	}

	return &types.ExtractedWithdrawal{
		Withdrawal:     withdrawal,
		WithdrawalHash: computed,
	}, nil
}
