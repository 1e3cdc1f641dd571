package ethereum

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lmittmann/w3"

	"github.com/megabridge/withdrawal-prover/types"
)

var (
	// DisputeGameFactory
	gameCountFn   = w3.MustNewFunc("gameCount()", "uint256")
	gameAtIndexFn = w3.MustNewFunc("gameAtIndex(uint256)", "uint32 gameType, uint64 timestamp, address proxy")

	// FaultDisputeGame
	rootClaimFn     = w3.MustNewFunc("rootClaim()", "bytes32")
	l2BlockNumberFn = w3.MustNewFunc("l2BlockNumber()", "uint256")
	statusFn        = w3.MustNewFunc("status()", "uint8")

	// OptimismPortal2
	disputeGameFactoryFn   = w3.MustNewFunc("disputeGameFactory()", "address")
	respectedGameTypeFn    = w3.MustNewFunc("respectedGameType()", "uint32")
	numProofSubmittersFn   = w3.MustNewFunc("numProofSubmitters(bytes32)", "uint256")
	provenWithdrawalsFn    = w3.MustNewFunc("provenWithdrawals(bytes32,address)", "address disputeGameProxy, uint64 timestamp")
	finalizedWithdrawalsFn = w3.MustNewFunc("finalizedWithdrawals(bytes32)", "bool")

	proveWithdrawalTransactionFn = w3.MustNewFunc("proveWithdrawalTransaction("+
		"(uint256 Nonce, address Sender, address Target, uint256 Value, uint256 GasLimit, bytes Data),"+
		"uint256,"+
		"(bytes32 Version, bytes32 StateRoot, bytes32 MessagePasserStorageRoot, bytes32 LatestBlockhash),"+
		"bytes[])", "")
)

type withdrawalTransactionArg struct {
	Nonce    *big.Int
	Sender   common.Address
	Target   common.Address
	Value    *big.Int
	GasLimit *big.Int
	Data     []byte
}

type outputRootProofArg struct {
	Version                  [32]byte
	StateRoot                [32]byte
	MessagePasserStorageRoot [32]byte
	LatestBlockhash          [32]byte
}

// EncodeProveWithdrawal returns the calldata of proveWithdrawalTransaction.
func EncodeProveWithdrawal(args types.ProveArgs) ([]byte, error) {
	w := args.Withdrawal
	proof := make([][]byte, len(args.WithdrawalProof))
	copy(proof, args.WithdrawalProof)

	return proveWithdrawalTransactionFn.EncodeArgs(
		withdrawalTransactionArg{
			Nonce:    w.Nonce,
			Sender:   w.Sender,
			Target:   w.Target,
			Value:    w.Value,
			GasLimit: w.GasLimit,
			Data:     w.Data,
		},
		args.DisputeGameIndex,
		outputRootProofArg{
			Version:                  args.OutputRootProof.Version,
			StateRoot:                args.OutputRootProof.StateRoot,
			MessagePasserStorageRoot: args.OutputRootProof.MessagePasserStorageRoot,
			LatestBlockhash:          args.OutputRootProof.LatestBlockhash,
		},
		proof,
	)
}
