package types

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// WithdrawalParams is the JSON form of a WithdrawalTransaction.
type WithdrawalParams struct {
	Nonce    *hexutil.Big   `json:"nonce"`
	Sender   common.Address `json:"sender"`
	Target   common.Address `json:"target"`
	Value    *hexutil.Big   `json:"value"`
	GasLimit *hexutil.Big   `json:"gasLimit"`
	Data     hexutil.Bytes  `json:"data"`
}

// ProveParams is everything needed to call proveWithdrawalTransaction,
// together with the context it was derived from.
type ProveParams struct {
	Status            ProveStatus      `json:"status"`
	L2TxHash          common.Hash      `json:"l2TxHash"`
	WithdrawalHash    common.Hash      `json:"withdrawalHash"`
	L2BlockNumber     uint64           `json:"l2BlockNumber"`
	DisputeGameIndex  uint64           `json:"disputeGameIndex"`
	DisputeGameProxy  common.Address   `json:"disputeGameProxy"`
	GameL2BlockNumber uint64           `json:"gameL2BlockNumber"`
	RootClaim         common.Hash      `json:"rootClaim"`
	RootVersion       string           `json:"rootVersion"`
	Withdrawal        WithdrawalParams `json:"withdrawal"`
	OutputRootProof   OutputRootProof  `json:"outputRootProof"`
	WithdrawalProof   []hexutil.Bytes  `json:"withdrawalProof"`
	L1TxHash          *common.Hash     `json:"l1TxHash,omitempty"`
}

// NewProveParams flattens a run that got at least as far as assembly.
func NewProveParams(r *ProveResult) (*ProveParams, error) {
	if r == nil || r.Args == nil || r.Withdrawal == nil || r.Game == nil || r.RootVersion == nil {
		return nil, errors.New("prove result has no assembled arguments")
	}

	w := r.Args.Withdrawal
	proof := make([]hexutil.Bytes, len(r.Args.WithdrawalProof))
	for i, node := range r.Args.WithdrawalProof {
		proof[i] = node
	}

	return &ProveParams{
		Status:            r.Status,
		L2TxHash:          r.Withdrawal.L2TxHash,
		WithdrawalHash:    r.Withdrawal.WithdrawalHash,
		L2BlockNumber:     r.Withdrawal.L2BlockNumber,
		DisputeGameIndex:  r.Game.Index,
		DisputeGameProxy:  r.Game.Proxy,
		GameL2BlockNumber: r.Game.L2BlockNumber,
		RootClaim:         r.Game.RootClaim,
		RootVersion:       r.RootVersion.String(),
		Withdrawal: WithdrawalParams{
			Nonce:    (*hexutil.Big)(w.Nonce),
			Sender:   w.Sender,
			Target:   w.Target,
			Value:    (*hexutil.Big)(w.Value),
			GasLimit: (*hexutil.Big)(w.GasLimit),
			Data:     w.Data,
		},
		OutputRootProof: r.Args.OutputRootProof,
		WithdrawalProof: proof,
		L1TxHash:        r.L1TxHash,
	}, nil
}
