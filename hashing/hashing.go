// Package hashing implements the content hash, output root and storage slot
// derivations the portal checks a withdrawal proof against.
package hashing

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/megabridge/withdrawal-prover/types"
)

var (
	uint256Type, _ = abi.NewType("uint256", "", nil)
	addressType, _ = abi.NewType("address", "", nil)
	bytesType, _   = abi.NewType("bytes", "", nil)

	withdrawalArgs = abi.Arguments{
		{Name: "nonce", Type: uint256Type},
		{Name: "sender", Type: addressType},
		{Name: "target", Type: addressType},
		{Name: "value", Type: uint256Type},
		{Name: "gasLimit", Type: uint256Type},
		{Name: "data", Type: bytesType},
	}
)

// WithdrawalHash is keccak256(abi.encode(nonce, sender, target, value,
// gasLimit, data)).
func WithdrawalHash(w types.WithdrawalTransaction) (common.Hash, error) {
	if w.Nonce == nil || w.Value == nil || w.GasLimit == nil {
		return common.Hash{}, fmt.Errorf("withdrawal has nil numeric field")
	}
	enc, err := withdrawalArgs.Pack(w.Nonce, w.Sender, w.Target, w.Value, w.GasLimit, w.Data)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack for withdrawal hash: %w", err)
	}
	return crypto.Keccak256Hash(enc), nil
}

// OutputRoot is keccak256(version ++ stateRoot ++ messagePasserStorageRoot ++
// latestBlockhash).
func OutputRoot(p types.OutputRootProof) common.Hash {
	return crypto.Keccak256Hash(
		p.Version[:],
		p.StateRoot[:],
		p.MessagePasserStorageRoot[:],
		p.LatestBlockhash[:],
	)
}

// StorageSlotKey is the slot of sentMessages[withdrawalHash] in the message
// passer, keccak256(withdrawalHash ++ uint256(0)).
func StorageSlotKey(withdrawalHash common.Hash) common.Hash {
	var buf [64]byte
	copy(buf[:32], withdrawalHash[:])
	return crypto.Keccak256Hash(buf[:])
}
