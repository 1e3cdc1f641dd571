package megaeth

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"

	"github.com/megabridge/withdrawal-prover/types"
)

// VerifyStorageProof checks an eth_getProof response against stateRoot: the
// account proof must resolve to an account whose storage root is
// proof.StorageHash, and every storage entry must resolve to its value under
// that root.
func VerifyStorageProof(stateRoot common.Hash, proof *types.StorageInclusionProof) error {
	accountRLP, err := trie.VerifyProof(stateRoot, crypto.Keccak256(proof.Address.Bytes()), proofDB(proof.AccountProof))
	if err != nil {
		return fmt.Errorf("%w: account proof: %v", types.ErrIntegrity, err)
	}
	if len(accountRLP) == 0 {
		return fmt.Errorf("%w: account %s absent from state %s", types.ErrIntegrity, proof.Address.Hex(), stateRoot.Hex())
	}

	var account gethtypes.StateAccount
	if err := rlp.DecodeBytes(accountRLP, &account); err != nil {
		return fmt.Errorf("%w: failed to decode account: %v", types.ErrIntegrity, err)
	}
	if account.Root != proof.StorageHash {
		return fmt.Errorf("%w: account storage root %s, proof claims %s", types.ErrIntegrity, account.Root.Hex(), proof.StorageHash.Hex())
	}

	for _, sp := range proof.StorageProof {
		val, err := trie.VerifyProof(proof.StorageHash, crypto.Keccak256(sp.Key.Bytes()), proofDB(sp.Proof))
		if err != nil {
			return fmt.Errorf("%w: storage proof for %s: %v", types.ErrIntegrity, sp.Key.Hex(), err)
		}

		got := new(big.Int)
		if len(val) > 0 {
			var content []byte
			if err := rlp.DecodeBytes(val, &content); err != nil {
				return fmt.Errorf("%w: failed to decode slot %s: %v", types.ErrIntegrity, sp.Key.Hex(), err)
			}
			got.SetBytes(content)
		}
		if sp.Value != nil && got.Cmp(sp.Value) != 0 {
			return fmt.Errorf("%w: slot %s holds %s, proof claims %s", types.ErrIntegrity, sp.Key.Hex(), got, sp.Value)
		}
	}
	return nil
}

func proofDB(nodes [][]byte) *memorydb.Database {
	db := memorydb.New()
	for _, node := range nodes {
		db.Put(crypto.Keccak256(node), node)
	}
	return db
}
