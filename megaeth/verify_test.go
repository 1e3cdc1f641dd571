package megaeth

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/megabridge/withdrawal-prover/hashing"
	"github.com/megabridge/withdrawal-prover/protocol"
	"github.com/megabridge/withdrawal-prover/types"
)

type proofList [][]byte

func (l *proofList) Put(key []byte, value []byte) error {
	*l = append(*l, common.CopyBytes(value))
	return nil
}

func (l *proofList) Delete(key []byte) error {
	panic("not supported")
}

type stateFixture struct {
	stateRoot common.Hash
	proof     *types.StorageInclusionProof
}

// buildStateFixture builds a state with the message passer holding
// sentMessages[hash] = true and returns a proof for slot.
func buildStateFixture(t *testing.T, withdrawalHash common.Hash, slot common.Hash) stateFixture {
	t.Helper()

	storage := trie.NewEmpty(triedb.NewDatabase(rawdb.NewMemoryDatabase(), nil))
	sent, err := rlp.EncodeToBytes([]byte{1})
	require.NoError(t, err)
	require.NoError(t, storage.Update(crypto.Keccak256(hashing.StorageSlotKey(withdrawalHash).Bytes()), sent))
	other, err := rlp.EncodeToBytes([]byte{1})
	require.NoError(t, err)
	require.NoError(t, storage.Update(crypto.Keccak256(common.HexToHash("0x01").Bytes()), other))
	storageRoot := storage.Hash()

	var storageProof proofList
	require.NoError(t, storage.Prove(crypto.Keccak256(slot.Bytes()), &storageProof))

	account, err := rlp.EncodeToBytes(&gethtypes.StateAccount{
		Nonce:    1,
		Balance:  uint256.NewInt(0),
		Root:     storageRoot,
		CodeHash: crypto.Keccak256(nil),
	})
	require.NoError(t, err)

	state := trie.NewEmpty(triedb.NewDatabase(rawdb.NewMemoryDatabase(), nil))
	require.NoError(t, state.Update(crypto.Keccak256(protocol.L2ToL1MessagePasserAddress.Bytes()), account))
	filler, err := rlp.EncodeToBytes(&gethtypes.StateAccount{Balance: uint256.NewInt(7), Root: gethtypes.EmptyRootHash, CodeHash: crypto.Keccak256(nil)})
	require.NoError(t, err)
	require.NoError(t, state.Update(crypto.Keccak256(common.HexToAddress("0x01").Bytes()), filler))
	stateRoot := state.Hash()

	var accountProof proofList
	require.NoError(t, state.Prove(crypto.Keccak256(protocol.L2ToL1MessagePasserAddress.Bytes()), &accountProof))

	value := big.NewInt(0)
	if slot == hashing.StorageSlotKey(withdrawalHash) {
		value = big.NewInt(1)
	}
	return stateFixture{
		stateRoot: stateRoot,
		proof: &types.StorageInclusionProof{
			Address:      protocol.L2ToL1MessagePasserAddress,
			AccountProof: accountProof,
			StorageHash:  storageRoot,
			StorageProof: []types.StorageEntry{{Key: slot, Value: value, Proof: storageProof}},
		},
	}
}

var fixtureHash = common.HexToHash("0x69ac8f49c3156b5f312e18e49def4c2203834876f7691a77a40005fc4ad1a817")

func TestVerifyStorageProof(t *testing.T) {
	f := buildStateFixture(t, fixtureHash, hashing.StorageSlotKey(fixtureHash))
	require.NoError(t, VerifyStorageProof(f.stateRoot, f.proof))
}

func TestVerifyStorageProofAbsentSlot(t *testing.T) {
	absent := hashing.StorageSlotKey(common.HexToHash("0xbeef"))
	f := buildStateFixture(t, fixtureHash, absent)
	require.NoError(t, VerifyStorageProof(f.stateRoot, f.proof))

	f.proof.StorageProof[0].Value = big.NewInt(1)
	require.ErrorIs(t, VerifyStorageProof(f.stateRoot, f.proof), types.ErrIntegrity)
}

func TestVerifyStorageProofRejectsTampering(t *testing.T) {
	slot := hashing.StorageSlotKey(fixtureHash)

	t.Run("wrong state root", func(t *testing.T) {
		f := buildStateFixture(t, fixtureHash, slot)
		require.ErrorIs(t, VerifyStorageProof(common.HexToHash("0x1234"), f.proof), types.ErrIntegrity)
	})
	t.Run("wrong storage hash", func(t *testing.T) {
		f := buildStateFixture(t, fixtureHash, slot)
		f.proof.StorageHash = common.HexToHash("0x1234")
		require.ErrorIs(t, VerifyStorageProof(f.stateRoot, f.proof), types.ErrIntegrity)
	})
	t.Run("missing storage nodes", func(t *testing.T) {
		f := buildStateFixture(t, fixtureHash, slot)
		f.proof.StorageProof[0].Proof = nil
		require.ErrorIs(t, VerifyStorageProof(f.stateRoot, f.proof), types.ErrIntegrity)
	})
	t.Run("wrong account", func(t *testing.T) {
		f := buildStateFixture(t, fixtureHash, slot)
		f.proof.Address = protocol.L2CrossDomainMessengerAddress
		require.ErrorIs(t, VerifyStorageProof(f.stateRoot, f.proof), types.ErrIntegrity)
	})
}
