package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// WithdrawalTransaction is the L2->L1 message as committed by the
// L2ToL1MessagePasser. Field names match the portal's tuple components.
type WithdrawalTransaction struct {
	Nonce    *big.Int
	Sender   common.Address
	Target   common.Address
	Value    *big.Int
	GasLimit *big.Int
	Data     []byte
}

// ExtractedWithdrawal is a withdrawal whose hash has been recomputed and
// checked against the hash the contract emitted.
type ExtractedWithdrawal struct {
	Withdrawal     WithdrawalTransaction
	WithdrawalHash common.Hash
	L2TxHash       common.Hash
	L2BlockNumber  uint64
}

// GameEntry is one record of the dispute game factory.
type GameEntry struct {
	Index     uint64
	GameType  uint32
	Timestamp uint64
	Proxy     common.Address
}

// DisputeGame is a factory entry together with the L2 block it attests to.
type DisputeGame struct {
	GameEntry
	L2BlockNumber uint64
}

// GameSelection is the game chosen to prove against.
type GameSelection struct {
	DisputeGame
	RootClaim common.Hash
}

// BlockHeader holds the header fields that feed an output root.
type BlockHeader struct {
	Number          uint64
	Hash            common.Hash
	StateRoot       common.Hash
	WithdrawalsRoot *common.Hash
}

// OutputRootProof is the preimage of an output root.
type OutputRootProof struct {
	Version                  common.Hash `json:"version"`
	StateRoot                common.Hash `json:"stateRoot"`
	MessagePasserStorageRoot common.Hash `json:"messagePasserStorageRoot"`
	LatestBlockhash          common.Hash `json:"latestBlockhash"`
}

// StorageEntry is one slot of an eth_getProof response.
type StorageEntry struct {
	Key   common.Hash
	Value *big.Int
	Proof [][]byte
}

// StorageInclusionProof is an eth_getProof response for a single account.
type StorageInclusionProof struct {
	Address      common.Address
	AccountProof [][]byte
	StorageHash  common.Hash
	StorageProof []StorageEntry
}

// VerifiedOutputRoot is a reconstructed output root that equals a game's
// root claim.
type VerifiedOutputRoot struct {
	Version RootVersion
	Proof   OutputRootProof
	Root    common.Hash
	// StorageProof is set when the version needed an eth_getProof call, so
	// later stages can reuse it.
	StorageProof *StorageInclusionProof
}

// ProveArgs are the arguments of proveWithdrawalTransaction.
type ProveArgs struct {
	Withdrawal       WithdrawalTransaction
	DisputeGameIndex *big.Int
	OutputRootProof  OutputRootProof
	WithdrawalProof  [][]byte
}

// ProveResult is what a pipeline run produced. Fields are filled as far as
// the run got.
type ProveResult struct {
	Status      ProveStatus          `json:"status"`
	Withdrawal  *ExtractedWithdrawal `json:"-"`
	Game        *GameSelection       `json:"-"`
	RootVersion *RootVersion         `json:"-"`
	Args        *ProveArgs           `json:"-"`
	L1TxHash    *common.Hash         `json:"l1TxHash,omitempty"`
}

// WithdrawalStatus is the portal's view of a withdrawal.
type WithdrawalStatus struct {
	WithdrawalHash     common.Hash    `json:"withdrawalHash"`
	NumProofSubmitters uint64         `json:"numProofSubmitters"`
	Finalized          bool           `json:"finalized"`
	Submitter          common.Address `json:"submitter"`
	DisputeGameProxy   common.Address `json:"disputeGameProxy"`
	ProvenTimestamp    hexutil.Uint64 `json:"provenTimestamp"`
}
