package prover

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/megabridge/withdrawal-prover/ethereum"
	"github.com/megabridge/withdrawal-prover/hashing"
	"github.com/megabridge/withdrawal-prover/protocol"
	"github.com/megabridge/withdrawal-prover/types"
)

var (
	submitter   = common.HexToAddress("0x0315eCb53F64b7A4bA56bb8A4DAB0D96F0856b60")
	stateRoot   = common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111")
	withdrawals = common.HexToHash("0x2222222222222222222222222222222222222222222222222222222222222222")
	blockHash   = common.HexToHash("0x3333333333333333333333333333333333333333333333333333333333333333")
	passerRoot  = common.HexToHash("0x4444444444444444444444444444444444444444444444444444444444444444")
)

const (
	gameIndex = 1008
	gameBlock = 3585860
)

type fakeGame struct {
	l2Block uint64
	claim   common.Hash
}

// fakeChain serves both chains for every stage.
type fakeChain struct {
	mu sync.Mutex

	receipts map[common.Hash]*gethtypes.Receipt
	games    []fakeGame
	headers  map[uint64]*types.BlockHeader

	proofErr     error
	storageAtErr error
	sentWord     common.Hash
	submitters   uint64
	simulateErr  error
	balance      *big.Int
	chainId      int64

	gameCountCalls int
	proofCalls     int
	simulateCalls  int
	submitCalls    int
}

func newFakeChain() *fakeChain {
	wr := withdrawals
	return &fakeChain{
		receipts: map[common.Hash]*gethtypes.Receipt{},
		headers: map[uint64]*types.BlockHeader{
			gameBlock: {Number: gameBlock, Hash: blockHash, StateRoot: stateRoot, WithdrawalsRoot: &wr},
		},
		sentWord: common.BigToHash(big.NewInt(1)),
		balance:  big.NewInt(1e18),
		chainId:  1,
	}
}

func gameProxy(index uint64) common.Address {
	return common.BigToAddress(new(big.Int).SetUint64(0xd15 << 32 + index))
}

func gameIndexOf(proxy common.Address) uint64 {
	return proxy.Big().Uint64() - 0xd15<<32
}

func rootFor(version types.RootVersion, storage common.Hash) common.Hash {
	return hashing.OutputRoot(types.OutputRootProof{
		Version:                  version.Bytes32(),
		StateRoot:                stateRoot,
		MessagePasserStorageRoot: storage,
		LatestBlockhash:          blockHash,
	})
}

// withGames fills indices 0..last with games checkpointed a thousand
// blocks apart. The game at gameIndex checkpoints gameBlock and carries claim.
func (f *fakeChain) withGames(last uint64, claim common.Hash) *fakeChain {
	f.games = make([]fakeGame, last+1)
	for i := range f.games {
		f.games[i] = fakeGame{
			l2Block: uint64(gameBlock + (i-gameIndex)*1000),
			claim:   common.HexToHash("0xdead"),
		}
	}
	f.games[gameIndex].claim = claim
	return f
}

func (f *fakeChain) TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error) {
	r, ok := f.receipts[txHash]
	if !ok {
		return nil, types.ErrTransactionNotFound
	}
	return r, nil
}

func (f *fakeChain) GameCount(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gameCountCalls++
	return uint64(len(f.games)), nil
}

func (f *fakeChain) GameAtIndex(ctx context.Context, index uint64) (types.GameEntry, error) {
	return types.GameEntry{Index: index, Proxy: gameProxy(index), Timestamp: 1700000000 + index}, nil
}

func (f *fakeChain) GameL2BlockNumber(ctx context.Context, proxy common.Address) (uint64, error) {
	return f.games[gameIndexOf(proxy)].l2Block, nil
}

func (f *fakeChain) GameStatus(ctx context.Context, proxy common.Address) (uint8, error) {
	return protocol.GameStatusDefenderWins, nil
}

func (f *fakeChain) GameRootClaim(ctx context.Context, proxy common.Address) (common.Hash, error) {
	return f.games[gameIndexOf(proxy)].claim, nil
}

func (f *fakeChain) BlockHeader(ctx context.Context, number uint64) (*types.BlockHeader, error) {
	h, ok := f.headers[number]
	if !ok {
		return nil, &types.RPCError{Method: "eth_getBlockByNumber", Kind: types.ErrNotFound, Err: errors.New("no block")}
	}
	return h, nil
}

func (f *fakeChain) GetStorageProof(ctx context.Context, address common.Address, keys []common.Hash, block uint64) (*types.StorageInclusionProof, error) {
	f.mu.Lock()
	f.proofCalls++
	f.mu.Unlock()
	if f.proofErr != nil {
		return nil, f.proofErr
	}
	return &types.StorageInclusionProof{
		Address:      address,
		AccountProof: [][]byte{{0xaa}},
		StorageHash:  passerRoot,
		StorageProof: []types.StorageEntry{{Key: keys[0], Value: big.NewInt(1), Proof: [][]byte{{0xde, 0xad}, {0xbe, 0xef}}}},
	}, nil
}

func (f *fakeChain) StorageAt(ctx context.Context, address common.Address, slot common.Hash, block uint64) (common.Hash, error) {
	return f.sentWord, f.storageAtErr
}

func (f *fakeChain) From() common.Address {
	return submitter
}

func (f *fakeChain) ChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(f.chainId), nil
}

func (f *fakeChain) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	return f.balance, nil
}

func (f *fakeChain) NumProofSubmitters(ctx context.Context, withdrawalHash common.Hash) (uint64, error) {
	return f.submitters, nil
}

func (f *fakeChain) SimulateProve(ctx context.Context, args types.ProveArgs) error {
	f.simulateCalls++
	if _, err := ethereum.EncodeProveWithdrawal(args); err != nil {
		return err
	}
	return f.simulateErr
}

func (f *fakeChain) SubmitProve(ctx context.Context, args types.ProveArgs) (common.Hash, error) {
	f.submitCalls++
	data, err := ethereum.EncodeProveWithdrawal(args)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(submitter.Bytes(), data), nil
}

func testWithdrawal() types.WithdrawalTransaction {
	nonce := new(big.Int).Lsh(big.NewInt(1), 240)
	nonce.Add(nonce, big.NewInt(3))
	return types.WithdrawalTransaction{
		Nonce:    nonce,
		Sender:   protocol.L2CrossDomainMessengerAddress,
		Target:   common.HexToAddress("0x6c7198250087b29a8040ec63903bc130f4831cc9"),
		Value:    big.NewInt(0xB5E620F48000),
		GasLimit: big.NewInt(0x07DF76),
		Data:     common.FromHex("0xdeadbeef"),
	}
}

// addWithdrawalTx stores a receipt whose MessagePassed log carries w and
// the emitted hash, and returns the tx hash.
func (f *fakeChain) addWithdrawalTx(t *testing.T, w types.WithdrawalTransaction, emitted common.Hash, block uint64) common.Hash {
	t.Helper()
	u256, _ := abi.NewType("uint256", "", nil)
	b, _ := abi.NewType("bytes", "", nil)
	b32, _ := abi.NewType("bytes32", "", nil)
	data, err := abi.Arguments{{Type: u256}, {Type: u256}, {Type: b}, {Type: b32}}.Pack(w.Value, w.GasLimit, w.Data, emitted)
	require.NoError(t, err)

	txHash := crypto.Keccak256Hash(data)
	f.receipts[txHash] = &gethtypes.Receipt{
		TxHash:      txHash,
		BlockNumber: new(big.Int).SetUint64(block),
		Status:      gethtypes.ReceiptStatusSuccessful,
		Logs: []*gethtypes.Log{{
			Address: protocol.L2ToL1MessagePasserAddress,
			Topics: []common.Hash{
				protocol.MessagePassedEventABIHash,
				common.BigToHash(w.Nonce),
				common.BytesToHash(w.Sender.Bytes()),
				common.BytesToHash(w.Target.Bytes()),
			},
			Data: data,
		}},
	}
	return txHash
}
