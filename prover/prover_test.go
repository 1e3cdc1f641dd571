package prover

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/megabridge/withdrawal-prover/hashing"
	"github.com/megabridge/withdrawal-prover/types"
)

func extracted(t *testing.T, block uint64) *types.ExtractedWithdrawal {
	t.Helper()
	w := testWithdrawal()
	hash, err := hashing.WithdrawalHash(w)
	require.NoError(t, err)
	return &types.ExtractedWithdrawal{Withdrawal: w, WithdrawalHash: hash, L2BlockNumber: block}
}

func selection() *types.GameSelection {
	return &types.GameSelection{
		DisputeGame: types.DisputeGame{
			GameEntry:     types.GameEntry{Index: gameIndex, Proxy: gameProxy(gameIndex)},
			L2BlockNumber: gameBlock,
		},
	}
}

func verifiedRoot(version types.RootVersion, storage common.Hash, sp *types.StorageInclusionProof) *types.VerifiedOutputRoot {
	proof := types.OutputRootProof{
		Version:                  version.Bytes32(),
		StateRoot:                stateRoot,
		MessagePasserStorageRoot: storage,
		LatestBlockhash:          blockHash,
	}
	return &types.VerifiedOutputRoot{Version: version, Proof: proof, Root: hashing.OutputRoot(proof), StorageProof: sp}
}

func TestAssembleV1UsesEmptyProof(t *testing.T) {
	chain := newFakeChain()
	p := NewProver(chain, chain, ProverOpts{})
	w := extracted(t, 3585000)

	args, err := p.Assemble(context.Background(), w, selection(), verifiedRoot(types.RootVersionV1, withdrawals, nil))
	require.NoError(t, err)

	assert.Equal(t, big.NewInt(gameIndex), args.DisputeGameIndex)
	assert.Empty(t, args.WithdrawalProof)
	assert.NotNil(t, args.WithdrawalProof)
	assert.Equal(t, withdrawals, args.OutputRootProof.MessagePasserStorageRoot)
	assert.Equal(t, w.Withdrawal, args.Withdrawal)
	assert.Zero(t, chain.proofCalls)
}

func TestAssembleV1SentMessageCheck(t *testing.T) {
	w := extracted(t, 3585000)

	t.Run("unsupported skips check", func(t *testing.T) {
		chain := newFakeChain()
		chain.storageAtErr = &types.RPCError{Method: "eth_getStorageAt", Kind: types.ErrUnsupportedMethod, Err: errors.New("method not found")}
		p := NewProver(chain, chain, ProverOpts{})

		_, err := p.Assemble(context.Background(), w, selection(), verifiedRoot(types.RootVersionV1, withdrawals, nil))
		require.NoError(t, err)
	})

	t.Run("pruned state skips check", func(t *testing.T) {
		chain := newFakeChain()
		chain.storageAtErr = types.ClassifyRPCError("eth_getStorageAt", errors.New("missing trie node 8d2f1c (path ) state 0x9a1b is not available"))
		p := NewProver(chain, chain, ProverOpts{})

		args, err := p.Assemble(context.Background(), w, selection(), verifiedRoot(types.RootVersionV1, withdrawals, nil))
		require.NoError(t, err)
		assert.Empty(t, args.WithdrawalProof)
	})

	t.Run("empty slot is an integrity failure", func(t *testing.T) {
		chain := newFakeChain()
		chain.sentWord = common.Hash{}
		p := NewProver(chain, chain, ProverOpts{})

		_, err := p.Assemble(context.Background(), w, selection(), verifiedRoot(types.RootVersionV1, withdrawals, nil))
		require.ErrorIs(t, err, types.ErrIntegrity)
	})

	t.Run("transport failure propagates", func(t *testing.T) {
		chain := newFakeChain()
		chain.storageAtErr = &types.RPCError{Method: "eth_getStorageAt", Kind: types.ErrTransport, Err: errors.New("connection refused")}
		p := NewProver(chain, chain, ProverOpts{})

		_, err := p.Assemble(context.Background(), w, selection(), verifiedRoot(types.RootVersionV1, withdrawals, nil))
		require.ErrorIs(t, err, types.ErrTransport)
	})
}

func TestAssembleV0(t *testing.T) {
	w := extracted(t, 3585000)
	slot := hashing.StorageSlotKey(w.WithdrawalHash)

	t.Run("reuses verification proof", func(t *testing.T) {
		chain := newFakeChain()
		sp := &types.StorageInclusionProof{
			StorageHash:  passerRoot,
			StorageProof: []types.StorageEntry{{Key: slot, Value: big.NewInt(1), Proof: [][]byte{{0x01}, {0x02}}}},
		}
		var verified bool
		p := NewProver(chain, chain, ProverOpts{VerifyProof: func(root common.Hash, proof *types.StorageInclusionProof) error {
			verified = true
			assert.Equal(t, stateRoot, root)
			return nil
		}})

		args, err := p.Assemble(context.Background(), w, selection(), verifiedRoot(types.RootVersionV0, passerRoot, sp))
		require.NoError(t, err)
		assert.Equal(t, [][]byte{{0x01}, {0x02}}, args.WithdrawalProof)
		assert.Zero(t, chain.proofCalls)
		assert.True(t, verified)
	})

	t.Run("fetches when no proof was kept", func(t *testing.T) {
		chain := newFakeChain()
		p := NewProver(chain, chain, ProverOpts{})

		args, err := p.Assemble(context.Background(), w, selection(), verifiedRoot(types.RootVersionV0, passerRoot, nil))
		require.NoError(t, err)
		assert.Equal(t, [][]byte{{0xde, 0xad}, {0xbe, 0xef}}, args.WithdrawalProof)
		assert.Equal(t, 1, chain.proofCalls)
	})

	t.Run("fetch failure is proof unavailable", func(t *testing.T) {
		chain := newFakeChain()
		chain.proofErr = &types.RPCError{Method: "eth_getProof", Kind: types.ErrUnsupportedMethod, Err: errors.New("method not found")}
		p := NewProver(chain, chain, ProverOpts{})

		_, err := p.Assemble(context.Background(), w, selection(), verifiedRoot(types.RootVersionV0, passerRoot, nil))
		require.ErrorIs(t, err, types.ErrProofUnavailable)
	})

	t.Run("storage root differs from verified", func(t *testing.T) {
		chain := newFakeChain()
		p := NewProver(chain, chain, ProverOpts{})

		_, err := p.Assemble(context.Background(), w, selection(), verifiedRoot(types.RootVersionV0, common.HexToHash("0x99"), nil))
		require.ErrorIs(t, err, types.ErrIntegrity)
	})

	t.Run("zero slot value", func(t *testing.T) {
		chain := newFakeChain()
		sp := &types.StorageInclusionProof{
			StorageHash:  passerRoot,
			StorageProof: []types.StorageEntry{{Key: slot, Value: new(big.Int)}},
		}
		p := NewProver(chain, chain, ProverOpts{})

		_, err := p.Assemble(context.Background(), w, selection(), verifiedRoot(types.RootVersionV0, passerRoot, sp))
		require.ErrorIs(t, err, types.ErrIntegrity)
	})

	t.Run("local verification failure", func(t *testing.T) {
		chain := newFakeChain()
		p := NewProver(chain, chain, ProverOpts{VerifyProof: func(common.Hash, *types.StorageInclusionProof) error {
			return types.ErrIntegrity
		}})

		_, err := p.Assemble(context.Background(), w, selection(), verifiedRoot(types.RootVersionV0, passerRoot, nil))
		require.ErrorIs(t, err, types.ErrIntegrity)
	})
}

func TestAssembleRejectsGameBeforeWithdrawal(t *testing.T) {
	chain := newFakeChain()
	p := NewProver(chain, chain, ProverOpts{})

	_, err := p.Assemble(context.Background(), extracted(t, gameBlock+1), selection(), verifiedRoot(types.RootVersionV1, withdrawals, nil))
	require.ErrorIs(t, err, types.ErrIntegrity)
}

func TestCheckNotProven(t *testing.T) {
	chain := newFakeChain()
	p := NewProver(chain, chain, ProverOpts{})
	hash := common.HexToHash("0x69ac")

	require.NoError(t, p.CheckNotProven(context.Background(), hash))

	chain.submitters = 1
	err := p.CheckNotProven(context.Background(), hash)
	require.ErrorIs(t, err, types.ErrAlreadyProven)
}

func TestPreflight(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		chain := newFakeChain()
		p := NewProver(chain, chain, ProverOpts{L1ChainID: 1, MinBalance: big.NewInt(1e15)})
		require.NoError(t, p.Preflight(context.Background()))
	})

	t.Run("low balance only warns", func(t *testing.T) {
		chain := newFakeChain()
		chain.balance = big.NewInt(10)
		p := NewProver(chain, chain, ProverOpts{L1ChainID: 1, MinBalance: big.NewInt(1e15)})
		require.NoError(t, p.Preflight(context.Background()))
	})

	t.Run("chain mismatch", func(t *testing.T) {
		chain := newFakeChain()
		chain.chainId = 11155111
		p := NewProver(chain, chain, ProverOpts{L1ChainID: 1})
		require.ErrorIs(t, p.Preflight(context.Background()), types.ErrChainMismatch)
	})

	t.Run("no funds", func(t *testing.T) {
		chain := newFakeChain()
		chain.balance = new(big.Int)
		p := NewProver(chain, chain, ProverOpts{L1ChainID: 1})
		require.ErrorIs(t, p.Preflight(context.Background()), types.ErrInsufficientBalance)
	})
}
