package ethereum

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/megabridge/withdrawal-prover/protocol"
	"github.com/megabridge/withdrawal-prover/types"
)

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

func pack(typeNames []string, values ...interface{}) hexutil.Bytes {
	var args abi.Arguments
	for _, t := range typeNames {
		args = append(args, abi.Argument{Type: mustType(t)})
	}
	out, err := args.Pack(values...)
	if err != nil {
		panic(err)
	}
	return out
}

type revertErr struct {
	data string
}

func (e revertErr) Error() string          { return "execution reverted" }
func (e revertErr) ErrorCode() int         { return 3 }
func (e revertErr) ErrorData() interface{} { return e.data }

type callArgs struct {
	From  *common.Address `json:"from"`
	To    *common.Address `json:"to"`
	Input hexutil.Bytes   `json:"input"`
	Data  hexutil.Bytes   `json:"data"`
}

// l1Service is a minimal L1 node serving the portal, factory and one game.
type l1Service struct {
	factory      common.Address
	games        map[uint64]common.Address
	gameBlocks   map[common.Address]uint64
	proveReason  string
	submitters   uint64
	lastProveArg []byte
}

func (s *l1Service) ChainId() *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(1))
}

func (s *l1Service) GetCode(addr common.Address, block string) hexutil.Bytes {
	return hexutil.Bytes{0x60}
}

func (s *l1Service) Call(args callArgs, block string) (hexutil.Bytes, error) {
	input := args.Input
	if len(input) == 0 {
		input = args.Data
	}
	selector := hex.EncodeToString(input[:4])
	switch selector {
	case "f2b4e617": // disputeGameFactory()
		return pack([]string{"address"}, s.factory), nil
	case "3c9f397c": // respectedGameType()
		return pack([]string{"uint32"}, uint32(0)), nil
	case "4d1975b4": // gameCount()
		return pack([]string{"uint256"}, big.NewInt(int64(len(s.games)))), nil
	case "bb8aa1fc": // gameAtIndex(uint256)
		index := new(big.Int).SetBytes(input[4:36]).Uint64()
		proxy, ok := s.games[index]
		if !ok {
			return nil, revertErr{data: "0x"}
		}
		return pack([]string{"uint32", "uint64", "address"}, uint32(0), uint64(1700000000+index), proxy), nil
	case "8b85902b": // l2BlockNumber()
		return pack([]string{"uint256"}, new(big.Int).SetUint64(s.gameBlocks[*args.To])), nil
	case "bcef3b55": // rootClaim()
		return pack([]string{"bytes32"}, crypto.Keccak256Hash(args.To.Bytes())), nil
	case "200d2ed2": // status()
		return pack([]string{"uint8"}, uint8(2)), nil
	case "513747ab": // numProofSubmitters(bytes32)
		return pack([]string{"uint256"}, new(big.Int).SetUint64(s.submitters)), nil
	case "a14238e7": // finalizedWithdrawals(bytes32)
		return pack([]string{"bool"}, false), nil
	case "bb2c727e": // provenWithdrawals(bytes32,address)
		return pack([]string{"address", "uint64"}, s.games[0], uint64(1700000123)), nil
	case "4870496f": // proveWithdrawalTransaction
		s.lastProveArg = input
		if s.proveReason != "" {
			reason := append(common.FromHex("0x08c379a0"), pack([]string{"string"}, s.proveReason)...)
			return nil, revertErr{data: hexutil.Encode(reason)}
		}
		return hexutil.Bytes{}, nil
	}
	return nil, errors.New("unknown selector " + selector)
}

func newTestClient(t *testing.T, svc *l1Service) *Client {
	t.Helper()
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", svc))
	t.Cleanup(server.Stop)

	c, err := NewClientWithRPC(context.Background(), ClientOpts{}, rpc.DialInProc(server))
	require.NoError(t, err)
	return c
}

func testService() *l1Service {
	game0 := common.HexToAddress("0x00000000000000000000000000000000000000a0")
	game1 := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	return &l1Service{
		factory:    protocol.DisputeGameFactoryAddress,
		games:      map[uint64]common.Address{0: game0, 1: game1},
		gameBlocks: map[common.Address]uint64{game0: 100, game1: 3585860},
	}
}

func testProveArgs() types.ProveArgs {
	return types.ProveArgs{
		Withdrawal: types.WithdrawalTransaction{
			Nonce:    big.NewInt(3),
			Sender:   protocol.L2CrossDomainMessengerAddress,
			Target:   common.HexToAddress("0x6c7198250087b29a8040ec63903bc130f4831cc9"),
			Value:    big.NewInt(0),
			GasLimit: big.NewInt(500000),
			Data:     common.FromHex("0xdeadbeef"),
		},
		DisputeGameIndex: big.NewInt(1008),
		OutputRootProof: types.OutputRootProof{
			Version:   types.RootVersionV1.Bytes32(),
			StateRoot: common.HexToHash("0x11"),
		},
	}
}

func TestEncodeProveWithdrawal(t *testing.T) {
	data, err := EncodeProveWithdrawal(testProveArgs())
	require.NoError(t, err)
	assert.Equal(t, "4870496f", hex.EncodeToString(data[:4]))
	// Withdrawal tuple offset, game index, output root proof words, proof offset.
	assert.Equal(t, big.NewInt(1008), new(big.Int).SetBytes(data[4+32:4+64]))
	assert.Equal(t, byte(1), data[4+64+31])

	args := testProveArgs()
	args.WithdrawalProof = [][]byte{{0xde, 0xad}, {0xbe, 0xef}}
	withProof, err := EncodeProveWithdrawal(args)
	require.NoError(t, err)
	assert.Greater(t, len(withProof), len(data))
}

func TestNewClientDiscoversFactory(t *testing.T) {
	svc := testService()
	svc.factory = common.HexToAddress("0x00000000000000000000000000000000000000ff")
	c := newTestClient(t, svc)
	assert.Equal(t, svc.factory, c.DisputeGameFactoryAddress())
	assert.Equal(t, protocol.OptimismPortalAddress, c.Opts.OptimismPortalAddress)
}

func TestDisputeGameReads(t *testing.T) {
	ctx := context.Background()
	svc := testService()
	c := newTestClient(t, svc)

	count, err := c.GameCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	entry, err := c.GameAtIndex(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, types.GameEntry{Index: 1, GameType: 0, Timestamp: 1700000001, Proxy: svc.games[1]}, entry)

	_, err = c.GameAtIndex(ctx, 7)
	require.ErrorIs(t, err, types.ErrGameNotFound)

	block, err := c.GameL2BlockNumber(ctx, entry.Proxy)
	require.NoError(t, err)
	assert.Equal(t, uint64(3585860), block)

	claim, err := c.GameRootClaim(ctx, entry.Proxy)
	require.NoError(t, err)
	assert.Equal(t, crypto.Keccak256Hash(entry.Proxy.Bytes()), claim)

	status, err := c.GameStatus(ctx, entry.Proxy)
	require.NoError(t, err)
	assert.Equal(t, protocol.GameStatusDefenderWins, status)

	gameType, err := c.RespectedGameType(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), gameType)
}

func TestWithdrawalStatus(t *testing.T) {
	svc := testService()
	svc.submitters = 1
	c := newTestClient(t, svc)

	submitter := common.HexToAddress("0x0315eCb53F64b7A4bA56bb8A4DAB0D96F0856b60")
	status, err := c.WithdrawalStatus(context.Background(), common.HexToHash("0x69ac"), submitter)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), status.NumProofSubmitters)
	assert.False(t, status.Finalized)
	assert.Equal(t, svc.games[0], status.DisputeGameProxy)
	assert.Equal(t, hexutil.Uint64(1700000123), status.ProvenTimestamp)
}

func TestSimulateProveRevert(t *testing.T) {
	svc := testService()
	svc.proveReason = "OptimismPortal: withdrawal hash has already been proven"
	c := newTestClient(t, svc)

	err := c.SimulateProve(context.Background(), testProveArgs())
	require.ErrorIs(t, err, types.ErrProofRejected)

	var revert *types.RevertError
	require.ErrorAs(t, err, &revert)
	assert.Equal(t, svc.proveReason, revert.Reason)

	svc.proveReason = ""
	require.NoError(t, c.SimulateProve(context.Background(), testProveArgs()))
	assert.Equal(t, "4870496f", hex.EncodeToString(svc.lastProveArg[:4]))
}

func TestSubmitProveRequiresKey(t *testing.T) {
	c := newTestClient(t, testService())
	_, err := c.SubmitProve(context.Background(), testProveArgs())
	require.Error(t, err)
	assert.Equal(t, common.Address{}, c.From())
}

func TestMaxCost(t *testing.T) {
	cost, err := maxCost(100000, big.NewInt(30_000_000_000))
	require.NoError(t, err)
	assert.Equal(t, "3000000000000000", cost.Dec())

	huge := new(big.Int).Lsh(big.NewInt(1), 255)
	_, err = maxCost(4, huge)
	require.Error(t, err)

	_, err = maxCost(1, new(big.Int).Lsh(big.NewInt(1), 256))
	require.Error(t, err)

	_, err = maxCost(1, big.NewInt(-1))
	require.Error(t, err)
}
