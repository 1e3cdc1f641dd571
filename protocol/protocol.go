// Package protocol holds the fixed addresses, event signatures and chain
// parameters of the MegaETH withdrawal path. Values here are protocol
// constants, not user configuration.
package protocol

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// L2 predeploys.
var (
	L2ToL1MessagePasserAddress    = common.HexToAddress("0x4200000000000000000000000000000000000016")
	L2CrossDomainMessengerAddress = common.HexToAddress("0x4200000000000000000000000000000000000007")
	L2StandardBridgeAddress       = common.HexToAddress("0x4200000000000000000000000000000000000010")
)

// L1 deployment.
var (
	OptimismPortalAddress     = common.HexToAddress("0x7f82f57F0Dd546519324392e408b01fcC7D709e8")
	DisputeGameFactoryAddress = common.HexToAddress("0x8546840adf796875cd9aacc5b3b048f6b2c9d563")
)

const (
	L1ChainID uint64 = 1
	L2ChainID uint64 = 4326
)

var (
	MessagePassedEventABI     = "MessagePassed(uint256,address,address,uint256,uint256,bytes,bytes32)"
	MessagePassedEventABIHash = crypto.Keccak256Hash([]byte(MessagePassedEventABI))
)

// MessagePasserABI is the subset of the L2ToL1MessagePasser ABI needed to
// decode MessagePassed logs.
const MessagePasserABI = `[{
	"anonymous": false,
	"type": "event",
	"name": "MessagePassed",
	"inputs": [
		{"indexed": true, "name": "nonce", "type": "uint256"},
		{"indexed": true, "name": "sender", "type": "address"},
		{"indexed": true, "name": "target", "type": "address"},
		{"indexed": false, "name": "value", "type": "uint256"},
		{"indexed": false, "name": "gasLimit", "type": "uint256"},
		{"indexed": false, "name": "data", "type": "bytes"},
		{"indexed": false, "name": "withdrawalHash", "type": "bytes32"}
	]
}]`

// SentMessagesSlot is the storage index of the sentMessages mapping in the
// L2ToL1MessagePasser.
const SentMessagesSlot = 0

// Dispute game status codes as returned by status().
const (
	GameStatusInProgress     uint8 = 0
	GameStatusChallengerWins uint8 = 1
	GameStatusDefenderWins   uint8 = 2
)

// DefaultGameLookback is how many of the newest games are scanned when
// looking for a covering game.
const DefaultGameLookback = 50
