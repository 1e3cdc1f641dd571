package types

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ProveStatus represents the outcome of a proving attempt
type ProveStatus string

const (
	// Extracted - Withdrawal has been read from its L2 transaction, nothing else done yet
	Extracted ProveStatus = "EXTRACTED"

	// NoCoveringGame - No dispute game in the lookback window covers the withdrawal block yet
	NoCoveringGame ProveStatus = "NO_COVERING_GAME"

	// AlreadyProven - At least one submitter has already proven the withdrawal
	AlreadyProven ProveStatus = "ALREADY_PROVEN"

	// ReadyToProve - Proof arguments are assembled and simulate successfully
	ReadyToProve ProveStatus = "READY_TO_PROVE"

	// Submitted - The prove transaction has been broadcast
	Submitted ProveStatus = "SUBMITTED"

	// Failed - The attempt stopped on an error
	Failed ProveStatus = "FAILED"
)

// RootVersion is the first byte-word of an output root preimage. It selects
// which L2 value is committed as the message passer storage root.
type RootVersion uint8

const (
	// RootVersionV0 commits the message passer account's storage root from eth_getProof.
	RootVersionV0 RootVersion = 0x00
	// RootVersionV1 commits the block header's withdrawalsRoot.
	RootVersionV1 RootVersion = 0x01
)

// DefaultRootVersionOrder is the order in which versions are tried when no
// hint is available.
var DefaultRootVersionOrder = []RootVersion{RootVersionV1, RootVersionV0}

func (v RootVersion) Bytes32() common.Hash {
	return common.Hash{31: byte(v)}
}

func (v RootVersion) String() string {
	return fmt.Sprintf("0x%02x", uint8(v))
}

func ParseRootVersion(s string) (RootVersion, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0x00", "0x0", "0", "v0":
		return RootVersionV0, nil
	case "0x01", "0x1", "1", "v1":
		return RootVersionV1, nil
	default:
		return 0, fmt.Errorf("unknown output root version %q", s)
	}
}

// ParseRootVersionOrder parses a comma separated list such as "0x01,0x00".
func ParseRootVersionOrder(s string) ([]RootVersion, error) {
	var order []RootVersion
	seen := make(map[RootVersion]bool)
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		v, err := ParseRootVersion(part)
		if err != nil {
			return nil, err
		}
		if seen[v] {
			return nil, fmt.Errorf("output root version %s listed twice", v)
		}
		seen[v] = true
		order = append(order, v)
	}
	if len(order) == 0 {
		return nil, fmt.Errorf("empty output root version order")
	}
	return order, nil
}
