package protocol

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/stretchr/testify/require"
)

func TestMessagePassedTopic(t *testing.T) {
	require.Equal(t,
		"0x02a52367d10742d8032712c1bb8e0144ff1ec5ffda1ed7d70bb05a2744955054",
		MessagePassedEventABIHash.Hex())
}

func TestMessagePasserABIMatchesTopic(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(MessagePasserABI))
	require.NoError(t, err)
	require.Equal(t, MessagePassedEventABIHash, parsed.Events["MessagePassed"].ID)
}
