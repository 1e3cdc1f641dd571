package megaeth

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/megabridge/withdrawal-prover/types"
)

// eachEndpoint runs call against every endpoint in order until one
// succeeds. Only transport, timeout, unsupported-method and pruned-state
// failures move on to the next endpoint.
func (c *Client) eachEndpoint(ctx context.Context, method string, call func(ctx context.Context, e *endpoint) error) error {
	var lastErr error
	for attempt, e := range c.endpoints {
		callCtx, cancel := c.callContext(ctx)
		err := types.ClassifyRPCError(method, call(callCtx, e))
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", method, ctx.Err())
		}
		lastErr = err
		c.Opts.Metrics.RecordEndpointError(err)

		if !types.IsTransient(err) && !errors.Is(err, types.ErrUnsupportedMethod) && !errors.Is(err, types.ErrStateUnavailable) {
			return err
		}
		if attempt < len(c.endpoints)-1 {
			c.logger.Warn("Endpoint failed, trying next", "method", method, "endpoint", e.url, "error", err)
		}
	}
	return fmt.Errorf("failed to %s after %d endpoints: %w", method, len(c.endpoints), lastErr)
}

// GetStorageProof calls eth_getProof for address and keys at block. When no
// endpoint serves the method the error wraps types.ErrUnsupportedMethod.
func (c *Client) GetStorageProof(ctx context.Context, address common.Address, keys []common.Hash, block uint64) (*types.StorageInclusionProof, error) {
	slots := make([]string, len(keys))
	for i, k := range keys {
		slots[i] = k.Hex()
	}

	var proof *types.StorageInclusionProof
	err := c.eachEndpoint(ctx, "eth_getProof", func(ctx context.Context, e *endpoint) error {
		res, err := e.geth.GetProof(ctx, address, slots, new(big.Int).SetUint64(block))
		if err != nil {
			return err
		}
		if len(res.StorageProof) != len(keys) {
			return fmt.Errorf("%w: got %d storage proofs for %d keys", types.ErrIntegrity, len(res.StorageProof), len(keys))
		}

		proof = &types.StorageInclusionProof{
			Address:      address,
			AccountProof: decodeNodes(res.AccountProof),
			StorageHash:  res.StorageHash,
		}
		for i, sp := range res.StorageProof {
			value := sp.Value
			if value == nil {
				value = new(big.Int)
			}
			proof.StorageProof = append(proof.StorageProof, types.StorageEntry{
				Key:   keys[i],
				Value: value,
				Proof: decodeNodes(sp.Proof),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Debug("Fetched storage proof", "address", address.Hex(), "block", block, "storageHash", proof.StorageHash.Hex())
	return proof, nil
}

// StorageAt reads a raw storage word at block.
func (c *Client) StorageAt(ctx context.Context, address common.Address, slot common.Hash, block uint64) (common.Hash, error) {
	var word common.Hash
	err := c.eachEndpoint(ctx, "eth_getStorageAt", func(ctx context.Context, e *endpoint) error {
		out, err := e.eth.StorageAt(ctx, address, slot, new(big.Int).SetUint64(block))
		if err != nil {
			return err
		}
		word = common.BytesToHash(out)
		return nil
	})
	return word, err
}

func decodeNodes(hexNodes []string) [][]byte {
	nodes := make([][]byte, len(hexNodes))
	for i, s := range hexNodes {
		nodes[i] = common.FromHex(s)
	}
	return nodes
}
