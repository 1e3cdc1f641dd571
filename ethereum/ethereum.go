package ethereum

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/megabridge/withdrawal-prover/protocol"
	"github.com/megabridge/withdrawal-prover/types"
)

const defaultTimeout = 20 * time.Second

type Client struct {
	client                    *ethclient.Client
	chainId                   *big.Int
	disputeGameFactoryAddress common.Address
	logger                    *slog.Logger
	Opts                      *ClientOpts
}

type ClientOpts struct {
	Endpoint              string
	OptimismPortalAddress common.Address
	// PrivateKey signs prove transactions. Read-only clients leave it nil.
	PrivateKey *ecdsa.PrivateKey
	Logger     *slog.Logger
	// Timeout bounds every single remote call.
	Timeout time.Duration
	// GasLimitMultiplier pads eth_estimateGas results.
	GasLimitMultiplier float64
}

// NewClient returns a new Ethereum client over the given endpoint.
func NewClient(ctx context.Context, opts ClientOpts) (*Client, error) {
	rc, err := rpc.DialContext(ctx, opts.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum: %w", err)
	}
	return NewClientWithRPC(ctx, opts, rc)
}

// NewClientWithRPC wraps an already connected rpc client. The dispute game
// factory address is read from the portal.
func NewClientWithRPC(ctx context.Context, opts ClientOpts, rc *rpc.Client) (*Client, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.GasLimitMultiplier < 1 {
		opts.GasLimitMultiplier = 1
	}
	if opts.OptimismPortalAddress == (common.Address{}) {
		opts.OptimismPortalAddress = protocol.OptimismPortalAddress
	}

	c := &Client{
		client: ethclient.NewClient(rc),
		logger: opts.Logger,
		Opts:   &opts,
	}

	chainId, err := c.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chainId: %w", err)
	}
	c.chainId = chainId

	opts.Logger.Info("Connected to Ethereum", "chainId", chainId)

	// Warn user if the portal is not found at the given address.
	if ok, _ := c.isContract(ctx, opts.OptimismPortalAddress); !ok {
		opts.Logger.Warn("contract not found for OptimismPortal at given Address", "address", opts.OptimismPortalAddress.Hex(), "endpoint", opts.Endpoint)
	}

	factory, err := c.DisputeGameFactory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get DisputeGameFactory from portal: %w", err)
	}
	if factory != protocol.DisputeGameFactoryAddress {
		opts.Logger.Warn("portal reports a different DisputeGameFactory, using it", "portal", factory.Hex(), "expected", protocol.DisputeGameFactoryAddress.Hex())
	}
	c.disputeGameFactoryAddress = factory

	if opts.PrivateKey != nil {
		opts.Logger.Info("Loaded signer", "address", c.From().Hex())
	}

	return c, nil
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.Opts.Timeout)
}

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	id, err := c.client.ChainID(ctx)
	return id, types.ClassifyRPCError("eth_chainId", err)
}

// From is the signer address, or the zero address for read-only clients.
func (c *Client) From() common.Address {
	if c.Opts.PrivateKey == nil {
		return common.Address{}
	}
	return crypto.PubkeyToAddress(c.Opts.PrivateKey.PublicKey)
}

func (c *Client) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	bal, err := c.client.BalanceAt(ctx, account, nil)
	return bal, types.ClassifyRPCError("eth_getBalance", err)
}

func (c *Client) isContract(ctx context.Context, addr common.Address) (bool, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	code, err := c.client.CodeAt(ctx, addr, nil)
	if err != nil {
		return false, types.ClassifyRPCError("eth_getCode", err)
	}
	return len(code) > 0, nil
}

func (c *Client) Close() {
	c.client.Close()
}
