package megaeth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethclient/gethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/megabridge/withdrawal-prover/metrics"
	"github.com/megabridge/withdrawal-prover/protocol"
	"github.com/megabridge/withdrawal-prover/types"
)

const defaultTimeout = 20 * time.Second

type endpoint struct {
	url  string
	rpc  *rpc.Client
	eth  *ethclient.Client
	geth *gethclient.Client
}

// Client reads MegaETH. The first endpoint serves every read; the rest are
// only used for proof and storage reads the primary cannot answer.
type Client struct {
	endpoints []*endpoint
	chainId   *big.Int
	logger    *slog.Logger
	Opts      *ClientOpts
}

type ClientOpts struct {
	Endpoints []string
	// ChainID, when set, must match the primary endpoint's chain id.
	ChainID uint64
	Logger  *slog.Logger
	// Timeout bounds every single remote call.
	Timeout time.Duration
	// Metrics, when set, counts failures of individual endpoints.
	Metrics *metrics.Metrics
}

// NewClient dials every endpoint in opts.Endpoints.
func NewClient(ctx context.Context, opts ClientOpts) (*Client, error) {
	if len(opts.Endpoints) == 0 {
		return nil, errors.New("no MegaETH endpoints configured")
	}

	clients := make([]*rpc.Client, 0, len(opts.Endpoints))
	for _, url := range opts.Endpoints {
		c, err := rpc.DialContext(ctx, url)
		if err != nil {
			for _, open := range clients {
				open.Close()
			}
			return nil, fmt.Errorf("failed to connect to MegaETH at %s: %w", url, err)
		}
		clients = append(clients, c)
	}
	return NewClientWithRPC(ctx, opts, clients...)
}

// NewClientWithRPC wraps already connected rpc clients, in priority order.
func NewClientWithRPC(ctx context.Context, opts ClientOpts, clients ...*rpc.Client) (*Client, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if len(clients) == 0 {
		return nil, errors.New("no MegaETH endpoints configured")
	}

	c := &Client{logger: opts.Logger, Opts: &opts}
	for i, rc := range clients {
		url := fmt.Sprintf("endpoint-%d", i)
		if i < len(opts.Endpoints) {
			url = opts.Endpoints[i]
		}
		c.endpoints = append(c.endpoints, &endpoint{
			url:  url,
			rpc:  rc,
			eth:  ethclient.NewClient(rc),
			geth: gethclient.New(rc),
		})
	}

	chainId, err := c.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chainId: %w", err)
	}
	if opts.ChainID != 0 && chainId.Uint64() != opts.ChainID {
		return nil, fmt.Errorf("%w: MegaETH endpoint reports %s, expected %d", types.ErrChainMismatch, chainId, opts.ChainID)
	}
	c.chainId = chainId

	opts.Logger.Info("Connected to MegaETH", "chainId", chainId, "endpoints", len(c.endpoints))

	if ok, _ := c.isContract(ctx, protocol.L2ToL1MessagePasserAddress); !ok {
		opts.Logger.Warn("contract not found for L2ToL1MessagePasser at given Address", "address", protocol.L2ToL1MessagePasserAddress.Hex(), "endpoint", c.primary().url)
	}

	return c, nil
}

func (c *Client) primary() *endpoint {
	return c.endpoints[0]
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.Opts.Timeout)
}

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	id, err := c.primary().eth.ChainID(ctx)
	return id, types.ClassifyRPCError("eth_chainId", err)
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	n, err := c.primary().eth.BlockNumber(ctx)
	return n, types.ClassifyRPCError("eth_blockNumber", err)
}

func (c *Client) isContract(ctx context.Context, addr common.Address) (bool, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	code, err := c.primary().eth.CodeAt(ctx, addr, nil)
	if err != nil {
		return false, types.ClassifyRPCError("eth_getCode", err)
	}
	return len(code) > 0, nil
}

func (c *Client) Close() {
	for _, e := range c.endpoints {
		e.rpc.Close()
	}
}
