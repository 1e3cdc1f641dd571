package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"regexp"
	"runtime"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lmittmann/tint"
	"github.com/urfave/cli/v2"

	"github.com/megabridge/withdrawal-prover/api"
	"github.com/megabridge/withdrawal-prover/config"
	"github.com/megabridge/withdrawal-prover/prover"
	"github.com/megabridge/withdrawal-prover/types"
	"github.com/megabridge/withdrawal-prover/watcher"
)

// Version will be set at build time
var Version = "development"

var hashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

func main() {
	// Create context that will be canceled on SIGINT or SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		fmt.Fprintf(os.Stderr, "\nReceived signal: %v\nShutting down gracefully...\n", sig)
		cancel()
	}()

	if err := newCLI().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newCLI() *cli.App {
	txFlag := &cli.StringFlag{
		Name:     "tx",
		Usage:    "hash of the MegaETH transaction that initiated the withdrawal",
		Required: true,
	}

	return &cli.App{
		Name:    "withdrawal-prover",
		Usage:   "prove MegaETH withdrawals on Ethereum",
		Version: Version,
		Commands: []*cli.Command{
			{
				Name:  "prove",
				Usage: "build and submit proveWithdrawalTransaction for a withdrawal",
				Flags: []cli.Flag{
					txFlag,
					&cli.BoolFlag{
						Name:  "wait",
						Usage: "wait for the prove transaction to be included",
					},
				},
				Action: proveAction,
			},
			{
				Name:   "params",
				Usage:  "print proveWithdrawalTransaction arguments as JSON without submitting",
				Flags:  []cli.Flag{txFlag},
				Action: paramsAction,
			},
			{
				Name:  "status",
				Usage: "show the portal's proof and finalization state of a withdrawal",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "withdrawal-hash",
						Usage:    "withdrawal hash as emitted by MessagePassed",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "submitter",
						Usage: "address whose proof to read, defaults to the configured signer",
					},
				},
				Action: statusAction,
			},
			{
				Name:   "serve",
				Usage:  "serve the HTTP API",
				Action: serveAction,
			},
			{
				Name:  "watch",
				Usage: "periodically retry withdrawals that were waiting for a dispute game",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "assemble proofs without submitting them",
					},
				},
				Action: watchAction,
			},
		},
	}
}

// setup loads configuration and installs the tint logger as the default.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      cfg.LogLevel,
		TimeFormat: time.DateTime,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting withdrawal-prover ("+Version+")",
		"Go Version", runtime.Version(),
		"Operating System", runtime.GOOS,
		"Architecture", runtime.GOARCH)

	return cfg, logger, nil
}

func parseHashFlag(c *cli.Context, name string) (common.Hash, error) {
	v := c.String(name)
	if !hashPattern.MatchString(v) {
		return common.Hash{}, fmt.Errorf("--%s: invalid hash %q", name, v)
	}
	return common.HexToHash(v), nil
}

func proveAction(c *cli.Context) error {
	txHash, err := parseHashFlag(c, "tx")
	if err != nil {
		return err
	}
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	if cfg.PrivateKey == nil {
		return errors.New("PRIVATE_KEY is required to submit proofs")
	}

	a, err := newApp(c.Context, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	result, err := a.pipeline.Run(c.Context, txHash, prover.RunOpts{})
	if err != nil {
		return outcome(logger, result, err)
	}

	logger.Info("Withdrawal proof submitted", "l1TxHash", result.L1TxHash.Hex(), "withdrawalHash", result.Withdrawal.WithdrawalHash.Hex())
	if c.Bool("wait") {
		receipt, err := a.l1.WaitForReceipt(c.Context, *result.L1TxHash, 5*time.Second)
		if err != nil {
			return err
		}
		logger.Info("Prove transaction included", "block", receipt.BlockNumber, "gasUsed", receipt.GasUsed)
	}
	return nil
}

func paramsAction(c *cli.Context) error {
	txHash, err := parseHashFlag(c, "tx")
	if err != nil {
		return err
	}
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	a, err := newApp(c.Context, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	result, err := a.pipeline.Run(c.Context, txHash, prover.RunOpts{DryRun: true})
	if err != nil {
		return outcome(logger, result, err)
	}

	params, err := types.NewProveParams(result)
	if err != nil {
		return err
	}
	return printJSON(params)
}

func statusAction(c *cli.Context) error {
	withdrawalHash, err := parseHashFlag(c, "withdrawal-hash")
	if err != nil {
		return err
	}
	var submitter common.Address
	if v := c.String("submitter"); v != "" {
		if !common.IsHexAddress(v) {
			return fmt.Errorf("--submitter: invalid address %q", v)
		}
		submitter = common.HexToAddress(v)
	}

	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	l1, err := connectL1(c.Context, cfg, logger)
	if err != nil {
		return err
	}
	defer l1.Close()

	status, err := l1.WithdrawalStatus(c.Context, withdrawalHash, submitter)
	if err != nil {
		return err
	}
	return printJSON(status)
}

func serveAction(c *cli.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	a, err := newApp(c.Context, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	opts := api.ServerOpts{
		Logger:   logger.With("component", "api-server"),
		Port:     cfg.APIPort,
		Pipeline: a.pipeline,
		Status:   a.l1,
		Metrics:  a.metrics,
	}
	if a.db != nil {
		opts.Store = a.db
	}
	server, err := api.NewServer(opts)
	if err != nil {
		return fmt.Errorf("failed to create api server: %w", err)
	}
	return server.Start(c.Context)
}

func watchAction(c *cli.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	if cfg.DatabaseURI == "" {
		return errors.New("DATABASE_URI is required to watch pending withdrawals")
	}
	dryRun := c.Bool("dry-run")
	if !dryRun && cfg.PrivateKey == nil {
		return errors.New("PRIVATE_KEY is required to submit proofs, use --dry-run to only assemble them")
	}

	a, err := newApp(c.Context, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	w := watcher.NewWatcher(a.db, a.pipeline, watcher.WatcherOpts{
		Interval: cfg.WatchInterval,
		DryRun:   dryRun,
		Logger:   logger.With("component", "watcher"),
	})
	return w.Run(c.Context)
}

// outcome logs expected results and returns nil for them so the process
// exits 0. Every other error is returned unchanged.
func outcome(logger *slog.Logger, result *types.ProveResult, err error) error {
	if !types.IsExpectedOutcome(err) {
		return err
	}
	args := []any{"status", result.Status, "reason", err}
	if result.Withdrawal != nil {
		args = append(args, "withdrawalHash", result.Withdrawal.WithdrawalHash.Hex(), "l2Block", result.Withdrawal.L2BlockNumber)
	}
	logger.Info("Nothing to prove", args...)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
