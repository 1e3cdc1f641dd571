package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/megabridge/withdrawal-prover/config"
	"github.com/megabridge/withdrawal-prover/database"
	"github.com/megabridge/withdrawal-prover/ethereum"
	"github.com/megabridge/withdrawal-prover/game"
	"github.com/megabridge/withdrawal-prover/megaeth"
	"github.com/megabridge/withdrawal-prover/metrics"
	"github.com/megabridge/withdrawal-prover/outputroot"
	"github.com/megabridge/withdrawal-prover/prover"
	"github.com/megabridge/withdrawal-prover/withdrawal"
)

// app holds the connected clients and the assembled pipeline.
type app struct {
	cfg      *config.Config
	l1       *ethereum.Client
	l2       *megaeth.Client
	db       *database.Database
	metrics  *metrics.Metrics
	pipeline *prover.Pipeline
}

// connectL1 dials only the L1 endpoint, enough for portal status reads.
func connectL1(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*ethereum.Client, error) {
	return ethereum.NewClient(ctx, ethereum.ClientOpts{
		Endpoint:              cfg.L1RPCURL,
		OptimismPortalAddress: cfg.OptimismPortalAddress,
		PrivateKey:            cfg.PrivateKey,
		Logger:                logger.With("component", "ethereum"),
		Timeout:               cfg.RPCCallTimeout,
		GasLimitMultiplier:    cfg.GasLimitMultiplier,
	})
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, metrics: metrics.NewMetrics()}

	var err error
	a.l1, err = connectL1(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	a.l2, err = megaeth.NewClient(ctx, megaeth.ClientOpts{
		Endpoints: cfg.L2RPCURLs,
		ChainID:   cfg.L2ChainID,
		Logger:    logger.With("component", "megaeth"),
		Timeout:   cfg.RPCCallTimeout,
		Metrics:   a.metrics,
	})
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	if cfg.DatabaseURI != "" {
		a.db, err = database.NewDatabase(database.DatabaseOpts{
			URI:          cfg.DatabaseURI,
			DatabaseName: cfg.DatabaseName,
			Logger:       logger.With("component", "database"),
		})
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
		if err := a.db.CreateIndexes(ctx); err != nil {
			a.Close(ctx)
			return nil, err
		}
	} else {
		logger.Info("DATABASE_URI not set, proof history and root version hints are disabled")
	}

	respected, err := a.l1.RespectedGameType(ctx)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to read respected game type: %w", err)
	}
	logger.Info("Portal respects game type", "gameType", respected)

	verifierOpts := outputroot.VerifierOpts{
		Order:      cfg.RootVersionOrder,
		Deployment: cfg.Deployment(),
		HintTTL:    cfg.RootVersionTTL,
		Logger:     logger.With("component", "verifier"),
	}
	pipelineOpts := prover.PipelineOpts{
		Extractor: withdrawal.NewExtractor(a.l2, withdrawal.ExtractorOpts{
			Logger: logger.With("component", "extractor"),
		}),
		Locator: game.NewLocator(a.l1, game.LocatorOpts{
			Window:            cfg.GameLookbackWindow,
			Concurrency:       cfg.GameScanConcurrency,
			Selection:         cfg.GameSelection,
			RespectedGameType: &respected,
			Logger:            logger.With("component", "locator"),
		}),
		Claims: a.l1,
		Prover: prover.NewProver(a.l1, a.l2, prover.ProverOpts{
			L1ChainID:   cfg.L1ChainID,
			MinBalance:  cfg.MinL1BalanceWei,
			VerifyProof: megaeth.VerifyStorageProof,
			Logger:      logger.With("component", "prover"),
		}),
		Metrics: a.metrics,
		Logger:  logger.With("component", "pipeline"),
	}
	// Assign only when set so the interfaces stay nil without a database.
	if a.db != nil {
		verifierOpts.Store = a.db
		pipelineOpts.Recorder = a.db
	}
	pipelineOpts.Verifier = outputroot.NewVerifier(a.l2, a.l2, verifierOpts)

	a.pipeline, err = prover.NewPipeline(pipelineOpts)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) Close(ctx context.Context) {
	if a.l1 != nil {
		a.l1.Close()
	}
	if a.l2 != nil {
		a.l2.Close()
	}
	if a.db != nil {
		_ = a.db.Close(ctx)
	}
}
