// Package game finds the dispute game that attests to a given L2 block.
package game

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/megabridge/withdrawal-prover/protocol"
	"github.com/megabridge/withdrawal-prover/types"
)

type Reader interface {
	GameCount(ctx context.Context) (uint64, error)
	GameAtIndex(ctx context.Context, index uint64) (types.GameEntry, error)
	GameL2BlockNumber(ctx context.Context, proxy common.Address) (uint64, error)
	GameStatus(ctx context.Context, proxy common.Address) (uint8, error)
}

// Selection chooses among games that cover the target block.
type Selection string

const (
	// SelectLatest picks the highest covering index.
	SelectLatest Selection = "latest"
	// SelectEarliest walks down from the highest covering index and picks the
	// lowest index of that contiguous covering run.
	SelectEarliest Selection = "earliest"
)

func ParseSelection(s string) (Selection, error) {
	switch Selection(s) {
	case SelectLatest, SelectEarliest:
		return Selection(s), nil
	case "":
		return SelectLatest, nil
	}
	return "", fmt.Errorf("unknown game selection %q", s)
}

type Locator struct {
	reader Reader
	opts   LocatorOpts
	logger *slog.Logger
}

type LocatorOpts struct {
	// Window is how many of the newest games are examined.
	Window uint64
	// Concurrency bounds parallel reads. 1 scans sequentially and stops at
	// the first covering game.
	Concurrency int
	Selection   Selection
	// RespectedGameType, when set, excludes games of any other type.
	RespectedGameType *uint32
	Logger            *slog.Logger
}

func NewLocator(reader Reader, opts LocatorOpts) *Locator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Window == 0 {
		opts.Window = protocol.DefaultGameLookback
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Selection == "" {
		opts.Selection = SelectLatest
	}
	return &Locator{reader: reader, opts: opts, logger: opts.Logger}
}

// Locate returns a game whose l2BlockNumber is at least block. The failure
// wraps types.ErrNoCoveringGame when no game in the window qualifies.
func (l *Locator) Locate(ctx context.Context, block uint64) (*types.DisputeGame, error) {
	count, err := l.reader.GameCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read game count: %w", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: factory has no games", types.ErrNoCoveringGame)
	}

	low := uint64(0)
	if count > l.opts.Window {
		low = count - l.opts.Window
	}
	l.logger.Debug("Scanning dispute games", "target", block, "from", count-1, "to", low)

	if l.opts.Concurrency == 1 && l.opts.Selection == SelectLatest {
		return l.scanSequential(ctx, block, low, count)
	}

	games, err := l.fetchWindow(ctx, low, count)
	if err != nil {
		return nil, err
	}
	monotonic := isMonotonic(games)
	if !monotonic {
		l.logger.Warn("Game checkpoints are not monotonic in the window, examining every game", "from", low, "to", count-1)
	}
	return l.selectFrom(ctx, games, block, low, monotonic)
}

// scanSequential walks down from the newest game and stops at the first
// usable covering game. It never stops early on a non-covering game.
func (l *Locator) scanSequential(ctx context.Context, block, low, count uint64) (*types.DisputeGame, error) {
	for i := count; i > low; i-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		g, err := l.fetchGame(ctx, i-1)
		if err != nil {
			return nil, err
		}
		if g == nil || g.L2BlockNumber < block {
			continue
		}
		ok, err := l.usable(ctx, g)
		if err != nil {
			return nil, err
		}
		if ok {
			return l.selected(g), nil
		}
	}
	return nil, l.noCoveringGame(block, low, count)
}

// fetchWindow reads every game in [low, count) concurrently. Entries are
// stored by position so the result does not depend on arrival order.
func (l *Locator) fetchWindow(ctx context.Context, low, count uint64) ([]*types.DisputeGame, error) {
	games := make([]*types.DisputeGame, count-low)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.Concurrency)
	for i := low; i < count; i++ {
		g.Go(func() error {
			game, err := l.fetchGame(gctx, i)
			if err != nil {
				return err
			}
			games[i-low] = game
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return games, nil
}

// fetchGame reads one factory entry and its checkpoint. It returns nil for
// games excluded by type.
func (l *Locator) fetchGame(ctx context.Context, index uint64) (*types.DisputeGame, error) {
	entry, err := l.reader.GameAtIndex(ctx, index)
	if err != nil {
		return nil, fmt.Errorf("failed to read game %d: %w", index, err)
	}
	if l.opts.RespectedGameType != nil && entry.GameType != *l.opts.RespectedGameType {
		l.logger.Debug("Skipping game of other type", "index", index, "gameType", entry.GameType)
		return nil, nil
	}

	block, err := l.reader.GameL2BlockNumber(ctx, entry.Proxy)
	if err != nil {
		return nil, fmt.Errorf("failed to read l2BlockNumber of game %d: %w", index, err)
	}
	l.logger.Debug("Examined game", "index", index, "proxy", entry.Proxy.Hex(), "l2Block", block)
	return &types.DisputeGame{GameEntry: entry, L2BlockNumber: block}, nil
}

// selectFrom applies the selection rule over a fully fetched window, ordered
// by ascending index. SelectEarliest only stops at the end of the top covering
// run when the window is monotonic; otherwise it takes the lowest covering
// index in the whole window.
func (l *Locator) selectFrom(ctx context.Context, games []*types.DisputeGame, block, low uint64, monotonic bool) (*types.DisputeGame, error) {
	var candidates []*types.DisputeGame
	for i := len(games) - 1; i >= 0; i-- {
		g := games[i]
		if g == nil {
			continue
		}
		if g.L2BlockNumber >= block {
			candidates = append(candidates, g)
			continue
		}
		if l.opts.Selection == SelectEarliest && monotonic && len(candidates) > 0 {
			break
		}
	}

	if l.opts.Selection == SelectEarliest {
		for i, j := 0, len(candidates)-1; i < j; i, j = i+1, j-1 {
			candidates[i], candidates[j] = candidates[j], candidates[i]
		}
	}

	for _, g := range candidates {
		ok, err := l.usable(ctx, g)
		if err != nil {
			return nil, err
		}
		if ok {
			return l.selected(g), nil
		}
	}

	return nil, l.noCoveringGame(block, low, low+uint64(len(games)))
}

// usable reports whether a covering game can back a proof. Games the
// challenger won are rejected by the portal.
func (l *Locator) usable(ctx context.Context, g *types.DisputeGame) (bool, error) {
	status, err := l.reader.GameStatus(ctx, g.Proxy)
	if err != nil {
		return false, fmt.Errorf("failed to read status of game %d: %w", g.Index, err)
	}
	if status == protocol.GameStatusChallengerWins {
		l.logger.Warn("Skipping covering game resolved for the challenger", "index", g.Index, "proxy", g.Proxy.Hex())
		return false, nil
	}
	return true, nil
}

func (l *Locator) selected(g *types.DisputeGame) *types.DisputeGame {
	l.logger.Info("Selected dispute game", "index", g.Index, "proxy", g.Proxy.Hex(), "l2Block", g.L2BlockNumber, "gameType", g.GameType)
	return g
}

func (l *Locator) noCoveringGame(block, low, count uint64) error {
	return fmt.Errorf("%w: block %d, games %d..%d", types.ErrNoCoveringGame, block, low, count-1)
}

// isMonotonic reports whether checkpoints never decrease as the index grows.
func isMonotonic(games []*types.DisputeGame) bool {
	var prev *types.DisputeGame
	for _, g := range games {
		if g == nil {
			continue
		}
		if prev != nil && g.L2BlockNumber < prev.L2BlockNumber {
			return false
		}
		prev = g
	}
	return true
}
