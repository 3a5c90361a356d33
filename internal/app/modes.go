package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	s3blob "github.com/valkzuh/wagerbot/internal/blob/s3"
	"github.com/valkzuh/wagerbot/internal/domain"
	"github.com/valkzuh/wagerbot/internal/service"
)

// archiveInterval is how often the S3 archiver scans for retired records.
const archiveInterval = 6 * time.Hour

var (
	wagerSvcMu sync.Mutex
	wagerSvc   *service.WagerService
)

// WagerService returns the running escrow engine so a chat front-end embedded
// in the same process can create, accept, and end wagers. Nil until a wager
// mode has started.
func WagerService() *service.WagerService {
	wagerSvcMu.Lock()
	defer wagerSvcMu.Unlock()
	return wagerSvc
}

// SetMatchController attaches the game engine to the running escrow engine.
func SetMatchController(mc domain.MatchController) {
	if svc := WagerService(); svc != nil {
		svc.SetMatchController(mc)
	}
}

// buildWagerService assembles the escrow engine from wired dependencies.
func (a *App) buildWagerService(deps *Dependencies) *service.WagerService {
	registry := service.NewRegistry(a.logger)
	settler := service.NewSettlementEngine(deps.Ledger, a.cfg.Wager.FeeWallet, deps.Notifier, a.logger)
	svc := service.NewWagerService(
		service.WagerParams{
			MinTokens:     a.cfg.Wager.MinTokens,
			MaxTokens:     a.cfg.Wager.MaxTokens,
			FeeBps:        a.cfg.Wager.FeeBps,
			AcceptWindow:  a.cfg.Wager.AcceptWindow.Duration,
			FundWindow:    a.cfg.Wager.FundWindow.Duration,
			PollInterval:  a.cfg.Wager.PollInterval.Duration,
			SigFetchLimit: a.cfg.Wager.SigFetchLimit,
			MinGasBalance: a.cfg.Wager.MinGasBalance,
		},
		deps.EscrowTables,
		deps.Roster,
		deps.Ledger,
		registry,
		settler,
		deps.Announcer,
		deps.WagerStore,
		a.logger,
	)

	wagerSvcMu.Lock()
	wagerSvc = svc
	wagerSvcMu.Unlock()
	return svc
}

// startWager runs the wager subsystem goroutines on g.
func (a *App) startWager(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	svc := a.buildWagerService(deps)

	if deps.AccountFeed != nil {
		deps.AccountFeed.SetHandler(svc.NotifyAccountActivity)
		g.Go(func() error {
			err := deps.AccountFeed.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return err
		})
	}

	// Stop timers and poll loops without settling; escrowed funds stay put
	// for operator recovery after restart.
	g.Go(func() error {
		<-ctx.Done()
		svc.Registry().Shutdown()
		return nil
	})
}

// startDistributor runs the fee distributor on g.
func (a *App) startDistributor(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	if deps.Treasury == nil {
		return fmt.Errorf("app: fee distribution requires a treasury key")
	}
	dist := service.NewFeeDistributor(
		service.DistributorParams{
			Interval:       a.cfg.Fees.Interval.Duration,
			MinPoolTokens:  a.cfg.Fees.MinPoolTokens,
			PoolShareNum:   a.cfg.Fees.PoolShareNum,
			PoolShareDen:   a.cfg.Fees.PoolShareDen,
			CarryRemainder: a.cfg.Fees.CarryRemainder,
			Concurrency:    a.cfg.Fees.Concurrency,
			FeeWallet:      a.cfg.Wager.FeeWallet,
		},
		deps.Treasury,
		deps.Ledger,
		deps.Roster,
		deps.StateStore,
		deps.RunLock,
		deps.DistributionStore,
		deps.Notifier,
		a.logger,
	)
	g.Go(func() error {
		err := dist.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
	return nil
}

// startArchiver runs the retention archiver when both S3 and the database are
// wired.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.BlobWriter == nil || !a.cfg.Postgres.Enabled {
		return
	}
	retention := time.Duration(a.cfg.S3.RetentionDays) * 24 * time.Hour
	arch := s3blob.NewArchiver(deps.BlobWriter, deps.WagerStore, deps.DistributionStore, retention, a.logger)
	g.Go(func() error {
		err := arch.Run(ctx, archiveInterval)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
}

// WagerMode runs the escrow engine only.
func (a *App) WagerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting wager mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startWager(ctx, g, deps)
	a.startArchiver(ctx, g, deps)
	return g.Wait()
}

// AirdropMode runs the fee distributor only.
func (a *App) AirdropMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting airdrop mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startDistributor(ctx, g, deps); err != nil {
		return err
	}
	a.startArchiver(ctx, g, deps)
	return g.Wait()
}

// FullMode runs the escrow engine and the fee distributor together.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startWager(ctx, g, deps)
	if a.cfg.Fees.Enabled {
		if err := a.startDistributor(ctx, g, deps); err != nil {
			return err
		}
	}
	a.startArchiver(ctx, g, deps)
	return g.Wait()
}
