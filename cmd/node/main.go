package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/venuelabs/venue/params"
	"github.com/venuelabs/venue/pkg/api"
	venueapp "github.com/venuelabs/venue/pkg/app/venue"
	"github.com/venuelabs/venue/pkg/storage"
	"github.com/venuelabs/venue/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	// Setup logging (write to both console and file)
	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile)

	// ---- Storage ----
	store, err := storage.NewStore(cfg.Node.DBPath)
	if err != nil {
		sugar.Fatalw("store_open_failed", "path", cfg.Node.DBPath, "err", err)
	}
	defer store.Close()

	// ---- Clock ----
	// The devnet ticker below advances block height; a production host
	// would drive this from its own commit notifications.
	clock := util.NewChainClock(0)

	// ---- App: trading venue ----
	app := venueapp.NewApp(venueapp.Config{
		VenueAccount:  cfg.Venue.VenueAccount,
		Authority:     cfg.Venue.Authority,
		Distributor:   cfg.Venue.Distributor,
		FeeAsset:      cfg.Venue.FeeAsset,
		TradingFeeBps: cfg.Venue.TradingFeeBps,
	}, clock, store)

	if err := restoreState(app, store); err != nil {
		sugar.Fatalw("state_restore_failed", "err", err)
	}
	sugar.Infow("state_restored",
		"orders", app.OrderCount(),
		"proposals", app.ProposalCount(),
		"fee_bps", app.FeeBps(),
		"total_fees", app.TotalFees())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- API Server ----
	apiServer := api.NewServer(app, clock, sugar)
	go func() {
		if err := apiServer.Start(cfg.Node.APIAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	sugar.Infow("node_starting",
		"api_addr", cfg.Node.APIAddr,
		"db_path", cfg.Node.DBPath,
		"fee_asset", cfg.Venue.FeeAsset,
		"block_time_ms", cfg.Node.BlockTimeMs)

	// ---- Block ticker ----
	ticker := time.NewTicker(time.Duration(cfg.Node.BlockTimeMs) * time.Millisecond)
	defer ticker.Stop()

	logInterval := int64(1000)
	lastLogged := int64(0)

	for {
		select {
		case <-ctx.Done():
			sugar.Info("node_shutting_down")
			return
		case <-ticker.C:
			clock.Advance(1)
			if h := clock.CurrentBlock(); h-lastLogged >= logInterval {
				sugar.Infow("chain_progress", "height", h, "orders", app.OrderCount())
				lastLogged = h
			}
		}
	}
}

// restoreState reloads persisted venue state into the app.
func restoreState(app *venueapp.App, store *storage.Store) error {
	orders, err := store.LoadAllOrders()
	if err != nil {
		return err
	}
	totals, accounts, distributor, err := store.LoadVault()
	if err != nil {
		return err
	}
	feeBps, err := store.LoadFeeBps()
	if err != nil {
		return err
	}
	proposals, err := store.LoadAllProposals()
	if err != nil {
		return err
	}
	votes, err := store.LoadAllVotes()
	if err != nil {
		return err
	}
	return app.Restore(orders, totals, accounts, distributor, feeBps, proposals, votes)
}
