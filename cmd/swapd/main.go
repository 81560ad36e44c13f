package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/uhyunpark/swappin/params"
	"github.com/uhyunpark/swappin/pkg/api"
	"github.com/uhyunpark/swappin/pkg/app/core/state"
	"github.com/uhyunpark/swappin/pkg/app/core/token"
	"github.com/uhyunpark/swappin/pkg/app/exchange"
	"github.com/uhyunpark/swappin/pkg/metrics"
	"github.com/uhyunpark/swappin/pkg/storage"
	"github.com/uhyunpark/swappin/pkg/stream"
	"github.com/uhyunpark/swappin/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("") // "" means load from .env in current directory

	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile, cfg.Node.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile, "level", cfg.Node.LogLevel)

	// ---- Genesis ----
	genesis, err := params.LoadGenesis(cfg.Node.GenesisFile)
	if err != nil {
		sugar.Fatalw("genesis_load_failed", "err", err)
	}
	resolved, err := genesis.Resolve(cfg.Node.Deployer)
	if err != nil {
		sugar.Fatalw("genesis_invalid", "err", err)
	}

	// ---- Storage ----
	if err := os.MkdirAll(cfg.Node.DataDir, 0o755); err != nil {
		sugar.Fatalw("data_dir_failed", "dir", cfg.Node.DataDir, "err", err)
	}
	store, err := storage.Open(cfg.DBPath())
	if err != nil {
		sugar.Fatalw("store_open_failed", "err", err)
	}
	defer store.Close()

	world, err := store.Load()
	if err != nil {
		sugar.Fatalw("state_load_failed", "err", err)
	}
	sugar.Infow("state_loaded", "height", world.Height(), "orders", world.OrderCount(), "path", cfg.DBPath())

	var journal exchange.Journal = storage.NewNopWAL()
	if cfg.Node.WALFile != "" {
		wal, err := storage.NewFileWAL(cfg.Node.WALFile)
		if err != nil {
			sugar.Fatalw("wal_open_failed", "path", cfg.Node.WALFile, "err", err)
		}
		defer wal.Close()
		journal = wal
	}

	// ---- Metrics ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	// ---- Event stream (optional) ----
	var forwarder *stream.Forwarder
	if len(cfg.Stream.KafkaBrokers) > 0 {
		pub := stream.NewKafkaPublisher(cfg.Stream.KafkaBrokers, cfg.Stream.KafkaTopic)
		defer pub.Close()
		forwarder = stream.NewForwarder(pub, 4096, sugar)
		wg.Add(1)
		go func() {
			defer wg.Done()
			forwarder.Run(ctx)
		}()
		sugar.Infow("stream_enabled", "brokers", cfg.Stream.KafkaBrokers, "topic", cfg.Stream.KafkaTopic)
	}

	// ---- App ----
	opts := []exchange.Option{
		exchange.WithStore(store),
		exchange.WithJournal(journal),
		exchange.WithMetrics(m),
	}
	if cfg.Ledger.EnforceOrderRate {
		opts = append(opts, exchange.WithRateEnforcement())
	}
	if forwarder != nil {
		opts = append(opts, exchange.OnCommit(func(cs *state.ChangeSet) {
			forwarder.Enqueue(cs.Events)
		}))
	}

	// The API hub must exist before the app so it can be registered as a commit hook
	var apiServer *api.Server
	opts = append(opts, exchange.OnCommit(func(cs *state.ChangeSet) {
		apiServer.Hub().PublishCommit(cs)
	}))

	app := exchange.New(world, token.NewRegistry(), resolved.Book, sugar, opts...)
	apiServer = api.NewServer(app, cfg.API, reg, sugar)

	if err := app.InitGenesis(resolved); err != nil {
		sugar.Fatalw("genesis_failed", "err", err)
	}
	if err := app.CheckSupply(); err != nil {
		sugar.Fatalw("supply_mismatch", "err", err)
	}

	st := app.Status()
	sugar.Infow("node_starting",
		"custody", st.Custody.Hex(),
		"tokens", st.Tokens,
		"height", st.Height,
		"state_root", st.Root.Hex(),
		"enforce_order_rate", cfg.Ledger.EnforceOrderRate)

	// ---- API Server ----
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := apiServer.Start(ctx, cfg.API.Addr); err != nil && ctx.Err() == nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	// Progress logging loop
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	lastHeight := st.Height

	for {
		select {
		case <-ctx.Done():
			sugar.Info("shutting_down")
			wg.Wait()
			return
		case <-ticker.C:
			st := app.Status()
			if st.Height != lastHeight {
				sugar.Infow("ledger_progress",
					"height", st.Height,
					"orders", st.Orders,
					"open_orders", st.OpenOrders,
					"calls_since_last_log", st.Height-lastHeight)
				lastHeight = st.Height
			}
		}
	}
}
