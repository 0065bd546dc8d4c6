// internal/app/core.go
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/sonic-defi/internal/allowance"
	"github.com/rovshanmuradov/sonic-defi/internal/api"
	"github.com/rovshanmuradov/sonic-defi/internal/balance"
	"github.com/rovshanmuradov/sonic-defi/internal/blockchain"
	"github.com/rovshanmuradov/sonic-defi/internal/blockchain/ethrpc"
	"github.com/rovshanmuradov/sonic-defi/internal/config"
	"github.com/rovshanmuradov/sonic-defi/internal/dex/quote"
	"github.com/rovshanmuradov/sonic-defi/internal/dex/swap"
	"github.com/rovshanmuradov/sonic-defi/internal/events"
	"github.com/rovshanmuradov/sonic-defi/internal/flow"
	"github.com/rovshanmuradov/sonic-defi/internal/gas"
	"github.com/rovshanmuradov/sonic-defi/internal/liquidity"
	"github.com/rovshanmuradov/sonic-defi/internal/marketplace"
	"github.com/rovshanmuradov/sonic-defi/internal/storage"
	"github.com/rovshanmuradov/sonic-defi/internal/storage/memory"
	"github.com/rovshanmuradov/sonic-defi/internal/storage/postgres"
	"github.com/rovshanmuradov/sonic-defi/internal/token"
	"github.com/rovshanmuradov/sonic-defi/internal/transaction"
	"github.com/rovshanmuradov/sonic-defi/internal/utils/metrics"
	"github.com/rovshanmuradov/sonic-defi/internal/wallet"
)

const (
	busBufferSize      = 256
	balanceConcurrency = 8
	busDrainTimeout    = 5 * time.Second
)

// Options tunes how the core is assembled. Every field is optional.
type Options struct {
	// Backend replaces the dialed RPC pool.
	Backend blockchain.Backend
	// Wallet is a local key exposed as the session provider.
	Wallet *wallet.Wallet
	// Registerer receives the prometheus metrics.
	Registerer prometheus.Registerer
	Logger     *zap.Logger
}

// Core holds every component of the dashboard core over a single backend.
type Core struct {
	Config     *config.Config
	Backend    blockchain.Backend
	Metrics    *metrics.Collector
	Registry   *token.Registry
	Importer   *token.Importer
	Quotes     *quote.Engine
	Gas        *gas.Estimator
	Tx         *transaction.Manager
	Bus        *events.Bus
	Sessions   *wallet.Manager
	Swaps      *swap.Executor
	Balances   *balance.Fetcher
	Allowances *allowance.Coordinator
	Pools      *liquidity.Reader
	PoolSpecs  []liquidity.PoolSpec
	Liquidity  *liquidity.Provider
	Market     *marketplace.Marketplace
	Journal    storage.Storage
	Flow       *flow.SwapFlow

	logger   *zap.Logger
	shutdown *ShutdownHandler
}

// New собирает ядро. ctx ограничивает только подключение к RPC;
// фоновые проверки нод живут до Close.
func New(ctx context.Context, cfg *config.Config, opts Options) (_ *Core, err error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Core{
		Config:   cfg,
		Metrics:  metrics.NewCollector(opts.Registerer),
		logger:   logger,
		shutdown: NewShutdownHandler(logger),
	}
	defer func() {
		if err != nil {
			_ = c.shutdown.Shutdown(context.Background())
		}
	}()

	if err := c.connect(ctx, opts.Backend); err != nil {
		return nil, err
	}

	c.Registry, err = token.NewRegistry(cfg.Tokens, cfg.Contracts.WrappedNative)
	if err != nil {
		return nil, fmt.Errorf("token registry: %w", err)
	}
	if err := c.openImporter(); err != nil {
		return nil, err
	}

	c.Quotes = quote.NewDefaultEngine(c.Backend, c.Registry, cfg, c.Metrics, logger)
	c.Gas = gas.NewEstimator(c.Backend, cfg.Gas.FallbackPriceGwei, c.Quotes,
		cfg.Network.NativeCurrency.Symbol, c.Metrics, logger)
	c.Tx = transaction.NewManager(c.Backend, transaction.Options{
		ConfirmTimeout: cfg.Transactions.ConfirmTimeout,
		PollInterval:   cfg.Transactions.PollInterval,
	}, c.Metrics, logger)

	c.Bus = events.NewBus(logger, busBufferSize)
	c.shutdown.AddFunc("event-bus", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), busDrainTimeout)
		defer cancel()
		return c.Bus.Shutdown(ctx)
	})

	var provider wallet.Provider
	if opts.Wallet != nil {
		provider = wallet.NewLocalProvider(opts.Wallet, c.Backend, logger)
	}
	c.Sessions = wallet.NewManager(provider, c.Backend, cfg.Network, c.Bus, c.Metrics, logger)

	c.Swaps = swap.NewExecutor(c.Backend, c.Registry, c.Gas, c.Tx, c.Sessions,
		swap.OptionsFromConfig(cfg), c.Metrics, logger)
	c.Balances = balance.NewFetcher(c.Backend, balanceConcurrency, logger)
	c.Allowances = allowance.NewCoordinator(c.Backend, c.Tx, c.Sessions, logger)

	c.Pools = liquidity.NewReader(c.Backend, c.Metrics, logger)
	c.PoolSpecs, err = liquidity.PoolSpecsFromConfig(c.Registry, cfg.Contracts.Pools)
	if err != nil {
		return nil, fmt.Errorf("pool specs: %w", err)
	}
	c.Liquidity = liquidity.NewProvider(c.Allowances, c.Sessions, cfg.Swap.SimulatedDelay, c.Metrics, logger)
	c.Market = marketplace.New(c.Backend, cfg.Contracts.Marketplace, c.Allowances, c.Gas, c.Tx, c.Sessions,
		cfg.Swap.SimulatedDelay, c.Metrics, c.Bus, logger)

	if err := c.openJournal(); err != nil {
		return nil, err
	}

	c.Flow = flow.NewSwapFlow(flow.Deps{
		Sessions:        c.Sessions,
		Registry:        c.Registry,
		Quotes:          c.Quotes,
		Swaps:           c.Swaps,
		Allowances:      c.Allowances,
		Balances:        c.Balances,
		Journal:         c.Journal,
		Bus:             c.Bus,
		SlippagePercent: cfg.Swap.SlippagePercent,
		Logger:          logger,
	})

	logger.Info("Core assembled",
		zap.Uint64("chain_id", cfg.Network.ChainID),
		zap.Int("tokens", len(c.Registry.All())),
		zap.Int("pools", len(c.PoolSpecs)),
		zap.Bool("marketplace_simulated", c.Market.Simulated()))
	return c, nil
}

func (c *Core) connect(ctx context.Context, backend blockchain.Backend) error {
	if backend != nil {
		c.Backend = backend
		return nil
	}

	client, err := ethrpc.Dial(ctx, c.Config.Network.RPCURLs(), c.Config.Network.ChainID, c.Metrics, c.logger)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", c.Config.Network.Name, err)
	}
	healthCtx, stopHealth := context.WithCancel(context.Background())
	client.StartHealthCheck(healthCtx)
	c.shutdown.AddFunc("rpc", func() error {
		stopHealth()
		client.Close()
		return nil
	})
	c.Backend = client
	return nil
}

func (c *Core) openImporter() error {
	if c.Config.RedisURL == "" {
		c.Importer = token.NewImporter(c.Backend, nil, c.logger)
		return nil
	}
	rdb, err := token.NewRedisClient(c.Config.RedisURL)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	c.shutdown.Add("redis", rdb)
	c.Importer = token.NewImporter(c.Backend, rdb, c.logger)
	return nil
}

// openJournal выбирает postgres, если задан postgres_url, иначе память.
func (c *Core) openJournal() error {
	if c.Config.PostgresURL == "" {
		c.Journal = memory.New()
		c.logger.Info("Activity journal kept in memory")
	} else {
		db, err := postgres.NewStorage(c.Config.PostgresURL, c.logger)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		c.Journal = db
	}
	c.shutdown.Add("journal", c.Journal)
	if err := c.Journal.RunMigrations(); err != nil {
		return fmt.Errorf("journal migrations: %w", err)
	}
	return nil
}

// APIDeps returns the read-only view the HTTP API serves.
func (c *Core) APIDeps(gatherer prometheus.Gatherer) api.Deps {
	return api.Deps{
		Registry:    c.Registry,
		Importer:    c.Importer,
		Quotes:      c.Quotes,
		Gas:         c.Swaps,
		NFTGas:      c.Market,
		ApprovalGas: c.Gas,
		Balances:    c.Balances,
		Allowances:  c.Allowances,
		Pools:       c.Pools,
		PoolSpecs:   c.PoolSpecs,
		Listings:    c.Market,
		DefaultNFT:  c.Config.Contracts.NFTCollection,
		Journal:     c.Journal,
		Gatherer:    gatherer,
		Network:     c.Config.Network,
		Logger:      c.logger,
	}
}

// OnClose registers an extra service closed before the core components.
func (c *Core) OnClose(name string, fn func() error) {
	c.shutdown.AddFunc(name, fn)
}

// Close releases every component in reverse order of creation.
func (c *Core) Close(ctx context.Context) error {
	c.Sessions.Disconnect()
	return c.shutdown.Shutdown(ctx)
}
