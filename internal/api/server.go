// internal/api/server.go
package api

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/sonic-defi/internal/blockchain/contracts"
	"github.com/rovshanmuradov/sonic-defi/internal/config"
	"github.com/rovshanmuradov/sonic-defi/internal/export"
	"github.com/rovshanmuradov/sonic-defi/internal/liquidity"
	"github.com/rovshanmuradov/sonic-defi/internal/marketplace"
	"github.com/rovshanmuradov/sonic-defi/internal/storage"
	"github.com/rovshanmuradov/sonic-defi/internal/token"
	"github.com/rovshanmuradov/sonic-defi/internal/types"
)

const (
	requestTimeout    = 30 * time.Second
	defaultPageSize   = 50
	maxPageSize       = 500
	maxExportRows     = 10_000
	readHeaderTimeout = 5 * time.Second
)

// Компоненты ядра, которые API только читает.
type (
	Quoter interface {
		GetSwapQuote(ctx context.Context, tokenIn, tokenOut, amountIn string) (*types.SwapQuote, error)
	}
	SwapGasEstimator interface {
		EstimateGas(ctx context.Context, tokenIn, tokenOut, amountIn, trader string) (*types.GasEstimate, error)
	}
	BalanceReader interface {
		FetchBalances(ctx context.Context, owner string, tokens []types.Token) (map[string]string, error)
	}
	AllowanceReader interface {
		GetAllowance(ctx context.Context, token, owner, spender string) string
	}
	TokenImporter interface {
		Import(ctx context.Context, addr string) (*types.Token, error)
	}
	ListingReader interface {
		GetListing(ctx context.Context, nft, tokenID string) (*contracts.Listing, error)
	}
	NFTGasEstimator interface {
		EstimateGas(ctx context.Context, req marketplace.GasRequest) (*types.GasEstimate, error)
	}
	TokenApprovalEstimator interface {
		EstimateTokenApproval(ctx context.Context, token string, spender common.Address, amount *big.Int, from common.Address) *types.GasEstimate
	}
	PoolReader interface {
		FetchPools(ctx context.Context, owner string, specs []liquidity.PoolSpec) []types.LiquidityPool
	}
)

// Deps собирает зависимости сервера. Importer, Listings, NFTGas, ApprovalGas,
// Journal и Gatherer необязательны. DefaultNFT подставляется, когда запрос
// не указывает коллекцию.
type Deps struct {
	Registry    *token.Registry
	Importer    TokenImporter
	Quotes      Quoter
	Gas         SwapGasEstimator
	NFTGas      NFTGasEstimator
	ApprovalGas TokenApprovalEstimator
	Balances    BalanceReader
	Allowances  AllowanceReader
	Pools       PoolReader
	PoolSpecs   []liquidity.PoolSpec
	Listings    ListingReader
	DefaultNFT  string
	Journal     storage.Storage
	Gatherer    prometheus.Gatherer
	Network     types.Network
	Logger      *zap.Logger
}

// Server is the read-only HTTP surface over the core components.
type Server struct {
	d          Deps
	cfg        config.APIConfig
	logger     *zap.Logger
	exporter   *export.ActivityExporter
	handler    http.Handler
	httpServer *http.Server
}

func NewServer(cfg config.APIConfig, d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	s := &Server{d: d, cfg: cfg, logger: d.Logger.Named("api")}
	s.exporter = export.NewActivityExporter(s.logger)

	mux := chi.NewMux()
	mux.Use(middleware.RequestID)
	mux.Use(requestIDHeader)
	mux.Use(middleware.RealIP)
	mux.Use(requestLogger(s.logger))
	mux.Use(recoverer(s.logger))
	mux.Use(middleware.Timeout(requestTimeout))
	if cfg.RateLimit > 0 {
		mux.Use(httprate.LimitByIP(cfg.RateLimit, time.Minute))
	}

	mux.Get("/healthz", s.handleHealth)
	if d.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}
	mux.Get("/tokens", s.handleTokens)
	mux.Get("/tokens/{ref}", s.handleToken)
	mux.Get("/quote", s.handleQuote)
	mux.Get("/gas/swap", s.handleSwapGas)
	mux.Get("/gas/{operation}", s.handleOperationGas)
	mux.Get("/balances/{address}", s.handleBalances)
	mux.Get("/allowance", s.handleAllowance)
	mux.Get("/pools", s.handlePools)
	mux.Get("/activity/{address}", s.handleActivity)
	mux.Get("/activity/{address}/export", s.handleActivityExport)
	if d.Listings != nil {
		mux.Get("/marketplace/listing", s.handleListing)
	}

	s.handler = newCORSHandler(cfg.CORSOrigins, mux)
	s.httpServer = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       requestTimeout,
		WriteTimeout:      requestTimeout + 5*time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

// Handler returns the fully wrapped router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start блокируется до Shutdown. http.ErrServerClosed ошибкой не считается.
func (s *Server) Start() error {
	s.logger.Info("HTTP API listening", zap.String("address", s.cfg.Listen))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP API")
	return s.httpServer.Shutdown(ctx)
}
