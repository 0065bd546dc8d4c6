package app

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/sonic-defi/internal/api"
	"github.com/rovshanmuradov/sonic-defi/internal/blockchain/blockchaintest"
	"github.com/rovshanmuradov/sonic-defi/internal/config"
	"github.com/rovshanmuradov/sonic-defi/internal/wallet"
)

const devKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func loadConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	return cfg
}

func TestNewAssemblesCoreOverInjectedBackend(t *testing.T) {
	cfg := loadConfig(t)
	reg := prometheus.NewRegistry()
	c, err := New(context.Background(), cfg, Options{
		Backend:    &blockchaintest.Backend{},
		Registerer: reg,
		Logger:     zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	assert.Len(t, c.Registry.All(), len(cfg.Tokens))
	assert.Len(t, c.PoolSpecs, len(cfg.Contracts.Pools))
	assert.True(t, c.Market.Simulated())
	assert.Nil(t, c.Sessions.Session())
	require.NotNil(t, c.Journal)

	server := api.NewServer(cfg.API, c.APIDeps(reg))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tokens", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Close(ctx))
	require.NoError(t, c.Close(ctx))
}

func TestNewWithLocalWalletConnects(t *testing.T) {
	cfg := loadConfig(t)
	w, err := wallet.NewWallet(devKey)
	require.NoError(t, err)

	backend := &blockchaintest.Backend{}
	backend.On("ChainID", mock.Anything).Return(big.NewInt(int64(cfg.Network.ChainID)), nil)

	c, err := New(context.Background(), cfg, Options{Backend: backend, Wallet: w, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	defer c.Close(context.Background())

	addr, err := c.Sessions.Connect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, w.Address, addr)
	require.NotNil(t, c.Sessions.Session())
	assert.NotNil(t, c.Sessions.Session().Signer)
}

func TestNewRejectsBadTokenList(t *testing.T) {
	cfg := loadConfig(t)
	cfg.Tokens = append(cfg.Tokens, cfg.Tokens[0])

	_, err := New(context.Background(), cfg, Options{Backend: &blockchaintest.Backend{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token registry")
}

func TestShutdownOrderAndErrors(t *testing.T) {
	sh := NewShutdownHandler(zaptest.NewLogger(t))
	var order []string
	sh.AddFunc("first", func() error { order = append(order, "first"); return nil })
	sh.AddFunc("second", func() error { order = append(order, "second"); return errors.New("boom") })
	sh.AddFunc("third", func() error { order = append(order, "third"); return nil })

	err := sh.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "second: boom")
	assert.Equal(t, []string{"third", "second", "first"}, order)

	assert.NoError(t, sh.Shutdown(context.Background()), "second call is a no-op")
}

func TestShutdownTimeout(t *testing.T) {
	sh := NewShutdownHandler(nil)
	release := make(chan struct{})
	defer close(release)
	sh.AddFunc("stuck", func() error { <-release; return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := sh.Shutdown(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
