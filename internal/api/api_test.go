package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/sonic-defi/internal/blockchain/contracts"
	"github.com/rovshanmuradov/sonic-defi/internal/config"
	"github.com/rovshanmuradov/sonic-defi/internal/liquidity"
	"github.com/rovshanmuradov/sonic-defi/internal/marketplace"
	"github.com/rovshanmuradov/sonic-defi/internal/storage/memory"
	"github.com/rovshanmuradov/sonic-defi/internal/storage/models"
	"github.com/rovshanmuradov/sonic-defi/internal/token"
	"github.com/rovshanmuradov/sonic-defi/internal/types"
	"github.com/rovshanmuradov/sonic-defi/internal/utils/metrics"
)

var (
	alice   = common.HexToAddress("0x00000000000000000000000000000000000a11ce").Hex()
	sllAddr = common.HexToAddress("0x3333333333333333333333333333333333333333").Hex()
	wsAddr  = common.HexToAddress("0x4444444444444444444444444444444444444444").Hex()
	router  = common.HexToAddress("0x5555555555555555555555555555555555555555").Hex()

	sonic = types.Token{ID: "s", Symbol: "S", Address: types.NativeAddress, Decimals: 18}
	sll   = types.Token{ID: "sll", Symbol: "SLL", Address: sllAddr, Decimals: 18}
	ws    = types.Token{ID: "ws", Symbol: "wS", Address: wsAddr, Decimals: 18}
)

type mockCore struct {
	mock.Mock
}

func (m *mockCore) GetSwapQuote(ctx context.Context, in, out, amount string) (*types.SwapQuote, error) {
	args := m.Called(in, out, amount)
	q, _ := args.Get(0).(*types.SwapQuote)
	return q, args.Error(1)
}

func (m *mockCore) EstimateGas(ctx context.Context, in, out, amount, trader string) (*types.GasEstimate, error) {
	args := m.Called(in, out, amount, trader)
	est, _ := args.Get(0).(*types.GasEstimate)
	return est, args.Error(1)
}

func (m *mockCore) FetchBalances(ctx context.Context, owner string, tokens []types.Token) (map[string]string, error) {
	args := m.Called(owner, len(tokens))
	b, _ := args.Get(0).(map[string]string)
	return b, args.Error(1)
}

func (m *mockCore) GetAllowance(ctx context.Context, tok, owner, spender string) string {
	return m.Called(tok, owner, spender).String(0)
}

func (m *mockCore) FetchPools(ctx context.Context, owner string, specs []liquidity.PoolSpec) []types.LiquidityPool {
	args := m.Called(owner, len(specs))
	p, _ := args.Get(0).([]types.LiquidityPool)
	return p
}

func (m *mockCore) Import(ctx context.Context, addr string) (*types.Token, error) {
	args := m.Called(addr)
	tok, _ := args.Get(0).(*types.Token)
	return tok, args.Error(1)
}

func (m *mockCore) GetListing(ctx context.Context, nft, tokenID string) (*contracts.Listing, error) {
	args := m.Called(nft, tokenID)
	l, _ := args.Get(0).(*contracts.Listing)
	return l, args.Error(1)
}

// mockGas prices the marketplace and approval operations.
type mockGas struct {
	mock.Mock
}

func (m *mockGas) EstimateGas(ctx context.Context, req marketplace.GasRequest) (*types.GasEstimate, error) {
	args := m.Called(req)
	est, _ := args.Get(0).(*types.GasEstimate)
	return est, args.Error(1)
}

func (m *mockGas) EstimateTokenApproval(ctx context.Context, tok string, spender common.Address, amount *big.Int, from common.Address) *types.GasEstimate {
	est, _ := m.Called(tok, spender, amount.String(), from).Get(0).(*types.GasEstimate)
	return est
}

type fixture struct {
	core    *mockCore
	gas     *mockGas
	journal *memory.Storage
	reg     *prometheus.Registry
	metrics *metrics.Collector
	server  *Server
}

func newFixture(t *testing.T, cfg config.APIConfig) *fixture {
	registry, err := token.NewRegistry([]types.Token{sonic, sll, ws}, wsAddr)
	require.NoError(t, err)

	f := &fixture{core: &mockCore{}, gas: &mockGas{}, journal: memory.New(), reg: prometheus.NewRegistry()}
	f.metrics = metrics.NewCollector(f.reg)
	f.server = NewServer(cfg, Deps{
		Registry:    registry,
		Importer:    f.core,
		Quotes:      f.core,
		Gas:         f.core,
		NFTGas:      f.gas,
		ApprovalGas: f.gas,
		Balances:    f.core,
		Allowances:  f.core,
		Pools:       f.core,
		PoolSpecs:   []liquidity.PoolSpec{{Address: "0x1111111111111111111111111111111111111111", Token1: sll, Token2: ws}},
		Listings:    f.core,
		Journal:     f.journal,
		Gatherer:    f.reg,
		Network:     types.Network{ChainID: 146, Name: "Sonic"},
		Logger:      zaptest.NewLogger(t),
	})
	return f
}

func (f *fixture) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealthAndTokens(t *testing.T) {
	f := newFixture(t, config.APIConfig{})

	rec := f.get(t, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	var health healthResponse
	decode(t, rec, &health)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, uint64(146), health.ChainID)

	rec = f.get(t, "/tokens")
	require.Equal(t, http.StatusOK, rec.Code)
	var tokens []types.Token
	decode(t, rec, &tokens)
	assert.Len(t, tokens, 3)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestRequestIDIsEchoed(t *testing.T) {
	f := newFixture(t, config.APIConfig{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "trace-42")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "trace-42", rec.Header().Get("X-Request-Id"))
}

func TestTokenLookupAndImport(t *testing.T) {
	f := newFixture(t, config.APIConfig{})
	usdcAddr := common.HexToAddress("0x29219dd400f2bf60e5a23d13be72b486d4038894").Hex()
	missing := common.HexToAddress("0x9999999999999999999999999999999999999999").Hex()
	f.core.On("Import", usdcAddr).Return(&types.Token{
		ID: "0x29219dd400f2bf60e5a23d13be72b486d4038894", Symbol: "USDC", Address: usdcAddr, Decimals: 6,
	}, nil).Once()
	f.core.On("Import", missing).Return(nil, fmt.Errorf("%w: %s", types.ErrContractNotFound, missing))

	rec := f.get(t, "/tokens/SLL")
	require.Equal(t, http.StatusOK, rec.Code)
	var tok types.Token
	decode(t, rec, &tok)
	assert.Equal(t, "sll", tok.ID)

	rec = f.get(t, "/tokens/"+usdcAddr)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &tok)
	assert.Equal(t, uint8(6), tok.Decimals)

	// второй запрос обслуживается реестром
	assert.Equal(t, http.StatusOK, f.get(t, "/tokens/usdc").Code)
	assert.Equal(t, http.StatusOK, f.get(t, "/tokens/"+usdcAddr).Code)
	f.core.AssertNumberOfCalls(t, "Import", 1)

	assert.Equal(t, http.StatusNotFound, f.get(t, "/tokens/"+missing).Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/tokens/doge").Code)
}

func TestQuote(t *testing.T) {
	f := newFixture(t, config.APIConfig{})
	f.core.On("GetSwapQuote", "s", "sll", "1.5").Return(&types.SwapQuote{
		AmountOut:   "2.25",
		GasEstimate: "250000",
		Route:       []string{"S", "SLL"},
		Strategy:    "quoter_v2",
	}, nil)

	rec := f.get(t, "/quote?in=s&out=sll&amount=1.5")
	require.Equal(t, http.StatusOK, rec.Code)
	var q types.SwapQuote
	decode(t, rec, &q)
	assert.Equal(t, "2.25", q.AmountOut)
	assert.Equal(t, []string{"S", "SLL"}, q.Route)
}

func TestQuoteErrors(t *testing.T) {
	f := newFixture(t, config.APIConfig{})
	f.core.On("GetSwapQuote", "s", "nope", "1").
		Return(nil, fmt.Errorf("resolve pair: %w: nope", types.ErrUnknownToken))
	f.core.On("GetSwapQuote", "s", "sll", "1").Return(nil, context.DeadlineExceeded)

	rec := f.get(t, "/quote?in=s&out=sll")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body errorResponse
	decode(t, rec, &body)
	assert.Contains(t, body.Error, "amount")

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/quote?in=s&out=nope&amount=1").Code)
	assert.Equal(t, http.StatusInternalServerError, f.get(t, "/quote?in=s&out=sll&amount=1").Code)
}

func TestSwapGas(t *testing.T) {
	f := newFixture(t, config.APIConfig{})
	f.core.On("EstimateGas", "sll", "ws", "3", alice).Return(&types.GasEstimate{
		GasLimit: 180000,
		Tier:     types.GasTierLive,
	}, nil)

	rec := f.get(t, "/gas/swap?in=sll&out=ws&amount=3&from="+alice)
	require.Equal(t, http.StatusOK, rec.Code)
	var est types.GasEstimate
	decode(t, rec, &est)
	assert.Equal(t, uint64(180000), est.GasLimit)
	assert.Equal(t, types.GasTierLive, est.Tier)

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/gas/swap?in=sll&out=ws&amount=3&from=0x123").Code)
	f.core.AssertNumberOfCalls(t, "EstimateGas", 1)
}

func TestMarketplaceGas(t *testing.T) {
	f := newFixture(t, config.APIConfig{})
	nft := common.HexToAddress("0x0dcbf9741bbc21b7696ca73f5f87731c9a3d303e").Hex()
	f.server.d.DefaultNFT = nft

	f.gas.On("EstimateGas", marketplace.GasRequest{
		Operation: "list_nft", NFT: nft, TokenID: "7", Price: "2.5", From: alice,
	}).Return(&types.GasEstimate{GasLimit: 120000, Tier: types.GasTierMocked}, nil).Once()
	f.gas.On("EstimateGas", mock.MatchedBy(func(req marketplace.GasRequest) bool {
		return req.Operation == "mint_nft"
	})).Return(nil, fmt.Errorf("%w: %q", marketplace.ErrUnsupportedOperation, "mint_nft"))

	rec := f.get(t, "/gas/list_nft?tokenId=7&price=2.5&from="+alice)
	require.Equal(t, http.StatusOK, rec.Code)
	var est types.GasEstimate
	decode(t, rec, &est)
	assert.Equal(t, uint64(120000), est.GasLimit)
	assert.Equal(t, types.GasTierMocked, est.Tier)

	assert.Equal(t, http.StatusNotFound, f.get(t, "/gas/mint_nft?tokenId=1&from="+alice).Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/gas/buy_nft?tokenId=1&from=0x12").Code)
	f.gas.AssertExpectations(t)
}

func TestTokenApprovalGas(t *testing.T) {
	f := newFixture(t, config.APIConfig{})
	f.gas.On("EstimateTokenApproval", sllAddr, common.HexToAddress(router), "1500000000000000000", common.HexToAddress(alice)).
		Return(&types.GasEstimate{GasLimit: 46000, Tier: types.GasTierLive}).Once()

	rec := f.get(t, "/gas/token_approval?token=sll&spender="+router+"&amount=1.5&from="+alice)
	require.Equal(t, http.StatusOK, rec.Code)
	var est types.GasEstimate
	decode(t, rec, &est)
	assert.Equal(t, uint64(46000), est.GasLimit)

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/gas/token_approval?token=s&spender="+router+"&amount=1&from="+alice).Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/gas/token_approval?token=sll&spender="+router+"&amount=0&from="+alice).Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/gas/token_approval?token=nope&spender="+router+"&amount=1&from="+alice).Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/gas/token_approval?token=sll&amount=1&from="+alice).Code)
	f.gas.AssertExpectations(t)
}

func TestBalances(t *testing.T) {
	f := newFixture(t, config.APIConfig{})
	f.core.On("FetchBalances", alice, 3).Return(map[string]string{"s": "1.5", "sll": "0", "ws": "2"}, nil)

	rec := f.get(t, "/balances/"+alice)
	require.Equal(t, http.StatusOK, rec.Code)
	var body balancesResponse
	decode(t, rec, &body)
	assert.Equal(t, alice, body.Address)
	assert.Equal(t, "1.5", body.Balances["s"])

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/balances/not-an-address").Code)
}

func TestAllowance(t *testing.T) {
	f := newFixture(t, config.APIConfig{})
	f.core.On("GetAllowance", sllAddr, alice, router).Return("12.5")

	rec := f.get(t, "/allowance?token="+sllAddr+"&owner="+alice+"&spender="+router)
	require.Equal(t, http.StatusOK, rec.Code)
	var body allowanceResponse
	decode(t, rec, &body)
	assert.Equal(t, "12.5", body.Allowance)

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/allowance?token="+sllAddr+"&owner="+alice).Code)
}

func TestPoolsSnapshotsAndShare(t *testing.T) {
	f := newFixture(t, config.APIConfig{})
	pool := types.LiquidityPool{
		ID:                "0x1111111111111111111111111111111111111111",
		PoolAddress:       "0x1111111111111111111111111111111111111111",
		Name:              "SLL/wS",
		Token1:            sll,
		Token2:            ws,
		Reserve1:          "5",
		Reserve2:          "2",
		TotalSupplyLP:     "10",
		UserLPBalance:     "1",
		APY:               15.8,
		TotalLiquidityUSD: "7.00",
	}
	f.core.On("FetchPools", alice, 1).Return([]types.LiquidityPool{pool})

	rec := f.get(t, "/pools?owner="+alice)
	require.Equal(t, http.StatusOK, rec.Code)
	var views []map[string]interface{}
	decode(t, rec, &views)
	require.Len(t, views, 1)
	assert.Equal(t, "10.0000", views[0]["userSharePercentage"])
	assert.Equal(t, "SLL/wS", views[0]["name"])

	snap, err := f.journal.LatestPoolSnapshot(context.Background(), pool.PoolAddress)
	require.NoError(t, err)
	assert.Equal(t, "7.00", snap.TVL)
	assert.Equal(t, "sll", snap.Token1)

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/pools?owner=0xnope").Code)
}

func TestActivity(t *testing.T) {
	f := newFixture(t, config.APIConfig{})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, f.journal.SaveActivity(ctx, &models.Activity{
			Hash:   fmt.Sprintf("0x%064d", i),
			Wallet: alice,
			Kind:   "swap",
			Status: models.StatusConfirmed,
		}))
	}

	rec := f.get(t, "/activity/"+alice+"?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.Activity
	decode(t, rec, &list)
	require.Len(t, list, 2)
	assert.Equal(t, fmt.Sprintf("0x%064d", 2), list[0].Hash)

	rec = f.get(t, "/activity/"+common.HexToAddress("0xb0b").Hex())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/activity/"+alice+"?limit=-1").Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/activity/"+alice+"?offset=x").Code)
}

func TestActivityExport(t *testing.T) {
	f := newFixture(t, config.APIConfig{})
	ctx := context.Background()
	require.NoError(t, f.journal.SaveActivity(ctx, &models.Activity{
		Hash: "0x01", Wallet: alice, Kind: "approve", Status: models.StatusConfirmed,
	}))
	require.NoError(t, f.journal.SaveActivity(ctx, &models.Activity{
		Hash: "0x02", Wallet: alice, Kind: "swap", Status: models.StatusFailed, Error: "reverted",
	}))

	rec := f.get(t, "/activity/"+alice+"/export")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	rows, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	rec = f.get(t, "/activity/"+alice+"/export?format=json&kind=swap")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Activity []models.Activity `json:"activity"`
	}
	decode(t, rec, &body)
	require.Len(t, body.Activity, 1)
	assert.Equal(t, "reverted", body.Activity[0].Error)

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/activity/"+alice+"/export?format=xml").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, config.APIConfig{})
	f.metrics.RecordQuoteAttempt("synthetic", "success")

	rec := f.get(t, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sonic_defi_quote_attempts_total")
}

func TestPanicIsRecovered(t *testing.T) {
	f := newFixture(t, config.APIConfig{})
	f.core.On("GetSwapQuote", "s", "sll", "1").Run(func(mock.Arguments) { panic("boom") })

	rec := f.get(t, "/quote?in=s&out=sll&amount=1")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRateLimitByIP(t *testing.T) {
	f := newFixture(t, config.APIConfig{RateLimit: 1})

	assert.Equal(t, http.StatusOK, f.get(t, "/healthz").Code)
	assert.Equal(t, http.StatusTooManyRequests, f.get(t, "/healthz").Code)
}

func TestCORS(t *testing.T) {
	f := newFixture(t, config.APIConfig{CORSOrigins: []string{"https://app.example"}})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMarketplaceListing(t *testing.T) {
	f := newFixture(t, config.APIConfig{})
	nft := common.HexToAddress("0x0dcbf9741bbc21b7696ca73f5f87731c9a3d303e").Hex()
	f.core.On("GetListing", nft, "7").Return(&contracts.Listing{
		Seller: common.HexToAddress(alice),
		Price:  big.NewInt(1_500_000),
		Active: true,
	}, nil)
	f.core.On("GetListing", nft, "x").Return(nil, fmt.Errorf("%w: %q", marketplace.ErrInvalidTokenID, "x"))
	f.core.On("GetListing", nft, "8").Return(nil, marketplace.ErrNotConfigured)

	rec := f.get(t, "/marketplace/listing?nft="+nft+"&tokenId=7")
	require.Equal(t, http.StatusOK, rec.Code)
	var body listingResponse
	decode(t, rec, &body)
	assert.Equal(t, alice, body.Seller)
	assert.Equal(t, "1500000", body.Price)
	assert.True(t, body.Active)

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/marketplace/listing?nft="+nft+"&tokenId=x").Code)
	assert.Equal(t, http.StatusServiceUnavailable, f.get(t, "/marketplace/listing?nft="+nft+"&tokenId=8").Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/marketplace/listing?nft="+nft).Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/marketplace/listing?tokenId=7").Code)

	f.server.d.DefaultNFT = nft
	rec = f.get(t, "/marketplace/listing?tokenId=7")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &body)
	assert.Equal(t, nft, body.NFT)
}
