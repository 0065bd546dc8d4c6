package marketplace

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/sonic-defi/internal/blockchain/blockchaintest"
	"github.com/rovshanmuradov/sonic-defi/internal/blockchain/contracts"
	"github.com/rovshanmuradov/sonic-defi/internal/events"
	"github.com/rovshanmuradov/sonic-defi/internal/gas"
	"github.com/rovshanmuradov/sonic-defi/internal/transaction"
	"github.com/rovshanmuradov/sonic-defi/internal/types"
)

var (
	market = common.HexToAddress("0x5555555555555555555555555555555555555555")
	nft    = common.HexToAddress("0x0dcbf9741bbc21b7696ca73f5f87731c9a3d303e")
	usdc   = common.HexToAddress("0x29219dd400f2Bf60E5a23d13Be72B486D4038894")
	seller = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	buyer  = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	hash1  = common.HexToHash("0xa1")
	hash2  = common.HexToHash("0xa2")
)

type mockApprover struct {
	mock.Mock
}

func (m *mockApprover) Ensure(ctx context.Context, tok, spender, amount, owner string) (bool, common.Hash, error) {
	args := m.Called(ctx, tok, spender, amount, owner)
	return args.Bool(0), args.Get(1).(common.Hash), args.Error(2)
}

type fixture struct {
	bus      *events.Bus
	backend  *blockchaintest.Backend
	signer   *blockchaintest.Signer
	approver *mockApprover
	market   *Marketplace
}

func newFixture(t *testing.T, marketAddr string, account common.Address) *fixture {
	f := &fixture{
		bus:      events.NewBus(zaptest.NewLogger(t), 16),
		backend:  &blockchaintest.Backend{},
		signer:   &blockchaintest.Signer{Addr: account, Hashes: []common.Hash{hash1, hash2}},
		approver: &mockApprover{},
	}
	tx := transaction.NewManager(f.backend,
		transaction.Options{ConfirmTimeout: time.Second, PollInterval: time.Millisecond},
		nil, zaptest.NewLogger(t))
	estimator := gas.NewEstimator(f.backend, 0, nil, "S", nil, zaptest.NewLogger(t))
	f.market = New(f.backend, marketAddr, f.approver, estimator, tx,
		blockchaintest.SessionFor(f.backend, f.signer), time.Millisecond, nil, f.bus, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = f.bus.Shutdown(context.Background()) })
	return f
}

func (f *fixture) expectReceipts(hashes ...common.Hash) {
	for _, h := range hashes {
		f.backend.On("TransactionReceipt", mock.Anything, h).Return(blockchaintest.Receipt(h, true), nil)
	}
}

func (f *fixture) expectOwner(t *testing.T, owner common.Address) {
	f.backend.OnCall(nft, contracts.ERC721ABI, "ownerOf").
		Return(blockchaintest.Outputs(t, contracts.ERC721ABI, "ownerOf", owner), nil)
}

func (f *fixture) expectListing(t *testing.T, price *big.Int, payment common.Address, active bool) {
	f.backend.OnCall(market, contracts.MarketplaceABI, "getListing").
		Return(blockchaintest.Outputs(t, contracts.MarketplaceABI, "getListing", seller, price, payment, active), nil)
}

func TestPlaceholderMarketplaceSimulatesWrites(t *testing.T) {
	f := newFixture(t, "0xPLACEHOLDER_MARKETPLACE_ADDRESS", seller)
	ctx := context.Background()
	assert.True(t, f.market.Simulated())

	res, err := f.market.List(ctx, nft.Hex(), "1", "10", "", seller.Hex())
	require.NoError(t, err)
	assert.True(t, res.Simulated)

	res, err = f.market.Delist(ctx, nft.Hex(), "1", seller.Hex())
	require.NoError(t, err)
	assert.True(t, res.Simulated)

	res, err = f.market.Buy(ctx, nft.Hex(), "1", seller.Hex())
	require.NoError(t, err)
	assert.True(t, res.Simulated)

	_, err = f.market.GetListing(ctx, nft.Hex(), "1")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Empty(t, f.signer.Sent())
}

func TestInputValidation(t *testing.T) {
	f := newFixture(t, "0xPLACEHOLDER_MARKETPLACE_ADDRESS", seller)
	ctx := context.Background()

	_, err := f.market.List(ctx, nft.Hex(), "abc", "10", "", seller.Hex())
	assert.ErrorIs(t, err, ErrInvalidTokenID)
	_, err = f.market.List(ctx, nft.Hex(), "1", "0", "", seller.Hex())
	assert.ErrorIs(t, err, types.ErrInvalidAmount)
	_, err = f.market.List(ctx, "0x12", "1", "10", "", seller.Hex())
	assert.ErrorIs(t, err, types.ErrInvalidAddress)
	_, err = f.market.Buy(ctx, nft.Hex(), "-1", buyer.Hex())
	assert.ErrorIs(t, err, ErrInvalidTokenID)
}

func TestListApprovesCollectionFirst(t *testing.T) {
	f := newFixture(t, market.Hex(), seller)
	f.backend.OnCode(market).Return(blockchaintest.Code, nil)
	f.expectOwner(t, seller)
	f.backend.OnCall(nft, contracts.ERC721ABI, "isApprovedForAll").
		Return(blockchaintest.Outputs(t, contracts.ERC721ABI, "isApprovedForAll", false), nil)
	f.expectReceipts(hash1, hash2)

	res, err := f.market.List(context.Background(), nft.Hex(), "7", "1.5", types.NativeAddress, seller.Hex())
	require.NoError(t, err)
	assert.Equal(t, hash2.Hex(), res.Hash)
	assert.Equal(t, []string{hash1.Hex()}, res.Approvals)

	sent := f.signer.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, nft, sent[0].To)
	assert.Equal(t, blockchaintest.Input(t, contracts.ERC721ABI, "setApprovalForAll", market, true), sent[0].Data)

	price, _ := new(big.Int).SetString("1500000000000000000", 10)
	assert.Equal(t, market, sent[1].To)
	assert.Equal(t, blockchaintest.Input(t, contracts.MarketplaceABI, "listNft", nft, big.NewInt(7), price, common.Address{}), sent[1].Data)
}

func TestListSkipsApprovalWhenGranted(t *testing.T) {
	f := newFixture(t, market.Hex(), seller)
	f.backend.OnCode(market).Return(blockchaintest.Code, nil)
	f.backend.OnCall(usdc, contracts.ERC20ABI, "decimals").
		Return(blockchaintest.Outputs(t, contracts.ERC20ABI, "decimals", uint8(6)), nil)
	f.expectOwner(t, seller)
	f.backend.OnCall(nft, contracts.ERC721ABI, "isApprovedForAll").
		Return(blockchaintest.Outputs(t, contracts.ERC721ABI, "isApprovedForAll", true), nil)
	f.expectReceipts(hash1)

	res, err := f.market.List(context.Background(), nft.Hex(), "7", "25", usdc.Hex(), seller.Hex())
	require.NoError(t, err)
	assert.Equal(t, hash1.Hex(), res.Hash)
	assert.Empty(t, res.Approvals)

	sent := f.signer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, blockchaintest.Input(t, contracts.MarketplaceABI, "listNft", nft, big.NewInt(7), big.NewInt(25_000_000), usdc), sent[0].Data)
}

func TestListRequiresOwnership(t *testing.T) {
	f := newFixture(t, market.Hex(), seller)
	f.backend.OnCode(market).Return(blockchaintest.Code, nil)
	f.expectOwner(t, buyer)

	_, err := f.market.List(context.Background(), nft.Hex(), "7", "1", "", seller.Hex())
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.Empty(t, f.signer.Sent())
}

func TestListRequiresMarketplaceCode(t *testing.T) {
	f := newFixture(t, market.Hex(), seller)
	f.backend.OnCode(market).Return(nil, nil)

	_, err := f.market.List(context.Background(), nft.Hex(), "7", "1", "", seller.Hex())
	assert.ErrorIs(t, err, types.ErrContractNotFound)
}

func TestBuyNativePaysValue(t *testing.T) {
	f := newFixture(t, market.Hex(), buyer)
	f.backend.OnCode(market).Return(blockchaintest.Code, nil)
	price := big.NewInt(2_000_000_000)
	f.expectListing(t, price, common.Address{}, true)
	f.expectReceipts(hash1)

	res, err := f.market.Buy(context.Background(), nft.Hex(), "3", buyer.Hex())
	require.NoError(t, err)
	assert.Equal(t, hash1.Hex(), res.Hash)

	sent := f.signer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, 0, price.Cmp(sent[0].Value))
	assert.Equal(t, blockchaintest.Input(t, contracts.MarketplaceABI, "buyNft", nft, big.NewInt(3)), sent[0].Data)
	f.approver.AssertNotCalled(t, "Ensure", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBuyERC20EnsuresAllowance(t *testing.T) {
	f := newFixture(t, market.Hex(), buyer)
	f.backend.OnCode(market).Return(blockchaintest.Code, nil)
	f.expectListing(t, big.NewInt(5_000_000), usdc, true)
	f.backend.OnCall(usdc, contracts.ERC20ABI, "decimals").
		Return(blockchaintest.Outputs(t, contracts.ERC20ABI, "decimals", uint8(6)), nil)
	approval := common.HexToHash("0xaa")
	f.approver.On("Ensure", mock.Anything, usdc.Hex(), market.Hex(), "5", buyer.Hex()).
		Return(true, approval, nil).Once()
	f.expectReceipts(hash1)

	res, err := f.market.Buy(context.Background(), nft.Hex(), "3", buyer.Hex())
	require.NoError(t, err)
	assert.Equal(t, []string{approval.Hex()}, res.Approvals)

	sent := f.signer.Sent()
	require.Len(t, sent, 1)
	assert.Zero(t, sent[0].Value.Sign())
	f.approver.AssertExpectations(t)
}

func TestBuyInactiveListing(t *testing.T) {
	f := newFixture(t, market.Hex(), buyer)
	f.backend.OnCode(market).Return(blockchaintest.Code, nil)
	f.expectListing(t, big.NewInt(1), common.Address{}, false)

	_, err := f.market.Buy(context.Background(), nft.Hex(), "3", buyer.Hex())
	assert.ErrorIs(t, err, ErrListingInactive)
	assert.Empty(t, f.signer.Sent())
}

func TestBuyWithoutSession(t *testing.T) {
	f := newFixture(t, market.Hex(), seller)

	_, err := f.market.Buy(context.Background(), nft.Hex(), "3", buyer.Hex())
	assert.ErrorIs(t, err, types.ErrSignerMismatch)
}

func TestTransfer(t *testing.T) {
	f := newFixture(t, market.Hex(), seller)
	f.expectOwner(t, seller)
	f.expectReceipts(hash1)

	res, err := f.market.Transfer(context.Background(), nft.Hex(), "9", seller.Hex(), buyer.Hex())
	require.NoError(t, err)
	assert.Equal(t, hash1.Hex(), res.Hash)

	sent := f.signer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, nft, sent[0].To)
	assert.Equal(t, blockchaintest.Input(t, contracts.ERC721ABI, "transferFrom", seller, buyer, big.NewInt(9)), sent[0].Data)
}

func TestGetListing(t *testing.T) {
	f := newFixture(t, market.Hex(), seller)
	f.expectListing(t, big.NewInt(42), usdc, true)

	listing, err := f.market.GetListing(context.Background(), nft.Hex(), "3")
	require.NoError(t, err)
	assert.Equal(t, seller, listing.Seller)
	assert.Equal(t, usdc, listing.PaymentToken)
	assert.True(t, listing.Active)
	assert.Equal(t, int64(42), listing.Price.Int64())
}

func TestSettledOperationsArePublished(t *testing.T) {
	f := newFixture(t, market.Hex(), seller)
	got := make(chan *events.MarketplaceEvent, 2)
	f.bus.SubscribeTopics(events.MarketplaceTopics, events.On(func(_ context.Context, e *events.MarketplaceEvent) error {
		got <- e
		return nil
	}))
	f.expectOwner(t, seller)
	f.expectReceipts(hash1)

	_, err := f.market.Transfer(context.Background(), nft.Hex(), "9", seller.Hex(), buyer.Hex())
	require.NoError(t, err)
	_, err = f.market.Transfer(context.Background(), nft.Hex(), "9", seller.Hex(), "bob")
	require.Error(t, err)

	select {
	case e := <-got:
		assert.Equal(t, "transfer_nft", e.Action)
		assert.Equal(t, nft.Hex(), e.NFT)
		assert.Equal(t, "9", e.TokenID)
		assert.Equal(t, seller.Hex(), e.Account)
		assert.Equal(t, hash1.Hex(), e.Hash)
		assert.False(t, e.Simulated)
	case <-time.After(2 * time.Second):
		t.Fatal("marketplace event not published")
	}
	require.NoError(t, f.bus.Shutdown(context.Background()))
	assert.Empty(t, got, "failed operations are not published")
}
