package marketplace

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/sonic-defi/internal/blockchain/blockchaintest"
	"github.com/rovshanmuradov/sonic-defi/internal/types"
)

func TestEstimateGasOnPlaceholderMarketplace(t *testing.T) {
	f := newFixture(t, "0xPLACEHOLDER_MARKETPLACE_ADDRESS", seller)
	ctx := context.Background()

	tests := []struct {
		req   GasRequest
		limit uint64
	}{
		{GasRequest{Operation: "list_nft", NFT: nft.Hex(), TokenID: "1", Price: "2.5"}, 120_000},
		{GasRequest{Operation: "delist_nft", NFT: nft.Hex(), TokenID: "1"}, 80_000},
		{GasRequest{Operation: "buy_nft", NFT: nft.Hex(), TokenID: "1"}, 150_000},
		{GasRequest{Operation: "transfer_nft", NFT: "0xPLACEHOLDER_NFT", TokenID: "1", To: buyer.Hex()}, 100_000},
		{GasRequest{Operation: "nft_approval", NFT: "0xPLACEHOLDER_NFT"}, 50_000},
	}
	for _, tt := range tests {
		t.Run(tt.req.Operation, func(t *testing.T) {
			tt.req.From = seller.Hex()
			est, err := f.market.EstimateGas(ctx, tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.limit, est.GasLimit)
			assert.Equal(t, types.GasTierMocked, est.Tier)
		})
	}
	f.backend.AssertNotCalled(t, "EstimateGas", mock.Anything, mock.Anything)
}

func TestEstimateGasRejectsBadInput(t *testing.T) {
	f := newFixture(t, market.Hex(), seller)
	ctx := context.Background()

	_, err := f.market.EstimateGas(ctx, GasRequest{Operation: "mint_nft", NFT: nft.Hex(), TokenID: "1", From: seller.Hex()})
	assert.ErrorIs(t, err, ErrUnsupportedOperation)

	_, err = f.market.EstimateGas(ctx, GasRequest{Operation: "buy_nft", NFT: nft.Hex(), TokenID: "1", From: "bob"})
	assert.ErrorIs(t, err, types.ErrInvalidAddress)

	_, err = f.market.EstimateGas(ctx, GasRequest{Operation: "delist_nft", NFT: nft.Hex(), TokenID: "-1", From: seller.Hex()})
	assert.ErrorIs(t, err, ErrInvalidTokenID)

	_, err = f.market.EstimateGas(ctx, GasRequest{Operation: "list_nft", NFT: nft.Hex(), TokenID: "1", Price: "0", From: seller.Hex()})
	assert.ErrorIs(t, err, types.ErrInvalidAmount)

	_, err = f.market.EstimateGas(ctx, GasRequest{Operation: "transfer_nft", NFT: nft.Hex(), TokenID: "1", From: seller.Hex(), To: "nobody"})
	assert.ErrorIs(t, err, types.ErrInvalidAddress)
}

func TestEstimateGasBuyCarriesListingPrice(t *testing.T) {
	f := newFixture(t, market.Hex(), buyer)
	price := big.NewInt(3_000_000_000)
	f.backend.OnCode(market).Return(blockchaintest.Code, nil)
	f.expectListing(t, price, common.Address{}, true)
	f.backend.On("EstimateGas", mock.Anything, mock.MatchedBy(func(msg ethereum.CallMsg) bool {
		return msg.To != nil && *msg.To == market && msg.From == buyer && msg.Value != nil && msg.Value.Cmp(price) == 0
	})).Return(uint64(131_000), nil).Once()
	f.backend.On("SuggestGasPrice", mock.Anything).Return(big.NewInt(55_000_000_000), nil)

	est, err := f.market.EstimateGas(context.Background(), GasRequest{
		Operation: "buy_nft", NFT: nft.Hex(), TokenID: "3", From: buyer.Hex(),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(131_000), est.GasLimit)
	assert.Equal(t, types.GasTierLive, est.Tier)
	f.backend.AssertExpectations(t)
}

func TestEstimateGasWithoutEstimator(t *testing.T) {
	m := New(nil, market.Hex(), nil, nil, nil, nil, 0, nil, nil, nil)
	_, err := m.EstimateGas(context.Background(), GasRequest{Operation: "buy_nft"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
