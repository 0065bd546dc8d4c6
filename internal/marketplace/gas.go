// internal/marketplace/gas.go
package marketplace

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rovshanmuradov/sonic-defi/internal/address"
	"github.com/rovshanmuradov/sonic-defi/internal/blockchain/contracts"
	"github.com/rovshanmuradov/sonic-defi/internal/types"
)

// ErrUnsupportedOperation is returned by EstimateGas for an unknown operation.
var ErrUnsupportedOperation = errors.New("unsupported marketplace operation")

// GasEstimator prices marketplace calls; *gas.Estimator implements it.
type GasEstimator interface {
	EstimateBuyNFT(ctx context.Context, marketplace string, nft common.Address, tokenID, value *big.Int, from common.Address) *types.GasEstimate
	EstimateListNFT(ctx context.Context, marketplace string, nft common.Address, tokenID, price *big.Int, paymentToken, from common.Address) *types.GasEstimate
	EstimateDelistNFT(ctx context.Context, marketplace string, nft common.Address, tokenID *big.Int, from common.Address) *types.GasEstimate
	EstimateTransferNFT(ctx context.Context, nft string, from, to common.Address, tokenID *big.Int) *types.GasEstimate
	EstimateNFTApproval(ctx context.Context, nft string, operator, from common.Address) *types.GasEstimate
}

// GasRequest describes a marketplace call to price. Operation is one of
// list_nft, delist_nft, buy_nft, transfer_nft or nft_approval.
type GasRequest struct {
	Operation    string
	NFT          string
	TokenID      string
	Price        string // list_nft, в единицах PaymentToken
	PaymentToken string
	From         string
	To           string // transfer_nft
}

// Operations lists what EstimateGas accepts.
func Operations() []string {
	return []string{txTypeList, txTypeDelist, txTypeBuy, txTypeTransfer, txTypeApproveNFTs}
}

// EstimateGas prices an operation before it is sent. Estimates degrade the
// way the estimator does; only malformed input is an error.
func (m *Marketplace) EstimateGas(ctx context.Context, req GasRequest) (*types.GasEstimate, error) {
	if m.gas == nil {
		return nil, ErrNotConfigured
	}
	if !slices.Contains(Operations(), req.Operation) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedOperation, req.Operation)
	}
	from, err := address.Parse(req.From)
	if err != nil {
		return nil, fmt.Errorf("from: %w", err)
	}
	if req.Operation == txTypeApproveNFTs {
		// setApprovalForAll не зависит от tokenID
		if !address.IsPlaceholder(req.NFT) && !address.IsValid(req.NFT) {
			return nil, fmt.Errorf("nft: %w: %q", types.ErrInvalidAddress, req.NFT)
		}
		var operator common.Address
		if !m.Simulated() {
			operator = common.HexToAddress(m.address)
		}
		return m.gas.EstimateNFTApproval(ctx, req.NFT, operator, from), nil
	}
	nftAddr, id, err := parseGasTarget(req.NFT, req.TokenID)
	if err != nil {
		return nil, err
	}

	switch req.Operation {
	case txTypeList:
		if _, ok := types.ParsePositiveAmount(req.Price); !ok {
			return nil, fmt.Errorf("%w: %q", types.ErrInvalidAmount, req.Price)
		}
		payment, err := parsePayment(req.PaymentToken)
		if err != nil {
			return nil, err
		}
		price, err := types.ParseUnits(req.Price, nativeDecimals)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrInvalidAmount, err)
		}
		if !m.Simulated() {
			if price, err = m.parsePrice(ctx, req.Price, payment); err != nil {
				return nil, err
			}
		}
		return m.gas.EstimateListNFT(ctx, m.address, nftAddr, id, price, payment, from), nil

	case txTypeDelist:
		return m.gas.EstimateDelistNFT(ctx, m.address, nftAddr, id, from), nil

	case txTypeBuy:
		return m.gas.EstimateBuyNFT(ctx, m.address, nftAddr, id, m.buyValue(ctx, nftAddr, id), from), nil

	case txTypeTransfer:
		to, err := address.Parse(req.To)
		if err != nil {
			return nil, fmt.Errorf("to: %w", err)
		}
		return m.gas.EstimateTransferNFT(ctx, req.NFT, from, to, id), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedOperation, req.Operation)
}

// buyValue is the native price of an active listing; nil when the listing is
// paid in a token or cannot be read.
func (m *Marketplace) buyValue(ctx context.Context, nft common.Address, id *big.Int) *big.Int {
	if m.Simulated() || nft == (common.Address{}) {
		return nil
	}
	listing, err := contracts.GetListing(ctx, m.backend, common.HexToAddress(m.address), nft, id)
	if err != nil || !listing.Active || listing.PaymentToken != (common.Address{}) {
		return nil
	}
	return listing.Price
}

// parseGasTarget допускает placeholder-коллекцию: оценщик вернет мок-лимит.
func parseGasTarget(nft, tokenID string) (common.Address, *big.Int, error) {
	if !address.IsPlaceholder(nft) {
		return parseNFT(nft, tokenID)
	}
	id, ok := new(big.Int).SetString(strings.TrimSpace(tokenID), 10)
	if !ok || id.Sign() < 0 {
		return common.Address{}, nil, fmt.Errorf("%w: %q", ErrInvalidTokenID, tokenID)
	}
	return common.Address{}, id, nil
}
