// internal/gas/estimators.go
package gas

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rovshanmuradov/sonic-defi/internal/blockchain/contracts"
	"github.com/rovshanmuradov/sonic-defi/internal/types"
)

// SwapGasRequest is a fully built router call.
type SwapGasRequest struct {
	Router string
	From   common.Address
	Data   []byte
	Value  *big.Int
}

func (e *Estimator) EstimateSwap(ctx context.Context, req SwapGasRequest) *types.GasEstimate {
	return e.estimate(ctx, call{
		op:     OpSwap,
		target: req.Router,
		from:   req.From,
		value:  req.Value,
		pack:   func() ([]byte, error) { return req.Data, nil },
	})
}

// EstimateBuyNFT prices buyNft; price is sent as value for native payments.
func (e *Estimator) EstimateBuyNFT(ctx context.Context, marketplace string, nft common.Address, tokenID, value *big.Int, from common.Address) *types.GasEstimate {
	return e.estimate(ctx, call{
		op:     OpBuyNFT,
		target: marketplace,
		from:   from,
		value:  value,
		pack:   func() ([]byte, error) { return contracts.PackBuyNft(nft, tokenID) },
	})
}

func (e *Estimator) EstimateListNFT(ctx context.Context, marketplace string, nft common.Address, tokenID, price *big.Int, paymentToken, from common.Address) *types.GasEstimate {
	return e.estimate(ctx, call{
		op:     OpListNFT,
		target: marketplace,
		from:   from,
		pack: func() ([]byte, error) {
			return contracts.PackListNft(nft, tokenID, price, paymentToken)
		},
	})
}

func (e *Estimator) EstimateDelistNFT(ctx context.Context, marketplace string, nft common.Address, tokenID *big.Int, from common.Address) *types.GasEstimate {
	return e.estimate(ctx, call{
		op:     OpDelistNFT,
		target: marketplace,
		from:   from,
		pack:   func() ([]byte, error) { return contracts.PackDelistNft(nft, tokenID) },
	})
}

func (e *Estimator) EstimateTransferNFT(ctx context.Context, nft string, from, to common.Address, tokenID *big.Int) *types.GasEstimate {
	return e.estimate(ctx, call{
		op:     OpTransferNFT,
		target: nft,
		from:   from,
		pack:   func() ([]byte, error) { return contracts.PackNFTTransferFrom(from, to, tokenID) },
	})
}

func (e *Estimator) EstimateNFTApproval(ctx context.Context, nft string, operator, from common.Address) *types.GasEstimate {
	return e.estimate(ctx, call{
		op:     OpNFTApproval,
		target: nft,
		from:   from,
		pack:   func() ([]byte, error) { return contracts.PackSetApprovalForAll(operator, true) },
	})
}

func (e *Estimator) EstimateTokenApproval(ctx context.Context, token string, spender common.Address, amount *big.Int, from common.Address) *types.GasEstimate {
	return e.estimate(ctx, call{
		op:     OpTokenApproval,
		target: token,
		from:   from,
		pack:   func() ([]byte, error) { return contracts.PackApprove(spender, amount) },
	})
}
