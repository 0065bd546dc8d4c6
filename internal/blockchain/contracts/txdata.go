package contracts

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PackApprove builds ERC20 approve calldata.
func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return ERC20ABI.Pack("approve", spender, amount)
}

// PackExactInputSingle builds router exactInputSingle calldata.
func PackExactInputSingle(params ExactInputSingleParams) ([]byte, error) {
	return SwapRouterABI.Pack("exactInputSingle", params)
}

// PackUnwrapToNative wraps a swap call with unwrapWETH9 and refundETH in one
// multicall, so the recipient receives native currency.
func PackUnwrapToNative(swapCall []byte, amountOutMin *big.Int, recipient common.Address) ([]byte, error) {
	unwrap, err := SwapRouterABI.Pack("unwrapWETH9", amountOutMin, recipient)
	if err != nil {
		return nil, err
	}
	refund, err := SwapRouterABI.Pack("refundETH")
	if err != nil {
		return nil, err
	}
	return SwapRouterABI.Pack("multicall", [][]byte{swapCall, unwrap, refund})
}

func PackListNft(nft common.Address, tokenID, price *big.Int, paymentToken common.Address) ([]byte, error) {
	return MarketplaceABI.Pack("listNft", nft, tokenID, price, paymentToken)
}

func PackDelistNft(nft common.Address, tokenID *big.Int) ([]byte, error) {
	return MarketplaceABI.Pack("delistNft", nft, tokenID)
}

func PackBuyNft(nft common.Address, tokenID *big.Int) ([]byte, error) {
	return MarketplaceABI.Pack("buyNft", nft, tokenID)
}

func PackSetApprovalForAll(operator common.Address, approved bool) ([]byte, error) {
	return ERC721ABI.Pack("setApprovalForAll", operator, approved)
}

func PackNFTTransferFrom(from, to common.Address, tokenID *big.Int) ([]byte, error) {
	return ERC721ABI.Pack("transferFrom", from, to, tokenID)
}
