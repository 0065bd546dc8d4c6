// internal/blockchain/contracts/abi.go
package contracts

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

func parseABI(name, abiStr string) *abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(abiStr))
	if err != nil {
		panic(fmt.Sprintf("failed to parse %s abi: %v", name, err))
	}
	return &parsed
}

var (
	ERC20ABI       = parseABI("erc20", erc20JSON)
	ERC721ABI      = parseABI("erc721", erc721JSON)
	SwapRouterABI  = parseABI("swap router", swapRouterJSON)
	QuoterV2ABI    = parseABI("quoter v2", quoterV2JSON)
	QuoterV1ABI    = parseABI("quoter v1", quoterV1JSON)
	PoolABI        = parseABI("lp pool", poolJSON)
	MarketplaceABI = parseABI("marketplace", marketplaceJSON)
)

const erc20JSON = `[
{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
{"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"transferFrom","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

const erc721JSON = `[
{"type":"function","name":"ownerOf","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"transferFrom","stateMutability":"payable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[]},
{"type":"function","name":"approve","stateMutability":"payable","inputs":[{"name":"to","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[]},
{"type":"function","name":"setApprovalForAll","stateMutability":"nonpayable","inputs":[{"name":"operator","type":"address"},{"name":"approved","type":"bool"}],"outputs":[]},
{"type":"function","name":"isApprovedForAll","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"operator","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
{"type":"function","name":"tokenURI","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"string"}]},
{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const swapRouterJSON = `[
{"type":"function","name":"exactInputSingle","stateMutability":"payable",
 "inputs":[{"name":"params","type":"tuple","components":[
  {"name":"tokenIn","type":"address"},
  {"name":"tokenOut","type":"address"},
  {"name":"fee","type":"uint24"},
  {"name":"recipient","type":"address"},
  {"name":"deadline","type":"uint256"},
  {"name":"amountIn","type":"uint256"},
  {"name":"amountOutMinimum","type":"uint256"},
  {"name":"sqrtPriceLimitX96","type":"uint160"}]}],
 "outputs":[{"name":"amountOut","type":"uint256"}]},
{"type":"function","name":"exactInput","stateMutability":"payable",
 "inputs":[{"name":"params","type":"tuple","components":[
  {"name":"path","type":"bytes"},
  {"name":"recipient","type":"address"},
  {"name":"deadline","type":"uint256"},
  {"name":"amountIn","type":"uint256"},
  {"name":"amountOutMinimum","type":"uint256"}]}],
 "outputs":[{"name":"amountOut","type":"uint256"}]},
{"type":"function","name":"multicall","stateMutability":"payable","inputs":[{"name":"data","type":"bytes[]"}],"outputs":[{"name":"results","type":"bytes[]"}]},
{"type":"function","name":"unwrapWETH9","stateMutability":"payable","inputs":[{"name":"amountMinimum","type":"uint256"},{"name":"recipient","type":"address"}],"outputs":[]},
{"type":"function","name":"refundETH","stateMutability":"payable","inputs":[],"outputs":[]}
]`

const quoterV2JSON = `[
{"type":"function","name":"quoteExactInputSingle","stateMutability":"nonpayable",
 "inputs":[{"name":"params","type":"tuple","components":[
  {"name":"tokenIn","type":"address"},
  {"name":"tokenOut","type":"address"},
  {"name":"amountIn","type":"uint256"},
  {"name":"fee","type":"uint24"},
  {"name":"sqrtPriceLimitX96","type":"uint160"}]}],
 "outputs":[
  {"name":"amountOut","type":"uint256"},
  {"name":"sqrtPriceX96After","type":"uint160"},
  {"name":"initializedTicksCrossed","type":"uint32"},
  {"name":"gasEstimate","type":"uint256"}]}
]`

const quoterV1JSON = `[
{"type":"function","name":"quoteExactInputSingle","stateMutability":"nonpayable",
 "inputs":[
  {"name":"tokenIn","type":"address"},
  {"name":"tokenOut","type":"address"},
  {"name":"fee","type":"uint24"},
  {"name":"amountIn","type":"uint256"},
  {"name":"sqrtPriceLimitX96","type":"uint160"}],
 "outputs":[{"name":"amountOut","type":"uint256"}]}
]`

const poolJSON = `[
{"type":"function","name":"token0","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"token1","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
{"type":"function","name":"getReserves","stateMutability":"view","inputs":[],"outputs":[{"name":"reserve0","type":"uint112"},{"name":"reserve1","type":"uint112"},{"name":"blockTimestampLast","type":"uint32"}]},
{"type":"function","name":"totalSupply","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const marketplaceJSON = `[
{"type":"function","name":"listNft","stateMutability":"nonpayable","inputs":[{"name":"nftContractAddress","type":"address"},{"name":"tokenId","type":"uint256"},{"name":"price","type":"uint256"},{"name":"paymentTokenAddress","type":"address"}],"outputs":[]},
{"type":"function","name":"delistNft","stateMutability":"nonpayable","inputs":[{"name":"nftContractAddress","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[]},
{"type":"function","name":"buyNft","stateMutability":"payable","inputs":[{"name":"nftContractAddress","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[]},
{"type":"function","name":"getListing","stateMutability":"view","inputs":[{"name":"nftContractAddress","type":"address"},{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"seller","type":"address"},{"name":"price","type":"uint256"},{"name":"paymentTokenAddress","type":"address"},{"name":"active","type":"bool"}]}
]`
