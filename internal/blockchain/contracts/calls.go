// internal/blockchain/contracts/calls.go
package contracts

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

var (
	ErrNoRevertData      = errors.New("no revert data")
	ErrUndecodableRevert = errors.New("revert data is not an amount")
	ErrUnexpectedOutput  = errors.New("unexpected call output")
)

// Caller is the read-only surface a contract call needs.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// TokenInfo is the ERC20 metadata triple.
type TokenInfo struct {
	Name     string
	Symbol   string
	Decimals uint8
}

// QuoteParams is the QuoterV2 quoteExactInputSingle argument struct.
type QuoteParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	AmountIn          *big.Int
	Fee               *big.Int
	SqrtPriceLimitX96 *big.Int
}

// QuoteV2Result is the decoded QuoterV2 quoteExactInputSingle return.
type QuoteV2Result struct {
	AmountOut               *big.Int
	SqrtPriceX96After       *big.Int
	InitializedTicksCrossed uint32
	GasEstimate             *big.Int
}

// Reserves is the decoded getReserves return.
type Reserves struct {
	Reserve0           *big.Int
	Reserve1           *big.Int
	BlockTimestampLast uint32
}

// Listing is the decoded marketplace getListing return.
type Listing struct {
	Seller       common.Address
	Price        *big.Int
	PaymentToken common.Address
	Active       bool
}

// ExactInputSingleParams is the swap router argument struct.
type ExactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	Deadline          *big.Int
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

// Call packs method, runs eth_call against to and unpacks the outputs.
func Call(ctx context.Context, c Caller, parsed *abi.ABI, to common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	out, err := c.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

func callBigInt(ctx context.Context, c Caller, parsed *abi.ABI, to common.Address, method string, args ...interface{}) (*big.Int, error) {
	values, err := Call(ctx, c, parsed, to, method, args...)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%w: %s returned %d values", ErrUnexpectedOutput, method, len(values))
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: %s returned %T", ErrUnexpectedOutput, method, values[0])
	}
	return v, nil
}

func callAddress(ctx context.Context, c Caller, parsed *abi.ABI, to common.Address, method string, args ...interface{}) (common.Address, error) {
	values, err := Call(ctx, c, parsed, to, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	if len(values) != 1 {
		return common.Address{}, fmt.Errorf("%w: %s returned %d values", ErrUnexpectedOutput, method, len(values))
	}
	v, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s returned %T", ErrUnexpectedOutput, method, values[0])
	}
	return v, nil
}

// BalanceOf reads an ERC20 (or LP token) balance.
func BalanceOf(ctx context.Context, c Caller, token, owner common.Address) (*big.Int, error) {
	return callBigInt(ctx, c, ERC20ABI, token, "balanceOf", owner)
}

// Allowance reads an ERC20 allowance.
func Allowance(ctx context.Context, c Caller, token, owner, spender common.Address) (*big.Int, error) {
	return callBigInt(ctx, c, ERC20ABI, token, "allowance", owner, spender)
}

// ReadTokenInfo reads name, symbol and decimals.
func ReadTokenInfo(ctx context.Context, c Caller, token common.Address) (TokenInfo, error) {
	var info TokenInfo
	name, err := Call(ctx, c, ERC20ABI, token, "name")
	if err != nil {
		return info, err
	}
	symbol, err := Call(ctx, c, ERC20ABI, token, "symbol")
	if err != nil {
		return info, err
	}
	decimals, err := Call(ctx, c, ERC20ABI, token, "decimals")
	if err != nil {
		return info, err
	}

	var ok bool
	if info.Name, ok = name[0].(string); !ok {
		return info, fmt.Errorf("%w: name returned %T", ErrUnexpectedOutput, name[0])
	}
	if info.Symbol, ok = symbol[0].(string); !ok {
		return info, fmt.Errorf("%w: symbol returned %T", ErrUnexpectedOutput, symbol[0])
	}
	if info.Decimals, ok = decimals[0].(uint8); !ok {
		return info, fmt.Errorf("%w: decimals returned %T", ErrUnexpectedOutput, decimals[0])
	}
	return info, nil
}

// QuoteExactInputSingleV2 calls the QuoterV2 contract.
func QuoteExactInputSingleV2(ctx context.Context, c Caller, quoter common.Address, params QuoteParams) (QuoteV2Result, error) {
	values, err := Call(ctx, c, QuoterV2ABI, quoter, "quoteExactInputSingle", params)
	if err != nil {
		return QuoteV2Result{}, err
	}
	if len(values) != 4 {
		return QuoteV2Result{}, fmt.Errorf("%w: quoter v2 returned %d values", ErrUnexpectedOutput, len(values))
	}
	amountOut, ok1 := values[0].(*big.Int)
	sqrtPrice, ok2 := values[1].(*big.Int)
	ticks, ok3 := values[2].(uint32)
	gasEstimate, ok4 := values[3].(*big.Int)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return QuoteV2Result{}, fmt.Errorf("%w: quoter v2 tuple", ErrUnexpectedOutput)
	}
	return QuoteV2Result{
		AmountOut:               amountOut,
		SqrtPriceX96After:       sqrtPrice,
		InitializedTicksCrossed: ticks,
		GasEstimate:             gasEstimate,
	}, nil
}

// QuoteExactInputSingleV1 calls the legacy quoter. Legacy quoters may return the
// amount inside revert data; see DecodeRevertAmount.
func QuoteExactInputSingleV1(ctx context.Context, c Caller, quoter common.Address, params QuoteParams) (*big.Int, error) {
	return callBigInt(ctx, c, QuoterV1ABI, quoter, "quoteExactInputSingle",
		params.TokenIn, params.TokenOut, params.Fee, params.AmountIn, params.SqrtPriceLimitX96)
}

// PoolTokens reads token0 and token1 of a pair.
func PoolTokens(ctx context.Context, c Caller, pool common.Address) (common.Address, common.Address, error) {
	token0, err := callAddress(ctx, c, PoolABI, pool, "token0")
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	token1, err := callAddress(ctx, c, PoolABI, pool, "token1")
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	return token0, token1, nil
}

// GetReserves reads the pair reserves.
func GetReserves(ctx context.Context, c Caller, pool common.Address) (Reserves, error) {
	values, err := Call(ctx, c, PoolABI, pool, "getReserves")
	if err != nil {
		return Reserves{}, err
	}
	if len(values) != 3 {
		return Reserves{}, fmt.Errorf("%w: getReserves returned %d values", ErrUnexpectedOutput, len(values))
	}
	r0, ok1 := values[0].(*big.Int)
	r1, ok2 := values[1].(*big.Int)
	ts, ok3 := values[2].(uint32)
	if !ok1 || !ok2 || !ok3 {
		return Reserves{}, fmt.Errorf("%w: getReserves tuple", ErrUnexpectedOutput)
	}
	return Reserves{Reserve0: r0, Reserve1: r1, BlockTimestampLast: ts}, nil
}

// TotalSupply reads an LP token supply.
func TotalSupply(ctx context.Context, c Caller, pool common.Address) (*big.Int, error) {
	return callBigInt(ctx, c, PoolABI, pool, "totalSupply")
}

// OwnerOf reads the ERC721 owner of tokenID.
func OwnerOf(ctx context.Context, c Caller, nft common.Address, tokenID *big.Int) (common.Address, error) {
	return callAddress(ctx, c, ERC721ABI, nft, "ownerOf", tokenID)
}

// IsApprovedForAll reads the ERC721 operator approval.
func IsApprovedForAll(ctx context.Context, c Caller, nft, owner, operator common.Address) (bool, error) {
	values, err := Call(ctx, c, ERC721ABI, nft, "isApprovedForAll", owner, operator)
	if err != nil {
		return false, err
	}
	if len(values) != 1 {
		return false, fmt.Errorf("%w: isApprovedForAll returned %d values", ErrUnexpectedOutput, len(values))
	}
	approved, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("%w: isApprovedForAll returned %T", ErrUnexpectedOutput, values[0])
	}
	return approved, nil
}

// GetListing reads a marketplace listing.
func GetListing(ctx context.Context, c Caller, marketplace, nft common.Address, tokenID *big.Int) (Listing, error) {
	values, err := Call(ctx, c, MarketplaceABI, marketplace, "getListing", nft, tokenID)
	if err != nil {
		return Listing{}, err
	}
	if len(values) != 4 {
		return Listing{}, fmt.Errorf("%w: getListing returned %d values", ErrUnexpectedOutput, len(values))
	}
	seller, ok1 := values[0].(common.Address)
	price, ok2 := values[1].(*big.Int)
	payment, ok3 := values[2].(common.Address)
	active, ok4 := values[3].(bool)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return Listing{}, fmt.Errorf("%w: getListing tuple", ErrUnexpectedOutput)
	}
	return Listing{Seller: seller, Price: price, PaymentToken: payment, Active: active}, nil
}

// RevertData extracts the revert payload carried by an RPC error.
func RevertData(err error) ([]byte, bool) {
	var de rpc.DataError
	if !errors.As(err, &de) {
		return nil, false
	}
	switch v := de.ErrorData().(type) {
	case string:
		data, decErr := hexutil.Decode(v)
		if decErr != nil || len(data) == 0 {
			return nil, false
		}
		return data, true
	case []byte:
		return v, len(v) > 0
	}
	return nil, false
}

// DecodeRevertAmount reads a uint256 amount out of revert data, either raw or
// behind a 4-byte selector.
func DecodeRevertAmount(err error) (*big.Int, error) {
	data, ok := RevertData(err)
	if !ok {
		return nil, ErrNoRevertData
	}
	switch len(data) {
	case 32:
		return new(big.Int).SetBytes(data), nil
	case 36:
		return new(big.Int).SetBytes(data[4:]), nil
	}
	return nil, fmt.Errorf("%w: %d bytes", ErrUndecodableRevert, len(data))
}

// Decimals reads ERC20 decimals.
func Decimals(ctx context.Context, c Caller, token common.Address) (uint8, error) {
	values, err := Call(ctx, c, ERC20ABI, token, "decimals")
	if err != nil {
		return 0, err
	}
	if len(values) != 1 {
		return 0, fmt.Errorf("%w: decimals returned %d values", ErrUnexpectedOutput, len(values))
	}
	d, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("%w: decimals returned %T", ErrUnexpectedOutput, values[0])
	}
	return d, nil
}
