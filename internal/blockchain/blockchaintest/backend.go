// Package blockchaintest provides a testify-backed fake of blockchain.Backend.
package blockchaintest

import (
	"bytes"
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/sonic-defi/internal/blockchain"
)

// Backend is a mock chain. Unexpected calls panic, which makes a test fail
// whenever code touches the network it should not.
type Backend struct {
	mock.Mock
}

var _ blockchain.Backend = (*Backend)(nil)

func (b *Backend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	args := b.Called(ctx, msg, blockNumber)
	var out []byte
	if v := args.Get(0); v != nil {
		out = v.([]byte)
	}
	return out, args.Error(1)
}

func (b *Backend) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	args := b.Called(ctx, account, blockNumber)
	var out []byte
	if v := args.Get(0); v != nil {
		out = v.([]byte)
	}
	return out, args.Error(1)
}

func (b *Backend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	args := b.Called(ctx, msg)
	return args.Get(0).(uint64), args.Error(1)
}

func (b *Backend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	args := b.Called(ctx)
	return bigOrNil(args.Get(0)), args.Error(1)
}

func (b *Backend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	args := b.Called(ctx, account, blockNumber)
	return bigOrNil(args.Get(0)), args.Error(1)
}

func (b *Backend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	args := b.Called(ctx, account)
	return args.Get(0).(uint64), args.Error(1)
}

func (b *Backend) ChainID(ctx context.Context) (*big.Int, error) {
	args := b.Called(ctx)
	return bigOrNil(args.Get(0)), args.Error(1)
}

func (b *Backend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return b.Called(ctx, tx).Error(0)
}

func (b *Backend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	args := b.Called(ctx, txHash)
	var r *types.Receipt
	if v := args.Get(0); v != nil {
		r = v.(*types.Receipt)
	}
	return r, args.Error(1)
}

func bigOrNil(v interface{}) *big.Int {
	if v == nil {
		return nil
	}
	return v.(*big.Int)
}

// OnCall expects an eth_call of method on contract, matched by selector.
func (b *Backend) OnCall(contract common.Address, parsed *abi.ABI, method string) *mock.Call {
	selector := parsed.Methods[method].ID
	return b.On("CallContract", mock.Anything, mock.MatchedBy(func(msg ethereum.CallMsg) bool {
		return msg.To != nil && *msg.To == contract && bytes.HasPrefix(msg.Data, selector)
	}), mock.Anything)
}

// OnCallData expects an eth_call to contract with exactly this calldata.
func (b *Backend) OnCallData(contract common.Address, data []byte) *mock.Call {
	return b.On("CallContract", mock.Anything, mock.MatchedBy(func(msg ethereum.CallMsg) bool {
		return msg.To != nil && *msg.To == contract && bytes.Equal(msg.Data, data)
	}), mock.Anything)
}

// OnCode expects a CodeAt lookup for account.
func (b *Backend) OnCode(account common.Address) *mock.Call {
	return b.On("CodeAt", mock.Anything, account, mock.Anything)
}

// Outputs ABI-encodes the return values of method.
func Outputs(t testing.TB, parsed *abi.ABI, method string, values ...interface{}) []byte {
	t.Helper()
	data, err := parsed.Methods[method].Outputs.Pack(values...)
	require.NoError(t, err)
	return data
}

// Input ABI-encodes a full call to method.
func Input(t testing.TB, parsed *abi.ABI, method string, args ...interface{}) []byte {
	t.Helper()
	data, err := parsed.Pack(method, args...)
	require.NoError(t, err)
	return data
}

// Code is non-empty bytecode for CodeAt expectations.
var Code = []byte{0x60, 0x80, 0x60, 0x40}

// RevertError mimics a JSON-RPC execution-reverted error carrying data.
type RevertError struct {
	Message string
	Data    []byte
}

func (e *RevertError) Error() string {
	if e.Message == "" {
		return "execution reverted"
	}
	return e.Message
}

func (e *RevertError) ErrorCode() int { return 3 }

func (e *RevertError) ErrorData() interface{} {
	if e.Data == nil {
		return nil
	}
	return hexutil.Encode(e.Data)
}

// Receipt returns a mined receipt with the given status.
func Receipt(hash common.Hash, success bool) *types.Receipt {
	status := types.ReceiptStatusSuccessful
	if !success {
		status = types.ReceiptStatusFailed
	}
	return &types.Receipt{
		TxHash:      hash,
		Status:      status,
		BlockNumber: big.NewInt(1),
		GasUsed:     21000,
	}
}
