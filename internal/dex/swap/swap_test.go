package swap

import (
	"context"
	"errors"
	"math/big"
	"regexp"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/sonic-defi/internal/blockchain"
	"github.com/rovshanmuradov/sonic-defi/internal/blockchain/blockchaintest"
	"github.com/rovshanmuradov/sonic-defi/internal/blockchain/contracts"
	"github.com/rovshanmuradov/sonic-defi/internal/gas"
	"github.com/rovshanmuradov/sonic-defi/internal/token"
	"github.com/rovshanmuradov/sonic-defi/internal/transaction"
	"github.com/rovshanmuradov/sonic-defi/internal/types"
)

var (
	router  = common.HexToAddress("0x5543c6176feb9b4b179078205d7c29eea2e2d695")
	ws      = common.HexToAddress("0x039e2fB66102314Ce7b64Ce5Ce3E5183bc94aD38")
	usdc    = common.HexToAddress("0x29219dd400f2Bf60E5a23d13Be72B486D4038894")
	trader  = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	txHash  = common.HexToHash("0xbeef")
	fixedAt = time.Unix(1_700_000_000, 0)

	hashPattern = regexp.MustCompile(`^0x[0-9a-f]{64}$`)
)

func testRegistry(t *testing.T) *token.Registry {
	r, err := token.NewRegistry([]types.Token{
		{ID: "s", Symbol: "S", Address: types.NativeAddress, Decimals: 18},
		{ID: "ws", Symbol: "wS", Address: ws.Hex(), Decimals: 18},
		{ID: "usdc", Symbol: "USDC", Address: usdc.Hex(), Decimals: 6},
		{ID: "sll", Symbol: "SLL", Address: "0xPLACEHOLDERSLLAddress", Decimals: 18},
	}, ws.Hex())
	require.NoError(t, err)
	return r
}

func newExecutor(t *testing.T, backend *blockchaintest.Backend, signer *blockchaintest.Signer, routerAddr string) *Executor {
	logger := zaptest.NewLogger(t)
	txm := transaction.NewManager(backend, transaction.Options{ConfirmTimeout: time.Second, PollInterval: time.Millisecond}, nil, logger)
	est := gas.NewEstimator(backend, 0, nil, "S", nil, logger)
	e := NewExecutor(backend, testRegistry(t), est, txm, blockchaintest.SessionFor(backend, signer), Options{
		Router:         routerAddr,
		SimulatedDelay: time.Millisecond,
	}, nil, logger)
	e.now = func() time.Time { return fixedAt }
	return e
}

func expectLiveSwap(backend *blockchaintest.Backend, receiptOK bool) {
	backend.OnCode(router).Return(blockchaintest.Code, nil)
	backend.On("EstimateGas", mock.Anything, mock.Anything).Return(uint64(200_000), nil)
	backend.On("SuggestGasPrice", mock.Anything).Return(big.NewInt(1_000_000_000), nil)
	backend.On("TransactionReceipt", mock.Anything, txHash).Return(blockchaintest.Receipt(txHash, receiptOK), nil)
}

func expectedParams(in, out common.Address, amountIn, minOut *big.Int, recipient common.Address) contracts.ExactInputSingleParams {
	return contracts.ExactInputSingleParams{
		TokenIn:           in,
		TokenOut:          out,
		Fee:               big.NewInt(3000),
		Recipient:         recipient,
		Deadline:          big.NewInt(fixedAt.Add(20 * time.Minute).Unix()),
		AmountIn:          amountIn,
		AmountOutMinimum:  minOut,
		SqrtPriceLimitX96: new(big.Int),
	}
}

func TestSwapPreflight(t *testing.T) {
	e := newExecutor(t, &blockchaintest.Backend{}, &blockchaintest.Signer{Addr: trader}, router.Hex())
	ctx := context.Background()

	_, err := e.Swap(ctx, "ws", "usdc", "0", "0", trader.Hex())
	assert.ErrorIs(t, err, types.ErrInvalidAmount)

	_, err = e.Swap(ctx, "ws", "usdc", "1", "0", "0x123")
	assert.ErrorIs(t, err, types.ErrInvalidAddress)

	_, err = e.Swap(ctx, "ws", "doge", "1", "0", trader.Hex())
	assert.ErrorIs(t, err, types.ErrUnknownToken)
}

func TestSwapSimulatedWithoutNetwork(t *testing.T) {
	signer := &blockchaintest.Signer{Addr: trader}

	for name, tc := range map[string]struct{ router, in string }{
		"placeholder router": {"0xPLACEHOLDERRouterAddress", "ws"},
		"placeholder token":  {router.Hex(), "sll"},
	} {
		t.Run(name, func(t *testing.T) {
			e := newExecutor(t, &blockchaintest.Backend{}, signer, tc.router)
			res, err := e.Swap(context.Background(), tc.in, "usdc", "1", "0.9", trader.Hex())
			require.NoError(t, err)
			assert.True(t, res.Simulated)
			assert.Regexp(t, hashPattern, res.Hash)
		})
	}
	assert.Empty(t, signer.Sent())
}

func TestSwapTokenToToken(t *testing.T) {
	backend := &blockchaintest.Backend{}
	expectLiveSwap(backend, true)
	signer := &blockchaintest.Signer{Addr: trader, Hash: txHash}

	res, err := newExecutor(t, backend, signer, router.Hex()).
		Swap(context.Background(), "usdc", "ws", "10", "9.5", trader.Hex())
	require.NoError(t, err)
	assert.False(t, res.Simulated)
	assert.Equal(t, txHash.Hex(), res.Hash)

	sent := signer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, router, sent[0].To)
	assert.Equal(t, uint64(240_000), sent[0].Gas)
	assert.Zero(t, sent[0].Value.Sign())

	minOut, _ := new(big.Int).SetString("9500000000000000000", 10)
	want, err := contracts.PackExactInputSingle(expectedParams(usdc, ws, big.NewInt(10_000_000), minOut, trader))
	require.NoError(t, err)
	assert.Equal(t, want, sent[0].Data)
}

func TestSwapNativeIn(t *testing.T) {
	backend := &blockchaintest.Backend{}
	expectLiveSwap(backend, true)
	signer := &blockchaintest.Signer{Addr: trader, Hash: txHash}

	_, err := newExecutor(t, backend, signer, router.Hex()).
		Swap(context.Background(), "s", "usdc", "2", "", trader.Hex())
	require.NoError(t, err)

	sent := signer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "2000000000000000000", sent[0].Value.String())

	two, _ := new(big.Int).SetString("2000000000000000000", 10)
	want, err := contracts.PackExactInputSingle(expectedParams(ws, usdc, two, new(big.Int), trader))
	require.NoError(t, err)
	assert.Equal(t, want, sent[0].Data)
}

func TestSwapNativeOutUsesMulticall(t *testing.T) {
	backend := &blockchaintest.Backend{}
	expectLiveSwap(backend, true)
	signer := &blockchaintest.Signer{Addr: trader, Hash: txHash}

	_, err := newExecutor(t, backend, signer, router.Hex()).
		Swap(context.Background(), "usdc", "s", "5", "4", trader.Hex())
	require.NoError(t, err)

	four, _ := new(big.Int).SetString("4000000000000000000", 10)
	swapCall, err := contracts.PackExactInputSingle(expectedParams(usdc, ws, big.NewInt(5_000_000), four, router))
	require.NoError(t, err)
	want, err := contracts.PackUnwrapToNative(swapCall, four, trader)
	require.NoError(t, err)

	sent := signer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, want, sent[0].Data)
	assert.Zero(t, sent[0].Value.Sign())
}

func TestSwapFailuresAreClassified(t *testing.T) {
	backend := &blockchaintest.Backend{}
	expectLiveSwap(backend, false)

	e := newExecutor(t, backend, &blockchaintest.Signer{Addr: trader, Hash: txHash}, router.Hex())
	_, err := e.Swap(context.Background(), "usdc", "ws", "1", "0", trader.Hex())
	assert.True(t, IsKind(err, KindReverted))
	assert.ErrorIs(t, err, blockchain.ErrTransactionReverted)

	rejected := newExecutor(t, backend, &blockchaintest.Signer{
		Addr: trader,
		Err:  errors.New("execution reverted: Too little received"),
	}, router.Hex())
	_, err = rejected.Swap(context.Background(), "usdc", "ws", "1", "0", trader.Hex())
	assert.True(t, IsKind(err, KindInsufficientOutput))
}

func TestSwapRequiresMatchingSession(t *testing.T) {
	backend := &blockchaintest.Backend{}
	other := common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	e := newExecutor(t, backend, &blockchaintest.Signer{Addr: other}, router.Hex())

	_, err := e.Swap(context.Background(), "usdc", "ws", "1", "0", trader.Hex())
	assert.ErrorIs(t, err, types.ErrSignerMismatch)
}

func TestEstimateGasForSimulatedPairIsMocked(t *testing.T) {
	e := newExecutor(t, &blockchaintest.Backend{}, &blockchaintest.Signer{Addr: trader}, router.Hex())
	est, err := e.EstimateGas(context.Background(), "sll", "usdc", "1", trader.Hex())
	require.NoError(t, err)
	assert.Equal(t, types.GasTierMocked, est.Tier)
	assert.Equal(t, uint64(300_000), est.GasLimit)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		msg  string
		kind ErrorKind
	}{
		{"execution reverted: Too little received", KindInsufficientOutput},
		{"UniswapV2Router: INSUFFICIENT_OUTPUT_AMOUNT", KindInsufficientOutput},
		{"Pair: INSUFFICIENT_LIQUIDITY", KindInsufficientLiquidity},
		{"execution reverted: LOK", KindInsufficientLiquidity},
		{"execution reverted: Transaction too old", KindDeadlineExpired},
		{"Router: EXPIRED", KindDeadlineExpired},
		{"execution reverted: STF", KindTransferFailed},
		{"TRANSFER_FROM_FAILED", KindTransferFailed},
		{"ERC20: transfer amount exceeds allowance", KindTransferFailed},
		{"insufficient funds for gas * price + value", KindInsufficientFunds},
		{"cannot estimate gas; transaction may fail", KindGasEstimation},
		{"gas required exceeds allowance (30000000)", KindGasEstimation},
		{"nonce too low", KindNonceConflict},
		{"replacement transaction underpriced", KindNonceConflict},
		{"execution reverted", KindReverted},
		{"connection refused", KindUnknown},
		{"blockstf", KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			err := Classify(errors.New(tt.msg))
			require.True(t, IsSwapError(err))
			assert.True(t, IsKind(err, tt.kind), "got %v", err)
		})
	}

	assert.NoError(t, Classify(nil))
	once := Classify(errors.New("nonce too low"))
	assert.Same(t, once, Classify(once))
}
