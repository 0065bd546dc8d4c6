package allowance

import (
	"context"
	"errors"
	"math/big"
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
	"github.com/rovshanmuradov/sonic-defi/internal/transaction"
	"github.com/rovshanmuradov/sonic-defi/internal/types"
)

var (
	usdc    = common.HexToAddress("0x29219dd400f2Bf60E5a23d13Be72B486D4038894")
	owner   = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	router  = common.HexToAddress("0x5543c6176feb9b4b179078205d7c29eea2e2d695")
	txHash  = common.HexToHash("0xfeed")
	options = transaction.Options{ConfirmTimeout: time.Second, PollInterval: time.Millisecond}
)

func newCoordinator(t *testing.T, backend *blockchaintest.Backend, signer *blockchaintest.Signer) *Coordinator {
	var sessions types.SessionSource
	if signer != nil {
		sessions = blockchaintest.SessionFor(backend, signer)
	}
	tx := transaction.NewManager(backend, options, nil, zaptest.NewLogger(t))
	return NewCoordinator(backend, tx, sessions, zaptest.NewLogger(t))
}

func expectToken(t *testing.T, backend *blockchaintest.Backend, allowance int64) {
	backend.OnCode(usdc).Return(blockchaintest.Code, nil)
	backend.OnCall(usdc, contracts.ERC20ABI, "decimals").
		Return(blockchaintest.Outputs(t, contracts.ERC20ABI, "decimals", uint8(6)), nil)
	backend.OnCall(usdc, contracts.ERC20ABI, "allowance").
		Return(blockchaintest.Outputs(t, contracts.ERC20ABI, "allowance", big.NewInt(allowance)), nil)
}

func TestGetAllowanceShortCircuits(t *testing.T) {
	// Backend без ожиданий: любой вызов сети уронит тест.
	c := newCoordinator(t, &blockchaintest.Backend{}, nil)
	ctx := context.Background()

	assert.Equal(t, "0", c.GetAllowance(ctx, types.NativeAddress, owner.Hex(), router.Hex()))
	assert.Equal(t, "0", c.GetAllowance(ctx, "0xbad", owner.Hex(), router.Hex()))
	assert.Equal(t, "0", c.GetAllowance(ctx, usdc.Hex(), "owner", router.Hex()))
	assert.Equal(t, "0", c.GetAllowance(ctx, usdc.Hex(), owner.Hex(), ""))
}

func TestGetAllowanceDegradesOnChainErrors(t *testing.T) {
	backend := &blockchaintest.Backend{}
	backend.OnCode(usdc).Return([]byte{}, nil)
	c := newCoordinator(t, backend, nil)
	assert.Equal(t, "0", c.GetAllowance(context.Background(), usdc.Hex(), owner.Hex(), router.Hex()))

	failing := &blockchaintest.Backend{}
	failing.OnCode(usdc).Return(blockchaintest.Code, nil)
	failing.OnCall(usdc, contracts.ERC20ABI, "allowance").Return(nil, errors.New("timeout"))
	c = newCoordinator(t, failing, nil)
	assert.Equal(t, "0", c.GetAllowance(context.Background(), usdc.Hex(), owner.Hex(), router.Hex()))
}

func TestGetAllowanceUpdatesCache(t *testing.T) {
	backend := &blockchaintest.Backend{}
	expectToken(t, backend, 1_500_000)
	c := newCoordinator(t, backend, nil)

	first := c.GetAllowance(context.Background(), usdc.Hex(), owner.Hex(), router.Hex())
	second := c.GetAllowance(context.Background(), usdc.Hex(), owner.Hex(), router.Hex())
	assert.Equal(t, "1.5", first)
	assert.Equal(t, first, second)

	assert.True(t, c.Cache().Insufficient(usdc.Hex(), owner.Hex(), router.Hex(), "2"))
	assert.False(t, c.Cache().Insufficient(usdc.Hex(), owner.Hex(), router.Hex(), "1.5"))
	assert.False(t, c.Cache().Insufficient(usdc.Hex(), owner.Hex(), usdc.Hex(), "100"), "unknown entries are not insufficient")
}

func TestGetAllowanceFailedReadForgetsCachedValue(t *testing.T) {
	backend := &blockchaintest.Backend{}
	backend.OnCode(usdc).Return(blockchaintest.Code, nil)
	backend.OnCall(usdc, contracts.ERC20ABI, "decimals").
		Return(blockchaintest.Outputs(t, contracts.ERC20ABI, "decimals", uint8(6)), nil)
	backend.OnCall(usdc, contracts.ERC20ABI, "allowance").
		Return(blockchaintest.Outputs(t, contracts.ERC20ABI, "allowance", big.NewInt(50_000_000)), nil).Once()
	backend.OnCall(usdc, contracts.ERC20ABI, "allowance").Return(nil, errors.New("rpc timeout"))
	c := newCoordinator(t, backend, nil)
	ctx := context.Background()

	assert.Equal(t, "50", c.GetAllowance(ctx, usdc.Hex(), owner.Hex(), router.Hex()))
	_, known := c.Cache().Get(usdc.Hex(), owner.Hex(), router.Hex())
	require.True(t, known)

	assert.Equal(t, "0", c.GetAllowance(ctx, usdc.Hex(), owner.Hex(), router.Hex()))
	_, known = c.Cache().Get(usdc.Hex(), owner.Hex(), router.Hex())
	assert.False(t, known, "failed read must not leave the old allowance behind")
}

func TestApproveValidation(t *testing.T) {
	backend := &blockchaintest.Backend{}
	backend.OnCode(usdc).Return([]byte{}, nil)
	c := newCoordinator(t, backend, &blockchaintest.Signer{Addr: owner})
	ctx := context.Background()

	tests := []struct {
		name   string
		token  string
		spend  string
		amount string
		owner  string
		want   error
	}{
		{"native", types.NativeAddress, router.Hex(), "1", owner.Hex(), types.ErrNativeTokenNotApprovable},
		{"bad token", "0x12", router.Hex(), "1", owner.Hex(), types.ErrInvalidAddress},
		{"bad spender", usdc.Hex(), "router", "1", owner.Hex(), types.ErrInvalidAddress},
		{"bad owner", usdc.Hex(), router.Hex(), "1", "me", types.ErrInvalidAddress},
		{"zero amount", usdc.Hex(), router.Hex(), "0", owner.Hex(), types.ErrInvalidAmount},
		{"no code", usdc.Hex(), router.Hex(), "1", owner.Hex(), types.ErrContractNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Approve(ctx, tt.token, tt.spend, tt.amount, tt.owner)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestApproveRequiresSession(t *testing.T) {
	backend := &blockchaintest.Backend{}
	backend.OnCode(usdc).Return(blockchaintest.Code, nil)
	c := newCoordinator(t, backend, nil)

	_, err := c.Approve(context.Background(), usdc.Hex(), router.Hex(), "1", owner.Hex())
	assert.ErrorIs(t, err, types.ErrNoSession)
}

func TestApproveSendsExactAmount(t *testing.T) {
	backend := &blockchaintest.Backend{}
	expectToken(t, backend, 0)
	backend.On("TransactionReceipt", mock.Anything, txHash).Return(blockchaintest.Receipt(txHash, true), nil)

	signer := &blockchaintest.Signer{Addr: owner, Hash: txHash}
	c := newCoordinator(t, backend, signer)

	hash, err := c.Approve(context.Background(), usdc.Hex(), router.Hex(), "2.5", owner.Hex())
	require.NoError(t, err)
	assert.Equal(t, txHash, hash)

	sent := signer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, usdc, sent[0].To)
	want, err := contracts.PackApprove(router, big.NewInt(2_500_000))
	require.NoError(t, err)
	assert.Equal(t, want, sent[0].Data)

	assert.False(t, c.Cache().Insufficient(usdc.Hex(), owner.Hex(), router.Hex(), "2.5"))
}

func TestApproveRevertIsError(t *testing.T) {
	backend := &blockchaintest.Backend{}
	expectToken(t, backend, 0)
	backend.On("TransactionReceipt", mock.Anything, txHash).Return(blockchaintest.Receipt(txHash, false), nil)

	c := newCoordinator(t, backend, &blockchaintest.Signer{Addr: owner, Hash: txHash})
	_, err := c.Approve(context.Background(), usdc.Hex(), router.Hex(), "1", owner.Hex())
	assert.ErrorIs(t, err, blockchain.ErrTransactionReverted)
}

func TestEnsure(t *testing.T) {
	backend := &blockchaintest.Backend{}
	expectToken(t, backend, 5_000_000)
	signer := &blockchaintest.Signer{Addr: owner, Hash: txHash}
	c := newCoordinator(t, backend, signer)
	ctx := context.Background()

	approved, _, err := c.Ensure(ctx, usdc.Hex(), router.Hex(), "5", owner.Hex())
	require.NoError(t, err)
	assert.False(t, approved)
	assert.Empty(t, signer.Sent())

	backend.On("TransactionReceipt", mock.Anything, txHash).Return(blockchaintest.Receipt(txHash, true), nil)
	approved, hash, err := c.Ensure(ctx, usdc.Hex(), router.Hex(), "7", owner.Hex())
	require.NoError(t, err)
	assert.True(t, approved)
	assert.Equal(t, txHash, hash)

	approved, _, err = c.Ensure(ctx, types.NativeAddress, router.Hex(), "7", owner.Hex())
	require.NoError(t, err)
	assert.False(t, approved)
}
