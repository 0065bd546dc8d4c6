// internal/allowance/allowance.go
package allowance

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/sonic-defi/internal/address"
	"github.com/rovshanmuradov/sonic-defi/internal/blockchain"
	"github.com/rovshanmuradov/sonic-defi/internal/blockchain/contracts"
	"github.com/rovshanmuradov/sonic-defi/internal/transaction"
	"github.com/rovshanmuradov/sonic-defi/internal/types"
)

const txTypeApprove = "approve"

// Coordinator reads and grants ERC20 allowances. Reads never fail; writes
// go through the session signer and wait for one confirmation.
type Coordinator struct {
	backend  blockchain.Backend
	tx       *transaction.Manager
	sessions types.SessionSource
	cache    *Cache
	logger   *zap.Logger
}

func NewCoordinator(backend blockchain.Backend, tx *transaction.Manager, sessions types.SessionSource, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		backend:  backend,
		tx:       tx,
		sessions: sessions,
		cache:    NewCache(),
		logger:   logger.Named("allowance"),
	}
}

// Cache returns the known-allowance cache.
func (c *Coordinator) Cache() *Cache {
	return c.cache
}

// GetAllowance returns the formatted allowance or "0" on any problem. A failed
// read also forgets the cached value: a stale allowance must not outlive it.
func (c *Coordinator) GetAllowance(ctx context.Context, token, owner, spender string) string {
	if address.IsNative(token) || !address.IsValid(token) || !address.IsValid(owner) || !address.IsValid(spender) {
		return "0"
	}
	tokenAddr := common.HexToAddress(token)
	log := c.logger.With(zap.String("token", token), zap.String("spender", spender))

	hasCode, err := blockchain.HasCode(ctx, c.backend, tokenAddr)
	if err != nil || !hasCode {
		log.Warn("Token contract unavailable", zap.Error(err))
		c.cache.Forget(token, owner, spender)
		return "0"
	}
	raw, err := contracts.Allowance(ctx, c.backend, tokenAddr, common.HexToAddress(owner), common.HexToAddress(spender))
	if err != nil {
		log.Warn("Failed to read allowance", zap.Error(err))
		c.cache.Forget(token, owner, spender)
		return "0"
	}
	decimals, err := contracts.Decimals(ctx, c.backend, tokenAddr)
	if err != nil {
		log.Warn("Failed to read decimals", zap.Error(err))
		c.cache.Forget(token, owner, spender)
		return "0"
	}

	value := types.FormatUnits(raw, decimals)
	c.cache.Set(token, owner, spender, value)
	return value
}

// Approve grants spender exactly amount of token on behalf of owner.
func (c *Coordinator) Approve(ctx context.Context, token, spender, amount, owner string) (common.Hash, error) {
	if address.IsNative(token) {
		return common.Hash{}, types.ErrNativeTokenNotApprovable
	}
	tokenAddr, err := address.Parse(token)
	if err != nil {
		return common.Hash{}, fmt.Errorf("token: %w", err)
	}
	spenderAddr, err := address.Parse(spender)
	if err != nil {
		return common.Hash{}, fmt.Errorf("spender: %w", err)
	}
	ownerAddr, err := address.Parse(owner)
	if err != nil {
		return common.Hash{}, fmt.Errorf("owner: %w", err)
	}
	if _, ok := types.ParsePositiveAmount(amount); !ok {
		return common.Hash{}, fmt.Errorf("%w: %q", types.ErrInvalidAmount, amount)
	}

	hasCode, err := blockchain.HasCode(ctx, c.backend, tokenAddr)
	if err != nil {
		return common.Hash{}, err
	}
	if !hasCode {
		return common.Hash{}, fmt.Errorf("%w: %s", types.ErrContractNotFound, tokenAddr.Hex())
	}
	signer, err := types.SignerFor(c.sessions, ownerAddr)
	if err != nil {
		return common.Hash{}, err
	}

	decimals, err := contracts.Decimals(ctx, c.backend, tokenAddr)
	if err != nil {
		return common.Hash{}, fmt.Errorf("read decimals: %w", err)
	}
	raw, err := types.ParseUnits(amount, decimals)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", types.ErrInvalidAmount, err)
	}
	data, err := contracts.PackApprove(spenderAddr, raw)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack approve: %w", err)
	}

	c.logger.Info("Approving token",
		zap.String("token", tokenAddr.Hex()),
		zap.String("spender", spenderAddr.Hex()),
		zap.String("amount", amount))

	receipt, err := c.tx.SendAndConfirm(ctx, signer, txTypeApprove, blockchain.TxRequest{To: tokenAddr, Data: data})
	if err != nil {
		return common.Hash{}, err
	}

	c.cache.Set(token, owner, spender, types.FormatUnits(raw, decimals))
	return common.HexToHash(receipt.Hash), nil
}

// Ensure approves only when the current allowance is below amount. Native
// tokens and placeholder contracts need no approval.
func (c *Coordinator) Ensure(ctx context.Context, token, spender, amount, owner string) (bool, common.Hash, error) {
	if address.IsNative(token) || address.IsPlaceholder(token) || address.IsPlaceholder(spender) {
		return false, common.Hash{}, nil
	}
	want, ok := types.ParsePositiveAmount(amount)
	if !ok {
		return false, common.Hash{}, fmt.Errorf("%w: %q", types.ErrInvalidAmount, amount)
	}

	current, err := decimal.NewFromString(c.GetAllowance(ctx, token, owner, spender))
	if err == nil && current.GreaterThanOrEqual(want) {
		return false, common.Hash{}, nil
	}

	hash, err := c.Approve(ctx, token, spender, amount, owner)
	if err != nil {
		return false, common.Hash{}, err
	}
	return true, hash, nil
}
