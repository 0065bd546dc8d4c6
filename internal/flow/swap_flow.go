// internal/flow/swap_flow.go
package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/sonic-defi/internal/address"
	"github.com/rovshanmuradov/sonic-defi/internal/allowance"
	"github.com/rovshanmuradov/sonic-defi/internal/dex/quote"
	"github.com/rovshanmuradov/sonic-defi/internal/dex/swap"
	"github.com/rovshanmuradov/sonic-defi/internal/events"
	"github.com/rovshanmuradov/sonic-defi/internal/storage"
	"github.com/rovshanmuradov/sonic-defi/internal/storage/models"
	"github.com/rovshanmuradov/sonic-defi/internal/token"
	"github.com/rovshanmuradov/sonic-defi/internal/types"
	processlog "github.com/rovshanmuradov/sonic-defi/internal/utils/logger"
	"github.com/rovshanmuradov/sonic-defi/internal/wallet"
)

const (
	kindSwap    = "swap"
	kindApprove = "approve"
)

// ErrAllowanceNotGranted означает, что после approve allowance все еще мал.
var ErrAllowanceNotGranted = errors.New("allowance still insufficient after approval")

// Зависимости flow. Все реализованы пакетами ядра; интерфейсы нужны для тестов.
type (
	SessionState interface {
		State() wallet.SessionState
	}
	Quoter interface {
		GetSwapQuote(ctx context.Context, tokenIn, tokenOut, amountIn string) (*types.SwapQuote, error)
	}
	Swapper interface {
		Router() string
		Swap(ctx context.Context, tokenIn, tokenOut, amountIn, minAmountOut, trader string) (*swap.Result, error)
		EstimateGas(ctx context.Context, tokenIn, tokenOut, amountIn, trader string) (*types.GasEstimate, error)
	}
	Allowances interface {
		Cache() *allowance.Cache
		GetAllowance(ctx context.Context, token, owner, spender string) string
		Approve(ctx context.Context, token, spender, amount, owner string) (common.Hash, error)
	}
	BalanceReader interface {
		FetchBalances(ctx context.Context, owner string, tokens []types.Token) (map[string]string, error)
	}
)

// Deps собирает компоненты для SwapFlow. Journal и Bus необязательны.
type Deps struct {
	Sessions        SessionState
	Registry        *token.Registry
	Quotes          Quoter
	Swaps           Swapper
	Allowances      Allowances
	Balances        BalanceReader
	Journal         storage.Storage
	Bus             *events.Bus
	SlippagePercent float64
	Logger          *zap.Logger
}

// Preview is what the swap screen shows before the user confirms.
type Preview struct {
	Quote         *types.SwapQuote   `json:"quote"`
	MinAmountOut  string             `json:"minAmountOut"`
	Gas           *types.GasEstimate `json:"gas,omitempty"`
	NeedsApproval bool               `json:"needsApproval"`
	Allowance     string             `json:"allowance,omitempty"`
}

// ExecuteResult describes a finished approve-then-swap sequence.
type ExecuteResult struct {
	Approval string            `json:"approval,omitempty"`
	Swap     *swap.Result      `json:"swap"`
	Balances map[string]string `json:"balances,omitempty"`
}

// SwapFlow проводит свап для текущей сессии: allowance, approve, swap,
// обновление балансов и запись в журнал.
type SwapFlow struct {
	d      Deps
	logger *zap.Logger
}

func NewSwapFlow(d Deps) *SwapFlow {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.SlippagePercent <= 0 {
		d.SlippagePercent = types.DefaultSlippagePercent
	}
	return &SwapFlow{d: d, logger: d.Logger.Named("swap-flow")}
}

// MinAmountOut applies percentage slippage to a quoted amount.
func MinAmountOut(quoted string, slippagePercent float64) string {
	return types.CalculateMinAmountOut(quoted, types.SlippageConfig{
		Type:  types.SlippagePercent,
		Value: slippagePercent,
	})
}

// Preview quotes the swap and, when a wallet is connected, prices gas and
// checks the allowance. Gas and allowance problems never fail the preview.
func (f *SwapFlow) Preview(ctx context.Context, tokenIn, tokenOut, amount string) (*Preview, error) {
	q, err := f.d.Quotes.GetSwapQuote(ctx, tokenIn, tokenOut, amount)
	if err != nil {
		return nil, err
	}
	p := &Preview{Quote: q, MinAmountOut: MinAmountOut(q.AmountOut, f.d.SlippagePercent)}
	_ = f.d.Bus.Publish(&events.QuoteEvent{
		BaseEvent: events.NewBase(events.QuoteUpdated),
		Key:       quote.Key(tokenIn, tokenOut, amount),
		AmountOut: q.AmountOut,
		Strategy:  q.Strategy,
	})

	state := f.d.Sessions.State()
	if state.Session == nil {
		return p, nil
	}
	owner := state.Session.Address.Hex()

	gasEst, err := f.d.Swaps.EstimateGas(ctx, tokenIn, tokenOut, amount, owner)
	if err != nil {
		f.logger.Warn("Gas preview unavailable", zap.Error(err))
	} else {
		p.Gas = gasEst
	}

	src, err := f.d.Registry.Lookup(tokenIn)
	if err != nil {
		return nil, err
	}
	if f.needsApproval(src) {
		p.Allowance = f.d.Allowances.GetAllowance(ctx, src.Address, owner, f.d.Swaps.Router())
		have, _ := decimal.NewFromString(p.Allowance)
		want, _ := types.ParsePositiveAmount(amount)
		p.NeedsApproval = have.LessThan(want)
	}
	return p, nil
}

// Execute runs the approve-then-swap sequence. An empty minAmountOut is
// derived from a fresh quote and the configured slippage.
func (f *SwapFlow) Execute(ctx context.Context, tokenIn, tokenOut, amount, minAmountOut string) (*ExecuteResult, error) {
	log := processlog.WithOperation(f.logger, kindSwap)
	end := processlog.TrackOperation(log)
	res, err := f.execute(ctx, log, tokenIn, tokenOut, amount, minAmountOut)
	end(err)
	return res, err
}

func (f *SwapFlow) execute(ctx context.Context, log *zap.Logger, tokenIn, tokenOut, amount, minAmountOut string) (*ExecuteResult, error) {
	state := f.d.Sessions.State()
	if state.Session == nil {
		return nil, types.ErrNoSession
	}
	if state.WrongNetwork {
		return nil, wallet.ErrWrongNetwork
	}
	owner := state.Session.Address.Hex()

	if _, ok := types.ParsePositiveAmount(amount); !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrInvalidAmount, amount)
	}
	src, err := f.d.Registry.Lookup(tokenIn)
	if err != nil {
		return nil, err
	}
	dst, err := f.d.Registry.Lookup(tokenOut)
	if err != nil {
		return nil, err
	}
	log = log.With(
		zap.String("wallet", owner),
		zap.String("token_in", src.Symbol),
		zap.String("token_out", dst.Symbol),
		zap.String("amount", amount))

	if minAmountOut == "" {
		q, err := f.d.Quotes.GetSwapQuote(ctx, tokenIn, tokenOut, amount)
		if err != nil {
			return nil, err
		}
		minAmountOut = MinAmountOut(q.AmountOut, f.d.SlippagePercent)
	}

	res := &ExecuteResult{}
	if f.needsApproval(src) {
		hash, err := f.ensureAllowance(ctx, src, owner, amount)
		if err != nil {
			f.settle(ctx, kindApprove, "", owner, src, dst, amount, "", false, err)
			return nil, err
		}
		if hash != "" {
			res.Approval = hash
			f.settle(ctx, kindApprove, hash, owner, src, dst, amount, "", false, nil)
		}
	}

	log.Info("Executing swap", zap.String("min_amount_out", minAmountOut))
	result, err := f.d.Swaps.Swap(ctx, src.ID, dst.ID, amount, minAmountOut, owner)
	if err != nil {
		f.settle(ctx, kindSwap, "", owner, src, dst, amount, minAmountOut, false, err)
		return nil, err
	}
	res.Swap = result
	f.settle(ctx, kindSwap, result.Hash, owner, src, dst, amount, minAmountOut, result.Simulated, nil)

	res.Balances = f.refreshBalances(ctx, owner, src, dst)
	return res, nil
}

// Approve grants the router an exact allowance for amount of tokenIn without
// swapping. It returns "" when no approval was needed.
func (f *SwapFlow) Approve(ctx context.Context, tokenIn, amount string) (string, error) {
	end := processlog.TrackOperation(processlog.WithOperation(f.logger, kindApprove))
	hash, err := f.approve(ctx, tokenIn, amount)
	end(err)
	return hash, err
}

func (f *SwapFlow) approve(ctx context.Context, tokenIn, amount string) (string, error) {
	state := f.d.Sessions.State()
	if state.Session == nil {
		return "", types.ErrNoSession
	}
	if state.WrongNetwork {
		return "", wallet.ErrWrongNetwork
	}
	if _, ok := types.ParsePositiveAmount(amount); !ok {
		return "", fmt.Errorf("%w: %q", types.ErrInvalidAmount, amount)
	}
	src, err := f.d.Registry.Lookup(tokenIn)
	if err != nil {
		return "", err
	}
	if !f.needsApproval(src) {
		return "", nil
	}

	owner := state.Session.Address.Hex()
	hash, err := f.ensureAllowance(ctx, src, owner, amount)
	if err != nil {
		f.settle(ctx, kindApprove, "", owner, src, types.Token{}, amount, "", false, err)
		return "", err
	}
	if hash != "" {
		f.settle(ctx, kindApprove, hash, owner, src, types.Token{}, amount, "", false, nil)
	}
	return hash, nil
}

// ensureAllowance approves when the allowance is unknown or known to be short
// and then re-reads it. It returns the approval hash, or "" when none was sent.
// Only a fresh read counts: a read that failed leaves the allowance unknown
// whatever the cache held before.
func (f *SwapFlow) ensureAllowance(ctx context.Context, src types.Token, owner, amount string) (string, error) {
	spender := f.d.Swaps.Router()
	cache := f.d.Allowances.Cache()

	current := f.d.Allowances.GetAllowance(ctx, src.Address, owner, spender)
	if sufficient(current, amount) {
		if _, known := cache.Get(src.Address, owner, spender); known {
			return "", nil
		}
	}

	f.logger.Info("Allowance insufficient, approving",
		zap.String("token", src.Symbol),
		zap.String("spender", spender),
		zap.String("amount", amount))
	hash, err := f.d.Allowances.Approve(ctx, src.Address, spender, amount, owner)
	if err != nil {
		return "", fmt.Errorf("approve %s: %w", src.Symbol, err)
	}

	f.d.Allowances.GetAllowance(ctx, src.Address, owner, spender)
	if cache.Insufficient(src.Address, owner, spender, amount) {
		return hash.Hex(), ErrAllowanceNotGranted
	}
	return hash.Hex(), nil
}

// sufficient reports whether the freshly read allowance covers amount.
func sufficient(current, amount string) bool {
	have, err := decimal.NewFromString(current)
	if err != nil {
		return false
	}
	want, ok := types.ParsePositiveAmount(amount)
	return ok && have.GreaterThanOrEqual(want)
}

// needsApproval: нативный токен и незаданные контракты approve не требуют.
func (f *SwapFlow) needsApproval(src types.Token) bool {
	return !src.IsNative() && !address.IsPlaceholder(src.Address) && !address.IsPlaceholder(f.d.Swaps.Router())
}

func (f *SwapFlow) refreshBalances(ctx context.Context, owner string, tokens ...types.Token) map[string]string {
	if f.d.Balances == nil {
		return nil
	}
	balances, err := f.d.Balances.FetchBalances(ctx, owner, tokens)
	if err != nil {
		f.logger.Warn("Balance refresh failed", zap.Error(err))
		return nil
	}
	_ = f.d.Bus.Publish(&events.BalancesEvent{
		BaseEvent: events.NewBase(events.BalancesRefreshed),
		Wallet:    owner,
		Balances:  balances,
	})
	return balances
}

// settle публикует событие и пишет операцию в журнал. Ошибки журнала не
// прерывают flow.
func (f *SwapFlow) settle(ctx context.Context, kind, hash, owner string, src, dst types.Token, amountIn, amountOut string, simulated bool, opErr error) {
	evType := events.TransactionConfirmed
	status := models.StatusConfirmed
	errMsg := ""
	if opErr != nil {
		evType = events.TransactionFailed
		status = models.StatusFailed
		errMsg = opErr.Error()
	}
	_ = f.d.Bus.Publish(&events.TransactionEvent{
		BaseEvent: events.NewBase(evType),
		Kind:      kind,
		Hash:      hash,
		Wallet:    owner,
		Simulated: simulated,
		Err:       opErr,
	})

	if f.d.Journal == nil {
		return
	}
	if hash == "" {
		hash = "failed:" + uuid.NewString()
	}
	err := f.d.Journal.SaveActivity(ctx, &models.Activity{
		Hash:      hash,
		Wallet:    owner,
		Kind:      kind,
		TokenIn:   src.ID,
		TokenOut:  dst.ID,
		AmountIn:  amountIn,
		AmountOut: amountOut,
		Status:    status,
		Simulated: simulated,
		Error:     errMsg,
	})
	if err != nil {
		f.logger.Warn("Failed to journal activity", zap.String("hash", hash), zap.Error(err))
	}
}
