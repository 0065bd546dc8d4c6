// internal/blockchain/types.go
package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrTransactionReverted сообщает о receipt со статусом failed.
var ErrTransactionReverted = errors.New("transaction reverted")

// Backend определяет подмножество JSON-RPC, которое нужно ядру.
// *ethclient.Client удовлетворяет интерфейсу напрямую.
type Backend interface {
	// Чтение состояния контрактов.
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	// Байткод по адресу.
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	// Оценка газа.
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	// Текущая цена газа.
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	// Нативный баланс.
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	// Nonce для следующей транзакции.
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	// Идентификатор сети.
	ChainID(ctx context.Context) (*big.Int, error)
	// Отправка подписанной транзакции.
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	// Получение receipt.
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// HasCode reports whether a contract is deployed at addr.
func HasCode(ctx context.Context, b Backend, addr common.Address) (bool, error) {
	code, err := b.CodeAt(ctx, addr, nil)
	if err != nil {
		return false, fmt.Errorf("code at %s: %w", addr.Hex(), err)
	}
	return len(code) > 0, nil
}

// TxRequest описывает транзакцию до подписи.
type TxRequest struct {
	From  common.Address
	To    common.Address
	Data  []byte
	Value *big.Int
	Gas   uint64
}

// Signer отправляет транзакции от имени одного аккаунта.
type Signer interface {
	Address() common.Address
	SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error)
}
