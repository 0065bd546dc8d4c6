// ==================================
// File: internal/wallet/wallet.go
// ==================================
package wallet

import (
	"context"
	"crypto/ecdsa"
	"encoding/csv"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/sonic-defi/internal/blockchain"
)

// Wallet представляет локальный EVM-кошелёк.
type Wallet struct {
	PrivateKey *ecdsa.PrivateKey
	Address    common.Address
}

// NewWallet создаёт новый кошелёк из hex-encoded приватного ключа (с 0x или без).
func NewWallet(privateKeyHex string) (*Wallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	return &Wallet{
		PrivateKey: key,
		Address:    crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// LoadWallets загружает кошельки из CSV-файла с колонками: [Name, PrivateKeyHex].
func LoadWallets(path string) (map[string]*Wallet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	// Строки с другим числом колонок пропускаются ниже, а не роняют весь файл.
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("CSV file is empty or missing data")
	}

	wallets := make(map[string]*Wallet)
	for _, record := range records[1:] {
		if len(record) != 2 {
			continue
		}
		w, err := NewWallet(record[1])
		if err != nil {
			continue
		}
		wallets[record[0]] = w
	}
	return wallets, nil
}

// String возвращает адрес кошелька в checksum-формате.
func (w *Wallet) String() string {
	return w.Address.Hex()
}

// KeySigner подписывает legacy-транзакции локальным ключом и отправляет их через Backend.
type KeySigner struct {
	wallet  *Wallet
	backend blockchain.Backend
	chainID *big.Int
	logger  *zap.Logger
}

var _ blockchain.Signer = (*KeySigner)(nil)

// NewKeySigner создаёт подписанта для chainID.
func NewKeySigner(w *Wallet, backend blockchain.Backend, chainID uint64, logger *zap.Logger) *KeySigner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeySigner{
		wallet:  w,
		backend: backend,
		chainID: new(big.Int).SetUint64(chainID),
		logger:  logger.Named("key-signer"),
	}
}

func (s *KeySigner) Address() common.Address {
	return s.wallet.Address
}

// SendTransaction заполняет nonce, цену газа и лимит (если не задан), подписывает и отправляет.
func (s *KeySigner) SendTransaction(ctx context.Context, req blockchain.TxRequest) (common.Hash, error) {
	from := s.wallet.Address
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := s.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := s.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("suggest gas price: %w", err)
	}
	gas := req.Gas
	if gas == 0 {
		to := req.To
		gas, err = s.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Value: value, Data: req.Data})
		if err != nil {
			return common.Hash{}, fmt.Errorf("estimate gas: %w", err)
		}
	}

	to := req.To
	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    value,
		Data:     req.Data,
	})
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(s.chainID), s.wallet.PrivateKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign transaction: %w", err)
	}
	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}

	s.logger.Debug("Transaction sent",
		zap.String("hash", signed.Hash().Hex()),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas", gas))
	return signed.Hash(), nil
}

// LoadKeySigners загружает кошельки из CSV и создаёт для каждого KeySigner.
func LoadKeySigners(path string, backend blockchain.Backend, chainID uint64, logger *zap.Logger) (map[string]*KeySigner, error) {
	wallets, err := LoadWallets(path)
	if err != nil {
		return nil, err
	}
	signers := make(map[string]*KeySigner, len(wallets))
	for name, w := range wallets {
		signers[name] = NewKeySigner(w, backend, chainID, logger)
	}
	return signers, nil
}
