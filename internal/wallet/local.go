// internal/wallet/local.go
package wallet

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/sonic-defi/internal/blockchain"
)

// LocalProvider exposes a local key as a wallet. It is pinned to the backend's
// chain and never emits events.
type LocalProvider struct {
	wallet  *Wallet
	backend blockchain.Backend
	logger  *zap.Logger
}

var (
	_ Provider       = (*LocalProvider)(nil)
	_ SignerProvider = (*LocalProvider)(nil)
)

func NewLocalProvider(w *Wallet, backend blockchain.Backend, logger *zap.Logger) *LocalProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalProvider{wallet: w, backend: backend, logger: logger}
}

func (p *LocalProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	return []common.Address{p.wallet.Address}, nil
}

func (p *LocalProvider) Accounts(ctx context.Context) ([]common.Address, error) {
	return []common.Address{p.wallet.Address}, nil
}

func (p *LocalProvider) ChainID(ctx context.Context) (uint64, error) {
	id, err := p.backend.ChainID(ctx)
	if err != nil {
		return 0, fmt.Errorf("chain id: %w", err)
	}
	return id.Uint64(), nil
}

func (p *LocalProvider) SwitchChain(ctx context.Context, chainID uint64) error {
	current, err := p.ChainID(ctx)
	if err != nil {
		return err
	}
	if current != chainID {
		return &ProviderError{Code: CodeUnrecognizedChain, Message: fmt.Sprintf("backend serves chain %d", current)}
	}
	return nil
}

func (p *LocalProvider) AddChain(ctx context.Context, params AddChainParams) error {
	return fmt.Errorf("local wallet cannot register chain %s", params.ChainID)
}

func (p *LocalProvider) Subscribe(ctx context.Context, event string, handler func(json.RawMessage)) (func(), error) {
	return func() {}, nil
}

func (p *LocalProvider) Signer(addr common.Address, chainID uint64) blockchain.Signer {
	if addr != p.wallet.Address {
		return nil
	}
	return NewKeySigner(p.wallet, p.backend, chainID, p.logger)
}
