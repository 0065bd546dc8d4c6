// internal/wallet/provider.go
package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/rovshanmuradov/sonic-defi/internal/blockchain"
	"github.com/rovshanmuradov/sonic-defi/internal/types"
)

// Коды ошибок EIP-1193.
const (
	CodeUserRejected      = 4001
	CodeUnrecognizedChain = 4902
)

// Имена событий провайдера.
const (
	EventAccountsChanged = "accountsChanged"
	EventChainChanged    = "chainChanged"
)

var (
	ErrWalletUnavailable   = errors.New("no wallet provider available")
	ErrUserRejected        = errors.New("user rejected the request")
	ErrNetworkAddFailed    = errors.New("failed to add network to wallet")
	ErrNetworkSwitchFailed = errors.New("failed to switch wallet network")
	ErrWrongNetwork        = errors.New("wallet is connected to the wrong network")
)

// ProviderError is a coded EIP-1193 error.
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// Is maps code 4001 onto ErrUserRejected.
func (e *ProviderError) Is(target error) bool {
	return target == ErrUserRejected && e.Code == CodeUserRejected
}

// ErrorCode extracts an EIP-1193 code from err.
func ErrorCode(err error) (int, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code, true
	}
	var re rpc.Error
	if errors.As(err, &re) {
		return re.ErrorCode(), true
	}
	return 0, false
}

// AddChainParams is the wallet_addEthereumChain payload.
type AddChainParams struct {
	ChainID           string             `json:"chainId"`
	ChainName         string             `json:"chainName"`
	RPCURLs           []string           `json:"rpcUrls"`
	BlockExplorerURLs []string           `json:"blockExplorerUrls,omitempty"`
	NativeCurrency    AddChainCurrencies `json:"nativeCurrency"`
}

type AddChainCurrencies struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// AddChainParamsFor builds the registration payload from network metadata.
func AddChainParamsFor(n types.Network) AddChainParams {
	p := AddChainParams{
		ChainID:   hexutil.EncodeUint64(n.ChainID),
		ChainName: n.Name,
		RPCURLs:   []string{n.RPCURL},
		NativeCurrency: AddChainCurrencies{
			Name:     n.NativeCurrency.Name,
			Symbol:   n.NativeCurrency.Symbol,
			Decimals: n.NativeCurrency.Decimals,
		},
	}
	if n.ExplorerURL != "" {
		p.BlockExplorerURLs = []string{n.ExplorerURL}
	}
	return p
}

// Provider is an injected EIP-1193 wallet.
type Provider interface {
	// RequestAccounts prompts the user for access.
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	// Accounts returns already authorized accounts without prompting.
	Accounts(ctx context.Context) ([]common.Address, error)
	ChainID(ctx context.Context) (uint64, error)
	SwitchChain(ctx context.Context, chainID uint64) error
	AddChain(ctx context.Context, params AddChainParams) error
	// Subscribe delivers raw event payloads until the returned func is called.
	Subscribe(ctx context.Context, event string, handler func(json.RawMessage)) (func(), error)
}

// SignerProvider is implemented by providers that can sign for an account.
type SignerProvider interface {
	Signer(addr common.Address, chainID uint64) blockchain.Signer
}
