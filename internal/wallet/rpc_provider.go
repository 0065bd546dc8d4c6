// internal/wallet/rpc_provider.go
package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/sonic-defi/internal/blockchain"
)

// RPCProvider speaks EIP-1193 methods over a JSON-RPC connection (a wallet bridge
// or a dev node with unlocked accounts).
type RPCProvider struct {
	client *rpc.Client
	logger *zap.Logger
}

var (
	_ Provider       = (*RPCProvider)(nil)
	_ SignerProvider = (*RPCProvider)(nil)
)

// DialProvider connects to a wallet endpoint.
func DialProvider(ctx context.Context, url string, logger *zap.Logger) (*RPCProvider, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWalletUnavailable, err)
	}
	return NewRPCProvider(client, logger), nil
}

func NewRPCProvider(client *rpc.Client, logger *zap.Logger) *RPCProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RPCProvider{client: client, logger: logger.Named("wallet-rpc")}
}

func (p *RPCProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := p.call(ctx, &accounts, "eth_requestAccounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (p *RPCProvider) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := p.call(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (p *RPCProvider) ChainID(ctx context.Context) (uint64, error) {
	var id hexutil.Uint64
	if err := p.call(ctx, &id, "eth_chainId"); err != nil {
		return 0, err
	}
	return uint64(id), nil
}

func (p *RPCProvider) SwitchChain(ctx context.Context, chainID uint64) error {
	return p.call(ctx, nil, "wallet_switchEthereumChain",
		map[string]string{"chainId": hexutil.EncodeUint64(chainID)})
}

func (p *RPCProvider) AddChain(ctx context.Context, params AddChainParams) error {
	return p.call(ctx, nil, "wallet_addEthereumChain", params)
}

// Subscribe relies on a transport with notification support (ws or ipc).
func (p *RPCProvider) Subscribe(ctx context.Context, event string, handler func(json.RawMessage)) (func(), error) {
	ch := make(chan json.RawMessage, 8)
	sub, err := p.client.Subscribe(ctx, "wallet", ch, event)
	if err != nil {
		return nil, p.wrap(err)
	}

	go func() {
		for {
			select {
			case payload := <-ch:
				handler(payload)
			case err, ok := <-sub.Err():
				if ok && err != nil {
					p.logger.Warn("Wallet subscription dropped",
						zap.String("event", event), zap.Error(err))
				}
				return
			}
		}
	}()

	return sub.Unsubscribe, nil
}

type sendTxArgs struct {
	From  common.Address  `json:"from"`
	To    common.Address  `json:"to"`
	Data  hexutil.Bytes   `json:"data,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
	Gas   *hexutil.Uint64 `json:"gas,omitempty"`
}

// SendTransaction hands an unsigned transaction to the wallet via eth_sendTransaction.
func (p *RPCProvider) SendTransaction(ctx context.Context, req blockchain.TxRequest) (common.Hash, error) {
	args := sendTxArgs{From: req.From, To: req.To, Data: req.Data}
	if req.Value != nil && req.Value.Sign() > 0 {
		args.Value = (*hexutil.Big)(new(big.Int).Set(req.Value))
	}
	if req.Gas > 0 {
		gas := hexutil.Uint64(req.Gas)
		args.Gas = &gas
	}
	var hash common.Hash
	if err := p.call(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

// Signer returns a signer that delegates signing to the wallet.
func (p *RPCProvider) Signer(addr common.Address, _ uint64) blockchain.Signer {
	return &providerSigner{provider: p, address: addr}
}

func (p *RPCProvider) Close() {
	p.client.Close()
}

func (p *RPCProvider) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	if err := p.client.CallContext(ctx, result, method, args...); err != nil {
		p.logger.Debug("Wallet call failed", zap.String("method", method), zap.Error(err))
		return p.wrap(err)
	}
	return nil
}

// wrap converts coded JSON-RPC errors into ProviderError.
func (p *RPCProvider) wrap(err error) error {
	var re rpc.Error
	if errors.As(err, &re) {
		return &ProviderError{Code: re.ErrorCode(), Message: re.Error()}
	}
	return err
}

type providerSigner struct {
	provider *RPCProvider
	address  common.Address
}

func (s *providerSigner) Address() common.Address {
	return s.address
}

func (s *providerSigner) SendTransaction(ctx context.Context, req blockchain.TxRequest) (common.Hash, error) {
	req.From = s.address
	return s.provider.SendTransaction(ctx, req)
}
