// internal/wallet/session.go
package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/sonic-defi/internal/blockchain"
	"github.com/rovshanmuradov/sonic-defi/internal/events"
	"github.com/rovshanmuradov/sonic-defi/internal/types"
	"github.com/rovshanmuradov/sonic-defi/internal/utils/metrics"
)

// SessionState is a consistent view of the manager.
type SessionState struct {
	Session      *types.WalletSession
	WrongNetwork bool
	LastError    error
}

// Manager owns the wallet session lifecycle: connection, network checks and
// reaction to provider events. It never fetches balances.
type Manager struct {
	provider Provider
	backend  blockchain.Backend
	network  types.Network
	bus      *events.Bus
	metrics  *metrics.Collector
	logger   *zap.Logger

	mu           sync.RWMutex
	session      *types.WalletSession
	wrongNetwork bool
	lastErr      error
}

// NewManager создаёт менеджер сессии. provider может быть nil: тогда Connect
// вернёт ErrWalletUnavailable.
func NewManager(provider Provider, backend blockchain.Backend, network types.Network, bus *events.Bus, collector *metrics.Collector, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		provider: provider,
		backend:  backend,
		network:  network,
		bus:      bus,
		metrics:  collector,
		logger:   logger.Named("session"),
	}
}

// Connect prompts for accounts, moves the wallet to the target network and
// publishes a fresh session.
func (m *Manager) Connect(ctx context.Context) (common.Address, error) {
	if m.provider == nil {
		return common.Address{}, m.fail(ErrWalletUnavailable)
	}

	accounts, err := m.provider.RequestAccounts(ctx)
	if err != nil {
		if errors.Is(err, ErrUserRejected) {
			return common.Address{}, m.fail(ErrUserRejected)
		}
		return common.Address{}, m.fail(fmt.Errorf("request accounts: %w", err))
	}
	if len(accounts) == 0 {
		return common.Address{}, m.fail(fmt.Errorf("%w: no accounts returned", ErrWalletUnavailable))
	}

	chainID, err := m.provider.ChainID(ctx)
	if err != nil {
		return common.Address{}, m.fail(fmt.Errorf("read chain id: %w", err))
	}
	if chainID != m.network.ChainID {
		m.logger.Info("Wallet on foreign chain, switching",
			zap.Uint64("current", chainID),
			zap.Uint64("target", m.network.ChainID))
		if err := m.ensureNetwork(ctx); err != nil {
			return common.Address{}, m.fail(err)
		}
	}

	session := m.buildSession(accounts[0], m.network.ChainID)
	m.mu.Lock()
	m.session = session
	m.wrongNetwork = false
	m.lastErr = nil
	m.mu.Unlock()

	m.logger.Info("Wallet connected", zap.String("address", session.Address.Hex()))
	m.publishSession(events.SessionConnected, session)
	return session.Address, nil
}

func (m *Manager) ensureNetwork(ctx context.Context) error {
	target := m.network.ChainID
	err := m.provider.SwitchChain(ctx, target)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUserRejected) {
		return ErrUserRejected
	}
	if code, ok := ErrorCode(err); !ok || code != CodeUnrecognizedChain {
		return fmt.Errorf("%w: %v", ErrNetworkSwitchFailed, err)
	}

	// Сеть неизвестна кошельку: регистрируем и повторяем переключение.
	if err := m.provider.AddChain(ctx, AddChainParamsFor(m.network)); err != nil {
		if errors.Is(err, ErrUserRejected) {
			return ErrUserRejected
		}
		return fmt.Errorf("%w: %v", ErrNetworkAddFailed, err)
	}
	if err := m.provider.SwitchChain(ctx, target); err != nil {
		if errors.Is(err, ErrUserRejected) {
			return ErrUserRejected
		}
		return fmt.Errorf("%w: %v", ErrNetworkSwitchFailed, err)
	}
	return nil
}

// GetSession restores an already authorized session without prompting.
// It returns nil, nil when the wallet exposes no accounts.
func (m *Manager) GetSession(ctx context.Context) (*types.WalletSession, error) {
	if m.provider == nil {
		return nil, ErrWalletUnavailable
	}
	accounts, err := m.provider.Accounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("accounts: %w", err)
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	chainID, err := m.provider.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("read chain id: %w", err)
	}

	session := m.buildSession(accounts[0], chainID)
	wrong := chainID != m.network.ChainID
	m.mu.Lock()
	m.session = session
	m.wrongNetwork = wrong
	m.mu.Unlock()

	m.publishSession(events.SessionConnected, session)
	if wrong {
		m.publishWrongNetwork(session, chainID)
	}
	return session, nil
}

// HandleAccountsChanged reacts to the provider's accountsChanged event.
func (m *Manager) HandleAccountsChanged(accounts []common.Address) {
	if len(accounts) == 0 {
		m.Disconnect()
		return
	}

	m.mu.Lock()
	current := m.session
	if current == nil || current.Address == accounts[0] {
		m.mu.Unlock()
		return
	}
	session := m.buildSession(accounts[0], current.ChainID)
	m.session = session
	m.mu.Unlock()

	m.logger.Info("Wallet account changed",
		zap.String("from", current.Address.Hex()),
		zap.String("to", session.Address.Hex()))
	m.publishSession(events.SessionChanged, session)
}

// HandleChainChanged reacts to the provider's chainChanged event.
func (m *Manager) HandleChainChanged(chainID uint64) {
	m.mu.Lock()
	current := m.session
	if current == nil {
		m.mu.Unlock()
		return
	}
	if chainID != m.network.ChainID {
		m.wrongNetwork = true
		m.lastErr = ErrWrongNetwork
		m.mu.Unlock()

		m.logger.Warn("Wallet moved to wrong network",
			zap.Uint64("chain_id", chainID),
			zap.Uint64("expected", m.network.ChainID))
		m.publishWrongNetwork(current, chainID)
		return
	}

	session := m.buildSession(current.Address, chainID)
	m.session = session
	m.wrongNetwork = false
	m.lastErr = nil
	m.mu.Unlock()

	m.publishSession(events.SessionChanged, session)
}

// Watch subscribes the handlers to provider events. The returned func
// removes both subscriptions.
func (m *Manager) Watch(ctx context.Context) (func(), error) {
	if m.provider == nil {
		return nil, ErrWalletUnavailable
	}

	unsubAccounts, err := m.provider.Subscribe(ctx, EventAccountsChanged, func(raw json.RawMessage) {
		var accounts []common.Address
		if err := json.Unmarshal(raw, &accounts); err != nil {
			m.logger.Warn("Malformed accountsChanged payload", zap.Error(err))
			return
		}
		m.HandleAccountsChanged(accounts)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", EventAccountsChanged, err)
	}

	unsubChain, err := m.provider.Subscribe(ctx, EventChainChanged, func(raw json.RawMessage) {
		var id hexutil.Uint64
		if err := json.Unmarshal(raw, &id); err != nil {
			m.logger.Warn("Malformed chainChanged payload", zap.Error(err))
			return
		}
		m.HandleChainChanged(uint64(id))
	})
	if err != nil {
		unsubAccounts()
		return nil, fmt.Errorf("subscribe %s: %w", EventChainChanged, err)
	}

	return func() {
		unsubAccounts()
		unsubChain()
	}, nil
}

// Disconnect tears the session down.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	previous := m.session
	m.session = nil
	m.wrongNetwork = false
	m.mu.Unlock()

	if previous == nil {
		return
	}
	m.logger.Info("Wallet disconnected", zap.String("address", previous.Address.Hex()))
	m.publishSession(events.SessionDisconnected, previous)
}

// State returns a snapshot of the manager.
func (m *Manager) State() SessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return SessionState{Session: m.session, WrongNetwork: m.wrongNetwork, LastError: m.lastErr}
}

// Session returns the published session or nil.
func (m *Manager) Session() *types.WalletSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

func (m *Manager) buildSession(addr common.Address, chainID uint64) *types.WalletSession {
	var signer blockchain.Signer
	if sp, ok := m.provider.(SignerProvider); ok {
		signer = sp.Signer(addr, chainID)
	}
	return &types.WalletSession{
		Provider: m.backend,
		Signer:   signer,
		Address:  addr,
		ChainID:  chainID,
	}
}

func (m *Manager) fail(err error) error {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
	m.logger.Warn("Wallet connection failed", zap.Error(err))
	return err
}

func (m *Manager) publishSession(t events.EventType, s *types.WalletSession) {
	m.mu.RLock()
	connected := m.session != nil
	wrong := m.wrongNetwork
	m.mu.RUnlock()
	m.metrics.UpdateSessionState(connected, wrong)

	if err := m.bus.Publish(&events.SessionEvent{
		BaseEvent: events.NewBase(t),
		Address:   s.Address.Hex(),
		ChainID:   s.ChainID,
	}); err != nil {
		m.logger.Debug("Session event not published", zap.Error(err))
	}
}

func (m *Manager) publishWrongNetwork(s *types.WalletSession, chainID uint64) {
	m.metrics.UpdateSessionState(true, true)
	if err := m.bus.Publish(&events.SessionEvent{
		BaseEvent: events.NewBase(events.WrongNetwork),
		Address:   s.Address.Hex(),
		ChainID:   chainID,
		Expected:  m.network.ChainID,
	}); err != nil {
		m.logger.Debug("Session event not published", zap.Error(err))
	}
}
