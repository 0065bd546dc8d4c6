package blockchaintest

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rovshanmuradov/sonic-defi/internal/blockchain"
	"github.com/rovshanmuradov/sonic-defi/internal/types"
)

// Signer records every request and answers with Hash, or with a hash per
// call when Hashes is set.
type Signer struct {
	Addr   common.Address
	Hash   common.Hash
	Hashes []common.Hash
	Err    error

	mu   sync.Mutex
	reqs []blockchain.TxRequest
}

var _ blockchain.Signer = (*Signer)(nil)

func (s *Signer) Address() common.Address { return s.Addr }

func (s *Signer) SendTransaction(_ context.Context, req blockchain.TxRequest) (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	if s.Err != nil {
		return common.Hash{}, s.Err
	}
	if n := len(s.reqs) - 1; n < len(s.Hashes) {
		return s.Hashes[n], nil
	}
	return s.Hash, nil
}

// Sent returns a copy of the recorded requests.
func (s *Signer) Sent() []blockchain.TxRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]blockchain.TxRequest(nil), s.reqs...)
}

// Sessions is a fixed types.SessionSource.
type Sessions struct {
	S *types.WalletSession
}

func (s Sessions) Session() *types.WalletSession { return s.S }

// SessionFor builds a connected session on chain 146 for signer.
func SessionFor(backend blockchain.Backend, signer *Signer) Sessions {
	return Sessions{S: &types.WalletSession{
		Provider: backend,
		Signer:   signer,
		Address:  signer.Addr,
		ChainID:  146,
	}}
}
