package address

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Mode selects between a real on-chain call and its simulated counterpart.
type Mode int

const (
	ModeReal Mode = iota
	ModeSimulated
)

func (m Mode) String() string {
	if m == ModeSimulated {
		return "simulated"
	}
	return "real"
}

// Target is a contract resolved once per operation: either Real(address) or Simulated.
type Target struct {
	mode    Mode
	address common.Address
}

// Real returns a target backed by a deployed contract.
func Real(addr common.Address) Target {
	return Target{mode: ModeReal, address: addr}
}

// Simulated returns a target for an unconfigured contract.
func Simulated() Target {
	return Target{mode: ModeSimulated}
}

// Resolve turns a configured address string into a Target. Placeholders are
// Simulated, valid addresses are Real, anything else is an error.
func Resolve(s string) (Target, error) {
	if IsPlaceholder(s) {
		return Simulated(), nil
	}
	addr, err := Parse(s)
	if err != nil {
		return Target{}, err
	}
	return Real(addr), nil
}

// ResolveAll resolves every address and collapses to Simulated if any one is.
// The returned slice holds the real addresses in input order when Mode is real.
func ResolveAll(addrs ...string) (Mode, []common.Address, error) {
	out := make([]common.Address, 0, len(addrs))
	mode := ModeReal
	for _, s := range addrs {
		t, err := Resolve(s)
		if err != nil {
			return ModeReal, nil, fmt.Errorf("resolve %q: %w", s, err)
		}
		if t.IsSimulated() {
			mode = ModeSimulated
			continue
		}
		out = append(out, t.address)
	}
	if mode == ModeSimulated {
		return ModeSimulated, nil, nil
	}
	return ModeReal, out, nil
}

func (t Target) Mode() Mode        { return t.mode }
func (t Target) IsSimulated() bool { return t.mode == ModeSimulated }

// Address returns the contract address. It is the zero address for Simulated targets.
func (t Target) Address() common.Address { return t.address }

func (t Target) String() string {
	if t.IsSimulated() {
		return "Simulated"
	}
	return fmt.Sprintf("Real(%s)", t.address.Hex())
}
