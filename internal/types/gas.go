package types

import "math/big"

// GasTier records which degradation tier produced an estimate.
type GasTier string

const (
	GasTierLive     GasTier = "live"
	GasTierDegraded GasTier = "degraded"
	GasTierMocked   GasTier = "mocked"
)

// GasEstimate is always populated, even on failure paths, so a cost preview
// can be rendered.
type GasEstimate struct {
	GasLimit     uint64   `json:"gasLimit"`
	GasPrice     *big.Int `json:"gasPrice"`
	GasCostInWei *big.Int `json:"gasCostInWei"`
	GasCostInEth string   `json:"gasCostInEth"`
	GasCostInUSD string   `json:"gasCostInUsd,omitempty"`
	Tier         GasTier  `json:"tier"`
}
