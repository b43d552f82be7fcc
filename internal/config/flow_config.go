package config

import (
	"strconv"
	"time"
)

type FlowConfig interface {
	GetFullnodeURL() string
	GetProverURL() string
	GetPopupTimeout() time.Duration
	GetPopupPollInterval() time.Duration
	GetEpochWindow() uint64
}

type Flow struct{}

var _ FlowConfig = Flow{}

// GetFullnodeURL returns the JSON-RPC endpoint used for epoch queries.
func (Flow) GetFullnodeURL() string {
	return GetEnv("FULLNODE_URL", "https://fullnode.devnet.sui.io")
}

// GetProverURL returns the proving service endpoint.
func (Flow) GetProverURL() string {
	return GetEnv("PROVER_URL", "https://prover-dev.mystenlabs.com/v1")
}

func (Flow) GetPopupTimeout() time.Duration {
	return 5 * time.Minute
}

func (Flow) GetPopupPollInterval() time.Duration {
	return 1 * time.Second
}

// GetEpochWindow returns how many epochs past the current one the ephemeral
// credentials stay valid.
func (Flow) GetEpochWindow() uint64 {
	if v, err := strconv.ParseUint(GetEnv("EPOCH_WINDOW", "2"), 10, 64); err == nil && v > 0 {
		return v
	}
	return 2
}
