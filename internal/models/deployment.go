package models

import "time"

// Deployment represents a contract instance created (or bound) by a session
type Deployment struct {
	// Identification
	Address      string `json:"address"`
	ContractName string `json:"contract_name"`

	// Deployment metadata, empty for bound instances
	TxHash      string    `json:"tx_hash,omitempty"`
	BlockNumber uint64    `json:"block_number,omitempty"`
	Deployer    string    `json:"deployer,omitempty"`
	GasUsed     uint64    `json:"gas_used,omitempty"`
	DeployedAt  time.Time `json:"deployed_at"`

	// Initialization data
	ConstructorArgs []string `json:"constructor_args,omitempty"`
}
