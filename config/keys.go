// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

const (
	// Command line option keys
	ConfigFileKey = "config-file"
	VersionKey    = "version"
	HelpKey       = "help"

	// Environment variable keys
	ConfigFileEnvKey = "CONFIG_FILE"

	// Top-level configuration keys
	LogLevelKey                   = "log-level"
	RPCEndpointKey                = "rpc-endpoint"
	WSEndpointKey                 = "ws-endpoint"
	ContractAddressKey            = "contract-address"
	AccountPrivateKeyKey          = "account-private-key"
	BlockchainIDKey               = "blockchain-id"
	GasLimitKey                   = "gas-limit"
	ConfirmationTimeoutSecondsKey = "confirmation-timeout-seconds"
	ProvisionalWindowSecondsKey   = "provisional-window-seconds"
)
