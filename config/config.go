// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultLogLevel                   = "info"
	defaultGasLimit                   = uint64(1_000_000)
	defaultConfirmationTimeoutSeconds = 30
	defaultProvisionalWindowSeconds   = 60
)

// Config is the client configuration, sourced from a JSON config file with
// flag and environment-variable overrides.
type Config struct {
	LogLevel                   string `mapstructure:"log-level" json:"log-level"`
	RPCEndpoint                string `mapstructure:"rpc-endpoint" json:"rpc-endpoint"`
	WSEndpoint                 string `mapstructure:"ws-endpoint" json:"ws-endpoint"`
	ContractAddress            string `mapstructure:"contract-address" json:"contract-address"`
	AccountPrivateKey          string `mapstructure:"account-private-key" json:"account-private-key"`
	BlockchainID               string `mapstructure:"blockchain-id" json:"blockchain-id"`
	GasLimit                   uint64 `mapstructure:"gas-limit" json:"gas-limit"`
	ConfirmationTimeoutSeconds uint64 `mapstructure:"confirmation-timeout-seconds" json:"confirmation-timeout-seconds"`
	ProvisionalWindowSeconds   uint64 `mapstructure:"provisional-window-seconds" json:"provisional-window-seconds"`
}

func NewConfig(v *viper.Viper) (Config, error) {
	cfg, err := BuildConfig(v)
	if err != nil {
		return cfg, err
	}
	if err = cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("failed to validate configuration: %w", err)
	}
	return cfg, nil
}

// BuildViper constructs the viper instance. The config file must be provided
// via the command line flag or environment variable; all other keys may come
// from the config file or the environment.
func BuildViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.AutomaticEnv()
	// Map flag names to env var names. Flags are capitalized, and hyphens are replaced with underscores.
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}

	if !v.IsSet(ConfigFileKey) {
		return nil, fmt.Errorf("config file not set")
	}

	v.SetConfigFile(v.GetString(ConfigFileKey))
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	return v, nil
}

func SetDefaultConfigValues(v *viper.Viper) {
	v.SetDefault(LogLevelKey, defaultLogLevel)
	v.SetDefault(GasLimitKey, defaultGasLimit)
	v.SetDefault(ConfirmationTimeoutSecondsKey, defaultConfirmationTimeoutSeconds)
	v.SetDefault(ProvisionalWindowSecondsKey, defaultProvisionalWindowSeconds)
}

// BuildConfig constructs the client config using viper. Flags take
// precedence over the config file.
func BuildConfig(v *viper.Viper) (Config, error) {
	SetDefaultConfigValues(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to unmarshal viper config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.RPCEndpoint == "" {
		return fmt.Errorf("rpc endpoint not set")
	}
	if !common.IsHexAddress(c.ContractAddress) {
		return fmt.Errorf("invalid contract address %q", c.ContractAddress)
	}
	if _, err := crypto.HexToECDSA(strings.TrimPrefix(c.AccountPrivateKey, "0x")); err != nil {
		return fmt.Errorf("invalid account private key: %w", err)
	}
	if c.ConfirmationTimeoutSeconds == 0 {
		return fmt.Errorf("confirmation timeout must be positive")
	}
	return nil
}

// Contract returns the validated contract address.
func (c *Config) Contract() common.Address {
	return common.HexToAddress(c.ContractAddress)
}

// ConfirmationTimeout returns the confirmation bound as a duration.
func (c *Config) ConfirmationTimeout() time.Duration {
	return time.Duration(c.ConfirmationTimeoutSeconds) * time.Second
}

// ProvisionalWindow returns the optimistic-entry waiting window.
func (c *Config) ProvisionalWindow() time.Duration {
	return time.Duration(c.ProvisionalWindowSeconds) * time.Second
}
