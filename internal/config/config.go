// Package config provides configuration loading for pooldeploy.
//
// Network profiles, compiler settings and deployment parameters are read
// from a YAML file and overridden by POOLDEPLOY_* environment variables.
// Signing secrets are never part of the file: a profile only names where
// the secret comes from (an environment variable, a keystore, a remote
// signer), and Load rejects files that try to inline one.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "POOLDEPLOY"

// DefaultKeyEnv is the environment variable holding the deployer key for
// public networks.
const DefaultKeyEnv = "POOLDEPLOY_PRIVATE_KEY"

// Signer types.
const (
	SignerEnv      = "env"
	SignerKeystore = "keystore"
	SignerRemote   = "remote"
	SignerDev      = "dev"
)

// Oracle deployment modes.
const (
	OracleModeKeeper = "keeper"
	OracleModeDirect = "direct"
)

var (
	ErrNetworkNotFound = errors.New("config: network not found")
	ErrInlineSecret    = errors.New("config: signing secrets must not be stored in the config file")
	ErrInvalid         = errors.New("config: invalid configuration")
)

// inlineSecretKeys are hardhat-style keys that carry key material directly.
var inlineSecretKeys = []string{"private_key", "privatekey", "accounts", "mnemonic"}

var versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// productionChainIDs are mainnets where publicly known development keys
// must never be used.
var productionChainIDs = map[uint64]string{
	1:     "Ethereum Mainnet",
	10:    "OP Mainnet",
	56:    "BNB Smart Chain",
	137:   "Polygon",
	8453:  "Base",
	42161: "Arbitrum One",
	43114: "Avalanche C-Chain",
}

// IsProductionChain reports whether chainID is a known mainnet.
func IsProductionChain(chainID uint64) bool {
	_, ok := productionChainIDs[chainID]
	return ok
}

// ChainName returns a human readable name for well-known chain ids.
func ChainName(chainID uint64) string {
	if name, ok := productionChainIDs[chainID]; ok {
		return name
	}
	switch chainID {
	case 31337:
		return "Hardhat"
	case 1337:
		return "Simulated"
	case 80001:
		return "Polygon Mumbai"
	case 97:
		return "BSC Testnet"
	case 43113:
		return "Avalanche Fuji"
	case 11155111:
		return "Sepolia"
	}
	return fmt.Sprintf("Chain %d", chainID)
}

// Config holds all configuration for the application.
type Config struct {
	DefaultNetwork string                    `mapstructure:"default_network" yaml:"default_network"`
	Networks       map[string]*NetworkConfig `mapstructure:"networks" yaml:"networks"`
	Compiler       CompilerConfig            `mapstructure:"compiler" yaml:"compiler"`
	Deployment     DeploymentConfig          `mapstructure:"deployment" yaml:"deployment"`
	Log            LogConfig                 `mapstructure:"log" yaml:"log"`
	Metrics        MetricsConfig             `mapstructure:"metrics" yaml:"metrics"`
}

// NetworkConfig is a named deployment target.
type NetworkConfig struct {
	Name               string       `mapstructure:"-" yaml:"-"`
	RPCURL             string       `mapstructure:"rpc_url" yaml:"rpc_url"`
	ChainID            uint64       `mapstructure:"chain_id" yaml:"chain_id,omitempty"`
	Signer             SignerConfig `mapstructure:"signer" yaml:"signer"`
	Gas                GasConfig    `mapstructure:"gas" yaml:"gas"`
	RequiredBalanceWei string       `mapstructure:"required_balance_wei" yaml:"required_balance_wei,omitempty"`
}

// SignerConfig describes where the deployer key comes from.
type SignerConfig struct {
	Type         string `mapstructure:"type" yaml:"type"`
	KeyEnv       string `mapstructure:"key_env" yaml:"key_env,omitempty"`
	KeystorePath string `mapstructure:"keystore_path" yaml:"keystore_path,omitempty"`
	PasswordEnv  string `mapstructure:"password_env" yaml:"password_env,omitempty"`
	Endpoint     string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	APIKeyEnv    string `mapstructure:"api_key_env" yaml:"api_key_env,omitempty"`
	Address      string `mapstructure:"address" yaml:"address,omitempty"`
	DevAccount   int    `mapstructure:"dev_account" yaml:"dev_account,omitempty"`
}

// GasConfig tunes transaction pricing for a network.
type GasConfig struct {
	FallbackLimit    uint64 `mapstructure:"fallback_limit" yaml:"fallback_limit"`
	PriceBumpPercent int64  `mapstructure:"price_bump_percent" yaml:"price_bump_percent"`
	MinPriceGwei     uint64 `mapstructure:"min_price_gwei" yaml:"min_price_gwei,omitempty"`
}

// CompilerConfig mirrors the solidity block of a hardhat config.
type CompilerConfig struct {
	Version   string          `mapstructure:"version" yaml:"version"`
	Optimizer OptimizerConfig `mapstructure:"optimizer" yaml:"optimizer"`
	SolcPath  string          `mapstructure:"solc_path" yaml:"solc_path"`
	Sources   string          `mapstructure:"sources" yaml:"sources"`
}

// OptimizerConfig holds solc optimizer settings.
type OptimizerConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Runs    int  `mapstructure:"runs" yaml:"runs"`
}

// DeploymentConfig holds the parameters of the pool deployment.
type DeploymentConfig struct {
	ArtifactsDir  string        `mapstructure:"artifacts_dir" yaml:"artifacts_dir"`
	StateDir      string        `mapstructure:"state_dir" yaml:"state_dir"`
	Token         TokenConfig   `mapstructure:"token" yaml:"token"`
	Oracle        OracleConfig  `mapstructure:"oracle" yaml:"oracle"`
	RetryAttempts int           `mapstructure:"retry_attempts" yaml:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
}

// TokenConfig describes the collateral token deployed first.
type TokenConfig struct {
	Name     string `mapstructure:"name" yaml:"name"`
	Symbol   string `mapstructure:"symbol" yaml:"symbol"`
	Decimals uint8  `mapstructure:"decimals" yaml:"decimals"`
}

// OracleConfig selects how the price oracle is deployed.
type OracleConfig struct {
	Mode      string        `mapstructure:"mode" yaml:"mode"`
	Staleness time.Duration `mapstructure:"staleness" yaml:"staleness"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig holds Prometheus Pushgateway settings.
type MetricsConfig struct {
	PushGateway string `mapstructure:"push_gateway" yaml:"push_gateway,omitempty"`
	Job         string `mapstructure:"job" yaml:"job"`
}

// Load reads configuration from a file and environment variables.
// With an empty path the usual locations are searched and a missing file
// is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("pooldeploy")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.pooldeploy")
		v.AddConfigPath("/etc/pooldeploy")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := checkInlineSecrets(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Defaults returns the built-in configuration without reading any file.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	// Unmarshal of defaults alone cannot fail.
	_ = v.Unmarshal(&cfg)
	cfg.normalize()
	return &cfg
}

// setDefaults configures default values for all settings.
func setDefaults(v *viper.Viper) {
	v.SetDefault("default_network", "hardhat")

	// Local simulated chain (hardhat node / anvil)
	v.SetDefault("networks.hardhat.rpc_url", "http://127.0.0.1:8545")
	v.SetDefault("networks.hardhat.chain_id", 31337)
	v.SetDefault("networks.hardhat.signer.type", SignerDev)
	v.SetDefault("networks.hardhat.signer.dev_account", 0)

	publicNetworks := []struct {
		name    string
		rpcURL  string
		chainID uint64
	}{
		{"mumbai", "https://matic-mumbai.chainstacklabs.com", 80001},
		{"bsctestnet", "https://data-seed-prebsc-1-s3.binance.org:8545", 97},
		{"fuji", "https://api.avax-test.network/ext/bc/C/rpc", 43113},
	}
	for _, n := range publicNetworks {
		prefix := "networks." + n.name
		v.SetDefault(prefix+".rpc_url", n.rpcURL)
		v.SetDefault(prefix+".chain_id", n.chainID)
		v.SetDefault(prefix+".signer.type", SignerEnv)
		v.SetDefault(prefix+".signer.key_env", DefaultKeyEnv)
	}

	for _, name := range []string{"hardhat", "mumbai", "bsctestnet", "fuji"} {
		prefix := "networks." + name + ".gas"
		v.SetDefault(prefix+".fallback_limit", 10_000_000)
		v.SetDefault(prefix+".price_bump_percent", 50)
	}

	// Compiler defaults (solidity 0.8.9, optimizer 200 runs)
	v.SetDefault("compiler.version", "0.8.9")
	v.SetDefault("compiler.optimizer.enabled", true)
	v.SetDefault("compiler.optimizer.runs", 200)
	v.SetDefault("compiler.solc_path", "solc")
	v.SetDefault("compiler.sources", "./contracts")

	// Deployment defaults
	v.SetDefault("deployment.artifacts_dir", "./artifacts")
	v.SetDefault("deployment.state_dir", "./deployments")
	v.SetDefault("deployment.token.name", "USDC")
	v.SetDefault("deployment.token.symbol", "USDC")
	v.SetDefault("deployment.token.decimals", 18)
	v.SetDefault("deployment.oracle.mode", OracleModeKeeper)
	v.SetDefault("deployment.oracle.staleness", "1h")
	v.SetDefault("deployment.retry_attempts", 1)
	v.SetDefault("deployment.retry_delay", "5s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("metrics.job", "pooldeploy")
}

// checkInlineSecrets refuses configs that carry key material directly.
func checkInlineSecrets(v *viper.Viper) error {
	for _, key := range v.AllKeys() {
		if !strings.HasPrefix(key, "networks.") {
			continue
		}
		last := key[strings.LastIndex(key, ".")+1:]
		for _, secret := range inlineSecretKeys {
			if last == secret {
				return fmt.Errorf("%w: remove %q and use signer.key_env, a keystore or a remote signer", ErrInlineSecret, key)
			}
		}
	}
	return nil
}

// normalize fills derived fields after unmarshalling.
func (c *Config) normalize() {
	c.DefaultNetwork = strings.ToLower(c.DefaultNetwork)
	for name, n := range c.Networks {
		if n == nil {
			delete(c.Networks, name)
			continue
		}
		n.Name = name
		n.Signer.Type = strings.ToLower(n.Signer.Type)
	}
	c.Deployment.Oracle.Mode = strings.ToLower(c.Deployment.Oracle.Mode)
}

// Validate checks the configuration for errors that would otherwise only
// surface halfway through a deployment.
func (c *Config) Validate() error {
	var problems []string

	if _, ok := c.Networks[c.DefaultNetwork]; !ok {
		problems = append(problems, fmt.Sprintf("default_network %q is not defined", c.DefaultNetwork))
	}
	for _, name := range c.NetworkNames() {
		problems = append(problems, c.Networks[name].problems()...)
	}

	if !versionPattern.MatchString(c.Compiler.Version) {
		problems = append(problems, fmt.Sprintf("compiler.version %q is not a x.y.z version", c.Compiler.Version))
	}
	if c.Compiler.Optimizer.Runs < 0 {
		problems = append(problems, "compiler.optimizer.runs must not be negative")
	}

	d := c.Deployment
	if d.Token.Name == "" || d.Token.Symbol == "" {
		problems = append(problems, "deployment.token name and symbol are required")
	}
	if d.Oracle.Mode != OracleModeKeeper && d.Oracle.Mode != OracleModeDirect {
		problems = append(problems, fmt.Sprintf("deployment.oracle.mode %q must be %q or %q", d.Oracle.Mode, OracleModeKeeper, OracleModeDirect))
	}
	if d.Oracle.Staleness < time.Second {
		problems = append(problems, "deployment.oracle.staleness must be at least 1s")
	}
	if d.RetryAttempts < 1 {
		problems = append(problems, "deployment.retry_attempts must be at least 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func (n *NetworkConfig) problems() []string {
	var p []string
	prefix := "networks." + n.Name
	if n.RPCURL == "" {
		p = append(p, prefix+".rpc_url is required")
	}
	if n.RequiredBalanceWei != "" {
		if _, ok := new(big.Int).SetString(n.RequiredBalanceWei, 10); !ok {
			p = append(p, prefix+".required_balance_wei is not a decimal integer")
		}
	}

	s := n.Signer
	switch s.Type {
	case SignerEnv:
		if s.KeyEnv == "" {
			p = append(p, prefix+".signer.key_env is required for env signers")
		}
	case SignerKeystore:
		if s.KeystorePath == "" || s.PasswordEnv == "" {
			p = append(p, prefix+".signer.keystore_path and password_env are required for keystore signers")
		}
	case SignerRemote:
		if s.Endpoint == "" || s.Address == "" {
			p = append(p, prefix+".signer.endpoint and address are required for remote signers")
		}
	case SignerDev:
		if s.DevAccount < 0 {
			p = append(p, prefix+".signer.dev_account must not be negative")
		}
		if IsProductionChain(n.ChainID) {
			p = append(p, fmt.Sprintf("%s.signer.type dev is not allowed on production chain %d", prefix, n.ChainID))
		}
	default:
		p = append(p, fmt.Sprintf("%s.signer.type %q is unknown", prefix, s.Type))
	}
	return p
}

// Network returns the named network profile, or the default network when
// name is empty.
func (c *Config) Network(name string) (*NetworkConfig, error) {
	if name == "" {
		name = c.DefaultNetwork
	}
	n, ok := c.Networks[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrNetworkNotFound, name, strings.Join(c.NetworkNames(), ", "))
	}
	return n, nil
}

// NetworkNames returns the configured network names in sorted order.
func (c *Config) NetworkNames() []string {
	names := make([]string, 0, len(c.Networks))
	for name := range c.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RequiredBalance returns the configured minimum deployer balance, or nil
// when the network does not set one.
func (n *NetworkConfig) RequiredBalance() *big.Int {
	if n.RequiredBalanceWei == "" {
		return nil
	}
	v, ok := new(big.Int).SetString(n.RequiredBalanceWei, 10)
	if !ok {
		return nil
	}
	return v
}

// MinGasPrice returns the gas price floor in wei.
func (g GasConfig) MinGasPrice() *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(g.MinPriceGwei), big.NewInt(1_000_000_000))
}
