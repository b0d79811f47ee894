package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"

	"github.com/Bidon15/pooldeploy/internal/chain"
	"github.com/Bidon15/pooldeploy/internal/config"
)

// Version information - set via ldflags during build
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// Global flag variables
var (
	cfgFile   string
	logLevel  string
	logFormat string
	verbose   bool
)

// dialChain connects to a network's RPC endpoint. Tests replace it with a
// simulated chain.
var dialChain = func(ctx context.Context, rpcURL string) (chain.Client, func(), error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to %s: %w", rpcURL, err)
	}
	return client, client.Close, nil
}

// rootCmd is the base command for the CLI
var rootCmd *cobra.Command

func init() {
	rootCmd = &cobra.Command{
		Use:   "pooldeploy",
		Short: "pooldeploy - deploy the pool contract suite",
		Long: `pooldeploy deploys the pool contract suite (collateral token, oracle,
pool, position manager and insurance fund) to a configured network, one
confirmed transaction at a time.

Configuration is read from pooldeploy.yaml (., ~/.pooldeploy, /etc/pooldeploy)
or --config, and can be overridden with POOLDEPLOY_* environment variables.
Signing keys are never read from the config file:
  env       key in the variable named by key_env (POOLDEPLOY_PRIVATE_KEY)
  keystore  encrypted JSON keystore, password in password_env
  remote    eth_signTransaction endpoint, API key in api_key_env
  dev       public development keys, local chains only

Get started:
  $ pooldeploy config init
  $ pooldeploy compile
  $ pooldeploy preflight --network fuji
  $ pooldeploy deploy --network fuji`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./pooldeploy.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (or log.level)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json (or log.format)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(
		newVersionCmd(),
		newDeployCmd(),
		newPreflightCmd(),
		newNetworksCmd(),
		newCompileCmd(),
		newRunsCmd(),
		newConfigCmd(),
	)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  "Print the version, commit hash, and build date of pooldeploy",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "pooldeploy %s\n", Version)
			if verbose {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "  commit:  %s\n", Commit)
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "  built:   %s\n", BuildDate)
			}
		},
	}
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteWithArgs runs the root command with the provided arguments (for testing)
func ExecuteWithArgs(args []string) error {
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

// SetOutput sets the output writer for the root command (for testing)
func SetOutput(w io.Writer) {
	rootCmd.SetOut(w)
	rootCmd.SetErr(w)
}

// ResetFlags resets all global flags to their defaults (for testing)
func ResetFlags() {
	cfgFile = ""
	logLevel = ""
	logFormat = ""
	verbose = false
	deployNetwork = ""
	deployResume = ""
	deploySkipPreflight = false
	deployPushGateway = ""
	preflightNetwork = ""
	preflightJSON = false
	compileSources = ""
	compileOut = ""
	runsJSON = false
	configInitPath = ""
	configInitForce = false
}

// loadConfig loads the config file and applies the logging flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	return cfg, nil
}

// newLogger builds the process logger. Logs go to w so that stdout only
// carries command output.
func newLogger(w io.Writer, cfg config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "", "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", cfg.Level)
	}

	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
}

// setup loads the config and the logger shared by most commands.
func setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cmd.ErrOrStderr(), cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// VerbosePrintf prints to the command output if verbose mode is enabled
func VerbosePrintf(cmd *cobra.Command, format string, args ...interface{}) {
	if verbose {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), format, args...)
	}
}
