package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Bidon15/pooldeploy/internal/artifacts"
	"github.com/Bidon15/pooldeploy/internal/chain"
	"github.com/Bidon15/pooldeploy/internal/config"
	"github.com/Bidon15/pooldeploy/internal/deployer"
	"github.com/Bidon15/pooldeploy/internal/journal"
	"github.com/Bidon15/pooldeploy/internal/metrics"
	"github.com/Bidon15/pooldeploy/internal/preflight"
	"github.com/Bidon15/pooldeploy/internal/signer"
)

var (
	deployNetwork       string
	deployResume        string
	deploySkipPreflight bool
	deployPushGateway   string
)

func newDeployCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy the pool contract suite",
		Long: `Deploy the collateral token, the oracle, the pool and read back the pool's
position manager and insurance fund addresses.

Each step waits for its transaction to be mined before the next one is
sent. One "<Label> address: 0x..." line is printed per step. The first
failure stops the run and the command exits with status 1.

Every run is journaled under deployment.state_dir. A failed run can be
continued with --resume <run id>; a plain deploy always starts fresh.`,
		Args: cobra.NoArgs,
		RunE: runDeploy,
	}

	cmd.Flags().StringVarP(&deployNetwork, "network", "n", "", "network to deploy to (default: default_network)")
	cmd.Flags().StringVar(&deployResume, "resume", "", "resume a failed or interrupted run by id or unique id prefix")
	cmd.Flags().BoolVar(&deploySkipPreflight, "skip-preflight", false, "skip the RPC, chain id and balance checks")
	cmd.Flags().StringVar(&deployPushGateway, "push-gateway", "", "Prometheus Pushgateway URL (or metrics.push_gateway)")
	return cmd
}

func runDeploy(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	network, err := cfg.Network(deployNetwork)
	if err != nil {
		return err
	}

	plan, err := deployer.PoolPlan(poolParams(cfg.Deployment))
	if err != nil {
		return err
	}

	store, err := artifacts.Open(cfg.Deployment.ArtifactsDir)
	if err != nil {
		return err
	}
	if err := store.Require(plan.Artifacts()...); err != nil {
		return fmt.Errorf("%w (run pooldeploy compile first)", err)
	}

	client, closeClient, err := dialChain(ctx, network.RPCURL)
	if err != nil {
		return err
	}
	defer closeClient()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("get chain ID from %s: %w", network.RPCURL, err)
	}
	if network.ChainID != 0 && chainID.Uint64() != network.ChainID {
		return fmt.Errorf("network %s expects chain %d but %s reports %d", network.Name, network.ChainID, network.RPCURL, chainID.Uint64())
	}

	txSigner, err := signer.Resolve(ctx, network.Signer, chainID)
	if err != nil {
		return fmt.Errorf("resolve signer for %s: %w", network.Name, err)
	}
	if closer, ok := txSigner.(interface{ Close() }); ok {
		defer closer.Close()
	}

	logger.Info("deploying pool suite",
		slog.String("network", network.Name),
		slog.Uint64("chain_id", chainID.Uint64()),
		slog.String("chain", config.ChainName(chainID.Uint64())),
		slog.String("deployer", txSigner.Address().Hex()),
		slog.String("oracle_mode", plan.Params["oracle.mode"]),
	)

	if !deploySkipPreflight {
		report, err := runPreflight(ctx, network, chainID.Uint64(), txSigner, store, plan)
		if err != nil {
			return err
		}
		for _, c := range report.Checks {
			logger.Debug("preflight check",
				slog.String("check", string(c.Name)),
				slog.Bool("passed", c.Passed),
				slog.String("message", c.Message),
			)
		}
		if err := report.Err(); err != nil {
			return err
		}
	}

	runs := journal.NewStore(cfg.Deployment.StateDir)
	info := journal.RunInfo{
		Plan:     plan.Name,
		Network:  network.Name,
		ChainID:  chainID.Uint64(),
		Deployer: txSigner.Address(),
		Params:   plan.Params,
	}
	var writer *journal.Writer
	if deployResume != "" {
		writer, err = journal.Resume(ctx, runs, deployResume, info)
	} else {
		writer, err = journal.Start(ctx, runs, info)
	}
	if err != nil {
		return err
	}
	logger.Info("run started", slog.String("run_id", writer.RunID()), slog.Bool("resumed", deployResume != ""))

	backend := chain.NewBackend(client, txSigner,
		chain.WithGasConfig(gasConfig(network.Gas)),
		chain.WithLogger(logger),
	)
	recorder := metrics.NewRecorder()
	seq := deployer.NewSequencer(backend, store, cmd.OutOrStdout(),
		deployer.WithLogger(logger),
		deployer.WithMetrics(recorder, network.Name),
		deployer.WithRetry(cfg.Deployment.RetryAttempts, cfg.Deployment.RetryDelay),
	)

	_, runErr := seq.Run(ctx, plan, writer)

	gateway := deployPushGateway
	if gateway == "" {
		gateway = cfg.Metrics.PushGateway
	}
	if gateway != "" {
		if err := recorder.Push(context.WithoutCancel(ctx), gateway, cfg.Metrics.Job, network.Name); err != nil {
			logger.Warn("failed to push metrics", slog.String("error", err.Error()))
		}
	}

	if runErr != nil {
		return fmt.Errorf("run %s: %w", writer.RunID(), runErr)
	}
	logger.Info("run completed", slog.String("run_id", writer.RunID()))
	return nil
}

func poolParams(d config.DeploymentConfig) deployer.PoolParams {
	return deployer.PoolParams{
		TokenName:     d.Token.Name,
		TokenSymbol:   d.Token.Symbol,
		TokenDecimals: d.Token.Decimals,
		OracleMode:    d.Oracle.Mode,
		Staleness:     d.Oracle.Staleness,
	}
}

func gasConfig(g config.GasConfig) chain.GasConfig {
	cfg := chain.GasConfig{
		FallbackLimit:    g.FallbackLimit,
		PriceBumpPercent: g.PriceBumpPercent,
	}
	if g.MinPriceGwei > 0 {
		cfg.MinGasPrice = g.MinGasPrice()
	}
	return cfg
}

// preflightDialer lets the checker share the deploy command's dialer.
func preflightDialer(ctx context.Context, rpcURL string) (preflight.ChainReader, func(), error) {
	client, closeFn, err := dialChain(ctx, rpcURL)
	if err != nil {
		return nil, nil, err
	}
	return client, closeFn, nil
}

func runPreflight(ctx context.Context, network *config.NetworkConfig, chainID uint64, s signer.TransactionSigner, store *artifacts.Store, plan *deployer.Plan) (*preflight.Report, error) {
	return preflight.NewChecker().WithDialer(preflightDialer).RunChecks(ctx, &preflight.Request{
		Network:     network.Name,
		RPCURL:      network.RPCURL,
		ChainID:     chainID,
		Deployer:    s.Address(),
		RequiredWei: network.RequiredBalance(),
		Artifacts:   store,
		Contracts:   plan.Artifacts(),
	})
}
