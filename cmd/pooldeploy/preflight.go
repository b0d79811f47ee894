package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Bidon15/pooldeploy/internal/artifacts"
	"github.com/Bidon15/pooldeploy/internal/deployer"
	"github.com/Bidon15/pooldeploy/internal/signer"
)

var (
	preflightNetwork string
	preflightJSON    bool
)

func newPreflightCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Check that a network is ready for deployment",
		Long: `Run the pre-deployment checks without sending any transaction:
  artifacts_present  every contract of the plan is compiled
  rpc_reachable      the RPC endpoint answers
  chain_id_match     the endpoint serves the configured chain id
  deployer_balance   the deployer holds at least the required funding`,
		Args: cobra.NoArgs,
		RunE: runPreflightCmd,
	}
	cmd.Flags().StringVarP(&preflightNetwork, "network", "n", "", "network to check (default: default_network)")
	cmd.Flags().BoolVar(&preflightJSON, "json", false, "output the report as JSON")
	return cmd
}

func runPreflightCmd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, _, err := setup(cmd)
	if err != nil {
		return err
	}
	network, err := cfg.Network(preflightNetwork)
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

	client, closeClient, err := dialChain(ctx, network.RPCURL)
	if err != nil {
		return err
	}
	chainID, err := client.ChainID(ctx)
	closeClient()
	if err != nil {
		return fmt.Errorf("get chain ID from %s: %w", network.RPCURL, err)
	}

	txSigner, err := signer.Resolve(ctx, network.Signer, chainID)
	if err != nil {
		return fmt.Errorf("resolve signer for %s: %w", network.Name, err)
	}
	if closer, ok := txSigner.(interface{ Close() }); ok {
		defer closer.Close()
	}

	report, err := runPreflight(ctx, network, network.ChainID, txSigner, store, plan)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if preflightJSON {
		if err := printJSON(out, report); err != nil {
			return err
		}
		return report.Err()
	}

	fmt.Fprintf(out, "Network:  %s\n", report.Network)
	fmt.Fprintf(out, "Deployer: %s\n", report.DeployerAddress)
	fmt.Fprintf(out, "Funding:  have %s, need %s\n\n", valueOr(report.CurrentBalanceETH, "?"), report.RequiredFundingETH)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHECK\tRESULT\tMESSAGE")
	for _, c := range report.Checks {
		result := "ok"
		if !c.Passed {
			result = "FAIL"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.Name, result, c.Message)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return report.Err()
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
