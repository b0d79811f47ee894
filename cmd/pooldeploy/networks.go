package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Bidon15/pooldeploy/internal/config"
)

func newNetworksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "networks",
		Short: "List configured networks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tCHAIN ID\tCHAIN\tSIGNER\tRPC URL")
			for _, name := range cfg.NetworkNames() {
				n := cfg.Networks[name]
				marker := ""
				if name == cfg.DefaultNetwork {
					marker = " *"
				}
				chainID, chainName := "-", "-"
				if n.ChainID != 0 {
					chainID = fmt.Sprintf("%d", n.ChainID)
					chainName = config.ChainName(n.ChainID)
				}
				fmt.Fprintf(w, "%s%s\t%s\t%s\t%s\t%s\n", name, marker, chainID, chainName, n.Signer.Type, maskURL(n.RPCURL))
			}
			return w.Flush()
		},
	}
}
