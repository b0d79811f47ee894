package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Bidon15/pooldeploy/internal/solc"
)

var (
	compileSources string
	compileOut     string
)

func newCompileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile contract sources with solc",
		Long: `Compile every .sol file under compiler.sources with the solc binary at
compiler.solc_path and write one artifact per contract into
deployment.artifacts_dir. The binary must match compiler.version.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}

			sources := compileSources
			if sources == "" {
				sources = cfg.Compiler.Sources
			}
			out := compileOut
			if out == "" {
				out = cfg.Deployment.ArtifactsDir
			}

			paths, err := solc.New(cfg.Compiler, logger).Compile(cmd.Context(), sources, out)
			if err != nil {
				return err
			}
			for _, p := range paths {
				VerbosePrintf(cmd, "%s\n", p)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Compiled %d contracts into %s\n", len(paths), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&compileSources, "sources", "", "contract sources directory (default: compiler.sources)")
	cmd.Flags().StringVar(&compileOut, "out", "", "artifacts output directory (default: deployment.artifacts_dir)")
	return cmd
}
