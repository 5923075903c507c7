package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fluxmq/schemastore/cmd/schemastored/internal/config"
	"github.com/fluxmq/schemastore/cmd/schemastored/internal/daemon"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "schemastored",
		Short: "Run the schema registry storage daemon",
		Run: func(cmd *cobra.Command, _ []string) {
			cfg, err := config.Read(cmd)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			daemon.Run(cfg)
		},
	}
	config.AddFlags(rootCmd)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information and exit",
		Run: func(_ *cobra.Command, _ []string) {
			if config.CommitHash == "" {
				fmt.Printf("schemastored dev\n")
			} else {
				fmt.Printf("schemastored %s (%s)\n", config.Version, config.CommitHash)
			}
		},
	}

	genConfigFileCmd := &cobra.Command{
		Use:   "gen-config-file",
		Short: "Render the resolved configuration as a commented toml file on stdout",
		Run: func(cmd *cobra.Command, _ []string) {
			cfg, err := config.Read(cmd)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			out, err := cfg.MarshalTOML()
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			fmt.Print(string(out))
		},
	}

	rootCmd.AddCommand(versionCmd, genConfigFileCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
