package main

import (
	"os"

	"github.com/spf13/cobra"
)

type options struct {
	envPath    string
	configPath string
	migrate    bool
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	serve := newServeCommand(opts)

	rootCmd := &cobra.Command{
		Use:   "coopledger",
		Short: "Bank-statement reconciliation for cooperative ledgers",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		RunE:         serve.RunE,
	}
	rootCmd.PersistentFlags().StringVar(&opts.envPath, "env", ".env", "dotenv file loaded before the config")
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "services.yaml", "services and settings file")
	rootCmd.Flags().BoolVar(&opts.migrate, "migrate", false, "apply schema migrations before serving")

	rootCmd.AddCommand(serve)
	rootCmd.AddCommand(newMigrateCommand(opts))
	return rootCmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
