package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Score Reddit accounts for automated behaviour",
	Long: `sentinel fetches an account's public activity, extracts behavioural and
linguistic features and scores how likely the account is automated.

Run "sentinel start" to serve the HTTP API, then use the other commands
as a client.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.Version = version

	rootCmd.AddCommand(startCmd, stopCmd, statusCmd)
	rootCmd.AddCommand(scoreCmd, batchCmd, feedbackCmd, statsCmd)
	rootCmd.AddCommand(mcpCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
