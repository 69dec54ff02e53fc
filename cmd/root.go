// Package cmd is the aivoice command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/aivoice/internal/config"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "aivoice",
		Short: "AI voice replies for QQ groups over OneBot",
		Long: "aivoice connects to a OneBot v11 implementation, answers group messages with an LLM\n" +
			"and speaks the answers with the platform's AI voice characters.",
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			runGateway()
		},
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default $AIVOICE_CONFIG or ~/.aivoice/config.json5)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(gatewayCmd())
	root.AddCommand(configCmd())
	root.AddCommand(groupsCmd())
	root.AddCommand(charactersCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(versionCmd())
	return root
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("aivoice %s\n", Version)
		},
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return config.ExpandHome(cfgFile)
	}
	return config.ConfigPath()
}
