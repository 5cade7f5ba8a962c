// Package cmd implements the discoveryctl command tree: register, discover,
// unregister, and interfaces sub-commands exercising the discover façade
// end-to-end.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	versionStr = "dev"
	commitStr  = "none"
	dateStr    = "unknown"

	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "discoveryctl",
	Short: "discoveryctl - local-network service discovery from the command line",
	Long: `discoveryctl registers, discovers, and unregisters services over
mDNS/DNS-SD and UPnP SSDP on the local network, exercising the discover
library's façade directly.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets version information from build flags.
func SetVersionInfo(version, commit, date string) {
	versionStr = version
	commitStr = commit
	dateStr = date
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./discover.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(unregisterCmd)
	rootCmd.AddCommand(interfacesCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the discoveryctl version",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.Printf("discoveryctl %s (commit %s, built %s)\n", versionStr, commitStr, dateStr)
		return nil
	},
}

func logLevelFromDebug() string {
	if debug || os.Getenv("DISCOVERCTL_DEBUG") != "" {
		return "debug"
	}
	return "info"
}
