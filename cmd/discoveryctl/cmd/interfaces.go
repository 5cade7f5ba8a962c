package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skylineproto/discover/internal/netutil"
)

var interfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "List local network interfaces usable for discovery",
	Long: `Interfaces lists every local network interface, classified by type
(wifi/ethernet/loopback/virtual/unknown), marking the primary interface
(the first usable WiFi interface, else the first usable one).

Example:
  discoveryctl interfaces --usable-only`,
	RunE: func(cmd *cobra.Command, args []string) error {
		usableOnly, _ := cmd.Flags().GetBool("usable-only")

		var ifaces []netutil.Interface
		var err error
		if usableOnly {
			ifaces, err = netutil.ListUsableInterfaces()
		} else {
			ifaces, err = netutil.ListInterfaces()
		}
		if err != nil {
			return fmt.Errorf("listing interfaces: %w", err)
		}
		if len(ifaces) == 0 {
			cmd.Println("no interfaces found")
			return nil
		}

		primary, err := netutil.PrimaryInterface()
		primaryName := ""
		if err == nil {
			primaryName = primary.Name
		}

		for _, iface := range ifaces {
			marker := " "
			if iface.Name == primaryName {
				marker = "*"
			}
			cmd.Printf("%s %-12s %-10s up=%-5v %v\n", marker, iface.Name, iface.Type, iface.IsUp, iface.IPs)
		}
		if primaryName != "" {
			cmd.Printf("\n* = primary interface (%s)\n", primaryName)
		}
		return nil
	},
}

func init() {
	interfacesCmd.Flags().Bool("usable-only", false, "show only interfaces suitable for discovery (up, non-loopback, non-virtual)")
}
