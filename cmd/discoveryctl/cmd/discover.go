package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	discoverlib "github.com/skylineproto/discover"
	"github.com/skylineproto/discover/internal/config"
	"github.com/skylineproto/discover/pkg/discovery"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover services on the local network",
	Long: `Discover runs a timed discovery pass across every enabled
discovery protocol and prints the services it finds.

Example:
  discoveryctl discover --type _http._tcp --timeout 5s`,
	RunE: func(cmd *cobra.Command, args []string) error {
		typeFlag, _ := cmd.Flags().GetString("type")
		timeoutFlag, _ := cmd.Flags().GetDuration("timeout")
		protoFlag, _ := cmd.Flags().GetString("protocol")

		fc, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		discoveryCfg, err := fc.ToDiscoveryConfig()
		if err != nil {
			return fmt.Errorf("translating config: %w", err)
		}
		if timeoutFlag > 0 {
			discoveryCfg.Timeout = timeoutFlag
		}
		if typeFlag != "" {
			st, err := discovery.New(typeFlag)
			if err != nil {
				return fmt.Errorf("parsing service type: %w", err)
			}
			discoveryCfg.ServiceTypes = []discovery.ServiceType{st}
		}

		logger := newLogger()
		svc, err := discoverlib.New(discoveryCfg, logger)
		if err != nil {
			return fmt.Errorf("initializing discovery: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), discoveryCfg.Timeout+time.Second)
		defer cancel()

		var protocolFilter *discovery.ProtocolType
		if protoFlag != "" {
			p := resolveProtocolFlag(protoFlag)
			protocolFilter = &p
		}

		found, err := svc.DiscoverServices(ctx, protocolFilter)
		if err != nil {
			return fmt.Errorf("discovering services: %w", err)
		}

		if len(found) == 0 {
			cmd.Println("no services discovered")
			return nil
		}

		for _, info := range found {
			cmd.Printf("%-20s %-25s %-18s %d  (%s)\n", info.Name, info.ServiceType.String(), info.Address, info.Port, info.ProtocolType)
		}
		cmd.Printf("\n%d service(s) found\n", len(found))
		return nil
	},
}

func init() {
	discoverCmd.Flags().StringP("type", "t", "", "service type to search for, e.g. _http._tcp (default: all configured types)")
	discoverCmd.Flags().Duration("timeout", 0, "discovery timeout (default: from config)")
	discoverCmd.Flags().String("protocol", "", "restrict discovery to one protocol: mdns or upnp (default: all enabled)")
}
