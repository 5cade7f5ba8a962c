package cmd

import (
	"context"
	"fmt"
	"net"

	"github.com/spf13/cobra"

	discoverlib "github.com/skylineproto/discover"
	"github.com/skylineproto/discover/internal/config"
	"github.com/skylineproto/discover/pkg/discovery"
)

var unregisterCmd = &cobra.Command{
	Use:   "unregister <name> --type <service-type> --port <port>",
	Short: "Unregister a previously registered service",
	Long: `Unregister stops advertising a service. It must be given the same
name, type, and port used at registration time, since those three values
form the registry's composite key.

Example:
  discoveryctl unregister myapp --type _http._tcp --port 8080`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		serviceType, _ := cmd.Flags().GetString("type")
		port, _ := cmd.Flags().GetInt("port")
		protoName, _ := cmd.Flags().GetString("protocol")
		address, _ := cmd.Flags().GetString("address")

		if port == 0 {
			return fmt.Errorf("--port is required")
		}
		if serviceType == "" {
			return fmt.Errorf("--type is required")
		}

		fc, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		discoveryCfg, err := fc.ToDiscoveryConfig()
		if err != nil {
			return fmt.Errorf("translating config: %w", err)
		}

		logger := newLogger()
		svc, err := discoverlib.New(discoveryCfg, logger)
		if err != nil {
			return fmt.Errorf("initializing discovery: %w", err)
		}

		st, err := discovery.New(serviceType)
		if err != nil {
			return fmt.Errorf("parsing service type: %w", err)
		}

		ip := net.ParseIP(address)
		if ip == nil {
			ip = net.IPv4(127, 0, 0, 1)
		}

		info, err := discovery.NewServiceInfo(name, st, ip, port)
		if err != nil {
			return fmt.Errorf("building service info: %w", err)
		}
		info.ProtocolType = resolveProtocolFlag(protoName)

		if err := svc.UnregisterService(context.Background(), *info); err != nil {
			return fmt.Errorf("unregistering service: %w", err)
		}

		cmd.Printf("unregistered %s\n", name)
		return nil
	},
}

func init() {
	unregisterCmd.Flags().StringP("type", "t", "", "service type, e.g. _http._tcp (required)")
	unregisterCmd.Flags().IntP("port", "p", 0, "port the service was registered on (required)")
	unregisterCmd.Flags().String("protocol", "mdns", "protocol the service was registered on: mdns, upnp, or any")
	unregisterCmd.Flags().String("address", "", "address the service was registered with (defaults to 127.0.0.1)")
}
