package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	discoverlib "github.com/skylineproto/discover"
	"github.com/skylineproto/discover/internal/config"
	"github.com/skylineproto/discover/pkg/discovery"
)

var registerCmd = &cobra.Command{
	Use:   "register <name> --type <service-type> --port <port>",
	Short: "Register a service and advertise it on the local network",
	Long: `Register advertises a service on one enabled discovery protocol
(chosen with --protocol) and keeps it advertised until interrupted.

Example:
  discoveryctl register myapp --type _http._tcp --port 8080`,
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

		ctx := context.Background()
		if err := svc.RegisterService(ctx, *info); err != nil {
			return fmt.Errorf("registering service: %w", err)
		}

		cmd.Printf("registered %s (%s) on %s:%d\n", info.Name, info.ServiceType.String(), info.Address, info.Port)
		cmd.Println("press Ctrl+C to unregister and exit")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		if err := svc.UnregisterService(ctx, *info); err != nil {
			return fmt.Errorf("unregistering service: %w", err)
		}
		cmd.Println("unregistered")
		return nil
	},
}

func resolveProtocolFlag(name string) discovery.ProtocolType {
	switch name {
	case "upnp", "ssdp":
		return discovery.Upnp
	case "dns-sd", "dnssd":
		return discovery.DnsSd
	case "mdns":
		return discovery.Mdns
	default:
		return discovery.Any
	}
}

func init() {
	registerCmd.Flags().StringP("type", "t", "", "service type, e.g. _http._tcp (required)")
	registerCmd.Flags().IntP("port", "p", 0, "port the service listens on (required)")
	registerCmd.Flags().String("protocol", "mdns", "protocol to register on: mdns, upnp, or any")
	registerCmd.Flags().String("address", "", "address to advertise (defaults to 127.0.0.1)")
}
