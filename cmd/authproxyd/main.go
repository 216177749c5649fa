// Command authproxyd runs the RADIUS/LDAP-to-cloud-2FA authentication
// proxy: load configuration, validate it, and serve every configured
// front end until signaled to stop.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v2"

	"github.com/worldposta/authproxy/internal/configuration"
	"github.com/worldposta/authproxy/internal/configuration/schema"
	"github.com/worldposta/authproxy/internal/configuration/validator"
	"github.com/worldposta/authproxy/internal/logging"
	"github.com/worldposta/authproxy/internal/supervisor"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "authproxyd",
		Short:         "RADIUS/LDAP front end for cloud-backed two-factor authentication",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "authproxy.yml", "path to the configuration file")
	root.PersistentFlags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	root.AddCommand(newServeCommand(&configPath))
	root.AddCommand(newValidateConfigCommand(&configPath))
	root.AddCommand(newVersionCommand())

	return root
}

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the proxy and serve until terminated",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configuration.Load(*configPath)
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}

			if err := validator.Validate(cfg); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			if err := logging.Configure(cfg.LogLevel, cfg.LogFile, cfg.Debug); err != nil {
				return fmt.Errorf("configuring logging: %w", err)
			}

			log := logging.Logger().WithField("component", "authproxyd")
			log.WithField("version", version).Info("starting authentication proxy")

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			sup := supervisor.New(*cfg, log)

			if err := sup.Run(ctx); err != nil && ctx.Err() == nil {
				return fmt.Errorf("supervisor exited: %w", err)
			}

			log.Info("shutdown complete")

			return nil
		},
	}
}

func newValidateConfigCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-config",
		Short: "Load and validate the configuration file without starting any listener",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configuration.Load(*configPath)
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}

			if err := validator.Validate(cfg); err != nil {
				return err
			}

			summary, err := yaml.Marshal(effectiveView(cfg))
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
			fmt.Fprint(cmd.OutOrStdout(), string(summary))

			return nil
		},
	}
}

// effectiveView is the redacted summary validate-config prints: binding
// names, ports, RADIUS modes and counts only, never credentials.
func effectiveView(cfg *schema.Configuration) map[string]interface{} {
	directories := make([]string, 0, len(cfg.DirectoryByName))
	for name := range cfg.DirectoryByName {
		directories = append(directories, name)
	}
	sort.Strings(directories)

	radius := make([]map[string]interface{}, 0, len(cfg.RADIUS))
	for _, r := range cfg.RADIUS {
		radius = append(radius, map[string]interface{}{
			"name":    r.Name,
			"port":    r.Port,
			"mode":    string(r.Mode),
			"clients": len(r.Clients),
		})
	}

	ldapBindings := make([]map[string]interface{}, 0, len(cfg.LDAP))
	for _, l := range cfg.LDAP {
		ldapBindings = append(ldapBindings, map[string]interface{}{
			"name":       l.Name,
			"port":       l.Port,
			"exempt_ous": len(l.ExemptOUs),
		})
	}

	return map[string]interface{}{
		"directories": directories,
		"radius":      radius,
		"ldap":        ldapBindings,
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the authproxyd version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	}
}
