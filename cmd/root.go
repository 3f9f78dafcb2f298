// Package cmd contains the cobra command tree for azsvc.
package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/DevExpGBB/azsvc/internal/config"
	"github.com/DevExpGBB/azsvc/internal/mgmt"
)

var (
	cfgVerbose      bool   // --verbose flag (global)
	cfgProfilePath  string // --profile flag (global)
	cfgEndpoint     string // --endpoint flag (global)
	cfgSubscription string // --subscription flag (global)
)

// Loaded by loadSettings before any command runs.
var (
	appConfig  config.Config
	appProfile *config.Profile
	logger     = zerolog.Nop()
)

// newClient builds the management client; tests replace it.
var newClient = func() mgmt.Client {
	c := mgmt.NewHTTPClient(appConfig.Endpoint, appConfig.SubscriptionID, appConfig.HTTPTimeout)
	c.BlobEndpoint = appConfig.BlobEndpoint
	return c
}

var rootCmd = &cobra.Command{
	Use:   "azsvc",
	Short: "Create, package and publish cloud services",
	Long: `azsvc — scaffold, package and publish cloud services.

Creates service and role scaffolding, builds deployment packages and
publishes them to a hosted service slot, provisioning the storage account
and hosted service on first use.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadSettings,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&cfgVerbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&cfgProfilePath, "profile", "", "Path to profile file (default ~/.azsvc/profile.toml)")
	rootCmd.PersistentFlags().StringVar(&cfgEndpoint, "endpoint", "", "Management API endpoint (overrides AZSVC_ENDPOINT and the profile)")
	rootCmd.PersistentFlags().StringVar(&cfgSubscription, "subscription", "", "Subscription ID (overrides AZSVC_SUBSCRIPTION_ID and the profile)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "service", Title: "Service Commands:"},
		&cobra.Group{ID: "operate", Title: "Operate Commands:"},
	)
}

// loadSettings resolves configuration from, lowest precedence first, the
// profile, a .azsvc.env file in the working directory, AZSVC_* variables and
// global flags.
func loadSettings(cmd *cobra.Command, args []string) error {
	if _, err := config.ApplyEnvFile(config.EnvFile); err != nil {
		return fmt.Errorf("reading %s: %w", config.EnvFile, err)
	}
	c, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid environment: %w", err)
	}

	path, err := profilePath()
	if err != nil {
		return err
	}
	p, err := config.LoadProfile(path)
	if err != nil {
		return err
	}
	c.ApplyProfile(p)

	if cfgEndpoint != "" {
		c.Endpoint = cfgEndpoint
	}
	if cfgSubscription != "" {
		c.SubscriptionID = cfgSubscription
	}
	if cfgVerbose {
		c.LogLevel = "debug"
	}

	appConfig, appProfile = c, p
	logger = config.NewLogger(c.LogLevel, c.LogPrettyPrint)
	return nil
}

func profilePath() (string, error) {
	if cfgProfilePath != "" {
		return filepath.Abs(cfgProfilePath)
	}
	return config.DefaultProfilePath()
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		printError(err)
		os.Exit(1)
	}
}

func printError(err error) {
	fmt.Fprintf(os.Stderr, "\n%s %v\n", color.RedString("❌ Error:"), err)
	if errors.Is(err, mgmt.ErrForbidden) {
		fmt.Fprintf(os.Stderr, "\n%s\n", mgmt.ForbiddenHelp)
	}
}

// requireSubscription fails with a hint when no subscription is configured.
func requireSubscription() error {
	if appConfig.SubscriptionID == "" {
		return fmt.Errorf("no subscription configured; run 'azsvc profile set --subscription-id <id>' or set AZSVC_SUBSCRIPTION_ID")
	}
	return nil
}

// serviceDir returns the service root from the optional path argument.
func serviceDir(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}

// statusColor highlights a deployment or role status.
func statusColor(status string) string {
	switch status {
	case mgmt.DeploymentRunning, mgmt.RoleReady, mgmt.StorageCreated:
		return color.GreenString(status)
	case mgmt.DeploymentSuspended, mgmt.RoleStopped, mgmt.DeploymentDeleting:
		return color.RedString(status)
	default:
		return color.YellowString(status)
	}
}
