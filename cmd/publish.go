package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/DevExpGBB/azsvc/internal/browser"
	"github.com/DevExpGBB/azsvc/internal/history"
	"github.com/DevExpGBB/azsvc/internal/mgmt"
	"github.com/DevExpGBB/azsvc/internal/pkgbuild"
	"github.com/DevExpGBB/azsvc/internal/prompt"
	"github.com/DevExpGBB/azsvc/internal/publish"
	"github.com/DevExpGBB/azsvc/internal/service"
)

// slotValue is a pflag.Value accepting production or staging in any case.
type slotValue string

var _ pflag.Value = (*slotValue)(nil)

func (s *slotValue) String() string { return string(*s) }

func (s *slotValue) Set(v string) error {
	slot, err := publish.ParseSlot(v)
	if err != nil {
		return err
	}
	*s = slotValue(slot)
	return nil
}

func (s *slotValue) Type() string { return "slot" }

var (
	pubName          string
	pubSlot          slotValue
	pubLocation      string
	pubAffinityGroup string
	pubSkipUpload    bool
	pubLaunch        bool
	pubStrict        bool
	pubTimeout       time.Duration
	pubMaxAttempts   int
)

func init() {
	publishCmd := newPublishCmd()
	publishCmd.GroupID = "operate"
	rootCmd.AddCommand(publishCmd)
}

func newPublishCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish [path]",
		Short: "Package and publish a service to a deployment slot",
		Long: `Builds the service package and publishes it to a hosted service slot.

On first publish the storage account and hosted service are created in the
given location; later publishes upgrade the deployment in place. The command
waits until every role instance is ready.

Example:
  azsvc publish --location "West US"
  azsvc publish ./mysvc --slot staging --launch
  azsvc publish --name mysvc-test --skip-upload`,
		Args: cobra.MaximumNArgs(1),
		RunE: runPublish,
	}

	cmd.Flags().StringVar(&pubName, "name", "", "Publish under this service name (renames the local service)")
	cmd.Flags().Var(&pubSlot, "slot", "Deployment slot: production or staging (default from last publish, else production)")
	cmd.Flags().StringVar(&pubLocation, "location", "", "Region for new resources")
	cmd.Flags().StringVar(&pubAffinityGroup, "affinity-group", "", "Affinity group for new resources (instead of --location)")
	cmd.Flags().BoolVar(&pubSkipUpload, "skip-upload", false, "Reference the local package instead of uploading it")
	cmd.Flags().BoolVar(&pubLaunch, "launch", false, "Open the deployment URL in a browser when done")
	cmd.Flags().BoolVar(&pubStrict, "strict", false, "Wait for the deployment to be Running, not just Starting")
	cmd.Flags().DurationVar(&pubTimeout, "timeout", 0, "Maximum time to wait for each operation (default AZSVC_POLL_TIMEOUT)")
	cmd.Flags().IntVar(&pubMaxAttempts, "max-attempts", 0, "Maximum status polls per operation (default AZSVC_POLL_MAX_ATTEMPTS)")

	return cmd
}

// Common regions for interactive selection.
var regions = []string{
	"West US", "East US", "North Central US", "South Central US",
	"North Europe", "West Europe", "East Asia", "Southeast Asia",
}

func runPublish(cmd *cobra.Command, args []string) error {
	if err := requireSubscription(); err != nil {
		return err
	}
	dir, err := filepath.Abs(serviceDir(args))
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("════════════════════════════════════════")
	fmt.Println("  azsvc — Publish")
	fmt.Println("════════════════════════════════════════")

	opts := publishOptions(dir)
	if opts.Location == "" && opts.AffinityGroup == "" && prompt.Interactive() {
		if _, err := os.Stat(filepath.Join(dir, service.SettingsFile)); os.IsNotExist(err) {
			opts.Location = prompt.Select("Select a location for new resources", regions, "", true)
		}
	}

	fmt.Printf("\nConfiguration:\n")
	fmt.Printf("  Path:         %s\n", dir)
	fmt.Printf("  Subscription: %s\n", appConfig.SubscriptionID)
	fmt.Printf("  Slot:         %s\n", opts.Slot)
	if opts.Location != "" {
		fmt.Printf("  Location:     %s\n", opts.Location)
	}
	if opts.AffinityGroup != "" {
		fmt.Printf("  Affinity:     %s\n", opts.AffinityGroup)
	}

	policy := appConfig.WaitPolicy(logger)
	if pubTimeout > 0 {
		policy.Timeout = pubTimeout
	}
	if pubMaxAttempts > 0 {
		policy.MaxAttempts = pubMaxAttempts
	}

	p := &publish.Publisher{
		Client:  newClient(),
		Builder: &pkgbuild.Builder{},
		Policy:  policy,
		Log:     logger,
		Out:     os.Stdout,
		Launch:  browser.Open,
	}
	store, err := history.Open(filepath.Join(dir, history.DefaultFile))
	if err != nil {
		logger.Warn().Err(err).Msg("publish history disabled")
	} else {
		defer store.Close()
		p.History = store
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := p.Publish(ctx, dir, opts)
	if err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}

	fmt.Println("\n========================================")
	fmt.Println("  ✅ Publish Complete!")
	fmt.Println("========================================")
	printDeployment(res.ServiceName, res.Slot, res.Deployment)
	fmt.Printf("\n💾 Settings saved to %s\n", filepath.Join(dir, service.SettingsFile))
	return nil
}

// publishOptions merges flags with the last publish settings and the
// profile, in that order of precedence.
func publishOptions(dir string) publish.Options {
	opts := publish.Options{
		ServiceName:    pubName,
		Slot:           string(pubSlot),
		Location:       pubLocation,
		AffinityGroup:  pubAffinityGroup,
		Subscription:   appConfig.SubscriptionID,
		RuntimeBaseURL: appConfig.RuntimeBaseURL,
		SkipUpload:     pubSkipUpload,
		Launch:         pubLaunch,
		Strict:         pubStrict,
	}

	last, err := service.LoadSettings(filepath.Join(dir, service.SettingsFile))
	if err != nil {
		logger.Warn().Err(err).Msg("ignoring unreadable deployment settings")
	}
	if last != nil {
		if opts.Slot == "" {
			opts.Slot = last.Slot
		}
		if opts.Location == "" && opts.AffinityGroup == "" {
			opts.Location, opts.AffinityGroup = last.Location, last.AffinityGroup
		}
	}
	if appProfile != nil && opts.Location == "" && opts.AffinityGroup == "" {
		opts.Location, opts.AffinityGroup = appProfile.Location, appProfile.AffinityGroup
	}
	if opts.Slot == "" {
		opts.Slot = mgmt.SlotProduction
	}
	return opts
}

func printDeployment(serviceName, slot string, d *mgmt.Deployment) {
	fmt.Printf("\nDeployment:\n")
	fmt.Printf("  Service: %s\n", serviceName)
	fmt.Printf("  Slot:    %s\n", slot)
	fmt.Printf("  Name:    %s\n", d.Name)
	fmt.Printf("  Status:  %s\n", statusColor(d.Status))
	if d.URL != "" {
		fmt.Printf("  URL:     %s\n", d.URL)
	}
	if len(d.RoleInstances) > 0 {
		fmt.Println("\n  Role instances:")
		for _, ri := range d.RoleInstances {
			fmt.Printf("    %-24s %s\n", ri.InstanceName, statusColor(ri.Status))
		}
	}
}
