package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DevExpGBB/azsvc/internal/config"
)

var (
	profSubscription  string
	profEndpoint      string
	profBlobEndpoint  string
	profLocation      string
	profAffinityGroup string
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage subscription defaults",
}

func newProfileSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update the profile",
		Long: `Writes subscription defaults to the profile file. Only the flags given
are changed.

Example:
  azsvc profile set --subscription-id 00000000-0000-0000-0000-000000000000 --location "West US"`,
		Args: cobra.NoArgs,
		RunE: runProfileSet,
	}

	cmd.Flags().StringVar(&profSubscription, "subscription-id", "", "Subscription ID")
	cmd.Flags().StringVar(&profEndpoint, "management-endpoint", "", "Management API endpoint")
	cmd.Flags().StringVar(&profBlobEndpoint, "blob-endpoint", "", "Blob endpoint pattern, %s is the storage account")
	cmd.Flags().StringVar(&profLocation, "location", "", "Default location for new resources")
	cmd.Flags().StringVar(&profAffinityGroup, "affinity-group", "", "Default affinity group for new resources")

	return cmd
}

func init() {
	profileCmd.GroupID = "service"
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(newProfileSetCmd())
	profileCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the profile and effective settings",
		Args:  cobra.NoArgs,
		RunE:  runProfileShow,
	})
}

func runProfileSet(cmd *cobra.Command, args []string) error {
	path, err := profilePath()
	if err != nil {
		return err
	}
	p, err := config.LoadProfile(path)
	if err != nil {
		return err
	}
	if p == nil {
		p = &config.Profile{}
	}

	changed := false
	for _, f := range []struct {
		flag  string
		value string
		field *string
	}{
		{"subscription-id", profSubscription, &p.SubscriptionID},
		{"management-endpoint", profEndpoint, &p.Endpoint},
		{"blob-endpoint", profBlobEndpoint, &p.BlobEndpoint},
		{"location", profLocation, &p.Location},
		{"affinity-group", profAffinityGroup, &p.AffinityGroup},
	} {
		if cmd.Flags().Changed(f.flag) {
			*f.field = f.value
			changed = true
		}
	}
	if !changed {
		return fmt.Errorf("nothing to set; pass at least one flag (see 'azsvc profile set --help')")
	}

	if err := config.SaveProfile(path, p); err != nil {
		return err
	}
	fmt.Printf("\n💾 Profile saved to %s\n", path)
	return nil
}

func runProfileShow(cmd *cobra.Command, args []string) error {
	path, err := profilePath()
	if err != nil {
		return err
	}
	fmt.Printf("\n  Profile  [%s]\n", path)
	if appProfile == nil {
		fmt.Println("  (not found; run 'azsvc profile set')")
	} else {
		fmt.Printf("  Subscription:   %s\n", appProfile.SubscriptionID)
		fmt.Printf("  Location:       %s\n", orNone(appProfile.Location))
		fmt.Printf("  Affinity group: %s\n", orNone(appProfile.AffinityGroup))
	}

	fmt.Println("\n  Effective settings")
	fmt.Printf("  Subscription:   %s\n", orNone(appConfig.SubscriptionID))
	fmt.Printf("  Endpoint:       %s\n", appConfig.Endpoint)
	fmt.Printf("  Blob endpoint:  %s\n", appConfig.BlobEndpoint)
	fmt.Printf("  Poll interval:  %s (max %s)\n", appConfig.PollInterval, appConfig.PollMaxInterval)
	fmt.Printf("  Poll timeout:   %s\n", appConfig.PollTimeout)
	fmt.Println()
	return nil
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
