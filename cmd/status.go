package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/DevExpGBB/azsvc/internal/mgmt"
	"github.com/DevExpGBB/azsvc/internal/probe"
	"github.com/DevExpGBB/azsvc/internal/service"
)

var statusSlot slotValue

var statusCmd = &cobra.Command{
	Use:   "status [path]",
	Short: "Show the remote state of a service",
	Long: `Displays a summary of the service in [path]:
  • Last publish recorded in the deployment settings
  • Hosted service, storage account and deployment state
  • Status of every role instance`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().Var(&statusSlot, "slot", "Deployment slot (default from last publish, else production)")
	statusCmd.GroupID = "operate"
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if err := requireSubscription(); err != nil {
		return err
	}
	svc, err := service.Load(serviceDir(args))
	if err != nil {
		return err
	}
	settings, err := service.LoadSettings(svc.Path(service.SettingsFile))
	if err != nil {
		return err
	}

	slot := string(statusSlot)
	if slot == "" && settings != nil {
		slot = settings.Slot
	}
	if slot == "" {
		slot = mgmt.SlotProduction
	}

	fmt.Println()
	sep := "  " + strings.Repeat("─", 42)
	fmt.Println("════════════════════════════════════════")
	fmt.Printf("  %s Status\n", svc.Name())
	fmt.Println("════════════════════════════════════════")

	if settings != nil && settings.PublishedAt != "" {
		fmt.Printf("\n  Last publish  [%s]\n", service.SettingsFile)
		fmt.Println(sep)
		fmt.Printf("  Published: %s\n", friendlyTime(settings.PublishedAt))
		fmt.Printf("  Slot:      %s\n", settings.Slot)
		if settings.DeploymentURL != "" {
			fmt.Printf("  URL:       %s\n", settings.DeploymentURL)
		}
	}

	storageName := service.StorageAccountName(svc.Name())
	st, err := (&probe.Prober{Client: newClient()}).Probe(context.Background(), svc.Name(), storageName, slot)
	if err != nil {
		return err
	}

	fmt.Printf("\n  Remote  [%s]\n", appConfig.Endpoint)
	fmt.Println(sep)
	if !st.ServiceExists() {
		fmt.Printf("  Hosted service: ❌ %s not found\n", svc.Name())
	} else {
		fmt.Printf("  Hosted service: ✅ %s\n", svc.Name())
	}
	switch st.StorageState() {
	case probe.StorageAbsent:
		fmt.Printf("  Storage:        ❌ %s not found\n", storageName)
	default:
		status := ""
		if st.Storage != nil {
			status = st.Storage.Properties.Status
		}
		fmt.Printf("  Storage:        %s (%s)\n", storageName, statusColor(status))
	}

	d := st.Deployment
	if d == nil {
		d = st.HostedService.DeploymentInSlot(slot)
	}
	if d == nil {
		fmt.Printf("  Deployment:     none in %s\n", slot)
		if !st.ServiceExists() {
			fmt.Println("\n  Run 'azsvc publish' to get started.")
		}
		fmt.Println()
		return nil
	}
	printDeployment(svc.Name(), slot, d)
	fmt.Println()
	return nil
}

// friendlyTime formats an RFC3339 timestamp for display, falling back to
// the raw value.
func friendlyTime(s string) string {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return s
	}
	return t.Local().Format("2006-01-02 15:04 MST")
}
