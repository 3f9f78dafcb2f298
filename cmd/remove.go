package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/DevExpGBB/azsvc/internal/mgmt"
	"github.com/DevExpGBB/azsvc/internal/prompt"
	"github.com/DevExpGBB/azsvc/internal/service"
	"github.com/DevExpGBB/azsvc/internal/wait"
)

var (
	removeSlot    slotValue
	removeForce   bool
	removeService bool
)

func newRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove [path]",
		Short: "Delete a deployment and optionally its hosted service",
		Long: `Deletes the deployment in a slot and waits until it is gone.

With --delete-service the hosted service is deleted too, which requires
that no deployment remains in the other slot. The storage account is kept.

Example:
  azsvc remove --slot staging
  azsvc remove --delete-service --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: runRemove,
	}

	cmd.Flags().Var(&removeSlot, "slot", "Deployment slot (default production)")
	cmd.Flags().BoolVar(&removeForce, "force", false, "Skip confirmation prompt")
	cmd.Flags().BoolVar(&removeService, "delete-service", false, "Also delete the hosted service")

	return cmd
}

func init() {
	removeCmd := newRemoveCmd()
	removeCmd.GroupID = "operate"
	rootCmd.AddCommand(removeCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
	if err := requireSubscription(); err != nil {
		return err
	}
	svc, err := service.Load(serviceDir(args))
	if err != nil {
		return err
	}
	name := svc.Name()
	slot := string(removeSlot)
	if slot == "" {
		slot = mgmt.SlotProduction
	}

	fmt.Println()
	fmt.Println("════════════════════════════════════════")
	fmt.Println("  azsvc — Remove")
	fmt.Println("════════════════════════════════════════")
	fmt.Printf("\n  Service: %s\n  Slot:    %s\n", name, slot)
	if removeService {
		fmt.Println("  The hosted service will be deleted too.")
	}

	if !removeForce {
		if !prompt.Confirm("\nAre you sure you want to delete this deployment?") {
			fmt.Println("Remove cancelled.")
			return nil
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	client := newClient()

	fmt.Printf("\n🗑️  Deleting %s deployment...\n", slot)
	switch err := client.DeleteDeployment(ctx, name, slot); {
	case mgmt.IsNotFound(err):
		fmt.Println("   No deployment in slot")
	case err != nil:
		return fmt.Errorf("deleting deployment: %w", err)
	default:
		_, err := wait.Until(ctx, appConfig.WaitPolicy(logger), func(ctx context.Context) (bool, error) {
			_, err := client.GetDeploymentBySlot(ctx, name, slot)
			if mgmt.IsNotFound(err) {
				return true, nil
			}
			return false, err
		}, func(gone bool) bool { return gone })
		if err != nil {
			return fmt.Errorf("waiting for deployment removal: %w", err)
		}
		fmt.Println("   ✅ Deployment deleted")
	}

	if removeService {
		fmt.Printf("\n🗑️  Deleting hosted service %s...\n", name)
		if err := client.DeleteHostedService(ctx, name); err != nil && !mgmt.IsNotFound(err) {
			return fmt.Errorf("deleting hosted service: %w", err)
		}
		fmt.Println("   ✅ Hosted service deleted")
	}

	fmt.Println("\n════════════════════════════════════════")
	fmt.Println("  ✅ Remove Complete!")
	fmt.Println("════════════════════════════════════════")
	fmt.Println()
	return nil
}
