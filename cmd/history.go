package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/DevExpGBB/azsvc/internal/history"
	"github.com/DevExpGBB/azsvc/internal/service"
)

var (
	historyLimit int
	historyAll   bool
)

var historyCmd = &cobra.Command{
	Use:   "history [path]",
	Short: "List past publishes of a service",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of records to show (0 for all)")
	historyCmd.Flags().BoolVar(&historyAll, "all-names", false, "Include publishes made under other service names")
	historyCmd.GroupID = "operate"
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	svc, err := service.Load(serviceDir(args))
	if err != nil {
		return err
	}
	store, err := history.Open(filepath.Join(svc.Root, history.DefaultFile))
	if err != nil {
		return err
	}
	defer store.Close()

	filter := svc.Name()
	if historyAll {
		filter = ""
	}
	records, err := store.List(filter, historyLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("\n  No publishes recorded. Run 'azsvc publish' to get started.")
		return nil
	}

	fmt.Println()
	fmt.Printf("  %-4s %-20s %-10s %-8s %-12s %s\n", "#", "PUBLISHED", "SLOT", "ACTION", "STATUS", "DEPLOYMENT")
	for _, r := range records {
		fmt.Printf("  %-4d %-20s %-10s %-8s %-12s %s\n",
			r.ID, r.PublishedAt.Local().Format("2006-01-02 15:04:05"), r.Slot, r.Action, r.Status, r.DeploymentName)
	}
	fmt.Println()
	return nil
}
