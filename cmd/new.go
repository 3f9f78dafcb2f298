package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/DevExpGBB/azsvc/internal/scaffold"
	"github.com/DevExpGBB/azsvc/internal/service"
)

var (
	newWebRoles    int
	newWorkerRoles int
)

var newCmd = &cobra.Command{
	Use:   "new <name> [path]",
	Short: "Create a new service",
	Long: `Creates the definition and configuration files of a new service.

The service is created in [path], or in a directory named after the service.
Use --web and --worker to add roles straight away, or 'azsvc role add' later.

Example:
  azsvc new mysvc
  azsvc new mysvc ./src/mysvc --web 1 --worker 1`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runNew,
}

func init() {
	newCmd.Flags().IntVar(&newWebRoles, "web", 0, "Number of web roles to add")
	newCmd.Flags().IntVar(&newWorkerRoles, "worker", 0, "Number of worker roles to add")
	newCmd.GroupID = "service"
	rootCmd.AddCommand(newCmd)
}

func runNew(cmd *cobra.Command, args []string) error {
	name := args[0]
	dir := name
	if len(args) > 1 {
		dir = args[1]
	}

	svc, err := scaffold.NewService(dir, name)
	if err != nil {
		return err
	}
	fmt.Printf("\n📁 Created service %s in %s\n", name, svc.Root)

	for i := 0; i < newWebRoles; i++ {
		if err := scaffold.AddRole(svc, service.WebRole, "", 1); err != nil {
			return err
		}
	}
	for i := 0; i < newWorkerRoles; i++ {
		if err := scaffold.AddRole(svc, service.WorkerRole, "", 1); err != nil {
			return err
		}
	}
	for _, r := range svc.Definition.Roles {
		fmt.Printf("   ✅ %s role %s\n", r.Type, r.Name)
	}

	rel, err := filepath.Rel(".", svc.Root)
	if err != nil {
		rel = svc.Root
	}
	fmt.Println("\nNext Steps:")
	fmt.Printf("  1. cd %s\n", rel)
	if len(svc.Definition.Roles) == 0 {
		fmt.Println("  2. azsvc role add --type web")
		fmt.Println("  3. azsvc publish --location \"West US\"")
	} else {
		fmt.Println("  2. azsvc publish --location \"West US\"")
	}
	return nil
}
