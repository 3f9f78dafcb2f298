package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DevExpGBB/azsvc/internal/scaffold"
	"github.com/DevExpGBB/azsvc/internal/service"
)

var (
	roleType      string
	roleName      string
	roleInstances int
	roleCache     bool
)

var roleCmd = &cobra.Command{
	Use:   "role",
	Short: "Manage the roles of a service",
}

func newRoleAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add [path]",
		Short: "Add a web or worker role",
		Long: `Adds a role to the service in [path] (default: current directory).

The role directory is created from a template and the role is registered in
the definition and every configuration.

Example:
  azsvc role add --type web
  azsvc role add --type worker --name Cache --cache --instances 2`,
		Args: cobra.MaximumNArgs(1),
		RunE: runRoleAdd,
	}

	cmd.Flags().StringVar(&roleType, "type", service.WebRole, "Role type: web or worker")
	cmd.Flags().StringVar(&roleName, "name", "", "Role name (default WebRoleN or WorkerRoleN)")
	cmd.Flags().IntVar(&roleInstances, "instances", 1, "Number of instances")
	cmd.Flags().BoolVar(&roleCache, "cache", false, "Import the caching plugin")

	return cmd
}

func init() {
	roleCmd.GroupID = "service"
	rootCmd.AddCommand(roleCmd)
	roleCmd.AddCommand(newRoleAddCmd())
}

func runRoleAdd(cmd *cobra.Command, args []string) error {
	svc, err := service.Load(serviceDir(args))
	if err != nil {
		return err
	}
	var plugins []string
	if roleCache {
		plugins = append(plugins, service.CachePlugin)
	}
	if err := scaffold.AddRole(svc, roleType, roleName, roleInstances, plugins...); err != nil {
		return err
	}
	r := svc.Definition.Roles[len(svc.Definition.Roles)-1]
	fmt.Printf("\n✅ Added %s role %s to %s\n", r.Type, r.Name, svc.Name())
	fmt.Printf("   Content: %s\n", svc.RoleDir(r.Name))
	return nil
}
