package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/DevExpGBB/azsvc/internal/pkgbuild"
	"github.com/DevExpGBB/azsvc/internal/service"
)

var packageExcludes []string

var packageCmd = &cobra.Command{
	Use:   "package [path]",
	Short: "Build the deployment package without publishing",
	Long: `Builds cloud_package.zip in the service root, exactly as publish does.

Directories matching an exclude glob are left out of every role; by default
runtime log directories (*.logs) are excluded.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPackage,
}

func init() {
	packageCmd.Flags().StringSliceVar(&packageExcludes, "exclude", pkgbuild.DefaultExcludes, "Directory name globs to leave out")
	packageCmd.GroupID = "service"
	rootCmd.AddCommand(packageCmd)
}

func runPackage(cmd *cobra.Command, args []string) error {
	svc, err := service.Load(serviceDir(args))
	if err != nil {
		return err
	}
	fmt.Printf("\n📦 Packaging %s...\n", svc.Name())
	art, err := (&pkgbuild.Builder{Excludes: packageExcludes}).Build(svc)
	if err != nil {
		return err
	}

	var entries []string
	for _, e := range art.Entries.ToSlice() {
		entries = append(entries, e.(string))
	}
	sort.Strings(entries)
	for _, e := range entries {
		fmt.Printf("   %s\n", e)
	}
	for _, r := range svc.Definition.Roles {
		fmt.Printf("   %s: %d files\n", r.Name, len(art.RoleEntries[r.Name]))
	}
	fmt.Printf("\n   ✅ %s (%d bytes)\n", art.Path, art.Size)
	return nil
}
