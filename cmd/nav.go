package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var navCmd = &cobra.Command{
	Use:   "nav",
	Short: "Inspect or regenerate the category navigation artifact",
}

var navSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Rebuild the navigation artifact from the registry and posts",
	Args:  cobra.NoArgs,
	RunE:  runNavSync,
}

var navShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the navigation artifact currently on disk",
	Args:  cobra.NoArgs,
	RunE:  runNavShow,
}

func init() {
	navCmd.AddCommand(navSyncCmd, navShowCmd)
	rootCmd.AddCommand(navCmd)
}

func runNavSync(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	res, err := a.nav.Sync()
	if err != nil {
		return fmt.Errorf("nav sync: %w", err)
	}
	fmt.Printf("Wrote %d item(s) to %s\n", len(res.Items), res.ArtifactPath)
	return nil
}

func runNavShow(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	art, err := a.nav.ReadArtifact()
	if err != nil {
		return err
	}
	if art.UpdatedAt == "" {
		fmt.Println("No navigation artifact yet; run 'vpadmin nav sync'.")
		return nil
	}
	fmt.Printf("Updated: %s\n\n", art.UpdatedAt)
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tTEXT\tLINK\tPOSTS\tPUBLISHED")
	for _, it := range art.Items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\n", it.MenuOrder, it.Text, it.Link, it.PostCount, it.PublishedCount)
	}
	return tw.Flush()
}
