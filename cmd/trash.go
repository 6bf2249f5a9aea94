package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var trashCmd = &cobra.Command{
	Use:   "trash",
	Short: "List, restore or purge removed posts",
}

var trashListCmd = &cobra.Command{
	Use:   "list",
	Short: "List trashed posts, newest first",
	Args:  cobra.NoArgs,
	RunE:  runTrashList,
}

var trashRestoreCmd = &cobra.Command{
	Use:   "restore <name>",
	Short: "Move a trashed post back into the drafts folder",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrashRestore,
}

var trashDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Permanently delete a trashed post",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrashDelete,
}

var trashSlug string

func init() {
	trashRestoreCmd.Flags().StringVar(&trashSlug, "slug", "", "file name for the restored draft (default: derived from the trash name)")
	trashCmd.AddCommand(trashListCmd, trashRestoreCmd, trashDeleteCmd)
	rootCmd.AddCommand(trashCmd)
}

func runTrashList(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	items, err := a.posts.Trash()
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Println("Trash is empty.")
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTITLE\tMODIFIED")
	for _, t := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Name, t.Title, t.ModTime.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func runTrashRestore(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	res, err := a.posts.RestoreTrash(args[0], trashSlug)
	if err != nil {
		return err
	}
	fmt.Printf("Restored %s to %s\n", args[0], res.Rel)
	return nil
}

func runTrashDelete(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	if err := a.posts.DeleteTrash(args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted %s\n", args[0])
	return nil
}
