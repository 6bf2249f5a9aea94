package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gosub/vpadmin/internal/category"
	"github.com/gosub/vpadmin/internal/usage"
)

var categoryCmd = &cobra.Command{
	Use:     "category",
	Aliases: []string{"categories"},
	Short:   "List categories and rewrite category references in posts",
}

var categoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered categories with usage and issues",
	Args:  cobra.NoArgs,
	RunE:  runCategoryList,
}

var categoryUsageCmd = &cobra.Command{
	Use:   "usage <title>",
	Short: "List the posts that carry a category title",
	Args:  cobra.ExactArgs(1),
	RunE:  runCategoryUsage,
}

var categoryRewriteCmd = &cobra.Command{
	Use:   "rewrite <from> [to]",
	Short: "Rename or remove a category title in every post",
	Long: `Rename a category title to another title in the frontmatter of every
post, or drop it with --remove. The registry entry follows the rename (or is
removed). Use --dry-run to list the affected files first.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCategoryRewrite,
}

var (
	categoryJSON  bool
	rewriteRemove bool
	rewriteDryRun bool
)

func init() {
	categoryListCmd.Flags().BoolVar(&categoryJSON, "json", false, "print the listing as JSON")
	categoryRewriteCmd.Flags().BoolVar(&rewriteRemove, "remove", false, "remove the title instead of renaming it")
	categoryRewriteCmd.Flags().BoolVar(&rewriteDryRun, "dry-run", false, "report the files that would change without writing")

	categoryCmd.AddCommand(categoryListCmd, categoryUsageCmd, categoryRewriteCmd)
	rootCmd.AddCommand(categoryCmd)
}

func runCategoryList(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	l, err := a.categories.List()
	if err != nil {
		return err
	}
	if categoryJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(l)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ORDER\tTITLE\tDIR\tPOSTS\tPUBLISHED\tISSUES")
	for _, c := range l.Items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%s\n", c.MenuOrder, c.Title, c.Dir, c.Total, c.Published, strings.Join(c.Issues, ","))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(l.Orphans) > 0 {
		fmt.Println("\nUnregistered titles found in posts:")
		for _, o := range l.Orphans {
			fmt.Printf("  %s (%d post(s), %d published)\n", o.Title, o.Total, o.Published)
		}
	}
	return nil
}

func runCategoryUsage(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	u, err := a.categories.UsageOf(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("%q is used by %d post(s)\n", u.Category, u.Total)
	for _, p := range u.Posts {
		fmt.Printf("  %s\t%s\n", p.Rel, p.Title)
	}
	return nil
}

func runCategoryRewrite(cmd *cobra.Command, args []string) error {
	req := category.RewriteRequest{From: args[0], Mode: usage.ModeRename, DryRun: rewriteDryRun}
	switch {
	case rewriteRemove:
		if len(args) == 2 {
			return fmt.Errorf("--remove takes no target title")
		}
		req.Mode = usage.ModeRemove
	case len(args) == 2:
		req.To = args[1]
	default:
		return fmt.Errorf("a target title is required unless --remove is given")
	}

	a, err := loadApp()
	if err != nil {
		return err
	}
	res, err := a.categories.Rewrite(req)
	if err != nil {
		return err
	}
	for _, f := range res.Rewrite.Files {
		fmt.Printf("  %s: %v -> %v\n", f.Rel, f.Before, f.After)
	}
	for _, f := range res.Rewrite.Failed {
		fmt.Printf("  %s: FAILED %s\n", f.Rel, f.Error)
	}
	fmt.Println(res.Summary)
	if !req.DryRun && !res.Nav.OK {
		return fmt.Errorf("nav sync failed: %s", res.Nav.Error)
	}
	return nil
}
