package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gosub/vpadmin/internal/posts"
)

var newCmd = &cobra.Command{
	Use:   "new <title>",
	Short: "Create an unpublished draft in the local drafts folder",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runNew,
}

var (
	newSlug        string
	newDescription string
	newCategories  []string
	newTags        []string
)

func init() {
	newCmd.Flags().StringVar(&newSlug, "slug", "", "file name (default: derived from the title)")
	newCmd.Flags().StringVar(&newDescription, "description", "", "post description")
	newCmd.Flags().StringSliceVarP(&newCategories, "category", "c", nil, "category title (repeatable)")
	newCmd.Flags().StringSliceVarP(&newTags, "tag", "t", nil, "tag (repeatable)")
	rootCmd.AddCommand(newCmd)
}

func runNew(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	res, err := a.posts.NewLocal(posts.NewPost{
		Title:       strings.Join(args, " "),
		Slug:        newSlug,
		Description: newDescription,
		Categories:  newCategories,
		Tags:        newTags,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Created %s\n", res.Rel)
	return nil
}
