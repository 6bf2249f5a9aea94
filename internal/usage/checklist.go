package usage

import (
	"fmt"

	"github.com/gosub/vpadmin/internal/errs"
)

// RewriteEndpoint is the API route clients use to clear category references.
const RewriteEndpoint = "/api/categories/rewrite"

// Checklist is returned to the client when a category cannot be deleted yet.
type Checklist struct {
	Category     string   `json:"category"`
	Dir          string   `json:"dir"`
	Rel          string   `json:"rel,omitempty"`
	Total        int      `json:"total"`
	Posts        []Post   `json:"posts"`
	Instructions []string `json:"instructions"`
	JobEndpoint  string   `json:"jobEndpoint"`
}

// NewChecklist builds the remediation steps for deleting a category that u
// shows is still in use. rel is the section index file, if any.
func NewChecklist(u Usage, dir, rel string) Checklist {
	return Checklist{
		Category: u.Category,
		Dir:      dir,
		Rel:      rel,
		Total:    u.Total,
		Posts:    u.Posts,
		Instructions: []string{
			fmt.Sprintf("%d post(s) still list %q in their categories.", u.Total, u.Category),
			fmt.Sprintf("Move them to another category: POST %s with mode \"rename\" and the target title.", RewriteEndpoint),
			fmt.Sprintf("Or drop the category from them: POST %s with mode \"remove\".", RewriteEndpoint),
			"Run with dryRun first to review the affected files, then retry the delete.",
		},
		JobEndpoint: RewriteEndpoint,
	}
}

// Guard returns an *errs.InUse carrying a checklist when u has posts.
func Guard(u Usage, dir, rel string) error {
	if u.Total == 0 {
		return nil
	}
	return &errs.InUse{
		Msg:       fmt.Sprintf("category %q is still used by %d post(s)", u.Category, u.Total),
		Checklist: NewChecklist(u, dir, rel),
	}
}
