package usage_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosub/vpadmin/internal/content"
	"github.com/gosub/vpadmin/internal/errs"
	"github.com/gosub/vpadmin/internal/frontmatter"
	"github.com/gosub/vpadmin/internal/registry"
	"github.com/gosub/vpadmin/internal/usage"
)

func setup(t *testing.T) (*content.Tree, *usage.Engine) {
	t.Helper()
	root := t.TempDir()
	tree := content.NewTree(filepath.Join(root, "blog"), filepath.Join(root, ".trash"), nil)
	require.NoError(t, os.MkdirAll(tree.BlogDir, 0o755))
	return tree, usage.New(tree, nil, nil)
}

func write(t *testing.T, tree *content.Tree, rel, text string) string {
	t.Helper()
	abs := filepath.Join(tree.BlogDir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(text), 0o644))
	return abs
}

func read(t *testing.T, abs string) string {
	t.Helper()
	data, err := os.ReadFile(abs)
	require.NoError(t, err)
	return string(data)
}

func TestCollect(t *testing.T) {
	tree, eng := setup(t)
	write(t, tree, "tech/index.md", "---\ntitle: Tech\ncategories: [Tech]\n---\n")
	write(t, tree, "tech/b.md", "---\ntitle: B\ncategories: [' Tech ', Life]\npublish: true\n---\n")
	write(t, tree, "tech/a.md", "---\ncategories: [Tech]\npublish: true\ndraft: true\n---\n")
	write(t, tree, "_local/c.md", "---\ntitle: C\ncategories:\n  - Tech\n---\n")
	write(t, tree, "tech/d.md", "---\ntitle: D\ncategories: [Technology]\n---\n")

	u, err := eng.Collect("Tech")
	require.NoError(t, err)
	require.Equal(t, 3, u.Total)

	assert.Equal(t, "_local/c.md", u.Posts[0].Rel)
	assert.True(t, u.Posts[0].IsLocal)
	assert.Equal(t, "tech/a.md", u.Posts[1].Rel)
	assert.Equal(t, "a", u.Posts[1].Title, "falls back to slug")
	assert.True(t, u.Posts[1].Draft)
	assert.Equal(t, "tech/b.md", u.Posts[2].Rel)
	assert.True(t, u.Posts[2].Publish)
}

func TestOverview(t *testing.T) {
	tree, eng := setup(t)
	write(t, tree, "x/old.md", "---\ntitle: Old\ndate: 2024/01/01 00:00:00\ncategories: [X]\npublish: true\n---\n")
	write(t, tree, "x/new.md", "---\ntitle: New\ndate: 2024/09/01 00:00:00\ncategories: [X]\npublish: true\n---\n")
	write(t, tree, "x/draft.md", "---\ntitle: Draft\ndate: 2025/01/01 00:00:00\ncategories: [X, X]\npublish: true\ndraft: true\n---\n")
	undated := write(t, tree, "x/undated.md", "---\ntitle: Undated\ncategories: [Y]\n---\n")
	mtime := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(undated, mtime, mtime))

	ov, err := eng.Overview()
	require.NoError(t, err)

	x := ov["X"]
	require.NotNil(t, x)
	assert.Equal(t, 3, x.Total)
	assert.Equal(t, 2, x.Published)
	assert.Equal(t, "x/draft.md", x.LatestAny.Rel)
	assert.Equal(t, "x/new.md", x.LatestPublished.Rel)
	assert.Equal(t, "x/old.md", x.EarliestPublished.Rel)
	assert.True(t, x.HasPublishedRoute("/blog/x/old"))
	assert.False(t, x.HasPublishedRoute("/blog/x/draft"))

	y := ov["Y"]
	require.NotNil(t, y)
	assert.Equal(t, 0, y.Published)
	assert.True(t, y.LatestAny.Time.Equal(mtime))
}

func TestOrphansSortedByActivity(t *testing.T) {
	tree, eng := setup(t)
	write(t, tree, "a/1.md", "---\ndate: 2024/01/01 00:00:00\ncategories: [工程实践]\n---\n")
	write(t, tree, "a/2.md", "---\ndate: 2023/01/01 00:00:00\ncategories: [旧文]\n---\n")
	write(t, tree, "a/3.md", "---\ndate: 2024/06/01 00:00:00\ncategories: [散记]\npublish: true\n---\n")

	ov, err := eng.Overview()
	require.NoError(t, err)
	orphans := usage.Orphans(ov, []registry.Entry{{Dir: "a", Title: "工程实践"}})

	require.Len(t, orphans, 2)
	assert.Equal(t, "散记", orphans[0].Title)
	assert.Equal(t, 1, orphans[0].Published)
	assert.Equal(t, "旧文", orphans[1].Title)
}

func TestRewriteRename(t *testing.T) {
	tree, eng := setup(t)
	a := write(t, tree, "p/a.md", "---\ntitle: A\ncategories: [Old, Other]\nextra: keep\n---\nbody\n")
	b := write(t, tree, "p/b.md", "---\ntitle: B\ncategories: [New, Old]\n---\n")
	c := write(t, tree, "p/c.md", "---\ntitle: C\ncategories: [Other]\n---\n")
	cBefore := read(t, c)

	res, err := eng.Rewrite(usage.RewriteOptions{From: "Old", To: "New", Mode: usage.ModeRename})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Updated)
	assert.Empty(t, res.Failed)

	assert.Equal(t, "---\ntitle: A\ncategories: [New, Other]\nextra: keep\n---\nbody\n", read(t, a))
	assert.Equal(t, []string{"New"}, frontmatter.Parse(read(t, b)).Categories, "duplicate collapsed")
	assert.Equal(t, cBefore, read(t, c))

	u, err := eng.Collect("Old")
	require.NoError(t, err)
	assert.Equal(t, 0, u.Total)
}

func TestRewriteDryRunAndExclude(t *testing.T) {
	tree, eng := setup(t)
	a := write(t, tree, "p/a.md", "---\ncategories: [Old]\n---\n")
	b := write(t, tree, "p/b.md", "---\ncategories: [Old]\n---\n")
	before := read(t, a)

	res, err := eng.Rewrite(usage.RewriteOptions{From: "Old", Mode: usage.ModeRemove, DryRun: true, Exclude: []string{b}})
	require.NoError(t, err)
	require.Equal(t, 1, res.Updated)
	assert.Equal(t, []string{"Old"}, res.Files[0].Before)
	assert.Empty(t, res.Files[0].After)
	assert.Equal(t, before, read(t, a), "dry run leaves files alone")
}

func TestRewriteNoops(t *testing.T) {
	_, eng := setup(t)
	res, err := eng.Rewrite(usage.RewriteOptions{From: "", To: "x"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Updated)

	res, err = eng.Rewrite(usage.RewriteOptions{From: "a", Mode: usage.ModeRename})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Updated)

	_, err = eng.Rewrite(usage.RewriteOptions{From: "a", Mode: "explode"})
	var verr *errs.Validation
	assert.ErrorAs(t, err, &verr)
}

func TestGuardBlocksUntilReferencesCleared(t *testing.T) {
	tree, eng := setup(t)
	for _, name := range []string{"a", "b", "c"} {
		write(t, tree, "t/"+name+".md", "---\ncategories: [Doomed]\n---\n")
	}

	u, err := eng.Collect("Doomed")
	require.NoError(t, err)
	err = usage.Guard(u, "t", "t/index.md")

	var inUse *errs.InUse
	require.ErrorAs(t, err, &inUse)
	cl := inUse.Checklist.(usage.Checklist)
	assert.Equal(t, 3, cl.Total)
	assert.Len(t, cl.Posts, 3)
	assert.Equal(t, usage.RewriteEndpoint, cl.JobEndpoint)

	_, err = eng.Rewrite(usage.RewriteOptions{From: "Doomed", Mode: usage.ModeRemove})
	require.NoError(t, err)
	u, err = eng.Collect("Doomed")
	require.NoError(t, err)
	assert.NoError(t, usage.Guard(u, "t", ""))
}
