package posts_test

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
	"github.com/gosub/vpadmin/internal/nav"
	"github.com/gosub/vpadmin/internal/posts"
	"github.com/gosub/vpadmin/internal/registry"
	"github.com/gosub/vpadmin/internal/usage"
)

var now = time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)

type fixture struct {
	tree *content.Tree
	reg  *registry.Store
	svc  *posts.Service
}

func setup(t *testing.T) fixture {
	t.Helper()
	root := t.TempDir()
	vp := filepath.Join(root, "docs", ".vitepress")
	tree := content.NewTree(filepath.Join(root, "docs", "blog"), filepath.Join(root, "docs", ".trash"), nil)
	tree.Now = func() time.Time { return now }
	require.NoError(t, os.MkdirAll(tree.BlogDir, 0o755))

	reg := registry.NewStore(filepath.Join(vp, "categories.map.json"), nil, nil)
	reg.Now = tree.Now
	eng := usage.New(tree, nil, nil)
	sync := nav.New(reg, eng, tree, filepath.Join(vp, "categories.nav.json"), nil, nil)
	svc := posts.New(tree, reg, eng, sync, nil)
	svc.Now = tree.Now
	return fixture{tree: tree, reg: reg, svc: svc}
}

func (f fixture) write(t *testing.T, rel, text string) string {
	t.Helper()
	abs := filepath.Join(f.tree.BlogDir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(text), 0o644))
	return abs
}

func (f fixture) meta(t *testing.T, rel string) frontmatter.Meta {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.tree.BlogDir, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return frontmatter.Parse(string(data))
}

func ptr[T any](v T) *T { return &v }

func TestNewLocalAndPromoteIntoCategoryDir(t *testing.T) {
	f := setup(t)
	_, err := f.reg.Upsert("engineering", registry.Patch{Title: ptr("工程实践")})
	require.NoError(t, err)

	res, err := f.svc.NewLocal(posts.NewPost{Title: "Build Systems", Categories: []string{"工程实践"}, Tags: []string{"go"}})
	require.NoError(t, err)
	assert.Equal(t, "_local/build-systems.md", res.Rel)
	assert.True(t, res.Nav.OK)

	m := f.meta(t, res.Rel)
	assert.Equal(t, "Build Systems", m.Title)
	assert.Equal(t, "2025/02/03 04:05:06", m.Date)
	assert.True(t, frontmatter.IsTrue(m.Draft))
	assert.True(t, frontmatter.IsFalse(m.Publish))

	_, err = f.svc.NewLocal(posts.NewPost{Title: "Build Systems"})
	var conflict *errs.Conflict
	assert.ErrorAs(t, err, &conflict)

	res, err = f.svc.Promote("build-systems", false)
	require.NoError(t, err)
	assert.Equal(t, "engineering/build-systems.md", res.Rel)
	assert.Equal(t, "/blog/engineering/build-systems", res.Path)
	assert.NoFileExists(t, filepath.Join(f.tree.LocalDir, "build-systems.md"))

	m = f.meta(t, res.Rel)
	assert.True(t, frontmatter.IsTrue(m.Publish))
	assert.True(t, frontmatter.IsFalse(m.Draft))

	require.NotNil(t, res.Nav.Result)
	require.Len(t, res.Nav.Items, 1)
	assert.Equal(t, "/blog/engineering/build-systems", res.Nav.Items[0].Link)
}

func TestPromoteFallsBackToYearDir(t *testing.T) {
	f := setup(t)
	f.write(t, "_local/a.md", "---\ntitle: A\ndate: 2023/05/01 00:00:00\ncategories: [Unregistered]\n---\n")
	f.write(t, "_local/b.md", "---\ntitle: B\n---\n")

	res, err := f.svc.Promote("_local/a.md", false)
	require.NoError(t, err)
	assert.Equal(t, "2023/a.md", res.Rel)

	res, err = f.svc.Promote("b", true)
	require.NoError(t, err)
	assert.Equal(t, "2025/b.md", res.Rel)
	assert.Equal(t, "2025/02/03 04:05:06", f.meta(t, res.Rel).Date)
}

func TestPromoteRejectsSectionAndConflict(t *testing.T) {
	f := setup(t)
	f.write(t, "tech/index.md", "---\ntitle: Tech\n---\n")
	_, err := f.svc.Promote("tech/index.md", false)
	var verr *errs.Validation
	assert.ErrorAs(t, err, &verr)

	f.write(t, "2024/dup.md", "---\ntitle: existing\n---\n")
	f.write(t, "_local/dup.md", "---\ntitle: Dup\ndate: 2024/01/01 00:00:00\n---\n")
	_, err = f.svc.Promote("_local/dup.md", false)
	var conflict *errs.Conflict
	assert.ErrorAs(t, err, &conflict)
}

func TestArchiveSectionUpdatesRegistry(t *testing.T) {
	f := setup(t)
	f.write(t, "tech/index.md", "---\ntitle: Tech\npublish: true\n---\n")
	_, err := f.reg.Upsert("tech", registry.Patch{Title: ptr("Tech")})
	require.NoError(t, err)

	_, err = f.svc.Archive("tech/index.md")
	require.NoError(t, err)
	assert.True(t, frontmatter.IsFalse(f.meta(t, "tech/index.md").Publish))
	e, err := f.reg.FindByDir("tech")
	require.NoError(t, err)
	assert.False(t, e.Publish)

	_, err = f.svc.Republish("tech/index.md")
	require.NoError(t, err)
	e, err = f.reg.FindByDir("tech")
	require.NoError(t, err)
	assert.True(t, e.Publish)
}

func TestRemoveOrdinaryPost(t *testing.T) {
	f := setup(t)
	soft := f.write(t, "p/soft.md", "---\ntitle: Soft\n---\n")
	hard := f.write(t, "p/hard.md", "---\ntitle: Hard\n---\n")

	res, err := f.svc.Remove("p/soft.md", false)
	require.NoError(t, err)
	assert.Equal(t, "20250203040506-p_soft.md", res.Trashed)
	assert.NoFileExists(t, soft)

	res, err = f.svc.Remove("p/hard.md", true)
	require.NoError(t, err)
	assert.True(t, res.Deleted)
	assert.NoFileExists(t, hard)

	trash, err := f.svc.Trash()
	require.NoError(t, err)
	assert.Len(t, trash, 1)

	res, err = f.svc.RestoreTrash(res.Trashed, "")
	require.Error(t, err, "hard delete leaves nothing to restore")
	res, err = f.svc.RestoreTrash("20250203040506-p_soft.md", "")
	require.NoError(t, err)
	assert.Equal(t, "_local/p-soft.md", res.Rel)
}

func TestRemoveSectionGuardedByUsage(t *testing.T) {
	f := setup(t)
	f.write(t, "doomed/index.md", "---\ntitle: Doomed\n---\n")
	_, err := f.reg.Upsert("doomed", registry.Patch{Title: ptr("Doomed")})
	require.NoError(t, err)
	f.write(t, "doomed/a.md", "---\ncategories: [Doomed]\n---\n")
	f.write(t, "other/b.md", "---\ncategories: [Doomed, Other]\n---\n")

	_, err = f.svc.Remove("doomed/index.md", true)
	var inUse *errs.InUse
	require.ErrorAs(t, err, &inUse)
	cl := inUse.Checklist.(usage.Checklist)
	assert.Equal(t, 2, cl.Total)
	assert.Equal(t, "doomed", cl.Dir)
	assert.FileExists(t, filepath.Join(f.tree.BlogDir, "doomed", "index.md"))

	_, err = f.svc.Usage.Rewrite(usage.RewriteOptions{From: "Doomed", Mode: usage.ModeRemove})
	require.NoError(t, err)

	res, err := f.svc.Remove("doomed/index.md", true)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Trashed)
	e, err := f.reg.FindByDir("doomed")
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestRemoveSectionSoftUnpublishes(t *testing.T) {
	f := setup(t)
	abs := f.write(t, "tech/index.md", "---\ntitle: Tech\n---\n")
	_, err := f.svc.Remove("tech/index.md", false)
	require.NoError(t, err)
	assert.FileExists(t, abs)

	e, err := f.reg.FindByDir("tech")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.False(t, e.Publish)
}

func TestUpdateMetaRenamesCategory(t *testing.T) {
	f := setup(t)
	f.write(t, "tech/index.md", "---\ntitle: Tech\n---\n")
	_, err := f.reg.Upsert("tech", registry.Patch{Title: ptr("Tech")})
	require.NoError(t, err)
	f.write(t, "tech/a.md", "---\ntitle: A\ncategories: [Tech, Go]\n---\n")
	f.write(t, "life/b.md", "---\ntitle: B\ncategories: [Tech]\n---\n")

	res, err := f.svc.UpdateMeta("tech/index.md", posts.MetaPatch{Title: ptr("Technology")})
	require.NoError(t, err)
	require.NotNil(t, res.Rewrite)
	assert.Equal(t, 2, res.Rewrite.Updated)

	assert.Equal(t, []string{"Technology", "Go"}, f.meta(t, "tech/a.md").Categories)
	assert.Equal(t, []string{"Technology"}, f.meta(t, "life/b.md").Categories)
	assert.Equal(t, "Technology", f.meta(t, "tech/index.md").Title)

	e, err := f.reg.FindByDir("tech")
	require.NoError(t, err)
	assert.Equal(t, "Technology", e.Title)
	assert.Equal(t, "Technology", e.MenuLabel)

	u, err := f.svc.Usage.Collect("Tech")
	require.NoError(t, err)
	assert.Equal(t, 0, u.Total)
}

func TestUpdateMetaRefusesTakenCategoryTitle(t *testing.T) {
	f := setup(t)
	index := f.write(t, "tech/index.md", "---\ntitle: Tech\n---\n")
	f.write(t, "life/index.md", "---\ntitle: Life\n---\n")
	_, err := f.reg.Upsert("tech", registry.Patch{Title: ptr("Tech"), MenuLabel: ptr("Custom"), MenuOrder: ptr(1)})
	require.NoError(t, err)
	_, err = f.reg.Upsert("life", registry.Patch{Title: ptr("Life"), MenuOrder: ptr(2)})
	require.NoError(t, err)
	f.write(t, "tech/a.md", "---\ntitle: A\ncategories: [Tech]\n---\n")
	before, err := os.ReadFile(index)
	require.NoError(t, err)

	_, err = f.svc.UpdateMeta("tech/index.md", posts.MetaPatch{Title: ptr("Life")})
	var conflict *errs.Conflict
	require.ErrorAs(t, err, &conflict)

	after, err := os.ReadFile(index)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
	assert.Equal(t, []string{"Tech"}, f.meta(t, "tech/a.md").Categories)

	e, err := f.reg.FindByDir("tech")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "Tech", e.Title)
	assert.Equal(t, "Custom", e.MenuLabel)
	assert.Equal(t, 1, e.MenuOrder)
}

func TestUpdateMetaOrdinaryPost(t *testing.T) {
	f := setup(t)
	f.write(t, "p/a.md", "---\ntitle: A\nlayout: doc\n---\nbody\n")

	_, err := f.svc.UpdateMeta("a", posts.MetaPatch{Tags: ptr([]string{" x ", ""}), Description: ptr("desc")})
	require.NoError(t, err)
	m := f.meta(t, "p/a.md")
	assert.Equal(t, []string{"x"}, m.Tags)
	assert.Equal(t, "desc", m.Description)
	assert.True(t, m.Has("layout"))

	_, err = f.svc.UpdateMeta("a", posts.MetaPatch{})
	var verr *errs.Validation
	assert.ErrorAs(t, err, &verr)
}

func TestListAndPreview(t *testing.T) {
	f := setup(t)
	f.write(t, "p/old.md", "---\ntitle: Old\ndate: 2020/01/01 00:00:00\n---\n")
	f.write(t, "p/new.md", "---\ntitle: New\ndate: 2024/01/01 00:00:00\ntags: [a]\n---\n# Hi\n")

	items, err := f.svc.List()
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "new", items[0].Slug)
	assert.Equal(t, "/blog/p/new", items[0].Path)
	assert.Equal(t, content.KindPost, items[0].Kind)
	assert.Empty(t, items[1].Tags)

	p, err := f.svc.Preview("p/new.md")
	require.NoError(t, err)
	assert.Contains(t, p.HTML, "<h1>Hi</h1>")

	_, err = f.svc.Preview("missing")
	var nf *errs.NotFound
	assert.ErrorAs(t, err, &nf)
}
