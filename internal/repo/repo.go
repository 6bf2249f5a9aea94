// Package repo wraps go-git for the optional git integration of the blog
// project: status reporting and committing admin changes.
package repo

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Repo wraps a go-git repository.
type Repo struct {
	// Path is the absolute path to the repository working tree.
	Path   string
	Author string
	Email  string
	git    *gogit.Repository
}

// Status summarizes the working tree.
type Status struct {
	Branch    string   `json:"branch"`
	Head      string   `json:"head,omitempty"`
	Clean     bool     `json:"clean"`
	Changed   []string `json:"changed"`
	Synced    bool     `json:"synced"`
	RemoteURL string   `json:"remoteUrl,omitempty"`
}

// Init creates a new repository at path.
func Init(path string) (*Repo, error) {
	gr, err := gogit.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("git init: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return &Repo{Path: abs, git: gr}, nil
}

// Open opens the repository containing path, searching parent directories.
func Open(path string) (*Repo, error) {
	gr, err := gogit.PlainOpenWithOptions(path, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open repo at %s: %w", path, err)
	}
	wt, err := gr.Worktree()
	if err != nil {
		return nil, fmt.Errorf("worktree: %w", err)
	}
	return &Repo{Path: wt.Filesystem.Root(), git: gr}, nil
}

// AddRemote adds a named remote (e.g. "origin") pointing at url.
// If a remote with that name already exists it is replaced.
func (r *Repo) AddRemote(name, url string) error {
	_ = r.git.DeleteRemote(name)
	_, err := r.git.CreateRemote(&config.RemoteConfig{
		Name: name,
		URLs: []string{url},
	})
	if err != nil {
		return fmt.Errorf("add remote %q: %w", name, err)
	}
	return nil
}

// Status reports the branch, the changed paths and whether HEAD matches
// origin.
func (r *Repo) Status() (Status, error) {
	st := Status{Changed: []string{}}
	wt, err := r.git.Worktree()
	if err != nil {
		return st, fmt.Errorf("worktree: %w", err)
	}
	ws, err := wt.Status()
	if err != nil {
		return st, fmt.Errorf("git status: %w", err)
	}
	for path, fs := range ws {
		if fs.Worktree == gogit.Unmodified && fs.Staging == gogit.Unmodified {
			continue
		}
		st.Changed = append(st.Changed, path)
	}
	sort.Strings(st.Changed)
	st.Clean = len(st.Changed) == 0

	if head, err := r.git.Head(); err == nil {
		st.Branch = head.Name().Short()
		st.Head = head.Hash().String()
	} else if !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return st, fmt.Errorf("head: %w", err)
	}
	st.Synced, st.RemoteURL = r.IsSynced()
	return st, nil
}

// IsSynced reports whether the local HEAD matches the remote tracking ref for
// origin and the working tree is clean. Returns (true, "") when no remote is
// configured.
func (r *Repo) IsSynced() (synced bool, remoteURL string) {
	cfg, err := r.git.Config()
	if err != nil {
		return true, ""
	}
	origin, ok := cfg.Remotes["origin"]
	if !ok || len(origin.URLs) == 0 {
		return true, ""
	}
	remoteURL = origin.URLs[0]

	wt, err := r.git.Worktree()
	if err == nil {
		if status, err := wt.Status(); err == nil && !status.IsClean() {
			return false, remoteURL
		}
	}

	head, err := r.git.Head()
	if err != nil {
		return false, remoteURL
	}
	remoteRef, err := r.git.Reference(
		plumbing.NewRemoteReferenceName("origin", head.Name().Short()), true)
	if err != nil {
		// Never pushed.
		return false, remoteURL
	}
	return head.Hash() == remoteRef.Hash(), remoteURL
}

// CommitAll stages every change in the working tree, deletions included, and
// commits it. It returns the new commit hash, or "" when there was nothing to
// commit.
func (r *Repo) CommitAll(message string) (string, error) {
	wt, err := r.git.Worktree()
	if err != nil {
		return "", fmt.Errorf("worktree: %w", err)
	}
	if err := wt.AddWithOptions(&gogit.AddOptions{All: true}); err != nil {
		return "", fmt.Errorf("git add: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return "", fmt.Errorf("git status: %w", err)
	}
	if status.IsClean() {
		return "", nil
	}
	sig := &object.Signature{
		Name:  r.author(),
		Email: r.email(),
		When:  time.Now(),
	}
	hash, err := wt.Commit(message, &gogit.CommitOptions{
		Author:    sig,
		Committer: sig,
	})
	if err != nil {
		return "", fmt.Errorf("git commit: %w", err)
	}
	return hash.String(), nil
}

// Git returns the underlying go-git repository for advanced callers.
func (r *Repo) Git() *gogit.Repository { return r.git }

func (r *Repo) author() string {
	if r.Author == "" {
		return "vpadmin"
	}
	return r.Author
}

func (r *Repo) email() string {
	if r.Email == "" {
		return "vpadmin@localhost"
	}
	return r.Email
}
