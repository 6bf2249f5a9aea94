package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gosub/vpadmin/internal/config"
	"github.com/gosub/vpadmin/internal/content"
	"github.com/gosub/vpadmin/internal/registry"
	"github.com/gosub/vpadmin/internal/repo"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Prepare a VitePress project for vpadmin",
	Long: `Prepare the project at --root for vpadmin.

Writes vpadmin.toml with the default settings, creates the blog, drafts and
trash folders, an empty category registry and the navigation artifact.
With --git the project is also put under git and the result committed.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

var (
	initGit    bool
	initRemote string
	initForce  bool
)

func init() {
	initCmd.Flags().BoolVar(&initGit, "git", false, "initialize a git repository if there is none and commit")
	initCmd.Flags().StringVar(&initRemote, "remote", "", "remote URL to configure as 'origin' (implies --git)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing "+config.FileName)

	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	root, err := filepath.Abs(rootDir)
	if err != nil {
		return fmt.Errorf("resolve root: %w", err)
	}
	cfg := config.Default(root)

	cfgPath := configFile
	if cfgPath == "" {
		cfgPath = filepath.Join(root, config.FileName)
	}
	if content.Exists(cfgPath) && !initForce {
		fmt.Printf("Config     : %s exists, kept (use --force to overwrite)\n", cfgPath)
		if cfg, err = config.Load(root, cfgPath); err != nil {
			return err
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
			return err
		}
		if err := cfg.Write(cfgPath); err != nil {
			return err
		}
		fmt.Printf("Config     : %s\n", cfgPath)
	}

	blog := cfg.Path(cfg.BlogDir)
	for _, dir := range []string{blog, filepath.Join(blog, content.LocalDirName), cfg.Path(cfg.TrashDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	a := newApp(cfg)
	if !content.Exists(a.registry.Path) {
		if _, err := a.registry.Write(registry.Registry{}); err != nil {
			return fmt.Errorf("write registry: %w", err)
		}
	}
	fmt.Printf("Registry   : %s\n", a.registry.Path)
	res, err := a.nav.Sync()
	if err != nil {
		return fmt.Errorf("nav sync: %w", err)
	}
	fmt.Printf("Nav        : %s\n", res.ArtifactPath)

	if initGit || initRemote != "" {
		if err := initRepo(cfg); err != nil {
			return err
		}
	}
	fmt.Println("Initialized.")
	return nil
}

func initRepo(cfg config.Config) error {
	r, err := repo.Open(cfg.Root)
	if err != nil {
		if r, err = repo.Init(cfg.Root); err != nil {
			return fmt.Errorf("init repo: %w", err)
		}
	}
	r.Author, r.Email = cfg.GitAuthor, cfg.GitEmail

	if initRemote != "" {
		if err := r.AddRemote("origin", initRemote); err != nil {
			return fmt.Errorf("add remote: %w", err)
		}
		fmt.Printf("Remote     : origin → %s\n", initRemote)
	}
	hash, err := r.CommitAll("vpadmin: init")
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	if hash != "" {
		fmt.Printf("Commit     : %s\n", hash)
	}
	fmt.Printf("Repository : %s\n", r.Path)
	return nil
}
