package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gosub/vpadmin/internal/repo"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View the resolved configuration or set the git remote",
	Long: `Print the configuration after merging vpadmin.toml, .env and the
environment. The admin password is never printed.

Use --remote to set the origin remote URL of the project repository.`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

var configRemoteURL string

func init() {
	configCmd.Flags().StringVar(&configRemoteURL, "remote", "", "set the origin remote URL")
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}

	// No flags → print current config.
	if configRemoteURL == "" {
		fmt.Printf("# root: %s\n", a.cfg.Root)
		if a.cfg.PasswordFallback {
			fmt.Println("# password: fallback (set ADMIN_PASSWORD)")
		} else {
			fmt.Println("# password: set")
		}
		if r, err := repo.Open(a.cfg.Root); err == nil {
			_, remoteURL := r.IsSynced()
			fmt.Printf("# git: %s (remote %q)\n", r.Path, remoteURL)
		}
		return a.cfg.Encode(os.Stdout)
	}

	r, err := repo.Open(a.cfg.Root)
	if err != nil {
		return fmt.Errorf("open repo: %w", err)
	}
	if err := r.AddRemote("origin", configRemoteURL); err != nil {
		return fmt.Errorf("set remote: %w", err)
	}
	fmt.Printf("Remote URL set to %s\n", configRemoteURL)
	return nil
}
