// Package config loads vpadmin settings from vpadmin.toml, a .env file and
// the process environment, in that order of increasing precedence.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// FileName is the config file looked up in the project root.
const FileName = "vpadmin.toml"

// FallbackPassword is used when no admin password is configured.
const FallbackPassword = "admin"

// Config is the resolved configuration. Relative paths are relative to Root.
type Config struct {
	Root string `toml:"-"`

	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	PreviewPort int    `toml:"preview_port"`

	DocsDir  string `toml:"docs_dir"`
	BlogDir  string `toml:"blog_dir"`
	TrashDir string `toml:"trash_dir"`
	DistDir  string `toml:"dist_dir"`
	Registry string `toml:"registry"`
	Nav      string `toml:"nav"`

	Password   string        `toml:"-"`
	SessionTTL time.Duration `toml:"-"`

	LogLevel string `toml:"log_level"`
	LogFile  string `toml:"log_file"`
	LogJSON  bool   `toml:"log_json"`

	Watch          bool          `toml:"watch"`
	AutoCommit     bool          `toml:"autocommit"`
	GitAuthor      string        `toml:"git_author"`
	GitEmail       string        `toml:"git_email"`
	BuildCommand   []string      `toml:"build_command"`
	DeployCommand  []string      `toml:"deploy_command"`
	CommandTimeout time.Duration `toml:"-"`

	// PasswordFallback is set when Password was not configured and the
	// built-in fallback is in use.
	PasswordFallback bool `toml:"-"`
}

// fileConfig mirrors the TOML file. Pointer fields distinguish "absent" from
// a zero value so the file only overrides what it sets.
type fileConfig struct {
	Host           *string   `toml:"host"`
	Port           *int      `toml:"port"`
	PreviewPort    *int      `toml:"preview_port"`
	DocsDir        *string   `toml:"docs_dir"`
	BlogDir        *string   `toml:"blog_dir"`
	TrashDir       *string   `toml:"trash_dir"`
	DistDir        *string   `toml:"dist_dir"`
	Registry       *string   `toml:"registry"`
	Nav            *string   `toml:"nav"`
	Password       *string   `toml:"password"`
	SessionTTL     *string   `toml:"session_ttl"`
	LogLevel       *string   `toml:"log_level"`
	LogFile        *string   `toml:"log_file"`
	LogJSON        *bool     `toml:"log_json"`
	Watch          *bool     `toml:"watch"`
	AutoCommit     *bool     `toml:"autocommit"`
	GitAuthor      *string   `toml:"git_author"`
	GitEmail       *string   `toml:"git_email"`
	BuildCommand   *[]string `toml:"build_command"`
	DeployCommand  *[]string `toml:"deploy_command"`
	CommandTimeout *string   `toml:"command_timeout"`
}

// Default returns the built-in configuration for a project rooted at root.
func Default(root string) Config {
	return Config{
		Root:           root,
		Host:           "127.0.0.1",
		Port:           5174,
		PreviewPort:    4173,
		DocsDir:        "docs",
		BlogDir:        "docs/blog",
		TrashDir:       "docs/.trash",
		DistDir:        "docs/.vitepress/dist",
		Registry:       "docs/.vitepress/categories.map.json",
		Nav:            "docs/.vitepress/categories.nav.json",
		SessionTTL:     12 * time.Hour,
		LogLevel:       "info",
		GitAuthor:      "vpadmin",
		GitEmail:       "vpadmin@localhost",
		BuildCommand:   []string{"npx", "vitepress", "build", "docs"},
		DeployCommand:  []string{"node", "scripts/deploy-local.mjs"},
		CommandTimeout: 10 * time.Minute,
	}
}

// Load resolves the configuration for root. file may be empty, in which case
// root/vpadmin.toml is used if it exists. A .env file in root is loaded into
// the environment without overriding variables that are already set.
func Load(root, file string) (Config, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Config{}, fmt.Errorf("resolve root: %w", err)
	}
	cfg := Default(abs)

	explicit := file != ""
	if !explicit {
		file = filepath.Join(abs, FileName)
	}
	var fc fileConfig
	if _, err := toml.DecodeFile(file, &fc); err != nil {
		if explicit || !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read %s: %w", file, err)
		}
	} else if err := cfg.merge(fc); err != nil {
		return Config{}, fmt.Errorf("%s: %w", file, err)
	}

	if err := godotenv.Load(filepath.Join(abs, ".env")); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	if strings.TrimSpace(cfg.Password) == "" {
		cfg.Password = FallbackPassword
		cfg.PasswordFallback = true
	}
	return cfg, nil
}

func (c *Config) merge(fc fileConfig) error {
	setString(&c.Host, fc.Host)
	setInt(&c.Port, fc.Port)
	setInt(&c.PreviewPort, fc.PreviewPort)
	setString(&c.DocsDir, fc.DocsDir)
	setString(&c.BlogDir, fc.BlogDir)
	setString(&c.TrashDir, fc.TrashDir)
	setString(&c.DistDir, fc.DistDir)
	setString(&c.Registry, fc.Registry)
	setString(&c.Nav, fc.Nav)
	setString(&c.Password, fc.Password)
	setString(&c.LogLevel, fc.LogLevel)
	setString(&c.LogFile, fc.LogFile)
	setString(&c.GitAuthor, fc.GitAuthor)
	setString(&c.GitEmail, fc.GitEmail)
	if fc.LogJSON != nil {
		c.LogJSON = *fc.LogJSON
	}
	if fc.Watch != nil {
		c.Watch = *fc.Watch
	}
	if fc.AutoCommit != nil {
		c.AutoCommit = *fc.AutoCommit
	}
	if fc.BuildCommand != nil {
		c.BuildCommand = *fc.BuildCommand
	}
	if fc.DeployCommand != nil {
		c.DeployCommand = *fc.DeployCommand
	}
	if fc.SessionTTL != nil {
		d, err := time.ParseDuration(*fc.SessionTTL)
		if err != nil {
			return fmt.Errorf("session_ttl: %w", err)
		}
		c.SessionTTL = d
	}
	if fc.CommandTimeout != nil {
		d, err := time.ParseDuration(*fc.CommandTimeout)
		if err != nil {
			return fmt.Errorf("command_timeout: %w", err)
		}
		c.CommandTimeout = d
	}
	return nil
}

func (c *Config) applyEnv() error {
	for _, key := range []string{"ADMIN_PASSWORD", "BLOG_ADMIN_PASSWORD", "ADMIN_PASS"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			c.Password = v
			break
		}
	}
	if v := os.Getenv("HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	for key, dst := range map[string]*int{"PORT": &c.Port, "PREVIEW_PORT": &c.PreviewPort} {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
	}
	if v := os.Getenv("ADMIN_SESSION_TTL"); v != "" {
		// Plain numbers are milliseconds.
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.SessionTTL = time.Duration(ms) * time.Millisecond
		} else if d, err := time.ParseDuration(v); err == nil {
			c.SessionTTL = d
		} else {
			return fmt.Errorf("ADMIN_SESSION_TTL: invalid duration %q", v)
		}
	}
	return nil
}

// Path resolves p against Root unless it is already absolute.
func (c Config) Path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, filepath.FromSlash(p))
}

// Addr is the listen address of the admin server.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Write stores the file-backed part of c as TOML at path. The password is
// never written; set it through the environment.
func (c Config) Write(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if err := c.Encode(f); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}

// Encode writes the file-backed part of c as TOML to w.
func (c Config) Encode(w io.Writer) error {
	out := struct {
		Config
		SessionTTL     string `toml:"session_ttl"`
		CommandTimeout string `toml:"command_timeout"`
	}{c, c.SessionTTL.String(), c.CommandTimeout.String()}
	return toml.NewEncoder(w).Encode(out)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
