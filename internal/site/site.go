// Package site runs the VitePress build, preview and deploy commands for the
// blog project.
package site

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Output is the captured result of a finished command.
type Output struct {
	Out string `json:"out"`
	Err string `json:"err,omitempty"`
}

// CommandError is returned when a command exits unsuccessfully.
type CommandError struct {
	Args []string
	Output
	Cause error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %v", strings.Join(e.Args, " "), e.Cause)
}

func (e *CommandError) Unwrap() error { return e.Cause }

// Runner executes site commands in Root.
type Runner struct {
	Root          string
	DistDir       string
	PreviewPort   int
	BuildCommand  []string
	DeployCommand []string
	Timeout       time.Duration
	Log           *zap.Logger

	// Run executes a command to completion. Start launches one in the
	// background. Both default to os/exec and are replaced in tests.
	Run   func(ctx context.Context, dir string, args []string) (Output, error)
	Start func(dir string, args []string) error
}

// New returns a Runner using os/exec.
func New(root, distDir string, previewPort int, build, deploy []string, timeout time.Duration, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		Root:          root,
		DistDir:       distDir,
		PreviewPort:   previewPort,
		BuildCommand:  build,
		DeployCommand: deploy,
		Timeout:       timeout,
		Log:           log,
		Run:           execRun,
		Start:         execStart,
	}
}

// Build runs the build command.
func (r *Runner) Build(ctx context.Context) (Output, error) {
	return r.run(ctx, r.BuildCommand)
}

// Deploy runs the deploy command.
func (r *Runner) Deploy(ctx context.Context) (Output, error) {
	return r.run(ctx, r.DeployCommand)
}

// Preview builds the site if there is no built index.html yet, then starts
// `vitepress preview` detached and returns its URL.
func (r *Runner) Preview(ctx context.Context) (string, error) {
	if _, err := os.Stat(filepath.Join(r.DistDir, "index.html")); err != nil {
		if _, err := r.Build(ctx); err != nil {
			return "", err
		}
	}
	port := strconv.Itoa(r.PreviewPort)
	args := []string{npx(), "vitepress", "preview", "docs", "--host", "--port", port}
	if err := r.Start(r.Root, args); err != nil {
		return "", fmt.Errorf("start preview: %w", err)
	}
	r.Log.Info("started site preview", zap.String("port", port))
	return "http://127.0.0.1:" + port, nil
}

func (r *Runner) run(ctx context.Context, args []string) (Output, error) {
	if len(args) == 0 {
		return Output{}, errors.New("no command configured")
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	start := time.Now()
	out, err := r.Run(ctx, r.Root, args)
	out.Out = strings.TrimSpace(out.Out)
	if err != nil {
		r.Log.Error("site command failed", zap.Strings("args", args), zap.Error(err))
		return out, &CommandError{Args: args, Output: out, Cause: err}
	}
	r.Log.Info("site command finished", zap.Strings("args", args), zap.Duration("took", time.Since(start)))
	return out, nil
}

func npx() string {
	if os.PathSeparator == '\\' {
		return "npx.cmd"
	}
	return "npx"
}

func execRun(ctx context.Context, dir string, args []string) (Output, error) {
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return Output{Out: stdout.String(), Err: stderr.String()}, err
}

func execStart(dir string, args []string) error {
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = dir
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
