package cmd

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/mod/semver"

	"github.com/fakeyudi/activitywatch-ls/internal/release"
	"github.com/fakeyudi/activitywatch-ls/internal/session"
)

var (
	installDir     string
	installRepo    string
	installAPIBase string
	installForce   bool
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Find the language server binary, downloading the latest release if needed",
	Long: "Resolves activitywatch-ls the way the Zed extension does: from PATH, " +
		"from a previous download, or from the latest GitHub release. Prints the binary path.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := installDir
		if dir == "" {
			data, err := session.DataDir()
			if err != nil {
				return err
			}
			dir = filepath.Join(data, "bin")
		}

		if !installForce {
			if bin, ok := release.Locate(exec.LookPath, cachedBinary(dir), runtime.GOOS, runtime.GOARCH); ok {
				fmt.Fprintln(cmd.OutOrStdout(), bin)
				return nil
			}
		}

		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		inst := &release.Installer{
			Dir:     dir,
			Repo:    installRepo,
			APIBase: installAPIBase,
			GOOS:    runtime.GOOS,
			GOARCH:  runtime.GOARCH,
			Logger:  logger.Named("install"),
		}
		bin, err := inst.Install(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), bin)
		return nil
	},
}

// cachedBinary returns the newest previously downloaded binary under dir, or "".
// Version directories are ordered by semantic version, not by name.
func cachedBinary(dir string) string {
	pattern := filepath.Join(dir, release.BinaryName+"-*", release.ExecutableName(release.BinaryName, runtime.GOOS))
	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) == 0 {
		return ""
	}
	slices.SortFunc(matches, func(a, b string) int {
		if c := semver.Compare(cachedVersion(a), cachedVersion(b)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return matches[len(matches)-1]
}

// cachedVersion turns ".../activitywatch-ls-0.10.0/<exe>" into "v0.10.0".
func cachedVersion(binary string) string {
	name := filepath.Base(filepath.Dir(binary))
	return "v" + strings.TrimPrefix(name, release.BinaryName+"-")
}

func init() {
	installCmd.Flags().StringVar(&installDir, "dir", "", "install directory (default $XDG_DATA_HOME/activitywatch-ls/bin)")
	installCmd.Flags().StringVar(&installRepo, "repo", release.DefaultRepo, "GitHub repository publishing the releases")
	installCmd.Flags().StringVar(&installAPIBase, "api", "", "GitHub API base URL")
	installCmd.Flags().BoolVar(&installForce, "force", false, "skip PATH and cache lookup and check the latest release")
	_ = installCmd.Flags().MarkHidden("api")
	rootCmd.AddCommand(installCmd)
}
