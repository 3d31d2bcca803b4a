package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/activitywatch-ls/internal/aw"
	"github.com/fakeyudi/activitywatch-ls/internal/report"
	"github.com/fakeyudi/activitywatch-ls/internal/session"
	"github.com/fakeyudi/activitywatch-ls/internal/tui"
)

var (
	statusFormat string
	statusWatch  bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show running language servers and whether ActivityWatch is reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := session.NewSessionStore()
		if err != nil {
			return err
		}
		if _, err := session.Prune(store); err != nil {
			return err
		}

		client, err := aw.NewClient(cfg.BaseURL(), aw.WithTimeout(time.Duration(cfg.Timeout)))
		if err != nil {
			return err
		}
		load := func(ctx context.Context) (*report.Report, error) {
			return report.Build(ctx, client, store, time.Now())
		}

		if statusWatch {
			if !term.IsTerminal(os.Stdout.Fd()) {
				return errors.New("--watch needs an interactive terminal")
			}
			return tui.Run(cmd.Context(), load, store.Dir())
		}

		renderer, err := report.ForFormat(statusFormat)
		if err != nil {
			return err
		}
		r, err := load(cmd.Context())
		if err != nil {
			return err
		}
		out, err := renderer.Render(r)
		if err != nil {
			return err
		}
		s := string(out)
		if !strings.HasSuffix(s, "\n") {
			s += "\n"
		}
		fmt.Fprint(cmd.OutOrStdout(), s)
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVarP(&statusFormat, "format", "f", "text", "output format: text, markdown or json")
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "open a live dashboard")
	rootCmd.AddCommand(statusCmd)
}
