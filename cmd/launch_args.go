package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/activitywatch-ls/internal/config"
)

var launchArgsCmd = &cobra.Command{
	Use:   "launch-args [settings-json]",
	Short: "Translate a Zed settings block into language server arguments",
	Long: "Reads the lsp.activitywatch.settings object (from the argument or stdin) and " +
		"prints the matching --host/--port arguments, one per line. Malformed settings " +
		"are reported on stderr and produce no arguments.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var raw []byte
		if len(args) == 1 {
			raw = []byte(args[0])
		} else {
			b, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			raw = b
		}

		settings, err := config.ParseSettings(raw)
		if err != nil {
			cmd.PrintErrf("ignoring settings: %v\n", err)
			return nil
		}
		if a := settings.Args(); len(a) > 0 {
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(a, "\n"))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(launchArgsCmd)
}
