package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fakeyudi/activitywatch-ls/internal/config"
)

// version is set at build time with -ldflags "-X .../cmd.version=...".
var version = "dev"

// cfg holds the merged configuration, populated in PersistentPreRunE.
var cfg config.Config

// overrides binds AW_* environment variables and command-line flags.
var overrides = viper.New()

var rootCmd = &cobra.Command{
	Use:     "activitywatch-ls",
	Short:   "ActivityWatch language server for the Zed editor",
	Long:    "Speaks LSP on stdin/stdout and reports editor activity as heartbeats to an ActivityWatch server.",
	Version: version,
	Args:    cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		c, err := loadConfig(wd)
		if err != nil {
			return err
		}
		cfg = c
		return nil
	},
	RunE:         runServe,
	SilenceUsage: true,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringP("host", "a", "", "ActivityWatch server host (default 127.0.0.1)")
	f.IntP("port", "p", 0, "ActivityWatch server port (default 5600)")
	f.String("client", "", "watcher name, also the bucket prefix (default aw-watcher-zed)")
	f.String("log-level", "", "debug, info, warn or error (default info)")
	f.String("log-file", "", "write logs here instead of stderr")
	f.Duration("timeout", 0, "per-request timeout for the ActivityWatch server (default 10s)")

	for _, name := range []string{"host", "port", "client", "log-level", "log-file", "timeout"} {
		_ = overrides.BindPFlag(name, f.Lookup(name))
	}
	_ = overrides.BindEnv("host", "AW_HOST")
	_ = overrides.BindEnv("port", "AW_PORT")
	_ = overrides.BindEnv("client", "AW_CLIENT")
	_ = overrides.BindEnv("log-level", "AW_LOG_LEVEL")
}

// loadConfig merges defaults, the global file, the project file in dir,
// then environment and flags.
func loadConfig(dir string) (config.Config, error) {
	global, err := config.LoadGlobal()
	if err != nil {
		return config.Config{}, fmt.Errorf("loading global config: %w", err)
	}
	project, err := config.LoadProject(dir)
	if err != nil {
		return config.Config{}, fmt.Errorf("loading project config: %w", err)
	}
	c := config.Merge(global, project)

	if overrides.IsSet("host") {
		c.Host = overrides.GetString("host")
	}
	if overrides.IsSet("port") {
		c.Port = overrides.GetInt("port")
	}
	if overrides.IsSet("client") {
		c.Client = overrides.GetString("client")
	}
	if overrides.IsSet("log-level") {
		c.LogLevel = overrides.GetString("log-level")
	}
	if overrides.IsSet("log-file") {
		c.LogFile = overrides.GetString("log-file")
	}
	if overrides.IsSet("timeout") {
		c.Timeout = config.Duration(overrides.GetDuration("timeout"))
	}
	return c, nil
}

// newLogger builds the production JSON logger. stdout belongs to the LSP
// stream, so logs go to stderr or c.LogFile.
func newLogger(c config.Config) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if c.LogLevel != "" {
		if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
			return nil, fmt.Errorf("log level %q: %w", c.LogLevel, err)
		}
	}
	zc := zap.NewProductionConfig()
	zc.Level = level
	zc.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	if c.LogFile != "" {
		zc.OutputPaths = []string{c.LogFile}
	}
	return zc.Build()
}

// Execute runs the root command. Exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetConfig returns the merged configuration for use by subcommands.
func GetConfig() config.Config {
	return cfg
}
