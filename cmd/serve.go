package cmd

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fakeyudi/activitywatch-ls/internal/aw"
	"github.com/fakeyudi/activitywatch-ls/internal/config"
	"github.com/fakeyudi/activitywatch-ls/internal/heartbeat"
	"github.com/fakeyudi/activitywatch-ls/internal/lsp"
	"github.com/fakeyudi/activitywatch-ls/internal/project"
	"github.com/fakeyudi/activitywatch-ls/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the language server on stdin/stdout (the default)",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	store, err := session.NewSessionStore()
	if err != nil {
		// Not fatal: the server still tracks, status just won't see it.
		logger.Warn("session store unavailable", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rwc := stdio{r: cmd.InOrStdin(), w: cmd.OutOrStdout()}
	return serve(ctx, cfg, rwc, store, logger)
}

// serve runs one LSP connection over rwc together with the heartbeat sender
// it creates during initialize. It returns when the client exits, the
// stream closes, or ctx is cancelled.
func serve(ctx context.Context, c config.Config, rwc io.ReadWriteCloser, store session.SessionStore, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	var (
		mu  sync.Mutex
		rec *session.Recorder
	)
	recorder := func() *session.Recorder {
		mu.Lock()
		defer mu.Unlock()
		return rec
	}

	tracker := heartbeat.NewTracker("zed", heartbeat.WithIgnorePatterns(c.IgnorePatterns))

	setup := func(_ context.Context, info lsp.InitializeInfo) (lsp.Sink, error) {
		c := c.Apply(info.Settings)
		if err := c.Validate(); err != nil {
			return nil, err
		}
		client, err := aw.NewClient(c.BaseURL(),
			aw.WithTimeout(time.Duration(c.Timeout)),
			aw.WithUserAgent("activitywatch-ls/"+version))
		if err != nil {
			return nil, err
		}
		host, err := os.Hostname()
		if err != nil || host == "" {
			logger.Warn("hostname unavailable", zap.Error(err))
			host = "unknown"
		}
		bucket := aw.Bucket{
			ID:       aw.BucketID(c.Client, host),
			Type:     aw.EditorBucketType,
			Client:   c.Client,
			Hostname: host,
		}

		r := newRecorder(store, c, bucket, info, logger)
		mu.Lock()
		rec = r
		mu.Unlock()

		var sender *heartbeat.Sender
		sender = heartbeat.NewSender(client, bucket,
			heartbeat.WithLogger(logger.Named("sender")),
			heartbeat.WithResultHook(func(res heartbeat.Result) {
				if r != nil {
					r.Observe(res, sender.Stats())
				}
			}))
		g.Go(func() error { return sender.Run(gctx) })

		logger.Info("tracking",
			zap.String("server", c.BaseURL()),
			zap.String("bucket", sender.Bucket().ID))
		return sender, nil
	}

	srv := lsp.NewServer(lsp.Options{
		Name:    "activitywatch-ls",
		Version: version,
		Logger:  logger.Named("lsp"),
		Tracker: tracker,
		Setup:   setup,
		FoldersChanged: func(folders []string) {
			if r := recorder(); r != nil {
				r.SetFolders(folders)
			}
		},
		Git: &project.Git{},
	})

	g.Go(func() error {
		defer cancel()
		return srv.Serve(gctx, rwc)
	})

	err := g.Wait()
	if r := recorder(); r != nil {
		if cerr := r.Close(); cerr != nil && !errors.Is(cerr, session.ErrNoSession) {
			logger.Warn("failed to remove session file", zap.Error(cerr))
		}
	}
	return err
}

func newRecorder(store session.SessionStore, c config.Config, bucket aw.Bucket, info lsp.InitializeInfo, logger *zap.Logger) *session.Recorder {
	if store == nil {
		return nil
	}
	sess := session.New(c.BaseURL(), bucket.ID, time.Now())
	r, err := session.NewRecorder(store, sess, logger.Named("session"))
	if err != nil {
		logger.Warn("session file unavailable", zap.Error(err))
		return nil
	}
	r.SetEditor(info.ClientName, info.ClientVersion)
	return r
}

// stdio joins the process's stdin and stdout into the stream the LSP
// connection reads and writes.
type stdio struct {
	r io.Reader
	w io.Writer
}

func (s stdio) Read(p []byte) (int, error)  { return s.r.Read(p) }
func (s stdio) Write(p []byte) (int, error) { return s.w.Write(p) }

func (s stdio) Close() error {
	var errs []error
	if c, ok := s.r.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if c, ok := s.w.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
