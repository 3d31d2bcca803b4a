// Package lsp is the language server half of activitywatch-ls. It listens
// to document notifications and turns them into heartbeats; it offers no
// language features.
package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
	"go.uber.org/zap"

	"github.com/fakeyudi/activitywatch-ls/internal/config"
	"github.com/fakeyudi/activitywatch-ls/internal/heartbeat"
	"github.com/fakeyudi/activitywatch-ls/internal/language"
	"github.com/fakeyudi/activitywatch-ls/internal/project"
)

// InitializedMessage is sent to the client as window/logMessage once the
// handshake completes.
const InitializedMessage = "ActivityWatch language server initialized"

// ErrNotInitialized is the reply to requests received before initialize.
var ErrNotInitialized = jsonrpc2.NewError(jsonrpc2.ServerNotInitialized, "server not initialized")

// Sink receives heartbeats that passed the emission rule.
type Sink interface {
	Enqueue(hb heartbeat.Heartbeat) error
}

// BranchLooker finds the VCS branch of a project directory.
type BranchLooker interface {
	Branch(dir string) (string, error)
}

// InitializeInfo is what the client told us in the initialize request.
type InitializeInfo struct {
	ClientName    string
	ClientVersion string
	RootPath      string
	Folders       []string
	Settings      *config.Settings // from initializationOptions; never nil
}

// Options configures a Server.
type Options struct {
	Name    string
	Version string
	Logger  *zap.Logger

	// Tracker applies the emission rule. Required.
	Tracker *heartbeat.Tracker

	// Setup runs during initialize, before any heartbeat can be produced,
	// and returns where heartbeats go. An error fails the initialize request.
	Setup func(ctx context.Context, info InitializeInfo) (Sink, error)

	// FoldersChanged, if set, observes the workspace folder set.
	FoldersChanged func(folders []string)

	Languages *language.Registry // nil means the default registry
	Git       BranchLooker       // nil disables branch lookup
	Markers   []string           // project root markers; nil means project.DefaultMarkers
}

type state int

const (
	stateNew state = iota
	stateInitialized
	stateShutdown
)

// Server handles one LSP connection.
type Server struct {
	opts   Options
	logger *zap.Logger

	folders  *project.Folders
	resolver *project.Resolver

	mu        sync.Mutex
	state     state
	sink      Sink
	client    protocol.Client
	conn      jsonrpc2.Conn
	docLang   map[uri.URI]string
	askedDirs bool
}

// NewServer returns a Server. It does not start serving.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Tracker == nil {
		opts.Tracker = heartbeat.NewTracker("")
	}
	folders := project.NewFolders()
	return &Server{
		opts:     opts,
		logger:   opts.Logger,
		folders:  folders,
		resolver: &project.Resolver{Folders: folders, Markers: opts.Markers},
		docLang:  make(map[uri.URI]string),
	}
}

// Serve runs the protocol over rwc until the client sends exit, the stream
// ends, or ctx is cancelled.
func (s *Server) Serve(ctx context.Context, rwc io.ReadWriteCloser) error {
	conn := jsonrpc2.NewConn(jsonrpc2.NewStream(rwc))
	client := protocol.ClientDispatcher(conn, s.logger.Named("client"))

	s.mu.Lock()
	s.conn = conn
	s.client = client
	s.mu.Unlock()

	ctx = protocol.WithLogger(ctx, s.logger)
	conn.Go(ctx, protocol.Handlers(s.Handler()))

	select {
	case <-ctx.Done():
		_ = conn.Close()
		<-conn.Done()
		return nil
	case <-conn.Done():
	}

	err := conn.Err()
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || s.exited() {
		return nil
	}
	return fmt.Errorf("lsp connection: %w", err)
}

// Folders returns the current workspace folders.
func (s *Server) Folders() []string { return s.folders.List() }

// Handler returns the raw jsonrpc2 handler. Wrap it with protocol.Handlers
// before attaching it to a connection: every request is replied exactly once.
func (s *Server) Handler() jsonrpc2.Handler {
	return s.handle
}

func (s *Server) handle(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	switch req.Method() {
	case protocol.MethodInitialize:
		return s.initialize(ctx, reply, req)
	case protocol.MethodExit:
		return s.exit(ctx, reply)
	}

	s.mu.Lock()
	st := s.state
	s.mu.Unlock()

	_, isCall := req.(*jsonrpc2.Call)
	if st == stateNew {
		if isCall {
			return reply(ctx, nil, ErrNotInitialized)
		}
		return reply(ctx, nil, nil)
	}

	switch req.Method() {
	case protocol.MethodInitialized:
		return s.initialized(ctx, reply)
	case protocol.MethodShutdown:
		s.mu.Lock()
		s.state = stateShutdown
		s.mu.Unlock()
		s.logger.Info("shutdown requested")
		return reply(ctx, nil, nil)
	case protocol.MethodTextDocumentDidOpen:
		var p protocol.DidOpenTextDocumentParams
		if err := decode(req, &p); err != nil {
			return s.badParams(ctx, reply, req, err)
		}
		lang := string(p.TextDocument.LanguageID)
		s.mu.Lock()
		s.docLang[p.TextDocument.URI] = lang
		s.mu.Unlock()
		s.observe(p.TextDocument.URI, lang, false)
		return reply(ctx, nil, nil)
	case protocol.MethodTextDocumentDidChange:
		var p protocol.DidChangeTextDocumentParams
		if err := decode(req, &p); err != nil {
			return s.badParams(ctx, reply, req, err)
		}
		s.observe(p.TextDocument.URI, s.languageOf(p.TextDocument.URI), false)
		return reply(ctx, nil, nil)
	case protocol.MethodTextDocumentDidSave:
		var p protocol.DidSaveTextDocumentParams
		if err := decode(req, &p); err != nil {
			return s.badParams(ctx, reply, req, err)
		}
		s.observe(p.TextDocument.URI, s.languageOf(p.TextDocument.URI), true)
		return reply(ctx, nil, nil)
	case protocol.MethodTextDocumentDidClose:
		var p protocol.DidCloseTextDocumentParams
		if err := decode(req, &p); err != nil {
			return s.badParams(ctx, reply, req, err)
		}
		s.mu.Lock()
		delete(s.docLang, p.TextDocument.URI)
		s.mu.Unlock()
		return reply(ctx, nil, nil)
	case protocol.MethodWorkspaceDidChangeWorkspaceFolders:
		var p protocol.DidChangeWorkspaceFoldersParams
		if err := decode(req, &p); err != nil {
			return s.badParams(ctx, reply, req, err)
		}
		s.folders.Update(folderPaths(p.Event.Added), folderPaths(p.Event.Removed))
		s.foldersChanged()
		return reply(ctx, nil, nil)
	case protocol.MethodWorkspaceDidChangeConfiguration:
		s.logger.Info("configuration change ignored; restart the language server to apply it")
		return reply(ctx, nil, nil)
	}

	if isCall {
		return jsonrpc2.MethodNotFoundHandler(ctx, reply, req)
	}
	// Unknown notifications ($/setTrace, textDocument/willSave, ...) are dropped.
	return reply(ctx, nil, nil)
}

// initializeParams is the subset of InitializeParams we read. Client
// capabilities are skipped on purpose: they are large and editors extend them.
type initializeParams struct {
	ProcessID             int32                      `json:"processId"`
	ClientInfo            *protocol.ClientInfo       `json:"clientInfo,omitempty"`
	RootPath              string                     `json:"rootPath,omitempty"`
	RootURI               protocol.DocumentURI       `json:"rootUri,omitempty"`
	InitializationOptions json.RawMessage            `json:"initializationOptions,omitempty"`
	WorkspaceFolders      []protocol.WorkspaceFolder `json:"workspaceFolders,omitempty"`
}

func (s *Server) initialize(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	s.mu.Lock()
	st := s.state
	s.mu.Unlock()
	if st != stateNew {
		return reply(ctx, nil, jsonrpc2.NewError(jsonrpc2.InvalidRequest, "initialize called twice"))
	}

	var p initializeParams
	if err := decode(req, &p); err != nil {
		return s.badParams(ctx, reply, req, err)
	}

	settings, err := config.ParseSettings(p.InitializationOptions)
	if err != nil {
		// Malformed options fall back to defaults, as bad launch arguments do.
		s.logger.Warn("ignoring initializationOptions", zap.Error(err))
		settings = &config.Settings{}
	}
	if !settings.Empty() {
		s.logger.Debug("editor settings", zap.Strings("args", settings.Args()))
	}

	info := InitializeInfo{Settings: settings}
	if p.ClientInfo != nil {
		info.ClientName = p.ClientInfo.Name
		info.ClientVersion = p.ClientInfo.Version
	}
	info.Folders = folderPaths(p.WorkspaceFolders)
	switch {
	case p.RootURI != "":
		info.RootPath = Path(p.RootURI)
	case p.RootPath != "":
		info.RootPath = p.RootPath
	}
	if len(info.Folders) == 0 && info.RootPath != "" {
		info.Folders = []string{info.RootPath}
	}

	var sink Sink
	if s.opts.Setup != nil {
		if sink, err = s.opts.Setup(ctx, info); err != nil {
			s.logger.Error("initialize failed", zap.Error(err))
			return reply(ctx, nil, jsonrpc2.NewError(jsonrpc2.InternalError, err.Error()))
		}
	}

	s.folders.Update(info.Folders, nil)
	s.opts.Tracker.SetEditor(editorName(info.ClientName))

	s.mu.Lock()
	s.sink = sink
	s.state = stateInitialized
	s.mu.Unlock()

	s.logger.Info("initialized",
		zap.String("client", info.ClientName),
		zap.String("client_version", info.ClientVersion),
		zap.Int32("client_pid", p.ProcessID),
		zap.Strings("folders", info.Folders))
	s.foldersChanged()

	return reply(ctx, &protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: &protocol.TextDocumentSyncOptions{
				OpenClose: true,
				Change:    protocol.TextDocumentSyncKindIncremental,
				Save:      &protocol.SaveOptions{IncludeText: false},
			},
			Workspace: &protocol.ServerCapabilitiesWorkspace{
				WorkspaceFolders: &protocol.ServerCapabilitiesWorkspaceFolders{
					Supported:           true,
					ChangeNotifications: true,
				},
			},
		},
		ServerInfo: &protocol.ServerInfo{
			Name:    s.opts.Name,
			Version: s.opts.Version,
		},
	}, nil)
}

func (s *Server) initialized(ctx context.Context, reply jsonrpc2.Replier) error {
	s.mu.Lock()
	client := s.client
	ask := s.folders.Len() == 0 && !s.askedDirs && client != nil
	if ask {
		s.askedDirs = true
	}
	s.mu.Unlock()

	if client != nil {
		if err := client.LogMessage(ctx, &protocol.LogMessageParams{
			Type:    protocol.MessageTypeInfo,
			Message: InitializedMessage,
		}); err != nil {
			s.logger.Warn("logMessage failed", zap.Error(err))
		}
	}
	err := reply(ctx, nil, nil)

	// The connection processes one message at a time, so the folder request
	// must not wait inside a handler for its own response.
	if ask {
		go s.requestFolders(context.WithoutCancel(ctx), client)
	}
	return err
}

func (s *Server) requestFolders(ctx context.Context, client protocol.Client) {
	folders, err := client.WorkspaceFolders(ctx)
	if err != nil {
		s.logger.Debug("workspace/workspaceFolders unavailable", zap.Error(err))
		return
	}
	if paths := folderPaths(folders); len(paths) > 0 {
		s.folders.Update(paths, nil)
		s.foldersChanged()
	}
}

func (s *Server) exit(ctx context.Context, reply jsonrpc2.Replier) error {
	s.mu.Lock()
	conn := s.conn
	clean := s.state == stateShutdown
	s.state = stateShutdown
	s.mu.Unlock()

	if !clean {
		s.logger.Warn("exit without shutdown")
	}
	err := reply(ctx, nil, nil)
	if conn != nil {
		_ = conn.Close()
	}
	return err
}

func (s *Server) exited() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateShutdown
}

// observe builds an activity for the document and hands any resulting
// heartbeat to the sink. It never blocks on the network.
func (s *Server) observe(u uri.URI, hint string, isWrite bool) {
	s.mu.Lock()
	sink := s.sink
	active := s.state == stateInitialized
	s.mu.Unlock()
	if !active {
		return
	}

	path := Path(u)
	a := heartbeat.Activity{
		File:     path,
		Project:  s.resolver.Project(path),
		Language: s.languages().Detect(path, hint),
		IsWrite:  isWrite,
	}
	if s.opts.Git != nil && a.Project != "" {
		if branch, err := s.opts.Git.Branch(a.Project); err != nil {
			s.logger.Debug("branch lookup failed", zap.String("project", a.Project), zap.Error(err))
		} else {
			a.Branch = branch
		}
	}

	hb, ok := s.opts.Tracker.Observe(a)
	if !ok {
		return
	}
	if sink == nil {
		return
	}
	if err := sink.Enqueue(hb); err != nil {
		s.opts.Tracker.Rollback(hb)
		s.logger.Warn("heartbeat not queued", zap.String("file", hb.File), zap.Error(err))
	}
}

func (s *Server) languageOf(u uri.URI) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docLang[u]
}

func (s *Server) languages() *language.Registry {
	if s.opts.Languages != nil {
		return s.opts.Languages
	}
	return defaultLanguages
}

var defaultLanguages = language.NewRegistry()

func (s *Server) foldersChanged() {
	if s.opts.FoldersChanged != nil {
		s.opts.FoldersChanged(s.folders.List())
	}
}

func (s *Server) badParams(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request, err error) error {
	s.logger.Warn("invalid params", zap.String("method", req.Method()), zap.Error(err))
	return reply(ctx, nil, fmt.Errorf("%s: %w", err, jsonrpc2.ErrInvalidParams))
}

func decode(req jsonrpc2.Request, v any) error {
	raw := req.Params()
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func folderPaths(folders []protocol.WorkspaceFolder) []string {
	out := make([]string, 0, len(folders))
	for _, f := range folders {
		if p := Path(uri.URI(f.URI)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func editorName(client string) string {
	if client == "" {
		return "zed"
	}
	return client
}
