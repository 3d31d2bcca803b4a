package cmd

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.uber.org/zap/zaptest"

	"github.com/fakeyudi/activitywatch-ls/internal/config"
	"github.com/fakeyudi/activitywatch-ls/internal/session"
)

type awRequest struct {
	path  string
	query url.Values
	body  map[string]any
}

// fakeAW records bucket and heartbeat requests.
type fakeAW struct {
	*httptest.Server
	mu   sync.Mutex
	reqs []awRequest
	beat chan awRequest
}

func newFakeAW(t *testing.T) *fakeAW {
	t.Helper()
	f := &fakeAW{beat: make(chan awRequest, 8)}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		req := awRequest{path: r.URL.Path, query: r.URL.Query()}
		_ = json.Unmarshal(body, &req.body)
		f.mu.Lock()
		f.reqs = append(f.reqs, req)
		f.mu.Unlock()
		if strings.HasSuffix(r.URL.Path, "/heartbeat") {
			f.beat <- req
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("{}"))
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeAW) hostPort(t *testing.T) (string, int) {
	t.Helper()
	u, err := url.Parse(f.URL)
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatal(err)
	}
	return u.Hostname(), port
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServeEndToEnd(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX paths")
	}
	fake := newFakeAW(t)
	host, port := fake.hostPort(t)

	store, err := session.NewSessionStoreAt(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	// The configured port is wrong on purpose: initializationOptions must win.
	c := config.Defaults()
	c.Port = 1

	serverSide, clientSide := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	served := make(chan error, 1)
	go func() { served <- serve(ctx, c, serverSide, store, zaptest.NewLogger(t)) }()

	client := jsonrpc2.NewConn(jsonrpc2.NewStream(clientSide))
	client.Go(ctx, func(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
		return reply(ctx, nil, nil)
	})
	defer client.Close()

	var result protocol.InitializeResult
	_, err = client.Call(ctx, protocol.MethodInitialize, map[string]any{
		"processId":             1,
		"clientInfo":            map[string]any{"name": "Zed", "version": "0.200.0"},
		"rootUri":               "file:///tmp/aw-serve-test",
		"initializationOptions": map[string]any{"host": host, "port": port},
	}, &result)
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if result.ServerInfo == nil || result.ServerInfo.Name != "activitywatch-ls" {
		t.Errorf("server info = %+v", result.ServerInfo)
	}

	sessions, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 || sessions[0].Editor != "Zed" || sessions[0].EditorVersion != "0.200.0" {
		t.Fatalf("sessions after initialize = %+v", sessions)
	}
	if want := "http://" + net.JoinHostPort(host, strconv.Itoa(port)); sessions[0].Server != want {
		t.Errorf("session server = %q, want %q", sessions[0].Server, want)
	}

	if err := client.Notify(ctx, protocol.MethodInitialized, map[string]any{}); err != nil {
		t.Fatal(err)
	}
	if err := client.Notify(ctx, protocol.MethodTextDocumentDidSave, map[string]any{
		"textDocument": map[string]any{"uri": "file:///tmp/aw-serve-test/main.go"},
	}); err != nil {
		t.Fatal(err)
	}

	select {
	case hb := <-fake.beat:
		if got := hb.query.Get("pulsetime"); got != "110" {
			t.Errorf("pulsetime = %q", got)
		}
		data, _ := hb.body["data"].(map[string]any)
		if data["file"] != "/tmp/aw-serve-test/main.go" || data["language"] != "go" || data["editor"] != "Zed" {
			t.Errorf("heartbeat data = %v", data)
		}
		if data["project"] != "/tmp/aw-serve-test" {
			t.Errorf("project = %v", data["project"])
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no heartbeat reached the server")
	}

	fake.mu.Lock()
	first := fake.reqs[0]
	fake.mu.Unlock()
	if !strings.HasPrefix(first.path, "/api/0/buckets/aw-watcher-zed_") || first.body["type"] != "app.editor.activity" {
		t.Errorf("first request should create the bucket: %+v", first)
	}

	waitFor(t, "session counters", func() bool {
		list, _ := store.List()
		return len(list) == 1 && list[0].Sent == 1 && len(list[0].Recent) == 1
	})

	if _, err := client.Call(ctx, protocol.MethodShutdown, nil, nil); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := client.Notify(ctx, protocol.MethodExit, nil); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-served:
		if err != nil {
			t.Errorf("serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after exit")
	}

	sessions, err = store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 0 {
		t.Errorf("session file should be removed on exit, found %d", len(sessions))
	}
}

func TestServeRejectsInvalidSettings(t *testing.T) {
	store, err := session.NewSessionStoreAt(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	serverSide, clientSide := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	served := make(chan error, 1)
	go func() { served <- serve(ctx, config.Defaults(), serverSide, store, zaptest.NewLogger(t)) }()

	client := jsonrpc2.NewConn(jsonrpc2.NewStream(clientSide))
	client.Go(ctx, func(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
		return reply(ctx, nil, nil)
	})
	defer client.Close()

	_, err = client.Call(ctx, protocol.MethodInitialize, map[string]any{
		"initializationOptions": map[string]any{"port": 0},
	}, nil)
	if err == nil {
		t.Fatal("port 0 should fail initialize")
	}

	sessions, _ := store.List()
	if len(sessions) != 0 {
		t.Errorf("no session should be recorded, found %d", len(sessions))
	}

	cancel()
	select {
	case <-served:
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop on cancel")
	}
}
