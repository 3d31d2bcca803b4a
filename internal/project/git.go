package project

import (
	"errors"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// GitRunner executes a git command and returns its output.
// This abstraction allows mocking in tests.
type GitRunner func(workDir string, args ...string) (string, error)

// defaultGitRunner runs git as a real subprocess.
func defaultGitRunner(workDir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = workDir
	out, err := cmd.Output()
	return string(out), err
}

// Git looks up the current branch of project directories. Results are
// cached for TTL so a burst of edits does not fork git every time.
type Git struct {
	Runner GitRunner // if nil, uses the real git subprocess
	TTL    time.Duration
	Now    func() time.Time

	mu    sync.Mutex
	cache map[string]branchEntry
}

type branchEntry struct {
	branch string
	at     time.Time
}

// Branch returns the checked-out branch of dir. It returns "" without an
// error when dir is not inside a git repository (git exits with 128) or
// when git is not installed.
func (g *Git) Branch(dir string) (string, error) {
	if dir == "" {
		return "", nil
	}
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}

	g.mu.Lock()
	if e, ok := g.cache[dir]; ok && now().Sub(e.at) < g.ttl() {
		g.mu.Unlock()
		return e.branch, nil
	}
	g.mu.Unlock()

	runner := g.Runner
	if runner == nil {
		runner = defaultGitRunner
	}
	out, err := runner(dir, "rev-parse", "--abbrev-ref", "HEAD")
	branch := strings.TrimSpace(out)
	if err != nil {
		if !isExitCode128(err) && !errors.Is(err, exec.ErrNotFound) {
			return "", err
		}
		branch = ""
	}

	g.mu.Lock()
	if g.cache == nil {
		g.cache = make(map[string]branchEntry)
	}
	g.cache[dir] = branchEntry{branch: branch, at: now()}
	g.mu.Unlock()
	return branch, nil
}

func (g *Git) ttl() time.Duration {
	if g.TTL > 0 {
		return g.TTL
	}
	return 30 * time.Second
}

// isExitCode128 reports whether err is an *exec.ExitError with exit code 128.
func isExitCode128(err error) bool {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode() == 128
	}
	return false
}
