package session

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fakeyudi/activitywatch-ls/internal/heartbeat"
)

// Recorder keeps the session file of the running server up to date.
// Persist failures are logged and never reach the caller.
type Recorder struct {
	mu     sync.Mutex
	store  SessionStore
	sess   *Session
	logger *zap.Logger
	now    func() time.Time
}

// NewRecorder saves sess immediately and returns a recorder for it.
func NewRecorder(store SessionStore, sess *Session, logger *zap.Logger) (*Recorder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{store: store, sess: sess, logger: logger, now: time.Now}
	if err := store.Save(sess); err != nil {
		return nil, err
	}
	return r, nil
}

// ID returns the session ID.
func (r *Recorder) ID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sess.ID
}

// SetEditor records the client name and version reported on initialize.
func (r *Recorder) SetEditor(name, version string) {
	r.update(func(s *Session) {
		s.Editor = name
		s.EditorVersion = version
	})
}

// SetFolders records the current workspace folders.
func (r *Recorder) SetFolders(folders []string) {
	r.update(func(s *Session) {
		s.WorkspaceFolders = append([]string{}, folders...)
	})
}

// Observe records a send result together with the sender's counters.
func (r *Recorder) Observe(res heartbeat.Result, stats heartbeat.Stats) {
	r.update(func(s *Session) {
		s.Sent, s.Failed, s.Dropped = stats.Sent, stats.Failed, stats.Dropped
		if res.Err != nil {
			s.LastError = res.Err.Error()
			return
		}
		s.LastError = ""
		s.Record(res.Heartbeat)
	})
}

// Close removes the session file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Delete(r.sess.ID)
}

func (r *Recorder) update(fn func(*Session)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.sess)
	r.sess.UpdatedAt = r.now()
	if err := r.store.Save(r.sess); err != nil {
		r.logger.Warn("failed to persist session", zap.String("session", r.sess.ID), zap.Error(err))
	}
}
