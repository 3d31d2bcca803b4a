package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fakeyudi/activitywatch-ls/internal/aw"
)

var (
	// ErrQueueFull is returned by Enqueue when the worker has fallen behind.
	ErrQueueFull = errors.New("heartbeat queue full")

	// ErrClosed is returned by Enqueue once the sender has stopped.
	ErrClosed = errors.New("heartbeat sender closed")
)

// Client is the part of the ActivityWatch API the sender needs.
type Client interface {
	EnsureBucket(ctx context.Context, b aw.Bucket) error
	Heartbeat(ctx context.Context, bucketID string, ev aw.Event, pulsetime time.Duration) error
}

// Result reports the outcome of one heartbeat. Err is nil when it was sent.
type Result struct {
	Heartbeat Heartbeat
	Err       error
}

// Stats are running counters since the sender was created.
type Stats struct {
	Sent    uint64 `json:"sent"`
	Failed  uint64 `json:"failed"`
	Dropped uint64 `json:"dropped"`
}

// Sender ships heartbeats on a single background worker.
//
// Enqueue never blocks. Each heartbeat is sent once; a failure is logged,
// counted and reported through the result hook, then forgotten.
type Sender struct {
	client  Client
	bucket  aw.Bucket
	logger  *zap.Logger
	queue   chan Heartbeat
	limiter *rate.Limiter

	newBackOff   func() backoff.BackOff
	bucketRetry  time.Duration
	drainTimeout time.Duration
	onResult     func(Result)

	bucketReady bool // worker goroutine only

	// closeMu orders Enqueue against drain: nothing is pushed after
	// stopped is set, so drain always sees every accepted heartbeat.
	closeMu sync.RWMutex
	stopped atomic.Bool

	sent    atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

// SenderOption configures a Sender.
type SenderOption func(*Sender)

// WithQueueSize sets the queue capacity. Default 256.
func WithQueueSize(n int) SenderOption {
	return func(s *Sender) {
		if n > 0 {
			s.queue = make(chan Heartbeat, n)
		}
	}
}

// WithRateLimit paces requests to the server. Default 10/s, burst 20.
func WithRateLimit(limit rate.Limit, burst int) SenderOption {
	return func(s *Sender) { s.limiter = rate.NewLimiter(limit, burst) }
}

// WithLogger sets the logger. Default is a no-op logger.
func WithLogger(l *zap.Logger) SenderOption {
	return func(s *Sender) { s.logger = l }
}

// WithResultHook registers fn to be called on the worker after every attempt.
func WithResultHook(fn func(Result)) SenderOption {
	return func(s *Sender) { s.onResult = fn }
}

// WithBucketRetry bounds how long bucket creation is retried per attempt,
// using backoffs from newBackOff.
func WithBucketRetry(maxElapsed time.Duration, newBackOff func() backoff.BackOff) SenderOption {
	return func(s *Sender) {
		s.bucketRetry = maxElapsed
		if newBackOff != nil {
			s.newBackOff = newBackOff
		}
	}
}

// WithDrainTimeout bounds how long queued heartbeats are still sent after
// Run's context is cancelled. Default 2s.
func WithDrainTimeout(d time.Duration) SenderOption {
	return func(s *Sender) { s.drainTimeout = d }
}

// NewSender returns a Sender delivering to bucket through client.
func NewSender(client Client, bucket aw.Bucket, opts ...SenderOption) *Sender {
	s := &Sender{
		client:       client,
		bucket:       bucket,
		logger:       zap.NewNop(),
		queue:        make(chan Heartbeat, 256),
		limiter:      rate.NewLimiter(10, 20),
		newBackOff:   func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		bucketRetry:  30 * time.Second,
		drainTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bucket returns the destination bucket.
func (s *Sender) Bucket() aw.Bucket { return s.bucket }

// Enqueue hands hb to the worker without blocking.
func (s *Sender) Enqueue(hb Heartbeat) error {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.stopped.Load() {
		return ErrClosed
	}
	select {
	case s.queue <- hb:
		return nil
	default:
		s.dropped.Add(1)
		s.logger.Warn("dropping heartbeat", zap.String("file", hb.File), zap.Error(ErrQueueFull))
		return ErrQueueFull
	}
}

// Stats returns a snapshot of the counters.
func (s *Sender) Stats() Stats {
	return Stats{
		Sent:    s.sent.Load(),
		Failed:  s.failed.Load(),
		Dropped: s.dropped.Load(),
	}
}

// Run sends queued heartbeats until ctx is cancelled, then drains what is
// left for at most the drain timeout. It always returns nil.
func (s *Sender) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.drain(ctx, nil)
			return nil
		case hb := <-s.queue:
			if ctx.Err() != nil {
				s.drain(ctx, &hb)
				return nil
			}
			s.send(ctx, hb)
		}
	}
}

// drain stops intake and sends pending (if any) and the rest of the queue
// under a fresh deadline. Whatever misses the deadline is dropped.
func (s *Sender) drain(parent context.Context, pending *Heartbeat) {
	s.closeMu.Lock()
	s.stopped.Store(true)
	s.closeMu.Unlock()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.drainTimeout)
	defer cancel()
	if pending != nil {
		s.send(ctx, *pending)
	}
	for {
		select {
		case hb := <-s.queue:
			if ctx.Err() != nil {
				s.dropped.Add(1)
				continue
			}
			s.send(ctx, hb)
		default:
			return
		}
	}
}

func (s *Sender) send(ctx context.Context, hb Heartbeat) {
	err := s.limiter.Wait(ctx)
	if err == nil {
		err = s.ensureBucket(ctx)
	}
	if err == nil {
		err = s.client.Heartbeat(ctx, s.bucket.ID, hb.Event(), Pulsetime)
	}

	if err != nil {
		s.failed.Add(1)
		s.logger.Warn("heartbeat failed", zap.String("file", hb.File), zap.Error(err))
	} else {
		s.sent.Add(1)
		s.logger.Debug("heartbeat sent",
			zap.String("file", hb.File),
			zap.String("language", hb.Language),
			zap.Bool("write", hb.IsWrite))
	}
	if s.onResult != nil {
		s.onResult(Result{Heartbeat: hb, Err: err})
	}
}

// ensureBucket creates the bucket before the first send, retrying transient
// failures. Client errors (4xx) are not retried.
func (s *Sender) ensureBucket(ctx context.Context) error {
	if s.bucketReady {
		return nil
	}
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := s.client.EnsureBucket(ctx, s.bucket)
		var se *aw.StatusError
		if errors.As(err, &se) && se.Code >= http.StatusBadRequest && se.Code < http.StatusInternalServerError {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(s.newBackOff()),
		backoff.WithMaxElapsedTime(s.bucketRetry),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.Info("bucket not ready, retrying",
				zap.String("bucket", s.bucket.ID),
				zap.Duration("next", next),
				zap.Error(err))
		}),
	)
	if err != nil {
		return fmt.Errorf("ensure bucket %s: %w", s.bucket.ID, err)
	}
	s.bucketReady = true
	s.logger.Info("bucket ready", zap.String("bucket", s.bucket.ID))
	return nil
}
