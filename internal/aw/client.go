// Package aw is a small client for the ActivityWatch REST API (v0).
//
// It only covers what an editor watcher needs: server info, bucket
// creation and lookup, and heartbeats.
package aw

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// EditorBucketType is the bucket type ActivityWatch uses for editor watchers.
const EditorBucketType = "app.editor.activity"

var (
	// ErrBucketExists is returned by CreateBucket when the server already has the bucket.
	ErrBucketExists = errors.New("bucket already exists")

	// ErrBucketNotFound is returned by GetBucket for an unknown bucket ID.
	ErrBucketNotFound = errors.New("bucket not found")
)

// StatusError is returned for any unexpected HTTP status.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.Code)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Info is the payload of GET /api/0/info.
type Info struct {
	Hostname string `json:"hostname"`
	Version  string `json:"version"`
	Testing  bool   `json:"testing"`
	DeviceID string `json:"device_id,omitempty"`
}

// Bucket describes an event stream on the server.
type Bucket struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Client      string     `json:"client"`
	Hostname    string     `json:"hostname"`
	Created     *time.Time `json:"created,omitempty"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
}

// Event is a single ActivityWatch event. Duration is in seconds on the wire.
type Event struct {
	Timestamp time.Time
	Duration  time.Duration
	Data      map[string]string
}

type wireEvent struct {
	Timestamp string            `json:"timestamp"`
	Duration  float64           `json:"duration"`
	Data      map[string]string `json:"data"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	data := e.Data
	if data == nil {
		data = map[string]string{}
	}
	return json.Marshal(wireEvent{
		Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
		Duration:  e.Duration.Seconds(),
		Data:      data,
	})
}

func (e *Event) UnmarshalJSON(b []byte) error {
	var w wireEvent
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	ts, err := time.Parse(time.RFC3339Nano, w.Timestamp)
	if err != nil {
		return fmt.Errorf("parse event timestamp: %w", err)
	}
	e.Timestamp = ts
	e.Duration = time.Duration(w.Duration * float64(time.Second))
	e.Data = w.Data
	return nil
}

// BucketID returns the conventional bucket name for a watcher on a host.
func BucketID(client, hostname string) string {
	return client + "_" + hostname
}

// Client talks to one ActivityWatch server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithUserAgent sets the User-Agent header sent on every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// NewClient returns a client for the server at baseURL (e.g. http://127.0.0.1:5600).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("server url %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("server url %q: missing host", baseURL)
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		userAgent:  "activitywatch-ls",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the server root this client targets.
func (c *Client) BaseURL() string { return c.baseURL }

// Info fetches server metadata. It doubles as a reachability probe.
func (c *Client) Info(ctx context.Context) (*Info, error) {
	var info Info
	if _, err := c.do(ctx, http.MethodGet, "/api/0/info", nil, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetBucket fetches bucket metadata. Returns ErrBucketNotFound for 404.
func (c *Client) GetBucket(ctx context.Context, id string) (*Bucket, error) {
	var b Bucket
	code, err := c.do(ctx, http.MethodGet, bucketPath(id), nil, nil, &b)
	if code == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", id, ErrBucketNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateBucket creates a bucket. Returns ErrBucketExists when the server
// answers 304 Not Modified.
func (c *Client) CreateBucket(ctx context.Context, b Bucket) error {
	body := struct {
		Client   string `json:"client"`
		Type     string `json:"type"`
		Hostname string `json:"hostname"`
	}{b.Client, b.Type, b.Hostname}

	code, err := c.do(ctx, http.MethodPost, bucketPath(b.ID), nil, body, nil)
	if code == http.StatusNotModified {
		return fmt.Errorf("%s: %w", b.ID, ErrBucketExists)
	}
	return err
}

// EnsureBucket creates the bucket if it does not exist yet.
func (c *Client) EnsureBucket(ctx context.Context, b Bucket) error {
	err := c.CreateBucket(ctx, b)
	if errors.Is(err, ErrBucketExists) {
		return nil
	}
	return err
}

// Heartbeat sends ev to the bucket. The server merges it with the previous
// event when their data match and they are less than pulsetime apart.
func (c *Client) Heartbeat(ctx context.Context, bucketID string, ev Event, pulsetime time.Duration) error {
	q := url.Values{}
	q.Set("pulsetime", strconv.FormatFloat(pulsetime.Seconds(), 'f', -1, 64))
	_, err := c.do(ctx, http.MethodPost, bucketPath(bucketID)+"/heartbeat", q, ev, nil)
	return err
}

func bucketPath(id string) string {
	return "/api/0/buckets/" + url.PathEscape(id)
}

// do performs one request. It returns the HTTP status code (0 if the request
// never completed) alongside any error.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) (int, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, &StatusError{
			Method: method,
			URL:    target,
			Code:   resp.StatusCode,
			Body:   strings.TrimSpace(string(snippet)),
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, target, err)
		}
	}
	return resp.StatusCode, nil
}
