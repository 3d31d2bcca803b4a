package heartbeat

import (
	"testing"
	"time"

	"pgregory.net/rapid"
)

// fakeClock is a manually advanced clock.
type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTracker(opts ...TrackerOption) (*Tracker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	return NewTracker("zed", append([]TrackerOption{WithClock(clock.Now)}, opts...)...), clock
}

func TestTrackerFirstActivityEmits(t *testing.T) {
	tr, clock := newTestTracker()
	hb, ok := tr.Observe(Activity{File: "/p/main.go", Project: "/p", Language: "go"})
	if !ok {
		t.Fatal("first activity should emit")
	}
	if !hb.Timestamp.Equal(clock.Now()) {
		t.Errorf("Timestamp = %v, want %v", hb.Timestamp, clock.Now())
	}
	if hb.Editor != "zed" || hb.Project != "/p" || hb.Language != "go" {
		t.Errorf("unexpected heartbeat %+v", hb)
	}
}

func TestTrackerEmissionRule(t *testing.T) {
	tests := []struct {
		name    string
		advance time.Duration
		next    Activity
		want    bool
	}{
		{"same file within interval", 30 * time.Second, Activity{File: "/a"}, false},
		{"same file just under interval", Interval - time.Nanosecond, Activity{File: "/a"}, false},
		{"same file at interval", Interval, Activity{File: "/a"}, true},
		{"same file after interval", 3 * time.Minute, Activity{File: "/a"}, true},
		{"other file within interval", time.Second, Activity{File: "/b"}, true},
		{"save within interval", time.Second, Activity{File: "/a", IsWrite: true}, true},
		{"save of other file", 0, Activity{File: "/b", IsWrite: true}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tr, clock := newTestTracker()
			if _, ok := tr.Observe(Activity{File: "/a"}); !ok {
				t.Fatal("first activity should emit")
			}
			clock.Advance(tc.advance)
			if _, got := tr.Observe(tc.next); got != tc.want {
				t.Errorf("Observe(%+v) emitted = %v, want %v", tc.next, got, tc.want)
			}
		})
	}
}

func TestTrackerSkipDoesNotMoveReference(t *testing.T) {
	tr, clock := newTestTracker()
	tr.Observe(Activity{File: "/a"})
	start := clock.Now()

	// Continuous typing every 30s must still emit once Interval has passed
	// since the last emitted heartbeat.
	for i := 0; i < 3; i++ {
		clock.Advance(30 * time.Second)
		if _, ok := tr.Observe(Activity{File: "/a"}); ok {
			t.Fatalf("tick %d: unexpected heartbeat", i)
		}
	}
	clock.Advance(30 * time.Second)
	hb, ok := tr.Observe(Activity{File: "/a"})
	if !ok {
		t.Fatal("expected heartbeat after a full interval of typing")
	}
	if got := hb.Timestamp.Sub(start); got != Interval {
		t.Errorf("heartbeat after %s, want %s", got, Interval)
	}
}

func TestTrackerRollback(t *testing.T) {
	tr, clock := newTestTracker()
	first, _ := tr.Observe(Activity{File: "/a"})
	clock.Advance(10 * time.Second)
	hb, ok := tr.Observe(Activity{File: "/b"})
	if !ok {
		t.Fatal("other file should emit")
	}

	tr.Rollback(hb)
	if f, ts := tr.Last(); f != "/a" || !ts.Equal(first.Timestamp) {
		t.Errorf("Last() = %q %v after rollback, want /a %v", f, ts, first.Timestamp)
	}
	clock.Advance(10 * time.Second)
	if _, ok := tr.Observe(Activity{File: "/b"}); !ok {
		t.Error("rolled back file should emit again")
	}

	// A heartbeat that is no longer the reference leaves it alone.
	f, ts := tr.Last()
	tr.Rollback(first)
	if f2, ts2 := tr.Last(); f2 != f || !ts2.Equal(ts) {
		t.Errorf("stale rollback moved reference to %q %v", f2, ts2)
	}
}

func TestTrackerIgnorePatterns(t *testing.T) {
	tr, _ := newTestTracker(WithIgnorePatterns([]string{"*.lock", "/tmp/*"}))
	for _, f := range []string{"/p/Cargo.lock", "/tmp/scratch"} {
		if _, ok := tr.Observe(Activity{File: f, IsWrite: true}); ok {
			t.Errorf("%s should be ignored", f)
		}
	}
	if _, ok := tr.Observe(Activity{File: "/p/main.rs"}); !ok {
		t.Error("/p/main.rs should emit")
	}
}

func TestTrackerEmptyFileNeverEmits(t *testing.T) {
	tr, _ := newTestTracker()
	if _, ok := tr.Observe(Activity{IsWrite: true}); ok {
		t.Error("activity without a file should not emit")
	}
}

func TestHeartbeatDataOmitsEmpty(t *testing.T) {
	hb := Heartbeat{File: "/a.go", Language: "go", Editor: "zed"}
	data := hb.Data()
	if len(data) != 3 {
		t.Fatalf("Data() = %v, want 3 keys", data)
	}
	if _, ok := data["project"]; ok {
		t.Error("empty project should be omitted")
	}
	if data["file"] != "/a.go" || data["language"] != "go" || data["editor"] != "zed" {
		t.Errorf("Data() = %v", data)
	}
}

// Property: the tracker agrees with a direct model of the emission rule, and
// consecutive emitted heartbeats for the same file without a save are at
// least Interval apart.
func TestTrackerMatchesModel(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tr, clock := newTestTracker()

		var (
			haveLast bool
			lastFile string
			lastTime time.Time
		)
		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			clock.Advance(time.Duration(rapid.IntRange(0, 180).Draw(t, "gapSeconds")) * time.Second)
			a := Activity{
				File:    rapid.SampledFrom([]string{"/a", "/b", "/c"}).Draw(t, "file"),
				IsWrite: rapid.Bool().Draw(t, "write"),
			}

			want := !haveLast || a.IsWrite || a.File != lastFile || clock.Now().Sub(lastTime) >= Interval
			hb, got := tr.Observe(a)
			if got != want {
				t.Fatalf("step %d: Observe(%+v) = %v, model says %v", i, a, got, want)
			}
			if got {
				if haveLast && !a.IsWrite && a.File == lastFile && hb.Timestamp.Sub(lastTime) < Interval {
					t.Fatalf("step %d: heartbeats for %s only %s apart", i, a.File, hb.Timestamp.Sub(lastTime))
				}
				haveLast, lastFile, lastTime = true, a.File, clock.Now()
			}
		}

		f, ts := tr.Last()
		if f != lastFile || !ts.Equal(lastTime) {
			t.Fatalf("Last() = %s@%v, model %s@%v", f, ts, lastFile, lastTime)
		}
	})
}
