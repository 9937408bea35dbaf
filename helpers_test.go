package flags

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// stubFetcher returns scripted responses and counts calls.
type stubFetcher struct {
	mu    sync.Mutex
	calls int32
	fn    func(ctx context.Context) (*Snapshot, error)
}

func (f *stubFetcher) FetchAll(ctx context.Context) (*Snapshot, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	fn := f.fn
	f.mu.Unlock()
	return fn(ctx)
}

func (f *stubFetcher) set(fn func(ctx context.Context) (*Snapshot, error)) {
	f.mu.Lock()
	f.fn = fn
	f.mu.Unlock()
}

func (f *stubFetcher) Calls() int {
	return int(atomic.LoadInt32(&f.calls))
}

func (f *stubFetcher) succeed(flags ...Flag) {
	f.set(func(context.Context) (*Snapshot, error) {
		return &Snapshot{Flags: flags}, nil
	})
}

func (f *stubFetcher) fail(err error) {
	f.set(func(context.Context) (*Snapshot, error) {
		return nil, err
	})
}

func newStubFetcher() *stubFetcher {
	f := &stubFetcher{}
	f.fail(newFlagError(ErrorTypeRemoteUnavailable, "connection refused", nil))
	return f
}

func on(name string) Flag {
	return Flag{Name: name, State: FlagState{Enabled: true}}
}

func off(name string) Flag {
	return Flag{Name: name, State: FlagState{Enabled: false}}
}
