package singleflight

import "sync"

// Group coalesces concurrent calls that share a key into a single execution.
// A key is forgotten as soon as its call returns, so a later call always
// executes fn again.
type Group[T any] struct {
	mu sync.Mutex
	m  map[string]*call[T]
}

// Result carries the outcome of a coalesced call. Shared reports whether the
// value was handed to more than one caller.
type Result[T any] struct {
	Val    T
	Err    error
	Shared bool
}

type call[T any] struct {
	wg    sync.WaitGroup
	val   T
	err   error
	dups  int
	chans []chan<- Result[T]
}

// New creates a new Group.
func New[T any]() *Group[T] {
	return &Group[T]{
		m: make(map[string]*call[T]),
	}
}

// Do executes fn, making sure only one execution is in flight for key at a
// time. Duplicate callers wait for the original and receive its results.
func (g *Group[T]) Do(key string, fn func() (T, error)) (T, error, bool) {
	g.mu.Lock()
	if c, ok := g.m[key]; ok {
		c.dups++
		g.mu.Unlock()
		c.wg.Wait()
		return c.val, c.err, true
	}

	c := &call[T]{}
	c.wg.Add(1)
	g.m[key] = c
	g.mu.Unlock()

	g.doCall(c, key, fn)
	return c.val, c.err, c.dups > 0
}

// DoChan is like Do but runs fn on its own goroutine and delivers the result
// on the returned channel. The call keeps running if the caller stops
// listening.
func (g *Group[T]) DoChan(key string, fn func() (T, error)) <-chan Result[T] {
	ch := make(chan Result[T], 1)

	g.mu.Lock()
	if c, ok := g.m[key]; ok {
		c.dups++
		c.chans = append(c.chans, ch)
		g.mu.Unlock()
		return ch
	}

	c := &call[T]{chans: []chan<- Result[T]{ch}}
	c.wg.Add(1)
	g.m[key] = c
	g.mu.Unlock()

	go g.doCall(c, key, fn)
	return ch
}

// Forget drops key so the next call executes fn even while an earlier call
// is still in flight.
func (g *Group[T]) Forget(key string) {
	g.mu.Lock()
	delete(g.m, key)
	g.mu.Unlock()
}

func (g *Group[T]) doCall(c *call[T], key string, fn func() (T, error)) {
	defer func() {
		g.mu.Lock()
		if g.m[key] == c {
			delete(g.m, key)
		}
		shared := c.dups > 0
		for _, ch := range c.chans {
			ch <- Result[T]{Val: c.val, Err: c.err, Shared: shared}
		}
		g.mu.Unlock()
		c.wg.Done()
	}()

	c.val, c.err = fn()
}
