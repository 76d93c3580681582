// Package lifecycle coordinates startup and shutdown of long-lived subsystems
// such as the database pool, the HTTP server, the embedding queue, and the
// audit event stream.
package lifecycle

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// ReadinessChecker reports whether a subsystem is ready to serve traffic.
type ReadinessChecker interface {
	Ready() bool
}

// Coordinator runs named startup and shutdown hooks. Shutdown hooks should
// block on <-Context().Done() before cleaning up, or on <-Drained() when
// they release something drain hooks still use.
type Coordinator struct {
	ctx        context.Context
	cancel     context.CancelFunc
	startupWg  sync.WaitGroup
	shutdownWg sync.WaitGroup
	drainWg    sync.WaitGroup
	drained    chan struct{}
	drainOnce  sync.Once

	mu      sync.Mutex
	ready   bool
	pending map[string]int
}

// New creates a Coordinator with a cancellable context.
func New() *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		ctx:     ctx,
		cancel:  cancel,
		drained: make(chan struct{}),
		pending: make(map[string]int),
	}
}

// Context returns the coordinator's context, cancelled when Shutdown begins.
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// OnStartup runs fn concurrently; WaitForStartup waits for it.
func (c *Coordinator) OnStartup(name string, fn func()) {
	c.startupWg.Go(fn)
}

// OnShutdown runs fn concurrently; Shutdown waits for it and names it in the
// timeout error while it is still running.
func (c *Coordinator) OnShutdown(name string, fn func()) {
	c.mu.Lock()
	c.pending[name]++
	c.mu.Unlock()

	c.shutdownWg.Go(func() {
		defer c.done(name)
		fn()
	})
}

// OnDrain runs fn once Shutdown begins. Drained is closed after every
// drain hook has returned.
func (c *Coordinator) OnDrain(name string, fn func()) {
	c.drainWg.Add(1)
	c.OnShutdown(name, func() {
		defer c.drainWg.Done()
		<-c.ctx.Done()
		fn()
	})
}

// Drained is closed once Shutdown has begun and every drain hook has returned.
func (c *Coordinator) Drained() <-chan struct{} {
	return c.drained
}

func (c *Coordinator) done(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending[name]--; c.pending[name] <= 0 {
		delete(c.pending, name)
	}
}

// Ready reports whether WaitForStartup has returned.
func (c *Coordinator) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// WaitForStartup blocks until every startup hook has returned, then marks
// the coordinator ready.
func (c *Coordinator) WaitForStartup() {
	c.startupWg.Wait()
	c.mu.Lock()
	c.ready = true
	c.mu.Unlock()
}

// Shutdown cancels the context and waits up to timeout for the shutdown
// hooks. On timeout the error lists the hooks still running.
func (c *Coordinator) Shutdown(timeout time.Duration) error {
	c.mu.Lock()
	c.ready = false
	c.mu.Unlock()
	c.cancel()

	c.drainOnce.Do(func() {
		go func() {
			c.drainWg.Wait()
			close(c.drained)
		}()
	})

	done := make(chan struct{})
	go func() {
		c.shutdownWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("shutdown timeout after %v: waiting on %s", timeout, c.stuck())
	}
}

func (c *Coordinator) stuck() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.pending))
	for name := range c.pending {
		names = append(names, name)
	}
	slices.Sort(names)
	return strings.Join(names, ", ")
}
