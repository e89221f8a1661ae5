// Package guard leaves the robot stationary when the process is interrupted.
// On SIGINT or SIGTERM it sends one stop through the shared actuator handle,
// releases the display, cancels the run and exits with status 0.
package guard

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"plantbot/logging"
)

// Halter sends the final stop; *motion.Handle in production
type Halter interface {
	Halt() error
}

// Option configures a Guard
type Option func(*Guard)

// WithCloser registers a release step run after the stop, such as releasing
// the diagnostic display. Closers run on the signal goroutine and must be
// safe there.
func WithCloser(fn func()) Option {
	return func(g *Guard) { g.closers = append(g.closers, fn) }
}

// WithExit replaces os.Exit
func WithExit(fn func(code int)) Option {
	return func(g *Guard) { g.exit = fn }
}

// WithNotifier replaces signal.Notify and signal.Stop
func WithNotifier(notify func(chan<- os.Signal, ...os.Signal), stop func(chan<- os.Signal)) Option {
	return func(g *Guard) {
		g.notify = notify
		g.stopNotify = stop
	}
}

// Guard is the process-wide interrupt handler
type Guard struct {
	halter     Halter
	closers    []func()
	exit       func(int)
	notify     func(chan<- os.Signal, ...os.Signal)
	stopNotify func(chan<- os.Signal)

	cancel context.CancelFunc
	sigCh  chan os.Signal
	done   chan struct{}

	once        sync.Once
	stopOnce    sync.Once
	mu          sync.Mutex
	interrupted bool
	log         *logging.Logger
}

// New returns a guard that halts h on interrupt
func New(h Halter, opts ...Option) *Guard {
	g := &Guard{
		halter:     h,
		exit:       os.Exit,
		notify:     signal.Notify,
		stopNotify: signal.Stop,
		sigCh:      make(chan os.Signal, 1),
		done:       make(chan struct{}),
		log:        logging.Named("GUARD"),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Start installs the signal handler and returns a context that is cancelled
// on interrupt. The run loop must use it.
func (g *Guard) Start(ctx context.Context) context.Context {
	runCtx, cancel := context.WithCancel(ctx)
	g.mu.Lock()
	g.cancel = cancel
	g.mu.Unlock()

	g.notify(g.sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-g.sigCh:
			g.Interrupt(sig)
		case <-g.done:
		}
	}()
	return runCtx
}

// Interrupt performs the shutdown once; later calls do nothing
func (g *Guard) Interrupt(sig os.Signal) {
	g.once.Do(func() {
		g.mu.Lock()
		g.interrupted = true
		cancel := g.cancel
		g.mu.Unlock()

		g.log.Warn().Stringer("signal", sig).Msg("interrupt received, stopping robot")
		if err := g.halter.Halt(); err != nil {
			// no retry: the actuator may be the thing that is broken
			g.log.Error().Err(err).Msg("stop command failed")
		}
		for _, c := range g.closers {
			c()
		}
		if cancel != nil {
			cancel()
		}
		g.exit(0)
	})
}

// Interrupted reports whether an interrupt was handled
func (g *Guard) Interrupted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.interrupted
}

// Stop removes the signal handler
func (g *Guard) Stop() {
	g.stopOnce.Do(func() {
		g.stopNotify(g.sigCh)
		close(g.done)
		g.mu.Lock()
		if g.cancel != nil {
			g.cancel()
		}
		g.mu.Unlock()
	})
}
