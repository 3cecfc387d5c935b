package cli

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// Interrupt is a context cancelled by the first SIGINT or SIGTERM. A second
// signal while commands are still shutting down is handed to the force func.
type Interrupt struct {
	context.Context

	cancel   context.CancelFunc
	force    func(os.Signal)
	signals  chan os.Signal
	stopped  chan struct{}
	stopOnce sync.Once

	mu  sync.Mutex
	sig os.Signal
}

// NotifyInterrupt starts listening for termination signals. force may be nil,
// in which case repeated signals are ignored.
func NotifyInterrupt(parent context.Context, force func(os.Signal)) *Interrupt {
	i := newInterrupt(parent, force)
	signal.Notify(i.signals, os.Interrupt, syscall.SIGTERM)
	go i.loop()
	return i
}

func newInterrupt(parent context.Context, force func(os.Signal)) *Interrupt {
	ctx, cancel := context.WithCancel(parent)
	return &Interrupt{
		Context: ctx,
		cancel:  cancel,
		force:   force,
		signals: make(chan os.Signal, 2),
		stopped: make(chan struct{}),
	}
}

func (i *Interrupt) loop() {
	defer signal.Stop(i.signals)

	select {
	case sig := <-i.signals:
		i.mu.Lock()
		i.sig = sig
		i.mu.Unlock()
		i.cancel()
	case <-i.Done():
	case <-i.stopped:
		return
	}

	for {
		select {
		case sig := <-i.signals:
			if i.force != nil {
				i.force(sig)
			}
		case <-i.stopped:
			return
		}
	}
}

// Signal returns the signal that cancelled the context, or nil.
func (i *Interrupt) Signal() os.Signal {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.sig
}

// Stop cancels the context and stops listening. Safe to call more than once.
func (i *Interrupt) Stop() {
	i.stopOnce.Do(func() {
		i.cancel()
		close(i.stopped)
	})
}

// ExitCode follows the shell convention of 128 plus the signal number.
func ExitCode(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return 128 + int(s)
	}
	return 1
}
