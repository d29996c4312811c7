package channel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrExecutorStopped means a reply was dropped because its executor stopped
// before the reply could be posted.
var ErrExecutorStopped = errors.New("channel: executor stopped")

// Executor runs functions on a designated execution context.
type Executor interface {
	// Post schedules fn. It reports false if the executor has stopped and fn
	// will never run.
	Post(fn func()) bool
}

// Loop is a serial executor: posted functions run one at a time, in order, on
// the goroutine that called Run.
type Loop struct {
	tasks     chan func()
	done      chan struct{}
	closeOnce sync.Once
	executing atomic.Bool
}

// NewLoop creates a Loop with room for buffer pending functions.
func NewLoop(buffer int) *Loop {
	if buffer <= 0 {
		buffer = 64
	}
	return &Loop{
		tasks: make(chan func(), buffer),
		done:  make(chan struct{}),
	}
}

// Run executes posted functions until ctx is done or Stop is called.
func (l *Loop) Run(ctx context.Context) {
	defer l.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case fn := <-l.tasks:
			l.executing.Store(true)
			fn()
			l.executing.Store(false)
		}
	}
}

// Post queues fn, blocking while the buffer is full.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Stop ends Run. Functions still queued are discarded.
func (l *Loop) Stop() {
	l.closeOnce.Do(func() { close(l.done) })
}

// Done is closed once the loop has stopped.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Executing reports whether the loop is currently running a posted function.
func (l *Loop) Executing() bool { return l.executing.Load() }

// Pin wraps result so that the first reply is handed to exec and later replies
// are ignored. The reply is dropped if exec has already stopped.
func Pin(exec Executor, result Result) Result {
	return PinOrDrop(exec, result, nil)
}

// PinOrDrop is Pin with a dropped callback, run on the replying goroutine when
// exec refuses the first reply.
func PinOrDrop(exec Executor, result Result, dropped func()) Result {
	var once sync.Once
	return func(reply any) {
		once.Do(func() {
			if !exec.Post(func() { result(reply) }) && dropped != nil {
				dropped()
			}
		})
	}
}
