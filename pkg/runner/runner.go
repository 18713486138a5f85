package runner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dimiro1/banner"
)

type State int

const (
	StateNew State = iota
	StateStarting
	StateRunning
	StateDraining
	StateStopped
)

// Drainer is implemented by components that need to flush in-flight work
// before the process exits.
type Drainer interface {
	Drain() error
}

type Hooks struct {
	OnStart func()
	OnStop  func()
}

const Version = "dev"

func PrintBanner() {
	tpl := "{{ .Title \"FRONTDESK\" \"\" 0 }}\nVersion: " + Version + "\n"
	banner.Init(os.Stdout, true, true, bytes.NewBufferString(tpl))
}

// Lifecycle runs the process until its context is cancelled, then drains
// registered components with a bounded timeout. Stop is safe to call more
// than once.
type Lifecycle struct {
	state    int32
	ctx      context.Context
	cancel   context.CancelFunc
	onceStop sync.Once
	hooks    Hooks
	drainers []Drainer
	stopErr  error
	timeout  time.Duration
}

func NewLifecycle(hooks Hooks, timeout time.Duration, drainers ...Drainer) *Lifecycle {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Lifecycle{
		state:    int32(StateNew),
		ctx:      ctx,
		cancel:   cancel,
		hooks:    hooks,
		drainers: drainers,
		timeout:  timeout,
	}
}

func (r *Lifecycle) Run(ctx context.Context) error {
	if !r.casState(StateNew, StateStarting) {
		return errors.New("invalid state transition")
	}
	PrintBanner()
	if ctx != nil {
		r.ctx, r.cancel = context.WithCancel(ctx)
	}
	if r.hooks.OnStart != nil {
		r.hooks.OnStart()
	}
	r.setState(StateRunning)
	<-r.ctx.Done()
	return r.stop()
}

func (r *Lifecycle) Stop() error {
	r.cancel()
	return r.stop()
}

func (r *Lifecycle) State() State {
	return State(atomic.LoadInt32(&r.state))
}

func (r *Lifecycle) stop() error {
	r.onceStop.Do(func() {
		r.setState(StateDraining)
		done := make(chan struct{})
		go func() {
			for _, d := range r.drainers {
				_ = d.Drain()
			}
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(r.timeout):
			r.stopErr = errors.New("drain timeout")
		}
		if r.hooks.OnStop != nil {
			r.hooks.OnStop()
		}
		r.setState(StateStopped)
	})
	return r.stopErr
}

func (r *Lifecycle) casState(from, to State) bool {
	return atomic.CompareAndSwapInt32(&r.state, int32(from), int32(to))
}

func (r *Lifecycle) setState(s State) {
	atomic.StoreInt32(&r.state, int32(s))
}
