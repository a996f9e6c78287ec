// Package countdown implements the cancellable countdown described in
// spec §4.7: at most one active countdown per room, woken by either its own
// expiry or one of two independent cancellation signals (stop, which
// suppresses the completion callback, and skip, which does not).
package countdown

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hexwave/roomplay/internal/types"
)

// ReacquireFunc re-obtains the owning room's exclusive lock for the
// countdown's background task. It is supplied by Room, which already knows
// its own room-id and EntityStore usage pattern.
type ReacquireFunc func(ctx context.Context) (release func(), err error)

type instance struct {
	id        uuid.UUID
	kind      types.CountdownKind
	duration  time.Duration
	startedAt time.Time
	stopCh    chan struct{}
	skipCh    chan struct{}
	doneCh    chan struct{}
	stopOnce  sync.Once
	skipOnce  sync.Once
}

// Snapshot is the externally visible, point-in-time view of an active
// countdown, returned by Engine.Snapshot.
type Snapshot struct {
	ID            uuid.UUID
	Kind          types.CountdownKind
	Duration      time.Duration
	TimeRemaining time.Duration
}

// Engine owns at most one active countdown for its room. The zero value is
// ready to use.
type Engine struct {
	mu      sync.Mutex
	current *instance
}

// Active reports whether a countdown is currently running.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current != nil
}

// Snapshot returns the active countdown's state, with TimeRemaining
// recomputed from wall-clock at call time so a late joiner sees an accurate
// value. The second return is false if no countdown is active.
func (e *Engine) Snapshot() (Snapshot, bool) {
	e.mu.Lock()
	inst := e.current
	e.mu.Unlock()
	if inst == nil {
		return Snapshot{}, false
	}
	remaining := inst.duration - time.Since(inst.startedAt)
	if remaining < 0 {
		remaining = 0
	}
	return Snapshot{ID: inst.id, Kind: inst.kind, Duration: inst.duration, TimeRemaining: remaining}, true
}

// Start begins a new countdown, first stopping (and suppressing the
// callback of) any prior one, so the new countdown is always the one
// subsequent readers observe. onComplete runs under the room lock obtained
// via reacquire once the countdown fires; it never runs if the countdown is
// stopped before it does.
func (e *Engine) Start(ctx context.Context, kind types.CountdownKind, duration time.Duration, reacquire ReacquireFunc, onComplete func(ctx context.Context)) {
	e.Stop()

	inst := &instance{
		id:        uuid.New(),
		kind:      kind,
		duration:  duration,
		startedAt: time.Now(),
		stopCh:    make(chan struct{}),
		skipCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}

	e.mu.Lock()
	e.current = inst
	e.mu.Unlock()

	go e.run(ctx, inst, reacquire, onComplete)
}

func (e *Engine) run(ctx context.Context, inst *instance, reacquire ReacquireFunc, onComplete func(ctx context.Context)) {
	defer close(inst.doneCh)

	timer := time.NewTimer(inst.duration)
	defer timer.Stop()

	stopped := false
	select {
	case <-timer.C:
	case <-inst.skipCh:
	case <-inst.stopCh:
		stopped = true
	}

	release, err := reacquire(ctx)
	if err != nil {
		return
	}
	defer release()

	e.mu.Lock()
	isCurrent := e.current == inst
	if isCurrent {
		e.current = nil
	}
	e.mu.Unlock()

	if !isCurrent || stopped {
		return
	}
	onComplete(ctx)
}

// Stop cancels the active countdown, if any, and suppresses its completion
// callback. It returns as soon as the cancellation is recorded; the
// background task's own reacquisition of the room lock (to clear its
// bookkeeping) happens asynchronously and does not block the caller, which
// may itself already be holding that lock.
func (e *Engine) Stop() {
	e.mu.Lock()
	inst := e.current
	e.current = nil
	e.mu.Unlock()

	if inst == nil {
		return
	}
	inst.stopOnce.Do(func() { close(inst.stopCh) })
}

// StopIfKind cancels the active countdown only if it matches kind, and
// reports whether it did. Used to implement StopCountdownRequest, which
// must reject attempts to cancel an auto-start countdown.
func (e *Engine) StopIfKind(kind types.CountdownKind) bool {
	e.mu.Lock()
	inst := e.current
	if inst == nil || inst.kind != kind {
		e.mu.Unlock()
		return false
	}
	e.current = nil
	e.mu.Unlock()

	inst.stopOnce.Do(func() { close(inst.stopCh) })
	return true
}

// SkipToEnd forces the active countdown to fire immediately, still invoking
// its completion callback. The returned wait function blocks until that
// callback (if any) has finished running, making the skip awaitable per
// spec §4.7. ok is false if there was no active countdown.
func (e *Engine) SkipToEnd() (wait func(), ok bool) {
	e.mu.Lock()
	inst := e.current
	e.mu.Unlock()
	if inst == nil {
		return func() {}, false
	}

	inst.skipOnce.Do(func() { close(inst.skipCh) })
	return func() { <-inst.doneCh }, true
}
