/*
Copyright 2025 The Weft Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package async

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State names a coroutine state.
type State string

// StateHandler runs one step of a coroutine and returns the action deciding
// what happens next.
type StateHandler func(ctx context.Context) Action

type actionKind int

const (
	actionYield actionKind = iota
	actionWait
	actionAwait
	actionFinish
	actionAbort
)

// Action is the result of a coroutine step.
type Action struct {
	kind  actionKind
	next  State
	delay time.Duration
	ch    <-chan struct{}
	err   error
}

// Yield reschedules the coroutine in the given state.
func Yield(next State) Action { return Action{kind: actionYield, next: next} }

// Wait parks the coroutine for d, then resumes it in the given state.
func Wait(d time.Duration, next State) Action {
	return Action{kind: actionWait, next: next, delay: d}
}

// AwaitChan parks the coroutine until ch is closed, then resumes it in the
// given state. Pair it with a Future.Done or pool Acquisition.Done channel.
func AwaitChan(ch <-chan struct{}, next State) Action {
	return Action{kind: actionAwait, next: next, ch: ch}
}

// Finish completes the coroutine.
func Finish() Action { return Action{kind: actionFinish} }

// Abort completes the coroutine with an error.
func Abort(err error) Action { return Action{kind: actionAbort, err: err} }

// Coroutine is a resumable computation expressed as named states with
// per-state handlers. The executor drives it one handler call at a time, so
// a handler never observes another handler of the same coroutine running
// concurrently.
type Coroutine struct {
	current  State
	handlers map[State]StateHandler

	mu   sync.Mutex
	done chan struct{}
	err  error
}

// NewCoroutine creates a coroutine starting in the given state.
func NewCoroutine(initial State) *Coroutine {
	return &Coroutine{
		current:  initial,
		handlers: make(map[State]StateHandler),
		done:     make(chan struct{}),
	}
}

// Handle registers the handler for a state. Returns the coroutine for
// chaining.
func (c *Coroutine) Handle(state State, handler StateHandler) *Coroutine {
	c.handlers[state] = handler
	return c
}

// Done returns a channel closed when the coroutine finishes or aborts.
func (c *Coroutine) Done() <-chan struct{} { return c.done }

// Err returns the abort error, if any. Valid once Done is closed.
func (c *Coroutine) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Coroutine) finish(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	close(c.done)
}

// Run schedules the coroutine onto the executor and returns immediately.
// The coroutine's handlers run on executor workers until it finishes.
func (e *Executor) Run(ctx context.Context, c *Coroutine) error {
	e.coWG.Add(1)
	if err := e.submitStep(ctx, c); err != nil {
		e.coWG.Done()
		return err
	}
	return nil
}

func (e *Executor) submitStep(ctx context.Context, c *Coroutine) error {
	return e.Submit(func() { e.step(ctx, c) })
}

func (e *Executor) step(ctx context.Context, c *Coroutine) {
	if ctx.Err() != nil {
		c.finish(ctx.Err())
		e.coWG.Done()
		return
	}
	handler, ok := c.handlers[c.current]
	if !ok {
		c.finish(fmt.Errorf("async: no handler for state %q", c.current))
		e.coWG.Done()
		return
	}
	action := handler(ctx)
	switch action.kind {
	case actionYield:
		c.current = action.next
		e.resume(ctx, c)
	case actionWait:
		c.current = action.next
		time.AfterFunc(action.delay, func() { e.resume(ctx, c) })
	case actionAwait:
		c.current = action.next
		ch := action.ch
		go func() {
			select {
			case <-ch:
			case <-ctx.Done():
			}
			e.resume(ctx, c)
		}()
	case actionFinish:
		c.finish(nil)
		e.coWG.Done()
	case actionAbort:
		c.finish(action.err)
		e.coWG.Done()
	}
}

func (e *Executor) resume(ctx context.Context, c *Coroutine) {
	if err := e.submitStep(ctx, c); err != nil {
		c.finish(err)
		e.coWG.Done()
	}
}
