// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package action

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tomtom215/palisade/internal/logging"
)

// Listener receives the single terminal outcome of an action.
// Exactly one of OnResponse or OnFailure is called, exactly once.
type Listener interface {
	OnResponse(resp Response)
	OnFailure(err error)
}

type funcListener struct {
	onResponse func(Response)
	onFailure  func(error)
}

func (l funcListener) OnResponse(resp Response) { l.onResponse(resp) }
func (l funcListener) OnFailure(err error)      { l.onFailure(err) }

// ListenerFuncs builds a Listener from two functions.
func ListenerFuncs(onResponse func(Response), onFailure func(error)) Listener {
	return funcListener{onResponse: onResponse, onFailure: onFailure}
}

type onceListener struct {
	delegate Listener
	done     atomic.Bool
}

// Once guards delegate so that only the first terminal callback is
// forwarded. Later calls are dropped and logged.
func Once(delegate Listener) Listener {
	if o, ok := delegate.(*onceListener); ok {
		return o
	}
	return &onceListener{delegate: delegate}
}

func (l *onceListener) OnResponse(resp Response) {
	if !l.done.CompareAndSwap(false, true) {
		logging.Warn().Msg("Listener completed twice; dropping response")
		return
	}
	l.delegate.OnResponse(resp)
}

func (l *onceListener) OnFailure(err error) {
	if !l.done.CompareAndSwap(false, true) {
		logging.Warn().Err(err).Msg("Listener completed twice; dropping failure")
		return
	}
	l.delegate.OnFailure(err)
}

// Adapter pieces for MapListener. Every field is optional.
type Adapter[T Response] struct {
	// OnResponse runs before the mapper, e.g. to restore caller state.
	OnResponse func()
	// Map converts the downstream response into the caller's response.
	Map func(T) (Response, error)
	// OnFailure runs before the failure is forwarded.
	OnFailure func(error)
}

// MapListener wraps delegate so that downstream responses of type T pass
// through the adapter. A panic or error in any adapter step, or a response
// of an unexpected type, becomes a single OnFailure on delegate; no panic
// escapes to the caller.
func MapListener[T Response](delegate Listener, a Adapter[T]) Listener {
	delegate = Once(delegate)
	return Once(ListenerFuncs(
		func(resp Response) {
			mapped, err := runAdapter(a, resp)
			if err != nil {
				delegate.OnFailure(err)
				return
			}
			delegate.OnResponse(mapped)
		},
		func(err error) {
			if a.OnFailure != nil {
				if perr := safeCall(func() { a.OnFailure(err) }); perr != nil {
					logging.Error().Err(perr).Msg("Failure side effect panicked")
				}
			}
			delegate.OnFailure(err)
		},
	))
}

func runAdapter[T Response](a Adapter[T], resp Response) (out Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, Recovered(r)
		}
	}()
	if a.OnResponse != nil {
		a.OnResponse()
	}
	typed, ok := resp.(T)
	if !ok {
		return nil, fmt.Errorf("unexpected response type %T", resp)
	}
	if a.Map == nil {
		return typed, nil
	}
	return a.Map(typed)
}

func safeCall(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Recovered(r)
		}
	}()
	fn()
	return nil
}

// Future is a Listener whose outcome can be awaited.
type Future struct {
	once sync.Once
	done chan struct{}
	resp Response
	err  error
}

// NewFuture creates an uncompleted future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// OnResponse implements Listener.
func (f *Future) OnResponse(resp Response) {
	f.once.Do(func() {
		f.resp = resp
		close(f.done)
	})
}

// OnFailure implements Listener.
func (f *Future) OnFailure(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Get waits for the outcome or for ctx to end.
func (f *Future) Get(ctx context.Context) (Response, error) {
	select {
	case <-f.done:
		return f.resp, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed once the future completed.
func (f *Future) Done() <-chan struct{} {
	return f.done
}
