// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
)

var errSimulated = errors.New("simulated failure")

// fakeService counts its runs. It fails the first `fails` runs, returns
// `exit` immediately when set, and otherwise blocks until canceled.
type fakeService struct {
	name    string
	fails   atomic.Int32
	exit    atomic.Pointer[error]
	started atomic.Int32
	stopped atomic.Int32
}

func newFakeService(name string) *fakeService {
	return &fakeService{name: name}
}

func (f *fakeService) Serve(ctx context.Context) error {
	f.started.Add(1)
	defer f.stopped.Add(1)

	if f.fails.Add(-1) >= 0 {
		return errSimulated
	}
	if err := f.exit.Load(); err != nil {
		return *err
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeService) failTimes(n int) { f.fails.Store(int32(n)) }

func (f *fakeService) exitWith(err error) { f.exit.Store(&err) }

func (f *fakeService) StartCount() int32 { return f.started.Load() }

func (f *fakeService) StopCount() int32 { return f.stopped.Load() }

func (f *fakeService) String() string { return f.name }
