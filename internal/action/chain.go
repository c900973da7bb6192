// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package action

import (
	"context"
	"sort"

	"github.com/tomtom215/palisade/internal/logging"
)

// Client executes actions. The node-local client used by tenancy handlers
// is a Pipeline, so every sub-request passes the full filter chain again.
type Client interface {
	Execute(ctx context.Context, ec *ExecContext, action string, req Request, l Listener)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, ec *ExecContext, action string, req Request, l Listener)

// Execute implements Client.
func (f ClientFunc) Execute(ctx context.Context, ec *ExecContext, action string, req Request, l Listener) {
	f(ctx, ec, action, req, l)
}

// Chain continues filter processing.
type Chain interface {
	Proceed(ctx context.Context, ec *ExecContext, action string, req Request, l Listener)
}

// Filter intercepts actions. A filter must either call chain.Proceed or
// complete l, never both.
type Filter interface {
	// Order positions the filter; lower runs first.
	Order() int
	Apply(ctx context.Context, ec *ExecContext, action string, req Request, l Listener, chain Chain)
}

// Executor performs an action after all filters passed.
type Executor interface {
	Execute(ctx context.Context, ec *ExecContext, action string, req Request) (Response, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, ec *ExecContext, action string, req Request) (Response, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, ec *ExecContext, action string, req Request) (Response, error) {
	return f(ctx, ec, action, req)
}

// Pipeline runs filters in order and then the executor.
type Pipeline struct {
	filters []Filter
	exec    Executor
}

// NewPipeline creates a pipeline; filters are sorted by Order (stable).
func NewPipeline(exec Executor, filters ...Filter) *Pipeline {
	sorted := append([]Filter(nil), filters...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order() < sorted[j].Order() })
	return &Pipeline{filters: sorted, exec: exec}
}

// AddFilter returns a new pipeline with f added.
func (p *Pipeline) AddFilter(f Filter) *Pipeline {
	return NewPipeline(p.exec, append(append([]Filter(nil), p.filters...), f)...)
}

// Execute implements Client.
func (p *Pipeline) Execute(ctx context.Context, ec *ExecContext, action string, req Request, l Listener) {
	step{p: p}.Proceed(ctx, ec, action, req, Once(l))
}

type step struct {
	p   *Pipeline
	pos int
}

func (s step) Proceed(ctx context.Context, ec *ExecContext, action string, req Request, l Listener) {
	defer func() {
		if r := recover(); r != nil {
			err := Recovered(r)
			logging.Ctx(ctx).Error().Err(err).Str("action", action).Msg("Panic in action pipeline")
			l.OnFailure(Internal(err, "internal error while processing %s", action))
		}
	}()

	if s.pos < len(s.p.filters) {
		s.p.filters[s.pos].Apply(ctx, ec, action, req, l, step{p: s.p, pos: s.pos + 1})
		return
	}
	resp, err := s.p.exec.Execute(ctx, ec, action, req)
	if err != nil {
		l.OnFailure(err)
		return
	}
	l.OnResponse(resp)
}

// ExecuteSync runs an action on c and waits for its outcome.
func ExecuteSync(ctx context.Context, c Client, ec *ExecContext, action string, req Request) (Response, error) {
	f := NewFuture()
	c.Execute(ctx, ec, action, req, f)
	return f.Get(ctx)
}
