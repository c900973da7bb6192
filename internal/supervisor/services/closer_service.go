// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package services

import (
	"context"
)

// CloserService holds a resource open for as long as it is supervised and
// closes it on shutdown. Removing it from a supervisor releases the
// resource, which is how a replaced configuration generation drains its
// directory connection pools.
type CloserService struct {
	name  string
	close func()
}

// NewCloserService supervises a resource released by closeFn.
func NewCloserService(name string, closeFn func()) *CloserService {
	return &CloserService{name: name, close: closeFn}
}

// Serve blocks until ctx is canceled, then closes the resource.
func (c *CloserService) Serve(ctx context.Context) error {
	<-ctx.Done()
	c.close()
	return ctx.Err()
}

// String names the service in supervisor logs.
func (c *CloserService) String() string {
	return c.name
}
