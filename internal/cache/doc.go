// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

/*
Package cache provides the bounded, expiring loading caches used for
authenticated users.

# Overview

A Loading cache maps a key to a value produced by a loader function:
  - Bounded by entry count and expiring after a TTL (golang-lru expirable LRU)
  - Concurrent loads of the same key are collapsed (singleflight)
  - Loader errors are returned to every waiter and never cached
  - Hits and misses are exported per cache name

# Usage Example

	users := cache.NewLoading[string, *user.User]("credentials", 100000, time.Hour)
	u, err := users.Get(ctx, creds.CacheKey(), func(ctx context.Context) (*user.User, error) {
	    return backend.Authenticate(ctx, creds)
	})

Caches are swapped as a whole when the security configuration changes,
so entries never outlive the configuration generation they were built for.
*/
package cache
