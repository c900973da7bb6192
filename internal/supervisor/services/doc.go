// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

/*
Package services provides suture.Service wrappers for Palisade components
that do not implement Serve themselves.

HTTPServerService adapts the ListenAndServe/Shutdown lifecycle of
*http.Server. CloserService keeps a closeable resource, such as an LDAP
connection manager, alive for the lifetime of its supervision.

Components with their own Serve method (config.Watcher, cluster.Store,
audit.Logger) are added to the tree directly.
*/
package services
