// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

/*
Package supervisor provides process supervision for Palisade using suture v4.

Every long-running piece of the gateway runs as a suture.Service inside a
hierarchical tree, which gives automatic restart with backoff, failure
isolation between layers, and ordered shutdown on context cancellation.

# Overview

	RootSupervisor ("palisade")
	├── StorageSupervisor ("storage-layer")
	│   ├── cluster-store-gc
	│   └── audit-retention
	├── ControlSupervisor ("control-layer")
	│   ├── config-watcher
	│   └── per-generation resources (ResourceSupervisor), e.g. ldap-<domain>
	└── APISupervisor ("api-layer")
	    └── http-server

Services signal a permanent exit with suture.ErrDoNotRestart; the config
watcher does this when the gateway runs without a configuration file.

# Generations

ResourceSupervisor owns services whose lifetime is one configuration
generation. Sync stops the previous generation's services before starting
their replacements, so a directory connection pool built for generation N
is closed once generation N+1 is active.

# Usage

	tree, err := supervisor.NewSupervisorTree(logger, supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddStorageService(clusterStore)
	tree.AddControlService(config.NewWatcher(store, path))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	return tree.Serve(ctx)

See also: https://pkg.go.dev/github.com/thejerf/suture/v4
*/
package supervisor
