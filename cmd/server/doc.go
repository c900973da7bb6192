// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

/*
Package main is the entry point for the Palisade server.

Palisade authenticates and authorizes every request sent to a search
cluster. Requests pass the authentication domains, the authorization
filter with its immutable index and multi-tenancy sub-filters, and are then
executed against the node's document store.

# Application Architecture

	RootSupervisor ("palisade")
	├── StorageSupervisor ("storage-layer")
	│   ├── cluster-store-gc (badger value log GC)
	│   └── audit-retention (audit event cleanup)
	├── ControlSupervisor ("control-layer")
	│   ├── config-watcher (hot reload, only with a config file)
	│   └── ldap-pool (one per configuration generation, when LDAP is enabled)
	└── APISupervisor ("api-layer")
	    └── http-server

Startup order:

 1. Configuration: Koanf v2 with defaults, YAML file and environment
 2. Storage: BadgerDB for documents and, optionally, audit events
 3. Security: block registries, the transport handler and generation 1
 4. Supervisor tree and the HTTP listener

# Configuration Generations

Each successful reload becomes a new generation. The gateway builds the
complete request path of a generation (domains, backends, filters,
privileges) before publishing it; a generation that fails to build leaves
the active one untouched. Generation scoped resources such as LDAP
connection pools are handed to the resource supervisor, which stops the
previous generation's pools once the new one is live.

# Signal Handling

SIGINT and SIGTERM cancel the root context. The HTTP listener drains
in-flight requests, the supervisor stops every service and the databases
are closed.

# Example Usage

	export CONFIG_PATH=/etc/palisade/palisade.yaml
	export HTTP_PORT=9300
	export LOG_LEVEL=debug
	./palisade
*/
package main
