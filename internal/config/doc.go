// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

/*
Package config loads and validates the gateway configuration.

# Sources

Configuration is layered with koanf v2:
  - built-in defaults (structs provider over defaultConfig)
  - an optional YAML file, CONFIG_PATH or the first of DefaultConfigPaths
  - environment variables listed in envMappings

Unmapped environment variables are ignored. Slice settings such as
AUTH_ADMIN_DN or IMMUTABLE_INDICES accept comma-separated values.

# Sections

	server      admin HTTP listener, node name, rate limit
	logging     level, format, caller
	auth        admin DNs, transport impersonation, accepted networks,
	            blocked IPs and users, auth failure listener, user cache,
	            domains, internal users
	ldap        connection pool, authentication and role resolution
	privileges  roles, role mappings, action groups, tenants
	filter      immutable indices, mapped-roles cache
	tenancy     multi-tenancy of the frontend index
	audit       audit logger and its store
	cluster     embedded document store

# Generations

A loaded Config is immutable. Store numbers generations; Watcher reloads
the file on change and swaps a new generation in only when it loads,
validates and is accepted by every registered ApplyFunc.
*/
package config
