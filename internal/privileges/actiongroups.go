// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package privileges

import "slices"

// ActionGroups resolves group names to the action patterns they stand for.
type ActionGroups struct {
	groups map[string][]string
}

// NewActionGroups wraps a group definition map.
func NewActionGroups(groups map[string][]string) ActionGroups {
	return ActionGroups{groups: groups}
}

// Resolve expands every entry that names a group, recursively. Entries that
// are not groups are returned as action patterns. References back to a group
// already being expanded are ignored, so cyclic definitions terminate.
func (g ActionGroups) Resolve(entries []string) []string {
	seen := make(map[string]struct{}, len(entries))
	var out []string
	queue := append([]string(nil), entries...)
	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		if members, ok := g.groups[e]; ok {
			queue = append(queue, members...)
			continue
		}
		out = append(out, e)
	}
	slices.Sort(out)
	return out
}
