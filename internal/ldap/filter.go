// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package ldap

import (
	"strconv"
	"strings"

	goldap "github.com/go-ldap/ldap/v3"
)

// FormatFilter substitutes the positional placeholders {0}, {1}, ... in
// template. Each value is filter-escaped. A placeholder without a value
// in params is left untouched.
func FormatFilter(template string, params map[int]string) string {
	if len(params) == 0 {
		return template
	}
	var b strings.Builder
	for i := 0; i < len(template); i++ {
		if template[i] == '{' {
			if end := strings.IndexByte(template[i:], '}'); end > 1 {
				if n, err := strconv.Atoi(template[i+1 : i+end]); err == nil {
					if v, ok := params[n]; ok {
						b.WriteString(goldap.EscapeFilter(v))
						i += end
						continue
					}
				}
			}
		}
		b.WriteByte(template[i])
	}
	return b.String()
}
