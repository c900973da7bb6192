// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package authc

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/tomtom215/palisade/internal/user"
)

// ErrMalformedAuthorization is returned for an Authorization header that
// is not valid HTTP basic.
var ErrMalformedAuthorization = errors.New("malformed basic authorization header")

// ParseBasic extracts credentials from an HTTP basic Authorization header.
// A missing or non-basic header yields nil credentials and no error. The
// decoded buffer becomes the credentials' secret; only the password bytes
// survive and the rest is zeroed.
func ParseBasic(header string, opts ...user.CredentialsOption) (*user.AuthCredentials, error) {
	const prefix = "basic "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return nil, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header[len(prefix):]))
	if err != nil {
		return nil, ErrMalformedAuthorization
	}
	i := bytes.IndexByte(decoded, ':')
	if i <= 0 {
		clear(decoded)
		return nil, ErrMalformedAuthorization
	}
	name := string(decoded[:i])
	password := make([]byte, len(decoded)-i-1)
	copy(password, decoded[i+1:])
	clear(decoded)
	return user.NewCredentials(name, password, opts...), nil
}
