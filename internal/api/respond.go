// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package api

import (
	"errors"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/tomtom215/palisade/internal/action"
	"github.com/tomtom215/palisade/internal/logging"
)

// ErrorBody is the JSON shape of every failure response.
type ErrorBody struct {
	Error  ErrorCause `json:"error"`
	Status int        `json:"status"`
}

// ErrorCause describes a failure.
type ErrorCause struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// respondError renders err. Internal causes of 5xx failures are logged by
// the caller and not exposed.
func respondError(w http.ResponseWriter, err error) {
	status := action.StatusOf(err)
	respondJSON(w, status, ErrorBody{
		Error:  ErrorCause{Type: errorType(status), Reason: errorReason(err, status)},
		Status: status,
	})
}

func errorReason(err error, status int) string {
	var se *action.StatusError
	if !errors.As(err, &se) {
		if status >= http.StatusInternalServerError {
			return "internal server error"
		}
		return err.Error()
	}
	if status >= http.StatusInternalServerError || se.Err == nil {
		return se.Reason
	}
	return se.Error()
}

func errorType(status int) string {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return "security_exception"
	case http.StatusNotFound:
		return "resource_not_found_exception"
	case http.StatusConflict:
		return "version_conflict_engine_exception"
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return "illegal_argument_exception"
	case http.StatusTooManyRequests:
		return "too_many_requests"
	case http.StatusServiceUnavailable:
		return "status_exception"
	default:
		return "exception"
	}
}

// badRequest wraps a request parsing failure.
func badRequest(err error, format string, args ...any) error {
	return action.NewStatusError(http.StatusBadRequest, err, format, args...)
}
