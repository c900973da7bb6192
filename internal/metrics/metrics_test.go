// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordAuthzDecision(t *testing.T) {
	before := testutil.ToFloat64(AuthzDecisions.WithLabelValues("denied"))
	RecordAuthzDecision("denied", time.Millisecond)
	RecordAuthzDecision("denied", 0)
	if got := testutil.ToFloat64(AuthzDecisions.WithLabelValues("denied")) - before; got != 2 {
		t.Errorf("denied decisions delta = %v, want 2", got)
	}
}

func TestRecordCacheLookup(t *testing.T) {
	hits := testutil.ToFloat64(CacheLookups.WithLabelValues("credentials", "hit"))
	misses := testutil.ToFloat64(CacheLookups.WithLabelValues("credentials", "miss"))

	RecordCacheLookup("credentials", true)
	RecordCacheLookup("credentials", false)
	RecordCacheLookup("credentials", false)

	if got := testutil.ToFloat64(CacheLookups.WithLabelValues("credentials", "hit")) - hits; got != 1 {
		t.Errorf("hits delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(CacheLookups.WithLabelValues("credentials", "miss")) - misses; got != 2 {
		t.Errorf("misses delta = %v, want 2", got)
	}
}

func TestRecordLDAPOperation(t *testing.T) {
	tests := []struct {
		name      string
		operation string
		err       error
		wantErr   float64
	}{
		{name: "successful search", operation: "search", wantErr: 0},
		{name: "failed lookup", operation: "lookup", err: errors.New("connection reset"), wantErr: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(LDAPErrors.WithLabelValues(tt.operation))
			RecordLDAPOperation(tt.operation, 3*time.Millisecond, tt.err)
			if got := testutil.ToFloat64(LDAPErrors.WithLabelValues(tt.operation)) - before; got != tt.wantErr {
				t.Errorf("error delta = %v, want %v", got, tt.wantErr)
			}
		})
	}
}

func TestRecordConfigReload(t *testing.T) {
	RecordConfigReload(7, nil)
	if got := testutil.ToFloat64(ConfigGeneration); got != 7 {
		t.Errorf("generation = %v, want 7", got)
	}

	before := testutil.ToFloat64(ConfigReloads.WithLabelValues("failure"))
	RecordConfigReload(8, errors.New("invalid yaml"))
	if got := testutil.ToFloat64(ConfigGeneration); got != 7 {
		t.Errorf("generation after failure = %v, want unchanged 7", got)
	}
	if got := testutil.ToFloat64(ConfigReloads.WithLabelValues("failure")) - before; got != 1 {
		t.Errorf("failure delta = %v, want 1", got)
	}
}

func TestTrackActiveRequest_RequestLifecycle(t *testing.T) {
	before := testutil.ToFloat64(APIActiveRequests)
	TrackActiveRequest(true)
	TrackActiveRequest(true)
	TrackActiveRequest(false)
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests); got != before {
		t.Errorf("in-flight = %v, want %v", got, before)
	}
}

func TestConcurrentMetricRecording(t *testing.T) {
	before := testutil.ToFloat64(AuthcAttempts.WithLabelValues("basic_internal", "success"))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			RecordAuthentication("basic_internal", "success")
			RecordAPIRequest("GET", "/healthz", "200", time.Millisecond)
			RecordTenancyRewrite("search")
			RecordAuditEvent("authenticated", "stored")
			RecordStoreOperation("bulk", time.Millisecond, nil)
		}()
	}
	wg.Wait()

	if got := testutil.ToFloat64(AuthcAttempts.WithLabelValues("basic_internal", "success")) - before; got != 50 {
		t.Errorf("authentication delta = %v, want 50", got)
	}
}
