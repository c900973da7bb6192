// Palisade - Search Cluster Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/palisade

package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

func runningTree(t *testing.T) *SupervisorTree {
	t.Helper()
	tree, err := NewSupervisorTree(testLogger(), TreeConfig{
		FailureBackoff:  10 * time.Millisecond,
		ShutdownTimeout: time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	tree.ServeBackground(ctx)
	return tree
}

func TestNewResourceSupervisor(t *testing.T) {
	t.Parallel()
	if _, err := NewResourceSupervisor(nil); !errors.Is(err, ErrNilSupervisorTree) {
		t.Errorf("NewResourceSupervisor(nil) error = %v, want ErrNilSupervisorTree", err)
	}
}

func TestResourceSupervisorAddRemove(t *testing.T) {
	t.Parallel()

	rs, _ := NewResourceSupervisor(runningTree(t))
	svc := newFakeService("ldap-corp")

	if err := rs.Add("ldap-corp", 1, svc); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := rs.Add("ldap-corp", 1, newFakeService("dup")); !errors.Is(err, ErrResourceAlreadyExists) {
		t.Errorf("duplicate Add() error = %v, want ErrResourceAlreadyExists", err)
	}
	waitFor(t, func() bool { return svc.StartCount() == 1 })

	status, err := rs.Status("ldap-corp")
	if err != nil || status.Generation != 1 || !status.Running {
		t.Errorf("Status() = %+v, %v", status, err)
	}

	if err := rs.Remove("ldap-corp"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if svc.StopCount() != 1 {
		t.Errorf("StopCount = %d after Remove, want 1", svc.StopCount())
	}
	if rs.IsRunning("ldap-corp") {
		t.Error("IsRunning after Remove")
	}
	if err := rs.Remove("ldap-corp"); !errors.Is(err, ErrResourceNotRunning) {
		t.Errorf("second Remove() error = %v, want ErrResourceNotRunning", err)
	}
	if _, err := rs.Status("ldap-corp"); !errors.Is(err, ErrResourceNotRunning) {
		t.Errorf("Status() error = %v, want ErrResourceNotRunning", err)
	}
}

func TestResourceSupervisorSyncGenerations(t *testing.T) {
	t.Parallel()

	rs, _ := NewResourceSupervisor(runningTree(t))
	corp1 := newFakeService("ldap-corp")
	lab1 := newFakeService("ldap-lab")
	if err := rs.Sync(1, map[string]suture.Service{"ldap-corp": corp1, "ldap-lab": lab1}); err != nil {
		t.Fatalf("Sync(1) error = %v", err)
	}
	waitFor(t, func() bool { return corp1.StartCount() == 1 && lab1.StartCount() == 1 })

	corp2 := newFakeService("ldap-corp")
	if err := rs.Sync(2, map[string]suture.Service{"ldap-corp": corp2}); err != nil {
		t.Fatalf("Sync(2) error = %v", err)
	}
	waitFor(t, func() bool { return corp2.StartCount() == 1 })

	if corp1.StopCount() != 1 || lab1.StopCount() != 1 {
		t.Errorf("generation 1 stops: corp %d, lab %d, want 1 and 1", corp1.StopCount(), lab1.StopCount())
	}
	statuses := rs.Statuses()
	if len(statuses) != 1 || statuses[0].Name != "ldap-corp" || statuses[0].Generation != 2 {
		t.Errorf("Statuses() = %+v, want only ldap-corp at generation 2", statuses)
	}

	if err := rs.StopAll(context.Background()); err != nil {
		t.Fatalf("StopAll() error = %v", err)
	}
	if corp2.StopCount() != 1 || len(rs.Statuses()) != 0 {
		t.Errorf("after StopAll: stops %d, statuses %v", corp2.StopCount(), rs.Statuses())
	}
}

func TestResourceSupervisorReplace(t *testing.T) {
	t.Parallel()

	rs, _ := NewResourceSupervisor(runningTree(t))
	first := newFakeService("pool")
	second := newFakeService("pool")

	if err := rs.Replace("pool", 1, first); err != nil {
		t.Fatalf("Replace() on empty error = %v", err)
	}
	waitFor(t, func() bool { return first.StartCount() == 1 })
	if err := rs.Replace("pool", 2, second); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	waitFor(t, func() bool { return second.StartCount() == 1 })
	if first.StopCount() != 1 {
		t.Errorf("first StopCount = %d, want 1", first.StopCount())
	}
	if err := rs.Replace("pool", 3, nil); err == nil {
		t.Error("Replace() with nil service succeeded")
	}
}
