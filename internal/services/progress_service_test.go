// internal/services/progress_service_test.go
package services

import (
	"testing"
	"time"
)

func TestProgressTrackerLifecycle(t *testing.T) {
	ps := NewProgressService()
	tracker := ps.CreateTracker("t1")
	if again := ps.CreateTracker("t1"); again != tracker {
		t.Fatal("CreateTracker returned a second tracker for the same id")
	}

	sub := tracker.Subscribe()
	if first := <-sub; first.Status != StatusRunning || first.Message != "Initialisation..." {
		t.Errorf("initial update = %+v", first)
	}

	tracker.UpdateProgress(40, "Analyse")
	tracker.UpdateProgress(20, "")
	if got := tracker.Snapshot(); got.Progress != 40 || got.Message != "Analyse" {
		t.Errorf("progress went back: %+v", got)
	}
	tracker.UpdateProgress(250, "Presque")
	if got := tracker.Snapshot().Progress; got != 100 {
		t.Errorf("progress = %d, want capped at 100", got)
	}

	if ps.ActiveCount() != 1 {
		t.Errorf("ActiveCount = %d", ps.ActiveCount())
	}

	tracker.Complete("")
	select {
	case <-tracker.Done:
	default:
		t.Fatal("Done not closed after Complete")
	}
	final := tracker.Snapshot()
	if final.Status != StatusCompleted || final.Message != "Terminé" || final.Progress != 100 {
		t.Errorf("final = %+v", final)
	}

	tracker.Fail("trop tard")
	if tracker.Snapshot().Status != StatusCompleted {
		t.Error("Fail after Complete changed the status")
	}
	if tracker.Cancel() {
		t.Error("Cancel succeeded on a finished task")
	}

	var last ProgressUpdate
	for len(sub) > 0 {
		last = <-sub
	}
	if last.Status != StatusCompleted {
		t.Errorf("last broadcast = %+v", last)
	}
	tracker.Unsubscribe(sub)
	if _, open := <-sub; open {
		t.Error("subscriber channel still open")
	}
	tracker.Unsubscribe(sub)
}

func TestSlowSubscriberStillSeesCompletion(t *testing.T) {
	tracker := NewProgressService().CreateTracker("slow")
	sub := tracker.Subscribe()
	defer tracker.Unsubscribe(sub)

	for i := 1; i <= 20; i++ {
		tracker.UpdateProgress(i, "étape")
	}
	tracker.Complete("fini")

	var last ProgressUpdate
	for len(sub) > 0 {
		last = <-sub
	}
	if last.Status != StatusCompleted || last.Message != "fini" {
		t.Errorf("last update = %+v, want the completed state", last)
	}
}

func TestProgressTrackerCancel(t *testing.T) {
	tracker := NewProgressService().CreateTracker("t2")
	called := false
	tracker.SetCancel(func() { called = true })

	if !tracker.Cancel() {
		t.Fatal("Cancel on a running task returned false")
	}
	if !called {
		t.Error("cancel func not called")
	}
	if got := tracker.Snapshot(); got.Status != StatusFailed || got.Message != "Tâche annulée" {
		t.Errorf("after cancel = %+v", got)
	}
}

func TestCleanupCompletedTasks(t *testing.T) {
	ps := NewProgressService()
	ps.CreateTracker("running")
	ps.CreateTracker("done").Complete("ok")
	ps.CreateTracker("failed").Fail("ko")

	if removed := ps.CleanupCompletedTasks(time.Hour); len(removed) != 0 {
		t.Errorf("fresh tasks removed: %v", removed)
	}
	removed := ps.CleanupCompletedTasks(-time.Second)
	if len(removed) != 2 {
		t.Errorf("removed = %v, want the two finished tasks", removed)
	}
	if _, ok := ps.GetTracker("running"); !ok {
		t.Error("running task was removed")
	}
	if _, ok := ps.GetTracker("done"); ok {
		t.Error("finished task still tracked")
	}
}
