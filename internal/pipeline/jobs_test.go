package pipeline

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestContentHashHex_Consistency(t *testing.T) {
	data := []byte("hello world")
	h1 := ContentHashHex(data)
	h2 := ContentHashHex(data)
	if h1 != h2 {
		t.Errorf("expected identical hashes, got %q and %q", h1, h2)
	}
	// SHA-256 of "hello world" is well-known.
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if h1 != want {
		t.Errorf("expected hash %q, got %q", want, h1)
	}
}

func TestContentHashHex_EmptyInput(t *testing.T) {
	h := ContentHashHex([]byte{})
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if h != want {
		t.Errorf("expected hash %q, got %q", want, h)
	}
}

func TestJob_StateTransitions(t *testing.T) {
	job := NewUploadJob("org.md", "", []byte("# Org"))
	if job.Status != StatusQueued || job.Source != SourceUpload {
		t.Fatalf("unexpected initial state %q/%q", job.Status, job.Source)
	}
	if !strings.HasPrefix(job.ID, "job_") {
		t.Errorf("expected job_ prefix, got %q", job.ID)
	}

	transitions := []struct {
		status JobStatus
		phase  string
	}{
		{StatusParsing, "parsing"},
		{StatusValidating, "validating"},
		{StatusStoring, "storing"},
	}

	for _, tr := range transitions {
		before := job.UpdatedAt
		// Small sleep to ensure time difference is detectable.
		time.Sleep(time.Millisecond)
		job.SetStatus(tr.status, tr.phase)

		if job.Status != tr.status {
			t.Errorf("expected status %q, got %q", tr.status, job.Status)
		}
		if job.Phase != tr.phase {
			t.Errorf("expected phase %q, got %q", tr.phase, job.Phase)
		}
		if !job.UpdatedAt.After(before) {
			t.Errorf("expected UpdatedAt to advance after SetStatus(%q)", tr.status)
		}
		if tr.status.Terminal() {
			t.Errorf("%q should not be terminal", tr.status)
		}
	}

	job.Complete("doc-1", 12)
	snap := job.Snapshot()
	if snap.Status != StatusCompleted || snap.DocID != "doc-1" || snap.Nodes != 12 {
		t.Errorf("unexpected snapshot after Complete: %+v", snap)
	}
	if !snap.Status.Terminal() {
		t.Error("completed should be terminal")
	}
}

func TestJob_Fail(t *testing.T) {
	job := NewPlatformJob("12", "org", "")
	job.Fail("fetching", errors.New("boom"))

	snap := job.Snapshot()
	if snap.Status != StatusFailed || snap.Phase != "fetching" {
		t.Errorf("expected failed/fetching, got %q/%q", snap.Status, snap.Phase)
	}
	if len(snap.Errors) != 1 || snap.Errors[0] != "fetching: boom" {
		t.Errorf("unexpected errors %q", snap.Errors)
	}
}

func TestJob_FileData(t *testing.T) {
	data := []byte("file content here")
	job := NewUploadJob("a.txt", "", data)
	if string(job.FileData()) != string(data) {
		t.Errorf("expected file data %q, got %q", data, job.FileData())
	}
	if job.ContentHash != ContentHashHex(data) {
		t.Errorf("content hash not recorded")
	}
}

func TestJob_SnapshotErrorsNotNil(t *testing.T) {
	job := &Job{ID: "snap-test", UpdatedAt: time.Now()}
	snap := job.Snapshot()
	if snap.Errors == nil {
		t.Error("expected non-nil errors slice in snapshot")
	}
}

func TestJobStore_PutGet(t *testing.T) {
	store := NewJobStore(time.Hour)
	job := &Job{ID: "store-1", UpdatedAt: time.Now()}
	store.Put(job)

	if got := store.Get("store-1"); got == nil || got.ID != "store-1" {
		t.Fatalf("expected to get job back, got %+v", got)
	}
	if store.Get("nonexistent") != nil {
		t.Error("expected nil for missing job")
	}
}

func TestJobStore_CompletedByHash(t *testing.T) {
	store := NewJobStore(time.Hour)
	done := NewUploadJob("a.md", "", []byte("same"))
	done.Complete("doc-a", 3)
	pending := NewUploadJob("b.md", "", []byte("same"))
	store.Put(done)
	store.Put(pending)

	if id, ok := store.CompletedByHash(pending.ContentHash, pending.ID); !ok || id != "doc-a" {
		t.Errorf("expected doc-a, got %q %v", id, ok)
	}
	if _, ok := store.CompletedByHash(done.ContentHash, done.ID); ok {
		t.Error("a job must not match itself")
	}
	if _, ok := store.CompletedByHash("", ""); ok {
		t.Error("empty hash must not match")
	}
}

func TestJobStore_TTLCleanup(t *testing.T) {
	store := NewJobStore(50 * time.Millisecond)

	expired := &Job{ID: "old", UpdatedAt: time.Now().Add(-time.Second)}
	store.Put(expired)
	fresh := &Job{ID: "new", UpdatedAt: time.Now()}
	store.Put(fresh)

	store.Cleanup()

	if store.Get("old") != nil {
		t.Error("expected expired job to be cleaned up")
	}
	if store.Get("new") == nil {
		t.Error("expected fresh job to survive cleanup")
	}
}

func TestBackoffBounds(t *testing.T) {
	for attempt := range 8 {
		d := Backoff(attempt)
		base := min(time.Duration(1<<attempt)*time.Second, 30*time.Second)
		if d < base || d >= base+base/2 {
			t.Errorf("Backoff(%d) = %s, want in [%s, %s)", attempt, d, base, base+base/2)
		}
	}
}
