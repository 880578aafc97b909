package jobs

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(zerolog.Nop(), time.Hour)
	t.Cleanup(s.Close)
	return s
}

func TestCompleteAttachesResultAndTerminalMessage(t *testing.T) {
	s := newTestStore(t)

	s.Create("abc", "Tile X")
	s.AddProgress("abc", "images", "Processing", "", "")
	s.Complete("abc", true, &Result{OutputURL: "u"})

	job := s.Get("abc")
	if job == nil {
		t.Fatal("Get returned nil for existing job")
	}
	if job.Status != StatusSucceeded {
		t.Fatalf("status = %q, want %q", job.Status, StatusSucceeded)
	}
	if job.Result == nil || job.Result.OutputURL != "u" {
		t.Fatalf("result = %+v, want OutputURL %q", job.Result, "u")
	}
	if len(job.Messages) != 2 {
		t.Fatalf("messages = %d, want 2 (progress + terminal)", len(job.Messages))
	}
	if job.Messages[0].Phase != "images" || job.Messages[0].Message != "Processing" {
		t.Fatalf("first message = %+v", job.Messages[0])
	}
	if job.Messages[1].Phase != PhaseComplete {
		t.Fatalf("terminal phase = %q, want %q", job.Messages[1].Phase, PhaseComplete)
	}
}

func TestCompleteIsIdempotent(t *testing.T) {
	s := newTestStore(t)

	s.Create("j1", "first")
	s.Complete("j1", false, &Result{Errors: []string{"boom"}})
	s.Complete("j1", true, &Result{OutputURL: "late"})

	job := s.Get("j1")
	if job.Status != StatusFailed {
		t.Fatalf("status = %q, want %q after duplicate completion", job.Status, StatusFailed)
	}
	if job.Result.OutputURL != "" {
		t.Fatalf("result overwritten by duplicate completion: %+v", job.Result)
	}
	terminal := 0
	for _, m := range job.Messages {
		if m.Terminal() {
			terminal++
		}
	}
	if terminal != 1 {
		t.Fatalf("terminal messages = %d, want 1", terminal)
	}
}

func TestFailureTerminalCarriesErrorDetail(t *testing.T) {
	s := newTestStore(t)

	s.Create("j2", "broken")
	s.Complete("j2", false, &Result{Errors: []string{"bad script", "timeout"}})

	job := s.Get("j2")
	last := job.Messages[len(job.Messages)-1]
	if last.Phase != PhaseError {
		t.Fatalf("terminal phase = %q, want %q", last.Phase, PhaseError)
	}
	if last.Detail != "bad script; timeout" {
		t.Fatalf("terminal detail = %q", last.Detail)
	}
}

func TestUnknownJobOperationsAreTolerated(t *testing.T) {
	s := newTestStore(t)

	// None of these may panic or create state.
	s.AddProgress("ghost", "llm", "thinking", "", "")
	s.Complete("ghost", true, nil)

	if job := s.Get("ghost"); job != nil {
		t.Fatalf("Get(ghost) = %+v, want nil", job)
	}
	if _, _, _, ok := s.Subscribe("ghost"); ok {
		t.Fatal("Subscribe(ghost) ok = true, want false")
	}
}

func TestProgressAfterCompletionIsDropped(t *testing.T) {
	s := newTestStore(t)

	s.Create("j3", "done early")
	s.Complete("j3", true, nil)
	s.AddProgress("j3", "aps", "straggler", "", "")

	job := s.Get("j3")
	if len(job.Messages) != 1 {
		t.Fatalf("messages = %d, want only the terminal event", len(job.Messages))
	}
}

func TestArtifactBuffersMovedOntoJob(t *testing.T) {
	s := newTestStore(t)

	s.Create("j4", "tile")
	res := &Result{DWGFile: "tile.dwg", DWG: []byte("dwgdata"), PNG: []byte("pngdata")}
	s.Complete("j4", true, res)

	job := s.Get("j4")
	if string(job.DWG) != "dwgdata" || string(job.PNG) != "pngdata" {
		t.Fatalf("artifacts not attached: dwg=%q png=%q", job.DWG, job.PNG)
	}
	if res.DWG != nil || res.PNG != nil {
		t.Fatal("buffers should be cleared from the result payload")
	}
}

func TestFailedJobKeepsNoArtifacts(t *testing.T) {
	s := newTestStore(t)

	s.Create("j5", "tile")
	s.Complete("j5", false, &Result{DWG: []byte("partial"), Errors: []string{"upload failed"}})

	job := s.Get("j5")
	if job.DWG != nil {
		t.Fatalf("failed job holds artifact bytes: %q", job.DWG)
	}
}

func TestExpireRemovesOnlyAgedTerminalJobs(t *testing.T) {
	s := newTestStore(t)

	s.Create("old", "done long ago")
	s.Complete("old", true, nil)
	s.Create("fresh", "just done")
	s.Complete("fresh", true, nil)
	s.Create("active", "still running")

	s.mu.Lock()
	s.jobs["old"].CompletedAt = time.Now().Add(-2 * time.Hour)
	s.mu.Unlock()

	s.expire(time.Now())

	if s.Get("old") != nil {
		t.Fatal("aged terminal job not expired")
	}
	if s.Get("fresh") == nil {
		t.Fatal("fresh terminal job expired too early")
	}
	if s.Get("active") == nil {
		t.Fatal("running job must never expire")
	}
}

func TestNewJobIDIsUnique(t *testing.T) {
	s := newTestStore(t)

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := s.NewJobID()
		if id == "" {
			t.Fatal("empty job id")
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate job id %q", id)
		}
		seen[id] = struct{}{}
	}
}
