package generate

import (
	"strings"
	"testing"

	"fossapp/internal/jobs"
)

func TestCaseStudyHappyPath(t *testing.T) {
	env := newTestEnv(t)
	env.projects.meta = &ProjectArea{
		ProjectName:  "Harbor Offices",
		AreaName:     "Lobby",
		FloorPlanKey: "plans/harbor/lobby.dwg",
		Bucket:       "harbor-artifacts",
	}
	env.cad.results = []*CADResult{{Success: true, DWG: []byte("dwg"), OutputURL: "https://aps.example.com/xref.dwg"}}

	jobID := env.svc.StartCaseStudy(CaseStudyRequest{ProjectID: "p-1", AreaID: "a-2"})
	job := waitTerminal(t, env.store, jobID)

	if job.Status != jobs.StatusSucceeded {
		t.Fatalf("status = %q (errors: %v)", job.Status, job.Result.Errors)
	}
	if env.buckets.bucket != "harbor-artifacts" {
		t.Errorf("bucket = %q", env.buckets.bucket)
	}
	if env.buckets.key != "case-studies/p-1/a-2.dwg" {
		t.Errorf("key = %q", env.buckets.key)
	}
	if len(job.Result.DriveLinks) != 1 || !strings.Contains(job.Result.DriveLinks[0], "harbor-artifacts") {
		t.Errorf("links = %v", job.Result.DriveLinks)
	}
	if len(env.cad.scripts) != 1 || !strings.Contains(env.cad.scripts[0], "plans/harbor/lobby.dwg") {
		t.Errorf("script did not attach the floor plan: %q", env.cad.scripts)
	}
}

func TestCaseStudyValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		meta    *ProjectArea
		err     error
		wantErr string
	}{
		{
			name:    "unknown project",
			err:     ErrProjectNotFound,
			wantErr: "project or area not found",
		},
		{
			name:    "missing floor plan",
			meta:    &ProjectArea{AreaName: "Lobby", Bucket: "b"},
			wantErr: "area has no floor plan reference",
		},
		{
			name:    "missing bucket",
			meta:    &ProjectArea{AreaName: "Lobby", FloorPlanKey: "plans/x.dwg"},
			wantErr: "project has no storage bucket configured",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.projects.meta = tc.meta
			env.projects.err = tc.err

			jobID := env.svc.StartCaseStudy(CaseStudyRequest{ProjectID: "p", AreaID: "a"})
			job := waitTerminal(t, env.store, jobID)

			if job.Status != jobs.StatusFailed {
				t.Fatalf("status = %q, want failed", job.Status)
			}
			if env.cad.calls != 0 {
				t.Error("cad called despite failed validation")
			}
			if len(job.Result.Errors) == 0 || job.Result.Errors[0] != tc.wantErr {
				t.Errorf("errors = %v, want %q", job.Result.Errors, tc.wantErr)
			}
		})
	}
}

func TestCaseStudyBucketUploadFailureKeepsOutputURL(t *testing.T) {
	env := newTestEnv(t)
	env.projects.meta = &ProjectArea{
		AreaName:     "Lobby",
		FloorPlanKey: "plans/x.dwg",
		Bucket:       "b",
	}
	env.cad.results = []*CADResult{{Success: true, DWG: []byte("dwg"), OutputURL: "https://aps.example.com/xref.dwg"}}
	env.buckets.err = errBoom

	jobID := env.svc.StartCaseStudy(CaseStudyRequest{ProjectID: "p", AreaID: "a"})
	job := waitTerminal(t, env.store, jobID)

	if job.Status != jobs.StatusFailed {
		t.Fatalf("status = %q, want failed", job.Status)
	}
	if job.Result.OutputURL != "https://aps.example.com/xref.dwg" {
		t.Errorf("output url = %q, want retained", job.Result.OutputURL)
	}
}

func TestHasProjects(t *testing.T) {
	env := newTestEnv(t)
	if !env.svc.HasProjects() {
		t.Error("HasProjects = false with both sources wired")
	}
	bare := NewService(Options{Jobs: env.store})
	if bare.HasProjects() {
		t.Error("HasProjects = true without project metadata source")
	}
}
