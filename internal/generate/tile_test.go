package generate

import (
	"strings"
	"testing"

	"fossapp/internal/jobs"
)

func TestTileHappyPath(t *testing.T) {
	env := newTestEnv(t)
	env.cad.results = []*CADResult{{
		Success:   true,
		DWG:       []byte("dwg-bytes"),
		PNG:       []byte("png-bytes"),
		OutputURL: "https://aps.example.com/tile.dwg",
	}}
	env.drive.result = &UploadResult{Links: []string{"https://drive.example.com/a", "https://drive.example.com/b"}}

	req := TileRequest{
		TileName: "Kitchen Wall A",
		Products: []TileProduct{
			{Name: "Sink", ImageURL: "https://cdn.example.com/sink.png", X: 0, Y: 0, Width: 60, Height: 60},
			{Name: "Tap", ImageURL: "https://cdn.example.com/tap.png", X: 1, Y: 0, Width: 20, Height: 30},
		},
	}
	jobID := env.svc.StartTile(req)
	job := waitTerminal(t, env.store, jobID)

	if job.Status != jobs.StatusSucceeded {
		t.Fatalf("status = %q (errors: %v)", job.Status, job.Result.Errors)
	}
	res := job.Result
	if res.DWGFile != "Kitchen Wall A.dwg" || res.PNGFile != "Kitchen Wall A.png" {
		t.Errorf("artifact names = %q / %q", res.DWGFile, res.PNGFile)
	}
	if res.OutputURL != "https://aps.example.com/tile.dwg" {
		t.Errorf("output url = %q", res.OutputURL)
	}
	if len(res.DriveLinks) != 2 {
		t.Errorf("drive links = %v", res.DriveLinks)
	}
	if string(job.DWG) != "dwg-bytes" || string(job.PNG) != "png-bytes" {
		t.Error("artifact bytes not retained on the job")
	}

	// Both product images went through preprocessing and the prepared
	// assets reached the CAD call.
	if len(env.images.refs) != 2 {
		t.Errorf("image refs = %d, want 2", len(env.images.refs))
	}
	if len(env.cad.scripts) != 1 || !strings.Contains(env.cad.scripts[0], "Kitchen Wall A") {
		t.Errorf("script did not mention the tile name: %q", env.cad.scripts)
	}
	// Uploader got the dwg and the png.
	if len(env.drive.files) != 2 {
		t.Errorf("uploaded files = %d, want 2", len(env.drive.files))
	}

	got := phases(job)
	want := []string{PhaseInit, PhaseImages, PhaseImages, PhaseScript, PhaseAPS, PhaseAPS, PhaseDrive, jobs.PhaseComplete}
	if len(got) != len(want) {
		t.Fatalf("phases = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("phases = %v, want %v", got, want)
		}
	}
}

func TestTileSkipsImagePhaseWithoutImageURLs(t *testing.T) {
	env := newTestEnv(t)

	jobID := env.svc.StartTile(TileRequest{
		TileName: "Bare Tile",
		Products: []TileProduct{{Name: "Shelf"}},
	})
	job := waitTerminal(t, env.store, jobID)

	if job.Status != jobs.StatusSucceeded {
		t.Fatalf("status = %q", job.Status)
	}
	if len(env.images.refs) != 0 {
		t.Errorf("image preparer called for a tile without image urls")
	}
	if containsPhase(job, PhaseImages) {
		t.Errorf("phases = %v, want no image phase", phases(job))
	}
}

func TestTileImagePreprocessingFailureIsTerminal(t *testing.T) {
	env := newTestEnv(t)
	env.images.err = errBoom

	jobID := env.svc.StartTile(TileRequest{
		TileName: "Tile",
		Products: []TileProduct{{Name: "P", ImageURL: "https://cdn.example.com/p.png"}},
	})
	job := waitTerminal(t, env.store, jobID)

	if job.Status != jobs.StatusFailed {
		t.Fatalf("status = %q, want failed", job.Status)
	}
	if env.cad.calls != 0 {
		t.Errorf("cad called after image failure")
	}
	if !strings.Contains(job.Result.Errors[0], "image preprocessing failed") {
		t.Errorf("errors = %v", job.Result.Errors)
	}
}

func TestTileUploadFailureKeepsOutputURL(t *testing.T) {
	env := newTestEnv(t)
	env.cad.results = []*CADResult{{
		Success:   true,
		DWG:       []byte("dwg"),
		OutputURL: "https://aps.example.com/tile.dwg",
	}}
	env.drive.result = &UploadResult{Errors: []string{"quota exceeded"}}

	jobID := env.svc.StartTile(TileRequest{TileName: "Tile", Products: []TileProduct{{Name: "P"}}})
	job := waitTerminal(t, env.store, jobID)

	if job.Status != jobs.StatusFailed {
		t.Fatalf("status = %q, want failed on upload error", job.Status)
	}
	// The drawing itself succeeded; its link must survive.
	if job.Result.OutputURL != "https://aps.example.com/tile.dwg" {
		t.Errorf("output url = %q, want retained", job.Result.OutputURL)
	}
	found := false
	for _, e := range job.Result.Errors {
		if strings.Contains(e, "quota exceeded") {
			found = true
		}
	}
	if !found {
		t.Errorf("errors = %v, want uploader detail", job.Result.Errors)
	}
}

func TestTileCADFailureReportsErrors(t *testing.T) {
	env := newTestEnv(t)
	env.cad.results = []*CADResult{{Success: false, Errors: []string{"bad script", "timeout"}}}

	jobID := env.svc.StartTile(TileRequest{TileName: "Tile", Products: []TileProduct{{Name: "P"}}})
	job := waitTerminal(t, env.store, jobID)

	if job.Status != jobs.StatusFailed {
		t.Fatalf("status = %q, want failed", job.Status)
	}
	if len(job.Result.Errors) != 2 {
		t.Errorf("errors = %v", job.Result.Errors)
	}
	if env.drive.files != nil {
		t.Error("uploader called after CAD failure")
	}
}
