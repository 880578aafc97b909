package generate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"fossapp/internal/jobs"
)

var errBoom = errors.New("boom")

type fakeScripts struct {
	requests []ScriptRequest
	results  []*ScriptResult
	errs     []error
}

func (f *fakeScripts) GenerateScript(_ context.Context, req ScriptRequest) (*ScriptResult, error) {
	i := len(f.requests)
	f.requests = append(f.requests, req)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.results) {
		return f.results[i], nil
	}
	return &ScriptResult{Script: "(princ)", Model: req.Model, Reply: Turn{Role: "assistant", Content: "(princ)"}}, nil
}

type fakeCAD struct {
	calls   int
	scripts []string
	results []*CADResult
	errs    []error
}

func (f *fakeCAD) Execute(_ context.Context, script string, _ []Asset, progress Progress) (*CADResult, error) {
	i := f.calls
	f.calls++
	f.scripts = append(f.scripts, script)
	if progress != nil {
		progress(PhaseAPS, "Executing work item", "")
	}
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.results) {
		return f.results[i], nil
	}
	return &CADResult{Success: true, DWG: []byte("dwg")}, nil
}

type fakeDrive struct {
	files  []Asset
	result *UploadResult
	err    error
}

func (f *fakeDrive) Upload(_ context.Context, files []Asset) (*UploadResult, error) {
	f.files = append(f.files, files...)
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &UploadResult{Links: []string{"https://drive.example.com/f"}}, nil
}

type fakeFX struct {
	rate float64
	err  error
}

func (f *fakeFX) ToEUR(_ context.Context, usd float64) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return usd * f.rate, nil
}

type fakeImages struct {
	refs []ImageRef
	err  error
}

func (f *fakeImages) Prepare(_ context.Context, refs []ImageRef) ([]Asset, error) {
	f.refs = append(f.refs, refs...)
	if f.err != nil {
		return nil, f.err
	}
	assets := make([]Asset, 0, len(refs))
	for _, ref := range refs {
		assets = append(assets, Asset{Name: ref.Name, MIME: "image/png", Data: []byte("png")})
	}
	return assets, nil
}

type fakeProjects struct {
	meta *ProjectArea
	err  error
}

func (f *fakeProjects) ProjectArea(_ context.Context, _, _ string) (*ProjectArea, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.meta, nil
}

type fakeBuckets struct {
	bucket string
	key    string
	err    error
}

func (f *fakeBuckets) Put(_ context.Context, bucket, key string, _ []byte) (string, error) {
	f.bucket = bucket
	f.key = key
	if f.err != nil {
		return "", f.err
	}
	return "https://" + bucket + "/" + key, nil
}

type testEnv struct {
	store    *jobs.Store
	scripts  *fakeScripts
	cad      *fakeCAD
	drive    *fakeDrive
	fx       *fakeFX
	images   *fakeImages
	projects *fakeProjects
	buckets  *fakeBuckets
	svc      *Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    jobs.NewStore(zerolog.Nop(), time.Hour),
		scripts:  &fakeScripts{},
		cad:      &fakeCAD{},
		drive:    &fakeDrive{},
		fx:       &fakeFX{rate: 0.9},
		images:   &fakeImages{},
		projects: &fakeProjects{},
		buckets:  &fakeBuckets{},
	}
	t.Cleanup(env.store.Close)
	env.svc = NewService(Options{
		Jobs:     env.store,
		Logger:   zerolog.Nop(),
		Scripts:  env.scripts,
		CAD:      env.cad,
		Drive:    env.drive,
		FX:       env.fx,
		Images:   env.images,
		Projects: env.projects,
		Buckets:  env.buckets,
	})
	return env
}

// waitTerminal polls until the job leaves running; workflows started via
// Start* run on their own goroutine.
func waitTerminal(t *testing.T, store *jobs.Store, jobID string) *jobs.Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if job := store.Get(jobID); job != nil && job.Terminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job never reached a terminal state")
	return nil
}

func phases(job *jobs.Job) []string {
	out := make([]string, 0, len(job.Messages))
	for _, m := range job.Messages {
		out = append(out, m.Phase)
	}
	return out
}

func containsPhase(job *jobs.Job, phase string) bool {
	for _, m := range job.Messages {
		if m.Phase == phase {
			return true
		}
	}
	return false
}

func TestSpawnRecoversPanicsIntoFailedJob(t *testing.T) {
	env := newTestEnv(t)

	jobID := env.store.NewJobID()
	env.store.Create(jobID, "panicky")
	env.svc.spawn(jobID, func(context.Context) { panic("exploded") })

	job := waitTerminal(t, env.store, jobID)
	if job.Status != jobs.StatusFailed {
		t.Fatalf("status = %q, want failed", job.Status)
	}
	if len(job.Result.Errors) == 0 || !strings.Contains(job.Result.Errors[0], "exploded") {
		t.Fatalf("errors = %v", job.Result.Errors)
	}
}

func TestUnknownCADRunnerErrorFailsTile(t *testing.T) {
	env := newTestEnv(t)
	env.cad.errs = []error{errors.New("connection refused")}

	jobID := env.svc.StartTile(TileRequest{TileName: "Tile X", Products: []TileProduct{{Name: "P1"}}})
	job := waitTerminal(t, env.store, jobID)

	if job.Status != jobs.StatusFailed {
		t.Fatalf("status = %q, want failed", job.Status)
	}
	if !strings.Contains(job.Result.Errors[0], "connection refused") {
		t.Fatalf("errors = %v", job.Result.Errors)
	}
}
