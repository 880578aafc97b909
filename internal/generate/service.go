// Package generate drives the background generation workflows: it sequences
// the external collaborators (image preprocessing, script generation, CAD
// automation, artifact upload) and reports every phase through the job store
// so SSE subscribers see live status.
package generate

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"fossapp/internal/jobs"
)

// Phase tags used by the workflows. The set is open: each workflow owns its
// vocabulary, and the store reserves "complete"/"error" for itself.
const (
	PhaseInit   = "init"
	PhaseImages = "images"
	PhaseScript = "script"
	PhaseLLM    = "llm"
	PhaseAPS    = "aps"
	PhaseDrive  = "drive"
)

// Progress is the narrow callback relayed into external-call wrappers so
// they can report sub-progress without knowing about jobs.
type Progress func(phase, message, detail string)

// Asset is a named binary blob: a preprocessed raster for the CAD service
// or an artifact handed to the uploader.
type Asset struct {
	Name string
	MIME string
	Data []byte
}

// Turn is one message in the running repair conversation of the playground
// workflow.
type Turn struct {
	Role    string
	Content string
}

// ScriptRequest asks the LLM for an AutoLISP script. PreviousScript,
// ErrorContext and Conversation are only set on repair attempts.
type ScriptRequest struct {
	Description    string
	Model          string
	PreviousScript string
	ErrorContext   string
	Conversation   []Turn
}

// ScriptResult carries the generated script and the spend of this single
// sub-call.
type ScriptResult struct {
	Script    string
	Model     string
	CostUSD   float64
	TokensIn  int
	TokensOut int
	Reply     Turn
}

// ScriptGenerator produces AutoLISP scripts from natural language.
type ScriptGenerator interface {
	GenerateScript(ctx context.Context, req ScriptRequest) (*ScriptResult, error)
}

// CADResult mirrors the CAD automation contract: Success=false is a normal
// execution failure (Errors populated, Report when one could be fetched);
// a non-nil error from Execute means the service itself was unreachable.
type CADResult struct {
	Success   bool
	DWG       []byte
	PNG       []byte
	OutputURL string
	Errors    []string
	Report    string
}

// CADRunner executes a script against the CAD automation service.
type CADRunner interface {
	Execute(ctx context.Context, script string, assets []Asset, progress Progress) (*CADResult, error)
}

// UploadResult reports per-file outcomes of an artifact upload.
type UploadResult struct {
	Links  []string
	Errors []string
}

// Uploader pushes finished artifacts to the user's drive storage.
type Uploader interface {
	Upload(ctx context.Context, files []Asset) (*UploadResult, error)
}

// BucketStore writes one object into a named storage bucket and returns its
// link. Used by the case-study workflow, whose target bucket comes from
// project metadata.
type BucketStore interface {
	Put(ctx context.Context, bucket, key string, data []byte) (string, error)
}

// Converter turns accumulated USD spend into EUR for final reporting.
type Converter interface {
	ToEUR(ctx context.Context, usd float64) (float64, error)
}

// ImagePreparer normalizes fixture images into CAD-ready raster assets.
type ImagePreparer interface {
	Prepare(ctx context.Context, refs []ImageRef) ([]Asset, error)
}

// ImageRef points at one fixture image, either by URL or inline bytes.
type ImageRef struct {
	Name string
	URL  string
	Data []byte
}

// ProjectArea is the metadata the case-study workflow needs before it can
// start: where the floor plan lives and which bucket receives the output.
type ProjectArea struct {
	ProjectName  string
	AreaName     string
	FloorPlanKey string
	Bucket       string
}

// ProjectSource loads project/area metadata. Implementations return
// ErrProjectNotFound when either id is unknown.
type ProjectSource interface {
	ProjectArea(ctx context.Context, projectID, areaID string) (*ProjectArea, error)
}

// Options wires a Service. Projects and Buckets may be nil when no catalog
// database or object store is configured; only the case-study workflow
// needs them.
type Options struct {
	Jobs     *jobs.Store
	Logger   zerolog.Logger
	Scripts  ScriptGenerator
	CAD      CADRunner
	Drive    Uploader
	FX       Converter
	Images   ImagePreparer
	Projects ProjectSource
	Buckets  BucketStore

	BaselineModel  string
	EscalatedModel string
	MaxAttempts    int
}

// Service runs generation workflows as detached background tasks. The HTTP
// layer calls a Start* method, gets a job id back immediately, and never
// waits for the work.
type Service struct {
	jobs     *jobs.Store
	logger   zerolog.Logger
	scripts  ScriptGenerator
	cad      CADRunner
	drive    Uploader
	fx       Converter
	images   ImagePreparer
	projects ProjectSource
	buckets  BucketStore

	baselineModel  string
	escalatedModel string
	maxAttempts    int
}

const (
	defaultBaselineModel  = "gpt-4o-mini"
	defaultEscalatedModel = "gpt-4o"
	defaultMaxAttempts    = 3
)

func NewService(opts Options) *Service {
	s := &Service{
		jobs:           opts.Jobs,
		logger:         opts.Logger,
		scripts:        opts.Scripts,
		cad:            opts.CAD,
		drive:          opts.Drive,
		fx:             opts.FX,
		images:         opts.Images,
		projects:       opts.Projects,
		buckets:        opts.Buckets,
		baselineModel:  opts.BaselineModel,
		escalatedModel: opts.EscalatedModel,
		maxAttempts:    opts.MaxAttempts,
	}
	if s.baselineModel == "" {
		s.baselineModel = defaultBaselineModel
	}
	if s.escalatedModel == "" {
		s.escalatedModel = defaultEscalatedModel
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxAttempts
	}
	return s
}

// HasProjects reports whether the case-study workflow can run.
func (s *Service) HasProjects() bool {
	return s.projects != nil && s.buckets != nil
}

// spawn runs a workflow detached from the originating request. The deferred
// recover is the outer error boundary the HTTP layer relies on: once a job
// id has been handed out, the job must reach a terminal state no matter
// what the workflow does.
func (s *Service) spawn(jobID string, run func(ctx context.Context)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error().Str("job_id", jobID).Interface("panic", r).Msg("workflow panicked")
				s.jobs.Complete(jobID, false, &jobs.Result{
					Errors: []string{fmt.Sprintf("internal error: %v", r)},
				})
			}
		}()
		// Deliberately context.Background: closing the SSE stream or the
		// request ending must not cancel a running generation.
		run(context.Background())
	}()
}

// progressFunc adapts the store to the Progress callback handed into
// external-call wrappers.
func (s *Service) progressFunc(jobID string) Progress {
	return func(phase, message, detail string) {
		s.jobs.AddProgress(jobID, phase, message, detail, "")
	}
}

func truncateLabel(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max-3] + "..."
}
