package generate

import (
	"context"
	"errors"
	"fmt"

	"fossapp/internal/jobs"
)

// ErrProjectNotFound is returned by ProjectSource implementations when the
// project or area id is unknown.
var ErrProjectNotFound = errors.New("project not found")

// CaseStudyRequest identifies the project area to generate an XREF drawing
// for.
type CaseStudyRequest struct {
	ProjectID string `json:"project_id"`
	AreaID    string `json:"area_id"`
}

// StartCaseStudy registers a case-study XREF job and runs it in the
// background.
func (s *Service) StartCaseStudy(req CaseStudyRequest) string {
	jobID := s.jobs.NewJobID()
	s.jobs.Create(jobID, "Case study "+req.ProjectID+"/"+req.AreaID)
	s.spawn(jobID, func(ctx context.Context) { s.runCaseStudy(ctx, jobID, req) })
	return jobID
}

// runCaseStudy loads the area metadata, validates the fields the drawing
// depends on, then makes a single long-running CAD call relaying its phase
// callbacks, and finally stores the result in the project's bucket.
func (s *Service) runCaseStudy(ctx context.Context, jobID string, req CaseStudyRequest) {
	s.jobs.AddProgress(jobID, PhaseInit, "Loading project metadata", req.ProjectID, "Step 1/3")

	meta, err := s.projects.ProjectArea(ctx, req.ProjectID, req.AreaID)
	if err != nil {
		if errors.Is(err, ErrProjectNotFound) {
			s.fail(jobID, nil, "project or area not found")
			return
		}
		s.fail(jobID, nil, "failed to load project metadata: "+err.Error())
		return
	}
	if meta.FloorPlanKey == "" {
		s.fail(jobID, nil, "area has no floor plan reference")
		return
	}
	if meta.Bucket == "" {
		s.fail(jobID, nil, "project has no storage bucket configured")
		return
	}

	s.jobs.AddProgress(jobID, PhaseAPS, "Generating XREF drawing", meta.AreaName, "Step 2/3")
	script := BuildXRefScript(meta.FloorPlanKey, meta.AreaName)
	res, err := s.cad.Execute(ctx, script, nil, s.progressFunc(jobID))
	if err != nil {
		s.fail(jobID, nil, "CAD automation unreachable: "+err.Error())
		return
	}
	if !res.Success {
		errs := res.Errors
		if len(errs) == 0 {
			errs = []string{"XREF generation failed"}
		}
		s.jobs.Complete(jobID, false, &jobs.Result{Errors: errs})
		return
	}

	key := fmt.Sprintf("case-studies/%s/%s.dwg", req.ProjectID, req.AreaID)
	s.jobs.AddProgress(jobID, PhaseDrive, "Storing drawing", meta.Bucket+"/"+key, "Step 3/3")
	link, err := s.buckets.Put(ctx, meta.Bucket, key, res.DWG)
	if err != nil {
		s.jobs.Complete(jobID, false, &jobs.Result{
			OutputURL: res.OutputURL,
			Errors:    []string{"bucket upload failed: " + err.Error()},
		})
		return
	}

	s.jobs.Complete(jobID, true, &jobs.Result{
		DWGFile:    req.AreaID + ".dwg",
		OutputURL:  res.OutputURL,
		DriveLinks: []string{link},
		DWG:        res.DWG,
		PNG:        res.PNG,
	})
}
