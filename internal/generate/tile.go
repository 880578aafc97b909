package generate

import (
	"context"
	"fmt"

	"fossapp/internal/jobs"
)

// StartTile registers a tile generation job and runs the workflow in the
// background. The returned job id is the caller's only handle.
func (s *Service) StartTile(req TileRequest) string {
	jobID := s.jobs.NewJobID()
	s.jobs.Create(jobID, req.TileName)
	s.spawn(jobID, func(ctx context.Context) { s.runTile(ctx, jobID, req) })
	return jobID
}

// runTile drives images -> script -> aps -> drive. Every phase failure is
// terminal; there is no retry for tiles.
func (s *Service) runTile(ctx context.Context, jobID string, req TileRequest) {
	s.jobs.AddProgress(jobID, PhaseInit, "Starting tile generation", req.TileName, "Step 1/4")

	refs := make([]ImageRef, 0, len(req.Products))
	for _, p := range req.Products {
		if p.ImageURL == "" {
			continue
		}
		refs = append(refs, ImageRef{Name: p.Name, URL: p.ImageURL})
	}

	var assets []Asset
	if len(refs) > 0 {
		s.jobs.AddProgress(jobID, PhaseImages, "Preprocessing product images", fmt.Sprintf("%d images", len(refs)), "Step 1/4")
		prepared, err := s.images.Prepare(ctx, refs)
		if err != nil {
			s.fail(jobID, nil, "image preprocessing failed: "+err.Error())
			return
		}
		assets = prepared
		s.jobs.AddProgress(jobID, PhaseImages, "Images ready", fmt.Sprintf("%d assets", len(assets)), "Step 1/4")
	}

	s.jobs.AddProgress(jobID, PhaseScript, "Building drawing script", "", "Step 2/4")
	script := BuildTileScript(req, assets)

	s.jobs.AddProgress(jobID, PhaseAPS, "Submitting to CAD automation", "", "Step 3/4")
	res, err := s.cad.Execute(ctx, script, assets, s.progressFunc(jobID))
	if err != nil {
		s.fail(jobID, nil, "CAD automation unreachable: "+err.Error())
		return
	}
	if !res.Success {
		errs := res.Errors
		if len(errs) == 0 {
			errs = []string{"CAD execution failed"}
		}
		s.jobs.Complete(jobID, false, &jobs.Result{Errors: errs})
		return
	}

	result := &jobs.Result{
		DWGFile:   req.TileName + ".dwg",
		PNGFile:   req.TileName + ".png",
		OutputURL: res.OutputURL,
		DWG:       res.DWG,
		PNG:       res.PNG,
	}

	s.jobs.AddProgress(jobID, PhaseDrive, "Uploading to drive", "", "Step 4/4")
	files := []Asset{{Name: result.DWGFile, MIME: "application/octet-stream", Data: res.DWG}}
	if len(res.PNG) > 0 {
		files = append(files, Asset{Name: result.PNGFile, MIME: "image/png", Data: res.PNG})
	}
	up, err := s.drive.Upload(ctx, files)
	if err != nil || len(up.Errors) > 0 {
		// The drawing itself succeeded; surface its link so the user is
		// not fully blocked by a drive outage.
		errs := []string{"drive upload failed"}
		if err != nil {
			errs = append(errs, err.Error())
		} else {
			errs = append(errs, up.Errors...)
		}
		s.jobs.Complete(jobID, false, &jobs.Result{
			OutputURL: res.OutputURL,
			Errors:    errs,
		})
		return
	}
	result.DriveLinks = up.Links

	s.jobs.Complete(jobID, true, result)
}

func (s *Service) fail(jobID string, base *jobs.Result, errs ...string) {
	if base == nil {
		base = &jobs.Result{}
	}
	base.Errors = append(base.Errors, errs...)
	s.jobs.Complete(jobID, false, base)
}
