package generate

import (
	"context"
	"fmt"
	"strings"

	"fossapp/internal/jobs"

	"fossapp/internal/providers/fx"
)

// PlaygroundRequest is a free-form natural-language drawing request.
type PlaygroundRequest struct {
	Description string `json:"description"`
}

// StartPlayground registers a playground job and runs the retry/escalation
// loop in the background.
func (s *Service) StartPlayground(req PlaygroundRequest) string {
	jobID := s.jobs.NewJobID()
	s.jobs.Create(jobID, truncateLabel(req.Description, 80))
	s.spawn(jobID, func(ctx context.Context) { s.runPlayground(ctx, jobID, req) })
	return jobID
}

// runPlayground is the bounded repair loop: generate a script, execute it,
// and on failure regenerate with the escalated model, the previous script
// and the extracted error context. The loop is stateful, not a blind retry;
// the conversation accumulates across attempts. Cost accumulates across
// every LLM sub-call no matter which attempt wins.
func (s *Service) runPlayground(ctx context.Context, jobID string, req PlaygroundRequest) {
	var (
		totalCost    float64
		conversation []Turn
		prevScript   string
		errorContext string
		errTrail     []string
	)

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		step := fmt.Sprintf("Attempt %d/%d", attempt, s.maxAttempts)

		model := s.baselineModel
		scriptReq := ScriptRequest{Description: req.Description, Model: model}
		if attempt > 1 {
			model = s.escalatedModel
			scriptReq = ScriptRequest{
				Description:    req.Description,
				Model:          model,
				PreviousScript: prevScript,
				ErrorContext:   errorContext,
				Conversation:   conversation,
			}
			s.jobs.AddProgress(jobID, PhaseLLM, "Regenerating script with escalated model", model, step)
		} else {
			s.jobs.AddProgress(jobID, PhaseLLM, "Generating script", model, step)
		}

		scriptRes, err := s.scripts.GenerateScript(ctx, scriptReq)
		if err != nil {
			errTrail = append(errTrail, fmt.Sprintf("attempt %d: script generation: %v", attempt, err))
			errorContext = err.Error()
			continue
		}
		totalCost += scriptRes.CostUSD
		conversation = append(conversation, scriptRes.Reply)
		prevScript = scriptRes.Script
		s.jobs.AddProgress(jobID, PhaseLLM, "Script generated",
			fmt.Sprintf("%d in / %d out tokens", scriptRes.TokensIn, scriptRes.TokensOut), step)

		s.jobs.AddProgress(jobID, PhaseAPS, "Executing script", "", step)
		cadRes, err := s.cad.Execute(ctx, scriptRes.Script, nil, s.progressFunc(jobID))
		if err != nil {
			errTrail = append(errTrail, fmt.Sprintf("attempt %d: CAD automation: %v", attempt, err))
			errorContext = err.Error()
			continue
		}
		if cadRes.Success {
			eur, convErr := s.fx.ToEUR(ctx, totalCost)
			if convErr != nil {
				s.logger.Warn().Err(convErr).Str("job_id", jobID).Msg("currency conversion unavailable")
			}
			result := &jobs.Result{
				DWGFile:   "playground.dwg",
				OutputURL: cadRes.OutputURL,
				Model:     scriptRes.Model,
				Attempts:  attempt,
				CostUSD:   totalCost,
				CostEUR:   eur,
				DWG:       cadRes.DWG,
				PNG:       cadRes.PNG,
			}
			if eur > 0 {
				result.CostDisplay = fx.FormatEUR(eur)
			} else {
				result.CostDisplay = fx.FormatUSD(totalCost)
			}
			s.jobs.Complete(jobID, true, result)
			return
		}

		errorContext = extractErrorContext(cadRes)
		errTrail = append(errTrail, fmt.Sprintf("attempt %d: %s", attempt, errorContext))
		s.jobs.AddProgress(jobID, PhaseAPS, "Execution failed", errorContext, step)
	}

	s.jobs.Complete(jobID, false, &jobs.Result{
		Attempts: s.maxAttempts,
		CostUSD:  totalCost,
		Errors:   errTrail,
	})
}

// extractErrorContext prefers the detailed execution report over the raw
// error list; the report is what gives the model something to repair from.
func extractErrorContext(res *CADResult) string {
	if report := strings.TrimSpace(res.Report); report != "" {
		return report
	}
	if len(res.Errors) > 0 {
		return strings.Join(res.Errors, "; ")
	}
	return "CAD execution failed"
}
