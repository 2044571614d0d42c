package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/sitegen/internal/api/response"
	"github.com/kiranshivaraju/sitegen/internal/pipeline"
	"github.com/kiranshivaraju/sitegen/pkg/models"
)

// PipelineStarter dispatches a pipeline run for a new job.
type PipelineStarter interface {
	Start(id, sourceRef string, cfg models.JobConfig, steps []pipeline.Step) (models.ProgressSnapshot, error)
}

// PipelineCanceller aborts a running pipeline by job id.
type PipelineCanceller interface {
	Cancel(id string) bool
}

type demoRequest struct {
	RepositoryURL string            `json:"repository_url" validate:"required"`
	Config        *jobConfigRequest `json:"config"`
}

// NewDemoHandler returns an http.HandlerFunc for POST /api/v1/demo. It starts
// a simulated generation run whose stages are stepDelay apart.
func NewDemoHandler(runner PipelineStarter, stepDelay time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req demoRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		source, err := NormalizeRepositoryURL(req.RepositoryURL)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"repository_url must be a git repository URL", map[string][]string{
					"repository_url": {err.Error()},
				})
			return
		}

		cfg := req.Config.toJobConfig()
		snap, err := runner.Start(uuid.NewString(), source, cfg, pipeline.DemoSteps(stepDelay, cfg))
		if err != nil {
			if errors.Is(err, pipeline.ErrRunnerClosed) {
				response.Error(w, http.StatusServiceUnavailable, "SHUTTING_DOWN",
					"Server is shutting down", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.Accepted(w, snap)
	}
}

// NewCancelDemoHandler returns an http.HandlerFunc for POST /api/v1/demo/{jobID}/cancel.
// The cancelled job completes as failed with reason "cancelled".
func NewCancelDemoHandler(runner PipelineCanceller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "jobID")
		if !runner.Cancel(id) {
			response.Error(w, http.StatusNotFound, "PIPELINE_NOT_RUNNING",
				"No running pipeline for this job", nil)
			return
		}

		response.Accepted(w, map[string]any{
			"jobId":     id,
			"cancelled": true,
		})
	}
}
