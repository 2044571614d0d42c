package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/sitegen/internal/api/response"
	"github.com/kiranshivaraju/sitegen/pkg/models"
)

// JobTracker defines the tracker operations the job handlers depend on.
type JobTracker interface {
	CreateJob(id, sourceRef string, cfg models.JobConfig) models.ProgressSnapshot
	UpdateProgress(id string, u models.ProgressUpdate) bool
	CompleteJob(id string, success bool) bool
	RefineEstimate(id string, fileCount int) bool
	JobStatus(id string) *models.ProgressSnapshot
	JobHistory(id string) ([]models.StageHistoryEntry, bool)
	JobMetrics(id string) *models.JobMetrics
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterValidation("stage", func(fl validator.FieldLevel) bool {
		return models.Stage(fl.Field().String()).Known()
	})
	return v
}

type jobConfigRequest struct {
	MaxFiles      *int   `json:"max_files" validate:"omitempty,min=1,max=100000"`
	AnalysisDepth string `json:"analysis_depth" validate:"omitempty,oneof=shallow medium deep"`
	EnableVisuals *bool  `json:"enable_visuals"`
	EnableAI      *bool  `json:"enable_ai"`
	TimeoutMs     *int64 `json:"timeout_ms" validate:"omitempty,min=1000"`
}

// toJobConfig overlays the fields the producer set on the default config.
func (r *jobConfigRequest) toJobConfig() models.JobConfig {
	cfg := models.DefaultJobConfig()
	if r == nil {
		return cfg
	}
	if r.MaxFiles != nil {
		cfg.MaxFiles = *r.MaxFiles
	}
	if r.AnalysisDepth != "" {
		cfg.AnalysisDepth = r.AnalysisDepth
	}
	if r.EnableVisuals != nil {
		cfg.EnableVisuals = *r.EnableVisuals
	}
	if r.EnableAI != nil {
		cfg.EnableAI = *r.EnableAI
	}
	if r.TimeoutMs != nil {
		cfg.TimeoutMs = *r.TimeoutMs
	}
	return cfg
}

type createJobRequest struct {
	ID            string            `json:"id" validate:"omitempty,max=128,printascii"`
	RepositoryURL string            `json:"repository_url" validate:"required"`
	Config        *jobConfigRequest `json:"config"`
}

type progressRequest struct {
	Stage    string         `json:"stage" validate:"omitempty,stage"`
	Progress *int           `json:"progress"`
	Message  string         `json:"message" validate:"max=1024"`
	Details  map[string]any `json:"details"`
}

type completeRequest struct {
	Success *bool `json:"success" validate:"required"`
}

type estimateRequest struct {
	FileCount *int `json:"file_count" validate:"required,min=0"`
}

// NewCreateJobHandler returns an http.HandlerFunc for POST /api/v1/jobs.
func NewCreateJobHandler(t JobTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createJobRequest
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

		id := req.ID
		if id == "" {
			id = uuid.NewString()
		}

		snap := t.CreateJob(id, source, req.Config.toJobConfig())
		response.Created(w, snap)
	}
}

// NewUpdateProgressHandler returns an http.HandlerFunc for POST /api/v1/jobs/{jobID}/progress.
func NewUpdateProgressHandler(t JobTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req progressRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		id := chi.URLParam(r, "jobID")
		ok := t.UpdateProgress(id, models.ProgressUpdate{
			Stage:    models.Stage(req.Stage),
			Progress: req.Progress,
			Message:  req.Message,
			Details:  req.Details,
		})
		if !ok {
			jobNotFound(w)
			return
		}
		response.Accepted(w, map[string]string{"jobId": id})
	}
}

// NewCompleteJobHandler returns an http.HandlerFunc for POST /api/v1/jobs/{jobID}/complete.
func NewCompleteJobHandler(t JobTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req completeRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		id := chi.URLParam(r, "jobID")
		if !t.CompleteJob(id, *req.Success) {
			jobNotFound(w)
			return
		}
		response.Accepted(w, map[string]any{"jobId": id, "success": *req.Success})
	}
}

// NewRefineEstimateHandler returns an http.HandlerFunc for POST /api/v1/jobs/{jobID}/estimate.
func NewRefineEstimateHandler(t JobTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req estimateRequest
		if !decodeAndValidate(w, r, &req) {
			return
		}

		id := chi.URLParam(r, "jobID")
		if !t.RefineEstimate(id, *req.FileCount) {
			jobNotFound(w)
			return
		}
		response.Accepted(w, map[string]any{"jobId": id, "fileCount": *req.FileCount})
	}
}

// NewJobStatusHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
func NewJobStatusHandler(t JobTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := t.JobStatus(chi.URLParam(r, "jobID"))
		if snap == nil {
			jobNotFound(w)
			return
		}
		response.JSON(w, snap)
	}
}

// NewJobHistoryHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}/history.
func NewJobHistoryHandler(t JobTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "jobID")
		history, ok := t.JobHistory(id)
		if !ok {
			jobNotFound(w)
			return
		}
		response.JSON(w, map[string]any{"jobId": id, "stages": history})
	}
}

// NewJobMetricsHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}/metrics.
func NewJobMetricsHandler(t JobTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m := t.JobMetrics(chi.URLParam(r, "jobID"))
		if m == nil {
			jobNotFound(w)
			return
		}
		response.JSON(w, m)
	}
}

func jobNotFound(w http.ResponseWriter) {
	response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
}

// decodeAndValidate decodes the JSON body into dst and runs struct validation.
// It writes a 400 and returns false on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return false
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
			return false
		}
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
			"Request validation failed", validationDetails(verrs))
		return false
	}
	return true
}

func validationDetails(verrs validator.ValidationErrors) map[string][]string {
	details := make(map[string][]string, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		details[field] = append(details[field], validationMessage(fe))
	}
	return details
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "stage":
		return fe.Field() + " must be a known pipeline stage"
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	case "min":
		return fe.Field() + " must be at least " + fe.Param()
	case "max":
		return fe.Field() + " must be at most " + fe.Param()
	default:
		return fe.Field() + " is invalid"
	}
}
