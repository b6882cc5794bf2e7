package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/teachpack-backend/internal/requestdata"
	"github.com/yungbote/teachpack-backend/internal/services"
	"github.com/yungbote/teachpack-backend/internal/types"
)

const maxUploadBytes = 2 << 20

type WorkflowHandler struct {
	packService   services.PackGenerationService
	rosterService services.RosterService
}

func NewWorkflowHandler(packService services.PackGenerationService, rosterService services.RosterService) *WorkflowHandler {
	return &WorkflowHandler{packService: packService, rosterService: rosterService}
}

func (wh *WorkflowHandler) Submit(c *gin.Context) {
	userID, ok := requestdata.UserIDFrom(c.Request.Context())
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("not authenticated"))
		return
	}

	payload, err := wh.bindPayload(c)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_payload", err)
		return
	}

	job, err := wh.packService.Submit(c.Request.Context(), userID, payload)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "submit_failed", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job": statusView(job, false)})
}

// bindPayload accepts either a JSON body or a multipart form with lesson and
// roster file uploads.
func (wh *WorkflowHandler) bindPayload(c *gin.Context) (types.WorkflowPayload, error) {
	var payload types.WorkflowPayload

	if form, err := c.MultipartForm(); err == nil && form != nil {
		if v := c.PostForm("subject"); v != "" {
			payload.Subject = v
		}
		if v := c.PostForm("num_groups"); v != "" {
			n, pErr := strconv.Atoi(v)
			if pErr != nil {
				return payload, fmt.Errorf("invalid num_groups")
			}
			payload.NumGroups = n
		}
		if fh, err := c.FormFile("lesson"); err == nil {
			raw, rErr := readUpload(fh.Open())
			if rErr != nil {
				return payload, fmt.Errorf("read lesson upload: %w", rErr)
			}
			payload.LessonSource = fh.Filename
			payload.LessonText = string(raw)
		}
		if fh, err := c.FormFile("roster"); err == nil {
			raw, rErr := readUpload(fh.Open())
			if rErr != nil {
				return payload, fmt.Errorf("read roster upload: %w", rErr)
			}
			payload.RosterSource = fh.Filename
			students, pErr := wh.rosterService.Parse(fh.Filename, raw)
			if pErr != nil {
				return payload, pErr
			}
			payload.Students = students
		}
		return payload, nil
	}

	if err := c.ShouldBindJSON(&payload); err != nil {
		return payload, fmt.Errorf("invalid request body")
	}
	return payload, nil
}

func readUpload(f io.ReadCloser, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxUploadBytes))
}

// jobStatusView is the external status shape: completed_with_errors is
// surfaced as completed with has_errors=true.
type jobStatusView struct {
	JobID      uuid.UUID       `json:"job_id"`
	Status     string          `json:"status"`
	Stage      string          `json:"stage"`
	Progress   int             `json:"progress"`
	Message    string          `json:"message"`
	HasErrors  bool            `json:"has_errors"`
	ErrorCount int             `json:"error_count"`
	Error      string          `json:"error,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func statusView(job *types.WorkflowJob, includeResult bool) jobStatusView {
	view := jobStatusView{
		JobID:     job.ID,
		Status:    job.Status,
		Stage:     job.Stage,
		Progress:  job.Progress,
		Message:   job.Message,
		Error:     job.Error,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
	if len(job.Result) > 0 {
		var partial struct {
			Errors []string `json:"errors"`
		}
		if err := json.Unmarshal(job.Result, &partial); err == nil {
			view.ErrorCount = len(partial.Errors)
		}
		if includeResult {
			view.Result = json.RawMessage(job.Result)
		}
	}
	if job.Status == types.JobStatusCompletedWithErrors {
		view.Status = types.JobStatusCompleted
	}
	view.HasErrors = view.ErrorCount > 0 || job.Status == types.JobStatusCompletedWithErrors || job.Status == types.JobStatusFailed
	return view
}

func (wh *WorkflowHandler) GetJob(c *gin.Context) {
	userID, ok := requestdata.UserIDFrom(c.Request.Context())
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("not authenticated"))
		return
	}
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", fmt.Errorf("invalid job id"))
		return
	}
	job, err := wh.packService.GetJob(c.Request.Context(), userID, jobID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "job_lookup_failed", err)
		return
	}
	if job == nil {
		RespondError(c, http.StatusNotFound, "not_found", fmt.Errorf("job not found"))
		return
	}
	RespondOK(c, gin.H{"job": statusView(job, true)})
}

func (wh *WorkflowHandler) GetResult(c *gin.Context) {
	userID, ok := requestdata.UserIDFrom(c.Request.Context())
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("not authenticated"))
		return
	}
	jobID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", fmt.Errorf("invalid job id"))
		return
	}
	result, job, err := wh.packService.GetResult(c.Request.Context(), userID, jobID)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "result_lookup_failed", err)
		return
	}
	if job == nil {
		RespondError(c, http.StatusNotFound, "not_found", fmt.Errorf("job not found"))
		return
	}
	if result == nil {
		c.JSON(http.StatusConflict, gin.H{
			"error":  "result not ready",
			"status": job.Status,
			"stage":  job.Stage,
		})
		return
	}
	RespondOK(c, gin.H{"status": job.Status, "result": result})
}

func (wh *WorkflowHandler) ListJobs(c *gin.Context) {
	userID, ok := requestdata.UserIDFrom(c.Request.Context())
	if !ok {
		RespondError(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("not authenticated"))
		return
	}
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	jobs, err := wh.packService.ListJobs(c.Request.Context(), userID, limit)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "job_list_failed", err)
		return
	}
	views := make([]jobStatusView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, statusView(job, false))
	}
	RespondOK(c, gin.H{"jobs": views})
}
