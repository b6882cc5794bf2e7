package handlers

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/teachpack-backend/internal/types"
)

func TestStatusViewSurfacesCompletedWithErrors(t *testing.T) {
	job := &types.WorkflowJob{
		ID:       uuid.New(),
		Status:   types.JobStatusCompletedWithErrors,
		Stage:    "done",
		Progress: 100,
		Result:   datatypes.JSON(`{"errors": ["group_2: video generation failed"]}`),
	}

	view := statusView(job, true)
	if view.Status != types.JobStatusCompleted {
		t.Fatalf("status=%q, want surfaced as completed", view.Status)
	}
	if !view.HasErrors {
		t.Fatalf("has_errors=false, want true")
	}
	if view.ErrorCount != 1 {
		t.Fatalf("error_count=%d, want 1", view.ErrorCount)
	}
	if len(view.Result) == 0 {
		t.Fatalf("result missing when includeResult is set")
	}
}

func TestStatusViewCleanCompletion(t *testing.T) {
	job := &types.WorkflowJob{
		ID:       uuid.New(),
		Status:   types.JobStatusCompleted,
		Stage:    "done",
		Progress: 100,
		Result:   datatypes.JSON(`{"errors": []}`),
	}

	view := statusView(job, false)
	if view.Status != types.JobStatusCompleted || view.HasErrors || view.ErrorCount != 0 {
		t.Fatalf("clean completion misreported: %+v", view)
	}
	if len(view.Result) != 0 {
		t.Fatalf("result included without includeResult")
	}
}

func TestStatusViewFailedJob(t *testing.T) {
	job := &types.WorkflowJob{
		ID:     uuid.New(),
		Status: types.JobStatusFailed,
		Stage:  "extract_skills",
		Error:  "worker heartbeat lost",
	}

	view := statusView(job, true)
	if view.Status != types.JobStatusFailed {
		t.Fatalf("status=%q, want failed", view.Status)
	}
	if !view.HasErrors {
		t.Fatalf("failed job should report has_errors")
	}
	if view.Error != "worker heartbeat lost" {
		t.Fatalf("error=%q not carried through", view.Error)
	}
}
