package services

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/teachpack-backend/internal/types"
)

func newTestPackService(t *testing.T) *packGenerationService {
	t.Helper()
	svc := NewPackGenerationService(testLogger(t), nil, nil, NewGroupingService(testLogger(t)), NewRosterService(testLogger(t)), nil, nil)
	return svc.(*packGenerationService)
}

func TestDeriveStaleness(t *testing.T) {
	svc := newTestPackService(t)

	fresh := time.Now().Add(-1 * time.Minute)
	stale := time.Now().Add(-45 * time.Minute)

	cases := []struct {
		name       string
		status     string
		heartbeat  *time.Time
		wantStatus string
	}{
		{"fresh_heartbeat_stays_processing", types.JobStatusProcessing, &fresh, types.JobStatusProcessing},
		{"stale_heartbeat_reports_failed", types.JobStatusProcessing, &stale, types.JobStatusFailed},
		{"completed_untouched", types.JobStatusCompleted, &stale, types.JobStatusCompleted},
		{"queued_untouched", types.JobStatusQueued, nil, types.JobStatusQueued},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			job := &types.WorkflowJob{
				ID:          uuid.New(),
				Status:      tc.status,
				HeartbeatAt: tc.heartbeat,
			}
			svc.deriveStaleness(job)
			if job.Status != tc.wantStatus {
				t.Fatalf("status=%q, want %q", job.Status, tc.wantStatus)
			}
		})
	}
}

func TestNegotiationStateStepping(t *testing.T) {
	state := &negotiationState{maxTokens: 512}

	state.applyBudgetError(148)
	if state.maxTokens != 84 {
		t.Fatalf("maxTokens=%d after budget error, want 84", state.maxTokens)
	}
	if state.maxAllowed != 148 {
		t.Fatalf("maxAllowed=%d, want 148", state.maxAllowed)
	}

	// truncation bump is capped below the learned ceiling
	state.applyTruncation()
	if state.maxTokens != 140 {
		t.Fatalf("maxTokens=%d after truncation, want capped 140", state.maxTokens)
	}
	if state.budgetShrinks != 1 || state.truncationBumps != 1 {
		t.Fatalf("shrinks=%d bumps=%d, want one of each", state.budgetShrinks, state.truncationBumps)
	}
}

func TestNegotiationStateBudgetFloor(t *testing.T) {
	state := &negotiationState{maxTokens: 512}
	state.applyBudgetError(16)
	if state.maxTokens != 16 {
		t.Fatalf("maxTokens=%d, want floor 16", state.maxTokens)
	}
}

func TestFallbackQuizFromDiagnostic(t *testing.T) {
	diag := &types.Diagnostic{
		Questions: []types.DiagnosticQuestion{
			{QuestionID: "q1", QuestionText: "Q?", Options: []string{"a", "b"}, CorrectAnswer: "a", SkillID: "s1", Difficulty: "easy", Rationale: "because"},
		},
		TotalQuestions: 1,
	}
	quiz := fallbackQuiz(diag)
	if quiz.TotalQuestions != 1 || len(quiz.Questions) != 1 {
		t.Fatalf("quiz has %d questions, want 1", len(quiz.Questions))
	}
	if quiz.AnswerKey["q1"] != "a" {
		t.Fatalf("answer key missing q1")
	}
	if quiz.Questions[0].Explanation != "because" {
		t.Fatalf("rationale not carried into explanation")
	}
}

func TestFallbackSlidesFromPlan(t *testing.T) {
	plan := &types.PackPlan{
		SlideOutline: []types.SlideOutlineItem{
			{Title: "Intro", KeyPoints: "hello"},
			{Title: "Review", KeyPoints: "recap"},
		},
	}
	slides := fallbackSlides(plan)
	if len(slides.Slides) != 2 {
		t.Fatalf("got %d slides, want 2", len(slides.Slides))
	}
	if slides.Slides[0].SlideID != "slide_1" || slides.Slides[0].Title != "Intro" {
		t.Fatalf("first slide=%+v", slides.Slides[0])
	}
}

func TestFallbackVideoPlaceholder(t *testing.T) {
	summary := &types.LessonSummary{Title: "Fractions", KeyConcepts: []string{"halves"}}
	group := types.GroupProfile{GroupID: "group_1", GroupName: "Group 1"}
	video := fallbackVideo(summary, group)
	if video.Script != "Video unavailable" {
		t.Fatalf("script=%q, want placeholder", video.Script)
	}
	if video.DurationSeconds != 0 {
		t.Fatalf("duration=%d, want 0", video.DurationSeconds)
	}
}

func TestFallbackPlanCoversSkills(t *testing.T) {
	skills := &types.SkillSet{
		Skills: []types.Skill{
			{SkillID: "s1", Name: "Adding", Description: "add fractions"},
			{SkillID: "s2", Name: "Reducing", Description: "reduce fractions"},
		},
	}
	group := types.GroupProfile{GroupID: "group_2", MasteryLevel: "medium"}
	plan := fallbackPlan(group, skills)
	if plan.GroupID != "group_2" {
		t.Fatalf("group_id=%q, want group_2", plan.GroupID)
	}
	if len(plan.QuizBlueprint) != 2 {
		t.Fatalf("blueprint has %d items, want one per skill", len(plan.QuizBlueprint))
	}
	// intro + one per skill + review
	if len(plan.SlideOutline) != 4 {
		t.Fatalf("outline has %d items, want 4", len(plan.SlideOutline))
	}
}
