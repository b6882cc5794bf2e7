package services

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/teachpack-backend/internal/sse"
	"github.com/yungbote/teachpack-backend/internal/types"
)

// memJobRepo keeps workflow jobs in memory and applies UpdateFields the way
// the gorm repo would, so processJob can be exercised end to end.
type memJobRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*types.WorkflowJob
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: map[uuid.UUID]*types.WorkflowJob{}}
}

func (m *memJobRepo) Create(ctx context.Context, tx *gorm.DB, jobs []*types.WorkflowJob) ([]*types.WorkflowJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range jobs {
		m.jobs[job.ID] = job
	}
	return jobs, nil
}

func (m *memJobRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.WorkflowJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[id], nil
}

func (m *memJobRepo) ListByOwner(ctx context.Context, tx *gorm.DB, ownerUserID uuid.UUID, limit int) ([]*types.WorkflowJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*types.WorkflowJob{}
	for _, job := range m.jobs {
		if job.OwnerUserID == ownerUserID {
			out = append(out, job)
		}
	}
	return out, nil
}

func (m *memJobRepo) ClaimNextRunnable(ctx context.Context, tx *gorm.DB, workerID string, maxAttempts int, retryDelay time.Duration, staleProcessing time.Duration) (*types.WorkflowJob, error) {
	return nil, nil
}

func (m *memJobRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil
	}
	for k, v := range updates {
		switch k {
		case "status":
			job.Status, _ = v.(string)
		case "stage":
			job.Stage, _ = v.(string)
		case "message":
			job.Message, _ = v.(string)
		case "error":
			job.Error, _ = v.(string)
		case "progress":
			if n, ok := v.(int); ok {
				job.Progress = n
			}
		case "result":
			if raw, ok := v.(datatypes.JSON); ok {
				job.Result = raw
			}
		}
	}
	return nil
}

func (m *memJobRepo) Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[id]; ok {
		now := time.Now()
		job.HeartbeatAt = &now
	}
	return nil
}

func (m *memJobRepo) get(id uuid.UUID) *types.WorkflowJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[id]
}

// fakeCoverService returns stable media URLs without touching the filesystem.
type fakeCoverService struct{}

func (f *fakeCoverService) RenderCover(title, groupName, masteryLevel string) (bytes.Buffer, error) {
	return bytes.Buffer{}, nil
}

func (f *fakeCoverService) SaveCover(jobID uuid.UUID, groupID, title, groupName, masteryLevel string) (string, []byte, error) {
	return "/media/covers/" + jobID.String() + "/" + groupID + ".png", []byte("cover-png"), nil
}

func (f *fakeCoverService) SaveThumbnail(jobID uuid.UUID, groupID string, cover []byte) (string, error) {
	return "/media/thumbnails/" + jobID.String() + "/" + groupID + ".png", nil
}

// Canned completions, one valid document per call type.
const (
	cannedLessonSummary = `{"title": "Fractions", "subject": "Math", "grade": "5", "key_concepts": ["halves", "quarters"], "definitions": {}, "examples": [], "lesson_content": "Adding and comparing simple fractions."}`

	cannedSkillSet = `{"skills": [{"skill_id": "s1", "name": "Adding fractions", "description": "Add fractions with like denominators", "weight": 0.6, "is_prerequisite": false}, {"skill_id": "s2", "name": "Comparing fractions", "description": "Order fractions on a number line", "weight": 0.4, "is_prerequisite": false}], "skill_dependencies": {}}`

	cannedDiagnostic = `{"questions": [{"question_id": "q1", "question_text": "1/4 + 2/4 = ?", "options": ["3/4", "3/8", "2/4", "1"], "correct_answer": "3/4", "skill_id": "s1", "difficulty": "easy", "rationale": "Add numerators"}, {"question_id": "q2", "question_text": "Which is larger, 1/3 or 1/2?", "options": ["1/3", "1/2"], "correct_answer": "1/2", "skill_id": "s2", "difficulty": "easy", "rationale": "Halves are larger than thirds"}], "total_questions": 2, "skills_covered": ["s1", "s2"]}`

	cannedGroupProfile = `{"group_id": "group_1", "group_name": "Fraction Builders", "description": "Working on the basics", "mastery_level": "medium", "skill_mastery": {}, "common_misconceptions": [], "learning_pace": "moderate", "students": [], "recommended_activities": ["fraction strips"]}`

	cannedPackPlan = `{"group_id": "group_1", "learning_objectives": ["Add like fractions"], "slide_outline": [{"title": "Intro", "key_points": "What a fraction is"}, {"title": "Practice", "key_points": "Worked examples"}], "quiz_blueprint": [{"skill_id": "s1", "difficulty": "easy"}], "estimated_time": 25, "differentiation_strategy": "Manipulatives first"}`

	cannedQuiz = `{"questions": [{"question_id": "gq1", "question_text": "2/5 + 1/5 = ?", "options": ["3/5", "3/10"], "correct_answer": "3/5", "skill_id": "s1", "difficulty": "easy", "hint": "Add the tops", "explanation": "Denominators match"}], "practice_exercises": [], "answer_key": {"gq1": "3/5"}, "total_questions": 1, "estimated_time": 10}`

	cannedSlides = `{"slides": [{"slide_id": "slide_1", "title": "Intro", "content": "Fractions name equal parts", "visual_notes": "", "speaker_notes": ""}]}`

	cannedVideo = `{"title": "Fractions in a minute", "duration_seconds": 60, "script": "Today we add fractions with like denominators.", "visual_description": "Pie charts", "key_concepts": ["halves"]}`
)

// routingBackend answers each chat completion by matching the user prompt,
// so one httptest server can serve the whole pipeline. The two failure
// switches drive the degradation paths.
type routingBackend struct {
	mu         sync.Mutex
	videoCalls int

	failSkills     bool
	failVideoAfter int // fail every video call after the Nth; 0 disables
}

func (rb *routingBackend) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatCompletionsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var user string
		for _, m := range req.Messages {
			if m.Role == "user" {
				user = m.Content
			}
		}

		reply := func(content string) {
			respondContent(content)(w, req)
		}

		switch {
		case strings.Contains(user, "Summarize this lesson"):
			reply(cannedLessonSummary)
		case strings.Contains(user, "Extract the discrete skills"):
			if rb.failSkills {
				reply("not json at all")
				return
			}
			reply(cannedSkillSet)
		case strings.Contains(user, "Create a diagnostic quiz"):
			reply(cannedDiagnostic)
		case strings.Contains(user, "Write a profile for this group"):
			reply(cannedGroupProfile)
		case strings.Contains(user, "Plan a teaching pack"):
			reply(cannedPackPlan)
		case strings.Contains(user, "Write a quiz for this group"):
			reply(cannedQuiz)
		case strings.Contains(user, "Write the slides"):
			reply(cannedSlides)
		case strings.Contains(user, "Script a short explainer"):
			rb.mu.Lock()
			rb.videoCalls++
			n := rb.videoCalls
			rb.mu.Unlock()
			if rb.failVideoAfter > 0 && n > rb.failVideoAfter {
				reply("not json at all")
				return
			}
			reply(cannedVideo)
		default:
			reply("{}")
		}
	}
}

func newPipelineTestService(t *testing.T, rb *routingBackend) (*packGenerationService, *memJobRepo) {
	t.Helper()
	// one group at a time makes per-group ordering deterministic
	t.Setenv("WORKER_GROUP_CONCURRENCY", "1")

	srv := httptest.NewServer(rb.handler())
	t.Cleanup(srv.Close)
	client := NewOpenAIClientForTest(testLogger(t), srv.URL, "test-model", 0)
	negotiator := NewNegotiator(testLogger(t), client, nil)

	repo := newMemJobRepo()
	notifier := NewJobNotifier(testLogger(t), sse.NewSSEHub(testLogger(t)), nil)
	svc := NewPackGenerationService(
		testLogger(t),
		repo,
		negotiator,
		NewGroupingService(testLogger(t)),
		NewRosterService(testLogger(t)),
		&fakeCoverService{},
		notifier,
	)
	return svc.(*packGenerationService), repo
}

func queueProcessingJob(t *testing.T, repo *memJobRepo, payload types.WorkflowPayload) *types.WorkflowJob {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	job := &types.WorkflowJob{
		ID:          uuid.New(),
		OwnerUserID: uuid.New(),
		JobType:     types.JobTypeTeachingPackWorkflow,
		Status:      types.JobStatusProcessing,
		Stage:       "queued",
		Payload:     datatypes.JSON(raw),
	}
	if _, err := repo.Create(context.Background(), nil, []*types.WorkflowJob{job}); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

// A shared stage that exhausts its retries fails the whole job: no groups,
// no packs, no result blob.
func TestProcessJobSharedStageFailureFailsJob(t *testing.T) {
	rb := &routingBackend{failSkills: true}
	svc, repo := newPipelineTestService(t, rb)

	job := queueProcessingJob(t, repo, types.WorkflowPayload{
		LessonText: "Fractions: halves, quarters, and how to add them.",
		Subject:    "Math",
		NumGroups:  2,
		Students:   []string{"Alice", "Bob", "Carol", "Dave"},
	})

	svc.processJob(context.Background(), job)

	stored := repo.get(job.ID)
	if stored.Status != types.JobStatusFailed {
		t.Fatalf("status=%q, want failed", stored.Status)
	}
	if stored.Stage != "extract_skills" {
		t.Fatalf("stage=%q, want extract_skills", stored.Stage)
	}
	if stored.Error == "" {
		t.Fatalf("failed job carries no error")
	}
	if len(stored.Result) != 0 {
		t.Fatalf("failed job stored a result: %s", stored.Result)
	}
}

// A per-group stage failure degrades only that group's artifact: the job
// finishes completed_with_errors, the broken group ships the fallback video,
// and the other group is fully populated.
func TestProcessJobGroupStageFailureDegradesOneGroup(t *testing.T) {
	rb := &routingBackend{failVideoAfter: 1}
	svc, repo := newPipelineTestService(t, rb)

	job := queueProcessingJob(t, repo, types.WorkflowPayload{
		LessonText: "Fractions: halves, quarters, and how to add them.",
		Subject:    "Math",
		NumGroups:  2,
		Students:   []string{"Alice", "Bob", "Carol", "Dave"},
	})

	svc.processJob(context.Background(), job)

	stored := repo.get(job.ID)
	if stored.Status != types.JobStatusCompletedWithErrors {
		t.Fatalf("status=%q, want completed_with_errors", stored.Status)
	}
	if stored.Progress != 100 {
		t.Fatalf("progress=%d, want 100", stored.Progress)
	}

	var result types.WorkflowResult
	if err := json.Unmarshal(stored.Result, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(result.TeachingPacks) != 2 {
		t.Fatalf("got %d teaching packs, want 2", len(result.TeachingPacks))
	}

	intact := result.TeachingPacks[0]
	if intact.PackPlan == nil || intact.Quiz == nil || intact.Slides == nil || intact.Video == nil {
		t.Fatalf("first group pack incomplete: %+v", intact)
	}
	if len(intact.Errors) != 0 {
		t.Fatalf("first group recorded errors: %v", intact.Errors)
	}
	if intact.Video.Script == "Video unavailable" {
		t.Fatalf("first group got the fallback video")
	}
	wantThumb := "/media/thumbnails/" + job.ID.String() + "/" + intact.Group.GroupID + ".png"
	if intact.Video.ThumbnailURL != wantThumb {
		t.Fatalf("video thumbnail=%q, want downscaled %q", intact.Video.ThumbnailURL, wantThumb)
	}
	wantCover := "/media/covers/" + job.ID.String() + "/" + intact.Group.GroupID + ".png"
	if intact.Slides.GeneratedURL != wantCover {
		t.Fatalf("slides cover=%q, want %q", intact.Slides.GeneratedURL, wantCover)
	}

	degraded := result.TeachingPacks[1]
	if degraded.Video == nil || degraded.Video.Script != "Video unavailable" {
		t.Fatalf("second group video=%+v, want fallback", degraded.Video)
	}
	if degraded.PackPlan == nil || degraded.Quiz == nil || degraded.Slides == nil {
		t.Fatalf("second group lost artifacts beyond the video: %+v", degraded)
	}
	if len(degraded.Errors) == 0 {
		t.Fatalf("second group degraded silently")
	}

	found := false
	for _, e := range result.Errors {
		if strings.HasPrefix(e, degraded.Group.GroupID+":") {
			found = true
		}
	}
	if !found {
		t.Fatalf("top-level errors missing a %s entry: %v", degraded.Group.GroupID, result.Errors)
	}
}
