package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/yungbote/teachpack-backend/internal/jobs/pipeline/pack_build"
	"github.com/yungbote/teachpack-backend/internal/logger"
	"github.com/yungbote/teachpack-backend/internal/repos"
	"github.com/yungbote/teachpack-backend/internal/types"
	"github.com/yungbote/teachpack-backend/internal/utils"
)

const defaultRosterSize = 30

// PackGenerationService owns the teaching-pack workflow: job submission, the
// polling worker, and the staged pipeline that turns a lesson plus roster
// into per-group teaching packs.
type PackGenerationService interface {
	Submit(ctx context.Context, ownerUserID uuid.UUID, payload types.WorkflowPayload) (*types.WorkflowJob, error)
	GetJob(ctx context.Context, ownerUserID, jobID uuid.UUID) (*types.WorkflowJob, error)
	GetResult(ctx context.Context, ownerUserID, jobID uuid.UUID) (*types.WorkflowResult, *types.WorkflowJob, error)
	ListJobs(ctx context.Context, ownerUserID uuid.UUID, limit int) ([]*types.WorkflowJob, error)
	StartWorker(ctx context.Context)
}

type packGenerationService struct {
	log        *logger.Logger
	jobRepo    repos.WorkflowJobRepo
	negotiator *Negotiator
	grouping   GroupingService
	roster     RosterService
	cover      CoverService
	notifier   JobNotifier

	workerID         string
	pollInterval     time.Duration
	heartbeatEvery   time.Duration
	maxAttempts      int
	retryDelay       time.Duration
	staleProcessing  time.Duration
	groupConcurrency int
}

func NewPackGenerationService(
	log *logger.Logger,
	jobRepo repos.WorkflowJobRepo,
	negotiator *Negotiator,
	grouping GroupingService,
	roster RosterService,
	cover CoverService,
	notifier JobNotifier,
) PackGenerationService {
	serviceLog := log.With("service", "PackGenerationService")

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}

	return &packGenerationService{
		log:              serviceLog,
		jobRepo:          jobRepo,
		negotiator:       negotiator,
		grouping:         grouping,
		roster:           roster,
		cover:            cover,
		notifier:         notifier,
		workerID:         fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8]),
		pollInterval:     time.Duration(utils.GetEnvAsInt("WORKER_POLL_INTERVAL_MS", 1000, serviceLog)) * time.Millisecond,
		heartbeatEvery:   time.Duration(utils.GetEnvAsInt("WORKER_HEARTBEAT_SECONDS", 20, serviceLog)) * time.Second,
		maxAttempts:      utils.GetEnvAsInt("WORKER_MAX_ATTEMPTS", 3, serviceLog),
		retryDelay:       time.Duration(utils.GetEnvAsInt("WORKER_RETRY_DELAY_SECONDS", 60, serviceLog)) * time.Second,
		staleProcessing:  time.Duration(utils.GetEnvAsInt("WORKER_STALE_PROCESSING_MINUTES", 30, serviceLog)) * time.Minute,
		groupConcurrency: utils.GetEnvAsInt("WORKER_GROUP_CONCURRENCY", 3, serviceLog),
	}
}

// ---- submission / reads ----

func (s *packGenerationService) Submit(ctx context.Context, ownerUserID uuid.UUID, payload types.WorkflowPayload) (*types.WorkflowJob, error) {
	if strings.TrimSpace(payload.LessonText) == "" {
		return nil, fmt.Errorf("lesson_text is required")
	}
	if payload.NumGroups < 1 {
		payload.NumGroups = 4
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	job := &types.WorkflowJob{
		ID:          uuid.New(),
		OwnerUserID: ownerUserID,
		JobType:     types.JobTypeTeachingPackWorkflow,
		Status:      types.JobStatusQueued,
		Stage:       "queued",
		Progress:    0,
		Message:     "Workflow queued",
		Payload:     datatypes.JSON(raw),
	}

	created, err := s.jobRepo.Create(ctx, nil, []*types.WorkflowJob{job})
	if err != nil {
		return nil, err
	}
	job = created[0]

	s.notifier.JobCreated(ownerUserID, job.ID, job.JobType)
	s.log.Info("workflow submitted", "job_id", job.ID, "owner_user_id", ownerUserID)
	return job, nil
}

func (s *packGenerationService) GetJob(ctx context.Context, ownerUserID, jobID uuid.UUID) (*types.WorkflowJob, error) {
	job, err := s.jobRepo.GetByID(ctx, nil, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil || job.OwnerUserID != ownerUserID {
		return nil, nil
	}
	s.deriveStaleness(job)
	return job, nil
}

func (s *packGenerationService) GetResult(ctx context.Context, ownerUserID, jobID uuid.UUID) (*types.WorkflowResult, *types.WorkflowJob, error) {
	job, err := s.GetJob(ctx, ownerUserID, jobID)
	if err != nil || job == nil {
		return nil, job, err
	}
	if len(job.Result) == 0 {
		return nil, job, nil
	}
	var result types.WorkflowResult
	if err := json.Unmarshal(job.Result, &result); err != nil {
		return nil, job, fmt.Errorf("decode result: %w", err)
	}
	return &result, job, nil
}

func (s *packGenerationService) ListJobs(ctx context.Context, ownerUserID uuid.UUID, limit int) ([]*types.WorkflowJob, error) {
	jobs, err := s.jobRepo.ListByOwner(ctx, nil, ownerUserID, limit)
	if err != nil {
		return nil, err
	}
	for _, job := range jobs {
		s.deriveStaleness(job)
	}
	return jobs, nil
}

// deriveStaleness reports a processing job whose worker stopped heartbeating
// as failed. Read-time only; the claim query handles actual recovery.
func (s *packGenerationService) deriveStaleness(job *types.WorkflowJob) {
	if job.Status != types.JobStatusProcessing {
		return
	}
	last := job.HeartbeatAt
	if last == nil {
		last = job.LockedAt
	}
	if last != nil && time.Since(*last) > s.staleProcessing {
		job.Status = types.JobStatusFailed
		job.Error = "worker heartbeat lost"
	}
}

// ---- worker loop ----

func (s *packGenerationService) StartWorker(ctx context.Context) {
	go func() {
		s.log.Info("workflow worker started", "worker_id", s.workerID, "poll_interval", s.pollInterval.String())
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.log.Info("workflow worker stopped", "worker_id", s.workerID)
				return
			case <-ticker.C:
				job, err := s.jobRepo.ClaimNextRunnable(ctx, nil, s.workerID, s.maxAttempts, s.retryDelay, s.staleProcessing)
				if err != nil {
					s.log.Error("claim failed", "error", err)
					continue
				}
				if job == nil {
					continue
				}
				s.processJob(ctx, job)
			}
		}
	}()
}

func (s *packGenerationService) processJob(ctx context.Context, job *types.WorkflowJob) {
	jobLog := s.log.With("job_id", job.ID)
	jobLog.Info("processing workflow job", "attempts", job.Attempts+1)

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go func() {
		ticker := time.NewTicker(s.heartbeatEvery)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if err := s.jobRepo.Heartbeat(context.Background(), nil, job.ID); err != nil {
					jobLog.Warn("heartbeat failed", "error", err)
				}
			}
		}
	}()

	current := 0
	var progressMu sync.Mutex
	progress := func(stage string, pct int, message string) {
		progressMu.Lock()
		if pct < current {
			pct = current
		} else {
			current = pct
		}
		progressMu.Unlock()

		if err := s.jobRepo.UpdateFields(context.Background(), nil, job.ID, map[string]interface{}{
			"stage":    stage,
			"progress": pct,
			"message":  message,
		}); err != nil {
			jobLog.Warn("progress update failed", "stage", stage, "error", err)
		}
		s.notifier.JobProgress(job.OwnerUserID, job.ID, stage, pct, message)
	}

	fail := func(stage string, err error) {
		jobLog.Error("workflow stage failed", "stage", stage, "error", err)
		now := time.Now()
		if uErr := s.jobRepo.UpdateFields(context.Background(), nil, job.ID, map[string]interface{}{
			"status":        types.JobStatusFailed,
			"stage":         stage,
			"error":         err.Error(),
			"last_error_at": now,
			"message":       fmt.Sprintf("Failed at %s", stage),
		}); uErr != nil {
			jobLog.Error("failure update failed", "error", uErr)
		}
		s.notifier.JobFailed(job.OwnerUserID, job.ID, stage, err.Error())
	}

	result, failedStage, err := s.runPipeline(ctx, job, progress)
	if err != nil {
		fail(failedStage, err)
		return
	}

	raw, mErr := json.Marshal(result)
	if mErr != nil {
		fail("finalize", fmt.Errorf("marshal result: %w", mErr))
		return
	}

	status := types.JobStatusCompleted
	if len(result.Errors) > 0 {
		status = types.JobStatusCompletedWithErrors
	}
	if uErr := s.jobRepo.UpdateFields(context.Background(), nil, job.ID, map[string]interface{}{
		"status":   status,
		"stage":    "done",
		"progress": 100,
		"message":  "Workflow complete",
		"result":   datatypes.JSON(raw),
		"error":    "",
	}); uErr != nil {
		fail("finalize", uErr)
		return
	}
	s.notifier.JobDone(job.OwnerUserID, job.ID, status)
	jobLog.Info("workflow complete", "status", status, "groups", len(result.Groups), "errors", len(result.Errors))
}

// ---- pipeline ----

// runPipeline executes the shared stages in order, then the per-group stages
// in parallel. Both sequences come from the loaded pipeline spec; a spec
// stage with no handler here is skipped with a warning. Shared-stage errors
// abort the job; per-group errors degrade to fallback artifacts and are
// reported in the result.
func (s *packGenerationService) runPipeline(ctx context.Context, job *types.WorkflowJob, progress func(string, int, string)) (*types.WorkflowResult, string, error) {
	var payload types.WorkflowPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, "load_lesson", fmt.Errorf("decode payload: %w", err)
	}

	result := &types.WorkflowResult{Errors: []string{}}

	var (
		lessonText  string
		summary     *types.LessonSummary
		skills      *types.SkillSet
		diagnostic  *types.Diagnostic
		students    []string
		diagResults []types.StudentDiagnosticResult
		grouping    types.GroupingResult
	)

	type sharedStage struct {
		pct     int
		message string
		run     func(context.Context) error
	}
	sharedStages := map[string]sharedStage{
		"load_lesson": {5, "Loading lesson", func(context.Context) error {
			lessonText = strings.TrimSpace(payload.LessonText)
			if lessonText == "" {
				return fmt.Errorf("empty lesson text")
			}
			return nil
		}},
		"parse_lesson": {15, "Summarizing lesson", func(ctx context.Context) error {
			sum, err := s.parseLesson(ctx, job, payload, lessonText)
			if err != nil {
				return err
			}
			summary = sum
			result.LessonSummary = sum
			return nil
		}},
		"extract_skills": {25, "Extracting skills", func(ctx context.Context) error {
			if summary == nil {
				return fmt.Errorf("lesson summary not built")
			}
			sk, err := s.extractSkills(ctx, job, summary)
			if err != nil {
				return err
			}
			skills = sk
			result.SkillSet = sk
			return nil
		}},
		"generate_diagnostic": {35, "Generating diagnostic", func(ctx context.Context) error {
			if summary == nil || skills == nil {
				return fmt.Errorf("skills not extracted")
			}
			diag, err := s.generateDiagnostic(ctx, job, summary, skills)
			if err != nil {
				return err
			}
			diagnostic = diag
			result.Diagnostic = diag
			return nil
		}},
		"simulate_results": {45, "Simulating diagnostic results", func(context.Context) error {
			if diagnostic == nil {
				return fmt.Errorf("diagnostic not built")
			}
			students = payload.Students
			if len(students) == 0 {
				students = s.roster.DefaultRoster(defaultRosterSize)
			}
			seed := int64(nameHash(job.ID.String()))
			diagResults = s.roster.MockDiagnosticResults(students, *diagnostic, skills, seed)
			return nil
		}},
		"group_students": {55, "Grouping students", func(ctx context.Context) error {
			grouping = s.groupStudents(ctx, job, payload, students, diagResults, result)
			result.Groups = grouping.Groups
			return nil
		}},
		"label_groups": {60, "Labeling groups", func(ctx context.Context) error {
			s.labelGroups(ctx, job, summary, grouping.Groups, result)
			return nil
		}},
	}

	for _, name := range pack_build.StageOrder(s.log) {
		stage, ok := sharedStages[name]
		if !ok {
			s.log.Warn("no handler for shared pipeline stage; skipping", "stage", name)
			continue
		}
		progress(name, stage.pct, stage.message)
		if err := stage.run(ctx); err != nil {
			return nil, name, err
		}
	}

	packs := make([]types.TeachingPackResult, len(grouping.Groups))
	done := 0
	var doneMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.groupConcurrency)
	for i := range grouping.Groups {
		i := i
		group := grouping.Groups[i]
		g.Go(func() error {
			packs[i] = s.buildGroupPack(gctx, job, summary, skills, diagnostic, group)

			doneMu.Lock()
			done++
			pct := 60 + (35*done)/len(grouping.Groups)
			doneMu.Unlock()
			progress("build_packs", pct, fmt.Sprintf("Built pack for %s", group.GroupName))
			return nil
		})
	}
	_ = g.Wait()
	if ctx.Err() != nil {
		return nil, "build_packs", ctx.Err()
	}

	result.TeachingPacks = packs
	for _, pack := range packs {
		for _, e := range pack.Errors {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", pack.Group.GroupID, e))
		}
	}

	return result, "", nil
}

func (s *packGenerationService) parseLesson(ctx context.Context, job *types.WorkflowJob, payload types.WorkflowPayload, lessonText string) (*types.LessonSummary, error) {
	system := "You are an expert instructional designer. Respond with a single JSON object."
	user := fmt.Sprintf(`Summarize this lesson into JSON with keys: title, subject, grade, key_concepts (list of strings), definitions (object of term to definition), examples (list of strings), lesson_content (condensed prose).
Subject hint: %s

Lesson:
%s`, payload.Subject, truncateText(lessonText, 6000))

	m, err := s.negotiator.RequestJSON(ctx, &job.ID, "parse_lesson", SchemaLessonSummary, system, user)
	if err != nil {
		return nil, fmt.Errorf("lesson parsing: %w", err)
	}
	var summary types.LessonSummary
	if err := mapToStruct(m, &summary); err != nil {
		return nil, fmt.Errorf("lesson parsing: %w", err)
	}
	return &summary, nil
}

func (s *packGenerationService) extractSkills(ctx context.Context, job *types.WorkflowJob, summary *types.LessonSummary) (*types.SkillSet, error) {
	system := "You are an expert in skill decomposition for K-12 education. Respond with a single JSON object."
	user := fmt.Sprintf(`Extract the discrete skills taught by this lesson as JSON with keys: skills (list of objects with skill_id, name, description, weight between 0 and 1, is_prerequisite boolean) and skill_dependencies (object of skill_id to list of prerequisite skill_ids).

Lesson title: %s
Subject: %s
Key concepts: %s
Content: %s`, summary.Title, summary.Subject, strings.Join(summary.KeyConcepts, ", "), truncateText(summary.LessonContent, 4000))

	m, err := s.negotiator.RequestJSON(ctx, &job.ID, "extract_skills", SchemaSkillSet, system, user)
	if err != nil {
		return nil, fmt.Errorf("skill extraction: %w", err)
	}
	var skills types.SkillSet
	if err := mapToStruct(m, &skills); err != nil {
		return nil, fmt.Errorf("skill extraction: %w", err)
	}
	if len(skills.Skills) == 0 {
		return nil, fmt.Errorf("skill extraction: no skills returned")
	}
	return &skills, nil
}

func (s *packGenerationService) generateDiagnostic(ctx context.Context, job *types.WorkflowJob, summary *types.LessonSummary, skills *types.SkillSet) (*types.Diagnostic, error) {
	perSkill := 2
	if cfg := pack_build.StageConfig(s.log, "generate_diagnostic"); cfg != nil {
		if n, ok := asInt(cfg["questions_per_skill"]); ok && n > 0 {
			perSkill = n
		}
	}

	skillLines := make([]string, 0, len(skills.Skills))
	for _, skill := range skills.Skills {
		skillLines = append(skillLines, fmt.Sprintf("- %s: %s (%s)", skill.SkillID, skill.Name, skill.Description))
	}

	system := "You are an assessment designer. Respond with a single JSON object."
	user := fmt.Sprintf(`Create a diagnostic quiz covering these skills, %d multiple-choice questions per skill. JSON keys: questions (list of objects with question_id, question_text, options list, correct_answer, skill_id, difficulty easy|medium|hard, rationale), total_questions, skills_covered (list of skill_ids).

Lesson: %s (%s)
Skills:
%s`, perSkill, summary.Title, summary.Subject, strings.Join(skillLines, "\n"))

	m, err := s.negotiator.RequestJSON(ctx, &job.ID, "generate_diagnostic", SchemaDiagnostic, system, user)
	if err != nil {
		return nil, fmt.Errorf("diagnostic generation: %w", err)
	}
	var diagnostic types.Diagnostic
	if err := mapToStruct(m, &diagnostic); err != nil {
		return nil, fmt.Errorf("diagnostic generation: %w", err)
	}
	if len(diagnostic.Questions) == 0 {
		return nil, fmt.Errorf("diagnostic generation: no questions returned")
	}
	diagnostic.TotalQuestions = len(diagnostic.Questions)
	return &diagnostic, nil
}

// groupStudents prefers a model-proposed grouping when teacher-provided
// performance data exists; anything that goes wrong degrades to the
// deterministic paths.
func (s *packGenerationService) groupStudents(ctx context.Context, job *types.WorkflowJob, payload types.WorkflowPayload, students []string, diagResults []types.StudentDiagnosticResult, result *types.WorkflowResult) types.GroupingResult {
	numGroups := payload.NumGroups

	if len(payload.StudentScores) == 0 && len(payload.StudentNotes) == 0 {
		return s.grouping.GroupByQuartile(diagResults, numGroups)
	}

	lines := make([]string, 0, len(students))
	for _, name := range students {
		score, ok := payload.StudentScores[name]
		if !ok {
			score = s.grouping.QualitativeScore(payload.StudentNotes[name])
		}
		lines = append(lines, fmt.Sprintf("- %s: %.1f/10", name, score))
	}

	system := "You group students for differentiated instruction. Respond with a single JSON object."
	user := fmt.Sprintf(`Partition these students into %d groups of similar ability for a %s lesson. JSON key: groups (list of objects with group_id and students, a list of student names). Every student appears exactly once.

Students:
%s`, numGroups, payload.Subject, strings.Join(lines, "\n"))

	plan, err := s.negotiator.RequestJSON(ctx, &job.ID, "group_students", SchemaGroupingPlan, system, user)
	if err != nil {
		s.log.Warn("model grouping failed; using round-robin", "job_id", job.ID, "error", err)
		result.Errors = append(result.Errors, fmt.Sprintf("grouping: %v", err))
		return s.grouping.BuildProfiles(s.grouping.DistributeEvenly(students, numGroups), diagResults)
	}
	buckets := s.grouping.ApplyGroupPlan(plan, students, numGroups)
	return s.grouping.BuildProfiles(buckets, diagResults)
}

// labelGroups enriches the deterministic profiles with model-written
// descriptions and activities. Enrichment failures keep the deterministic
// profile and are recorded, not fatal.
func (s *packGenerationService) labelGroups(ctx context.Context, job *types.WorkflowJob, summary *types.LessonSummary, groups []types.GroupProfile, result *types.WorkflowResult) {
	for i := range groups {
		group := &groups[i]
		system := "You describe student ability groups for teachers. Respond with a single JSON object."
		user := fmt.Sprintf(`Write a profile for this group. JSON keys: group_id, group_name, description, mastery_level (low|medium|high|advanced), skill_mastery (object), common_misconceptions (list), learning_pace (slow|moderate|fast), students (list), recommended_activities (list).
Keep group_id %q, mastery_level %q, learning_pace %q and the student list unchanged.

Lesson: %s (%s)
Students: %s
Skill mastery: %s`, group.GroupID, group.MasteryLevel, group.LearningPace,
			summary.Title, summary.Subject,
			strings.Join(group.Students, ", "), formatMastery(group.SkillMastery))

		m, err := s.negotiator.RequestJSON(ctx, &job.ID, "label_groups", SchemaGroupProfile, system, user)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: labeling failed: %v", group.GroupID, err))
			continue
		}
		var labeled types.GroupProfile
		if err := mapToStruct(m, &labeled); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: labeling failed: %v", group.GroupID, err))
			continue
		}
		// deterministic fields win over whatever the model returned
		if labeled.GroupName != "" {
			group.GroupName = labeled.GroupName
		}
		group.Description = labeled.Description
		group.RecommendedActivities = labeled.RecommendedActivities
	}
}

// ---- per-group pack build ----

// buildGroupPack runs the per-group stage sequence from the pipeline spec.
// Stage failures degrade to deterministic fallbacks and are recorded on the
// pack; a failed plan still leaves later stages a fallback plan to work from.
func (s *packGenerationService) buildGroupPack(ctx context.Context, job *types.WorkflowJob, summary *types.LessonSummary, skills *types.SkillSet, diagnostic *types.Diagnostic, group types.GroupProfile) types.TeachingPackResult {
	pack := types.TeachingPackResult{Group: group, Errors: []string{}}

	var (
		plan     *types.PackPlan
		quiz     *types.Quiz
		slides   *types.Slides
		video    *types.Video
		coverURL string
		thumbURL string
	)

	ensurePlan := func() *types.PackPlan {
		if plan == nil {
			plan = fallbackPlan(group, skills)
		}
		return plan
	}

	groupStages := map[string]func(context.Context){
		"plan_pack": func(ctx context.Context) {
			p, err := s.planPack(ctx, job, summary, skills, group)
			if err != nil {
				pack.Errors = append(pack.Errors, fmt.Sprintf("plan generation failed: %v", err))
				p = fallbackPlan(group, skills)
			}
			plan = p
		},
		"generate_quiz": func(ctx context.Context) {
			q, err := s.generateQuiz(ctx, job, summary, ensurePlan(), group)
			if err != nil {
				pack.Errors = append(pack.Errors, fmt.Sprintf("quiz generation failed: %v", err))
				q = fallbackQuiz(diagnostic)
			}
			quiz = q
		},
		"generate_slides": func(ctx context.Context) {
			sl, err := s.generateSlides(ctx, job, summary, ensurePlan(), group)
			if err != nil {
				pack.Errors = append(pack.Errors, fmt.Sprintf("slide generation failed: %v", err))
				sl = fallbackSlides(ensurePlan())
			}
			slides = sl
		},
		"render_cover": func(context.Context) {
			if s.cover == nil {
				return
			}
			url, png, err := s.cover.SaveCover(job.ID, group.GroupID, summary.Title, group.GroupName, group.MasteryLevel)
			if err != nil {
				pack.Errors = append(pack.Errors, fmt.Sprintf("cover render failed: %v", err))
				return
			}
			coverURL = url
			thumb, tErr := s.cover.SaveThumbnail(job.ID, group.GroupID, png)
			if tErr != nil {
				pack.Errors = append(pack.Errors, fmt.Sprintf("thumbnail render failed: %v", tErr))
				return
			}
			thumbURL = thumb
		},
		"generate_video": func(ctx context.Context) {
			v, err := s.generateVideo(ctx, job, summary, ensurePlan(), group)
			if err != nil {
				pack.Errors = append(pack.Errors, fmt.Sprintf("video generation failed: %v", err))
				v = fallbackVideo(summary, group)
			}
			video = v
		},
	}

	for _, name := range pack_build.GroupStageOrder(s.log) {
		run, ok := groupStages[name]
		if !ok {
			s.log.Warn("no handler for group pipeline stage; skipping", "stage", name)
			continue
		}
		run(ctx)
	}

	if slides != nil && coverURL != "" {
		slides.GeneratedURL = coverURL
	}
	if video != nil {
		if thumbURL != "" {
			video.ThumbnailURL = thumbURL
		} else if coverURL != "" {
			video.ThumbnailURL = coverURL
		}
	}

	pack.PackPlan = plan
	pack.Quiz = quiz
	pack.Slides = slides
	pack.Video = video
	return pack
}

func (s *packGenerationService) planPack(ctx context.Context, job *types.WorkflowJob, summary *types.LessonSummary, skills *types.SkillSet, group types.GroupProfile) (*types.PackPlan, error) {
	system := "You plan differentiated teaching materials. Respond with a single JSON object."
	user := fmt.Sprintf(`Plan a teaching pack for this group. JSON keys: group_id (use %q), learning_objectives (list), slide_outline (list of objects with title and key_points as a single string), quiz_blueprint (list of objects with skill_id and difficulty), estimated_time (minutes, integer), differentiation_strategy (string).

Lesson: %s (%s)
Group: %s, mastery %s, pace %s
Misconceptions: %s`, group.GroupID, summary.Title, summary.Subject,
		group.GroupName, group.MasteryLevel, group.LearningPace,
		strings.Join(group.CommonMisconceptions, "; "))

	m, err := s.negotiator.RequestJSON(ctx, &job.ID, "plan_pack", SchemaPackPlan, system, user)
	if err != nil {
		return nil, err
	}
	var plan types.PackPlan
	if err := mapToStruct(m, &plan); err != nil {
		return nil, err
	}
	plan.GroupID = group.GroupID
	return &plan, nil
}

func (s *packGenerationService) generateQuiz(ctx context.Context, job *types.WorkflowJob, summary *types.LessonSummary, plan *types.PackPlan, group types.GroupProfile) (*types.Quiz, error) {
	blueprint := make([]string, 0, len(plan.QuizBlueprint))
	for _, item := range plan.QuizBlueprint {
		blueprint = append(blueprint, fmt.Sprintf("- %s (%s)", item.SkillID, item.Difficulty))
	}

	system := "You write quizzes and practice exercises. Respond with a single JSON object."
	user := fmt.Sprintf(`Write a quiz for this group. JSON keys: questions (list of objects with question_id, question_text, options list, correct_answer, skill_id, difficulty easy|medium|hard, hint, explanation), practice_exercises (list of objects with exercise_id, title, instructions, problems list, answer_key list, difficulty), answer_key (object of question_id to correct_answer), total_questions, estimated_time.

Lesson: %s (%s)
Group mastery: %s
Blueprint:
%s`, summary.Title, summary.Subject, group.MasteryLevel, strings.Join(blueprint, "\n"))

	m, err := s.negotiator.RequestJSON(ctx, &job.ID, "generate_quiz", SchemaQuiz, system, user)
	if err != nil {
		return nil, err
	}
	var quiz types.Quiz
	if err := mapToStruct(m, &quiz); err != nil {
		return nil, err
	}
	if quiz.AnswerKey == nil {
		quiz.AnswerKey = map[string]string{}
	}
	for _, q := range quiz.Questions {
		if _, ok := quiz.AnswerKey[q.QuestionID]; !ok {
			quiz.AnswerKey[q.QuestionID] = q.CorrectAnswer
		}
	}
	quiz.TotalQuestions = len(quiz.Questions)
	return &quiz, nil
}

func (s *packGenerationService) generateSlides(ctx context.Context, job *types.WorkflowJob, summary *types.LessonSummary, plan *types.PackPlan, group types.GroupProfile) (*types.Slides, error) {
	outline := make([]string, 0, len(plan.SlideOutline))
	for _, item := range plan.SlideOutline {
		outline = append(outline, fmt.Sprintf("- %s: %s", item.Title, item.KeyPoints))
	}

	system := "You write slide decks for teachers. Respond with a single JSON object."
	user := fmt.Sprintf(`Write the slides for this outline. JSON key: slides (list of objects with slide_id, title, content, visual_notes, speaker_notes).

Lesson: %s (%s)
Group mastery: %s, pace %s
Outline:
%s`, summary.Title, summary.Subject, group.MasteryLevel, group.LearningPace, strings.Join(outline, "\n"))

	m, err := s.negotiator.RequestJSON(ctx, &job.ID, "generate_slides", SchemaSlides, system, user)
	if err != nil {
		return nil, err
	}
	var slides types.Slides
	if err := mapToStruct(m, &slides); err != nil {
		return nil, err
	}
	if len(slides.Slides) == 0 {
		return nil, fmt.Errorf("no slides returned")
	}
	return &slides, nil
}

func (s *packGenerationService) generateVideo(ctx context.Context, job *types.WorkflowJob, summary *types.LessonSummary, plan *types.PackPlan, group types.GroupProfile) (*types.Video, error) {
	system := "You script short explainer videos. Respond with a single JSON object."
	user := fmt.Sprintf(`Script a short explainer video for this group. JSON keys: title, duration_seconds (integer), script, visual_description, key_concepts (list).

Lesson: %s (%s)
Group mastery: %s
Objectives: %s`, summary.Title, summary.Subject, group.MasteryLevel, strings.Join(plan.LearningObjectives, "; "))

	m, err := s.negotiator.RequestJSON(ctx, &job.ID, "generate_video", SchemaVideo, system, user)
	if err != nil {
		return nil, err
	}
	var video types.Video
	if err := mapToStruct(m, &video); err != nil {
		return nil, err
	}
	return &video, nil
}

// ---- fallback artifacts ----

func fallbackPlan(group types.GroupProfile, skills *types.SkillSet) *types.PackPlan {
	objectives := make([]string, 0, len(skills.Skills))
	outline := make([]types.SlideOutlineItem, 0, len(skills.Skills)+2)
	blueprint := make([]types.QuizBlueprintItem, 0, len(skills.Skills))

	outline = append(outline, types.SlideOutlineItem{Title: "Introduction", KeyPoints: "Lesson overview and goals"})
	for _, skill := range skills.Skills {
		objectives = append(objectives, fmt.Sprintf("Understand %s", skill.Name))
		outline = append(outline, types.SlideOutlineItem{Title: skill.Name, KeyPoints: skill.Description})
		blueprint = append(blueprint, types.QuizBlueprintItem{SkillID: skill.SkillID, Difficulty: "medium"})
	}
	outline = append(outline, types.SlideOutlineItem{Title: "Review", KeyPoints: "Recap and questions"})

	return &types.PackPlan{
		GroupID:                 group.GroupID,
		LearningObjectives:      objectives,
		SlideOutline:            outline,
		QuizBlueprint:           blueprint,
		EstimatedTime:           30,
		DifferentiationStrategy: fmt.Sprintf("Standard pacing for a %s mastery group", group.MasteryLevel),
	}
}

// fallbackQuiz reuses the diagnostic questions when quiz generation failed.
func fallbackQuiz(diagnostic *types.Diagnostic) *types.Quiz {
	questions := make([]types.QuizQuestion, 0, len(diagnostic.Questions))
	answerKey := make(map[string]string, len(diagnostic.Questions))
	for _, q := range diagnostic.Questions {
		questions = append(questions, types.QuizQuestion{
			QuestionID:    q.QuestionID,
			QuestionText:  q.QuestionText,
			Options:       q.Options,
			CorrectAnswer: q.CorrectAnswer,
			SkillID:       q.SkillID,
			Difficulty:    q.Difficulty,
			Explanation:   q.Rationale,
		})
		answerKey[q.QuestionID] = q.CorrectAnswer
	}
	return &types.Quiz{
		Questions:         questions,
		PracticeExercises: []types.PracticeExercise{},
		AnswerKey:         answerKey,
		TotalQuestions:    len(questions),
		EstimatedTime:     15,
	}
}

func fallbackSlides(plan *types.PackPlan) *types.Slides {
	slides := make([]types.Slide, 0, len(plan.SlideOutline))
	for i, item := range plan.SlideOutline {
		slides = append(slides, types.Slide{
			SlideID: fmt.Sprintf("slide_%d", i+1),
			Title:   item.Title,
			Content: item.KeyPoints,
		})
	}
	return &types.Slides{Slides: slides}
}

func fallbackVideo(summary *types.LessonSummary, group types.GroupProfile) *types.Video {
	return &types.Video{
		Title:             fmt.Sprintf("%s (%s)", summary.Title, group.GroupName),
		DurationSeconds:   0,
		Script:            "Video unavailable",
		VisualDescription: "",
		KeyConcepts:       summary.KeyConcepts,
	}
}

// ---- helpers ----

func mapToStruct(m map[string]any, out any) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func truncateText(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

func formatMastery(mastery map[string]float64) string {
	parts := make([]string, 0, len(mastery))
	for skill, v := range mastery {
		parts = append(parts, fmt.Sprintf("%s=%.2f", skill, v))
	}
	return strings.Join(parts, ", ")
}
