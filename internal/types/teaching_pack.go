package types

// Value types exchanged with the generative backend and embedded in the
// workflow result payload. These are JSON shapes, not tables; field names are
// part of the stable result contract consumed downstream.

type LessonSummary struct {
	Title         string            `json:"title"`
	Subject       string            `json:"subject"`
	Grade         string            `json:"grade"`
	KeyConcepts   []string          `json:"key_concepts"`
	Definitions   map[string]string `json:"definitions"`
	Examples      []string          `json:"examples"`
	LessonContent string            `json:"lesson_content"`
}

type Skill struct {
	SkillID        string  `json:"skill_id"`
	Name           string  `json:"name"`
	Description    string  `json:"description"`
	Weight         float64 `json:"weight"`
	IsPrerequisite bool    `json:"is_prerequisite"`
}

type SkillSet struct {
	Skills            []Skill             `json:"skills"`
	SkillDependencies map[string][]string `json:"skill_dependencies"`
}

type DiagnosticQuestion struct {
	QuestionID    string   `json:"question_id"`
	QuestionText  string   `json:"question_text"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	SkillID       string   `json:"skill_id"`
	Difficulty    string   `json:"difficulty"`
	Rationale     string   `json:"rationale"`
}

type Diagnostic struct {
	Questions      []DiagnosticQuestion `json:"questions"`
	TotalQuestions int                  `json:"total_questions"`
	SkillsCovered  []string             `json:"skills_covered"`
}

type StudentDiagnosticResult struct {
	StudentID      string             `json:"student_id"`
	StudentName    string             `json:"student_name"`
	Answers        map[string]string  `json:"answers"`
	Score          float64            `json:"score"`
	SkillMastery   map[string]float64 `json:"skill_mastery"`
	Misconceptions []string           `json:"misconceptions"`
}

type GroupProfile struct {
	GroupID               string             `json:"group_id"`
	GroupName             string             `json:"group_name"`
	Description           string             `json:"description"`
	MasteryLevel          string             `json:"mastery_level"`
	SkillMastery          map[string]float64 `json:"skill_mastery"`
	CommonMisconceptions  []string           `json:"common_misconceptions"`
	LearningPace          string             `json:"learning_pace"`
	Students              []string           `json:"students"`
	RecommendedActivities []string           `json:"recommended_activities"`
}

type GroupingResult struct {
	Groups        []GroupProfile `json:"groups"`
	Rationale     string         `json:"rationale"`
	TotalStudents int            `json:"total_students"`
}

type Slide struct {
	SlideID      string `json:"slide_id"`
	Title        string `json:"title"`
	Content      string `json:"content"`
	VisualNotes  string `json:"visual_notes,omitempty"`
	SpeakerNotes string `json:"speaker_notes,omitempty"`
}

type Slides struct {
	Slides       []Slide `json:"slides"`
	GeneratedURL string  `json:"generated_url,omitempty"`
}

type QuizQuestion struct {
	QuestionID    string   `json:"question_id"`
	QuestionText  string   `json:"question_text"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	SkillID       string   `json:"skill_id"`
	Difficulty    string   `json:"difficulty"`
	Hint          string   `json:"hint"`
	Explanation   string   `json:"explanation"`
}

type PracticeExercise struct {
	ExerciseID   string   `json:"exercise_id"`
	Title        string   `json:"title"`
	Instructions string   `json:"instructions"`
	Problems     []string `json:"problems"`
	AnswerKey    []string `json:"answer_key"`
	Difficulty   string   `json:"difficulty"`
}

type Quiz struct {
	Questions         []QuizQuestion     `json:"questions"`
	PracticeExercises []PracticeExercise `json:"practice_exercises"`
	AnswerKey         map[string]string  `json:"answer_key"`
	TotalQuestions    int                `json:"total_questions"`
	EstimatedTime     int                `json:"estimated_time"`
}

type SlideOutlineItem struct {
	Title     string `json:"title"`
	KeyPoints string `json:"key_points"`
}

type QuizBlueprintItem struct {
	SkillID    string `json:"skill_id"`
	Difficulty string `json:"difficulty"`
}

type PackPlan struct {
	GroupID                 string              `json:"group_id"`
	LearningObjectives      []string            `json:"learning_objectives"`
	SlideOutline            []SlideOutlineItem  `json:"slide_outline"`
	QuizBlueprint           []QuizBlueprintItem `json:"quiz_blueprint"`
	EstimatedTime           int                 `json:"estimated_time"`
	DifferentiationStrategy string              `json:"differentiation_strategy"`
}

type Video struct {
	Title             string   `json:"title"`
	DurationSeconds   int      `json:"duration_seconds"`
	Script            string   `json:"script"`
	VisualDescription string   `json:"visual_description"`
	KeyConcepts       []string `json:"key_concepts"`
	GeneratedURL      string   `json:"generated_url,omitempty"`
	ThumbnailURL      string   `json:"thumbnail_url,omitempty"`
}

// TeachingPackResult is the per-group slice of the result payload. Artifacts
// may be partially populated when a later stage failed for this group.
type TeachingPackResult struct {
	Group    GroupProfile `json:"group"`
	PackPlan *PackPlan    `json:"pack_plan"`
	Slides   *Slides      `json:"slides"`
	Video    *Video       `json:"video"`
	Quiz     *Quiz        `json:"quiz"`
	Errors   []string     `json:"errors"`
}

// WorkflowResult is the persisted result payload. Top-level keys are stable
// for downstream consumers.
type WorkflowResult struct {
	LessonSummary *LessonSummary       `json:"lesson_summary"`
	SkillSet      *SkillSet            `json:"skill_set"`
	Diagnostic    *Diagnostic          `json:"diagnostic"`
	Groups        []GroupProfile       `json:"groups"`
	TeachingPacks []TeachingPackResult `json:"teaching_packs"`
	Errors        []string             `json:"errors"`
}

// WorkflowPayload is the submission payload stored on the job row.
type WorkflowPayload struct {
	LessonSource  string             `json:"lesson_source,omitempty"`
	LessonText    string             `json:"lesson_text,omitempty"`
	RosterSource  string             `json:"roster_source,omitempty"`
	Students      []string           `json:"students,omitempty"`
	StudentScores map[string]float64 `json:"student_scores,omitempty"`
	StudentNotes  map[string]string  `json:"student_notes,omitempty"`
	Subject       string             `json:"subject,omitempty"`
	NumGroups     int                `json:"num_groups,omitempty"`
}
