package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// SchemaKind names a target record type for strict validation and repair.
type SchemaKind string

const (
	SchemaLessonSummary SchemaKind = "lesson_summary"
	SchemaSkillSet      SchemaKind = "skill_set"
	SchemaDiagnostic    SchemaKind = "diagnostic"
	SchemaGroupProfile  SchemaKind = "group_profile"
	SchemaGroupingPlan  SchemaKind = "grouping_plan"
	SchemaPackPlan      SchemaKind = "pack_plan"
	SchemaSlides        SchemaKind = "slides"
	SchemaQuiz          SchemaKind = "quiz"
	SchemaVideo         SchemaKind = "video"
)

var ErrRepairFailed = errors.New("schema repair failed")

// ValidatePayload checks a loosely-typed record against the target schema.
// It is the strictness gate in front of RepairPayload: anything it rejects
// goes through repair, and anything repair emits must pass it.
func ValidatePayload(kind SchemaKind, data map[string]any) error {
	switch kind {
	case SchemaLessonSummary:
		return validateLessonSummary(data)
	case SchemaSkillSet:
		return validateSkillSet(data)
	case SchemaDiagnostic:
		return validateDiagnostic(data)
	case SchemaGroupProfile:
		return validateGroupProfile(data)
	case SchemaGroupingPlan:
		return validateGroupingPlan(data)
	case SchemaPackPlan:
		return validatePackPlan(data)
	case SchemaSlides:
		return validateSlides(data)
	case SchemaQuiz:
		return validateQuiz(data)
	case SchemaVideo:
		return validateVideo(data)
	default:
		return fmt.Errorf("unknown schema kind %q", kind)
	}
}

// RepairPayload applies the per-type rule list (alias resolution, default
// filling, coercion, structural unwrapping) and re-validates. It reshapes
// structure only; missing domain content (titles, question text) is not
// invented, so repair can still fail.
func RepairPayload(kind SchemaKind, data map[string]any) (map[string]any, error) {
	if data == nil {
		return nil, fmt.Errorf("%w: nil payload", ErrRepairFailed)
	}
	out := cloneMap(data)
	switch kind {
	case SchemaLessonSummary:
		repairLessonSummary(out)
	case SchemaSkillSet:
		repairSkillSet(out)
	case SchemaDiagnostic:
		repairDiagnostic(out)
	case SchemaGroupProfile:
		repairGroupProfile(out)
	case SchemaGroupingPlan:
		repairGroupingPlan(out)
	case SchemaPackPlan:
		repairPackPlan(out)
	case SchemaSlides:
		repairSlides(out)
	case SchemaQuiz:
		repairQuiz(out)
	case SchemaVideo:
		repairVideo(out)
	default:
		return nil, fmt.Errorf("%w: unknown schema kind %q", ErrRepairFailed, kind)
	}
	if err := ValidatePayload(kind, out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRepairFailed, err)
	}
	return out, nil
}

// ---- lesson summary ----

func validateLessonSummary(m map[string]any) error {
	if _, ok := m["title"].(string); !ok {
		return fmt.Errorf("lesson_summary: missing title")
	}
	if _, ok := m["subject"].(string); !ok {
		return fmt.Errorf("lesson_summary: missing subject")
	}
	if _, ok := m["grade"].(string); !ok {
		return fmt.Errorf("lesson_summary: missing grade")
	}
	if !isList(m["key_concepts"]) {
		return fmt.Errorf("lesson_summary: key_concepts must be a list")
	}
	if _, ok := m["lesson_content"].(string); !ok {
		return fmt.Errorf("lesson_summary: missing lesson_content")
	}
	return nil
}

func repairLessonSummary(m map[string]any) {
	m["grade"] = stringify(m["grade"])
	m["key_concepts"] = toStringList(m["key_concepts"])
	m["examples"] = toStringList(m["examples"])
	if defs, ok := m["definitions"].([]any); ok {
		fixed := map[string]any{}
		for _, item := range defs {
			d, ok := item.(map[string]any)
			if !ok {
				continue
			}
			term := firstString(d, "term", "key", "name")
			definition := firstString(d, "definition", "value", "desc")
			if term != "" && definition != "" {
				fixed[term] = definition
			}
		}
		m["definitions"] = fixed
	}
	if _, ok := m["definitions"].(map[string]any); !ok {
		m["definitions"] = map[string]any{}
	}
	if _, ok := m["lesson_content"].(string); !ok {
		m["lesson_content"] = ""
	}
}

// ---- skill set ----

func validateSkillSet(m map[string]any) error {
	skills, ok := m["skills"].([]any)
	if !ok {
		return fmt.Errorf("skill_set: missing skills list")
	}
	for i, s := range skills {
		sm, ok := s.(map[string]any)
		if !ok {
			return fmt.Errorf("skill_set: skills[%d] not an object", i)
		}
		if v, ok := sm["skill_id"].(string); !ok || v == "" {
			return fmt.Errorf("skill_set: skills[%d] missing skill_id", i)
		}
		if v, ok := sm["name"].(string); !ok || v == "" {
			return fmt.Errorf("skill_set: skills[%d] missing name", i)
		}
		if _, ok := sm["description"].(string); !ok {
			return fmt.Errorf("skill_set: skills[%d] missing description", i)
		}
		if !isNumber(sm["weight"]) {
			return fmt.Errorf("skill_set: skills[%d] missing weight", i)
		}
		if _, ok := sm["is_prerequisite"].(bool); !ok {
			return fmt.Errorf("skill_set: skills[%d] missing is_prerequisite", i)
		}
	}
	if _, ok := m["skill_dependencies"].(map[string]any); !ok {
		return fmt.Errorf("skill_set: missing skill_dependencies")
	}
	return nil
}

func repairSkillSet(m map[string]any) {
	if skills, ok := m["skills"].([]any); ok {
		normalized := make([]any, 0, len(skills))
		for _, s := range skills {
			sm, ok := s.(map[string]any)
			if !ok {
				continue
			}
			fixed := cloneMap(sm)
			if _, ok := fixed["skill_id"]; !ok {
				if v := firstString(fixed, "id", "skillId"); v != "" {
					fixed["skill_id"] = v
				}
			}
			if _, ok := fixed["name"]; !ok {
				if v := firstString(fixed, "title", "label"); v != "" {
					fixed["name"] = v
				}
			}
			if fixed["name"] == nil {
				fixed["name"] = "Unnamed skill"
			}
			if _, ok := fixed["description"]; !ok {
				if v := firstString(fixed, "desc", "detail"); v != "" {
					fixed["description"] = v
				}
			}
			if _, ok := fixed["description"].(string); !ok {
				fixed["description"] = ""
			}
			if _, ok := fixed["is_prerequisite"]; !ok {
				fixed["is_prerequisite"] = asBool(fixed["prerequisite"])
			}
			if !isNumber(fixed["weight"]) {
				fixed["weight"] = 0.7
			}
			normalized = append(normalized, fixed)
		}
		m["skills"] = normalized
	}
	if _, ok := m["skill_dependencies"].(map[string]any); !ok {
		m["skill_dependencies"] = map[string]any{}
	}
}

// ---- diagnostic ----

func validateDiagnostic(m map[string]any) error {
	questions, ok := m["questions"].([]any)
	if !ok {
		return fmt.Errorf("diagnostic: missing questions list")
	}
	for i, q := range questions {
		if err := validateQuestionCommon("diagnostic", i, q, false); err != nil {
			return err
		}
	}
	if !isNumber(m["total_questions"]) {
		return fmt.Errorf("diagnostic: missing total_questions")
	}
	if !isList(m["skills_covered"]) {
		return fmt.Errorf("diagnostic: missing skills_covered")
	}
	return nil
}

func repairDiagnostic(m map[string]any) {
	// structural unwrap: payload nested one level under "diagnostic"
	if inner, ok := m["diagnostic"].(map[string]any); ok {
		delete(m, "diagnostic")
		for _, key := range []string{"questions", "total_questions", "skills_covered"} {
			if _, exists := m[key]; !exists {
				if v, has := inner[key]; has {
					m[key] = v
				}
			}
		}
	}
	if questions, ok := m["questions"].([]any); ok {
		m["questions"] = repairQuestionList(questions, false)
	}
	if _, ok := m["questions"].([]any); !ok {
		m["questions"] = []any{}
	}
	if !isList(m["skills_covered"]) {
		m["skills_covered"] = []any{}
	}
	if !isNumber(m["total_questions"]) {
		m["total_questions"] = float64(len(m["questions"].([]any)))
	}
}

func validateQuestionCommon(scope string, i int, q any, quiz bool) error {
	qm, ok := q.(map[string]any)
	if !ok {
		return fmt.Errorf("%s: questions[%d] not an object", scope, i)
	}
	for _, key := range []string{"question_id", "question_text", "correct_answer", "skill_id"} {
		if _, ok := qm[key].(string); !ok {
			return fmt.Errorf("%s: questions[%d] missing %s", scope, i, key)
		}
	}
	if !isList(qm["options"]) {
		return fmt.Errorf("%s: questions[%d] missing options", scope, i)
	}
	diff, _ := qm["difficulty"].(string)
	switch diff {
	case "easy", "medium", "hard":
	default:
		return fmt.Errorf("%s: questions[%d] bad difficulty", scope, i)
	}
	if quiz {
		for _, key := range []string{"hint", "explanation"} {
			if _, ok := qm[key].(string); !ok {
				return fmt.Errorf("%s: questions[%d] missing %s", scope, i, key)
			}
		}
	} else {
		if _, ok := qm["rationale"].(string); !ok {
			return fmt.Errorf("%s: questions[%d] missing rationale", scope, i)
		}
	}
	return nil
}

func repairQuestionList(questions []any, quiz bool) []any {
	normalized := make([]any, 0, len(questions))
	idx := 0
	for _, q := range questions {
		qm, ok := q.(map[string]any)
		if !ok {
			continue
		}
		idx++
		fixed := cloneMap(qm)
		if _, ok := fixed["question_id"].(string); !ok {
			if v := firstString(fixed, "id"); v != "" {
				fixed["question_id"] = v
			} else {
				fixed["question_id"] = fmt.Sprintf("q%d", idx)
			}
		}
		if _, ok := fixed["question_text"]; !ok {
			if v := firstString(fixed, "question", "prompt"); v != "" {
				fixed["question_text"] = v
			}
		}
		if _, ok := fixed["question_text"].(string); !ok {
			fixed["question_text"] = ""
		}
		if _, ok := fixed["correct_answer"]; !ok {
			if v, has := firstValue(fixed, "answer", "correct"); has {
				fixed["correct_answer"] = v
			}
		}
		if fixed["correct_answer"] == nil {
			fixed["correct_answer"] = ""
		} else {
			fixed["correct_answer"] = stringify(fixed["correct_answer"])
		}
		fixed["options"] = toStringList(fixed["options"])
		if _, ok := fixed["skill_id"].(string); !ok {
			fixed["skill_id"] = ""
		}
		fixed["difficulty"] = normalizeDifficulty(fixed["difficulty"])
		if quiz {
			if _, ok := fixed["hint"].(string); !ok {
				fixed["hint"] = ""
			}
			if _, ok := fixed["explanation"].(string); !ok {
				fixed["explanation"] = ""
			}
		} else {
			if _, ok := fixed["rationale"].(string); !ok {
				fixed["rationale"] = ""
			}
		}
		normalized = append(normalized, fixed)
	}
	return normalized
}

// ---- group profile / grouping plan ----

func validateGroupProfile(m map[string]any) error {
	if _, ok := m["group_id"].(string); !ok {
		return fmt.Errorf("group_profile: missing group_id")
	}
	switch m["mastery_level"] {
	case "low", "medium", "high", "advanced":
	default:
		return fmt.Errorf("group_profile: bad mastery_level")
	}
	switch m["learning_pace"] {
	case "slow", "moderate", "fast":
	default:
		return fmt.Errorf("group_profile: bad learning_pace")
	}
	if _, ok := m["skill_mastery"].(map[string]any); !ok {
		return fmt.Errorf("group_profile: missing skill_mastery")
	}
	if !isList(m["students"]) {
		return fmt.Errorf("group_profile: missing students")
	}
	return nil
}

func repairGroupProfile(m map[string]any) {
	if _, ok := m["group_id"].(string); !ok {
		m["group_id"] = ""
	}
	switch m["mastery_level"] {
	case "low", "medium", "high", "advanced":
	default:
		m["mastery_level"] = "medium"
	}
	switch m["learning_pace"] {
	case "slow", "moderate", "fast":
	default:
		m["learning_pace"] = "moderate"
	}
	if _, ok := m["skill_mastery"].(map[string]any); !ok {
		m["skill_mastery"] = map[string]any{}
	}
	if !isList(m["students"]) {
		m["students"] = []any{}
	}
	m["common_misconceptions"] = toStringList(m["common_misconceptions"])
	m["recommended_activities"] = toStringList(m["recommended_activities"])
}

// grouping_plan is the score-based grouping proposal: {"groups": [{"group_id", "students"}...]}
func validateGroupingPlan(m map[string]any) error {
	groups, ok := m["groups"].([]any)
	if !ok {
		return fmt.Errorf("grouping_plan: missing groups list")
	}
	for i, g := range groups {
		gm, ok := g.(map[string]any)
		if !ok {
			return fmt.Errorf("grouping_plan: groups[%d] not an object", i)
		}
		if !isList(gm["students"]) {
			return fmt.Errorf("grouping_plan: groups[%d] missing students", i)
		}
	}
	return nil
}

func repairGroupingPlan(m map[string]any) {
	if groups, ok := m["groups"].([]any); ok {
		normalized := make([]any, 0, len(groups))
		for _, g := range groups {
			gm, ok := g.(map[string]any)
			if !ok {
				continue
			}
			fixed := cloneMap(gm)
			if _, ok := fixed["students"]; !ok {
				if v, has := firstValue(fixed, "members", "student_ids"); has {
					fixed["students"] = v
				}
			}
			fixed["students"] = toStringList(fixed["students"])
			normalized = append(normalized, fixed)
		}
		m["groups"] = normalized
	}
	if !isList(m["groups"]) {
		m["groups"] = []any{}
	}
}

// ---- pack plan ----

func validatePackPlan(m map[string]any) error {
	if _, ok := m["group_id"].(string); !ok {
		return fmt.Errorf("pack_plan: missing group_id")
	}
	if !isList(m["learning_objectives"]) {
		return fmt.Errorf("pack_plan: missing learning_objectives")
	}
	outline, ok := m["slide_outline"].([]any)
	if !ok {
		return fmt.Errorf("pack_plan: missing slide_outline")
	}
	for i, item := range outline {
		im, ok := item.(map[string]any)
		if !ok {
			return fmt.Errorf("pack_plan: slide_outline[%d] not an object", i)
		}
		if _, ok := im["key_points"].(string); !ok {
			return fmt.Errorf("pack_plan: slide_outline[%d] key_points must be a string", i)
		}
	}
	if !isList(m["quiz_blueprint"]) {
		return fmt.Errorf("pack_plan: missing quiz_blueprint")
	}
	if !isNumber(m["estimated_time"]) {
		return fmt.Errorf("pack_plan: missing estimated_time")
	}
	if _, ok := m["differentiation_strategy"].(string); !ok {
		return fmt.Errorf("pack_plan: missing differentiation_strategy")
	}
	return nil
}

func repairPackPlan(m map[string]any) {
	// structural unwrap: payload nested one level under "teaching_pack"
	if inner, ok := m["teaching_pack"].(map[string]any); ok {
		delete(m, "teaching_pack")
		for _, key := range []string{"learning_objectives", "slide_outline", "quiz_blueprint", "estimated_time", "differentiation_strategy", "group_id"} {
			if _, exists := m[key]; !exists {
				if v, has := inner[key]; has {
					m[key] = v
				}
			}
		}
	}
	if _, ok := m["group_id"].(string); !ok {
		m["group_id"] = ""
	}
	m["learning_objectives"] = toStringList(m["learning_objectives"])

	switch et := m["estimated_time"].(type) {
	case float64:
	case map[string]any:
		sum := 0
		for _, v := range et {
			if n, ok := asInt(v); ok {
				sum += n
			}
		}
		m["estimated_time"] = float64(sum)
	default:
		digits := digitsOnly(stringify(et))
		if digits == "" {
			m["estimated_time"] = float64(0)
		} else {
			n, _ := strconv.Atoi(digits)
			m["estimated_time"] = float64(n)
		}
	}

	if _, ok := m["differentiation_strategy"]; !ok {
		m["differentiation_strategy"] = ""
	}
	if _, ok := m["differentiation_strategy"].(string); !ok {
		m["differentiation_strategy"] = stringify(m["differentiation_strategy"])
	}

	if outline, ok := m["slide_outline"].([]any); ok {
		normalized := make([]any, 0, len(outline))
		for idx, item := range outline {
			im, ok := item.(map[string]any)
			if !ok {
				continue
			}
			fixed := cloneMap(im)
			if _, ok := fixed["title"].(string); !ok {
				fixed["title"] = stringify(fixed["title"])
			}
			switch kp := fixed["key_points"].(type) {
			case string:
			case []any:
				parts := make([]string, 0, len(kp))
				for _, x := range kp {
					parts = append(parts, stringify(x))
				}
				fixed["key_points"] = strings.Join(parts, "\n")
			case nil:
				fixed["key_points"] = ""
			default:
				fixed["key_points"] = stringify(kp)
			}
			_ = idx
			normalized = append(normalized, fixed)
		}
		m["slide_outline"] = normalized
	}
	if !isList(m["slide_outline"]) {
		m["slide_outline"] = []any{}
	}

	switch qb := m["quiz_blueprint"].(type) {
	case map[string]any:
		m["quiz_blueprint"] = []any{qb}
	case nil:
		m["quiz_blueprint"] = []any{}
	}
	if blueprint, ok := m["quiz_blueprint"].([]any); ok {
		normalized := make([]any, 0, len(blueprint))
		for _, item := range blueprint {
			im, ok := item.(map[string]any)
			if !ok {
				continue
			}
			fixed := cloneMap(im)
			for k, v := range fixed {
				switch v.(type) {
				case string:
				default:
					fixed[k] = stringify(v)
				}
			}
			normalized = append(normalized, fixed)
		}
		m["quiz_blueprint"] = normalized
	}
}

// ---- slides ----

func validateSlides(m map[string]any) error {
	slides, ok := m["slides"].([]any)
	if !ok {
		return fmt.Errorf("slides: missing slides list")
	}
	for i, s := range slides {
		sm, ok := s.(map[string]any)
		if !ok {
			return fmt.Errorf("slides: slides[%d] not an object", i)
		}
		for _, key := range []string{"slide_id", "title", "content"} {
			if _, ok := sm[key].(string); !ok {
				return fmt.Errorf("slides: slides[%d] missing %s", i, key)
			}
		}
	}
	return nil
}

func repairSlides(m map[string]any) {
	if slides, ok := m["slides"].([]any); ok {
		normalized := make([]any, 0, len(slides))
		idx := 0
		for _, s := range slides {
			sm, ok := s.(map[string]any)
			if !ok {
				continue
			}
			idx++
			fixed := cloneMap(sm)
			if _, ok := fixed["slide_id"].(string); !ok {
				if v := firstString(fixed, "id"); v != "" {
					fixed["slide_id"] = v
				} else {
					fixed["slide_id"] = fmt.Sprintf("slide_%d", idx)
				}
			}
			if _, ok := fixed["title"].(string); !ok {
				fixed["title"] = firstString(fixed, "slide_title", "heading")
			}
			if _, ok := fixed["content"].(string); !ok {
				fixed["content"] = firstString(fixed, "body", "text")
			}
			if _, ok := fixed["visual_notes"].(string); !ok {
				fixed["visual_notes"] = firstString(fixed, "visual_aids")
			}
			if _, ok := fixed["speaker_notes"].(string); !ok {
				fixed["speaker_notes"] = firstString(fixed, "notes")
			}
			normalized = append(normalized, fixed)
		}
		m["slides"] = normalized
	}
	if !isList(m["slides"]) {
		m["slides"] = []any{}
	}
}

// ---- quiz ----

func validateQuiz(m map[string]any) error {
	questions, ok := m["questions"].([]any)
	if !ok {
		return fmt.Errorf("quiz: missing questions list")
	}
	for i, q := range questions {
		if err := validateQuestionCommon("quiz", i, q, true); err != nil {
			return err
		}
	}
	if !isList(m["practice_exercises"]) {
		return fmt.Errorf("quiz: missing practice_exercises")
	}
	if _, ok := m["answer_key"].(map[string]any); !ok {
		return fmt.Errorf("quiz: missing answer_key")
	}
	if !isNumber(m["total_questions"]) {
		return fmt.Errorf("quiz: missing total_questions")
	}
	return nil
}

func repairQuiz(m map[string]any) {
	if questions, ok := m["questions"].([]any); ok {
		m["questions"] = repairQuestionList(questions, true)
	}
	if !isList(m["questions"]) {
		m["questions"] = []any{}
	}
	if exercises, ok := m["practice_exercises"].([]any); ok {
		normalized := make([]any, 0, len(exercises))
		for _, ex := range exercises {
			em, ok := ex.(map[string]any)
			if !ok {
				continue
			}
			fixed := cloneMap(em)
			fixed["difficulty"] = normalizeDifficulty(fixed["difficulty"])
			fixed["problems"] = toStringList(fixed["problems"])
			fixed["answer_key"] = toStringList(fixed["answer_key"])
			normalized = append(normalized, fixed)
		}
		m["practice_exercises"] = normalized
	}
	if !isList(m["practice_exercises"]) {
		m["practice_exercises"] = []any{}
	}
	if _, ok := m["answer_key"].(map[string]any); !ok {
		m["answer_key"] = map[string]any{}
	}
	if !isNumber(m["total_questions"]) {
		m["total_questions"] = float64(len(m["questions"].([]any)))
	}
}

// ---- video ----

func validateVideo(m map[string]any) error {
	if _, ok := m["title"].(string); !ok {
		return fmt.Errorf("video: missing title")
	}
	if _, ok := m["script"].(string); !ok {
		return fmt.Errorf("video: missing script")
	}
	if !isNumber(m["duration_seconds"]) {
		return fmt.Errorf("video: missing duration_seconds")
	}
	if !isList(m["key_concepts"]) {
		return fmt.Errorf("video: missing key_concepts")
	}
	return nil
}

func repairVideo(m map[string]any) {
	if _, ok := m["script"]; !ok {
		if v := firstString(m, "narration", "narration_script"); v != "" {
			m["script"] = v
		}
	}
	if _, ok := m["script"].(string); !ok {
		m["script"] = stringify(m["script"])
	}
	if !isNumber(m["duration_seconds"]) {
		if n, ok := asInt(m["duration_seconds"]); ok {
			m["duration_seconds"] = float64(n)
		} else {
			digits := digitsOnly(stringify(m["duration_seconds"]))
			if digits == "" {
				m["duration_seconds"] = float64(0)
			} else {
				n, _ := strconv.Atoi(digits)
				m["duration_seconds"] = float64(n)
			}
		}
	}
	if _, ok := m["visual_description"].(string); !ok {
		m["visual_description"] = stringify(m["visual_description"])
	}
	m["key_concepts"] = toStringList(m["key_concepts"])
}

// ---- shared coercion helpers ----

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func isList(v any) bool {
	_, ok := v.([]any)
	return ok
}

func isNumber(v any) bool {
	switch v.(type) {
	case float64, int, int64, json.Number:
		return true
	}
	return false
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case int:
		return t, true
	case int64:
		return int(t), true
	case string:
		s := strings.TrimSpace(t)
		if n, err := strconv.Atoi(s); err == nil {
			return n, true
		}
	}
	return 0, false
}

func asBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func firstValue(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// stringify flattens any value to a string: lists join, maps serialize.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, x := range t {
			parts = append(parts, stringify(x))
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		raw, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(raw)
	default:
		return fmt.Sprint(t)
	}
}

func toStringList(v any) []any {
	list, ok := v.([]any)
	if !ok {
		return []any{}
	}
	out := make([]any, 0, len(list))
	for _, x := range list {
		out = append(out, stringify(x))
	}
	return out
}

func normalizeDifficulty(v any) string {
	diff := strings.ToLower(strings.TrimSpace(stringify(v)))
	switch diff {
	case "easy", "medium", "hard":
		return diff
	}
	return "medium"
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, ch := range s {
		if ch >= '0' && ch <= '9' {
			b.WriteRune(ch)
		}
	}
	return b.String()
}
