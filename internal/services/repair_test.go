package services

import (
	"reflect"
	"testing"
)

func TestRepairSkillSetAliases(t *testing.T) {
	in := map[string]any{
		"skills": []any{
			map[string]any{
				"skillId":      "s1",
				"title":        "Fractions",
				"desc":         "Adding fractions",
				"prerequisite": true,
			},
		},
	}

	out, err := RepairPayload(SchemaSkillSet, in)
	if err != nil {
		t.Fatalf("RepairPayload error: %v", err)
	}

	skills := out["skills"].([]any)
	if len(skills) != 1 {
		t.Fatalf("got %d skills, want 1", len(skills))
	}
	skill := skills[0].(map[string]any)
	if skill["skill_id"] != "s1" {
		t.Fatalf("skill_id=%v, want s1", skill["skill_id"])
	}
	if skill["name"] != "Fractions" {
		t.Fatalf("name=%v, want Fractions", skill["name"])
	}
	if skill["description"] != "Adding fractions" {
		t.Fatalf("description=%v, want Adding fractions", skill["description"])
	}
	if skill["is_prerequisite"] != true {
		t.Fatalf("is_prerequisite=%v, want true", skill["is_prerequisite"])
	}
	if skill["weight"] != 0.7 {
		t.Fatalf("weight=%v, want default 0.7", skill["weight"])
	}
	if _, ok := out["skill_dependencies"].(map[string]any); !ok {
		t.Fatalf("skill_dependencies not defaulted: %v", out["skill_dependencies"])
	}
}

func TestRepairSkillSetUnnamedSkill(t *testing.T) {
	in := map[string]any{
		"skills": []any{
			map[string]any{"id": "s1"},
		},
	}
	out, err := RepairPayload(SchemaSkillSet, in)
	if err != nil {
		t.Fatalf("RepairPayload error: %v", err)
	}
	skill := out["skills"].([]any)[0].(map[string]any)
	if skill["name"] != "Unnamed skill" {
		t.Fatalf("name=%v, want Unnamed skill", skill["name"])
	}
}

func TestRepairIsIdempotent(t *testing.T) {
	in := map[string]any{
		"skills": []any{
			map[string]any{"skillId": "s1", "title": "Fractions"},
		},
	}
	once, err := RepairPayload(SchemaSkillSet, in)
	if err != nil {
		t.Fatalf("first repair error: %v", err)
	}
	twice, err := RepairPayload(SchemaSkillSet, once)
	if err != nil {
		t.Fatalf("second repair error: %v", err)
	}
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("repair not idempotent:\nonce:  %#v\ntwice: %#v", once, twice)
	}
}

func TestRepairDiagnosticUnwrapAndAliases(t *testing.T) {
	in := map[string]any{
		"diagnostic": map[string]any{
			"questions": []any{
				map[string]any{
					"question":   "What is 1/2 + 1/4?",
					"options":    []any{"3/4", "2/6"},
					"answer":     float64(42),
					"difficulty": "EXTREME",
				},
			},
		},
	}
	out, err := RepairPayload(SchemaDiagnostic, in)
	if err != nil {
		t.Fatalf("RepairPayload error: %v", err)
	}
	questions := out["questions"].([]any)
	if len(questions) != 1 {
		t.Fatalf("got %d questions, want 1", len(questions))
	}
	q := questions[0].(map[string]any)
	if q["question_id"] != "q1" {
		t.Fatalf("question_id=%v, want q1", q["question_id"])
	}
	if q["question_text"] != "What is 1/2 + 1/4?" {
		t.Fatalf("question_text=%v", q["question_text"])
	}
	if q["correct_answer"] != "42" {
		t.Fatalf("correct_answer=%v, want stringified 42", q["correct_answer"])
	}
	if q["difficulty"] != "medium" {
		t.Fatalf("difficulty=%v, want fallback medium", q["difficulty"])
	}
	if out["total_questions"] != float64(1) {
		t.Fatalf("total_questions=%v, want 1", out["total_questions"])
	}
}

func TestRepairPackPlan(t *testing.T) {
	in := map[string]any{
		"teaching_pack": map[string]any{
			"group_id":            "group_1",
			"learning_objectives": []any{"obj"},
			"estimated_time":      map[string]any{"intro": float64(10), "practice": float64(20)},
			"differentiation_strategy": map[string]any{
				"pace": "slow",
			},
			"slide_outline": []any{
				map[string]any{
					"title":      "Intro",
					"key_points": []any{"one", "two"},
				},
			},
			"quiz_blueprint": map[string]any{"skill_id": "s1", "difficulty": "easy"},
		},
	}
	out, err := RepairPayload(SchemaPackPlan, in)
	if err != nil {
		t.Fatalf("RepairPayload error: %v", err)
	}
	if out["estimated_time"] != float64(30) {
		t.Fatalf("estimated_time=%v, want summed 30", out["estimated_time"])
	}
	if _, ok := out["differentiation_strategy"].(string); !ok {
		t.Fatalf("differentiation_strategy not serialized: %v", out["differentiation_strategy"])
	}
	outline := out["slide_outline"].([]any)
	item := outline[0].(map[string]any)
	if item["key_points"] != "one\ntwo" {
		t.Fatalf("key_points=%q, want joined lines", item["key_points"])
	}
	blueprint := out["quiz_blueprint"].([]any)
	if len(blueprint) != 1 {
		t.Fatalf("quiz_blueprint length=%d, want singleton list", len(blueprint))
	}
}

func TestRepairSlidesAliases(t *testing.T) {
	in := map[string]any{
		"slides": []any{
			map[string]any{
				"slide_title": "Welcome",
				"body":        "Hello",
				"visual_aids": "a diagram",
				"notes":       "speak slowly",
			},
		},
	}
	out, err := RepairPayload(SchemaSlides, in)
	if err != nil {
		t.Fatalf("RepairPayload error: %v", err)
	}
	slide := out["slides"].([]any)[0].(map[string]any)
	if slide["slide_id"] != "slide_1" {
		t.Fatalf("slide_id=%v, want slide_1", slide["slide_id"])
	}
	if slide["title"] != "Welcome" || slide["content"] != "Hello" {
		t.Fatalf("title/content not mapped: %v / %v", slide["title"], slide["content"])
	}
	if slide["visual_notes"] != "a diagram" || slide["speaker_notes"] != "speak slowly" {
		t.Fatalf("notes not mapped: %v / %v", slide["visual_notes"], slide["speaker_notes"])
	}
}

func TestRepairGroupProfileEnumFallbacks(t *testing.T) {
	in := map[string]any{
		"group_id":      "group_2",
		"mastery_level": "super",
		"learning_pace": "lightning",
	}
	out, err := RepairPayload(SchemaGroupProfile, in)
	if err != nil {
		t.Fatalf("RepairPayload error: %v", err)
	}
	if out["mastery_level"] != "medium" {
		t.Fatalf("mastery_level=%v, want medium", out["mastery_level"])
	}
	if out["learning_pace"] != "moderate" {
		t.Fatalf("learning_pace=%v, want moderate", out["learning_pace"])
	}
}

func TestRepairFailsWithoutContent(t *testing.T) {
	// repair reshapes structure but never invents domain content
	if _, err := RepairPayload(SchemaLessonSummary, map[string]any{"grade": float64(5)}); err == nil {
		t.Fatalf("expected repair to fail for summary with no title")
	}
}
