package services

import (
	"fmt"
	"math"
	"reflect"
	"testing"

	"github.com/yungbote/teachpack-backend/internal/types"
)

func TestParseRosterText(t *testing.T) {
	svc := NewRosterService(testLogger(t))
	raw := []byte("Alice\n\n  Bob  \nCarol\n")
	names, err := svc.Parse("roster.txt", raw)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	want := []string{"Alice", "Bob", "Carol"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("names=%v, want %v", names, want)
	}
}

func TestParseRosterCSV(t *testing.T) {
	svc := NewRosterService(testLogger(t))
	cases := []struct {
		name string
		raw  string
		want []string
	}{
		{
			name: "name_header",
			raw:  "id,Student Name,grade\n1,Alice,5\n2,Bob,5\n",
			want: []string{"Alice", "Bob"},
		},
		{
			name: "headerless_single_column",
			raw:  "Alice\nBob\n",
			want: []string{"Alice", "Bob"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			names, err := svc.Parse("roster.csv", []byte(tc.raw))
			if err != nil {
				t.Fatalf("Parse error: %v", err)
			}
			if !reflect.DeepEqual(names, tc.want) {
				t.Fatalf("names=%v, want %v", names, tc.want)
			}
		})
	}
}

func TestParseRosterJSON(t *testing.T) {
	svc := NewRosterService(testLogger(t))
	cases := []struct {
		name string
		raw  string
		want []string
	}{
		{
			name: "bare_list",
			raw:  `["Alice", "Bob"]`,
			want: []string{"Alice", "Bob"},
		},
		{
			name: "object_list",
			raw:  `[{"name": "Alice"}, {"student_name": "Bob"}]`,
			want: []string{"Alice", "Bob"},
		},
		{
			name: "wrapped",
			raw:  `{"students": ["Alice"]}`,
			want: []string{"Alice"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			names, err := svc.Parse("roster.json", []byte(tc.raw))
			if err != nil {
				t.Fatalf("Parse error: %v", err)
			}
			if !reflect.DeepEqual(names, tc.want) {
				t.Fatalf("names=%v, want %v", names, tc.want)
			}
		})
	}
}

func TestDefaultRoster(t *testing.T) {
	svc := NewRosterService(testLogger(t))
	names := svc.DefaultRoster(3)
	want := []string{"Student_1", "Student_2", "Student_3"}
	if !reflect.DeepEqual(names, want) {
		t.Fatalf("names=%v, want %v", names, want)
	}
}

func TestMockDiagnosticResultsDeterministic(t *testing.T) {
	svc := NewRosterService(testLogger(t))
	diag := types.Diagnostic{
		Questions: []types.DiagnosticQuestion{
			{QuestionID: "q1", Options: []string{"a", "b", "c"}, CorrectAnswer: "a", SkillID: "s1"},
			{QuestionID: "q2", Options: []string{"a", "b"}, CorrectAnswer: "b", SkillID: "s1"},
			{QuestionID: "q3", Options: []string{"x", "y"}, CorrectAnswer: "x", SkillID: "s2"},
		},
		TotalQuestions: 3,
	}
	skills := &types.SkillSet{Skills: []types.Skill{
		{SkillID: "s1", Name: "Adding"},
		{SkillID: "s2", Name: "Reducing"},
		{SkillID: "s3", Name: "Comparing"},
	}}
	students := []string{"Alice", "Bob"}

	first := svc.MockDiagnosticResults(students, diag, skills, 7)
	second := svc.MockDiagnosticResults(students, diag, skills, 7)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("same seed produced different results")
	}

	for _, r := range first {
		if len(r.Answers) != 3 {
			t.Fatalf("student %s answered %d questions, want 3", r.StudentName, len(r.Answers))
		}
		// every skill is present, including s3 which no question covers
		if len(r.SkillMastery) != 3 {
			t.Fatalf("student %s has mastery for %d skills, want all 3", r.StudentName, len(r.SkillMastery))
		}
		if r.SkillMastery["s3"] != 0.0 {
			t.Fatalf("untested skill s3 mastery=%v, want 0.0", r.SkillMastery["s3"])
		}
		if r.Score < 0 || r.Score > 1 {
			t.Fatalf("score=%v out of range", r.Score)
		}
		for _, v := range r.SkillMastery {
			if v > 1.0 {
				t.Fatalf("skill mastery %v exceeds cap", v)
			}
		}

		// misconceptions come only from missed skills, one each
		wrong := map[string]bool{}
		for _, q := range diag.Questions {
			if r.Answers[q.QuestionID] != q.CorrectAnswer {
				wrong[q.SkillID] = true
			}
		}
		if len(r.Misconceptions) != len(wrong) {
			t.Fatalf("student %s has %d misconceptions, want one per missed skill (%d)", r.StudentName, len(r.Misconceptions), len(wrong))
		}
	}
}

func TestMockDiagnosticResultsEmptyDiagnostic(t *testing.T) {
	svc := NewRosterService(testLogger(t))
	results := svc.MockDiagnosticResults([]string{"Alice"}, types.Diagnostic{}, nil, 1)
	if results[0].Score != 0.0 {
		t.Fatalf("score=%v, want 0.0 for empty diagnostic", results[0].Score)
	}
}

// With one question per skill the mean mastery must track the score: each
// correct answer is worth 0.5 on its own skill, everything else stays 0.0.
// If unanswered skills were dropped from the map, every student would
// average to 0.5 regardless of score and grouping could not rank them.
func TestMockDiagnosticResultsMeanTracksScore(t *testing.T) {
	svc := NewRosterService(testLogger(t))

	const numSkills = 10
	skills := &types.SkillSet{}
	diag := types.Diagnostic{}
	for i := 0; i < numSkills; i++ {
		id := fmt.Sprintf("s%d", i+1)
		skills.Skills = append(skills.Skills, types.Skill{SkillID: id, Name: id})
		diag.Questions = append(diag.Questions, types.DiagnosticQuestion{
			QuestionID:    fmt.Sprintf("q%d", i+1),
			Options:       []string{"a", "b", "c", "d"},
			CorrectAnswer: "a",
			SkillID:       id,
		})
	}
	diag.TotalQuestions = numSkills

	students := make([]string, 0, 40)
	for i := 0; i < 40; i++ {
		students = append(students, fmt.Sprintf("Student_%d", i+1))
	}

	results := svc.MockDiagnosticResults(students, diag, skills, 11)

	distinct := map[float64]bool{}
	for _, r := range results {
		mean := meanMastery(r)
		want := 0.5 * r.Score
		if math.Abs(mean-want) > 1e-9 {
			t.Fatalf("student %s: mean mastery=%v, want %v (score %v)", r.StudentName, mean, want, r.Score)
		}
		distinct[mean] = true
	}
	// 40 students at a 70% success rate cannot all land on the same mean
	if len(distinct) < 2 {
		t.Fatalf("all %d students share mean mastery %v; grouping cannot rank them", len(results), results[0].Score*0.5)
	}
}
