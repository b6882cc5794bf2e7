package services

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"

	"github.com/yungbote/teachpack-backend/internal/logger"
	"github.com/yungbote/teachpack-backend/internal/types"
)

// RosterService loads student rosters from uploaded text and simulates
// diagnostic results when no real student responses are available.
type RosterService interface {
	Parse(source string, raw []byte) ([]string, error)
	DefaultRoster(n int) []string
	MockDiagnosticResults(students []string, diag types.Diagnostic, skills *types.SkillSet, seed int64) []types.StudentDiagnosticResult
}

type rosterService struct {
	log *logger.Logger
}

func NewRosterService(log *logger.Logger) RosterService {
	return &rosterService{log: log.With("service", "RosterService")}
}

// Parse extracts student names from a roster file. The source hint is a
// filename or format tag; unknown extensions fall back to line-per-name text.
func (s *rosterService) Parse(source string, raw []byte) ([]string, error) {
	lower := strings.ToLower(strings.TrimSpace(source))
	switch {
	case strings.HasSuffix(lower, ".csv") || lower == "csv":
		return parseCSVRoster(raw)
	case strings.HasSuffix(lower, ".json") || lower == "json":
		return parseJSONRoster(raw)
	default:
		return parseTextRoster(raw), nil
	}
}

func parseTextRoster(raw []byte) []string {
	names := make([]string, 0)
	for _, line := range strings.Split(string(raw), "\n") {
		name := strings.TrimSpace(line)
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	return names
}

// parseCSVRoster picks the name column by header keyword; a headerless single
// column is treated as names directly.
func parseCSVRoster(raw []byte) ([]string, error) {
	reader := csv.NewReader(strings.NewReader(string(raw)))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("roster csv: %w", err)
	}
	if len(rows) == 0 {
		return []string{}, nil
	}

	nameCol := -1
	for i, header := range rows[0] {
		h := strings.ToLower(strings.TrimSpace(header))
		if strings.Contains(h, "name") || strings.Contains(h, "student") {
			nameCol = i
			break
		}
	}

	start := 1
	if nameCol == -1 {
		nameCol = 0
		start = 0
	}

	names := make([]string, 0, len(rows))
	for _, row := range rows[start:] {
		if nameCol >= len(row) {
			continue
		}
		name := strings.TrimSpace(row[nameCol])
		if name == "" {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

// parseJSONRoster accepts either a bare list of names or a list of objects
// carrying a name-ish field.
func parseJSONRoster(raw []byte) ([]string, error) {
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		var wrapper map[string]any
		if wErr := json.Unmarshal(raw, &wrapper); wErr != nil {
			return nil, fmt.Errorf("roster json: %w", err)
		}
		list, ok := wrapper["students"].([]any)
		if !ok {
			return nil, fmt.Errorf("roster json: no students list")
		}
		items = list
	}

	names := make([]string, 0, len(items))
	for _, item := range items {
		switch t := item.(type) {
		case string:
			if name := strings.TrimSpace(t); name != "" {
				names = append(names, name)
			}
		case map[string]any:
			if name := firstString(t, "name", "student_name", "student"); name != "" {
				names = append(names, strings.TrimSpace(name))
			}
		}
	}
	return names, nil
}

func (s *rosterService) DefaultRoster(n int) []string {
	names := make([]string, 0, n)
	for i := 0; i < n; i++ {
		names = append(names, fmt.Sprintf("Student_%d", i+1))
	}
	return names
}

// MockDiagnosticResults simulates each student answering the diagnostic with
// a 70% per-question success rate. Seeding is per student name so reruns of
// the same roster reproduce the same results. Wrong answers record one
// misconception per missed skill. Every skill starts at 0.0 mastery so skills
// a student never answered correctly still count against their mean.
func (s *rosterService) MockDiagnosticResults(students []string, diag types.Diagnostic, skills *types.SkillSet, seed int64) []types.StudentDiagnosticResult {
	results := make([]types.StudentDiagnosticResult, 0, len(students))
	for _, name := range students {
		rng := rand.New(rand.NewSource(seed + int64(nameHash(name))))

		answers := make(map[string]string, len(diag.Questions))
		skillMastery := map[string]float64{}
		if skills != nil {
			for _, sk := range skills.Skills {
				skillMastery[sk.SkillID] = 0.0
			}
		}
		for _, q := range diag.Questions {
			if q.SkillID == "" {
				continue
			}
			if _, ok := skillMastery[q.SkillID]; !ok {
				skillMastery[q.SkillID] = 0.0
			}
		}
		misconceptions := []string{}
		missedSkill := map[string]bool{}
		correct := 0
		for _, q := range diag.Questions {
			if rng.Float64() > 0.3 {
				answers[q.QuestionID] = q.CorrectAnswer
				correct++
				if q.SkillID != "" {
					skillMastery[q.SkillID] += 0.5
					if skillMastery[q.SkillID] > 1.0 {
						skillMastery[q.SkillID] = 1.0
					}
				}
				continue
			}
			wrong := make([]string, 0, len(q.Options))
			for _, opt := range q.Options {
				if opt != q.CorrectAnswer {
					wrong = append(wrong, opt)
				}
			}
			if len(wrong) > 0 {
				answers[q.QuestionID] = wrong[rng.Intn(len(wrong))]
			} else {
				answers[q.QuestionID] = "N/A"
			}
			if q.SkillID != "" && !missedSkill[q.SkillID] {
				missedSkill[q.SkillID] = true
				misconceptions = append(misconceptions, fmt.Sprintf("Struggles with %s", q.SkillID))
			}
		}

		score := 0.0
		if len(diag.Questions) > 0 {
			score = float64(correct) / float64(len(diag.Questions))
		}

		results = append(results, types.StudentDiagnosticResult{
			StudentID:      name,
			StudentName:    name,
			Answers:        answers,
			Score:          score,
			SkillMastery:   skillMastery,
			Misconceptions: misconceptions,
		})
	}
	return results
}

func nameHash(name string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return h.Sum32()
}
