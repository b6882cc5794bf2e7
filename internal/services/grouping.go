package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/yungbote/teachpack-backend/internal/logger"
	"github.com/yungbote/teachpack-backend/internal/types"
)

const maxGroupMisconceptions = 5

// GroupingService partitions a roster into ability groups. The primary path
// asks the model for a grouping plan; everything here is the deterministic
// machinery around it: quartile fallback, qualitative score mapping, and
// plan sanitation.
type GroupingService interface {
	GroupByQuartile(results []types.StudentDiagnosticResult, numGroups int) types.GroupingResult
	QualitativeScore(note string) float64
	ApplyGroupPlan(plan map[string]any, roster []string, numGroups int) [][]string
	DistributeEvenly(roster []string, numGroups int) [][]string
	BuildProfiles(buckets [][]string, results []types.StudentDiagnosticResult) types.GroupingResult
}

type groupingService struct {
	log *logger.Logger
}

func NewGroupingService(log *logger.Logger) GroupingService {
	return &groupingService{log: log.With("service", "GroupingService")}
}

// meanMastery averages a student's per-skill mastery; no skills means 0.
func meanMastery(r types.StudentDiagnosticResult) float64 {
	if len(r.SkillMastery) == 0 {
		return 0
	}
	total := 0.0
	for _, v := range r.SkillMastery {
		total += v
	}
	return total / float64(len(r.SkillMastery))
}

// masteryProfile maps a group's mean mastery onto the level/pace labels.
func masteryProfile(mean float64) (level, pace string) {
	switch {
	case mean < 0.4:
		return "low", "slow"
	case mean < 0.6:
		return "medium", "moderate"
	case mean < 0.8:
		return "high", "moderate"
	default:
		return "advanced", "fast"
	}
}

// GroupByQuartile sorts students by mean mastery ascending and slices them
// into numGroups contiguous buckets. Bucket size is len/numGroups with the
// final bucket absorbing the remainder, so small rosters can leave earlier
// buckets empty.
func (s *groupingService) GroupByQuartile(results []types.StudentDiagnosticResult, numGroups int) types.GroupingResult {
	if numGroups < 1 {
		numGroups = 1
	}

	sorted := make([]types.StudentDiagnosticResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		return meanMastery(sorted[i]) < meanMastery(sorted[j])
	})

	size := len(sorted) / numGroups
	buckets := make([][]types.StudentDiagnosticResult, numGroups)
	for i := 0; i < numGroups; i++ {
		start := i * size
		end := start + size
		if i == numGroups-1 {
			end = len(sorted)
		}
		if start > len(sorted) {
			start = len(sorted)
		}
		if end > len(sorted) {
			end = len(sorted)
		}
		buckets[i] = sorted[start:end]
	}

	groups := make([]types.GroupProfile, 0, numGroups)
	for i, bucket := range buckets {
		groups = append(groups, buildProfile(i, bucket))
	}

	return types.GroupingResult{
		Groups:        groups,
		Rationale:     "Students grouped by diagnostic mastery quartiles.",
		TotalStudents: len(results),
	}
}

func buildProfile(idx int, bucket []types.StudentDiagnosticResult) types.GroupProfile {
	mean := 0.0
	if len(bucket) > 0 {
		for _, r := range bucket {
			mean += meanMastery(r)
		}
		mean /= float64(len(bucket))
	}
	level, pace := masteryProfile(mean)

	// average per-skill mastery across the bucket
	skillTotals := map[string]float64{}
	skillCounts := map[string]int{}
	students := make([]string, 0, len(bucket))
	misconceptions := make([]string, 0)
	seen := map[string]bool{}
	for _, r := range bucket {
		students = append(students, r.StudentName)
		for skill, v := range r.SkillMastery {
			skillTotals[skill] += v
			skillCounts[skill]++
		}
		for _, m := range r.Misconceptions {
			if seen[m] {
				continue
			}
			seen[m] = true
			if len(misconceptions) < maxGroupMisconceptions {
				misconceptions = append(misconceptions, m)
			}
		}
	}
	skillMastery := make(map[string]float64, len(skillTotals))
	for skill, total := range skillTotals {
		skillMastery[skill] = total / float64(skillCounts[skill])
	}

	return types.GroupProfile{
		GroupID:              fmt.Sprintf("group_%d", idx+1),
		GroupName:            fmt.Sprintf("Group %d", idx+1),
		Description:          fmt.Sprintf("%d students at %s mastery", len(bucket), level),
		MasteryLevel:         level,
		SkillMastery:         skillMastery,
		CommonMisconceptions: misconceptions,
		LearningPace:         pace,
		Students:             students,
	}
}

// BuildProfiles turns name buckets (from a model grouping plan) into full
// profiles using each student's diagnostic result.
func (s *groupingService) BuildProfiles(buckets [][]string, results []types.StudentDiagnosticResult) types.GroupingResult {
	byName := make(map[string]types.StudentDiagnosticResult, len(results))
	for _, r := range results {
		byName[r.StudentName] = r
	}
	groups := make([]types.GroupProfile, 0, len(buckets))
	total := 0
	for i, names := range buckets {
		bucket := make([]types.StudentDiagnosticResult, 0, len(names))
		for _, name := range names {
			if r, ok := byName[name]; ok {
				bucket = append(bucket, r)
			} else {
				bucket = append(bucket, types.StudentDiagnosticResult{StudentID: name, StudentName: name})
			}
		}
		total += len(bucket)
		groups = append(groups, buildProfile(i, bucket))
	}
	return types.GroupingResult{
		Groups:        groups,
		Rationale:     "Students grouped by diagnostic performance and subject affinity.",
		TotalStudents: total,
	}
}

// QualitativeScore maps a teacher's free-text performance note onto a
// numeric score for grouping prompts.
func (s *groupingService) QualitativeScore(note string) float64 {
	n := strings.ToLower(strings.TrimSpace(note))
	switch {
	case strings.Contains(n, "excellent"):
		return 9
	case strings.Contains(n, "good"):
		return 7
	case strings.Contains(n, "average"):
		return 5
	case strings.Contains(n, "needs support"):
		return 3
	default:
		return 5
	}
}

// ApplyGroupPlan sanitizes a model-proposed grouping plan: unknown names are
// dropped, duplicates keep their first placement, and any student the plan
// missed is dealt round-robin across the buckets. The result always covers
// the roster exactly once.
func (s *groupingService) ApplyGroupPlan(plan map[string]any, roster []string, numGroups int) [][]string {
	if numGroups < 1 {
		numGroups = 1
	}
	known := make(map[string]bool, len(roster))
	for _, name := range roster {
		known[name] = true
	}

	buckets := make([][]string, numGroups)
	for i := range buckets {
		buckets[i] = []string{}
	}

	placed := map[string]bool{}
	if rawGroups, ok := plan["groups"].([]any); ok {
		for i, g := range rawGroups {
			if i >= numGroups {
				break
			}
			gm, ok := g.(map[string]any)
			if !ok {
				continue
			}
			members, _ := gm["students"].([]any)
			for _, m := range members {
				name, ok := m.(string)
				if !ok || !known[name] || placed[name] {
					continue
				}
				placed[name] = true
				buckets[i] = append(buckets[i], name)
			}
		}
	}

	next := 0
	for _, name := range roster {
		if placed[name] {
			continue
		}
		buckets[next%numGroups] = append(buckets[next%numGroups], name)
		next++
	}
	return buckets
}

// DistributeEvenly deals the roster round-robin into numGroups buckets.
func (s *groupingService) DistributeEvenly(roster []string, numGroups int) [][]string {
	if numGroups < 1 {
		numGroups = 1
	}
	buckets := make([][]string, numGroups)
	for i := range buckets {
		buckets[i] = []string{}
	}
	for i, name := range roster {
		buckets[i%numGroups] = append(buckets[i%numGroups], name)
	}
	return buckets
}
