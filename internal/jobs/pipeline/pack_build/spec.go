package pack_build

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/teachpack-backend/internal/logger"
)

const packBuildPipelineEnv = "PACK_BUILD_PIPELINE_YAML"

//go:embed pack_build.yaml
var packBuildSpecFS embed.FS

// fallback stage order used when YAML is missing or invalid
var fallbackStageOrder = []string{
	"load_lesson",
	"parse_lesson",
	"extract_skills",
	"generate_diagnostic",
	"simulate_results",
	"group_students",
	"label_groups",
}

var fallbackGroupStageOrder = []string{
	"plan_pack",
	"generate_quiz",
	"generate_slides",
	"render_cover",
	"generate_video",
}

type yamlPipelineSpec struct {
	Pipeline string                 `yaml:"pipeline"`
	Version  int                    `yaml:"version"`
	Stages   []yamlStageSpec        `yaml:"stages"`
	Variants map[string]yamlVariant `yaml:"variants"`
}

type yamlStageSpec struct {
	Name    string         `yaml:"name"`
	Enabled *bool          `yaml:"enabled"`
	Config  map[string]any `yaml:"config"`
}

type yamlVariant struct {
	Stages []string `yaml:"stages"`
}

type pipelineRuntime struct {
	StageOrder      []string
	GroupStageOrder []string
	Stages          map[string]yamlStageSpec
}

var runtimeOnce sync.Once
var runtimeCache *pipelineRuntime
var runtimeErr error

func currentPipelineRuntime(log *logger.Logger) *pipelineRuntime {
	runtimeOnce.Do(func() {
		runtimeCache, runtimeErr = loadPipelineRuntime()
	})
	if runtimeErr != nil {
		if log != nil {
			log.Warn("pack_build: pipeline spec load failed; using fallback", "error", runtimeErr)
		}
		return nil
	}
	return runtimeCache
}

// StageOrder returns the shared (whole-roster) stages in execution order.
func StageOrder(log *logger.Logger) []string {
	if rt := currentPipelineRuntime(log); rt != nil && len(rt.StageOrder) > 0 {
		return rt.StageOrder
	}
	return fallbackStageOrder
}

// GroupStageOrder returns the per-group stages in execution order.
func GroupStageOrder(log *logger.Logger) []string {
	if rt := currentPipelineRuntime(log); rt != nil && len(rt.GroupStageOrder) > 0 {
		return rt.GroupStageOrder
	}
	return fallbackGroupStageOrder
}

// StageConfig returns the YAML config block for a stage, if any.
func StageConfig(log *logger.Logger, name string) map[string]any {
	if rt := currentPipelineRuntime(log); rt != nil {
		if spec, ok := rt.Stages[name]; ok {
			return spec.Config
		}
	}
	return nil
}

func loadPipelineRuntime() (*pipelineRuntime, error) {
	data, err := readPackBuildSpec()
	if err != nil {
		return nil, err
	}

	var spec yamlPipelineSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, err
	}
	if err := validatePipelineSpec(&spec); err != nil {
		return nil, err
	}

	order := make([]string, 0, len(spec.Stages))
	stages := make(map[string]yamlStageSpec, len(spec.Stages))
	for _, stage := range spec.Stages {
		if stage.Name == "" {
			continue
		}
		if stage.Enabled != nil && !*stage.Enabled {
			continue
		}
		order = append(order, stage.Name)
		stages[stage.Name] = stage
	}

	group := []string{}
	shared := order
	if v, ok := spec.Variants["per_group"]; ok {
		inGroup := map[string]bool{}
		for _, name := range v.Stages {
			if _, ok := stages[name]; ok {
				group = append(group, name)
				inGroup[name] = true
			}
		}
		shared = make([]string, 0, len(order))
		for _, name := range order {
			if !inGroup[name] {
				shared = append(shared, name)
			}
		}
	}

	return &pipelineRuntime{
		StageOrder:      shared,
		GroupStageOrder: group,
		Stages:          stages,
	}, nil
}

func readPackBuildSpec() ([]byte, error) {
	if path := strings.TrimSpace(os.Getenv(packBuildPipelineEnv)); path != "" {
		return os.ReadFile(path)
	}
	return packBuildSpecFS.ReadFile("pack_build.yaml")
}

func validatePipelineSpec(spec *yamlPipelineSpec) error {
	if spec == nil {
		return errors.New("missing spec")
	}
	if strings.TrimSpace(spec.Pipeline) != "pack_build" {
		return fmt.Errorf("unexpected pipeline: %s", spec.Pipeline)
	}
	if len(spec.Stages) == 0 {
		return errors.New("no stages defined")
	}

	enabled := map[string]bool{}
	for _, stage := range spec.Stages {
		name := strings.TrimSpace(stage.Name)
		if name == "" {
			return errors.New("stage name is required")
		}
		if _, exists := enabled[name]; exists {
			return fmt.Errorf("duplicate stage name: %s", name)
		}
		if stage.Enabled != nil && !*stage.Enabled {
			continue
		}
		enabled[name] = true
	}

	for key, variant := range spec.Variants {
		if strings.TrimSpace(key) == "" {
			return errors.New("variant name is required")
		}
		seen := map[string]bool{}
		for _, name := range variant.Stages {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if !enabled[name] {
				return fmt.Errorf("variant %s: unknown stage %s", key, name)
			}
			if seen[name] {
				return fmt.Errorf("variant %s: duplicate stage %s", key, name)
			}
			seen[name] = true
		}
	}

	return nil
}
