package pack_build

import (
	"reflect"
	"testing"
)

func TestStageOrderSplitsSharedAndPerGroup(t *testing.T) {
	shared := StageOrder(nil)
	group := GroupStageOrder(nil)

	if !reflect.DeepEqual(shared, fallbackStageOrder) {
		t.Fatalf("shared stages=%v, want %v", shared, fallbackStageOrder)
	}
	if !reflect.DeepEqual(group, fallbackGroupStageOrder) {
		t.Fatalf("group stages=%v, want %v", group, fallbackGroupStageOrder)
	}

	inGroup := map[string]bool{}
	for _, name := range group {
		inGroup[name] = true
	}
	for _, name := range shared {
		if inGroup[name] {
			t.Fatalf("stage %s appears in both shared and per-group orders", name)
		}
	}
}

func TestStageConfigDiagnosticQuestions(t *testing.T) {
	cfg := StageConfig(nil, "generate_diagnostic")
	if cfg == nil {
		t.Fatalf("generate_diagnostic has no config block")
	}
	if cfg["questions_per_skill"] != 2 {
		t.Fatalf("questions_per_skill=%v, want 2", cfg["questions_per_skill"])
	}
}

func TestValidatePipelineSpec(t *testing.T) {
	enabled := true
	disabled := false

	cases := []struct {
		name    string
		spec    yamlPipelineSpec
		wantErr bool
	}{
		{
			name: "valid",
			spec: yamlPipelineSpec{
				Pipeline: "pack_build",
				Stages:   []yamlStageSpec{{Name: "load_lesson", Enabled: &enabled}},
			},
		},
		{
			name: "wrong_pipeline",
			spec: yamlPipelineSpec{
				Pipeline: "other",
				Stages:   []yamlStageSpec{{Name: "load_lesson"}},
			},
			wantErr: true,
		},
		{
			name: "duplicate_stage",
			spec: yamlPipelineSpec{
				Pipeline: "pack_build",
				Stages:   []yamlStageSpec{{Name: "a"}, {Name: "a"}},
			},
			wantErr: true,
		},
		{
			name: "variant_references_disabled_stage",
			spec: yamlPipelineSpec{
				Pipeline: "pack_build",
				Stages:   []yamlStageSpec{{Name: "a"}, {Name: "b", Enabled: &disabled}},
				Variants: map[string]yamlVariant{"per_group": {Stages: []string{"b"}}},
			},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validatePipelineSpec(&tc.spec)
			if tc.wantErr && err == nil {
				t.Fatalf("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
