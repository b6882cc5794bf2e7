package utils

import "testing"

func TestGetEnvAsBool(t *testing.T) {
	cases := []struct {
		name       string
		value      string
		set        bool
		defaultVal bool
		want       bool
	}{
		{"unset_uses_default", "", false, true, true},
		{"one_is_true", "1", true, false, true},
		{"yes_is_true", "yes", true, false, true},
		{"on_with_spaces", " ON ", true, false, true},
		{"zero_is_false", "0", true, true, false},
		{"no_is_false", "no", true, true, false},
		{"garbage_uses_default", "maybe", true, true, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			const key = "TEACHPACK_TEST_BOOL"
			if tc.set {
				t.Setenv(key, tc.value)
			}
			if got := GetEnvAsBool(key, tc.defaultVal, nil); got != tc.want {
				t.Fatalf("GetEnvAsBool(%q)=%v, want %v", tc.value, got, tc.want)
			}
		})
	}
}
