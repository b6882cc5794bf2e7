package services

import (
	"errors"
	"testing"
)

func TestStripCodeFence(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "no_fence",
			in:   `{"a": 1}`,
			want: `{"a": 1}`,
		},
		{
			name: "plain_fence",
			in:   "```\n{\"a\": 1}\n```",
			want: `{"a": 1}`,
		},
		{
			name: "json_language_tag",
			in:   "```json\n{\"a\": 1}\n```",
			want: `{"a": 1}`,
		},
		{
			name: "leading_whitespace",
			in:   "  ```json\n{\"a\": 1}\n```  ",
			want: `{"a": 1}`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := stripCodeFence(tc.in)
			if got != tc.want {
				t.Fatalf("stripCodeFence(%q)=%q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestExtractJSONBlock(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    string
		wantErr error
	}{
		{
			name: "bare_object",
			in:   `{"a": 1}`,
			want: `{"a": 1}`,
		},
		{
			name: "surrounded_by_prose",
			in:   `Here is the result: {"a": {"b": 2}} hope that helps`,
			want: `{"a": {"b": 2}}`,
		},
		{
			name: "brace_inside_string",
			in:   `{"text": "a } inside"}`,
			want: `{"text": "a } inside"}`,
		},
		{
			name: "escaped_quote_inside_string",
			in:   `{"text": "she said \"}\" loudly"}`,
			want: `{"text": "she said \"}\" loudly"}`,
		},
		{
			name:    "no_object",
			in:      "no json here",
			wantErr: errNoJSONObject,
		},
		{
			name:    "truncated_object",
			in:      `{"a": {"b": 2}`,
			wantErr: errUnclosedObject,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := extractJSONBlock(tc.in)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("extractJSONBlock(%q) err=%v, want %v", tc.in, err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("extractJSONBlock(%q) unexpected error: %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("extractJSONBlock(%q)=%q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestExtractTokenBudget(t *testing.T) {
	cases := []struct {
		name   string
		msg    string
		want   int
		wantOK bool
	}{
		{
			name:   "max_context_and_input",
			msg:    "This model's maximum context length is 2048 tokens. However, your request has 1900 input tokens.",
			want:   148,
			wantOK: true,
		},
		{
			name:   "alt_parenthesized_form",
			msg:    "max_tokens too large (512 > 2048 - 1900)",
			want:   148,
			wantOK: true,
		},
		{
			name:   "floor_at_16",
			msg:    "maximum context length is 2048 tokens, request has 2047 input tokens",
			want:   16,
			wantOK: true,
		},
		{
			name:   "unrelated_error",
			msg:    "rate limit exceeded",
			wantOK: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := extractTokenBudget(tc.msg)
			if ok != tc.wantOK {
				t.Fatalf("extractTokenBudget(%q) ok=%v, want %v", tc.msg, ok, tc.wantOK)
			}
			if ok && got != tc.want {
				t.Fatalf("extractTokenBudget(%q)=%d, want %d", tc.msg, got, tc.want)
			}
		})
	}
}
