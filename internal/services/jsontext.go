package services

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

var (
	errNoJSONObject   = errors.New("no JSON object found in model output")
	errUnclosedObject = errors.New("unclosed JSON object in model output")
)

// stripCodeFence removes a surrounding ``` fence (with or without a language
// tag) from model output.
func stripCodeFence(text string) string {
	cleaned := strings.TrimSpace(text)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}
	lines := strings.Split(cleaned, "\n")
	if len(lines) > 0 && strings.HasPrefix(lines[0], "```") {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// extractJSONBlock locates the first balanced top-level object by bracket-depth
// scanning. Naive substring search would stop at the first '}' inside a nested
// payload.
func extractJSONBlock(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return "", errNoJSONObject
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", errUnclosedObject
}

var (
	reMaxContext  = regexp.MustCompile(`maximum context length is (\d+)`)
	reInputTokens = regexp.MustCompile(`request has (\d+) input tokens`)
	reAltLimits   = regexp.MustCompile(`\((\d+) > (\d+) - (\d+)\)`)
)

// extractTokenBudget parses a backend context-length error message and returns
// the safe remaining completion budget: max(16, max_len - input_tokens).
func extractTokenBudget(message string) (int, bool) {
	m := reMaxContext.FindStringSubmatch(message)
	mi := reInputTokens.FindStringSubmatch(message)
	if m != nil && mi != nil {
		maxLen, err1 := strconv.Atoi(m[1])
		inputTokens, err2 := strconv.Atoi(mi[1])
		if err1 == nil && err2 == nil {
			return maxInt(16, maxLen-inputTokens), true
		}
	}
	alt := reAltLimits.FindStringSubmatch(message)
	if alt != nil {
		maxLen, err1 := strconv.Atoi(alt[2])
		inputTokens, err2 := strconv.Atoi(alt[3])
		if err1 == nil && err2 == nil {
			return maxInt(16, maxLen-inputTokens), true
		}
	}
	return 0, false
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
