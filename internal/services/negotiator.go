package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/teachpack-backend/internal/logger"
	"github.com/yungbote/teachpack-backend/internal/repos"
	"github.com/yungbote/teachpack-backend/internal/types"
)

var ErrNegotiationExhausted = errors.New("negotiation retries exhausted")

const strictJSONSuffix = "Return ONLY a valid JSON object that strictly matches the required schema. Do not include any extra text."

// negotiationState tracks the adaptive completion budget across one RequestJSON
// call. maxAllowed is the hard ceiling learned from a context-length rejection;
// zero means no ceiling learned yet.
type negotiationState struct {
	maxTokens       int
	maxAllowed      int
	parseAttempts   int
	budgetShrinks   int
	truncationBumps int
}

// applyBudgetError shrinks max_tokens after the backend rejected the request
// for context length. The 64-token margin keeps the follow-up request safely
// under the reported remainder. Shrinks and truncation bumps are capped
// independently so a run of context-length rejections does not steal the
// retries a truncated completion is entitled to.
func (s *negotiationState) applyBudgetError(budget int) {
	s.maxAllowed = budget
	s.maxTokens = maxInt(16, budget-64)
	s.budgetShrinks++
}

// applyTruncation bumps max_tokens after a completion came back with an
// unclosed JSON object, without exceeding any learned ceiling.
func (s *negotiationState) applyTruncation() {
	next := s.maxTokens + 64
	if s.maxAllowed > 0 {
		next = minInt(next, s.maxAllowed-8)
	}
	s.maxTokens = next
	s.truncationBumps++
}

// Negotiator wraps the completion client with the budget/parse negotiation
// loop: context-length rejections and truncated output adjust the token
// budget without consuming a parse retry; malformed output goes through
// schema repair before a stricter re-prompt burns one.
type Negotiator struct {
	log    *logger.Logger
	client OpenAIClient
	calls  repos.AICallLogRepo

	initialMaxTokens int
	maxParseRetries  int
	maxBudgetAdjusts int
}

func NewNegotiator(log *logger.Logger, client OpenAIClient, calls repos.AICallLogRepo) *Negotiator {
	return &Negotiator{
		log:              log.With("service", "Negotiator"),
		client:           client,
		calls:            calls,
		initialMaxTokens: 512,
		maxParseRetries:  2,
		maxBudgetAdjusts: 10,
	}
}

// RequestJSON runs one prompt to a validated record of the given kind.
// jobID is optional and only used for call accounting.
func (n *Negotiator) RequestJSON(ctx context.Context, jobID *uuid.UUID, callType string, kind SchemaKind, system, user string) (map[string]any, error) {
	state := &negotiationState{maxTokens: n.initialMaxTokens}
	prompt := user

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		started := time.Now()
		text, callErr := n.client.Complete(ctx, CompletionRequest{
			System:    system,
			User:      prompt,
			MaxTokens: state.maxTokens,
		})
		n.recordCall(jobID, callType, state.maxTokens, len(prompt), len(text), time.Since(started), callErr)

		if callErr != nil {
			budget, ok := extractTokenBudget(callErr.Error())
			if !ok {
				return nil, callErr
			}
			if state.budgetShrinks >= n.maxBudgetAdjusts {
				return nil, fmt.Errorf("%w: too many budget shrinks (%s)", ErrNegotiationExhausted, callType)
			}
			state.applyBudgetError(budget)
			n.log.Warn("completion budget renegotiated",
				"call_type", callType,
				"max_tokens", state.maxTokens,
				"max_allowed", state.maxAllowed,
				"shrinks", state.budgetShrinks,
			)
			continue
		}

		block, extractErr := extractJSONBlock(stripCodeFence(text))
		if errors.Is(extractErr, errUnclosedObject) {
			if state.truncationBumps >= n.maxBudgetAdjusts {
				return nil, fmt.Errorf("%w: too many truncation bumps (%s)", ErrNegotiationExhausted, callType)
			}
			state.applyTruncation()
			n.log.Warn("completion truncated, raising budget",
				"call_type", callType,
				"max_tokens", state.maxTokens,
				"bumps", state.truncationBumps,
			)
			continue
		}

		if extractErr == nil {
			var payload map[string]any
			if uErr := json.Unmarshal([]byte(block), &payload); uErr == nil {
				if vErr := ValidatePayload(kind, payload); vErr == nil {
					return payload, nil
				}
				if repaired, rErr := RepairPayload(kind, payload); rErr == nil {
					n.log.Info("payload repaired", "call_type", callType, "kind", string(kind))
					return repaired, nil
				}
			}
		}

		state.parseAttempts++
		if state.parseAttempts > n.maxParseRetries {
			return nil, fmt.Errorf("%w: unparseable %s output after %d attempts", ErrNegotiationExhausted, callType, state.parseAttempts)
		}
		prompt = prompt + "\n\n" + strictJSONSuffix
		n.log.Warn("unparseable completion, retrying stricter",
			"call_type", callType,
			"parse_attempts", state.parseAttempts,
		)
	}
}

func (n *Negotiator) recordCall(jobID *uuid.UUID, callType string, maxTokens, promptChars, outputChars int, dur time.Duration, callErr error) {
	if n.calls == nil {
		return
	}
	entry := &types.AICallLog{
		ID:          uuid.New(),
		JobID:       jobID,
		CallType:    callType,
		Model:       n.client.Model(),
		TokenBudget: maxTokens,
		PromptChars: promptChars,
		OutputChars: outputChars,
		DurationMS:  dur.Milliseconds(),
		Success:     callErr == nil,
	}
	if callErr != nil {
		entry.Error = callErr.Error()
	}
	if _, err := n.calls.Create(context.Background(), nil, []*types.AICallLog{entry}); err != nil {
		n.log.Warn("failed to record AI call", "call_type", callType, "error", err)
	}
}
