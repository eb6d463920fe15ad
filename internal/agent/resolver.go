// internal/agent/resolver.go
package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// referencePlaceholders are the parameter values treated as references to a
// previously mentioned entity of the parameter's type.
var referencePlaceholders = map[string]struct{}{
	"it":       {},
	"that":     {},
	"this":     {},
	"same":     {},
	"last":     {},
	"previous": {},
}

// isPlaceholder reports whether a parameter value refers back to session
// context rather than naming an entity directly ("it", "that pod", "the
// same namespace").
func isPlaceholder(value string) bool {
	fields := strings.Fields(strings.ToLower(value))
	for _, f := range fields {
		if _, ok := referencePlaceholders[f]; ok {
			return true
		}
	}
	return false
}

// Resolver converts raw operator text plus the external collaborator's draft
// into a validated Intent. It never mutates session context: a failed
// resolution leaves the conversation's memory untouched.
type Resolver struct {
	drafter       Drafter
	registry      *Registry
	minConfidence float64
	logger        *zap.Logger
}

// NewResolver wires the resolver to its collaborator and the registry whose
// vocabulary validates every draft.
func NewResolver(drafter Drafter, registry *Registry, minConfidence float64, logger *zap.Logger) *Resolver {
	return &Resolver{
		drafter:       drafter,
		registry:      registry,
		minConfidence: minConfidence,
		logger:        logger.Named("resolver"),
	}
}

// Resolve produces an Intent for the raw text, consulting the session
// snapshot for reference resolution.
//
// The draft is an untrusted hint: an action outside the registry's declared
// vocabulary forces confidence to zero and fails with ErrUnknownIntent, so
// the collaborator can never act as a dispatch key.
func (r *Resolver) Resolve(ctx context.Context, rawText string, session SessionContext) (Intent, error) {
	draft, err := r.drafter.Draft(ctx, rawText)
	if err != nil {
		return Intent{}, fmt.Errorf("%w: drafting failed: %v", ErrUnknownIntent, err)
	}

	action := strings.ToLower(strings.TrimSpace(draft.Action))
	spec, ok := r.registry.ActionSpec(action)
	if !ok {
		r.logger.Debug("Draft action not in vocabulary",
			zap.String("action", action), zap.String("category", draft.Category))
		return Intent{}, fmt.Errorf("%w: action %q is not supported", ErrUnknownIntent, action)
	}

	// A category that contradicts the vocabulary is a sign of a confused
	// draft; the declared category wins and confidence is judged below.
	category := spec.Category
	if draft.Category != "" && TaskCategory(draft.Category) != category {
		r.logger.Debug("Draft category overridden by vocabulary",
			zap.String("draft_category", draft.Category), zap.String("category", string(category)))
	}

	if draft.Confidence < r.minConfidence {
		return Intent{}, fmt.Errorf("%w: confidence %.2f below threshold %.2f, please rephrase",
			ErrUnknownIntent, draft.Confidence, r.minConfidence)
	}

	params := make(map[string]string, len(draft.Parameters))
	for k, v := range draft.Parameters {
		params[strings.ToLower(k)] = v
	}

	// Substitute reference placeholders from session context, then check
	// required parameters. Both failure modes are MissingContext: the
	// request needs information this conversation does not hold.
	for name, value := range params {
		if !isPlaceholder(value) {
			continue
		}
		resolved, ok := session.Entity(name)
		if !ok {
			return Intent{}, fmt.Errorf("%w: %q refers to a %s, but none was mentioned in this session",
				ErrMissingContext, value, name)
		}
		params[name] = resolved
	}
	for _, required := range spec.RequiredParams {
		if params[required] != "" {
			continue
		}
		// An omitted entity parameter falls back to the session's memory,
		// so "show logs again" keeps working without repeating the name.
		if resolved, ok := session.Entity(required); ok && contains(spec.EntityParams, required) {
			params[required] = resolved
			continue
		}
		return Intent{}, fmt.Errorf("%w: parameter %q is required for %s", ErrMissingContext, required, action)
	}

	return Intent{
		Category:   category,
		Action:     action,
		Parameters: params,
		RawText:    rawText,
		Confidence: draft.Confidence,
	}, nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
