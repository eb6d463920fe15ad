// internal/agent/registry.go
package agent

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Match scores used by ScoreIntent. A plugin with no affinity must return 0
// so the registry can treat it as a non-candidate.
const (
	scoreActionMatch   = 10
	scoreCategoryMatch = 5
)

// ScoreIntent is the standard Match implementation shared by the built-in
// plugins: an intent whose action appears in the vocabulary scores
// scoreActionMatch, plus scoreCategoryMatch when the category also agrees.
func ScoreIntent(intent Intent, category TaskCategory, vocabulary []ActionSpec) int {
	score := 0
	for _, spec := range vocabulary {
		if spec.Action == intent.Action {
			score = scoreActionMatch
			break
		}
	}
	if score == 0 {
		return 0
	}
	if intent.Category == category {
		score += scoreCategoryMatch
	}
	return score
}

// Registry indexes plugins by the actions they declare and dispatches
// intents to the unique best scorer. Registration happens at startup;
// dispatch is read-only and safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	actions map[string]ActionSpec
	logger  *zap.Logger
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		actions: make(map[string]ActionSpec),
		logger:  logger.Named("registry"),
	}
}

// Register adds a plugin and folds its vocabulary into the action index.
// Two plugins declaring the same action is a configuration error and is
// rejected so dispatch stays deterministic.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, spec := range p.Vocabulary() {
		if _, exists := r.actions[spec.Action]; exists {
			return fmt.Errorf("action %q already registered", spec.Action)
		}
	}
	for _, spec := range p.Vocabulary() {
		r.actions[spec.Action] = spec
	}
	r.plugins = append(r.plugins, p)
	r.logger.Info("Plugin registered",
		zap.String("plugin", p.Name()),
		zap.String("category", string(p.Category())),
		zap.Int("actions", len(p.Vocabulary())))
	return nil
}

// ActionSpec returns the declared spec for an action, if any plugin
// declared it.
func (r *Registry) ActionSpec(action string) (ActionSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.actions[action]
	return spec, ok
}

// Actions returns every declared action, sorted, for help output and
// drafter prompts.
func (r *Registry) Actions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.actions))
	for action := range r.actions {
		out = append(out, action)
	}
	sort.Strings(out)
	return out
}

// Resolve picks the plugin that will execute the intent. Zero candidates is
// ErrUnknownIntent; a score tie between distinct plugins is
// ErrAmbiguousMatch rather than an arbitrary winner.
func (r *Registry) Resolve(intent Intent) (Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		best      Plugin
		bestScore int
		tied      bool
	)
	for _, p := range r.plugins {
		score := p.Match(intent)
		if score <= 0 {
			continue
		}
		switch {
		case score > bestScore:
			best, bestScore, tied = p, score, false
		case score == bestScore:
			tied = true
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no plugin handles action %q", ErrUnknownIntent, intent.Action)
	}
	if tied {
		return nil, fmt.Errorf("%w: multiple plugins claim action %q", ErrAmbiguousMatch, intent.Action)
	}
	return best, nil
}
