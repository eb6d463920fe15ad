// Package policy holds the immutable safety configuration that governs which
// actions may proceed, require confirmation, or are forbidden outright.
package policy

import (
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/opspilot/opspilot-cli/internal/config"
)

// Policy is the safety configuration evaluated by the gate for every intent.
// A Policy value is immutable after construction; updated policies replace
// the whole value via Store.Swap, never individual fields.
type Policy struct {
	RequireConfirmation  bool
	DryRunDefault        bool
	allowedOperations    map[string]struct{}
	restrictedOperations map[string]struct{}
}

// New builds a Policy from its configured parts. An operation listed as both
// allowed and restricted is a configuration error: the two sets must be
// disjoint or the gate's decision table loses its fail-closed property.
func New(cfg config.PolicyConfig) (*Policy, error) {
	p := &Policy{
		RequireConfirmation:  cfg.RequireConfirmation,
		DryRunDefault:        cfg.DryRunDefault,
		allowedOperations:    make(map[string]struct{}, len(cfg.AllowedOperations)),
		restrictedOperations: make(map[string]struct{}, len(cfg.RestrictedOperations)),
	}
	for _, op := range cfg.AllowedOperations {
		p.allowedOperations[op] = struct{}{}
	}
	for _, op := range cfg.RestrictedOperations {
		if _, ok := p.allowedOperations[op]; ok {
			return nil, fmt.Errorf("policy: operation %q is both allowed and restricted", op)
		}
		p.restrictedOperations[op] = struct{}{}
	}
	return p, nil
}

// Allowed reports whether the action is explicitly allow-listed.
func (p *Policy) Allowed(action string) bool {
	_, ok := p.allowedOperations[action]
	return ok
}

// Restricted reports whether the action is deny-listed. Restricted actions
// are rejected unconditionally; no confirmation or override exists.
func (p *Policy) Restricted(action string) bool {
	_, ok := p.restrictedOperations[action]
	return ok
}

// AllowedOperations returns the allow list in sorted order, for reporting.
func (p *Policy) AllowedOperations() []string {
	return sortedKeys(p.allowedOperations)
}

// RestrictedOperations returns the deny list in sorted order, for reporting.
func (p *Policy) RestrictedOperations() []string {
	return sortedKeys(p.restrictedOperations)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Store publishes the current Policy to concurrent readers. Replacement is a
// single atomic pointer swap, so a reader observes either the old policy or
// the new one, never a partially applied mix.
type Store struct {
	current atomic.Pointer[Policy]
}

// NewStore creates a Store seeded with the given policy.
func NewStore(p *Policy) *Store {
	s := &Store{}
	s.current.Store(p)
	return s
}

// Current returns the active policy. The returned value must be treated as
// read-only.
func (s *Store) Current() *Policy {
	return s.current.Load()
}

// Swap atomically replaces the active policy.
func (s *Store) Swap(p *Policy) {
	s.current.Store(p)
}
