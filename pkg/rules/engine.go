// Package rules implements the deterministic pattern layers of the router:
// ordered regular-expression rules with first-match-wins semantics. Safety
// rules run against raw text on purpose: a normalization bug must never be
// able to defeat the safety precedence.
package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/campbellsechrest/im-concierge-starter/pkg/config"
)

// Kind tags a rule with the routing layer it belongs to.
type Kind string

const (
	KindSafety   Kind = "safety"
	KindBusiness Kind = "business"
)

// Match is the result of a rule firing.
type Match struct {
	RuleID   string
	Kind     Kind
	Category string

	// Response is the canned answer, when the rule carries one directly.
	Response string

	// Intent names the intent whose response/scope metadata applies,
	// when the rule defers instead of answering.
	Intent string

	// Pattern is the expression that matched, for the decision trace.
	Pattern string
}

// rule is one compiled pattern rule. Any pattern matching is a rule match.
type rule struct {
	kind     Kind
	id       string
	category string
	response string
	intent   string
	patterns []*regexp.Regexp
	sources  []string
}

func (r *rule) match(text string) (string, bool) {
	for i, p := range r.patterns {
		if p.MatchString(text) {
			return r.sources[i], true
		}
	}
	return "", false
}

// Engine evaluates the safety and business rule sets in declaration order.
// Immutable after construction, safe for concurrent use.
type Engine struct {
	safety   []rule
	business []rule
}

// NewEngine compiles both rule sets. Safety patterns are forced
// case-insensitive because they are evaluated against raw text.
func NewEngine(safetyRules, businessRules []config.PatternRule) (*Engine, error) {
	safety, err := compile(KindSafety, safetyRules, true)
	if err != nil {
		return nil, err
	}
	business, err := compile(KindBusiness, businessRules, false)
	if err != nil {
		return nil, err
	}
	return &Engine{safety: safety, business: business}, nil
}

func compile(kind Kind, cfgRules []config.PatternRule, caseInsensitive bool) ([]rule, error) {
	compiled := make([]rule, 0, len(cfgRules))
	for _, cr := range cfgRules {
		r := rule{
			kind:     kind,
			id:       cr.ID,
			category: cr.Category,
			response: cr.Response,
			intent:   cr.Intent,
			patterns: make([]*regexp.Regexp, 0, len(cr.Patterns)),
			sources:  make([]string, 0, len(cr.Patterns)),
		}
		for _, src := range cr.Patterns {
			expr := src
			if caseInsensitive && !strings.HasPrefix(expr, "(?i)") {
				expr = "(?i)" + expr
			}
			p, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("%s rule %q: pattern %q: %w", kind, cr.ID, src, err)
			}
			r.patterns = append(r.patterns, p)
			r.sources = append(r.sources, src)
		}
		compiled = append(compiled, r)
	}
	return compiled, nil
}

// MatchSafety returns the first safety rule matching the raw query text,
// or nil when none fires.
func (e *Engine) MatchSafety(rawText string) *Match {
	return firstMatch(e.safety, rawText)
}

// MatchBusiness returns the first business rule matching the normalized
// query text, or nil when none fires.
func (e *Engine) MatchBusiness(normalizedText string) *Match {
	return firstMatch(e.business, normalizedText)
}

func firstMatch(ruleSet []rule, text string) *Match {
	for i := range ruleSet {
		r := &ruleSet[i]
		if pattern, ok := r.match(text); ok {
			return &Match{
				RuleID:   r.id,
				Kind:     r.kind,
				Category: r.category,
				Response: r.response,
				Intent:   r.intent,
				Pattern:  pattern,
			}
		}
	}
	return nil
}
