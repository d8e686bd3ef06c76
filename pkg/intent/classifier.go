// Package intent implements the semantic intent classifier: each intent is
// anchored by example embeddings, and the best intent clearing its own
// threshold wins.
package intent

import (
	"fmt"

	"github.com/campbellsechrest/im-concierge-starter/pkg/config"
	"github.com/campbellsechrest/im-concierge-starter/pkg/embedding"
	"github.com/campbellsechrest/im-concierge-starter/pkg/observability/logging"
	"github.com/campbellsechrest/im-concierge-starter/pkg/similarity"
)

// Match is the winning intent for a query.
type Match struct {
	IntentID string
	Label    string
	Score    float64

	// Response, when set, is a terminal canned answer.
	Response string

	// Scope is the knowledge-document allowlist contributed to retrieval
	// when the intent is not terminal.
	Scope []string
}

// Terminal reports whether the match answers the query directly instead
// of only scoping retrieval.
func (m *Match) Terminal() bool { return m.Response != "" }

// Classifier scores queries against the configured intent definitions.
// Immutable after construction, safe for concurrent use.
type Classifier struct {
	intents          []config.IntentDefinition
	defaultThreshold float64
}

// NewClassifier validates that every example carries a vector and captures
// the definitions in declaration order; order is the tie-breaker.
func NewClassifier(cfg config.IntentsConfig) (*Classifier, error) {
	cfg = cfg.WithDefaults()
	for _, in := range cfg.Definitions {
		for _, ex := range in.Examples {
			if len(ex.Vector) == 0 {
				return nil, fmt.Errorf("intent %q example %q has no vector", in.ID, ex.Text)
			}
		}
	}
	return &Classifier{
		intents:          cfg.Definitions,
		defaultThreshold: cfg.DefaultThreshold,
	}, nil
}

// Classify scores every intent by its best example similarity. An intent
// is a candidate only when its maximum clears its threshold; among
// candidates the strictly highest score wins, ties going to the earliest
// declaration. Returns nil when no intent qualifies.
func (c *Classifier) Classify(embed embedding.Func) (*Match, error) {
	if len(c.intents) == 0 {
		return nil, nil
	}

	queryVec, err := embed()
	if err != nil {
		return nil, err
	}

	var best *Match
	for i := range c.intents {
		in := &c.intents[i]
		maxScore := -1.0
		for _, ex := range in.Examples {
			score, err := similarity.Cosine(queryVec, ex.Vector)
			if err != nil {
				return nil, fmt.Errorf("intent %q: %w", in.ID, err)
			}
			if score > maxScore {
				maxScore = score
			}
		}

		threshold := in.Threshold
		if threshold == 0 {
			threshold = c.defaultThreshold
		}

		logging.Debugf("Intent %q: max_score=%.4f threshold=%.3f", in.ID, maxScore, threshold)

		if maxScore < threshold {
			continue
		}
		// Strictly-greater keeps the earliest intent on equal scores.
		if best == nil || maxScore > best.Score {
			best = &Match{
				IntentID: in.ID,
				Label:    in.Label,
				Score:    maxScore,
				Response: in.Response,
				Scope:    in.Scope,
			}
		}
	}

	return best, nil
}

// Lookup returns the definition for a given intent id, used by business
// rules that defer to intent metadata.
func (c *Classifier) Lookup(id string) *config.IntentDefinition {
	for i := range c.intents {
		if c.intents[i].ID == id {
			return &c.intents[i]
		}
	}
	return nil
}
