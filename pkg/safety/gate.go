// Package safety implements the semantic safety gate: exemplar similarity
// blended with heuristic risk signals into one thresholded score.
package safety

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/campbellsechrest/im-concierge-starter/pkg/config"
	"github.com/campbellsechrest/im-concierge-starter/pkg/embedding"
	"github.com/campbellsechrest/im-concierge-starter/pkg/observability/logging"
	"github.com/campbellsechrest/im-concierge-starter/pkg/similarity"
)

// Diagnostics carries the gate's intermediate signals for the decision
// trace, whether or not the gate fired.
type Diagnostics struct {
	EmbeddingScore    float64 `json:"embedding_score"`
	RiskTokenCount    int     `json:"risk_token_count"`
	HasProductContext bool    `json:"has_product_context"`
	BlendedScore      float64 `json:"blended_score"`
}

// Match is a triggered safety refusal.
type Match struct {
	ExemplarID  string
	Category    string
	Response    string
	Diagnostics Diagnostics
}

// Gate evaluates a normalized query against the refusal exemplars.
// Immutable after construction, safe for concurrent use.
type Gate struct {
	cfg          config.SafetyGateConfig
	riskTokens   []*regexp.Regexp
	contextTerms []*regexp.Regexp
}

// NewGate compiles the risk and product-context vocabularies into
// whole-word matchers. Exemplar vectors must already be populated.
func NewGate(cfg config.SafetyGateConfig) (*Gate, error) {
	cfg = cfg.WithDefaults()
	for _, ex := range cfg.Exemplars {
		if len(ex.Vector) == 0 {
			return nil, fmt.Errorf("safety exemplar %q has no vector", ex.ID)
		}
	}

	risk, err := compileTerms(cfg.RiskTokens)
	if err != nil {
		return nil, fmt.Errorf("risk tokens: %w", err)
	}
	ctx, err := compileTerms(cfg.ProductContextTerms)
	if err != nil {
		return nil, fmt.Errorf("product context terms: %w", err)
	}

	return &Gate{cfg: cfg, riskTokens: risk, contextTerms: ctx}, nil
}

func compileTerms(terms []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(terms))
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		re, err := regexp.Compile(`\b` + regexp.QuoteMeta(term) + `\b`)
		if err != nil {
			return nil, fmt.Errorf("term %q: %w", term, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// Evaluate scores the normalized query. The embedding is obtained through
// the per-request memoized accessor, so the provider is hit at most once
// no matter how many semantic stages run. Returns a non-nil Match only
// when the blended score clears the threshold; Diagnostics are returned
// either way for the decision trace.
func (g *Gate) Evaluate(normalizedText string, embed embedding.Func) (*Match, Diagnostics, error) {
	var diag Diagnostics

	queryVec, err := embed()
	if err != nil {
		return nil, diag, err
	}

	var best *config.SafetyExemplar
	for i := range g.cfg.Exemplars {
		ex := &g.cfg.Exemplars[i]
		score, err := similarity.Cosine(queryVec, ex.Vector)
		if err != nil {
			return nil, diag, fmt.Errorf("exemplar %q: %w", ex.ID, err)
		}
		if best == nil || score > diag.EmbeddingScore {
			diag.EmbeddingScore = score
			best = ex
		}
	}

	diag.RiskTokenCount = countOccurrences(g.riskTokens, normalizedText)
	diag.HasProductContext = anyMatch(g.contextTerms, normalizedText)

	// Empirically tuned blend: exemplar similarity dominates, risk tokens
	// contribute a capped secondary signal.
	riskSignal := float64(diag.RiskTokenCount) * g.cfg.RiskTokenScale
	if riskSignal > 1.0 {
		riskSignal = 1.0
	}
	diag.BlendedScore = diag.EmbeddingScore*g.cfg.EmbeddingWeight + riskSignal*g.cfg.RiskWeight

	// Ordinary product questions mention the brand without real risk
	// vocabulary; dampen those so they fall through to retrieval.
	if diag.HasProductContext && diag.RiskTokenCount < 2 {
		diag.BlendedScore *= g.cfg.ProductContextDampening
	}

	logging.Debugf("Safety gate: exemplar=%s embedding=%.4f risk_tokens=%d product_context=%v blended=%.4f threshold=%.3f",
		exemplarID(best), diag.EmbeddingScore, diag.RiskTokenCount, diag.HasProductContext,
		diag.BlendedScore, g.cfg.Threshold)

	if best == nil || diag.BlendedScore < g.cfg.Threshold {
		return nil, diag, nil
	}

	return &Match{
		ExemplarID:  best.ID,
		Category:    best.Category,
		Response:    best.Response,
		Diagnostics: diag,
	}, diag, nil
}

func exemplarID(ex *config.SafetyExemplar) string {
	if ex == nil {
		return "none"
	}
	return ex.ID
}

func countOccurrences(terms []*regexp.Regexp, text string) int {
	total := 0
	for _, re := range terms {
		total += len(re.FindAllStringIndex(text, -1))
	}
	return total
}

func anyMatch(terms []*regexp.Regexp, text string) bool {
	for _, re := range terms {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
