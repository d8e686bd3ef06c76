package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campbellsechrest/im-concierge-starter/pkg/config"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(
		[]config.PatternRule{
			{
				ID:       "emergency-symptoms",
				Category: "emergency",
				Patterns: []string{`chest pain`, `call 911`},
				Response: "Please call 911.",
			},
			{
				ID:       "medication-interaction",
				Category: "medical",
				Patterns: []string{`interact(?:s|ion)? with`},
				Response: "Please ask your pharmacist.",
			},
		},
		[]config.PatternRule{
			{
				ID:       "shipping-keywords",
				Category: "logistics",
				Patterns: []string{`\bship(?:ping|s|ped)?\b`, `\bdeliver(?:y|ed)?\b`},
				Intent:   "shipping",
			},
			{
				ID:       "discount-keywords",
				Category: "sales",
				Patterns: []string{`\bdiscount\b`},
				Response: "Subscribers get 15% off.",
			},
		},
	)
	require.NoError(t, err)
	return e
}

func TestMatchSafety(t *testing.T) {
	e := testEngine(t)

	tests := []struct {
		name       string
		input      string
		expectRule string
	}{
		{
			name:       "matches raw mixed-case text",
			input:      "I have CHEST PAIN right now",
			expectRule: "emergency-symptoms",
		},
		{
			name:       "first rule in declaration order wins",
			input:      "chest pain, does it interact with my meds?",
			expectRule: "emergency-symptoms",
		},
		{
			name:       "second rule reachable",
			input:      "does it interact with ibuprofen",
			expectRule: "medication-interaction",
		},
		{
			name:       "no match",
			input:      "what flavors do you have",
			expectRule: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := e.MatchSafety(tt.input)
			if tt.expectRule == "" {
				assert.Nil(t, m)
				return
			}
			require.NotNil(t, m)
			assert.Equal(t, tt.expectRule, m.RuleID)
			assert.Equal(t, KindSafety, m.Kind)
			assert.NotEmpty(t, m.Response)
		})
	}
}

func TestMatchBusiness(t *testing.T) {
	e := testEngine(t)

	m := e.MatchBusiness("how fast do you ship orders?")
	require.NotNil(t, m)
	assert.Equal(t, "shipping-keywords", m.RuleID)
	assert.Equal(t, "shipping", m.Intent)
	assert.Empty(t, m.Response)

	m = e.MatchBusiness("is there a discount code")
	require.NotNil(t, m)
	assert.Equal(t, "discount-keywords", m.RuleID)
	assert.Equal(t, "Subscribers get 15% off.", m.Response)

	assert.Nil(t, e.MatchBusiness("what is in the capsule"))
}

func TestAnyPatternMatches(t *testing.T) {
	e := testEngine(t)

	// Second pattern of the rule set fires; the match reports which one.
	m := e.MatchSafety("should I call 911")
	require.NotNil(t, m)
	assert.Equal(t, "emergency-symptoms", m.RuleID)
	assert.Equal(t, `call 911`, m.Pattern)
}

func TestNewEngineRejectsBadPattern(t *testing.T) {
	_, err := NewEngine([]config.PatternRule{
		{ID: "broken", Patterns: []string{`(`}},
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}
