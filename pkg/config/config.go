// Package config defines the static configuration for the concierge query
// router. Everything here is loaded once at process start and treated as
// immutable for the process lifetime; a malformed or missing section is a
// fatal startup error, never a per-request error.
package config

// RouterConfig is the root configuration document.
type RouterConfig struct {
	// Normalizer controls text normalization and protected entities.
	Normalizer NormalizerConfig `yaml:"normalizer"`

	// SafetyRules are evaluated first, against raw text, in declaration order.
	SafetyRules []PatternRule `yaml:"safety_rules"`

	// BusinessRules are evaluated second, against normalized text.
	BusinessRules []PatternRule `yaml:"business_rules"`

	// SafetyGate configures the semantic safety layer.
	SafetyGate SafetyGateConfig `yaml:"safety_gate"`

	// Intents configures the semantic intent classifier.
	Intents IntentsConfig `yaml:"intents"`

	// Knowledge is the retrieval corpus, in declaration order. Order is
	// significant: retrieval ties are broken by corpus position.
	Knowledge []KnowledgeDocument `yaml:"knowledge"`

	// Retrieval configures the fallback retrieval layer.
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Embedding configures the external embedding provider.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Generation configures the external answer-generation collaborator.
	Generation GenerationConfig `yaml:"generation"`
}

// NormalizerConfig lists the multi-word entity names that must survive
// normalization with a single canonical spelling.
type NormalizerConfig struct {
	ProtectedEntities []ProtectedEntity `yaml:"protected_entities"`
}

// ProtectedEntity maps every known spelling variant of an entity name to
// its canonical lowercase form.
type ProtectedEntity struct {
	// Canonical is the lowercase form restored after normalization.
	Canonical string `yaml:"canonical"`

	// Variants are matched case-insensitively as whole words. The canonical
	// form itself is always treated as a variant so normalization stays
	// idempotent.
	Variants []string `yaml:"variants"`
}

// PatternRule is one deterministic routing rule: an ordered set of regular
// expressions with any-match semantics.
type PatternRule struct {
	ID       string   `yaml:"id"`
	Category string   `yaml:"category"`
	Patterns []string `yaml:"patterns"`

	// Response is the canned answer returned when the rule fires. Optional
	// for business rules that defer to an intent's response/scope.
	Response string `yaml:"response,omitempty"`

	// Intent optionally names an intent whose response and scope metadata
	// the rule adopts.
	Intent string `yaml:"intent,omitempty"`
}

// SafetyGateConfig holds the semantic safety layer settings. The blend
// weights and dampening factor were tuned against the original exemplar
// corpus; they are configuration, not derived values.
type SafetyGateConfig struct {
	// Threshold is the blended score at or above which the gate fires.
	// Default: 0.42
	Threshold float64 `yaml:"threshold,omitempty"`

	// EmbeddingWeight is the blend weight of the exemplar similarity.
	// Default: 0.7
	EmbeddingWeight float64 `yaml:"embedding_weight,omitempty"`

	// RiskWeight is the blend weight of the risk-token signal.
	// Default: 0.3
	RiskWeight float64 `yaml:"risk_weight,omitempty"`

	// RiskTokenScale converts the risk-token count into a capped 0-1 signal.
	// Default: 0.3
	RiskTokenScale float64 `yaml:"risk_token_scale,omitempty"`

	// ProductContextDampening multiplies the blended score when the query
	// looks like an ordinary product question with fewer than two risk
	// tokens. Default: 0.6
	ProductContextDampening float64 `yaml:"product_context_dampening,omitempty"`

	// RiskTokens is the vocabulary whose presence raises the risk signal:
	// medication names, clinical terms, dosage and emergency vocabulary.
	RiskTokens []string `yaml:"risk_tokens"`

	// ProductContextTerms is the "this is a product question" vocabulary.
	ProductContextTerms []string `yaml:"product_context_terms"`

	// Exemplars are the refusal anchors compared against each query.
	Exemplars []SafetyExemplar `yaml:"exemplars"`
}

// SafetyExemplar is one refusal anchor: a reference text plus the canned
// response returned when it is the best match above threshold.
type SafetyExemplar struct {
	ID       string    `yaml:"id"`
	Category string    `yaml:"category"`
	Text     string    `yaml:"text"`
	Response string    `yaml:"response"`
	Vector   []float32 `yaml:"vector,omitempty"`
}

// IntentsConfig holds the semantic intent definitions.
type IntentsConfig struct {
	// DefaultThreshold applies to intents without their own threshold.
	// Default: 0.75
	DefaultThreshold float64 `yaml:"default_threshold,omitempty"`

	Definitions []IntentDefinition `yaml:"definitions"`
}

// IntentDefinition is one semantic intent with its example anchors.
type IntentDefinition struct {
	ID    string `yaml:"id"`
	Label string `yaml:"label"`

	// Threshold overrides the global default when > 0.
	Threshold float64 `yaml:"threshold,omitempty"`

	// Scope restricts retrieval to these knowledge document ids when the
	// intent wins without a canned response.
	Scope []string `yaml:"scope,omitempty"`

	// Response, when set, makes the intent terminal.
	Response string `yaml:"response,omitempty"`

	Examples []IntentExample `yaml:"examples"`
}

// IntentExample is one example utterance for an intent.
type IntentExample struct {
	Text   string    `yaml:"text"`
	Vector []float32 `yaml:"vector,omitempty"`
}

// KnowledgeDocument is one retrievable reference passage.
type KnowledgeDocument struct {
	ID      string    `yaml:"id"`
	URL     string    `yaml:"url"`
	Section string    `yaml:"section"`
	Content string    `yaml:"content"`
	Vector  []float32 `yaml:"vector,omitempty"`
}

// RetrievalConfig configures the fallback retrieval layer.
type RetrievalConfig struct {
	// TopK is the number of passages returned. Default: 3
	TopK int `yaml:"top_k,omitempty"`

	// Backend selects the retrieval implementation: "memory" (default)
	// scores the in-process corpus, "milvus" searches an external
	// collection.
	Backend string `yaml:"backend,omitempty"`

	Milvus MilvusConfig `yaml:"milvus,omitempty"`
}

// MilvusConfig holds connection settings for the milvus backend.
type MilvusConfig struct {
	Endpoint   string `yaml:"endpoint"`
	Collection string `yaml:"collection"`
}

// EmbeddingConfig configures the external embedding provider.
type EmbeddingConfig struct {
	// Endpoint is an OpenAI-compatible embeddings endpoint. Empty means
	// the upstream default.
	Endpoint string `yaml:"endpoint,omitempty"`

	// Model is the embedding model name. Default: text-embedding-3-small
	Model string `yaml:"model,omitempty"`

	// APIKeyEnv names the environment variable holding the API key.
	// Default: OPENAI_API_KEY
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	// Dimension, when > 0, is enforced against every configured vector.
	Dimension int `yaml:"dimension,omitempty"`
}

// GenerationConfig configures the answer-generation collaborator.
type GenerationConfig struct {
	Endpoint string `yaml:"endpoint,omitempty"`

	// Model is the chat model used to draft answers. Default: gpt-4o-mini
	Model string `yaml:"model,omitempty"`

	// APIKeyEnv names the environment variable holding the API key.
	// Default: OPENAI_API_KEY
	APIKeyEnv string `yaml:"api_key_env,omitempty"`
}

const (
	defaultSafetyThreshold         = 0.42
	defaultEmbeddingWeight         = 0.7
	defaultRiskWeight              = 0.3
	defaultRiskTokenScale          = 0.3
	defaultProductContextDampening = 0.6
	defaultIntentThreshold         = 0.75
	defaultTopK                    = 3
	defaultEmbeddingModel          = "text-embedding-3-small"
	defaultGenerationModel         = "gpt-4o-mini"
	defaultAPIKeyEnv               = "OPENAI_API_KEY"
)

// WithDefaults returns a copy with unset numeric fields filled in.
func (c SafetyGateConfig) WithDefaults() SafetyGateConfig {
	if c.Threshold == 0 {
		c.Threshold = defaultSafetyThreshold
	}
	if c.EmbeddingWeight == 0 {
		c.EmbeddingWeight = defaultEmbeddingWeight
	}
	if c.RiskWeight == 0 {
		c.RiskWeight = defaultRiskWeight
	}
	if c.RiskTokenScale == 0 {
		c.RiskTokenScale = defaultRiskTokenScale
	}
	if c.ProductContextDampening == 0 {
		c.ProductContextDampening = defaultProductContextDampening
	}
	return c
}

// WithDefaults returns a copy with the global threshold filled in.
func (c IntentsConfig) WithDefaults() IntentsConfig {
	if c.DefaultThreshold == 0 {
		c.DefaultThreshold = defaultIntentThreshold
	}
	return c
}

// WithDefaults returns a copy with TopK and the backend filled in.
func (c RetrievalConfig) WithDefaults() RetrievalConfig {
	if c.TopK == 0 {
		c.TopK = defaultTopK
	}
	if c.Backend == "" {
		c.Backend = "memory"
	}
	return c
}

// WithDefaults returns a copy with the model and key source filled in.
func (c EmbeddingConfig) WithDefaults() EmbeddingConfig {
	if c.Model == "" {
		c.Model = defaultEmbeddingModel
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = defaultAPIKeyEnv
	}
	return c
}

// WithDefaults returns a copy with the model and key source filled in.
func (c GenerationConfig) WithDefaults() GenerationConfig {
	if c.Model == "" {
		c.Model = defaultGenerationModel
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = defaultAPIKeyEnv
	}
	return c
}
