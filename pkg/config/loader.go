package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/campbellsechrest/im-concierge-starter/pkg/observability/logging"
)

var (
	config     *RouterConfig
	configOnce sync.Once
	configErr  error
	configMu   sync.RWMutex
)

// ConfigError marks a fatal startup-time configuration problem. The service
// must not accept requests while one is outstanding.
type ConfigError struct {
	Section string
	Reason  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error in %s: %s", e.Section, e.Reason)
}

func configErrorf(section, format string, args ...interface{}) error {
	return &ConfigError{Section: section, Reason: fmt.Sprintf(format, args...)}
}

// Load loads the configuration from the given YAML file once and caches it
// for the process lifetime.
func Load(configPath string) (*RouterConfig, error) {
	configOnce.Do(func() {
		cfg, err := Parse(configPath)
		if err != nil {
			configErr = err
			return
		}
		configMu.Lock()
		config = cfg
		configMu.Unlock()
	})
	if configErr != nil {
		return nil, configErr
	}
	configMu.RLock()
	defer configMu.RUnlock()
	return config, nil
}

// Parse parses and validates the YAML config file without touching the
// global cache.
func Parse(configPath string) (*RouterConfig, error) {
	// Resolve symlinks to handle Kubernetes ConfigMap mounts.
	resolved, _ := filepath.EvalSymlinks(configPath)
	if resolved == "" {
		resolved = configPath
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &RouterConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	logging.Infof("Loaded router config: %d safety rules, %d business rules, %d exemplars, %d intents, %d knowledge documents",
		len(cfg.SafetyRules), len(cfg.BusinessRules), len(cfg.SafetyGate.Exemplars),
		len(cfg.Intents.Definitions), len(cfg.Knowledge))

	return cfg, nil
}

func applyDefaults(cfg *RouterConfig) {
	cfg.SafetyGate = cfg.SafetyGate.WithDefaults()
	cfg.Intents = cfg.Intents.WithDefaults()
	cfg.Retrieval = cfg.Retrieval.WithDefaults()
	cfg.Embedding = cfg.Embedding.WithDefaults()
	cfg.Generation = cfg.Generation.WithDefaults()
}

// Validate checks structural invariants the router depends on. Every
// violation is a ConfigError and therefore fatal at startup.
func Validate(cfg *RouterConfig) error {
	if err := validateRules("safety_rules", cfg.SafetyRules); err != nil {
		return err
	}
	if err := validateRules("business_rules", cfg.BusinessRules); err != nil {
		return err
	}

	intentIDs := make(map[string]bool, len(cfg.Intents.Definitions))
	for i, in := range cfg.Intents.Definitions {
		if in.ID == "" {
			return configErrorf("intents", "definition %d has no id", i)
		}
		if intentIDs[in.ID] {
			return configErrorf("intents", "duplicate intent id %q", in.ID)
		}
		intentIDs[in.ID] = true
		if in.Threshold < 0 || in.Threshold > 1 {
			return configErrorf("intents", "intent %q threshold %v outside [0,1]", in.ID, in.Threshold)
		}
		if len(in.Examples) == 0 {
			return configErrorf("intents", "intent %q has no examples", in.ID)
		}
	}

	// Business rules may defer to an intent for response and scope; the
	// reference must resolve.
	for _, r := range cfg.BusinessRules {
		if r.Intent != "" && !intentIDs[r.Intent] {
			return configErrorf("business_rules", "rule %q references unknown intent %q", r.ID, r.Intent)
		}
		if r.Intent == "" && r.Response == "" {
			return configErrorf("business_rules", "rule %q has neither response nor intent", r.ID)
		}
	}
	for _, r := range cfg.SafetyRules {
		if r.Response == "" {
			return configErrorf("safety_rules", "rule %q has no response", r.ID)
		}
	}

	if len(cfg.SafetyGate.Exemplars) == 0 {
		return configErrorf("safety_gate", "no exemplars configured")
	}
	for _, ex := range cfg.SafetyGate.Exemplars {
		if ex.ID == "" || ex.Response == "" {
			return configErrorf("safety_gate", "exemplar %q missing id or response", ex.ID)
		}
		if ex.Text == "" && len(ex.Vector) == 0 {
			return configErrorf("safety_gate", "exemplar %q has neither text nor vector", ex.ID)
		}
	}
	if t := cfg.SafetyGate.Threshold; t < 0 || t > 1 {
		return configErrorf("safety_gate", "threshold %v outside [0,1]", t)
	}

	if len(cfg.Knowledge) == 0 {
		return configErrorf("knowledge", "corpus is empty")
	}
	docIDs := make(map[string]bool, len(cfg.Knowledge))
	for i, doc := range cfg.Knowledge {
		if doc.ID == "" {
			return configErrorf("knowledge", "document %d has no id", i)
		}
		if docIDs[doc.ID] {
			return configErrorf("knowledge", "duplicate document id %q", doc.ID)
		}
		docIDs[doc.ID] = true
		if doc.Content == "" {
			return configErrorf("knowledge", "document %q has no content", doc.ID)
		}
	}

	if err := validateVectorDimensions(cfg); err != nil {
		return err
	}

	switch cfg.Retrieval.Backend {
	case "memory":
	case "milvus":
		if cfg.Retrieval.Milvus.Endpoint == "" || cfg.Retrieval.Milvus.Collection == "" {
			return configErrorf("retrieval", "milvus backend requires endpoint and collection")
		}
	default:
		return configErrorf("retrieval", "unknown backend %q", cfg.Retrieval.Backend)
	}
	if cfg.Retrieval.TopK < 1 {
		return configErrorf("retrieval", "top_k must be >= 1, got %d", cfg.Retrieval.TopK)
	}

	return nil
}

func validateRules(section string, rules []PatternRule) error {
	seen := make(map[string]bool, len(rules))
	for i, r := range rules {
		if r.ID == "" {
			return configErrorf(section, "rule %d has no id", i)
		}
		if seen[r.ID] {
			return configErrorf(section, "duplicate rule id %q", r.ID)
		}
		seen[r.ID] = true
		if len(r.Patterns) == 0 {
			return configErrorf(section, "rule %q has no patterns", r.ID)
		}
		for _, p := range r.Patterns {
			if _, err := regexp.Compile(p); err != nil {
				return configErrorf(section, "rule %q pattern %q does not compile: %v", r.ID, p, err)
			}
		}
	}
	return nil
}

// validateVectorDimensions enforces one consistent dimensionality across
// every vector present in the config. Vectors may be omitted entirely;
// missing ones are filled by the embedding preloader at startup.
func validateVectorDimensions(cfg *RouterConfig) error {
	dim := cfg.Embedding.Dimension
	check := func(section, id string, vec []float32) error {
		if len(vec) == 0 {
			return nil
		}
		if dim == 0 {
			dim = len(vec)
			return nil
		}
		if len(vec) != dim {
			return configErrorf(section, "%q vector has dimension %d, want %d", id, len(vec), dim)
		}
		return nil
	}

	for _, ex := range cfg.SafetyGate.Exemplars {
		if err := check("safety_gate", ex.ID, ex.Vector); err != nil {
			return err
		}
	}
	for _, in := range cfg.Intents.Definitions {
		for _, exm := range in.Examples {
			if err := check("intents", in.ID, exm.Vector); err != nil {
				return err
			}
		}
	}
	for _, doc := range cfg.Knowledge {
		if err := check("knowledge", doc.ID, doc.Vector); err != nil {
			return err
		}
	}
	return nil
}
