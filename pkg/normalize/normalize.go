// Package normalize prepares raw user text for rule matching and semantic
// scoring: lowercase, collapsed whitespace, unified hyphens. Known product
// and brand names are shielded from the transforms so a single canonical
// spelling reaches the downstream exact-match rules.
package normalize

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/campbellsechrest/im-concierge-starter/pkg/config"
)

// Pre-compiled transforms (avoid recompiling per request).
var (
	whitespaceRegex = regexp.MustCompile(`\s+`)
	// Unicode hyphen/dash variants: hyphen, non-breaking hyphen, figure
	// dash, en dash, em dash, horizontal bar, minus sign.
	dashRegex = regexp.MustCompile("[‐‑‒–—―−-]+")
)

// Substitution records one protected-entity replacement.
type Substitution struct {
	Canonical string `json:"canonical"`
	Matched   string `json:"matched"`
}

// Result holds the raw input alongside its normalized form.
type Result struct {
	Raw           string
	Text          string
	Substitutions []Substitution
}

type protectedEntity struct {
	canonical string
	pattern   *regexp.Regexp
}

// Normalizer applies the normalization transforms. Safe for concurrent use;
// all state is immutable after construction.
type Normalizer struct {
	entities []protectedEntity
}

// New builds a Normalizer from the configured protected entities. Variant
// lists are matched case-insensitively as whole words; the canonical form
// is always included so normalizing already-normalized text is a no-op.
func New(cfg config.NormalizerConfig) (*Normalizer, error) {
	entities := make([]protectedEntity, 0, len(cfg.ProtectedEntities))
	for _, pe := range cfg.ProtectedEntities {
		canonical := strings.ToLower(strings.TrimSpace(pe.Canonical))
		if canonical == "" {
			continue
		}
		variants := make([]string, 0, len(pe.Variants)+1)
		variants = append(variants, regexp.QuoteMeta(canonical))
		for _, v := range pe.Variants {
			v = strings.TrimSpace(v)
			if v != "" {
				variants = append(variants, regexp.QuoteMeta(v))
			}
		}
		expr := fmt.Sprintf(`(?i)\b(?:%s)\b`, strings.Join(variants, "|"))
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("protected entity %q: %w", pe.Canonical, err)
		}
		entities = append(entities, protectedEntity{canonical: canonical, pattern: re})
	}
	return &Normalizer{entities: entities}, nil
}

// Normalize lowercases, collapses whitespace runs, unifies dash variants
// and trims, while keeping protected entity names in their canonical
// spelling. Normalization is idempotent.
func (n *Normalizer) Normalize(text string) Result {
	result := Result{Raw: text}
	if strings.TrimSpace(text) == "" {
		return result
	}

	// Shield protected entities behind placeholder tokens so the case and
	// dash transforms cannot split or respell them. NUL-delimited tokens
	// survive every transform below untouched.
	working := text
	placeholders := make([]string, len(n.entities))
	for i, ent := range n.entities {
		token := fmt.Sprintf("\x00e%d\x00", i)
		placeholders[i] = token
		matched := ent.pattern.FindString(working)
		if matched == "" {
			continue
		}
		working = ent.pattern.ReplaceAllString(working, token)
		result.Substitutions = append(result.Substitutions, Substitution{
			Canonical: ent.canonical,
			Matched:   matched,
		})
	}

	working = strings.ToLower(working)
	working = dashRegex.ReplaceAllString(working, "-")
	working = whitespaceRegex.ReplaceAllString(working, " ")
	working = strings.TrimSpace(working)

	for i, ent := range n.entities {
		working = strings.ReplaceAll(working, placeholders[i], ent.canonical)
	}

	result.Text = working
	return result
}
