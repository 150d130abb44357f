// Package patterns is the formula knowledge base: intent phrases mapped to
// formula templates, usage guidance and known mistakes, plus per-category
// reference docs used to enrich prompts.
package patterns

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/vinodismyname/sheetmind/pkg/validation"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Mistake is a wrong usage with the reason and the corrected form.
type Mistake struct {
	Wrong   string `yaml:"wrong" json:"wrong"`
	Why     string `yaml:"why" json:"why_wrong"`
	Correct string `yaml:"correct" json:"correct"`
}

// Variant is an alternate formula shape for a specific case.
type Variant struct {
	Case    string `yaml:"case" json:"case"`
	Formula string `yaml:"formula" json:"formula"`
}

// Pattern is one knowledge base entry.
type Pattern struct {
	ID          string    `yaml:"id" json:"id" validate:"required"`
	Name        string    `yaml:"name" json:"name" validate:"required"`
	Category    string    `yaml:"category" json:"category,omitempty"`
	Intents     []string  `yaml:"intents" json:"intents" validate:"min=1,dive,required"`
	Description string    `yaml:"description" json:"description" validate:"required"`
	Template    string    `yaml:"template" json:"template" validate:"required"`
	Example     string    `yaml:"example" json:"example,omitempty"`
	Explanation string    `yaml:"explanation" json:"explanation,omitempty"`
	UseWhen     []string  `yaml:"use_when" json:"use_when,omitempty"`
	AvoidWhen   []string  `yaml:"avoid_when" json:"do_not_use_when,omitempty"`
	Warning     string    `yaml:"warning" json:"warning,omitempty"`
	Mistakes    []Mistake `yaml:"mistakes" json:"common_mistakes,omitempty"`
	Variants    []Variant `yaml:"variants" json:"additional_patterns,omitempty"`
}

// Category groups trigger keywords with reference documentation.
type Category struct {
	Name     string   `yaml:"name" validate:"required"`
	Keywords []string `yaml:"keywords" validate:"min=1"`
	Doc      string   `yaml:"doc" validate:"required"`
}

// Catalog is an immutable, concurrency-safe pattern collection.
type Catalog struct {
	Patterns   []Pattern  `yaml:"patterns" validate:"min=1,dive"`
	Categories []Category `yaml:"categories" validate:"dive"`
	Cheat      string     `yaml:"cheat_sheet"`

	byID       map[string]int
	byCategory map[string]int
}

// Load parses and validates a catalog document.
func Load(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("patterns: parse catalog: %w", err)
	}
	if err := validation.Validator().Struct(&c); err != nil {
		return nil, fmt.Errorf("patterns: invalid catalog: %w", err)
	}
	c.byID = make(map[string]int, len(c.Patterns))
	for i, p := range c.Patterns {
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("patterns: duplicate id %q", p.ID)
		}
		c.byID[p.ID] = i
	}
	c.byCategory = make(map[string]int, len(c.Categories))
	for i, cat := range c.Categories {
		c.byCategory[cat.Name] = i
	}
	return &c, nil
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the embedded catalog. The embedded document is part of the
// build, so a parse failure is a programming error.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Load(catalogYAML)
		if err != nil {
			panic(err)
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Get returns the pattern with the given id.
func (c *Catalog) Get(id string) (Pattern, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Pattern{}, false
	}
	return c.Patterns[i], true
}

// Len reports the number of patterns.
func (c *Catalog) Len() int { return len(c.Patterns) }
