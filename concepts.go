package factsync

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

//go:embed concept_mappings.json
var conceptMappingsJSON []byte

// ConceptMapping represents the structure of concept_mappings.json
type ConceptMapping struct {
	Description string              `json:"description"`
	Version     string              `json:"version"`
	Concepts    []ConceptDefinition `json:"concepts"`
}

// ConceptDefinition is one us-gaap tag retrieved from companyfacts
type ConceptDefinition struct {
	Tag            string   `json:"tag"`
	Label          string   `json:"label"`
	Statement      string   `json:"statement"`
	PreferredUnits []string `json:"preferredUnits,omitempty"`
}

// Concepts is an ordered tag table with lookup by tag and by label
type Concepts struct {
	defs    []ConceptDefinition
	byTag   map[string]int
	byLabel map[string][]string // label -> tags
}

var defaultConcepts *Concepts

func init() {
	var err error
	defaultConcepts, err = ParseConcepts(conceptMappingsJSON)
	if err != nil {
		panic(fmt.Sprintf("Failed to load concept mappings: %v", err))
	}
}

// DefaultConcepts returns the embedded concept table
func DefaultConcepts() *Concepts {
	return defaultConcepts
}

// ParseConcepts parses a concept table in the concept_mappings.json format.
// A tag listed twice keeps its first definition.
func ParseConcepts(data []byte) (*Concepts, error) {
	var mapping ConceptMapping
	if err := json.Unmarshal(data, &mapping); err != nil {
		return nil, fmt.Errorf("failed to parse concept mappings: %w", err)
	}
	c := &Concepts{
		byTag:   make(map[string]int),
		byLabel: make(map[string][]string),
	}
	for _, def := range mapping.Concepts {
		def.Tag = strings.TrimSpace(def.Tag)
		if def.Tag == "" {
			return nil, fmt.Errorf("concept with label %q has no tag", def.Label)
		}
		if _, dup := c.byTag[def.Tag]; dup {
			continue
		}
		if def.Label == "" {
			def.Label = def.Tag
		}
		c.byTag[def.Tag] = len(c.defs)
		c.defs = append(c.defs, def)
		c.byLabel[def.Label] = append(c.byLabel[def.Label], def.Tag)
	}
	return c, nil
}

// Definitions returns the concepts in table order
func (c *Concepts) Definitions() []ConceptDefinition {
	out := make([]ConceptDefinition, len(c.defs))
	copy(out, c.defs)
	return out
}

// Lookup returns the definition for a tag. The "us-gaap:" prefix is optional.
func (c *Concepts) Lookup(tag string) (ConceptDefinition, bool) {
	tag = strings.TrimPrefix(strings.TrimSpace(tag), "us-gaap:")
	i, ok := c.byTag[tag]
	if !ok {
		return ConceptDefinition{}, false
	}
	return c.defs[i], true
}

// TagsForLabel returns all tags that share a display name
func (c *Concepts) TagsForLabel(label string) ([]string, error) {
	tags, ok := c.byLabel[label]
	if !ok {
		return nil, fmt.Errorf("unknown label: %s", label)
	}
	return append([]string(nil), tags...), nil
}

// Labels returns all distinct display names, sorted
func (c *Concepts) Labels() []string {
	labels := make([]string, 0, len(c.byLabel))
	for l := range c.byLabel {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// PickUnit chooses the unit series to read for a tag: the first preferred unit
// present, then USD, then the alphabetically first unit. Returns "" when
// units is empty.
func (c *Concepts) PickUnit(tag string, units []string) string {
	if len(units) == 0 {
		return ""
	}
	present := make(map[string]bool, len(units))
	for _, u := range units {
		present[u] = true
	}
	if def, ok := c.Lookup(tag); ok {
		for _, p := range def.PreferredUnits {
			if present[p] {
				return p
			}
		}
	}
	if present["USD"] {
		return "USD"
	}
	sorted := append([]string(nil), units...)
	sort.Strings(sorted)
	return sorted[0]
}
