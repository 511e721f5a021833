// Package response picks or composes the reply for a resolved intent.
package response

import (
	"fmt"
	"os"

	"github.com/bytedance/sonic"
)

// Intent is one entry of intents.json. Patterns are only read by the trainer.
type Intent struct {
	Tag         string   `json:"tag"`
	Description string   `json:"description,omitempty"`
	Patterns    []string `json:"patterns"`
	Responses   []string `json:"responses"`
}

type catalogFile struct {
	Intents []Intent `json:"intents"`
}

// Catalog is read-only after construction.
type Catalog struct {
	intents []Intent
	byTag   map[string]int
}

func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read intents file: %w", err)
	}
	var f catalogFile
	if err := sonic.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse intents file %s: %w", path, err)
	}
	return NewCatalog(f.Intents)
}

func NewCatalog(intents []Intent) (*Catalog, error) {
	c := &Catalog{intents: intents, byTag: make(map[string]int, len(intents))}
	for i, in := range intents {
		if in.Tag == "" {
			return nil, fmt.Errorf("intent %d has no tag", i)
		}
		if j, dup := c.byTag[in.Tag]; dup {
			return nil, fmt.Errorf("intent %q defined at %d and %d", in.Tag, j, i)
		}
		c.byTag[in.Tag] = i
	}
	return c, nil
}

func (c *Catalog) Lookup(tag string) (Intent, bool) {
	i, ok := c.byTag[tag]
	if !ok {
		return Intent{}, false
	}
	return c.intents[i], true
}

// Labels returns the tags in file order.
func (c *Catalog) Labels() []string {
	tags := make([]string, len(c.intents))
	for i, in := range c.intents {
		tags[i] = in.Tag
	}
	return tags
}

func (c *Catalog) Intents() []Intent { return c.intents }

// Describe returns the human-readable topic of a tag, falling back to the tag itself.
func (c *Catalog) Describe(tag string) string {
	if in, ok := c.Lookup(tag); ok && in.Description != "" {
		return in.Description
	}
	return tag
}

// Unanswerable lists the labels that have no entry or no responses.
func (c *Catalog) Unanswerable(labels []string) []string {
	var out []string
	for _, l := range labels {
		if in, ok := c.Lookup(l); !ok || len(in.Responses) == 0 {
			out = append(out, l)
		}
	}
	return out
}
