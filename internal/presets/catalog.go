// Package presets resolves preset keys into generation directives.
package presets

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/text/cases"
)

// Preset is one catalog entry.
type Preset struct {
	Key            string   `json:"key"`
	Prompt         string   `json:"prompt"`
	NegativePrompt string   `json:"negative_prompt,omitempty"`
	Strength       *float64 `json:"strength,omitempty"`
	Model          string   `json:"model,omitempty"`
}

// Catalog is a read-only preset lookup keyed by case-folded preset key.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]Preset
	fold    cases.Caser
}

// NewCatalog builds a catalog from entries.
func NewCatalog(entries []Preset) *Catalog {
	c := &Catalog{entries: make(map[string]Preset, len(entries)), fold: cases.Fold()}
	for _, p := range entries {
		c.entries[c.normalize(p.Key)] = p
	}
	return c
}

// Load reads a JSON array of presets from path, or returns the built-in
// catalog when path is empty.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return NewCatalog(Defaults()), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("presets: read %s: %w", path, err)
	}
	var entries []Preset
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("presets: decode %s: %w", path, err)
	}
	for i, p := range entries {
		if strings.TrimSpace(p.Key) == "" || strings.TrimSpace(p.Prompt) == "" {
			return nil, fmt.Errorf("presets: entry %d needs key and prompt", i)
		}
	}
	return NewCatalog(entries), nil
}

// Lookup returns the preset for key, ignoring case and separator style
// ("Film Noir" and "FILM_NOIR" both resolve to "film-noir").
func (c *Catalog) Lookup(key string) (Preset, bool) {
	if c == nil {
		return Preset{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.entries[c.normalize(key)]
	return p, ok
}

// Keys lists the normalized keys.
func (c *Catalog) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}

func (c *Catalog) normalize(key string) string {
	key = c.fold.String(strings.TrimSpace(key))
	key = strings.NewReplacer("_", "-", " ", "-").Replace(key)
	return strings.Join(strings.FieldsFunc(key, func(r rune) bool { return r == '-' }), "-")
}

// Defaults is the built-in catalog.
func Defaults() []Preset {
	strength := func(v float64) *float64 { return &v }
	return []Preset{
		{
			Key:            "film-noir",
			Prompt:         "black and white film noir, hard shadows, venetian blind light, 1940s detective mood",
			NegativePrompt: "color, cartoon, low contrast",
			Strength:       strength(0.55),
		},
		{
			Key:            "anime",
			Prompt:         "vibrant anime illustration, clean line art, cel shading",
			NegativePrompt: "photorealistic, blurry, deformed hands",
			Strength:       strength(0.65),
		},
		{
			Key:            "watercolor",
			Prompt:         "soft watercolor painting, paper texture, bleeding pigments",
			NegativePrompt: "harsh edges, digital artifacts",
			Strength:       strength(0.5),
		},
		{
			Key:            "cyberpunk",
			Prompt:         "neon cyberpunk city, rain-soaked streets, magenta and teal glow",
			NegativePrompt: "daylight, washed out",
			Strength:       strength(0.6),
		},
	}
}
