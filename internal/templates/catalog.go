// Package templates holds the fixed, ordered set of prompt presets users can
// pick instead of typing an instruction.
package templates

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"photostudio/internal/domain"
)

var defaults = []domain.PromptTemplate{
	{ID: "product-showcase", Name: "Product Showcase", Prompt: "Place this product on a clean, modern studio background with soft, professional lighting to make it stand out."},
	{ID: "social-media-ad", Name: "Social Media Ad", Prompt: "Make this image more eye-catching for a social media advertisement. Increase color vibrancy, contrast, and add a sense of dynamic energy."},
	{ID: "seasonal-sale", Name: "Seasonal Sale", Prompt: "Infuse this image with a seasonal theme (e.g., summer sunshine, autumn leaves, or winter snow) for a promotional sale campaign."},
	{ID: "luxury-look", Name: "Luxury Vibe", Prompt: "Enhance this image to give it a luxurious, high-end feel. Use deep, rich colors and elegant lighting effects."},
	{ID: "brand-colors", Name: "Brand Colors", Prompt: "Subtly incorporate our brand's primary color into the background or ambient lighting of this image."},
	{ID: "testimonial-bg", Name: "Testimonial BG", Prompt: "Turn this image into a great background for a customer testimonial. Make it inspirational and slightly out of focus to draw attention to text that will be overlaid."},
	{ID: "email-banner", Name: "Email Banner", Prompt: "Adapt this image into a professional banner for an email newsletter. Give it a clean, polished look with excellent contrast."},
	{ID: "holiday-campaign", Name: "Holiday Campaign", Prompt: "Give this image a festive, holiday atmosphere using elements like warm lighting, sparkles, or subtle seasonal decorations."},
}

// Catalog is immutable once constructed and safe for concurrent use.
type Catalog struct {
	items []domain.PromptTemplate
	index map[string]int
}

// Default returns the built-in presets.
func Default() *Catalog {
	c, err := New(defaults)
	if err != nil {
		panic(fmt.Errorf("templates: built-in catalog: %w", err))
	}
	return c
}

// New builds a catalog in the given order. IDs must be unique and prompts
// non-empty; a missing display name is derived from the ID.
func New(items []domain.PromptTemplate) (*Catalog, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("templates: catalog is empty")
	}
	title := cases.Title(language.English)
	c := &Catalog{
		items: make([]domain.PromptTemplate, 0, len(items)),
		index: make(map[string]int, len(items)),
	}
	for i, item := range items {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			return nil, fmt.Errorf("templates: item %d has no id", i)
		}
		if _, dup := c.index[id]; dup {
			return nil, fmt.Errorf("templates: duplicate id %q", id)
		}
		if strings.TrimSpace(item.Prompt) == "" {
			return nil, fmt.Errorf("templates: %q has no prompt", id)
		}
		name := strings.TrimSpace(item.Name)
		if name == "" {
			name = title.String(strings.NewReplacer("-", " ", "_", " ").Replace(id))
		}
		c.index[id] = len(c.items)
		c.items = append(c.items, domain.PromptTemplate{ID: id, Name: name, Prompt: item.Prompt})
	}
	return c, nil
}

// Load reads a JSON array of {id, name, prompt} objects. An empty path yields
// the built-in presets.
func Load(path string) (*Catalog, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("templates: read %s: %w", path, err)
	}
	var items []domain.PromptTemplate
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("templates: decode %s: %w", path, err)
	}
	return New(items)
}

// List returns the presets in display order.
func (c *Catalog) List() []domain.PromptTemplate {
	out := make([]domain.PromptTemplate, len(c.items))
	copy(out, c.items)
	return out
}

// Select returns the instruction text registered for id.
func (c *Catalog) Select(id string) (string, error) {
	i, ok := c.index[strings.TrimSpace(id)]
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownTemplate, id)
	}
	return c.items[i].Prompt, nil
}

// Len reports the number of presets.
func (c *Catalog) Len() int {
	return len(c.items)
}
