package prompt

import "strings"

// Preset is a named style prompt a user can pick instead of typing one.
type Preset struct {
	Key    string `json:"key"`
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
}

var presets = []Preset{
	{
		Key:    "high_key_clean",
		Name:   "High-Key Clean",
		Prompt: "bright high-key studio, clean white and ivory backdrop, soft contact shadow under the product, crisp micro-detail without blown highlights",
	},
	{
		Key:    "dark_premium",
		Name:   "Dark Premium",
		Prompt: "low-key studio on deep charcoal gradients, controlled rim light tracing the silhouette, label kept readable against the dark",
	},
	{
		Key:    "luxury_editorial",
		Name:   "Luxury Editorial",
		Prompt: "luxury editorial advertising, black and gold set, cinematic spotlight with light volumetric haze, subtle gold dust in the air",
	},
	{
		Key:    "gold",
		Name:   "Opulent Gold",
		Prompt: "warm honey-toned golden light, fine gold leaf flakes around the product, glossy dark reflective surface, product colors left untouched",
	},
	{
		Key:    "organic_sensory",
		Name:   "Organic Sensory",
		Prompt: "natural stone, linen and fresh leaves, soft window daylight, tactile textures, calm earthy palette",
	},
	{
		Key:    "futuristic_tech",
		Name:   "Futuristic Tech",
		Prompt: "sterile futuristic studio, precise cool lighting, glass and brushed metal accents, high-contrast micro-detail without clutter",
	},
	{
		Key:    "neo_pop",
		Name:   "Neo-Pop",
		Prompt: "bold pop color blocking on the set, neon rim accents, glossy acrylic shapes in the background, two or three accent colors at most",
	},
	{
		Key:    "miniature_diorama",
		Name:   "Miniature Diorama",
		Prompt: "the product as a giant monument in a miniature diorama, tiny workers polishing and inspecting it, subtle tilt-shift focus, branding never covered",
	},
	{
		Key:    "cinematic_film",
		Name:   "Cinematic Film",
		Prompt: "cinematic film still, anamorphic bokeh, moody teal and amber grade, gentle film grain",
	},
}

// Presets returns the style presets in display order.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

// Lookup finds a preset by key, ignoring case and surrounding space.
func Lookup(key string) (Preset, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, p := range presets {
		if p.Key == key {
			return p, true
		}
	}
	return Preset{}, false
}
