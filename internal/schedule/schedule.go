// Package schedule defines the per-intent field schedules and deep-link base
// URLs as loadable configuration.
//
// The order of fields is significant: it is the order questions are asked and
// the order parameters appear in the generated URL. Historically each entry
// point carried its own hardcoded copy of these lists and they drifted apart;
// keeping them as one configuration table is what keeps every adapter asking
// the same questions.
package schedule

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/harvestflow/harvestflow/internal/models"
)

// Field is one (key, prompt) pair in a schedule.
type Field struct {
	Key    string `json:"key"`
	Prompt string `json:"prompt"`
}

// IntentConfig holds everything schedule-related for one intent.
type IntentConfig struct {
	BaseURL string  `json:"base_url"`
	Fields  []Field `json:"fields"`
}

// Config maps each intent to its schedule.
type Config map[models.Intent]IntentConfig

// Default returns the canonical schedules. Keys and base URLs match the
// marketplace app's add-form routes, which read these exact query parameters.
func Default() Config {
	return Config{
		models.IntentProduct: {
			BaseURL: "/app/add/product",
			Fields: []Field{
				{Key: "name", Prompt: "What is the product name?"},
				{Key: "category", Prompt: "Which category does it belong to?"},
				{Key: "description", Prompt: "Briefly describe the crop."},
				{Key: "price", Prompt: "Price per kg (numbers only)."},
				{Key: "quantity", Prompt: "Total quantity produced (numbers only)."},
				{Key: "unit", Prompt: "Which unit is the quantity in (kg, tonnes, ...)?"},
			},
		},
		models.IntentPost: {
			BaseURL: "/app/add/post",
			Fields: []Field{
				{Key: "productId", Prompt: "Which existing product do you want to post?"},
				{Key: "content", Prompt: "What caption would you like to use?"},
			},
		},
	}
}

// LoadFile reads a JSON schedule override from path and validates it.
func LoadFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schedule file: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse schedule file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid schedule file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that every intent is known and every schedule is usable.
func (c Config) Validate() error {
	if len(c) == 0 {
		return fmt.Errorf("schedule config is empty")
	}
	for intent, ic := range c {
		if !models.IsValidIntent(intent) {
			return fmt.Errorf("unknown intent %q", intent)
		}
		if ic.BaseURL == "" {
			return fmt.Errorf("intent %q: base URL is required", intent)
		}
		if len(ic.Fields) == 0 {
			return fmt.Errorf("intent %q: at least one field is required", intent)
		}
		seen := make(map[string]bool, len(ic.Fields))
		for i, f := range ic.Fields {
			if f.Key == "" {
				return fmt.Errorf("intent %q: field %d has an empty key", intent, i)
			}
			if f.Prompt == "" {
				return fmt.Errorf("intent %q: field %q has an empty prompt", intent, f.Key)
			}
			if seen[f.Key] {
				return fmt.Errorf("intent %q: duplicate field key %q", intent, f.Key)
			}
			seen[f.Key] = true
		}
	}
	return nil
}

// NextField returns the first field of intent's schedule not yet present in
// collected, or ok=false when every field has been answered.
func (c Config) NextField(intent models.Intent, collected models.CollectedData) (Field, bool) {
	ic, exists := c[intent]
	if !exists {
		return Field{}, false
	}
	for _, f := range ic.Fields {
		if !collected.Has(f.Key) {
			return f, true
		}
	}
	return Field{}, false
}

// BaseURL returns the deep-link base URL for intent, or empty if unconfigured.
func (c Config) BaseURL(intent models.Intent) string {
	return c[intent].BaseURL
}

// HasIntent reports whether a schedule is configured for intent.
func (c Config) HasIntent(intent models.Intent) bool {
	_, ok := c[intent]
	return ok
}
