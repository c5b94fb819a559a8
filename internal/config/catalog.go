package config

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

type ModelSpec struct {
	ID                string `yaml:"id" json:"id"`
	Name              string `yaml:"name" json:"name"`
	Description       string `yaml:"description" json:"description"`
	FreeTier          bool   `yaml:"free_tier" json:"free_tier"`
	RequestsPerMinute int    `yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerDay    int    `yaml:"requests_per_day" json:"requests_per_day"`
	ContextWindow     int    `yaml:"context_window" json:"context_window"`
}

type ModeSpec struct {
	ID          string `yaml:"id" json:"id"`
	Label       string `yaml:"label" json:"label"`
	Description string `yaml:"description" json:"description"`
}

type Catalog struct {
	DefaultModel string      `yaml:"default_model"`
	Models       []ModelSpec `yaml:"models"`
	Modes        []ModeSpec  `yaml:"modes"`
}

var (
	catalogOnce sync.Once
	catalog     Catalog
	catalogErr  error
)

// LoadCatalog parses the embedded model and mode catalog once.
func LoadCatalog() (Catalog, error) {
	catalogOnce.Do(func() {
		catalog, catalogErr = ParseCatalog(catalogYAML)
	})
	return catalog, catalogErr
}

func ParseCatalog(raw []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog: %w", err)
	}
	if len(c.Models) == 0 {
		return Catalog{}, fmt.Errorf("parse catalog: no models defined")
	}
	if c.DefaultModel == "" {
		c.DefaultModel = c.Models[0].ID
	}
	return c, nil
}

// Model returns the ModelSpec for id, falling back to the default model.
func (c Catalog) Model(id string) ModelSpec {
	var fallback ModelSpec
	for _, m := range c.Models {
		if m.ID == id {
			return m
		}
		if m.ID == c.DefaultModel {
			fallback = m
		}
	}
	return fallback
}

func (c Catalog) HasModel(id string) bool {
	for _, m := range c.Models {
		if m.ID == id {
			return true
		}
	}
	return false
}

// Mode returns the display spec for a mode id, falling back to summary.
func (c Catalog) Mode(id string) ModeSpec {
	var fallback ModeSpec
	for _, m := range c.Modes {
		if m.ID == id {
			return m
		}
		if m.ID == "summary" {
			fallback = m
		}
	}
	return fallback
}
