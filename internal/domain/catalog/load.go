package catalog

import (
	"embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed data/catalog.yaml data/recipes.yaml
var defaultData embed.FS

type catalogFile struct {
	Products []Item `yaml:"products"`
}

// Parse decodes a YAML (or JSON) catalog document.
func Parse(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}
	return New(file.Products)
}

// LoadFile reads and parses the catalog at path.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}

// Default returns the built-in demo catalog.
func Default() (*Catalog, error) {
	data, err := defaultData.ReadFile("data/catalog.yaml")
	if err != nil {
		return nil, fmt.Errorf("catalog: read default: %w", err)
	}
	return Parse(data)
}

// Load reads path, or the built-in catalog when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	return LoadFile(path)
}
