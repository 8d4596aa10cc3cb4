package events

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

/* Loader reads additional event types from catalog.yaml
 * Lets deployments extend the catalog without a rebuild
 */

// FileConfig represents the structure of catalog.yaml
type FileConfig struct {
	Events []EventConfig `yaml:"events"`
}

// EventConfig represents a single event type in the YAML file
type EventConfig struct {
	Type        string `yaml:"type"`
	Description string `yaml:"description"`
}

// LoadFile reads a catalog YAML file and registers its event types
func (c *Catalog) LoadFile(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("reading catalog file: %w", err)
	}

	var config FileConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("parsing catalog YAML: %w", err)
	}

	for _, ec := range config.Events {
		if err := c.Register(ec.Type, ec.Description); err != nil {
			return fmt.Errorf("loading catalog entry: %w", err)
		}
	}

	return nil
}
