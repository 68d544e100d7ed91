// Package skills manages named remote capabilities reached over plain
// HTTP POST, declared in config or in yaml manifests.
package skills

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Skill describes one remote capability. The endpoint accepts a JSON POST
// body and answers with the result body.
type Skill struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Endpoint    string        `yaml:"endpoint"`
	Timeout     time.Duration `yaml:"timeout"`
}

// LoadSkill reads a yaml manifest from disk.
func LoadSkill(path string) (*Skill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read skill %s: %w", path, err)
	}

	var skill Skill
	if err := yaml.Unmarshal(data, &skill); err != nil {
		return nil, fmt.Errorf("parse skill %s: %w", path, err)
	}

	if skill.Name == "" {
		return nil, fmt.Errorf("skill %s: missing name", path)
	}
	if skill.Endpoint == "" {
		return nil, fmt.Errorf("skill %s: missing endpoint", path)
	}
	return &skill, nil
}
