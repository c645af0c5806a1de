package project

import (
	"bytes"

	"gopkg.in/yaml.v3"
)

// SpecConfig is the YAML frontmatter a project spec.md may carry.
// BaseBranch overrides the branch derived from the event, but not an
// explicit default_base_branch action input.
type SpecConfig struct {
	BaseBranch   string `yaml:"base_branch"`
	BranchPrefix string `yaml:"branch_prefix"`
	PRLabel      string `yaml:"pr_label"`
}

// ParseSpecConfig extracts YAML frontmatter from spec.md content.
// Returns the config, the remaining markdown body, and any error.
func ParseSpecConfig(content []byte) (*SpecConfig, []byte, error) {
	if !bytes.HasPrefix(content, []byte("---\n")) {
		return &SpecConfig{}, content, nil
	}

	// Find end of frontmatter
	rest := content[4:]
	endIdx := bytes.Index(rest, []byte("\n---"))
	if endIdx == -1 {
		return &SpecConfig{}, content, nil
	}

	fmData := rest[:endIdx]
	remaining := rest[endIdx+4:] // skip \n---

	var cfg SpecConfig
	if err := yaml.Unmarshal(fmData, &cfg); err != nil {
		return nil, nil, err
	}

	return &cfg, bytes.TrimLeft(remaining, "\n"), nil
}
