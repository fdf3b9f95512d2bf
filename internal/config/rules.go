package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrSnakeDoc/marksync/internal/domain"
)

// Rules is the tagging configuration read from MARKSYNC_RULES_FILE.
//
//	folders:
//	  "1580000000000000001": reading-list
//	categories:
//	  - name: rust
//	    keywords: [rust, cargo]
//	replace_default_categories: false
type Rules struct {
	Folders                  domain.FolderMapping  `yaml:"folders"`
	Categories               []domain.CategoryRule `yaml:"categories"`
	ReplaceDefaultCategories bool                  `yaml:"replace_default_categories"`
}

// DefaultRules is used when no rules file is configured.
func DefaultRules() *Rules {
	return &Rules{Folders: domain.FolderMapping{}}
}

// LoadRules parses the rules file at path. An empty path yields DefaultRules.
// Duplicate folder ids are rejected by the YAML decoder.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}
	if err := r.validate(); err != nil {
		return nil, fmt.Errorf("invalid rules file %s: %w", path, err)
	}
	if r.Folders == nil {
		r.Folders = domain.FolderMapping{}
	}
	return &r, nil
}

func (r *Rules) validate() error {
	for id, tag := range r.Folders {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("folder mapping has an empty folder id")
		}
		if strings.TrimSpace(tag) == "" {
			return fmt.Errorf("folder %q maps to an empty tag", id)
		}
	}
	for i, c := range r.Categories {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("category #%d has no name", i+1)
		}
		if c.Threshold < 0 {
			return fmt.Errorf("category %q has a negative threshold", c.Name)
		}
	}
	return nil
}

// CategoryRules returns the built-in categories extended (or replaced) by
// the file's own rules.
func (r *Rules) CategoryRules() []domain.CategoryRule {
	if r.ReplaceDefaultCategories {
		return append([]domain.CategoryRule(nil), r.Categories...)
	}
	out := make([]domain.CategoryRule, 0, len(domain.DefaultCategories)+len(r.Categories))
	out = append(out, domain.DefaultCategories...)
	return append(out, r.Categories...)
}

// Categorizer builds a categorizer from CategoryRules.
func (r *Rules) Categorizer() *domain.Categorizer {
	return domain.NewCategorizer(r.CategoryRules())
}
