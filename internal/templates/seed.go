package templates

import (
	"context"
	"fmt"
	"os"
	"strings"

	"termin/internal/domain"
	"termin/internal/models"

	"gopkg.in/yaml.v2"
)

type seedFile struct {
	Templates []*models.EmailTemplate `yaml:"templates"`
}

// LoadSeedFile reads default templates from YAML. Unknown keys and empty
// subjects or bodies are rejected.
func LoadSeedFile(path string) ([]*models.EmailTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	seen := make(map[string]bool, len(f.Templates))
	for _, t := range f.Templates {
		t.Key = strings.TrimSpace(t.Key)
		if !models.IsTemplateKey(t.Key) {
			return nil, fmt.Errorf("unknown template key %q", t.Key)
		}
		if seen[t.Key] {
			return nil, fmt.Errorf("duplicate template key %q", t.Key)
		}
		seen[t.Key] = true
		if strings.TrimSpace(t.Subject) == "" || strings.TrimSpace(t.Body) == "" {
			return nil, fmt.Errorf("template %q: subject and body are required", t.Key)
		}
	}
	return f.Templates, nil
}

// Seed stores the templates. Existing keys are kept unless overwrite is set,
// so staff edits survive a re-run. Returns how many rows were written.
func Seed(ctx context.Context, repo domain.TemplateRepository, list []*models.EmailTemplate, overwrite bool) (int, error) {
	existing, err := repo.ListTemplates(ctx)
	if err != nil {
		return 0, err
	}
	have := make(map[string]bool, len(existing))
	for _, t := range existing {
		have[t.Key] = true
	}

	written := 0
	for _, t := range list {
		if have[t.Key] && !overwrite {
			continue
		}
		if err := repo.UpsertTemplate(ctx, t); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}
