// Package config loads workflow templates and definitions from YAML or JSON files.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dukex/autoflow/pkg/models"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFile is returned for files that are neither YAML nor JSON.
var ErrUnsupportedFile = errors.New("unsupported file extension")

// LoadTemplates reads every *.yaml, *.yml and *.json file in dir, sorted by
// name. A template without an id takes its file name without extension, so
// reseeding the same directory updates rather than duplicates.
func LoadTemplates(dir string) ([]*models.WorkflowTemplate, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read templates directory %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !supported(entry.Name()) {
			continue
		}

		names = append(names, entry.Name())
	}

	slices.Sort(names)

	templates := make([]*models.WorkflowTemplate, 0, len(names))

	for _, name := range names {
		template, err := LoadTemplateFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}

		templates = append(templates, template)
	}

	return templates, nil
}

// LoadTemplateFile reads one template.
func LoadTemplateFile(path string) (*models.WorkflowTemplate, error) {
	var template models.WorkflowTemplate
	if err := decodeFile(path, &template); err != nil {
		return nil, err
	}

	if template.ID == "" {
		template.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	return &template, nil
}

// LoadDefinitionFile reads one workflow definition.
func LoadDefinitionFile(path string) (*models.WorkflowDefinition, error) {
	var definition models.WorkflowDefinition
	if err := decodeFile(path, &definition); err != nil {
		return nil, err
	}

	return &definition, nil
}

func supported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	default:
		return false
	}
}

// decodeFile parses YAML (a superset of JSON) into a generic tree and
// re-encodes it as JSON so the models' JSON decoders, including the action
// type discriminator, apply to both formats.
func decodeFile(path string, out any) error {
	if !supported(path) {
		return fmt.Errorf("%w: %s", ErrUnsupportedFile, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var tree any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	raw, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("failed to convert %s: %w", path, err)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("invalid content in %s: %w", path, err)
	}

	return nil
}
