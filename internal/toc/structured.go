package toc

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON []byte

type structuredDoc struct {
	Sections []struct {
		Title   string   `yaml:"title"`
		Entries []string `yaml:"entries"`
	} `yaml:"sections"`
}

// ParseStructured reads a YAML (or JSON, which is valid YAML) table of contents
// of the form {sections: [{title, entries: [...]}]} and validates it against
// the embedded schema before building the tree.
func ParseStructured(src []byte) (Tree, error) {
	var raw any
	if err := yaml.Unmarshal(src, &raw); err != nil {
		return Tree{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := validateSchema(raw); err != nil {
		return Tree{}, err
	}

	var doc structuredDoc
	if err := yaml.Unmarshal(src, &doc); err != nil {
		return Tree{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	sections := make([]string, len(doc.Sections))
	entries := make([][]string, len(doc.Sections))
	for i, s := range doc.Sections {
		sections[i] = s.Title
		entries[i] = s.Entries
	}

	tree := New(sections, entries)
	if err := tree.Validate(); err != nil {
		return Tree{}, err
	}
	return tree, nil
}

// validateSchema round-trips the YAML value through JSON so the validator
// sees plain JSON types.
func validateSchema(raw any) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("toc.schema.json", bytes.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("failed to load toc schema: %w", err)
	}
	schema, err := compiler.Compile("toc.schema.json")
	if err != nil {
		return fmt.Errorf("failed to compile toc schema: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
