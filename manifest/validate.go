// Package manifest validates YAML documents and renders the templates a lab
// applies to its cluster or shows to the participant.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/field-workshops/labkit/http"
)

// Validate parses every document in r and fails on the first malformed one.
// An empty stream is valid.
func Validate(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	for doc := 1; ; doc++ {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return http.NewValidationError(fmt.Sprintf("malformed YAML in document %d: %v", doc, err), "yaml")
		}
	}
}

// ValidateBytes validates an in-memory multi-document YAML stream.
func ValidateBytes(data []byte) error {
	return Validate(bytes.NewReader(data))
}

// ValidateFile validates the YAML file at path.
func ValidateFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open manifest %s: %w", path, err)
	}
	defer f.Close()

	if err := Validate(f); err != nil {
		return fmt.Errorf("manifest %s: %w", path, err)
	}
	return nil
}

// WriteFile validates data and writes it to path.
// Nothing is written when validation fails.
func WriteFile(path string, data []byte) error {
	if err := ValidateBytes(data); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest %s: %w", path, err)
	}
	return nil
}
