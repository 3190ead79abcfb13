package fileupdate

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

var errInvalidJSON = errors.New("invalid JSON")

// ValidateJSON checks that content is well-formed JSON.
func ValidateJSON(content string) error {
	if !json.Valid([]byte(content)) {
		var v any
		if err := json.Unmarshal([]byte(content), &v); err != nil {
			return fmt.Errorf("%w: %w", errInvalidJSON, err)
		}
		return errInvalidJSON
	}
	return nil
}

// ValidateTOML checks that content parses as TOML.
func ValidateTOML(content string) error {
	if _, err := toml.Load(content); err != nil {
		return fmt.Errorf("invalid TOML: %w", err)
	}
	return nil
}

// ValidateYAML checks that content parses as YAML (all documents).
func ValidateYAML(content string) error {
	dec := yaml.NewDecoder(strings.NewReader(content))
	for {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("invalid YAML: %w", err)
		}
	}
}

// ValidateXML checks that content is a well-formed XML token stream.
func ValidateXML(content string) error {
	dec := xml.NewDecoder(strings.NewReader(content))
	dec.Strict = true
	for {
		_, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("invalid XML: %w", err)
		}
	}
}
