// Package docfile reads Remote Config templates from disk and renders command output as JSON or
// YAML.
package docfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/florianilch/rconf/internal/remoteconfig"
)

// Format is an encoding for templates and command output.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts "json", "yaml" and "yml".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported format %q (expected json or yaml)", s)
	}
}

// FormatFromPath infers the format from the file extension; anything but .yaml/.yml is JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Load reads a template from path. "-" reads from stdin as JSON.
func Load(path string) (remoteconfig.Document, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading template: %w", err)
	}

	doc, err := Decode(data, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("parsing template %s: %w", path, err)
	}
	return doc, nil
}

// Decode parses a template. The top level must be an object and parameter values must be
// strings; YAML scalars such as 10 or true have to be quoted.
func Decode(data []byte, format Format) (remoteconfig.Document, error) {
	// Plain maps keep nested objects the same shape for both formats
	var m map[string]any

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, err
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&m); err != nil {
			return nil, err
		}
		if dec.More() {
			return nil, fmt.Errorf("unexpected data after template")
		}
	}

	if m == nil {
		return nil, fmt.Errorf("template is empty")
	}

	doc := remoteconfig.Document(m)
	if err := checkParameterValues(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// checkParameterValues requires every defaultValue.value and conditionalValues.*.value to be a
// string, in top-level parameters and in parameter groups.
func checkParameterValues(doc remoteconfig.Document) error {
	if err := checkParameters("parameters", doc["parameters"]); err != nil {
		return err
	}

	groups, _ := doc["parameterGroups"].(map[string]any)
	for name, g := range groups {
		group, _ := g.(map[string]any)
		if err := checkParameters("parameterGroups."+name+".parameters", group["parameters"]); err != nil {
			return err
		}
	}
	return nil
}

func checkParameters(path string, v any) error {
	params, _ := v.(map[string]any)
	for name, p := range params {
		param, _ := p.(map[string]any)

		if err := checkValue(path+"."+name+".defaultValue", param["defaultValue"]); err != nil {
			return err
		}

		conditional, _ := param["conditionalValues"].(map[string]any)
		for condition, cv := range conditional {
			if err := checkValue(path+"."+name+".conditionalValues."+condition, cv); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkValue(path string, v any) error {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	value, ok := m["value"]
	if !ok {
		return nil
	}
	if _, ok := value.(string); !ok {
		return fmt.Errorf("%s.value must be a string, got %T %v (quote it)", path, value, value)
	}
	return nil
}

// Write renders v in format. Indented JSON is used when indent is true.
func Write(w io.Writer, v any, format Format, indent bool) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		if indent {
			enc.SetIndent("", "  ")
		}
		return enc.Encode(v)
	}
}
