package catalog

import (
	"encoding/json"
	"fmt"
	"os"
)

// Manifest is the subset of an action's package manifest that discovery reads.
type Manifest struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Main            string            `json:"main"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// ReadManifest reads and decodes a manifest file.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

// UsesToolkit reports whether the manifest declares toolkit in its
// dependencies or dev dependencies.
func (m *Manifest) UsesToolkit(toolkit string) bool {
	return m.Dependencies[toolkit] != "" || m.DevDependencies[toolkit] != ""
}

// Disqualification explains why the manifest does not describe a launchable
// action, or returns "" when it does.
func (m *Manifest) Disqualification(toolkit string) string {
	switch {
	case m.Main == "":
		return "no entry point"
	case !m.UsesToolkit(toolkit):
		return "no " + toolkit + " dependency"
	}
	return ""
}
