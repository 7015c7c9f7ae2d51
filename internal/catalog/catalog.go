// Package catalog discovers actions in an actions root directory and holds
// their static metadata for the lifetime of a run.
package catalog

import (
	"path/filepath"
	"runtime"
)

// DefaultToolkit is the library an action manifest must depend on to qualify.
const DefaultToolkit = "snips-toolkit"

// DefaultManifestFile is the manifest looked up in each action directory.
const DefaultManifestFile = "package.json"

// Action is the static description of a discovered action.
type Action struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	// Main is the entry point as declared in the manifest.
	Main string `json:"main"`
	// Root is the absolute action directory; crashes are attributed by it.
	Root string `json:"root"`
}

// Target resolves the entry point against the action root.
func (a Action) Target() string {
	if filepath.IsAbs(a.Main) {
		return filepath.Clean(a.Main)
	}
	return filepath.Join(a.Root, a.Main)
}

// Catalog is the ordered, name-unique set of discovered actions.
type Catalog struct {
	actions []Action
	byName  map[string]int
}

// New builds a catalog from actions, dropping any whose name was already taken.
// The dropped actions are returned so callers can report them.
func New(actions ...Action) (*Catalog, []Action) {
	c := &Catalog{byName: make(map[string]int, len(actions))}
	var duplicates []Action
	for _, a := range actions {
		if _, exists := c.byName[a.Name]; exists {
			duplicates = append(duplicates, a)
			continue
		}
		c.byName[a.Name] = len(c.actions)
		c.actions = append(c.actions, a)
	}
	return c, duplicates
}

// Actions returns a copy of the cataloged actions in registration order.
func (c *Catalog) Actions() []Action {
	out := make([]Action, len(c.actions))
	copy(out, c.actions)
	return out
}

// Get returns the action with the given name.
func (c *Catalog) Get(name string) (Action, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Action{}, false
	}
	return c.actions[i], true
}

// Len returns the number of cataloged actions.
func (c *Catalog) Len() int {
	return len(c.actions)
}

// DefaultRoot returns the platform default actions root, or "" when the
// platform has none.
func DefaultRoot() string {
	return defaultRootFor(runtime.GOOS)
}

func defaultRootFor(goos string) string {
	switch goos {
	case "darwin":
		return "/usr/local/var/snips/skills"
	case "linux", "freebsd", "openbsd", "solaris", "illumos":
		return "/var/lib/snips/skills"
	default:
		return ""
	}
}
