package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/smazurov/actiond/internal/logging"
)

// ErrInvalidRoot is returned when the actions root is missing or not a directory.
var ErrInvalidRoot = errors.New("invalid actions root")

// DiscoveryError describes a directory that could not be inspected.
// It never aborts discovery; the entry is simply excluded.
type DiscoveryError struct {
	Entry string
	Path  string
	Err   error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("error while browsing %s: %v", e.Entry, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// Options configures Discover.
type Options struct {
	// ManifestFile defaults to DefaultManifestFile.
	ManifestFile string
	// Toolkit defaults to DefaultToolkit.
	Toolkit string
	// Logger defaults to the "discovery" module logger.
	Logger *slog.Logger
	// OnSkip is called for every excluded directory with the reason (optional).
	OnSkip func(entry, reason string)
}

// Result is the outcome of a discovery pass.
type Result struct {
	Catalog *Catalog
	// Errors holds per-entry failures; they are informational only.
	Errors []*DiscoveryError
}

// ValidateRoot checks that root names an existing directory.
func ValidateRoot(root string) error {
	if root == "" {
		return fmt.Errorf("%w: no path given", ErrInvalidRoot)
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidRoot, root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrInvalidRoot, root)
	}
	return nil
}

// Discover inspects every immediate subdirectory of root and catalogs the
// ones whose manifest declares an entry point and depends on the toolkit.
// Only an invalid root is an error; bad entries are logged and skipped.
func Discover(root string, opts Options) (*Result, error) {
	if err := ValidateRoot(root); err != nil {
		return nil, err
	}

	if opts.ManifestFile == "" {
		opts.ManifestFile = DefaultManifestFile
	}
	if opts.Toolkit == "" {
		opts.Toolkit = DefaultToolkit
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("discovery")
	}
	skip := func(entry, reason string) {
		if opts.OnSkip != nil {
			opts.OnSkip(entry, reason)
		}
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRoot, err)
	}

	entries, err := os.ReadDir(absRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRoot, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	result := &Result{}
	var found []Action

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		dir := filepath.Join(absRoot, entry.Name())
		manifestPath := filepath.Join(dir, opts.ManifestFile)

		manifest, readErr := ReadManifest(manifestPath)
		if readErr != nil {
			if errors.Is(readErr, fs.ErrNotExist) {
				logger.Debug("No manifest, skipping", "entry", entry.Name())
				skip(entry.Name(), "no manifest")
				continue
			}
			derr := &DiscoveryError{Entry: entry.Name(), Path: manifestPath, Err: readErr}
			result.Errors = append(result.Errors, derr)
			logger.Error("Error while browsing", "entry", entry.Name(), "error", readErr)
			skip(entry.Name(), readErr.Error())
			continue
		}

		if reason := manifest.Disqualification(opts.Toolkit); reason != "" {
			logger.Info("Manifest does not describe an action, skipping", "entry", entry.Name(), "reason", reason)
			skip(entry.Name(), reason)
			continue
		}

		name := manifest.Name
		if name == "" {
			name = entry.Name()
		}

		found = append(found, Action{
			Name:    name,
			Version: manifest.Version,
			Main:    manifest.Main,
			Root:    dir,
		})
		logger.Info("Found action", "action", name, "root", dir)
	}

	c, duplicates := New(found...)
	for _, dup := range duplicates {
		logger.Warn("Duplicate action name, skipping", "action", dup.Name, "root", dup.Root)
		skip(filepath.Base(dup.Root), "duplicate name "+dup.Name)
	}
	result.Catalog = c

	return result, nil
}
