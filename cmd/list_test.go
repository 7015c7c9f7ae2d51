package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/smazurov/actiond/internal/catalog"
)

func writeAction(t *testing.T, root, dir, manifest string) {
	t.Helper()
	path := filepath.Join(root, dir)
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatal(err)
	}
	if manifest == "" {
		return
	}
	if err := os.WriteFile(filepath.Join(path, "package.json"), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
}

func sampleRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeAction(t, root, "weather", `{"name": "weather", "version": "1.2.0", "main": "index.js", "dependencies": {"snips-toolkit": "^1.0.0"}}`)
	writeAction(t, root, "notes", `{"name": "notes", "main": "index.js"}`)
	writeAction(t, root, "assets", "")
	return root
}

func TestListTable(t *testing.T) {
	color.NoColor = true
	root := sampleRoot(t)

	var out bytes.Buffer
	if err := runList(&out, ListOptions{ActionsRoot: root}, false); err != nil {
		t.Fatalf("runList failed: %v", err)
	}

	text := out.String()
	for _, want := range []string{"weather", "1.2.0", "index.js", "found", "skipped: no manifest", "Actions: 1, skipped: 2"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in output:\n%s", want, text)
		}
	}
}

func TestListJSON(t *testing.T) {
	root := sampleRoot(t)

	var out bytes.Buffer
	if err := runList(&out, ListOptions{ActionsRoot: root}, true); err != nil {
		t.Fatalf("runList failed: %v", err)
	}

	var result listOutput
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, out.String())
	}
	if len(result.Actions) != 1 || result.Actions[0].Name != "weather" {
		t.Errorf("unexpected actions %+v", result.Actions)
	}
	if len(result.Skipped) != 2 {
		t.Errorf("expected 2 skipped entries, got %+v", result.Skipped)
	}
}

func TestListInvalidRoot(t *testing.T) {
	err := runList(&bytes.Buffer{}, ListOptions{ActionsRoot: filepath.Join(t.TempDir(), "missing")}, false)
	if !errors.Is(err, catalog.ErrInvalidRoot) {
		t.Errorf("expected ErrInvalidRoot, got %v", err)
	}
}

func TestListCommand(t *testing.T) {
	root := sampleRoot(t)
	listCmd := CreateListCmd(func() ListOptions { return ListOptions{ActionsRoot: root} })

	var out bytes.Buffer
	listCmd.SetOut(&out)
	listCmd.SetArgs([]string{"--json"})
	if err := listCmd.Execute(); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(out.String(), `"weather"`) {
		t.Errorf("expected JSON output, got %s", out.String())
	}
}
