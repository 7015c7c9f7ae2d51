package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"locale": "en_US", "weather": {"api_key": "abc", "units": "metric"}, "retries": 12345678901234567890}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write payload: %v", err)
	}

	payload, err := LoadPayload(path)
	if err != nil {
		t.Fatalf("LoadPayload failed: %v", err)
	}
	if payload["locale"] != "en_US" {
		t.Errorf("Unexpected locale %v", payload["locale"])
	}
	if _, ok := payload["weather"].(map[string]any); !ok {
		t.Errorf("Expected nested object, got %T", payload["weather"])
	}

	// Large integers survive a round trip.
	out, err := json.Marshal(payload["retries"])
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(out) != "12345678901234567890" {
		t.Errorf("Expected number literal preserved, got %s", out)
	}
}

func TestLoadPayloadEmptyPath(t *testing.T) {
	payload, err := LoadPayload("")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if payload == nil || len(payload) != 0 {
		t.Errorf("Expected empty payload, got %v", payload)
	}
}

func TestLoadPayloadMissingFile(t *testing.T) {
	_, err := LoadPayload(filepath.Join(t.TempDir(), "missing.json"))
	if !errors.Is(err, ErrInvalidPayload) || !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected invalid payload wrapping not-exist, got %v", err)
	}
}

func TestParsePayloadRejects(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"malformed", []byte(`{"locale": `)},
		{"array", []byte(`["a", "b"]`)},
		{"string", []byte(`"hello"`)},
		{"null", []byte(`null`)},
		{"number", []byte(`42`)},
		{"trailing data", []byte(`{"a": 1} {"b": 2}`)},
		{"invalid utf8", []byte{'{', '"', 0xff, '"', ':', '1', '}'}},
		{"empty", []byte(``)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParsePayload(tt.data); !errors.Is(err, ErrInvalidPayload) {
				t.Errorf("Expected ErrInvalidPayload, got %v", err)
			}
		})
	}
}

func TestParsePayloadWhitespace(t *testing.T) {
	payload, err := ParsePayload([]byte("\n  {\"a\": true}\n\n"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if payload["a"] != true {
		t.Errorf("Unexpected payload %v", payload)
	}
}
